package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/utils"
)

const providerName = "ollama"

type OllamaProvider struct {
	BaseURL   string
	ModelName string
	Client    *http.Client
}

// Ensure OllamaProvider implements LLMProvider
var _ llm.LLMProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: modelName,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *OllamaProvider) options(opts []llm.Option) (string, *ollamaOptions) {
	options := llm.Apply(llm.Options{Temperature: 0.7}, opts...)
	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}
	return model, &ollamaOptions{
		Temperature: options.Temperature,
		TopP:        options.TopP,
		NumPredict:  options.MaxTokens,
	}
}

func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	model, options := o.options(opts)

	messages := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		messages[i] = ollamaMessage{Role: role, Content: msg.Content}
	}

	var resp ollamaChatResponse
	err := o.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Options:  options,
	}, &resp)
	if err != nil {
		return "", err
	}
	return o.checkEmpty(resp.Message.Content)
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	model, options := o.options(opts)

	var resp ollamaGenerateResponse
	err := o.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Options: options,
	}, &resp)
	if err != nil {
		return "", err
	}
	return o.checkEmpty(resp.Response)
}

func (o *OllamaProvider) checkEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &llm.GenerationError{Provider: providerName, Err: llm.ErrEmptyResponse}
	}
	return text, nil
}

func (o *OllamaProvider) post(ctx context.Context, path string, payload, out interface{}) error {
	if err := utils.PostJSON(ctx, o.Client, o.BaseURL+path, nil, payload, out); err != nil {
		return &llm.GenerationError{Provider: providerName, Err: err}
	}
	return nil
}
