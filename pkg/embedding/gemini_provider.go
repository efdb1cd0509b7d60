package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ai-consultation-be/pkg/utils"
)

type geminiRequestPart struct {
	Text string `json:"text"`
}

type geminiRequestContent struct {
	Parts []geminiRequestPart `json:"parts"`
}

type geminiRequest struct {
	Model    string               `json:"model"`
	Content  geminiRequestContent `json:"content"`
	TaskType string               `json:"task_type,omitempty"`
}

type geminiResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// GeminiEmbedder uses the Generative Language embedContent endpoint.
type GeminiEmbedder struct {
	ApiKey   string
	Model    string
	TaskType string
	BaseURL  string
	Client   *http.Client
}

var _ Embedder = &GeminiEmbedder{}

func NewGeminiEmbedder(apiKey, model string) *GeminiEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{
		ApiKey:   apiKey,
		Model:    model,
		TaskType: "RETRIEVAL_DOCUMENT",
		BaseURL:  "https://generativelanguage.googleapis.com/v1",
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GeminiEmbedder) Name() string    { return "gemini:" + p.Model }
func (p *GeminiEmbedder) Dimensions() int { return 768 }

func (p *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	fail := func(err error) error { return &Error{Provider: p.Name(), Err: err} }

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", p.BaseURL, p.Model)
	var out geminiResponse
	err := utils.PostJSON(ctx, p.Client, endpoint, map[string]string{"x-goog-api-key": p.ApiKey}, geminiRequest{
		Model:    p.Model,
		Content:  geminiRequestContent{Parts: []geminiRequestPart{{Text: text}}},
		TaskType: p.TaskType,
	}, &out)
	if err != nil {
		return nil, fail(err)
	}
	if len(out.Embedding.Values) == 0 {
		return nil, fail(fmt.Errorf("empty embedding"))
	}
	return Normalize(out.Embedding.Values), nil
}
