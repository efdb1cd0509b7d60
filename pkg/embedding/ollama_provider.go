package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-consultation-be/pkg/utils"
)

// OllamaEmbedder calls a local Ollama model such as nomic-embed-text.
type OllamaEmbedder struct {
	BaseURL string
	Model   string
	Dims    int
	Client  *http.Client
}

var _ Embedder = &OllamaEmbedder{}

// NewOllamaEmbedder builds the client. dims is informational (768 for nomic-embed-text).
func NewOllamaEmbedder(baseURL, model string, dims int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if dims <= 0 {
		dims = 768
	}
	return &OllamaEmbedder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Dims:    dims,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (p *OllamaEmbedder) Name() string    { return "ollama:" + p.Model }
func (p *OllamaEmbedder) Dimensions() int { return p.Dims }

func (p *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	fail := func(err error) error { return &Error{Provider: p.Name(), Err: err} }

	var ollamaResp ollamaEmbeddingResponse
	err := utils.PostJSON(ctx, p.Client, p.BaseURL+"/api/embeddings", nil,
		ollamaEmbeddingRequest{Model: p.Model, Prompt: text}, &ollamaResp)
	if err != nil {
		return nil, fail(err)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fail(fmt.Errorf("empty embedding"))
	}

	// Ollama returns float64
	values := make([]float32, len(ollamaResp.Embedding))
	for i, v := range ollamaResp.Embedding {
		values[i] = float32(v)
	}
	return Normalize(values), nil
}
