package jina

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ai-consultation-be/pkg/embedding"
	"ai-consultation-be/pkg/utils"
)

type JinaProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ embedding.Embedder = &JinaProvider{}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewJinaProvider(apiKey, baseURL string) *JinaProvider {
	if baseURL == "" {
		baseURL = "https://api.jina.ai/v1/embeddings"
	}
	return &JinaProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   "jina-embeddings-v2-base-en",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *JinaProvider) Name() string { return "jina:" + p.model }

// Dimensions is fixed at 768 for v2-base-en.
func (p *JinaProvider) Dimensions() int { return 768 }

func (p *JinaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	fail := func(err error) error { return &embedding.Error{Provider: p.Name(), Err: err} }

	var jinaResp embeddingResponse
	err := utils.PostJSON(ctx, p.client, p.baseURL, map[string]string{"Authorization": "Bearer " + p.apiKey},
		embeddingRequest{Model: p.model, Input: []string{text}}, &jinaResp)
	if err != nil {
		return nil, fail(err)
	}
	if jinaResp.Error != nil {
		return nil, fail(fmt.Errorf("api error: %s", jinaResp.Error.Message))
	}
	if len(jinaResp.Data) == 0 || len(jinaResp.Data[0].Embedding) == 0 {
		return nil, fail(fmt.Errorf("empty embeddings"))
	}
	return embedding.Normalize(jinaResp.Data[0].Embedding), nil
}
