package factory

import (
	"ai-consultation-be/pkg/embedding"
	"ai-consultation-be/pkg/embedding/jina"
	"fmt"
)

type Config struct {
	Provider   string // "ollama", "gemini", "jina", "hashing"
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
}

func NewEmbedder(cfg Config) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini embedder requires an api key")
		}
		return embedding.NewGeminiEmbedder(cfg.APIKey, cfg.Model), nil
	case "jina":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("jina embedder requires an api key")
		}
		return jina.NewJinaProvider(cfg.APIKey, cfg.BaseURL), nil
	case "hashing", "":
		return embedding.NewHashingEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
