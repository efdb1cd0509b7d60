package factory

import (
	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/llm/huggingface"
	"ai-consultation-be/pkg/llm/mock"
	"ai-consultation-be/pkg/llm/ollama"
	"fmt"
)

type Config struct {
	Provider string // "ollama", "huggingface", "mock"
	Model    string
	BaseURL  string
	APIKey   string
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "mock", "":
		return mock.NewProvider(0), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
