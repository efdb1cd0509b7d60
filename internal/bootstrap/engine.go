package bootstrap

import (
	"context"
	"fmt"

	"ai-consultation-be/internal/config"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/consultation"
	"ai-consultation-be/pkg/embedding"
	embeddingFactory "ai-consultation-be/pkg/embedding/factory"
	"ai-consultation-be/pkg/knowledge"
	"ai-consultation-be/pkg/llm"
	llmFactory "ai-consultation-be/pkg/llm/factory"
	"ai-consultation-be/pkg/persona"
	"ai-consultation-be/pkg/policy"
	"ai-consultation-be/pkg/retrieval"
)

// Engine is the consultation core shared by the REST server and the
// terminal client.
type Engine struct {
	Roster    *persona.Roster
	LLM       llm.LLMProvider
	Embedder  embedding.Embedder
	Store     *knowledge.ChunkStore
	Retriever *retrieval.Retriever
	Guard     *policy.Guard
	Agent     *persona.Agent

	cfg    *config.Config
	logger logger.ILogger
}

func NewEngine(cfg *config.Config, log logger.ILogger) (*Engine, error) {
	profiles, err := persona.LoadProfiles(cfg.Consultation.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	roster, err := persona.NewRoster(profiles)
	if err != nil {
		return nil, fmt.Errorf("build roster: %w", err)
	}

	llmProvider, err := llmFactory.NewLLMProvider(llmFactory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  cfg.Ai.LLMBaseURL,
		APIKey:   cfg.Ai.LLMAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	log.Info("Bootstrap", "Using LLM provider", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	embedder, err := embeddingFactory.NewEmbedder(embeddingFactory.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	log.Info("Bootstrap", "Using embedding provider", map[string]interface{}{
		"provider":   embedder.Name(),
		"dimensions": embedder.Dimensions(),
	})

	store := knowledge.NewChunkStore(embedder, knowledge.Config{
		ChunkSize:    cfg.Knowledge.ChunkSize,
		ChunkOverlap: cfg.Knowledge.ChunkOverlap,
	}, log)
	retriever := retrieval.NewRetriever(store, embedder, retrieval.Config{
		TopK:     cfg.Knowledge.TopK,
		MinScore: cfg.Knowledge.MinScore,
	}, log)

	return &Engine{
		Roster:    roster,
		LLM:       llmProvider,
		Embedder:  embedder,
		Store:     store,
		Retriever: retriever,
		Guard:     policy.NewGuard(policy.WithRefusalTemplate(cfg.Consultation.RefusalTemplate)),
		Agent:     persona.NewAgent(llmProvider),
		cfg:       cfg,
		logger:    log,
	}, nil
}

// SeedKnowledge ingests the configured knowledge directory, or the built-in
// sample corpus when none is set. Documents that fail are logged and skipped.
func (e *Engine) SeedKnowledge(ctx context.Context) error {
	var docs []knowledge.Document
	switch {
	case e.cfg.Knowledge.Directory != "":
		loaded, err := knowledge.LoadDirectory(e.cfg.Knowledge.Directory)
		if err != nil && !knowledge.IsDocumentError(err) {
			return fmt.Errorf("load knowledge directory: %w", err)
		}
		if err != nil {
			e.logger.Warn("Bootstrap", "Skipping unreadable knowledge files", map[string]interface{}{
				"error": err.Error(),
			})
		}
		docs = loaded
	case e.cfg.Knowledge.LoadSamples:
		docs = knowledge.SampleDocuments()
	}

	ingested := 0
	for _, doc := range docs {
		if _, err := e.Store.Ingest(ctx, doc); err != nil {
			e.logger.Warn("Bootstrap", "Skipping knowledge document", map[string]interface{}{
				"source_id": doc.SourceID,
				"error":     err.Error(),
			})
			continue
		}
		ingested++
	}
	e.logger.Info("Bootstrap", "Knowledge base ready", map[string]interface{}{
		"documents": ingested,
		"chunks":    e.Store.Len(),
	})
	return nil
}

// NewOrchestrator builds an orchestrator emitting to sink, which may be nil.
func (e *Engine) NewOrchestrator(sink consultation.Sink) *consultation.Orchestrator {
	return consultation.NewOrchestrator(
		e.Roster,
		e.Agent,
		e.Guard,
		e.Retriever,
		sink,
		consultation.Config{
			TurnTimeout:       e.cfg.Consultation.TurnTimeout,
			WindowRounds:      e.cfg.Consultation.WindowRounds,
			RebuttalCap:       e.cfg.Consultation.RebuttalCap,
			MaxUserViolations: e.cfg.Consultation.MaxUserViolations,
			TopK:              e.cfg.Knowledge.TopK,
		},
		e.logger,
	)
}
