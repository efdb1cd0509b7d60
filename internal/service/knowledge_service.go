package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/mapper"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/events"
	"ai-consultation-be/pkg/knowledge"
	pktNats "ai-consultation-be/pkg/nats"
	"ai-consultation-be/pkg/retrieval"

	"github.com/gofiber/fiber/v2"
)

type IKnowledgeService interface {
	Ingest(ctx context.Context, req *dto.IngestDocumentRequest) (*dto.IngestDocumentResponse, error)
	IngestFile(ctx context.Context, req *dto.UploadDocumentRequest, filename string, data []byte) (*dto.IngestDocumentResponse, error)
	Enqueue(ctx context.Context, req *dto.IngestDocumentRequest) (*dto.EnqueueDocumentResponse, error)
	ListSources(ctx context.Context) ([]dto.SourceResponse, error)
	Delete(ctx context.Context, sourceID string) error
	Search(ctx context.Context, req *dto.SearchDocumentsRequest) ([]dto.SearchResultResponse, error)
}

type knowledgeService struct {
	store            *knowledge.ChunkStore
	retriever        *retrieval.Retriever
	publisherService IPublisherService
	events           pktNats.EventPublisher
	mapper           *mapper.KnowledgeMapper
	logger           logger.ILogger
}

// NewKnowledgeService wires the knowledge base operations. publisher may be nil.
func NewKnowledgeService(
	store *knowledge.ChunkStore,
	retriever *retrieval.Retriever,
	publisherService IPublisherService,
	publisher pktNats.EventPublisher,
	log logger.ILogger,
) IKnowledgeService {
	return &knowledgeService{
		store:            store,
		retriever:        retriever,
		publisherService: publisherService,
		events:           publisher,
		mapper:           mapper.NewKnowledgeMapper(),
		logger:           log,
	}
}

func (s *knowledgeService) Ingest(ctx context.Context, req *dto.IngestDocumentRequest) (*dto.IngestDocumentResponse, error) {
	report, err := s.store.Ingest(ctx, knowledge.Document{
		SourceID: req.SourceId,
		Title:    req.Title,
		Text:     req.Text,
	})
	if err != nil {
		return nil, ingestError(err)
	}

	publishIngested(ctx, s.events, s.logger, report)
	return s.mapper.ReportToResponse(report), nil
}

// IngestFile ingests an uploaded .txt, .md or .pdf file. A PDF without a text
// layer is rejected like any other malformed document.
func (s *knowledgeService) IngestFile(ctx context.Context, req *dto.UploadDocumentRequest, filename string, data []byte) (*dto.IngestDocumentResponse, error) {
	title := req.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	doc, err := knowledge.DocumentFromFile(req.SourceId, title, filename, data)
	if err != nil {
		s.logger.Warn("KnowledgeService", "Rejected uploaded file", map[string]interface{}{
			"source_id": req.SourceId,
			"filename":  filename,
			"error":     err.Error(),
		})
		return nil, ingestError(err)
	}

	report, err := s.store.Ingest(ctx, doc)
	if err != nil {
		return nil, ingestError(err)
	}

	publishIngested(ctx, s.events, s.logger, report)
	return s.mapper.ReportToResponse(report), nil
}

// ingestError maps store failures onto HTTP errors.
func ingestError(err error) error {
	var docErr *knowledge.DocumentError
	if errors.As(err, &docErr) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, docErr.Error())
	}
	var embErr *knowledge.EmbeddingError
	if errors.As(err, &embErr) {
		return fiber.NewError(fiber.StatusBadGateway, "Embedding backend failed for every chunk")
	}
	return err
}

func (s *knowledgeService) Enqueue(ctx context.Context, req *dto.IngestDocumentRequest) (*dto.EnqueueDocumentResponse, error) {
	id, err := s.publisherService.PublishIngestDocument(ctx, dto.PublishIngestDocumentMessage{
		SourceId:   req.SourceId,
		Title:      req.Title,
		Text:       req.Text,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &dto.EnqueueDocumentResponse{SourceId: req.SourceId, MessageId: id}, nil
}

func (s *knowledgeService) ListSources(ctx context.Context) ([]dto.SourceResponse, error) {
	sources := s.store.Sources()
	res := make([]dto.SourceResponse, 0, len(sources))
	for _, id := range sources {
		chunks := s.store.Chunks(id)
		if len(chunks) == 0 {
			continue
		}
		res = append(res, s.mapper.SourceToResponse(id, chunks))
	}
	return res, nil
}

func (s *knowledgeService) Delete(ctx context.Context, sourceID string) error {
	if !s.store.Remove(sourceID) {
		return fiber.NewError(fiber.StatusNotFound, "Document not found")
	}
	s.logger.Info("KnowledgeService", "Document removed", map[string]interface{}{"source_id": sourceID})
	return nil
}

func (s *knowledgeService) Search(ctx context.Context, req *dto.SearchDocumentsRequest) ([]dto.SearchResultResponse, error) {
	results := s.retriever.Retrieve(ctx, req.Query, req.TopK)
	return s.mapper.ResultsToResponse(results), nil
}

func publishIngested(ctx context.Context, publisher pktNats.EventPublisher, log logger.ILogger, report *knowledge.IngestReport) {
	if publisher == nil {
		return
	}
	payload := map[string]interface{}{
		"sourceId":     report.SourceID,
		"documentType": report.DocumentType,
		"chunks":       len(report.Chunks),
		"skipped":      len(report.Skipped),
		"replaced":     report.Replaced,
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), events.New(events.TypeDocumentIngested, payload)); err != nil {
		log.Warn("KnowledgeService", "Failed to publish ingest event", map[string]interface{}{
			"source_id": report.SourceID,
			"error":     err.Error(),
		})
	}
}
