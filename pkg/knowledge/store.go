package knowledge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/embedding"
	"ai-consultation-be/pkg/utils"
)

const module = "ChunkStore"

type Config struct {
	ChunkSize    int // runes
	ChunkOverlap int // runes
}

func DefaultConfig() Config {
	return Config{ChunkSize: 800, ChunkOverlap: 120}
}

// SkippedChunk is a chunk left out because its embedding failed.
type SkippedChunk struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type IngestReport struct {
	SourceID     string          `json:"sourceId"`
	DocumentType string          `json:"documentType"`
	Chunks       []DocumentChunk `json:"chunks"`
	Skipped      []SkippedChunk  `json:"skipped,omitempty"`
	Replaced     int             `json:"replaced"`
}

// ChunkStore owns every DocumentChunk. Reads run concurrently; re-ingesting a
// source swaps its chunk set under the write lock so readers see either the
// old set or the new one, never a mix.
type ChunkStore struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	cfg      Config
	logger   logger.ILogger

	bySource map[string][]*DocumentChunk
	all      []*DocumentChunk // sorted by id
	nextID   ChunkID
	now      func() time.Time
}

func NewChunkStore(embedder embedding.Embedder, cfg Config, log logger.ILogger) *ChunkStore {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 8
	}
	return &ChunkStore{
		embedder: embedder,
		cfg:      cfg,
		logger:   log,
		bySource: make(map[string][]*DocumentChunk),
		nextID:   1,
		now:      time.Now,
	}
}

func (s *ChunkStore) Embedder() embedding.Embedder {
	return s.embedder
}

// Ingest chunks, embeds and stores doc, replacing any chunks previously
// stored under the same source id. Embedding happens before the lock is taken.
func (s *ChunkStore) Ingest(ctx context.Context, doc Document) (*IngestReport, error) {
	raw, err := doc.readText()
	if err != nil {
		s.logger.Warn(module, "Rejected document", map[string]interface{}{"source_id": doc.SourceID, "error": err.Error()})
		return nil, err
	}

	text := CleanText(raw)
	if text == "" {
		return nil, &DocumentError{SourceID: doc.SourceID, Err: ErrEmptyDocument}
	}

	docType := IdentifyDocumentType(doc.Title, text)
	spans := utils.SplitText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)

	report := &IngestReport{SourceID: doc.SourceID, DocumentType: docType}
	pending := make([]*DocumentChunk, 0, len(spans))
	var firstErr error

	for i, span := range spans {
		vec, err := s.embedder.Embed(ctx, span.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if firstErr == nil {
				firstErr = err
			}
			report.Skipped = append(report.Skipped, SkippedChunk{Index: i, Error: err.Error()})
			s.logger.Warn(module, "Chunk embedding failed, skipping chunk", map[string]interface{}{
				"source_id": doc.SourceID, "chunk_index": i, "error": err.Error(),
			})
			continue
		}

		md := ExtractMetadata(span.Text)
		md.DocumentType = docType
		md.Title = doc.Title
		pending = append(pending, &DocumentChunk{
			SourceID:  doc.SourceID,
			Index:     i,
			Text:      span.Text,
			Start:     span.Start,
			End:       span.End,
			Metadata:  md,
			Embedding: vec,
		})
	}

	if len(pending) == 0 {
		if firstErr == nil {
			firstErr = ErrEmptyDocument
		}
		return nil, &EmbeddingError{SourceID: doc.SourceID, Chunks: len(spans), Err: firstErr}
	}

	s.mu.Lock()
	now := s.now()
	for _, c := range pending {
		c.ID = s.nextID
		c.IngestedAt = now
		s.nextID++
	}
	report.Replaced = len(s.bySource[doc.SourceID])
	s.bySource[doc.SourceID] = pending
	s.rebuildLocked()
	s.mu.Unlock()

	report.Chunks = copyChunks(pending)
	s.logger.Info(module, "Document ingested", map[string]interface{}{
		"source_id": doc.SourceID, "chunks": len(pending), "skipped": len(report.Skipped),
		"replaced": report.Replaced, "document_type": docType,
	})
	return report, nil
}

// Remove drops every chunk of sourceID. It reports whether anything was removed.
func (s *ChunkStore) Remove(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySource[sourceID]; !ok {
		return false
	}
	delete(s.bySource, sourceID)
	s.rebuildLocked()
	return true
}

// Reset empties the store. Chunk ids keep increasing afterwards.
func (s *ChunkStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySource = make(map[string][]*DocumentChunk)
	s.all = nil
}

func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all)
}

// Sources returns the stored source ids in sorted order.
func (s *ChunkStore) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bySource))
	for id := range s.bySource {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *ChunkStore) Chunks(sourceID string) []DocumentChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyChunks(s.bySource[sourceID])
}

// Contains reports whether id is currently stored.
func (s *ChunkStore) Contains(id ChunkID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.all), func(i int) bool { return s.all[i].ID >= id })
	return i < len(s.all) && s.all[i].ID == id
}

// View runs fn with every chunk, ordered by id, under the read lock.
// fn must not retain or modify the chunks.
func (s *ChunkStore) View(fn func(chunks []*DocumentChunk)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.all)
}

func (s *ChunkStore) rebuildLocked() {
	all := make([]*DocumentChunk, 0, len(s.all))
	for _, cs := range s.bySource {
		all = append(all, cs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	s.all = all
}

func copyChunks(in []*DocumentChunk) []DocumentChunk {
	out := make([]DocumentChunk, len(in))
	for i, c := range in {
		out[i] = *c
	}
	return out
}

// IsDocumentError reports whether err came from a malformed source.
func IsDocumentError(err error) bool {
	var de *DocumentError
	return errors.As(err, &de)
}
