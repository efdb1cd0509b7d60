package retrieval

import (
	"context"
	"sort"
	"strings"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/embedding"
	"ai-consultation-be/pkg/knowledge"
)

const module = "Retriever"

// DefaultTopK is used when a caller asks for k <= 0.
const DefaultTopK = 4

type Result struct {
	ChunkID  knowledge.ChunkID  `json:"chunkId"`
	SourceID string             `json:"sourceId"`
	Score    float64            `json:"score"`
	Text     string             `json:"text"`
	Metadata knowledge.Metadata `json:"metadata"`
}

type Config struct {
	TopK     int
	MinScore float64 // results scoring below are dropped; 0 keeps everything
}

type Retriever struct {
	store    *knowledge.ChunkStore
	embedder embedding.Embedder
	cfg      Config
	logger   logger.ILogger
}

func NewRetriever(store *knowledge.ChunkStore, embedder embedding.Embedder, cfg Config, log logger.ILogger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Retriever{store: store, embedder: embedder, cfg: cfg, logger: log}
}

func (r *Retriever) TopK() int {
	return r.cfg.TopK
}

// Retrieve returns at most k chunks ranked by cosine similarity to query,
// highest first, ties going to the lower chunk id. An empty store or an
// unembeddable query yields an empty result, never an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []Result {
	if k <= 0 {
		k = r.cfg.TopK
	}
	if strings.TrimSpace(query) == "" || r.store.Len() == 0 {
		return []Result{}
	}

	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn(module, "Query embedding failed, returning no evidence", map[string]interface{}{
			"error": err.Error(), "query_len": len(query),
		})
		return []Result{}
	}

	var scored []Result
	r.store.View(func(chunks []*knowledge.DocumentChunk) {
		scored = make([]Result, 0, len(chunks))
		for _, c := range chunks {
			score := embedding.CosineSimilarity(qvec, c.Embedding)
			if r.cfg.MinScore > 0 && score < r.cfg.MinScore {
				continue
			}
			scored = append(scored, Result{
				ChunkID:  c.ID,
				SourceID: c.SourceID,
				Score:    score,
				Text:     c.Text,
				Metadata: c.Metadata,
			})
		}
	})

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkID < scored[j].ChunkID
	})

	out := make([]Result, 0, k)
	seen := make(map[string]bool, k)
	for _, res := range scored {
		if len(out) == k {
			break
		}
		// Overlapping ingests can produce identical text; keep the best one.
		if seen[res.Text] {
			continue
		}
		seen[res.Text] = true
		out = append(out, res)
	}
	return out
}
