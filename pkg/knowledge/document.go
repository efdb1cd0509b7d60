package knowledge

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// ChunkID identifies a chunk inside one ChunkStore. Ids grow monotonically and
// are never reused, even after a source is replaced.
type ChunkID uint64

// Document is a raw source handed to ingestion. Body wins over Text when set.
type Document struct {
	SourceID string
	Title    string
	Text     string
	Body     io.Reader
}

// Metadata is extracted from chunk text by pattern matching.
type Metadata struct {
	Citations     []string `json:"citations,omitempty"`
	CaseNames     []string `json:"caseNames,omitempty"`
	Dates         []string `json:"dates,omitempty"`
	SectionHeader string   `json:"sectionHeader,omitempty"`
	DocumentType  string   `json:"documentType"`
	Title         string   `json:"title,omitempty"`
}

// DocumentChunk is immutable once stored. Start and End are rune offsets into
// the cleaned document text.
type DocumentChunk struct {
	ID         ChunkID   `json:"id"`
	SourceID   string    `json:"sourceId"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Metadata   Metadata  `json:"metadata"`
	Embedding  []float32 `json:"-"`
	IngestedAt time.Time `json:"ingestedAt"`
}

var (
	ErrEmptyDocument = errors.New("document has no text")
	ErrInvalidUTF8   = errors.New("document is not valid UTF-8")
	ErrBinaryContent = errors.New("document contains binary content")
	ErrMissingSource = errors.New("document source id is required")
)

// DocumentError means the source could not be read or is malformed.
// The store is left untouched when it is returned.
type DocumentError struct {
	SourceID string
	Err      error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %q: %v", e.SourceID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// EmbeddingError is returned by Ingest when no chunk of a document could be
// embedded. Single-chunk failures are reported in IngestReport.Skipped instead.
type EmbeddingError struct {
	SourceID string
	Chunks   int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("document %q: all %d chunks failed to embed: %v", e.SourceID, e.Chunks, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// readText returns the document body after validating it.
func (d Document) readText() (string, error) {
	if strings.TrimSpace(d.SourceID) == "" {
		return "", &DocumentError{SourceID: d.SourceID, Err: ErrMissingSource}
	}

	text := d.Text
	if d.Body != nil {
		raw, err := io.ReadAll(d.Body)
		if err != nil {
			return "", &DocumentError{SourceID: d.SourceID, Err: fmt.Errorf("read body: %w", err)}
		}
		text = string(raw)
	}

	if !utf8.ValidString(text) {
		return "", &DocumentError{SourceID: d.SourceID, Err: ErrInvalidUTF8}
	}
	if strings.ContainsRune(text, 0) {
		return "", &DocumentError{SourceID: d.SourceID, Err: ErrBinaryContent}
	}
	return text, nil
}
