package dto

import "time"

type IngestDocumentRequest struct {
	SourceId string `json:"source_id" validate:"required,max=128"`
	Title    string `json:"title" validate:"max=256"`
	Text     string `json:"text" validate:"required"`
}

// UploadDocumentRequest holds the form fields sent with a document file.
type UploadDocumentRequest struct {
	SourceId string `form:"source_id" validate:"required,max=128"`
	Title    string `form:"title" validate:"max=256"`
}

// PublishIngestDocumentMessage is the payload of the async ingestion topic.
type PublishIngestDocumentMessage struct {
	SourceId   string    `json:"source_id"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type EnqueueDocumentResponse struct {
	SourceId  string `json:"source_id"`
	MessageId string `json:"message_id"`
}

type ChunkMetadataResponse struct {
	Citations     []string `json:"citations,omitempty"`
	CaseNames     []string `json:"case_names,omitempty"`
	Dates         []string `json:"dates,omitempty"`
	SectionHeader string   `json:"section_header,omitempty"`
	DocumentType  string   `json:"document_type"`
	Title         string   `json:"title,omitempty"`
}

type ChunkResponse struct {
	ChunkId  uint64                `json:"chunk_id"`
	Index    int                   `json:"index"`
	Start    int                   `json:"start"`
	End      int                   `json:"end"`
	Text     string                `json:"text"`
	Metadata ChunkMetadataResponse `json:"metadata"`
}

type SkippedChunkResponse struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type IngestDocumentResponse struct {
	SourceId     string                 `json:"source_id"`
	DocumentType string                 `json:"document_type"`
	ChunkCount   int                    `json:"chunk_count"`
	Chunks       []ChunkResponse        `json:"chunks"`
	Skipped      []SkippedChunkResponse `json:"skipped,omitempty"`
	Replaced     int                    `json:"replaced"`
}

type SourceResponse struct {
	SourceId     string    `json:"source_id"`
	Title        string    `json:"title,omitempty"`
	DocumentType string    `json:"document_type"`
	ChunkCount   int       `json:"chunk_count"`
	IngestedAt   time.Time `json:"ingested_at"`
}

type SearchDocumentsRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
	TopK  int    `json:"top_k" validate:"omitempty,min=1,max=20"`
}

type SearchResultResponse struct {
	ChunkId  uint64                `json:"chunk_id"`
	SourceId string                `json:"source_id"`
	Score    float64               `json:"score"`
	Text     string                `json:"text"`
	Metadata ChunkMetadataResponse `json:"metadata"`
}
