package mapper

import (
	"ai-consultation-be/internal/dto"
	"ai-consultation-be/pkg/knowledge"
	"ai-consultation-be/pkg/retrieval"
)

type KnowledgeMapper struct{}

func NewKnowledgeMapper() *KnowledgeMapper {
	return &KnowledgeMapper{}
}

func (m *KnowledgeMapper) MetadataToResponse(md knowledge.Metadata) dto.ChunkMetadataResponse {
	return dto.ChunkMetadataResponse{
		Citations:     md.Citations,
		CaseNames:     md.CaseNames,
		Dates:         md.Dates,
		SectionHeader: md.SectionHeader,
		DocumentType:  md.DocumentType,
		Title:         md.Title,
	}
}

func (m *KnowledgeMapper) ChunkToResponse(c knowledge.DocumentChunk) dto.ChunkResponse {
	return dto.ChunkResponse{
		ChunkId:  uint64(c.ID),
		Index:    c.Index,
		Start:    c.Start,
		End:      c.End,
		Text:     c.Text,
		Metadata: m.MetadataToResponse(c.Metadata),
	}
}

func (m *KnowledgeMapper) ReportToResponse(r *knowledge.IngestReport) *dto.IngestDocumentResponse {
	if r == nil {
		return nil
	}
	chunks := make([]dto.ChunkResponse, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		chunks = append(chunks, m.ChunkToResponse(c))
	}
	var skipped []dto.SkippedChunkResponse
	for _, s := range r.Skipped {
		skipped = append(skipped, dto.SkippedChunkResponse{Index: s.Index, Error: s.Error})
	}
	return &dto.IngestDocumentResponse{
		SourceId:     r.SourceID,
		DocumentType: r.DocumentType,
		ChunkCount:   len(chunks),
		Chunks:       chunks,
		Skipped:      skipped,
		Replaced:     r.Replaced,
	}
}

// SourceToResponse summarizes the chunks stored for one source. chunks must
// not be empty.
func (m *KnowledgeMapper) SourceToResponse(sourceID string, chunks []knowledge.DocumentChunk) dto.SourceResponse {
	first := chunks[0]
	return dto.SourceResponse{
		SourceId:     sourceID,
		Title:        first.Metadata.Title,
		DocumentType: first.Metadata.DocumentType,
		ChunkCount:   len(chunks),
		IngestedAt:   first.IngestedAt,
	}
}

func (m *KnowledgeMapper) ResultsToResponse(results []retrieval.Result) []dto.SearchResultResponse {
	res := make([]dto.SearchResultResponse, 0, len(results))
	for _, r := range results {
		res = append(res, dto.SearchResultResponse{
			ChunkId:  uint64(r.ChunkID),
			SourceId: r.SourceID,
			Score:    r.Score,
			Text:     r.Text,
			Metadata: m.MetadataToResponse(r.Metadata),
		})
	}
	return res
}
