package usecase

import (
	"kb/internal/domain"
	"kb/internal/port"
)

// RetrieveUseCase serves search queries over the index.
type RetrieveUseCase struct {
	retriever port.Retriever
}

func NewRetrieveUseCase(retriever port.Retriever) *RetrieveUseCase {
	return &RetrieveUseCase{retriever: retriever}
}

// Retrieve returns the top-k chunks for the query.
func (u *RetrieveUseCase) Retrieve(query string, topK int) ([]domain.ScoredChunk, error) {
	return u.retriever.Search(query, topK)
}

// SearchResult is the flattened form of a scored chunk for CLI and
// JSON output.
type SearchResult struct {
	ChunkID     string   `json:"chunk_id"`
	DocID       string   `json:"doc_id"`
	Title       string   `json:"title,omitempty"`
	Path        string   `json:"path,omitempty"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Score       float64  `json:"score"`
	Content     string   `json:"content"`
}

// Flatten resolves document metadata for a result set.
func Flatten(results []domain.ScoredChunk, docs port.DocStore) ([]SearchResult, error) {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		sr := SearchResult{
			ChunkID:     r.Chunk.ID,
			DocID:       r.Chunk.DocID,
			HeadingPath: r.Chunk.HeadingPath,
			Score:       r.Score,
			Content:     r.Chunk.Content,
		}
		if state, found, err := docs.GetDocument(r.Chunk.DocID); err != nil {
			return nil, err
		} else if found {
			sr.Title = state.Title
			sr.Path = state.Path
		}
		out = append(out, sr)
	}
	return out, nil
}
