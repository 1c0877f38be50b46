package retriever

import (
	"fmt"

	"kb/internal/domain"
	"kb/internal/port"
)

// SemanticRetriever embeds the query and runs cosine search over the
// vector store. Negative similarities are clamped to zero so scores
// stay in [0, 1] for fusion.
type SemanticRetriever struct {
	vectorStore port.VectorStore
	embedder    port.Embedder
}

func NewSemanticRetriever(vectorStore port.VectorStore, embedder port.Embedder) *SemanticRetriever {
	return &SemanticRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
	}
}

func (r *SemanticRetriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	return r.SearchFiltered(query, k, "")
}

// SearchFiltered is Search restricted to a single document when docID
// is non-empty.
func (r *SemanticRetriever) SearchFiltered(query string, k int, docID string) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	embeddings, err := r.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	results, err := r.vectorStore.Search(embeddings[0], k, docID)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	for i := range results {
		if results[i].Score < 0 {
			results[i].Score = 0
		}
	}

	return results, nil
}
