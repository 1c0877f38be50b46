package retriever

import (
	"sort"

	"kb/internal/domain"
)

// HybridRetriever fuses semantic and lexical results with a weighted
// linear combination: alpha*semantic + (1-alpha)*lexical, where a
// chunk absent from one list contributes zero on that side. Both
// inputs are already normalized to [0, 1].
type HybridRetriever struct {
	semantic *SemanticRetriever
	lexical  *LexicalRetriever
	alpha    float64
	minScore float64
}

func NewHybridRetriever(semantic *SemanticRetriever, lexical *LexicalRetriever, alpha, minScore float64) *HybridRetriever {
	if alpha < 0 || alpha > 1 {
		alpha = 0.7
	}
	return &HybridRetriever{
		semantic: semantic,
		lexical:  lexical,
		alpha:    alpha,
		minScore: minScore,
	}
}

func (r *HybridRetriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	return r.SearchFiltered(query, k, "")
}

// SearchFiltered fuses both retrieval paths over a shared candidate
// pool, applies the score threshold, and truncates to k. The merged
// order is stable: at equal fused scores, chunks keep their first
// appearance order (semantic list first, then lexical).
func (r *HybridRetriever) SearchFiltered(query string, k int, docID string) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	candidateK := k * 3
	if candidateK < 20 {
		candidateK = 20
	}

	semanticResults, err := r.semantic.SearchFiltered(query, candidateK, docID)
	if err != nil {
		return nil, err
	}
	lexicalResults, err := r.lexical.SearchFiltered(query, candidateK, docID)
	if err != nil {
		return nil, err
	}

	type fusedEntry struct {
		chunk domain.Chunk
		score float64
		order int
	}

	fused := make(map[string]*fusedEntry)
	order := 0

	for _, result := range semanticResults {
		fused[result.Chunk.ID] = &fusedEntry{
			chunk: result.Chunk,
			score: r.alpha * result.Score,
			order: order,
		}
		order++
	}
	for _, result := range lexicalResults {
		entry, exists := fused[result.Chunk.ID]
		if !exists {
			entry = &fusedEntry{chunk: result.Chunk, order: order}
			fused[result.Chunk.ID] = entry
			order++
		}
		entry.score += (1 - r.alpha) * result.Score
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, entry := range fused {
		if entry.score < r.minScore {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	if len(entries) > k {
		entries = entries[:k]
	}

	results := make([]domain.ScoredChunk, len(entries))
	for i, entry := range entries {
		results[i] = domain.ScoredChunk{Chunk: entry.chunk, Score: entry.score}
	}

	return results, nil
}
