package retriever

import (
	"sort"

	"kb/internal/adapter/analyzer"
	"kb/internal/domain"
	"kb/internal/port"
)

// RerankedRetriever wraps a retriever and rescores a widened candidate
// pool with a secondary relevance signal. A reranker failure degrades
// to the underlying retriever's order instead of failing the query.
type RerankedRetriever struct {
	retriever  port.Retriever
	reranker   port.Reranker
	candidates int
}

func NewRerankedRetriever(retriever port.Retriever, reranker port.Reranker, candidates int) *RerankedRetriever {
	if candidates <= 0 {
		candidates = 50
	}
	return &RerankedRetriever{
		retriever:  retriever,
		reranker:   reranker,
		candidates: candidates,
	}
}

func (r *RerankedRetriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	candidates, err := r.retriever.Search(query, r.candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if r.reranker == nil {
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		return candidates, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Content
	}

	reranked, err := r.reranker.Rerank(query, texts)
	if err != nil {
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		return candidates, nil
	}

	limit := len(reranked)
	if limit > k {
		limit = k
	}
	results := make([]domain.ScoredChunk, 0, limit)
	for i := 0; i < limit; i++ {
		idx := reranked[i].Index
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		results = append(results, domain.ScoredChunk{
			Chunk: candidates[idx].Chunk,
			Score: reranked[i].Score,
		})
	}

	return results, nil
}

// TermOverlapReranker rescores candidates by the fraction of query
// terms each chunk covers. It needs no external API and serves as the
// built-in reranker implementation.
type TermOverlapReranker struct {
	tokenizer *analyzer.Tokenizer
}

func NewTermOverlapReranker(tokenizer *analyzer.Tokenizer) *TermOverlapReranker {
	return &TermOverlapReranker{tokenizer: tokenizer}
}

func (r *TermOverlapReranker) Rerank(query string, chunkTexts []string) ([]port.RerankedResult, error) {
	queryTerms := make(map[string]struct{})
	for _, t := range r.tokenizer.Tokenize(query) {
		queryTerms[t] = struct{}{}
	}

	results := make([]port.RerankedResult, len(chunkTexts))
	if len(queryTerms) == 0 {
		// No scorable terms; keep the incoming order.
		for i := range chunkTexts {
			results[i] = port.RerankedResult{Index: i, Score: 1.0 - float64(i)*0.01}
		}
		return results, nil
	}

	for i, text := range chunkTexts {
		docTerms := make(map[string]struct{})
		for _, t := range r.tokenizer.Tokenize(text) {
			docTerms[t] = struct{}{}
		}

		matches := 0
		for term := range queryTerms {
			if _, ok := docTerms[term]; ok {
				matches++
			}
		}
		results[i] = port.RerankedResult{
			Index: i,
			Score: float64(matches) / float64(len(queryTerms)),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}

func (r *TermOverlapReranker) ModelName() string {
	return "term-overlap"
}
