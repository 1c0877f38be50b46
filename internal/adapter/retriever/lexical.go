package retriever

import (
	"math"
	"sort"

	"kb/internal/adapter/analyzer"
	"kb/internal/adapter/store"
	"kb/internal/domain"
)

const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// LexicalRetriever scores chunks with BM25 over the posting lists
// maintained by the index store. Raw BM25 scores are unbounded, so
// Search max-normalizes them into [0, 1] to make them fusable with
// cosine similarities.
type LexicalRetriever struct {
	store     *store.Bolt
	tokenizer *analyzer.Tokenizer
	k1        float64
	b         float64
}

func NewLexicalRetriever(s *store.Bolt, tokenizer *analyzer.Tokenizer) *LexicalRetriever {
	return &LexicalRetriever{
		store:     s,
		tokenizer: tokenizer,
		k1:        defaultK1,
		b:         defaultB,
	}
}

func (r *LexicalRetriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	return r.SearchFiltered(query, k, "")
}

// SearchFiltered is Search restricted to a single document when docID
// is non-empty.
func (r *LexicalRetriever) SearchFiltered(query string, k int, docID string) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	queryTokens := r.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	stats, err := r.store.Stats()
	if err != nil {
		return nil, err
	}
	if stats.TotalChunks == 0 {
		return nil, nil
	}

	avgDl := stats.AvgChunkLen()
	N := float64(stats.TotalChunks)

	chunkScores := make(map[string]float64)
	chunkLengths := make(map[string]int)

	for _, term := range queryTokens {
		postings, err := r.store.Postings(term)
		if err != nil {
			return nil, err
		}
		if len(postings) == 0 {
			continue
		}

		n := float64(len(postings))
		idf := math.Log((N-n+0.5)/(n+0.5) + 1)

		for _, posting := range postings {
			if _, seen := chunkLengths[posting.ChunkID]; !seen {
				length, err := r.store.ChunkTokenCount(posting.ChunkID)
				if err != nil {
					return nil, err
				}
				chunkLengths[posting.ChunkID] = length
			}

			dl := float64(chunkLengths[posting.ChunkID])
			tf := float64(posting.TF)

			chunkScores[posting.ChunkID] += idf * (tf * (r.k1 + 1)) / (tf + r.k1*(1-r.b+r.b*dl/avgDl))
		}
	}

	if len(chunkScores) == 0 {
		return nil, nil
	}

	maxScore := 0.0
	for _, score := range chunkScores {
		if score > maxScore {
			maxScore = score
		}
	}

	results := make([]domain.ScoredChunk, 0, len(chunkScores))
	for chunkID, score := range chunkScores {
		chunk, err := r.store.GetChunk(chunkID)
		if err != nil {
			return nil, err
		}
		if docID != "" && chunk.DocID != docID {
			continue
		}
		results = append(results, domain.ScoredChunk{
			Chunk: chunk,
			Score: score / maxScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}
