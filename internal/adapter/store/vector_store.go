package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"go.etcd.io/bbolt"
	"kb/internal/adapter/analyzer"
	"kb/internal/domain"
)

// ErrDimensionMismatch is returned when a vector's dimensionality
// disagrees with the store's configured dimension. It is never
// silently coerced; the index signature covers the dimension, so this
// surfaces only when the signature check was bypassed.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// BoltVectorStore persists chunk text, metadata and embeddings in the
// shared index database, and maintains the lexical posting lists and
// corpus stats alongside them so both retrieval paths see the same
// chunk universe. Search is brute-force cosine over an in-memory
// vector cache; reads take no write locks, so concurrent queries need
// no coordination.
type BoltVectorStore struct {
	db        *bbolt.DB
	tokenizer *analyzer.Tokenizer
	dimension int

	mu      sync.RWMutex
	vectors map[string]vectorEntry
}

type vectorEntry struct {
	vector []float32
	docID  string
}

// chunkRecord is the stored form of one chunk.
type chunkRecord struct {
	DocID       string    `json:"doc_id"`
	Index       int       `json:"chunk_index"`
	HeadingPath []string  `json:"heading_path,omitempty"`
	Content     string    `json:"content"`
	TokenCount  int       `json:"token_count"`
	Embedding   []float32 `json:"embedding"`
}

func (r chunkRecord) toChunk(id string) domain.Chunk {
	return domain.Chunk{
		ID:          id,
		DocID:       r.DocID,
		Index:       r.Index,
		HeadingPath: r.HeadingPath,
		Content:     r.Content,
		Embedding:   r.Embedding,
	}
}

// NewBoltVectorStore creates a vector store over an open index
// database. Call Init before use.
func NewBoltVectorStore(db *bbolt.DB, tokenizer *analyzer.Tokenizer) *BoltVectorStore {
	return &BoltVectorStore{
		db:        db,
		tokenizer: tokenizer,
		vectors:   make(map[string]vectorEntry),
	}
}

// Init validates the stored embedding dimension against the configured
// one and loads the vector cache. A store created under a different
// dimension fails with ErrDimensionMismatch and requires a rebuild.
func (s *BoltVectorStore) Init(dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if data := b.Get(keyEmbeddingDim); data != nil {
			stored, err := strconv.Atoi(string(data))
			if err != nil {
				return fmt.Errorf("corrupt stored dimension %q: %w", data, err)
			}
			if stored != dimension {
				return fmt.Errorf("store has dimension %d, configured %d: %w",
					stored, dimension, ErrDimensionMismatch)
			}
			return nil
		}
		return b.Put(keyEmbeddingDim, []byte(strconv.Itoa(dimension)))
	})
	if err != nil {
		return err
	}

	s.dimension = dimension
	return s.loadVectors()
}

// loadVectors fills the in-memory cache from the chunks bucket.
func (s *BoltVectorStore) loadVectors() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = make(map[string]vectorEntry)
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			var rec chunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt chunk record %s: %w", k, err)
			}
			s.vectors[string(k)] = vectorEntry{vector: rec.Embedding, docID: rec.DocID}
			return nil
		})
	})
}

// Upsert inserts or replaces chunks keyed by chunk ID. Postings and
// corpus stats are updated in the same transaction, so lexical and
// semantic search never disagree about chunk membership.
func (s *BoltVectorStore) Upsert(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return fmt.Errorf("chunk %s has %d-dim embedding, store expects %d: %w",
				chunk.ID, len(chunk.Embedding), s.dimension, ErrDimensionMismatch)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		var stats domain.Stats
		if err := readStats(tx, &stats); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		for _, chunk := range chunks {
			// Replacing an existing ID: retire its postings first.
			if old := chunkBucket.Get([]byte(chunk.ID)); old != nil {
				var rec chunkRecord
				if err := json.Unmarshal(old, &rec); err != nil {
					return err
				}
				if err := s.removePostings(tx, chunk.ID, rec.Content); err != nil {
					return err
				}
				stats.TotalChunks--
				stats.TotalTokens -= rec.TokenCount
			}

			tokens := s.tokenizer.Tokenize(chunk.Content)
			rec := chunkRecord{
				DocID:       chunk.DocID,
				Index:       chunk.Index,
				HeadingPath: chunk.HeadingPath,
				Content:     chunk.Content,
				TokenCount:  len(tokens),
				Embedding:   chunk.Embedding,
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
			if err := s.addPostings(tx, chunk.ID, tokens); err != nil {
				return err
			}

			stats.TotalChunks++
			stats.TotalTokens += len(tokens)
		}

		return writeStats(tx, stats)
	})
	if err != nil {
		return err
	}

	// Cache updates only land once the transaction has committed, so a
	// rolled-back batch leaves the cache in step with the database.
	for _, chunk := range chunks {
		s.vectors[chunk.ID] = vectorEntry{vector: chunk.Embedding, docID: chunk.DocID}
	}
	return nil
}

// Delete removes chunks by ID. Deleting an absent ID is a no-op.
func (s *BoltVectorStore) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		var stats domain.Stats
		if err := readStats(tx, &stats); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range ids {
			data := chunkBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			var rec chunkRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			if err := s.removePostings(tx, id, rec.Content); err != nil {
				return err
			}
			if err := chunkBucket.Delete([]byte(id)); err != nil {
				return err
			}
			stats.TotalChunks--
			stats.TotalTokens -= rec.TokenCount
		}

		return writeStats(tx, stats)
	})
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

// Search returns at most k chunks by descending cosine similarity,
// ties broken by chunk ID ascending. A non-empty docID restricts
// results to that document.
func (s *BoltVectorStore) Search(query []float32, k int, docID string) ([]domain.ScoredChunk, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query has %d dims, store expects %d: %w",
			len(query), s.dimension, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, fmt.Errorf("invalid k %d", k)
	}

	s.mu.RLock()
	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(s.vectors))
	for id, entry := range s.vectors {
		if docID != "" && entry.docID != docID {
			continue
		}
		scores = append(scores, scored{id: id, score: cosineSimilarity(query, entry.vector)})
	}
	s.mu.RUnlock()

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].id < scores[j].id
	})
	if k < len(scores) {
		scores = scores[:k]
	}

	results := make([]domain.ScoredChunk, 0, len(scores))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, sc := range scores {
			data := b.Get([]byte(sc.id))
			if data == nil {
				continue
			}
			var rec chunkRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			results = append(results, domain.ScoredChunk{
				Chunk: rec.toChunk(sc.id),
				Score: sc.score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *BoltVectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// addPostings merges term frequencies for one chunk into the posting
// lists.
func (s *BoltVectorStore) addPostings(tx *bbolt.Tx, chunkID string, tokens []string) error {
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}

	b := tx.Bucket(bucketTerms)
	for term, count := range tf {
		var postings []Posting
		if data := b.Get([]byte(term)); data != nil {
			if err := json.Unmarshal(data, &postings); err != nil {
				return err
			}
		}

		found := false
		for i := range postings {
			if postings[i].ChunkID == chunkID {
				postings[i].TF = count
				found = true
				break
			}
		}
		if !found {
			postings = append(postings, Posting{ChunkID: chunkID, TF: count})
		}

		data, err := json.Marshal(postings)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(term), data); err != nil {
			return err
		}
	}
	return nil
}

// removePostings drops one chunk from the posting lists of every term
// in its content.
func (s *BoltVectorStore) removePostings(tx *bbolt.Tx, chunkID, content string) error {
	unique := make(map[string]struct{})
	for _, tok := range s.tokenizer.Tokenize(content) {
		unique[tok] = struct{}{}
	}

	b := tx.Bucket(bucketTerms)
	for term := range unique {
		data := b.Get([]byte(term))
		if data == nil {
			continue
		}
		var postings []Posting
		if err := json.Unmarshal(data, &postings); err != nil {
			return err
		}

		filtered := postings[:0]
		for _, p := range postings {
			if p.ChunkID != chunkID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			if err := b.Delete([]byte(term)); err != nil {
				return err
			}
			continue
		}
		data, err := json.Marshal(filtered)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(term), data); err != nil {
			return err
		}
	}
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
