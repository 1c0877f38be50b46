package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
	"kb/internal/domain"
)

var (
	bucketDocs   = []byte("docs")
	bucketChunks = []byte("chunks")
	bucketTerms  = []byte("terms")
	bucketStats  = []byte("stats")
	bucketMeta   = []byte("meta")

	keyStats          = []byte("corpus_stats")
	keyIndexSignature = []byte("index_signature")
	keyEmbeddingDim   = []byte("embedding_dim")
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Bolt is the document state store: per-document checksums and chunk
// membership, the index-signature singleton, and corpus stats.
type Bolt struct {
	db *bbolt.DB
}

// Open opens (or creates) the index database at path.
func Open(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open index db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocs, bucketChunks, bucketTerms, bucketStats, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// DB exposes the underlying handle so the vector store can share it.
func (s *Bolt) DB() *bbolt.DB {
	return s.db
}

func (s *Bolt) Close() error {
	return s.db.Close()
}

// GetChecksum returns the stored checksum for a document and whether
// the document has been indexed before.
func (s *Bolt) GetChecksum(docID string) (string, bool, error) {
	state, found, err := s.GetDocument(docID)
	if err != nil || !found {
		return "", false, err
	}
	return state.Checksum, true, nil
}

// GetChunkIDs returns the chunk IDs currently associated with a
// document. Unknown documents yield an empty set.
func (s *Bolt) GetChunkIDs(docID string) ([]string, error) {
	state, found, err := s.GetDocument(docID)
	if err != nil || !found {
		return nil, err
	}
	return state.ChunkIDs, nil
}

// GetDocument returns the full state record for a document.
func (s *Bolt) GetDocument(docID string) (domain.DocState, bool, error) {
	var state domain.DocState
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(docID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("corrupt document record %s: %w", docID, err)
		}
		found = true
		return nil
	})
	return state, found, err
}

// UpsertDocument replaces the stored record entirely. Chunk membership
// must reflect exactly the latest chunking pass, so this is never a
// merge.
func (s *Bolt) UpsertDocument(state domain.DocState) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Put([]byte(state.DocID), data)
	})
}

// DeleteDocument removes a document's state record.
func (s *Bolt) DeleteDocument(docID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).Delete([]byte(docID))
	})
}

// ListDocuments returns all document state records in key order.
func (s *Bolt) ListDocuments() ([]domain.DocState, error) {
	var states []domain.DocState
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var state domain.DocState
			if err := json.Unmarshal(v, &state); err != nil {
				return fmt.Errorf("corrupt document record %s: %w", k, err)
			}
			states = append(states, state)
			return nil
		})
	})
	return states, err
}

// GetIndexSignature returns the persisted index signature, if any.
func (s *Bolt) GetIndexSignature() (string, bool, error) {
	var sig string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(keyIndexSignature); data != nil {
			sig = string(data)
		}
		return nil
	})
	return sig, sig != "", err
}

// SetIndexSignature persists the index signature singleton.
func (s *Bolt) SetIndexSignature(sig string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyIndexSignature, []byte(sig))
	})
}

// Stats returns the corpus counters maintained by chunk upserts.
func (s *Bolt) Stats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		return readStats(tx, &stats)
	})
	return stats, err
}

func readStats(tx *bbolt.Tx, stats *domain.Stats) error {
	data := tx.Bucket(bucketStats).Get(keyStats)
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, stats)
}

func writeStats(tx *bbolt.Tx, stats domain.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketStats).Put(keyStats, data)
}

// Posting records the term frequency of one term in one chunk.
type Posting struct {
	ChunkID string `json:"chunk_id"`
	TF      int    `json:"tf"`
}

// Postings returns the posting list for a term.
func (s *Bolt) Postings(term string) ([]Posting, error) {
	var postings []Posting
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTerms).Get([]byte(term))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &postings)
	})
	return postings, err
}

// ChunkTokenCount returns the token count recorded for a chunk at
// index time.
func (s *Bolt) ChunkTokenCount(id string) (int, error) {
	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
		}
		var rec chunkRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		count = rec.TokenCount
		return nil
	})
	return count, err
}

// GetChunk materializes a stored chunk by ID.
func (s *Bolt) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
		}
		var rec chunkRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		chunk = rec.toChunk(id)
		return nil
	})
	return chunk, err
}
