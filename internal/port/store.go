package port

import "kb/internal/domain"

// VectorStore persists chunk text, metadata and embedding vectors.
type VectorStore interface {
	// Init validates or creates physical storage for the configured
	// embedding dimensionality. A store created with a different
	// dimension reports ErrDimensionMismatch from the implementation.
	Init(dimension int) error

	// Upsert inserts or replaces chunks keyed by chunk ID.
	Upsert(chunks []domain.Chunk) error

	// Delete removes chunks by ID. Absent IDs are ignored.
	Delete(ids []string) error

	// Search returns at most k chunks ordered by descending cosine
	// similarity. docID, when non-empty, restricts results to one
	// document. Ties break by chunk ID ascending.
	Search(query []float32, k int, docID string) ([]domain.ScoredChunk, error)

	// Count returns the number of stored chunks.
	Count() (int, error)
}

// DocStore persists per-document indexing state and the index
// signature singleton.
type DocStore interface {
	// GetChecksum returns the stored checksum for a document and
	// whether the document is known.
	GetChecksum(docID string) (string, bool, error)

	// GetChunkIDs returns the chunk IDs currently associated with a
	// document (empty if unknown).
	GetChunkIDs(docID string) ([]string, error)

	// GetDocument returns the full state record for a document.
	GetDocument(docID string) (domain.DocState, bool, error)

	// UpsertDocument replaces the stored record entirely.
	UpsertDocument(state domain.DocState) error

	// DeleteDocument removes a document's state record.
	DeleteDocument(docID string) error

	// ListDocuments returns all document state records.
	ListDocuments() ([]domain.DocState, error)

	// GetIndexSignature returns the persisted index signature, if any.
	GetIndexSignature() (string, bool, error)

	// SetIndexSignature persists the index signature.
	SetIndexSignature(sig string) error
}
