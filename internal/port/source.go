package port

import "kb/internal/domain"

// DocumentSource is a lazy pull-based stream of cleaned documents.
// Next returns io.EOF once the stream is exhausted. A record-level
// parse failure is returned as a non-EOF error together with the
// partial record's ID when known; callers may continue pulling.
type DocumentSource interface {
	Next() (domain.Document, error)

	// Close releases the underlying readers.
	Close() error
}

type Chunker interface {
	Split(doc domain.Document) ([]domain.Chunk, error)
}
