package usecase

import (
	"fmt"
	"io"

	"kb/internal/domain"
	"kb/internal/port"
)

// sourceErrID tags build errors raised by the document source itself,
// before any document id is known.
const sourceErrID = "(source)"

// IndexBuilder orchestrates incremental indexing: chunk changed
// documents, embed their chunks in batches, replace the stored chunk
// set, and commit document state last so a partial failure never
// advances a checksum.
type IndexBuilder struct {
	chunker   port.Chunker
	embedder  port.Embedder
	vectors   port.VectorStore
	docs      port.DocStore
	signature string
	batchSize int
	progress  func(docID string, indexed bool)
}

// NewIndexBuilder creates a builder. signature is the current index
// signature; a persisted signature that disagrees with it forces a
// full rebuild.
func NewIndexBuilder(
	chunker port.Chunker,
	embedder port.Embedder,
	vectors port.VectorStore,
	docs port.DocStore,
	signature string,
	batchSize int,
) *IndexBuilder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &IndexBuilder{
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		docs:      docs,
		signature: signature,
		batchSize: batchSize,
	}
}

// SetProgress installs a callback invoked after each document is
// handled.
func (b *IndexBuilder) SetProgress(fn func(docID string, indexed bool)) {
	b.progress = fn
}

// ShouldProcess reports whether a document needs reindexing: true for
// unknown documents and for checksum changes, false only when the
// stored and incoming checksums match.
func ShouldProcess(stored string, found bool, incoming string) bool {
	if !found {
		return true
	}
	return stored != incoming
}

// Build consumes the document stream and indexes changed documents,
// skipping those whose checksum is unchanged. A persisted index
// signature that differs from the current one forces every document
// to be reprocessed.
func (b *IndexBuilder) Build(src port.DocumentSource) (domain.BuildStats, error) {
	return b.run(src, false)
}

// ForceRebuild reprocesses every document regardless of checksums.
func (b *IndexBuilder) ForceRebuild(src port.DocumentSource) (domain.BuildStats, error) {
	return b.run(src, true)
}

func (b *IndexBuilder) run(src port.DocumentSource, force bool) (domain.BuildStats, error) {
	var stats domain.BuildStats

	stored, found, err := b.docs.GetIndexSignature()
	if err != nil {
		return stats, fmt.Errorf("failed to read index signature: %w", err)
	}

	signatureDrift := false
	switch {
	case !found:
		// First run. Persist immediately; incremental logic applies.
		if err := b.docs.SetIndexSignature(b.signature); err != nil {
			return stats, fmt.Errorf("failed to persist index signature: %w", err)
		}
	case stored != b.signature:
		// Model or chunking parameters changed; the whole index is
		// stale. The new signature is persisted only after a clean
		// rebuild so an interrupted run retries everything.
		signatureDrift = true
		force = true
	}

	for {
		doc, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// No document to blame yet; the error text carries the
			// source position.
			stats.Errors = append(stats.Errors, domain.BuildError{DocID: sourceErrID, Err: err.Error()})
			continue
		}

		stats.Total++

		if !force {
			storedSum, known, err := b.docs.GetChecksum(doc.ID)
			if err != nil {
				stats.Errors = append(stats.Errors, domain.BuildError{DocID: doc.ID, Err: err.Error()})
				continue
			}
			if !ShouldProcess(storedSum, known, doc.Checksum) {
				stats.Skipped++
				if b.progress != nil {
					b.progress(doc.ID, false)
				}
				continue
			}
		}

		added, deleted, err := b.processDocument(doc)
		if err != nil {
			stats.Errors = append(stats.Errors, domain.BuildError{DocID: doc.ID, Err: err.Error()})
			continue
		}

		stats.Indexed++
		stats.ChunksAdded += added
		stats.ChunksDeleted += deleted
		if b.progress != nil {
			b.progress(doc.ID, true)
		}
	}

	if signatureDrift && len(stats.Errors) == 0 {
		if err := b.docs.SetIndexSignature(b.signature); err != nil {
			return stats, fmt.Errorf("failed to persist index signature: %w", err)
		}
	}

	return stats, nil
}

// processDocument replaces a document's chunk set. Ordering matters:
// stale chunks are deleted and new chunks upserted before the document
// record is committed, so an interruption leaves the old checksum in
// place and the document is retried next run.
func (b *IndexBuilder) processDocument(doc domain.Document) (added, deleted int, err error) {
	chunks, err := b.chunker.Split(doc)
	if err != nil {
		return 0, 0, fmt.Errorf("chunking failed: %w", err)
	}

	if err := b.embedChunks(chunks); err != nil {
		return 0, 0, err
	}

	oldIDs, err := b.docs.GetChunkIDs(doc.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read chunk ids: %w", err)
	}

	newIDs := make([]string, len(chunks))
	newSet := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		newIDs[i] = c.ID
		newSet[c.ID] = struct{}{}
	}

	var stale []string
	for _, id := range oldIDs {
		if _, keep := newSet[id]; !keep {
			stale = append(stale, id)
		}
	}

	if len(stale) > 0 {
		if err := b.vectors.Delete(stale); err != nil {
			return 0, 0, fmt.Errorf("failed to delete stale chunks: %w", err)
		}
	}
	if len(chunks) > 0 {
		if err := b.vectors.Upsert(chunks); err != nil {
			return 0, 0, fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}

	state := domain.DocState{
		DocID:    doc.ID,
		Path:     doc.Path,
		Title:    doc.Title,
		Version:  doc.Version,
		Checksum: doc.Checksum,
		ChunkIDs: newIDs,
	}
	if err := b.docs.UpsertDocument(state); err != nil {
		return 0, 0, fmt.Errorf("failed to commit document state: %w", err)
	}

	return len(chunks), len(stale), nil
}

// embedChunks fills embeddings in place, batched to bound payload size
// against the embedding backend.
func (b *IndexBuilder) embedChunks(chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Content
		}

		vectors, err := b.embedder.Embed(texts)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedding returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i := start; i < end; i++ {
			chunks[i].Embedding = vectors[i-start]
		}
	}
	return nil
}
