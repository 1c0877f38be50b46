package domain

// Document is one cleaned record produced by the documentation cleaner.
// ID is stable across runs; Checksum covers title, version, frontmatter
// and content, so any semantic change to the document changes it.
type Document struct {
	ID          string         `json:"id"`
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Version     string         `json:"version"`
	Checksum    string         `json:"checksum"`
	Content     string         `json:"content"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// Chunk is the atomic unit of retrieval: one contiguous slice of a
// document's text plus its embedding.
type Chunk struct {
	ID          string
	DocID       string
	Index       int
	HeadingPath []string
	Content     string
	Embedding   []float32
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// DocState is the persisted per-document record. ChunkIDs reflects
// exactly the chunk set of the latest indexing pass.
type DocState struct {
	DocID    string   `json:"doc_id"`
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Version  string   `json:"version"`
	Checksum string   `json:"checksum"`
	ChunkIDs []string `json:"chunk_ids"`
}

// Citation points an answer at one supporting source document.
type Citation struct {
	ID          int      `json:"id"`
	ChunkID     string   `json:"chunk_id"`
	DocID       string   `json:"doc_id"`
	Title       string   `json:"title"`
	Path        string   `json:"path"`
	HeadingPath []string `json:"heading_path"`
	Score       float64  `json:"score"`
}

type BuildError struct {
	DocID string `json:"doc_id"`
	Err   string `json:"error"`
}

// BuildStats summarizes one indexing run.
type BuildStats struct {
	Total         int          `json:"total"`
	Indexed       int          `json:"indexed"`
	Skipped       int          `json:"skipped"`
	ChunksAdded   int          `json:"chunks_added"`
	ChunksDeleted int          `json:"chunks_deleted"`
	Errors        []BuildError `json:"errors,omitempty"`
}

// Stats holds corpus-wide counters used for lexical scoring.
type Stats struct {
	TotalChunks int `json:"total_chunks"`
	TotalTokens int `json:"total_tokens"`
}

// AvgChunkLen returns the average chunk length in tokens.
func (s Stats) AvgChunkLen() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.TotalTokens) / float64(s.TotalChunks)
}

// Answer is the result of the ask pipeline.
type Answer struct {
	Text                   string     `json:"answer"`
	Citations              []Citation `json:"citations"`
	HasSufficientKnowledge bool       `json:"has_sufficient_knowledge"`
	Model                  string     `json:"model,omitempty"`
	ElapsedMs              int64      `json:"elapsed_ms"`
}
