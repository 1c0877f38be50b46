package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// signaturePayload is marshaled with keys in sorted order (struct
// field order below), so equal inputs always produce equal signatures.
type signaturePayload struct {
	Chunking struct {
		ChunkOverlap    int `json:"chunk_overlap"`
		ChunkSize       int `json:"chunk_size"`
		MaxSectionChars int `json:"max_section_chars"`
	} `json:"chunking"`
	EmbeddingDim   int    `json:"embedding_dim"`
	EmbeddingModel string `json:"embedding_model"`
}

// ComputeSignature fingerprints the embedding model identity, its
// dimensionality and the chunking parameters. Any change to these
// invalidates every stored chunk, not just changed documents, and
// forces a full rebuild.
func ComputeSignature(embeddingModel string, embeddingDim, chunkSize, chunkOverlap, maxSectionChars int) string {
	var payload signaturePayload
	payload.Chunking.ChunkOverlap = chunkOverlap
	payload.Chunking.ChunkSize = chunkSize
	payload.Chunking.MaxSectionChars = maxSectionChars
	payload.EmbeddingDim = embeddingDim
	payload.EmbeddingModel = embeddingModel

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
