package port

// LLM represents a language model for text generation.
type LLM interface {
	// Generate generates text based on the prompt.
	Generate(prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Reranker scores query-document pairs with a secondary, more
// expensive relevance signal.
type Reranker interface {
	// Rerank scores and reorders chunk texts based on query relevance.
	// Returns results sorted by relevance score (highest first).
	Rerank(query string, chunkTexts []string) ([]RerankedResult, error)
}

// RerankedResult represents a reranked document.
type RerankedResult struct {
	Index int     // Original index in the input slice
	Score float64 // Relevance score (higher is better)
}
