package embedding

// MockEmbedder produces deterministic pseudo-embeddings for tests and
// offline runs: each character contributes to the vector position
// matching its index, so distinct texts map to distinct directions.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		for j, r := range text {
			vec[j%e.dimension] += float32(r) / 1000.0
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
