package embedding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrMissingAPIKey is returned when the configured credential
// environment variable is empty. This is a fatal configuration error
// raised at construction, never deferred to the first request.
var ErrMissingAPIKey = errors.New("missing API key")

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// maxAPIBatch is the backend's per-request input limit; config batch
// sizes above it are still split.
const maxAPIBatch = 100

// GeminiEmbedder generates embeddings via the Gemini batch embedding
// API.
type GeminiEmbedder struct {
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	batchSize  int
	client     *http.Client
	retryDelay time.Duration
}

type embedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type embedContentRequest struct {
	Model   string       `json:"model"`
	Content embedContent `json:"content"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embeddings []embeddingValues `json:"embeddings"`
	Error      *apiError         `json:"error,omitempty"`
}

type embeddingValues struct {
	Values []float32 `json:"values"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiEmbedder creates an embedder reading its credential from
// the named environment variable. An empty credential fails
// immediately with ErrMissingAPIKey.
func NewGeminiEmbedder(apiKeyEnv, model string, dimension, batchSize int) (*GeminiEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrMissingAPIKey, apiKeyEnv)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	if batchSize <= 0 || batchSize > maxAPIBatch {
		batchSize = 32
	}

	return &GeminiEmbedder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		dimension:  dimension,
		batchSize:  batchSize,
		client:     &http.Client{Timeout: 60 * time.Second},
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// Embed generates embeddings for the given texts, batched to bound
// request payloads against the backend.
func (e *GeminiEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := e.embedBatch(texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

func (e *GeminiEmbedder) embedBatch(texts []string) ([][]float32, error) {
	modelID := "models/" + e.model
	reqBody := embedRequest{Requests: make([]embedContentRequest, len(texts))}
	for i, text := range texts {
		reqBody.Requests[i] = embedContentRequest{
			Model:   modelID,
			Content: embedContent{Parts: []embedPart{{Text: text}}},
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", e.baseURL, modelID, e.apiKey)
	body, err := postWithRetry(e.client, url, jsonData, e.retryDelay)
	if err != nil {
		return nil, err
	}

	var embResp embedResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}
	if len(embResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embResp.Embeddings))
	}

	embeddings := make([][]float32, len(texts))
	for i, emb := range embResp.Embeddings {
		if len(emb.Values) != e.dimension {
			return nil, fmt.Errorf("embedding %d has %d dims, expected %d", i, len(emb.Values), e.dimension)
		}
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}

// Dimension returns the embedding vector dimension.
func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

// postWithRetry posts JSON with bounded retries: transient failures
// (network errors, 429, 5xx) back off exponentially for up to three
// attempts; other 4xx statuses fail immediately.
func postWithRetry(client *http.Client, url string, jsonData []byte, baseDelay time.Duration) ([]byte, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(baseDelay << (attempt - 1))
		}

		resp, err := client.Post(url, "application/json", bytes.NewReader(jsonData))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		statusErr := fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = statusErr
			continue
		}
		return nil, statusErr
	}

	return nil, lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
