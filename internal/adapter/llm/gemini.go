package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when the configured environment variable
// holds no API key.
var ErrMissingAPIKey = errors.New("missing API key")

// ErrEmptyCompletion is returned when the model responds without any
// usable text, for example when generation was blocked.
var ErrEmptyCompletion = errors.New("model returned no completion")

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const defaultRetryDelay = 500 * time.Millisecond

// GeminiLLM generates answers via the Gemini generateContent API.
type GeminiLLM struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
	retryDelay  time.Duration
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiLLM creates a generator reading its credential from the
// named environment variable. An empty credential fails immediately
// with ErrMissingAPIKey.
func NewGeminiLLM(apiKeyEnv, model string, temperature float64, maxTokens, timeoutSeconds int) (*GeminiLLM, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: environment variable %s is empty", ErrMissingAPIKey, apiKeyEnv)
	}

	if model == "" {
		model = "gemini-1.5-flash"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}

	return &GeminiLLM{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		retryDelay:  defaultRetryDelay,
	}, nil
}

// Generate produces a completion for the prompt.
func (g *GeminiLLM) Generate(prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: g.maxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	body, err := postWithRetry(g.client, url, jsonData, g.retryDelay)
	if err != nil {
		return "", err
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if genResp.Error != nil {
		return "", fmt.Errorf("API error: %s", genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 {
		return "", ErrEmptyCompletion
	}

	var sb strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}

	return text, nil
}

// ModelName returns the configured model identifier.
func (g *GeminiLLM) ModelName() string {
	return g.model
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
