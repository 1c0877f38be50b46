package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewGeminiLLM_MissingKey(t *testing.T) {
	t.Setenv("KB_TEST_EMPTY_KEY", "")

	_, err := NewGeminiLLM("KB_TEST_EMPTY_KEY", "gemini-1.5-flash", 0.3, 1024, 60)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func newTestLLM(t *testing.T, serverURL string) *GeminiLLM {
	t.Helper()
	t.Setenv("KB_TEST_API_KEY", "test-key")

	g, err := NewGeminiLLM("KB_TEST_API_KEY", "gemini-1.5-flash", 0.3, 256, 10)
	if err != nil {
		t.Fatal(err)
	}
	g.baseURL = serverURL
	g.retryDelay = time.Millisecond
	return g
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("unexpected prompt payload: %+v", req.Contents)
		}
		if req.GenerationConfig.MaxOutputTokens != 256 {
			t.Errorf("expected maxOutputTokens 256, got %d", req.GenerationConfig.MaxOutputTokens)
		}

		json.NewEncoder(w).Encode(generateResponse{
			Candidates: []candidate{{
				Content: content{Parts: []part{{Text: "  answer text\n"}}},
			}},
		})
	}))
	defer srv.Close()

	g := newTestLLM(t, srv.URL)

	text, err := g.Generate("hello")
	if err != nil {
		t.Fatal(err)
	}
	if text != "answer text" {
		t.Errorf("expected trimmed completion, got %q", text)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{})
	}))
	defer srv.Close()

	g := newTestLLM(t, srv.URL)

	if _, err := g.Generate("hello"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{
			Candidates: []candidate{{
				Content: content{Parts: []part{{Text: "ok"}}},
			}},
		})
	}))
	defer srv.Close()

	g := newTestLLM(t, srv.URL)

	text, err := g.Generate("hello")
	if err != nil {
		t.Fatal(err)
	}
	if text != "ok" || calls != 2 {
		t.Errorf("expected success on second attempt, got %q after %d calls", text, calls)
	}
}
