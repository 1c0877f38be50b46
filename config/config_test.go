package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunking.ChunkSize != 500 {
		t.Errorf("expected ChunkSize=500, got %d", cfg.Chunking.ChunkSize)
	}
	if cfg.Chunking.MaxSectionChars != 2000 {
		t.Errorf("expected MaxSectionChars=2000, got %d", cfg.Chunking.MaxSectionChars)
	}
	if cfg.Embedding.BatchSize != 32 {
		t.Errorf("expected BatchSize=32, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Retrieve.Alpha != 0.7 {
		t.Errorf("expected Alpha=0.7, got %f", cfg.Retrieve.Alpha)
	}
	if cfg.Retrieve.TopK != 8 {
		t.Errorf("expected TopK=8, got %d", cfg.Retrieve.TopK)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kb.yaml")

	content := `
chunking:
  chunk_size: 256
  chunk_overlap: 0
retrieve:
  top_k: 10
  alpha: 0.5
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunking.ChunkSize != 256 {
		t.Errorf("expected ChunkSize=256, got %d", cfg.Chunking.ChunkSize)
	}
	if cfg.Chunking.ChunkOverlap != 0 {
		t.Errorf("expected ChunkOverlap=0, got %d", cfg.Chunking.ChunkOverlap)
	}
	if cfg.Retrieve.Alpha != 0.5 {
		t.Errorf("expected Alpha=0.5, got %f", cfg.Retrieve.Alpha)
	}
	// Untouched sections keep defaults.
	if cfg.Embedding.Model != "text-embedding-004" {
		t.Errorf("expected default embedding model, got %s", cfg.Embedding.Model)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kb.yaml")

	content := `
embedding:
  model: ${KB_TEST_EMB_MODEL:-fallback-model}
llm:
  model: ${KB_TEST_LLM_MODEL:-gemini-1.5-flash}
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KB_TEST_EMB_MODEL", "text-embedding-004")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.Model != "text-embedding-004" {
		t.Errorf("expected env value, got %s", cfg.Embedding.Model)
	}
	if cfg.LLM.Model != "gemini-1.5-flash" {
		t.Errorf("expected default fallback, got %s", cfg.LLM.Model)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kb.yaml")

	content := `
retrieve:
  top_k: 15
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieve.TopK != 15 {
		t.Errorf("expected TopK=15, got %d", cfg.Retrieve.TopK)
	}
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieve.TopK != DefaultConfig().Retrieve.TopK {
		t.Error("expected defaults when no config file present")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kb.yaml")

	cfg := DefaultConfig()
	cfg.Chunking.ChunkSize = 300

	if err := cfg.Save(configPath); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Chunking.ChunkSize != 300 {
		t.Errorf("expected ChunkSize=300 after round trip, got %d", loaded.Chunking.ChunkSize)
	}
}
