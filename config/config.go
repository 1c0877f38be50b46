package config

import (
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the knowledge-base tool.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Citation  CitationConfig  `yaml:"citation"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkingConfig holds document chunking parameters. All three values
// are part of the index signature: changing any of them invalidates
// the whole index.
type ChunkingConfig struct {
	MaxSectionChars int `yaml:"max_section_chars"`
	ChunkSize       int `yaml:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Model     string `yaml:"model"`       // e.g., "text-embedding-004"
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// LLMConfig holds generation configuration.
type LLMConfig struct {
	Model          string  `yaml:"model"` // e.g., "gemini-1.5-flash"
	APIKeyEnv      string  `yaml:"api_key_env"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK             int     `yaml:"top_k"`
	Alpha            float64 `yaml:"alpha"`     // semantic weight in hybrid fusion (0..1)
	MinScore         float64 `yaml:"min_score"` // filter merged results below this score (0 = disabled)
	RerankEnabled    bool    `yaml:"rerank_enabled"`
	RerankCandidates int     `yaml:"rerank_candidates"`
}

// CitationConfig holds citation alignment configuration.
type CitationConfig struct {
	MinOverlap float64 `yaml:"min_overlap"` // sentence/chunk token overlap needed for support
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxSectionChars: 2000,
			ChunkSize:       500,
			ChunkOverlap:    80,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-004",
			APIKeyEnv: "GEMINI_API_KEY",
			Dimension: 768,
			BatchSize: 32,
		},
		LLM: LLMConfig{
			Model:          "gemini-1.5-flash",
			APIKeyEnv:      "GEMINI_API_KEY",
			Temperature:    0.3,
			MaxTokens:      1024,
			TimeoutSeconds: 60,
		},
		Retrieve: RetrieveConfig{
			TopK:             8,
			Alpha:            0.7,
			MinScore:         0,
			RerankEnabled:    false,
			RerankCandidates: 50,
		},
		Citation: CitationConfig{
			MinOverlap: 0.35,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// envVarPattern matches ${VAR:-default} and ${VAR-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^:}]+):?-?([^}]*)\}`)

// expandEnv expands ${VAR:-default} references against the process
// environment.
func expandEnv(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(m string) string {
		groups := envVarPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for kb.yaml,
// then .kb/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "kb.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".kb", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".kb", "index.db")
}

// EnsureKBDir ensures the .kb directory exists.
func EnsureKBDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".kb"), 0755)
}
