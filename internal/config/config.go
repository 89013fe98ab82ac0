package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v10"
)

// ErrConfiguration marks configuration that cannot be used, e.g. a missing source directory.
var ErrConfiguration = errors.New("configuration error")

const (
	EmbedderOllama = "ollama"
	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"
)

type Config struct {
	DocumentsDir string `env:"DOCUMENTS_DIR" envDefault:"./documents"`
	LogsDir      string `env:"LOGS_DIR" envDefault:"./logs"`
	DataDir      string `env:"DATA_DIR" envDefault:"./data"`
	IndexFile    string `env:"INDEX_FILE" envDefault:"document_index.gob.gz"`
	ChunksFile   string `env:"CHUNKS_FILE" envDefault:"chunks.txt"`

	ChunkSize           int      `env:"CHUNK_SIZE" envDefault:"15"`
	MinChunkChars       int      `env:"MIN_CHUNK_CHARS" envDefault:"10"`
	BoilerplatePatterns []string `env:"BOILERPLATE_PATTERNS" envSeparator:";"`
	TopK                int      `env:"TOP_K" envDefault:"3"`
	MaxTopK             int      `env:"MAX_TOP_K" envDefault:"50"`

	Embedder         string `env:"EMBEDDER" envDefault:"ollama"`
	EmbeddingDim     int    `env:"EMBEDDING_DIM" envDefault:"0"`
	OllamaURL        string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbedModel string `env:"OLLAMA_EMBED_MODEL" envDefault:"all-minilm"`
	OpenAIKey        string `env:"OPENAI_API_KEY"`
	OpenAIEmbedModel string `env:"OPENAI_EMBED_MODEL" envDefault:"text-embedding-3-small"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:5000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

func Init(cfg interface{}) error {
	return env.Parse(cfg)
}

// Load parses the environment into a fresh Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := Init(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: CHUNK_SIZE must be >= 1, got %d", ErrConfiguration, c.ChunkSize)
	}
	if c.MinChunkChars < 0 {
		return fmt.Errorf("%w: MIN_CHUNK_CHARS must be >= 0, got %d", ErrConfiguration, c.MinChunkChars)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: TOP_K must be >= 1, got %d", ErrConfiguration, c.TopK)
	}
	if c.MaxTopK < c.TopK {
		return fmt.Errorf("%w: MAX_TOP_K must be >= TOP_K (%d), got %d", ErrConfiguration, c.TopK, c.MaxTopK)
	}
	if c.EmbeddingDim < 0 {
		return fmt.Errorf("%w: EMBEDDING_DIM must be >= 0, got %d", ErrConfiguration, c.EmbeddingDim)
	}
	switch strings.ToLower(c.Embedder) {
	case EmbedderOllama, EmbedderOpenAI:
	case EmbedderHash:
		if c.EmbeddingDim == 0 {
			return fmt.Errorf("%w: EMBEDDER=hash needs EMBEDDING_DIM", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown EMBEDDER %q", ErrConfiguration, c.Embedder)
	}
	for _, p := range c.BoilerplatePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: bad boilerplate pattern %q: %v", ErrConfiguration, p, err)
		}
	}
	return nil
}

func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, c.IndexFile)
}

func (c *Config) ChunksPath() string {
	return filepath.Join(c.DataDir, c.ChunksFile)
}
