// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"pdf_rag/internal/config"
)

// Embedder encodes texts into vectors of a fixed dimension.
type Embedder interface {
	Name() string
	Dimension() int
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the embedder selected by cfg.Embedder. Remote embedders without a
// configured dimension are probed once to learn it.
func New(ctx context.Context, cfg *config.Config, logger arbor.ILogger) (Embedder, error) {
	switch strings.ToLower(cfg.Embedder) {
	case config.EmbedderHash:
		return NewHash(cfg.EmbeddingDim)
	case config.EmbedderOllama:
		return NewOllama(ctx, OllamaConfig{
			URL:       cfg.OllamaURL,
			Model:     cfg.OllamaEmbedModel,
			Dimension: cfg.EmbeddingDim,
		}, logger)
	case config.EmbedderOpenAI:
		return NewOpenAI(ctx, OpenAIConfig{
			APIKey:    cfg.OpenAIKey,
			Model:     cfg.OpenAIEmbedModel,
			Dimension: cfg.EmbeddingDim,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", config.ErrConfiguration, cfg.Embedder)
	}
}

// EncodeOne encodes a single text.
func EncodeOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%s: expected 1 vector, got %d", e.Name(), len(vectors))
	}
	return vectors[0], nil
}

// probe learns the output dimension of a remote model.
func probe(ctx context.Context, e Embedder) (int, error) {
	v, err := EncodeOne(ctx, e, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe %s dimension: %w", e.Name(), err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("probe %s dimension: empty vector", e.Name())
	}
	return len(v), nil
}

func checkDimension(name string, vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%s: vector %d has dimension %d, want %d", name, i, len(v), dim)
		}
	}
	return nil
}
