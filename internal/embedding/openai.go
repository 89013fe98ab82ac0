package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/ternarybob/arbor"
)

type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// OpenAI embeds through the OpenAI embeddings API in one request per batch.
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

func NewOpenAI(ctx context.Context, cfg OpenAIConfig, logger arbor.ILogger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: OPENAI_API_KEY is not set")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := openai.EmbeddingModel(cfg.Model)
	if model == "" {
		model = openai.SmallEmbedding3
	}

	e := &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		dim:    cfg.Dimension,
	}
	if e.dim == 0 {
		switch model {
		case openai.SmallEmbedding3, openai.AdaEmbeddingV2:
			e.dim = 1536
		case openai.LargeEmbedding3:
			e.dim = 3072
		default:
			dim, err := probe(ctx, e)
			if err != nil {
				return nil, err
			}
			e.dim = dim
		}
	}
	logger.Info().Str("model", string(model)).Int("dimension", e.dim).Msg("OpenAI embedder ready")
	return e, nil
}

func (e *OpenAI) Name() string {
	return "openai:" + string(e.model)
}

func (e *OpenAI) Dimension() int {
	return e.dim
}

func (e *OpenAI) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(out) {
			out[data.Index] = data.Embedding
		}
	}
	if e.dim > 0 {
		if err := checkDimension(e.Name(), out, e.dim); err != nil {
			return nil, err
		}
	}
	return out, nil
}
