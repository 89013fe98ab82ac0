package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/ternarybob/arbor"
)

type OllamaConfig struct {
	URL       string
	Model     string
	Dimension int
}

// Ollama embeds through a local Ollama server using chromem-go's client.
type Ollama struct {
	cfg    OllamaConfig
	fn     chromem.EmbeddingFunc
	client *http.Client
	logger arbor.ILogger
}

// NewOllama makes sure the model is available and learns its dimension when
// none is configured.
func NewOllama(ctx context.Context, cfg OllamaConfig, logger arbor.ILogger) (*Ollama, error) {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	o := &Ollama{
		cfg:    cfg,
		fn:     chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.URL+"/api"),
		client: http.DefaultClient,
		logger: logger,
	}

	if err := o.ensureModel(ctx); err != nil {
		return nil, err
	}
	if o.cfg.Dimension == 0 {
		dim, err := probe(ctx, o)
		if err != nil {
			return nil, err
		}
		o.cfg.Dimension = dim
	}
	logger.Info().Str("model", cfg.Model).Int("dimension", o.cfg.Dimension).Msg("Ollama embedder ready")
	return o, nil
}

func (o *Ollama) Name() string {
	return "ollama:" + o.cfg.Model
}

func (o *Ollama) Dimension() int {
	return o.cfg.Dimension
}

func (o *Ollama) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := o.fn(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		out = append(out, v)
	}
	if o.cfg.Dimension > 0 {
		if err := checkDimension(o.Name(), out, o.cfg.Dimension); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ensureModel checks that the server is up and pulls the model if missing.
func (o *Ollama) ensureModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.URL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama is not reachable at %s: %w", o.cfg.URL, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read ollama tags: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama is not reachable at %s: status %d", o.cfg.URL, resp.StatusCode)
	}
	if bytes.Contains(body, []byte(o.cfg.Model)) {
		o.logger.Debug().Str("model", o.cfg.Model).Msg("Model is available")
		return nil
	}

	o.logger.Info().Str("model", o.cfg.Model).Msg("Model not found, pulling")
	payload, err := json.Marshal(map[string]any{"name": o.cfg.Model, "stream": false})
	if err != nil {
		return err
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.URL+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	pull, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("pull model %s: %w", o.cfg.Model, err)
	}
	defer pull.Body.Close()
	if pull.StatusCode != http.StatusOK {
		return fmt.Errorf("pull model %s: status %d", o.cfg.Model, pull.StatusCode)
	}
	o.logger.Info().Str("model", o.cfg.Model).Msg("Model pulled")
	return nil
}
