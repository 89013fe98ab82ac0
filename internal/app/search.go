package app

import (
	"context"
	"fmt"

	"pdf_rag/internal/embedding"
)

const (
	StatusNotReady  = "Layanan tidak siap. Silakan periksa log server."
	StatusNoResults = "Maaf, tidak ada informasi relevan yang ditemukan."
)

// SearchResult is one retrieved chunk with its distance to the query.
type SearchResult struct {
	Row        int
	SourceFile string
	Page       int
	Content    string
	Distance   float32
}

// FindRelevant embeds query and returns up to topK chunks ordered by
// ascending distance. The status is empty when results are found, otherwise
// one of StatusNotReady or StatusNoResults. topK <= 0 uses the configured
// default; larger values are capped at MaxTopK.
func (a *App) FindRelevant(ctx context.Context, query string, topK int) (string, []SearchResult, error) {
	if topK <= 0 {
		topK = a.cfg.TopK
	}
	if a.cfg.MaxTopK > 0 && topK > a.cfg.MaxTopK {
		topK = a.cfg.MaxTopK
	}

	snap := a.current()
	if snap == nil {
		return StatusNotReady, nil, nil
	}

	vector, err := embedding.EncodeOne(ctx, snap.embedder, query)
	if err != nil {
		return StatusNotReady, nil, fmt.Errorf("embed query: %w", err)
	}

	neighbors, err := snap.index.Search(ctx, vector, topK)
	if err != nil {
		return StatusNotReady, nil, fmt.Errorf("search: %w", err)
	}

	rows := make([]int, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Found {
			rows = append(rows, n.Row)
		}
	}

	records, err := snap.store.ReadRows(rows)
	if err != nil {
		return StatusNotReady, nil, fmt.Errorf("read chunks: %w", err)
	}

	var results []SearchResult
	for _, n := range neighbors {
		if !n.Found {
			continue
		}
		rec, ok := records[n.Row]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Row:        n.Row,
			SourceFile: rec.SourceFile,
			Page:       rec.Page,
			Content:    rec.Content,
			Distance:   n.Distance,
		})
	}

	if len(results) == 0 {
		return StatusNoResults, nil, nil
	}

	a.logger.Debug().Str("query", query).Int("top_k", topK).Int("results", len(results)).Msg("Query answered")
	return "", results, nil
}
