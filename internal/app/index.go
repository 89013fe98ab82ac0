package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"pdf_rag/internal/config"
	"pdf_rag/internal/index"
	"pdf_rag/internal/store"
)

// Report summarises one ingestion run.
type Report struct {
	RunID     string
	Documents int
	Skipped   int
	Pages     int
	Chunks    int
	Duration  time.Duration
}

// Ingest rebuilds the chunk store and the vector index from every supported
// document in the documents directory. Each page batch is appended to both;
// afterwards their counts must agree or the run stops with ErrIndexCorrupt.
func (a *App) Ingest(ctx context.Context) (*Report, error) {
	start := time.Now()

	info, err := os.Stat(a.cfg.DocumentsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: documents directory %s: %v", config.ErrConfiguration, a.cfg.DocumentsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", config.ErrConfiguration, a.cfg.DocumentsDir)
	}
	if err := os.MkdirAll(a.cfg.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	st, err := store.Open(a.cfg.ChunksPath(), a.logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	if err := st.Reset(); err != nil {
		return nil, err
	}

	indexPath := a.cfg.IndexPath()
	ix := index.New(a.logger)
	if err := ix.Reset(indexPath); err != nil {
		return nil, err
	}
	if err := ix.OpenOrCreate(ctx, indexPath, embedder.Dimension()); err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString()}
	ix.SetProvenance(embedder.Name(), report.RunID)

	paths, err := a.extractors.Discover(a.cfg.DocumentsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", config.ErrConfiguration, a.cfg.DocumentsDir, err)
	}

	a.logger.Info().
		Str("run_id", report.RunID).
		Str("dir", a.cfg.DocumentsDir).
		Int("documents", len(paths)).
		Str("embedder", embedder.Name()).
		Msg("Ingestion started")

	w := &writer{embedder: embedder, index: ix, store: st}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := a.ingestDocument(ctx, path, w, report); err != nil {
			if !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Str("run_id", report.RunID).Str("file", path).Msg("Ingestion aborted")
			}
			return report, err
		}
	}

	if err := ix.Persist(indexPath); err != nil {
		return report, fmt.Errorf("persist index: %w", err)
	}

	report.Duration = time.Since(start)
	a.logger.Info().
		Str("run_id", report.RunID).
		Int("documents", report.Documents).
		Int("skipped", report.Skipped).
		Int("pages", report.Pages).
		Int("chunks", report.Chunks).
		Str("duration", report.Duration.Round(time.Millisecond).String()).
		Msg("Ingestion finished")
	return report, nil
}
