package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"pdf_rag/internal/chunker"
	"pdf_rag/internal/config"
	"pdf_rag/internal/embedding"
	"pdf_rag/internal/extract"
	"pdf_rag/internal/index"
	"pdf_rag/internal/store"
)

// App owns the query-side snapshot (embedder, index, store) and runs
// ingestion. It is built once and handed to the HTTP layer and the REPL.
type App struct {
	cfg        *config.Config
	logger     arbor.ILogger
	chunker    *chunker.WordChunker
	extractors *extract.Factory

	// newEmbedder is swapped in tests
	newEmbedder func(ctx context.Context) (embedding.Embedder, error)

	mu       sync.RWMutex
	snap     *snapshot
	notReady error
}

// snapshot is immutable once published.
type snapshot struct {
	embedder embedding.Embedder
	index    *index.Index
	store    *store.Store
}

func New(cfg *config.Config, logger arbor.ILogger) (*App, error) {
	wc, err := chunker.NewWordChunker(chunker.Config{
		ChunkSize:           cfg.ChunkSize,
		MinChars:            cfg.MinChunkChars,
		BoilerplatePatterns: cfg.BoilerplatePatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		chunker:    wc,
		extractors: extract.NewFactory(),
		notReady:   errors.New("not initialised"),
	}
	a.newEmbedder = func(ctx context.Context) (embedding.Embedder, error) {
		return embedding.New(ctx, cfg, logger)
	}
	return a, nil
}

// Init loads the persisted index and chunk store for querying. Only a corrupt
// index is returned as an error; any other failure leaves the App not ready
// with the cause available from Ready.
func (a *App) Init(ctx context.Context) error {
	snap, err := a.load(ctx)
	if err != nil {
		if errors.Is(err, index.ErrIndexCorrupt) {
			a.setNotReady(err)
			return err
		}
		a.logger.Warn().Err(err).Msg("Service not ready")
		a.setNotReady(err)
		return nil
	}
	a.publish(snap)
	return nil
}

// Reload builds a fresh snapshot from disk and swaps it in. The previous
// snapshot stays in place when loading fails.
func (a *App) Reload(ctx context.Context) error {
	snap, err := a.load(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Reload failed, keeping current snapshot")
		return err
	}
	a.publish(snap)
	return nil
}

// Ready returns nil when queries can be served, otherwise the reason.
func (a *App) Ready() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snap == nil {
		return a.notReady
	}
	return nil
}

// Rows is the number of indexed chunks; zero when not ready.
func (a *App) Rows() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snap == nil {
		return 0
	}
	return a.snap.index.Count()
}

func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snap == nil {
		return nil
	}
	err := a.snap.store.Close()
	a.snap = nil
	a.notReady = errors.New("closed")
	return err
}

func (a *App) load(ctx context.Context) (*snapshot, error) {
	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	ix := index.New(a.logger)
	if err := ix.Load(a.cfg.IndexPath()); err != nil {
		return nil, err
	}
	if ix.Dimension() != embedder.Dimension() {
		return nil, fmt.Errorf("%w: index dimension %d, embedder %s produces %d",
			index.ErrIndexCorrupt, ix.Dimension(), embedder.Name(), embedder.Dimension())
	}
	if m := ix.Manifest(); m.Embedder != "" && m.Embedder != embedder.Name() {
		a.logger.Warn().Str("index", m.Embedder).Str("current", embedder.Name()).Msg("Index was built with a different embedder")
	}

	st, err := store.Open(a.cfg.ChunksPath(), a.logger)
	if err != nil {
		return nil, err
	}
	if st.Count() != ix.Count() {
		st.Close()
		return nil, fmt.Errorf("%w: chunk store has %d records, index has %d rows",
			index.ErrIndexCorrupt, st.Count(), ix.Count())
	}

	a.logger.Info().Int("rows", ix.Count()).Str("embedder", embedder.Name()).Msg("Service ready")
	return &snapshot{embedder: embedder, index: ix, store: st}, nil
}

func (a *App) publish(snap *snapshot) {
	a.mu.Lock()
	old := a.snap
	a.snap = snap
	a.notReady = nil
	a.mu.Unlock()

	if old != nil {
		if err := old.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close previous chunk store")
		}
	}
}

func (a *App) setNotReady(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap = nil
	a.notReady = err
}

func (a *App) current() *snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}
