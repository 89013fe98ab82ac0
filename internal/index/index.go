// Package index wraps a chromem-go collection as a row-addressed vector index.
// Document IDs are decimal row numbers starting at zero, so row r of the
// index lines up with line r of the chunk store.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/ternarybob/arbor"
)

var (
	ErrIndexCorrupt = errors.New("index corrupt")
	ErrNotReady     = errors.New("index not ready")
)

const collectionName = "rows"

// MaxTopK bounds the number of slots one Search returns.
const MaxTopK = 1000

// Neighbor is one search slot. Found is false for padding slots when the
// index holds fewer than topK rows.
type Neighbor struct {
	Row      int
	Distance float32
	Found    bool
}

type Index struct {
	logger arbor.ILogger

	mu       sync.RWMutex
	db       *chromem.DB
	coll     *chromem.Collection
	manifest Manifest
}

func New(logger arbor.ILogger) *Index {
	return &Index{logger: logger}
}

// OpenOrCreate loads the index at path when it exists, otherwise starts an
// empty one. A persisted index of another dimension is ErrIndexCorrupt.
func (ix *Index) OpenOrCreate(ctx context.Context, path string, dimension int) error {
	if dimension < 1 {
		return fmt.Errorf("%w: dimension must be >= 1, got %d", ErrNotReady, dimension)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := ix.Load(path); err != nil {
			return err
		}
		if got := ix.Dimension(); got != dimension {
			ix.clear()
			return fmt.Errorf("%w: persisted dimension %d, expected %d", ErrIndexCorrupt, got, dimension)
		}
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	db := chromem.NewDB()
	coll, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	ix.mu.Lock()
	ix.db = db
	ix.coll = coll
	ix.manifest = Manifest{Dimension: dimension}
	ix.mu.Unlock()

	ix.logger.Info().Str("path", path).Int("dimension", dimension).Msg("Created empty vector index")
	return nil
}

// Load replaces the in-memory index with the persisted one at path.
func (ix *Index) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	manifest, err := readManifest(path)
	if err != nil {
		return err
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(path, "", collectionName); err != nil {
		return fmt.Errorf("%w: import %s: %v", ErrIndexCorrupt, path, err)
	}
	coll := db.GetCollection(collectionName, nil)
	if coll == nil {
		return fmt.Errorf("%w: collection %q missing from %s", ErrIndexCorrupt, collectionName, path)
	}
	if coll.Count() != manifest.Count {
		return fmt.Errorf("%w: %s holds %d rows, manifest says %d", ErrIndexCorrupt, path, coll.Count(), manifest.Count)
	}

	ix.mu.Lock()
	ix.db = db
	ix.coll = coll
	ix.manifest = manifest
	ix.mu.Unlock()

	ix.logger.Info().
		Str("path", path).
		Int("rows", manifest.Count).
		Int("dimension", manifest.Dimension).
		Str("run_id", manifest.RunID).
		Msg("Loaded vector index")
	return nil
}

// Add appends vectors as consecutive rows and returns the first new row.
func (ix *Index) Add(ctx context.Context, vectors [][]float32) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.coll == nil {
		return 0, ErrNotReady
	}
	first := ix.coll.Count()
	if len(vectors) == 0 {
		return first, nil
	}

	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		if len(v) != ix.manifest.Dimension {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, index has %d", ErrIndexCorrupt, i, len(v), ix.manifest.Dimension)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(first + i),
			Embedding: v,
		}
	}
	if err := ix.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("add %d vectors: %w", len(docs), err)
	}
	ix.manifest.Count = ix.coll.Count()
	return first, nil
}

// Search returns exactly topK slots ordered by ascending distance, topK being
// capped at MaxTopK. Distance is the squared Euclidean distance between unit
// vectors, 2 - 2*cosine.
func (ix *Index) Search(ctx context.Context, query []float32, topK int) ([]Neighbor, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.coll == nil {
		return nil, ErrNotReady
	}
	if topK <= 0 {
		return nil, nil
	}
	if len(query) != ix.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrIndexCorrupt, len(query), ix.manifest.Dimension)
	}

	topK = min(topK, MaxTopK)
	n := min(topK, ix.coll.Count())
	slots := make([]Neighbor, 0, topK)
	if n > 0 {
		results, err := ix.coll.QueryEmbedding(ctx, query, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		for _, r := range results {
			row, err := strconv.Atoi(r.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: row id %q", ErrIndexCorrupt, r.ID)
			}
			slots = append(slots, Neighbor{Row: row, Distance: max(0, 2-2*r.Similarity), Found: true})
		}
	}
	for len(slots) < topK {
		slots = append(slots, Neighbor{})
	}
	return slots, nil
}

// SetProvenance records which embedder and ingestion run produced the index.
func (ix *Index) SetProvenance(embedder, runID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.manifest.Embedder = embedder
	ix.manifest.RunID = runID
}

// Persist exports the collection and writes the manifest, each through a
// temp file and rename.
func (ix *Index) Persist(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.db == nil {
		return ErrNotReady
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	// keep the target suffix on the temp name
	tmp, err := os.CreateTemp(dir, ".tmp-*-"+filepath.Base(path))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()

	compress := strings.HasSuffix(path, ".gz")
	if err := ix.db.ExportToFile(tmpPath, compress, "", collectionName); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("export index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace index file: %w", err)
	}

	ix.manifest.Count = ix.coll.Count()
	ix.manifest.UpdatedAt = time.Now().UTC()
	if err := writeManifest(path, ix.manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	ix.logger.Info().Str("path", path).Int("rows", ix.manifest.Count).Msg("Persisted vector index")
	return nil
}

// Reset removes the persisted files and drops the in-memory collection.
func (ix *Index) Reset(path string) error {
	ix.clear()
	for _, p := range []string{path, ManifestPath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	ix.logger.Info().Str("path", path).Msg("Vector index reset")
	return nil
}

func (ix *Index) clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.db = nil
	ix.coll = nil
	ix.manifest = Manifest{}
}

// Count is the number of rows; zero when not ready.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.coll == nil {
		return 0
	}
	return ix.coll.Count()
}

// Dimension is zero when not ready.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.manifest.Dimension
}

func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.coll != nil
}

func (ix *Index) Manifest() Manifest {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.manifest
}
