package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Manifest describes a persisted index. chromem-go does not keep the vector
// dimension in its export, so it lives here.
type Manifest struct {
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	Embedder  string    `json:"embedder,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ManifestPath is the manifest location for an index file.
func ManifestPath(indexPath string) string {
	return indexPath + ".manifest.json"
}

func readManifest(indexPath string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(ManifestPath(indexPath))
	if errors.Is(err, fs.ErrNotExist) {
		return m, fmt.Errorf("%w: manifest for %s is missing", ErrIndexCorrupt, indexPath)
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: decode manifest: %v", ErrIndexCorrupt, err)
	}
	if m.Dimension < 1 || m.Count < 0 {
		return m, fmt.Errorf("%w: manifest has dimension %d and count %d", ErrIndexCorrupt, m.Dimension, m.Count)
	}
	return m, nil
}

func writeManifest(indexPath string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(ManifestPath(indexPath), data)
}

// writeFileAtomic writes to a temp file in the same directory and renames it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*-"+filepath.Base(path))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
