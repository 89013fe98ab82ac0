package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Factory picks an extractor by file extension.
type Factory struct {
	byExt map[string]Extractor
}

// NewFactory registers the built-in extractors.
func NewFactory() *Factory {
	pdf := NewPDFExtractor()
	md := NewMarkdownExtractor()
	txt := NewTextExtractor()
	return &Factory{byExt: map[string]Extractor{
		".pdf":      pdf,
		".md":       md,
		".markdown": md,
		".txt":      txt,
	}}
}

// Get returns the extractor for path.
func (f *Factory) Get(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if e, ok := f.byExt[ext]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: unsupported file type %q", ErrExtraction, ext)
}

// Supported reports whether Get would find an extractor for path.
func (f *Factory) Supported(path string) bool {
	_, ok := f.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Discover lists supported documents directly inside dir, sorted by name.
func (f *Factory) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if f.Supported(entry.Name()) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}
