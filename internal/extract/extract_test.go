package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMarkdownSections(t *testing.T) {
	src := `# Laporan Tahunan

Ringkasan **eksekutif** perusahaan.

## Pendapatan

Pendapatan naik 12.5 persen.

### Rincian

- ekspor
- domestik

## Biaya

Biaya turun.
`
	pages := NewMarkdownExtractor().Sections([]byte(src))
	require.Len(t, pages, 3)
	assert.Contains(t, pages[0], "Laporan Tahunan")
	assert.Contains(t, pages[0], "Ringkasan eksekutif perusahaan.")
	assert.Contains(t, pages[1], "Pendapatan naik 12.5 persen.")
	assert.Contains(t, pages[1], "Rincian")
	assert.Contains(t, pages[1], "ekspor")
	assert.Contains(t, pages[2], "Biaya turun.")
	assert.NotContains(t, pages[2], "#")
}

func TestMarkdownWithoutHeadings(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "catatan.md", "Satu paragraf saja.\n\nParagraf kedua.\n")

	pages, err := NewMarkdownExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0], "Satu paragraf saja.")
	assert.Contains(t, pages[0], "Paragraf kedua.")
}

func TestTextExtractorPages(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "halaman satu\fhalaman dua\f")

	pages, err := NewTextExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"halaman satu", "halaman dua", ""}, pages)

	empty := writeFile(t, dir, "b.txt", "  \n")
	pages, err = NewTextExtractor().Extract(context.Background(), empty)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "rusak.pdf", "ini bukan pdf")

	tests := []struct {
		name string
		ex   Extractor
		path string
	}{
		{name: "pdf missing", ex: NewPDFExtractor(), path: filepath.Join(dir, "tidak-ada.pdf")},
		{name: "pdf malformed", ex: NewPDFExtractor(), path: broken},
		{name: "markdown missing", ex: NewMarkdownExtractor(), path: filepath.Join(dir, "tidak-ada.md")},
		{name: "text missing", ex: NewTextExtractor(), path: filepath.Join(dir, "tidak-ada.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := tt.ex.Extract(context.Background(), tt.path)
			assert.ErrorIs(t, err, ErrExtraction)
			assert.Nil(t, pages)
		})
	}
}

func TestFactory(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		path string
		want string
	}{
		{path: "a.pdf", want: "pdf"},
		{path: "B.PDF", want: "pdf"},
		{path: "c.md", want: "markdown"},
		{path: "d.markdown", want: "markdown"},
		{path: "e.txt", want: "text"},
	}
	for _, tt := range tests {
		ex, err := f.Get(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, ex.Name(), tt.path)
	}

	_, err := f.Get("f.docx")
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestFactoryDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf", "")
	writeFile(t, dir, "a.md", "")
	writeFile(t, dir, "c.docx", "")
	writeFile(t, dir, "d.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	paths, err := NewFactory().Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "d.txt"),
	}, paths)

	_, err = NewFactory().Discover(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
