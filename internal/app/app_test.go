package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"pdf_rag/internal/chunker"
	"pdf_rag/internal/config"
	"pdf_rag/internal/embedding"
	"pdf_rag/internal/index"
	"pdf_rag/internal/store"
)

const fifteenWords = "Laporan Keuangan Kuartal Dua Tahun Dua Ribu Dua Puluh Lima Disusun Oleh Divisi Akuntansi Internal"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		DocumentsDir:  filepath.Join(root, "documents"),
		LogsDir:       filepath.Join(root, "logs"),
		DataDir:       filepath.Join(root, "data"),
		IndexFile:     "document_index.gob.gz",
		ChunksFile:    "chunks.txt",
		ChunkSize:     15,
		MinChunkChars: 10,
		TopK:          3,
		MaxTopK:       50,
		Embedder:      config.EmbedderHash,
		EmbeddingDim:  64,
	}
	require.NoError(t, os.MkdirAll(cfg.DocumentsDir, 0755))
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeDoc(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DocumentsDir, name), []byte(content), 0644))
}

func counts(t *testing.T, cfg *config.Config) (int, int) {
	t.Helper()
	st, err := store.Open(cfg.ChunksPath(), arbor.NewNoOpLogger())
	require.NoError(t, err)
	defer st.Close()

	ix := index.New(arbor.NewNoOpLogger())
	require.NoError(t, ix.Load(cfg.IndexPath()))
	return st.Count(), ix.Count()
}

func TestIngestSingleChunkPage(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	a := newTestApp(t, cfg)
	report, err := a.Ingest(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, 0, report.Skipped)

	stored, indexed := counts(t, cfg)
	assert.Equal(t, 1, stored)
	assert.Equal(t, 1, indexed)

	st, err := store.Open(cfg.ChunksPath(), arbor.NewNoOpLogger())
	require.NoError(t, err)
	defer st.Close()
	recs, err := st.ReadByPositions([]int{0})
	require.NoError(t, err)
	assert.Equal(t, []chunker.Record{{SourceFile: "laporan.txt", Page: 1, Content: fifteenWords}}, recs)

	logData, err := os.ReadFile(filepath.Join(cfg.LogsDir, "laporan.txt.txt"))
	require.NoError(t, err)
	assert.Equal(t, fifteenWords, string(logData))
}

func TestFindRelevantAgainstSingleRecord(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	a := newTestApp(t, cfg)
	_, err := a.Ingest(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	require.NoError(t, a.Ready())
	assert.Equal(t, 1, a.Rows())

	status, results, err := a.FindRelevant(context.Background(), "Laporan Keuangan", 3)
	require.NoError(t, err)
	assert.Empty(t, status)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Row)
	assert.Equal(t, "laporan.txt", results[0].SourceFile)
	assert.Equal(t, 1, results[0].Page)
	assert.Equal(t, fifteenWords, results[0].Content)
}

func TestFindRelevantCapsTopK(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTopK = 5
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	a := newTestApp(t, cfg)
	_, err := a.Ingest(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))

	status, results, err := a.FindRelevant(context.Background(), "Laporan", 1<<40)
	require.NoError(t, err)
	assert.Empty(t, status)
	require.Len(t, results, 1)
	assert.Equal(t, "laporan.txt", results[0].SourceFile)
}

func TestChunkLogKeepsExtension(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "a.txt", fifteenWords)
	writeDoc(t, cfg, "a.md", "Ringkasan Eksekutif Rapat Direksi Bulanan Membahas Rencana Anggaran Tahun Depan Secara Lengkap Dan Rinci")

	_, err := newTestApp(t, cfg).Ingest(context.Background())
	require.NoError(t, err)

	txtLog, err := os.ReadFile(filepath.Join(cfg.LogsDir, "a.txt.txt"))
	require.NoError(t, err)
	assert.Equal(t, fifteenWords, string(txtLog))

	mdLog, err := os.ReadFile(filepath.Join(cfg.LogsDir, "a.md.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(mdLog), "Ringkasan Eksekutif")
}

func TestNotReadyWithoutIndex(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	require.NoError(t, a.Init(context.Background()))
	assert.Error(t, a.Ready())
	assert.Equal(t, 0, a.Rows())

	status, results, err := a.FindRelevant(context.Background(), "Laporan Keuangan", 3)
	require.NoError(t, err)
	assert.Equal(t, StatusNotReady, status)
	assert.Empty(t, results)
}

func TestIngestManyDocuments(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkSize = 5
	writeDoc(t, cfg, "a.txt", "Pendapatan perusahaan naik 12. 5 persen pada kuartal kedua tahun ini\n000\n"+
		"\fBiaya operasional turun karena efisiensi di seluruh unit bisnis perusahaan")
	writeDoc(t, cfg, "b.md", "# Ekspor\n\nPenjualan ekspor meningkat tajam ke pasar Asia Tenggara dan Eropa\n\n"+
		"## Domestik\n\nPenjualan domestik stabil sepanjang kuartal kedua tahun ini")
	writeDoc(t, cfg, "c.pdf", "bukan pdf")
	writeDoc(t, cfg, "d.docx", "diabaikan")
	writeDoc(t, cfg, "e.txt", "\n42\n.\n")

	a := newTestApp(t, cfg)
	report, err := a.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 1, report.Skipped)
	assert.Greater(t, report.Chunks, 4)

	stored, indexed := counts(t, cfg)
	assert.Equal(t, report.Chunks, stored)
	assert.Equal(t, stored, indexed)

	require.NoError(t, a.Init(context.Background()))
	for _, topK := range []int{1, 3, 50} {
		status, results, err := a.FindRelevant(context.Background(), "penjualan ekspor kuartal", topK)
		require.NoError(t, err)
		assert.Empty(t, status)
		assert.LessOrEqual(t, len(results), topK)
		assert.NotEmpty(t, results)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
		}
	}

	status, results, err := a.FindRelevant(context.Background(), "penjualan", 0)
	require.NoError(t, err)
	assert.Empty(t, status)
	assert.Len(t, results, cfg.TopK)

	// the whole document goes to its chunk log, not just the last page
	logData, err := os.ReadFile(filepath.Join(cfg.LogsDir, "a.txt.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "12.5")
	assert.Contains(t, string(logData), "efisiensi")
}

func TestIngestRebuildsFromScratch(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	a := newTestApp(t, cfg)
	_, err := a.Ingest(context.Background())
	require.NoError(t, err)
	_, err = a.Ingest(context.Background())
	require.NoError(t, err)

	stored, indexed := counts(t, cfg)
	assert.Equal(t, 1, stored)
	assert.Equal(t, 1, indexed)
}

func TestIngestMissingDocumentsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.DocumentsDir = filepath.Join(t.TempDir(), "tidak-ada")

	_, err := newTestApp(t, cfg).Ingest(context.Background())
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

type failingEmbedder struct {
	embedding.Embedder
	marker string
}

func (f failingEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, f.marker) {
			return nil, errors.New("embedding service unavailable")
		}
	}
	return f.Embedder.Encode(ctx, texts)
}

func TestIngestSkipsPageWhenEmbeddingFails(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "a.txt", fifteenWords+"\fGAGAL halaman kedua tidak bisa di-embed sama sekali\f"+fifteenWords)

	a := newTestApp(t, cfg)
	a.newEmbedder = func(ctx context.Context) (embedding.Embedder, error) {
		h, err := embedding.NewHash(cfg.EmbeddingDim)
		if err != nil {
			return nil, err
		}
		return failingEmbedder{Embedder: h, marker: "GAGAL"}, nil
	}

	report, err := a.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 2, report.Chunks)

	st, err := store.Open(cfg.ChunksPath(), arbor.NewNoOpLogger())
	require.NoError(t, err)
	defer st.Close()
	recs, err := st.ReadByPositions([]int{0, 1})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].Page)
	assert.Equal(t, 3, recs[1].Page)
}

func TestInitDetectsCountMismatch(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	a := newTestApp(t, cfg)
	_, err := a.Ingest(context.Background())
	require.NoError(t, err)

	st, err := store.Open(cfg.ChunksPath(), arbor.NewNoOpLogger())
	require.NoError(t, err)
	require.NoError(t, st.Append(chunker.Record{SourceFile: "x.txt", Page: 1, Content: "baris tambahan"}))
	require.NoError(t, st.Close())

	err = a.Init(context.Background())
	assert.ErrorIs(t, err, index.ErrIndexCorrupt)
	assert.ErrorIs(t, a.Ready(), index.ErrIndexCorrupt)
}

func TestInitDetectsDimensionMismatch(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	_, err := newTestApp(t, cfg).Ingest(context.Background())
	require.NoError(t, err)

	other := *cfg
	other.EmbeddingDim = 32
	err = newTestApp(t, &other).Init(context.Background())
	assert.ErrorIs(t, err, index.ErrIndexCorrupt)
}

func TestReloadPicksUpNewIngestion(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	server := newTestApp(t, cfg)
	require.NoError(t, server.Init(context.Background()))
	require.Error(t, server.Ready())

	// reload with nothing on disk keeps the service not ready
	assert.Error(t, server.Reload(context.Background()))

	_, err := newTestApp(t, cfg).Ingest(context.Background())
	require.NoError(t, err)

	require.NoError(t, server.Reload(context.Background()))
	require.NoError(t, server.Ready())
	assert.Equal(t, 1, server.Rows())

	writeDoc(t, cfg, "tambahan.txt", "Rencana ekspansi pabrik baru di Kalimantan Timur dimulai tahun depan oleh direksi")
	_, err = newTestApp(t, cfg).Ingest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, server.Rows())
	require.NoError(t, server.Reload(context.Background()))
	assert.Equal(t, 2, server.Rows())
}

func TestRunAnswersEachLine(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	a := newTestApp(t, cfg)
	_, err := a.Ingest(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))

	var out bytes.Buffer
	err = a.Run(context.Background(), strings.NewReader("Laporan Keuangan\n\n  \ndivisi akuntansi\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out.String(), "Chunk #1 dari file: laporan.txt (Halaman: 1"))
	assert.Contains(t, out.String(), "Konten: "+fifteenWords)
}

// cancelingWriter cancels the context on the first write, i.e. while Ask is
// still printing.
type cancelingWriter struct {
	cancel context.CancelFunc
	bytes.Buffer
}

func (w *cancelingWriter) Write(p []byte) (int, error) {
	w.cancel()
	return w.Buffer.Write(p)
}

func TestRunStopsWhenCancelledDuringAsk(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "laporan.txt", fifteenWords)

	a := newTestApp(t, cfg)
	_, err := a.Ingest(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		out := &cancelingWriter{cancel: cancel}
		done := make(chan error, 1)
		go func() {
			done <- a.Run(ctx, strings.NewReader("Laporan Keuangan\ndivisi akuntansi\nkuartal dua\n"), out)
		}()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatalf("Run did not return after cancel (trial %d)", i)
		}
		cancel()
	}
}

func TestAskNotReady(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	var out bytes.Buffer
	require.NoError(t, a.Ask(context.Background(), "apa saja", &out))
	assert.Equal(t, StatusNotReady+"\n", out.String())
}
