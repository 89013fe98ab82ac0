package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdf_rag/internal/embedding"
	"pdf_rag/internal/index"
	"pdf_rag/internal/store"
)

// writer is the append side of one ingestion run.
type writer struct {
	embedder embedding.Embedder
	index    *index.Index
	store    *store.Store
}

// ingestDocument extracts, chunks, embeds and appends one document page by
// page. Extraction and embedding failures are logged and skipped; only errors
// that leave the store and index out of step are returned.
func (a *App) ingestDocument(ctx context.Context, path string, w *writer, report *Report) error {
	name := filepath.Base(path)

	ex, err := a.extractors.Get(path)
	if err != nil {
		a.logger.Warn().Err(err).Str("file", name).Msg("Skipping document")
		report.Skipped++
		return nil
	}

	pages, err := ex.Extract(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn().Err(err).Str("file", name).Msg("Skipping unreadable document")
		report.Skipped++
		return nil
	}
	if len(pages) == 0 {
		a.logger.Warn().Str("file", name).Msg("Document has no pages")
		report.Skipped++
		return nil
	}

	a.logger.Info().Str("file", name).Str("extractor", ex.Name()).Int("pages", len(pages)).Msg("Processing document")

	var contents []string
	for i, text := range pages {
		page := i + 1
		report.Pages++

		records := a.chunker.Chunk(text, name, page)
		if len(records) == 0 {
			continue
		}

		texts := make([]string, len(records))
		for j, r := range records {
			texts[j] = r.Content
		}

		vectors, err := w.embedder.Encode(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn().Err(err).Str("file", name).Int("page", page).Msg("Embedding failed, skipping page")
			continue
		}

		first, err := w.index.Add(ctx, vectors)
		if err != nil {
			return fmt.Errorf("%s page %d: %w", name, page, err)
		}
		if first != w.store.Count() {
			return fmt.Errorf("%w: index starts page at row %d, chunk store at %d", index.ErrIndexCorrupt, first, w.store.Count())
		}
		if err := w.store.AppendBatch(records); err != nil {
			return fmt.Errorf("%s page %d: %w", name, page, err)
		}
		if w.store.Count() != w.index.Count() {
			return fmt.Errorf("%w: chunk store has %d records, index has %d rows after %s page %d",
				index.ErrIndexCorrupt, w.store.Count(), w.index.Count(), name, page)
		}

		report.Chunks += len(records)
		contents = append(contents, texts...)
		a.logger.Debug().Str("file", name).Int("page", page).Int("chunks", len(records)).Msg("Page indexed")
	}
	report.Documents++

	if err := a.writeChunkLog(name, contents); err != nil {
		a.logger.Warn().Err(err).Str("file", name).Msg("Failed to write chunk log")
	}
	return nil
}

// writeChunkLog writes every chunk of a document to <logs>/<name>.txt, one
// per line. The document's extension stays in the name so a.pdf and a.md get
// separate logs.
func (a *App) writeChunkLog(name string, contents []string) error {
	path := filepath.Join(a.cfg.LogsDir, name+".txt")
	if err := os.WriteFile(path, []byte(strings.Join(contents, "\n")), 0644); err != nil {
		return err
	}
	a.logger.Debug().Str("path", path).Int("chunks", len(contents)).Msg("Chunk log written")
	return nil
}
