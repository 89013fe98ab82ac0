package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Run reads one question per line from in and writes the hits to out until
// EOF or ctx is cancelled.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	a.logger.Info().Msg("Enter a question per line. Ctrl+C to exit.")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		// scanErr is always filled before lines is closed
		defer func() { scanErr <- scanner.Err() }()
		// long questions
		const maxLineSize = 1024 * 1024
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				if ctx.Err() != nil {
					a.logger.Info().Msg("Shutting down")
					return nil
				}
				if err := <-scanErr; err != nil {
					return fmt.Errorf("stdin error: %w", err)
				}
				a.logger.Info().Msg("stdin closed")
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := a.Ask(ctx, line, out); err != nil {
				a.logger.Error().Err(err).Str("query", line).Msg("Search failed")
			}
		}
	}
}

// Ask runs one query and prints the hits.
func (a *App) Ask(ctx context.Context, query string, out io.Writer) error {
	status, results, err := a.FindRelevant(ctx, query, 0)
	if err != nil {
		fmt.Fprintln(out, status)
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, status)
		return nil
	}

	fmt.Fprintf(out, "Hasil pencarian untuk %q\n", query)
	for i, r := range results {
		fmt.Fprintf(out, "Chunk #%d dari file: %s (Halaman: %d, jarak: %.4f)\n", i+1, r.SourceFile, r.Page, r.Distance)
		fmt.Fprintf(out, "Konten: %s\n", r.Content)
		fmt.Fprintln(out, strings.Repeat("-", 20))
	}
	return nil
}
