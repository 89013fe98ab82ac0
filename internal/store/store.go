// Package store keeps chunk records in an append-only JSON-lines file. A
// record's zero-based line number is its row position in the vector index.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"pdf_rag/internal/chunker"
)

var (
	ErrWrite = errors.New("chunk store write error")
	ErrParse = errors.New("chunk store parse error")
)

const maxLineSize = 1024 * 1024

// line is the persisted form of a record. Row is optional on read so older
// files without it still load.
type line struct {
	Row *int `json:"baris,omitempty"`
	chunker.Record
}

type Store struct {
	path   string
	logger arbor.ILogger

	mu    sync.Mutex
	file  *os.File
	count int
}

// Open opens or creates the store file and counts its lines.
func Open(path string, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %v", ErrWrite, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrWrite, path, err)
	}

	dropped, err := trimPartialLine(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: trim %s: %v", ErrWrite, path, err)
	}
	if dropped > 0 {
		logger.Warn().Str("path", path).Int("bytes", int(dropped)).Msg("Dropped unterminated trailing chunk line")
	}

	count, err := countLines(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("count lines in %s: %w", path, err)
	}

	logger.Debug().Str("path", path).Int("records", count).Msg("Chunk store opened")
	return &Store{path: path, logger: logger, file: f, count: count}, nil
}

// trimPartialLine truncates f back to its last newline, dropping a record
// left half-written by an interrupted append. It returns the bytes removed.
func trimPartialLine(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	const block = 4096
	buf := make([]byte, block)
	end := size
	for end > 0 {
		start := max(0, end-block)
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			end = start + int64(i) + 1
			break
		}
		end = start
	}
	if end == size {
		return 0, nil
	}
	if err := f.Truncate(end); err != nil {
		return 0, err
	}
	return size - end, nil
}

func countLines(r io.ReadSeeker) (int, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

func (s *Store) Path() string {
	return s.path
}

// Count is the number of lines, malformed ones included.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Reset truncates the store.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("%w: store is closed", ErrWrite)
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate %s: %v", ErrWrite, s.path, err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek %s: %v", ErrWrite, s.path, err)
	}
	s.count = 0
	s.logger.Info().Str("path", s.path).Msg("Chunk store reset")
	return nil
}

func (s *Store) Append(rec chunker.Record) error {
	return s.AppendBatch([]chunker.Record{rec})
}

// AppendBatch writes all records with one write call. Positions continue from
// the current count.
func (s *Store) AppendBatch(recs []chunker.Record) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("%w: store is closed", ErrWrite)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range recs {
		row := s.count + i
		if err := enc.Encode(line{Row: &row, Record: rec}); err != nil {
			return fmt.Errorf("%w: encode record %d: %v", ErrWrite, row, err)
		}
	}

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: append to %s: %v", ErrWrite, s.path, err)
	}
	s.count += len(recs)
	return nil
}

// ReadByPositions returns the records at the given positions in the order
// requested. Out-of-range positions are skipped silently; malformed lines are
// logged and skipped.
func (s *Store) ReadByPositions(positions []int) ([]chunker.Record, error) {
	found, err := s.ReadRows(positions)
	if err != nil || len(found) == 0 {
		return nil, err
	}

	out := make([]chunker.Record, 0, len(positions))
	for _, p := range positions {
		if rec, ok := found[p]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ReadRows is ReadByPositions keyed by position.
func (s *Store) ReadRows(positions []int) (map[int]chunker.Record, error) {
	if len(positions) == 0 {
		return nil, nil
	}

	wanted := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		if p >= 0 {
			wanted[p] = struct{}{}
		}
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	found := make(map[int]chunker.Record, len(wanted))
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for pos := 0; scanner.Scan() && len(found) < len(wanted); pos++ {
		if _, ok := wanted[pos]; !ok {
			continue
		}
		rec, err := parseLine(scanner.Bytes(), pos)
		if err != nil {
			s.logger.Warn().Err(err).Int("row", pos).Str("path", s.path).Msg("Skipping malformed chunk line")
			delete(wanted, pos)
			continue
		}
		found[pos] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return found, nil
}

func parseLine(data []byte, pos int) (chunker.Record, error) {
	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return chunker.Record{}, fmt.Errorf("%w: line %d: %v", ErrParse, pos, err)
	}
	if l.Row != nil && *l.Row != pos {
		return chunker.Record{}, fmt.Errorf("%w: line %d carries row %d", ErrParse, pos, *l.Row)
	}
	return l.Record, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
