package chunker

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// WordChunker splits normalized page text into fixed-size word groups.
type WordChunker struct {
	config     Config
	normalizer *Normalizer
}

// NewWordChunker creates a chunker; non-positive sizes fall back to the defaults.
func NewWordChunker(config Config) (*WordChunker, error) {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.MinChars < 0 {
		config.MinChars = DefaultMinChars
	}
	normalizer, err := NewNormalizer(config.BoilerplatePatterns...)
	if err != nil {
		return nil, err
	}
	return &WordChunker{config: config, normalizer: normalizer}, nil
}

func (c *WordChunker) Name() string {
	return "words"
}

// Normalize exposes the chunker's normalizer.
func (c *WordChunker) Normalize(text string) string {
	return c.normalizer.Normalize(text)
}

// Chunks yields the records of one page lazily. The sequence has no side
// effects and can be ranged over more than once.
func (c *WordChunker) Chunks(text, sourceFile string, page int) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		if text == "" {
			return
		}
		words := strings.Fields(c.normalizer.Normalize(text))
		for i := 0; i < len(words); i += c.config.ChunkSize {
			end := min(i+c.config.ChunkSize, len(words))
			content := strings.Join(words[i:end], " ")
			if utf8.RuneCountInString(content) <= c.config.MinChars {
				continue
			}
			if !yield(Record{SourceFile: sourceFile, Page: page, Content: content}) {
				return
			}
		}
	}
}

// Chunk collects Chunks into a slice.
func (c *WordChunker) Chunk(text, sourceFile string, page int) []Record {
	return slices.Collect(c.Chunks(text, sourceFile, page))
}
