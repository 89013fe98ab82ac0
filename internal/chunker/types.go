package chunker

// Record is one chunk of a document page. Its position in the chunk log is
// the row of its vector in the index.
type Record struct {
	SourceFile string `json:"sumber_file"`
	Page       int    `json:"halaman"`
	Content    string `json:"konten"`
}

// Config holds the chunking parameters.
type Config struct {
	ChunkSize           int      // words per chunk
	MinChars            int      // chunks of at most this many characters are dropped
	BoilerplatePatterns []string // extra line patterns removed by the normalizer
}

const (
	DefaultChunkSize = 15
	DefaultMinChars  = 10
)
