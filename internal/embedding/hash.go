package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hash is an offline embedder based on signed feature hashing of lowercased
// words and their character trigrams. Outputs are L2-normalised.
type Hash struct {
	dim int
}

func NewHash(dim int) (*Hash, error) {
	if dim < 1 {
		return nil, fmt.Errorf("hash embedder: dimension must be >= 1, got %d", dim)
	}
	return &Hash{dim: dim}, nil
}

func (h *Hash) Name() string {
	return "hash"
}

func (h *Hash) Dimension() int {
	return h.dim
}

func (h *Hash) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h.add(v, "w:"+w, 1)
		runes := []rune("^" + w + "$")
		for j := 0; j+3 <= len(runes); j++ {
			h.add(v, "t:"+string(runes[j:j+3]), 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for j := range v {
		v[j] *= inv
	}
	return v
}

func (h *Hash) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}
