package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextExtractor reads plain text files; form feeds separate pages.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Name() string {
	return "text"
}

func (e *TextExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrExtraction, path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, nil
	}
	return strings.Split(string(content), "\f"), nil
}
