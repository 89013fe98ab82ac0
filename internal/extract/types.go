// Package extract turns source documents into ordered per-page text.
package extract

import (
	"context"
	"errors"
)

// ErrExtraction marks a document that could not be read. The pipeline logs
// it and moves on to the next document.
var ErrExtraction = errors.New("extraction error")

// Extractor returns the text of each page of a document, in page order.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
	Name() string
}
