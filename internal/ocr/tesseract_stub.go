//go:build !ocr

package ocr

import (
	"context"

	"github.com/jackzampolin/ocrion/internal/region"
)

// Available reports whether Tesseract support is compiled in.
const Available = false

// Tesseract is unavailable in builds without the "ocr" tag.
type Tesseract struct{}

// NewTesseract returns ErrDetectorUnavailable.
func NewTesseract(cfg Config) (*Tesseract, error) {
	return nil, ErrDetectorUnavailable
}

func (t *Tesseract) Name() string { return "tesseract (disabled)" }

func (t *Tesseract) Detect(ctx context.Context, img []byte) ([]region.TextFragment, error) {
	return nil, ErrDetectorUnavailable
}

func (t *Tesseract) Close() error { return nil }
