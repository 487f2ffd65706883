//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/jackzampolin/ocrion/internal/region"
)

// Available reports whether Tesseract support is compiled in.
const Available = true

// Tesseract wraps a gosseract client. The underlying handle is not
// reentrant, so Detect calls are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	level  gosseract.PageIteratorLevel
	lang   string
}

// NewTesseract creates a Tesseract detector. Close it when done.
func NewTesseract(cfg Config) (*Tesseract, error) {
	cfg = cfg.withDefaults()

	client := gosseract.NewClient()
	langs := strings.Split(cfg.Language, "+")
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language %q: %w", cfg.Language, err)
	}

	level := gosseract.RIL_WORD
	if cfg.Level == LevelLine {
		level = gosseract.RIL_TEXTLINE
	}
	return &Tesseract{client: client, level: level, lang: cfg.Language}, nil
}

// Name returns the engine name and language.
func (t *Tesseract) Name() string {
	return "tesseract/" + t.lang
}

// Detect runs text detection over img.
func (t *Tesseract) Detect(ctx context.Context, img []byte) ([]region.TextFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(t.level)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	fragments := make([]region.TextFragment, 0, len(boxes))
	for _, b := range boxes {
		r := b.Box
		box := region.BoxFromCorners(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
		if f, ok := clean(b.Word, box, b.Confidence); ok {
			fragments = append(fragments, f)
		}
	}
	return fragments, nil
}

// Close releases the Tesseract handle.
func (t *Tesseract) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
