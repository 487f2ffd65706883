package ocr

import (
	"context"
	"sync"

	"github.com/jackzampolin/ocrion/internal/region"
)

// Static returns a fixed set of fragments for every image. It stands in for
// a real engine in tests and local runs.
type Static struct {
	Fragments []region.TextFragment
	Err       error

	mu    sync.Mutex
	calls int
}

// NewStatic creates a Static detector.
func NewStatic(fragments ...region.TextFragment) *Static {
	return &Static{Fragments: fragments}
}

func (s *Static) Name() string { return "static" }

func (s *Static) Detect(ctx context.Context, img []byte) ([]region.TextFragment, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]region.TextFragment(nil), s.Fragments...), nil
}

// Calls returns how many times Detect ran.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// New returns the configured Tesseract detector, or ErrDetectorUnavailable
// when the binary was built without OCR support.
func New(cfg Config) (Detector, error) {
	t, err := NewTesseract(cfg)
	if err != nil {
		return nil, err
	}
	return t, nil
}

var (
	_ Detector = (*Static)(nil)
	_ Detector = (*Tesseract)(nil)
)
