// Package ocr detects text fragments in a page image.
//
// The Tesseract detector is compiled only with the "ocr" build tag, which
// requires Tesseract and Leptonica to be installed:
//
//	go build -tags ocr ./cmd/ocrion
//
// On macOS:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr libtesseract-dev
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackzampolin/ocrion/internal/region"
)

// ErrDetectorUnavailable is returned when text detection was not compiled in.
var ErrDetectorUnavailable = errors.New("OCR support not enabled; rebuild with -tags ocr")

// Level is the granularity of detected fragments.
type Level string

const (
	LevelWord Level = "word"
	LevelLine Level = "line"
)

// ParseLevel parses a configured level. Empty means LevelWord.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelWord:
		return LevelWord, nil
	case LevelLine:
		return LevelLine, nil
	default:
		return "", fmt.Errorf("unknown OCR level %q (want word or line)", s)
	}
}

// Detector finds text fragments in an encoded image.
type Detector interface {
	Detect(ctx context.Context, img []byte) ([]region.TextFragment, error)
	Name() string
}

// Config configures a Tesseract detector.
type Config struct {
	// Language is a "+" separated list of Tesseract languages (default "eng").
	Language string
	Level    Level
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.Level == "" {
		c.Level = LevelWord
	}
	return c
}

// clean converts a raw detection into a fragment, reporting false for
// blank text. Confidence arrives on a 0..100 scale.
func clean(text string, box region.Box, confidence float64) (region.TextFragment, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return region.TextFragment{}, false
	}
	confidence /= 100
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return region.TextFragment{Text: text, Box: box.Normalize(), Confidence: confidence}, true
}
