// Package pipeline runs one document through intake, text detection,
// layout ordering and field extraction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/ocrion/internal/document"
	"github.com/jackzampolin/ocrion/internal/extract"
	"github.com/jackzampolin/ocrion/internal/layout"
	"github.com/jackzampolin/ocrion/internal/ocr"
	"github.com/jackzampolin/ocrion/internal/region"
)

// ErrNoText is returned when detection finds no text and Config.RequireText
// is set.
var ErrNoText = errors.New("no text detected in document")

// Config wires the pipeline stages.
type Config struct {
	Reader       *document.Reader
	Detector     ocr.Detector
	Orderer      *layout.Orderer
	Orchestrator *extract.Orchestrator
	// Model reports the backend model for response metadata.
	Model  func() string
	Logger *slog.Logger
	// RequireText rejects documents where detection finds nothing instead of
	// asking the backend to fill every field with null.
	RequireText bool
	// Clock returns the current time (default: time.Now).
	Clock func() time.Time
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	cfg Config
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("pipeline: document reader is required")
	}
	if cfg.Detector == nil {
		return nil, fmt.Errorf("pipeline: text detector is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("pipeline: orchestrator is required")
	}
	if cfg.Orderer == nil {
		cfg.Orderer = layout.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Pipeline{cfg: cfg}, nil
}

// Detector returns the text detector in use.
func (p *Pipeline) Detector() ocr.Detector {
	return p.cfg.Detector
}

// Request is one document to extract from.
type Request struct {
	// ID identifies the request (default: new UUID).
	ID     string
	Name   string
	Data   []byte
	Schema region.Schema
}

// Timings are stage durations in seconds.
type Timings struct {
	OCR        float64 `json:"ocr" yaml:"ocr"`
	Layout     float64 `json:"layout" yaml:"layout"`
	LLM        float64 `json:"llm" yaml:"llm"`
	Processing float64 `json:"processing" yaml:"processing"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	RequestID          string    `json:"request_id" yaml:"request_id"`
	Attempts           int       `json:"attempts" yaml:"attempts"`
	LayoutFallback     bool      `json:"layout_fallback" yaml:"layout_fallback"`
	NullFields         []string  `json:"null_fields" yaml:"null_fields"`
	Timings            Timings   `json:"timings" yaml:"timings"`
	OCRRegionsDetected int       `json:"ocr_regions_detected" yaml:"ocr_regions_detected"`
	LayoutLines        int       `json:"layout_lines" yaml:"layout_lines"`
	SchemaFields       int       `json:"schema_fields" yaml:"schema_fields"`
	ImageSize          string    `json:"image_size" yaml:"image_size"`
	Model              string    `json:"model" yaml:"model"`
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
}

// Result is a finished extraction.
type Result struct {
	Data       region.Record
	Extraction *region.ExtractionResult
	Metadata   Metadata
}

// Run processes one document.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Schema.Len() == 0 {
		return nil, extract.ErrEmptySchema
	}
	logger := p.cfg.Logger.With("request_id", req.ID)
	now := p.cfg.Clock
	start := now()

	doc, err := p.cfg.Reader.Load(ctx, req.Name, req.Data)
	if err != nil {
		return nil, err
	}
	logger.Debug("document loaded", "name", req.Name, "type", doc.MIMEType, "size", doc.Size, "image_size", doc.Dimensions())

	t := now()
	fragments, err := p.cfg.Detector.Detect(ctx, doc.Image)
	if err != nil {
		return nil, fmt.Errorf("text detection failed: %w", err)
	}
	ocrTime := now().Sub(t)

	if p.cfg.RequireText && !hasText(fragments) {
		return nil, ErrNoText
	}

	t = now()
	page := p.cfg.Orderer.Analyze(fragments)
	layoutTime := now().Sub(t)
	if page.Dropped > 0 {
		logger.Debug("dropped zero-area fragments", "count", page.Dropped)
	}

	t = now()
	res, err := p.cfg.Orchestrator.Run(ctx, extract.Request{
		ID:           req.ID,
		Schema:       req.Schema,
		OrderedText:  page.Text(),
		FallbackText: layout.RawText(fragments),
	})
	if err != nil {
		return nil, err
	}
	llmTime := now().Sub(t)

	meta := Metadata{
		RequestID:      req.ID,
		Attempts:       res.Attempts,
		LayoutFallback: res.LayoutFallback,
		NullFields:     res.NullFields,
		Timings: Timings{
			OCR:        ocrTime.Seconds(),
			Layout:     layoutTime.Seconds(),
			LLM:        llmTime.Seconds(),
			Processing: now().Sub(start).Seconds(),
		},
		OCRRegionsDetected: len(fragments),
		LayoutLines:        len(page.Block.Lines),
		SchemaFields:       req.Schema.Len(),
		ImageSize:          doc.Dimensions(),
		Timestamp:          start.UTC(),
	}
	if meta.NullFields == nil {
		meta.NullFields = []string{}
	}
	if p.cfg.Model != nil {
		meta.Model = p.cfg.Model()
	}

	logger.Info("document processed",
		"regions", meta.OCRRegionsDetected,
		"lines", meta.LayoutLines,
		"attempts", meta.Attempts,
		"processing", meta.Timings.Processing,
	)
	return &Result{Data: res.Data, Extraction: res, Metadata: meta}, nil
}

func hasText(fragments []region.TextFragment) bool {
	for _, f := range fragments {
		if strings.TrimSpace(f.Text) != "" {
			return true
		}
	}
	return false
}

// IsClientError reports whether err was caused by the request itself: a
// bad upload, a bad schema or a document without text.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrNoText,
		extract.ErrEmptySchema,
		region.ErrInvalidSchema,
		document.ErrEmpty,
		document.ErrTooLarge,
		document.ErrUnsupportedType,
		document.ErrMultiPage,
		document.ErrCorrupt,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
