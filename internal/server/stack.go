package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/ocrion/internal/config"
	"github.com/jackzampolin/ocrion/internal/document"
	"github.com/jackzampolin/ocrion/internal/extract"
	"github.com/jackzampolin/ocrion/internal/history"
	"github.com/jackzampolin/ocrion/internal/layout"
	"github.com/jackzampolin/ocrion/internal/ocr"
	"github.com/jackzampolin/ocrion/internal/pipeline"
	"github.com/jackzampolin/ocrion/internal/prompts"
	prompt "github.com/jackzampolin/ocrion/internal/prompts/extract"
	"github.com/jackzampolin/ocrion/internal/providers"
)

// NewBackend returns the extraction backend selected by cfg. The model is
// left to the registry client so that config reloads change it.
func NewBackend(cfg *config.Config, registry *providers.Registry) *providers.Backend {
	return &providers.Backend{
		Registry:    registry,
		Provider:    cfg.Extraction.Backend,
		MaxTokens:   cfg.Extraction.MaxTokens,
		Temperature: cfg.Extraction.Temperature,
	}
}

// NewDetector returns the configured text detector.
func NewDetector(cfg *config.Config) (ocr.Detector, error) {
	level, err := ocr.ParseLevel(cfg.OCR.Level)
	if err != nil {
		return nil, err
	}
	return ocr.New(ocr.Config{Language: cfg.OCR.Language, Level: level})
}

// OpenHistory opens the configured call history store. It returns nil
// without error when history is disabled.
func OpenHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*history.Store, error) {
	dsn := cfg.HistoryDSN()
	if dsn == "" {
		return nil, nil
	}
	store, err := history.Open(ctx, dsn, history.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

// NewCatalog returns the catalog of embedded prompts.
func NewCatalog() *prompts.Catalog {
	c := prompts.NewCatalog()
	prompt.RegisterPrompts(c)
	return c
}

// PipelineConfig holds what NewPipeline wires together.
type PipelineConfig struct {
	Config   *config.Config
	Backend  *providers.Backend
	Detector ocr.Detector
	// Renderer rasterizes PDFs (nil rejects PDFs).
	Renderer document.Renderer
	// History records every backend attempt when set.
	History     *history.Store
	RequireText bool
	Logger      *slog.Logger
}

// NewPipeline builds the extraction pipeline from configuration.
func NewPipeline(pc PipelineConfig) (*pipeline.Pipeline, error) {
	cfg := pc.Config
	if pc.Logger == nil {
		pc.Logger = slog.Default()
	}

	oc := extract.Config{
		Backend: pc.Backend,
		Timeout: cfg.Extraction.Timeout,
		Logger:  pc.Logger,
	}
	if pc.History != nil {
		oc.Recorder = history.NewRecorder(pc.History, pc.Backend)
	}
	orchestrator, err := extract.New(oc)
	if err != nil {
		return nil, err
	}

	reader := document.NewReader(document.Limits{
		MaxSize:      cfg.Upload.MaxSize,
		AllowedTypes: cfg.Upload.AllowedTypes,
	}, pc.Renderer)

	return pipeline.New(pipeline.Config{
		Reader:       reader,
		Detector:     pc.Detector,
		Orderer:      layout.New(),
		Orchestrator: orchestrator,
		Model:        pc.Backend.ModelName,
		Logger:       pc.Logger,
		RequireText:  pc.RequireText,
	})
}
