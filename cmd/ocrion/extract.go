package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/config"
	"github.com/jackzampolin/ocrion/internal/document"
	"github.com/jackzampolin/ocrion/internal/history"
	"github.com/jackzampolin/ocrion/internal/pipeline"
	"github.com/jackzampolin/ocrion/internal/providers"
	"github.com/jackzampolin/ocrion/internal/region"
	"github.com/jackzampolin/ocrion/internal/server"
	"github.com/jackzampolin/ocrion/internal/server/endpoints"
)

// localFlags are shared by extract and batch.
type localFlags struct {
	schemaFile string
	allowEmpty bool
	noHistory  bool
}

func (f *localFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.schemaFile, "schema", "s", "", "JSON schema file mapping field names to descriptions")
	cmd.Flags().BoolVar(&f.allowEmpty, "allow-empty", false, "Ask the backend even when no text is detected (every field comes back null)")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record backend calls")
	_ = cmd.MarkFlagRequired("schema")
}

// localRun is a pipeline built from local config, plus what it holds open.
type localRun struct {
	pipeline *pipeline.Pipeline
	schema   region.Schema
	history  *history.Store
	closers  []func() error
	logger   *slog.Logger
}

func (r *localRun) Close() {
	for _, c := range r.closers {
		if err := c(); err != nil {
			r.logger.Warn("cleanup failed", "error", err)
		}
	}
}

// newLocalRun builds the extraction pipeline without a server.
func newLocalRun(ctx context.Context, f *localFlags) (*localRun, error) {
	schemaData, err := os.ReadFile(f.schemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	schema, err := region.ParseSchema(schemaData)
	if err != nil {
		return nil, err
	}

	_, mgr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	logger := newLogger(cfg)

	if err := cfg.CheckAPIKey(); err != nil {
		return nil, err
	}

	run := &localRun{schema: schema, logger: logger}

	registry := providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig(), logger)
	backend := server.NewBackend(cfg, registry)

	detector, err := server.NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := detector.(interface{ Close() error }); ok {
		run.closers = append(run.closers, c.Close)
	}

	if !f.noHistory {
		store, err := server.OpenHistory(ctx, cfg, logger)
		if err != nil {
			run.Close()
			return nil, err
		}
		if store != nil {
			run.history = store
			run.closers = append(run.closers, store.Close)
		}
	}

	run.pipeline, err = server.NewPipeline(server.PipelineConfig{
		Config:      cfg,
		Backend:     backend,
		Detector:    detector,
		Renderer:    document.Pdftoppm{},
		History:     run.history,
		RequireText: !f.allowEmpty,
		Logger:      logger,
	})
	if err != nil {
		run.Close()
		return nil, err
	}
	return run, nil
}

var extractFlags localFlags

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract schema fields from a document locally",
	Long: `Run the extraction pipeline on one document without a server.

The schema file is a JSON object mapping field names to descriptions:

  {"invoice_number": "Unique invoice identifier", "total": "Final amount including tax"}

Examples:
  ocrion extract invoice.png --schema fields.json
  ocrion extract scan.pdf -s fields.json -o json
  ocrion extract blank.png -s fields.json --allow-empty`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		run, err := newLocalRun(ctx, &extractFlags)
		if err != nil {
			return err
		}
		defer run.Close()

		data, err := readDocument(args[0])
		if err != nil {
			return err
		}

		res, err := run.pipeline.Run(ctx, pipeline.Request{
			Name:   filepath.Base(args[0]),
			Data:   data,
			Schema: run.schema,
		})
		if err != nil {
			return err
		}
		return api.Output(endpoints.ExtractionResponse{
			Success:  true,
			Data:     res.Data,
			Metadata: res.Metadata,
		})
	},
}

// readDocument reads path, refusing files beyond the largest configurable
// upload size before loading them.
func readDocument(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > config.MaxUploadSize {
		return nil, fmt.Errorf("%s: %w", path, document.ErrTooLarge)
	}
	return os.ReadFile(path)
}

func init() {
	extractFlags.register(extractCmd)
	rootCmd.AddCommand(extractCmd)
}
