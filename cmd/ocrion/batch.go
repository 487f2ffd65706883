package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/pipeline"
	"github.com/jackzampolin/ocrion/internal/region"
)

// BatchItem is the outcome for one document of a batch.
type BatchItem struct {
	File     string             `json:"file" yaml:"file"`
	Success  bool               `json:"success" yaml:"success"`
	Data     *region.Record     `json:"data,omitempty" yaml:"data,omitempty"`
	Metadata *pipeline.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Error    string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchResult summarizes a batch run in input order.
type BatchResult struct {
	BatchID   string      `json:"batch_id" yaml:"batch_id"`
	Total     int         `json:"total" yaml:"total"`
	Succeeded int         `json:"succeeded" yaml:"succeeded"`
	Failed    int         `json:"failed" yaml:"failed"`
	Items     []BatchItem `json:"items" yaml:"items"`
}

var (
	batchFlags       localFlags
	batchConcurrency int
	batchFailFast    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <files...>",
	Short: "Extract schema fields from many documents locally",
	Long: `Run the extraction pipeline on several documents concurrently.

Each document is extracted independently with the same schema. Failures are
reported per document; use --fail-fast to stop at the first one.

Examples:
  ocrion batch scans/*.png --schema fields.json
  ocrion batch a.pdf b.pdf c.png -s fields.json --concurrency 8 -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchConcurrency < 1 {
			return fmt.Errorf("--concurrency must be at least 1, got %d", batchConcurrency)
		}

		run, err := newLocalRun(cmd.Context(), &batchFlags)
		if err != nil {
			return err
		}
		defer run.Close()

		batchID := uuid.New().String()
		logger := run.logger.With("batch_id", batchID)
		items := make([]BatchItem, len(args))

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(batchConcurrency)
		for i, path := range args {
			g.Go(func() error {
				item := BatchItem{File: path}
				defer func() { items[i] = item }()

				if ctx.Err() != nil {
					item.Error = ctx.Err().Error()
					return nil
				}

				data, err := readDocument(path)
				if err == nil {
					var res *pipeline.Result
					res, err = run.pipeline.Run(ctx, pipeline.Request{
						ID:     fmt.Sprintf("%s-%d", batchID, i),
						Name:   filepath.Base(path),
						Data:   data,
						Schema: run.schema,
					})
					if err == nil {
						item.Success = true
						item.Data = &res.Data
						item.Metadata = &res.Metadata
						return nil
					}
				}

				item.Error = err.Error()
				logger.Warn("document failed", "file", path, "error", err)
				if batchFailFast {
					return fmt.Errorf("%s: %w", path, err)
				}
				return nil
			})
		}
		groupErr := g.Wait()

		result := BatchResult{BatchID: batchID, Total: len(items), Items: items}
		for _, it := range items {
			if it.Success {
				result.Succeeded++
			} else {
				result.Failed++
			}
		}
		if err := api.Output(result); err != nil {
			return err
		}

		if groupErr != nil {
			return groupErr
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d documents failed", result.Failed, result.Total)
		}
		return nil
	},
}

func init() {
	batchFlags.register(batchCmd)
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 4, "Documents processed at once")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "Cancel remaining documents after the first failure")
	rootCmd.AddCommand(batchCmd)
}
