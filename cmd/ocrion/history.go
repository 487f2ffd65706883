package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/history"
	"github.com/jackzampolin/ocrion/internal/region"
	"github.com/jackzampolin/ocrion/internal/server"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local backend call history",
}

var (
	exportOutput    string
	exportRequestID string
	exportProvider  string
	exportModel     string
	exportOutcome   string
	exportSince     time.Duration
)

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export backend calls to an Excel workbook",
	Long: `Export recorded backend calls to an .xlsx workbook with a Calls sheet
and a Summary sheet of outcome counts.

Examples:
  ocrion history export -o calls.xlsx
  ocrion history export --outcome unparseable --since 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := server.OpenHistory(ctx, mgr.Get(), newLogger(mgr.Get()))
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("call history is disabled (history.dsn is empty)")
		}
		defer store.Close()

		filter := history.QueryFilter{
			RequestID: exportRequestID,
			Provider:  exportProvider,
			Model:     exportModel,
			Outcome:   region.Outcome(exportOutcome),
		}
		if exportSince > 0 {
			after := time.Now().Add(-exportSince)
			filter.After = &after
		}

		data, err := history.Export(ctx, store, filter)
		if err != nil {
			return err
		}

		path := exportOutput
		if path == "" {
			path = filepath.Join(h.ExportsDir(), "calls-"+time.Now().Format("20060102-150405")+".xlsx")
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count recorded backend calls by outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		_, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := server.OpenHistory(ctx, mgr.Get(), newLogger(mgr.Get()))
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("call history is disabled (history.dsn is empty)")
		}
		defer store.Close()

		counts, err := store.CountByOutcome(ctx, history.QueryFilter{})
		if err != nil {
			return err
		}
		out := make(map[string]int, len(counts))
		for k, v := range counts {
			out[string(k)] = v
		}
		return api.Output(out)
	},
}

func init() {
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output .xlsx path (default: <home>/exports/calls-<time>.xlsx)")
	historyExportCmd.Flags().StringVar(&exportRequestID, "request-id", "", "Filter by request ID")
	historyExportCmd.Flags().StringVar(&exportProvider, "provider", "", "Filter by provider")
	historyExportCmd.Flags().StringVar(&exportModel, "model", "", "Filter by model")
	historyExportCmd.Flags().StringVar(&exportOutcome, "outcome", "", "Filter by outcome")
	historyExportCmd.Flags().DurationVar(&exportSince, "since", 0, "Only calls newer than this (e.g. 24h)")

	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyStatsCmd)
	rootCmd.AddCommand(historyCmd)
}
