package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/config"
	"github.com/jackzampolin/ocrion/internal/home"
	"github.com/jackzampolin/ocrion/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ocrion",
	Short: "Schema-driven field extraction from scanned documents",
	Long: `ocrion extracts named fields from a scanned page.

A document goes through:
  - text detection (Tesseract)
  - reading-order reconstruction of the detected fragments
  - a language model prompted with your field schema
  - validation into exactly one value per schema field

Run it as a server (ocrion serve) or locally (ocrion extract, ocrion batch).`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.ocrion/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "ocrion home directory (default: $OCRION_HOME or ~/.ocrion)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the home directory and loads configuration.
func loadConfig() (*home.Dir, *config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, err
	}
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	return h, mgr, nil
}

// newLogger builds the process logger from config, writing to stderr so
// that command output on stdout stays parseable.
func newLogger(cfg *config.Config) *slog.Logger {
	return cfg.Log.NewLogger(os.Stderr)
}
