package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ocrion server",
	Long: `Start the ocrion HTTP server.

The server provides:
  - POST /extract      - Extract schema fields from an uploaded document
  - GET  /health       - Service health, model and OCR engine
  - GET  /status       - Providers and call history store
  - GET  /history      - Recorded backend calls
  - GET  /api/prompts  - Embedded prompt templates
  - GET  /swagger      - API documentation

Config changes to provider settings are applied without a restart.

Examples:
  ocrion serve                    # Start on the configured port (default 8000)
  ocrion serve --port 3000        # Start on custom port
  ocrion serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(mgr.Get())
		slog.SetDefault(logger)

		mgr.SetLogger(logger)
		mgr.WatchConfig()
		if f := mgr.ConfigFile(); f != "" {
			logger.Info("loaded config", "file", f)
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")

	rootCmd.AddCommand(serveCmd)
}
