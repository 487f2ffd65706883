package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/server/endpoints"
)

var serverURL string

var historyAPICmd = &cobra.Command{
	Use:   "history",
	Short: "Backend call history commands",
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Prompt template commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Top-level endpoints
	registry := api.NewRegistry()
	registry.Register(&endpoints.HealthEndpoint{})
	registry.Register(&endpoints.StatusEndpoint{})
	registry.Register(&endpoints.ExtractEndpoint{})
	registry.Register(&endpoints.SwaggerEndpoint{})
	registry.Register(&endpoints.SwaggerUIEndpoint{})
	apiCmd := registry.BuildCommands(getServerURL)

	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8000", "Server URL",
	)

	for _, ep := range endpoints.HistoryCommands() {
		historyAPICmd.AddCommand(ep.Command(getServerURL))
	}
	for _, ep := range endpoints.PromptCommands() {
		promptsCmd.AddCommand(ep.Command(getServerURL))
	}

	apiCmd.AddCommand(historyAPICmd)
	apiCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(apiCmd)
}
