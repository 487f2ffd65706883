package endpoints

import (
	"github.com/jackzampolin/ocrion/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// MaxUploadSize caps the uploaded document size in bytes.
	MaxUploadSize int64
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{},

		// Extraction
		&ExtractEndpoint{MaxUploadSize: cfg.MaxUploadSize},

		// Call history endpoints
		&ListHistoryEndpoint{},
		&GetHistoryEndpoint{},

		// Prompt endpoints
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

// HistoryCommands returns endpoints grouped under the "history" subcommand.
func HistoryCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListHistoryEndpoint{},
		&GetHistoryEndpoint{},
	}
}

// PromptCommands returns endpoints grouped under the "prompts" subcommand.
func PromptCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
	}
}
