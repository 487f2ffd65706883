// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackzampolin/ocrion/internal/config"
	"github.com/jackzampolin/ocrion/internal/history"
	"github.com/jackzampolin/ocrion/internal/home"
	"github.com/jackzampolin/ocrion/internal/pipeline"
	"github.com/jackzampolin/ocrion/internal/prompts"
	"github.com/jackzampolin/ocrion/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Pipeline      *pipeline.Pipeline
	Registry      *providers.Registry
	Backend       *providers.Backend
	History       *history.Store
	Prompts       *prompts.Catalog
	ConfigManager *config.Manager
	Logger        *slog.Logger
	Home          *home.Dir
	StartTime     time.Time
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// PipelineFrom extracts the extraction pipeline from context.
func PipelineFrom(ctx context.Context) *pipeline.Pipeline {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pipeline
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// BackendFrom extracts the extraction backend from context.
func BackendFrom(ctx context.Context) *providers.Backend {
	if s := ServicesFrom(ctx); s != nil {
		return s.Backend
	}
	return nil
}

// HistoryFrom extracts the call history store from context.
func HistoryFrom(ctx context.Context) *history.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.History
	}
	return nil
}

// PromptsFrom extracts the prompt catalog from context.
func PromptsFrom(ctx context.Context) *prompts.Catalog {
	if s := ServicesFrom(ctx); s != nil {
		return s.Prompts
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// StartTimeFrom returns when the services were started.
func StartTimeFrom(ctx context.Context) time.Time {
	if s := ServicesFrom(ctx); s != nil {
		return s.StartTime
	}
	return time.Time{}
}
