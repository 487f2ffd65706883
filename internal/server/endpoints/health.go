package endpoints

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/svcctx"
	"github.com/jackzampolin/ocrion/version"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "ocrion"

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	Version       string  `json:"version"`
	Model         string  `json:"model"`
	OCREngine     string  `json:"ocr_engine"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

var _ api.Endpoint = (*HealthEndpoint)(nil)

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Health check
//	@Description	Report service status, model, OCR engine and uptime
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{
		Status:  "healthy",
		Service: ServiceName,
		Version: version.GitRelease,
	}
	if b := svcctx.BackendFrom(ctx); b != nil {
		resp.Model = b.ModelName()
	}
	if p := svcctx.PipelineFrom(ctx); p != nil {
		resp.OCREngine = p.Detector().Name()
	}
	if start := svcctx.StartTimeFrom(ctx); !start.IsZero() {
		resp.UptimeSeconds = math.Round(time.Since(start).Seconds()*100) / 100
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string          `json:"server"`
	Providers ProvidersStatus `json:"providers"`
	History   HistoryStatus   `json:"history"`
}

// ProvidersStatus shows registered backend providers and the active one.
type ProvidersStatus struct {
	LLM    []string `json:"llm"`
	Active string   `json:"active"`
	Model  string   `json:"model"`
}

// HistoryStatus shows the call history store.
type HistoryStatus struct {
	Enabled bool   `json:"enabled"`
	Dialect string `json:"dialect,omitempty"`
	Calls   int    `json:"calls"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Server status
//	@Description	Report registered providers and the history store
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Server: "initializing", Providers: ProvidersStatus{LLM: []string{}}}
	if svcctx.PipelineFrom(ctx) != nil {
		resp.Server = "running"
	}

	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Providers.LLM = registry.List()
	}
	if b := svcctx.BackendFrom(ctx); b != nil {
		resp.Providers.Active = b.ProviderName()
		resp.Providers.Model = b.ModelName()
	}

	if store := svcctx.HistoryFrom(ctx); store != nil {
		resp.History.Enabled = true
		resp.History.Dialect = store.Dialect()
		if n, err := store.Count(ctx, historyFilter{}.toQuery()); err == nil {
			resp.History.Calls = n
		} else {
			svcctx.LoggerFrom(ctx).Warn("failed to count history", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatJSON {
				return api.Output(resp)
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Providers:\n")
			fmt.Printf("  LLM:    %v\n", resp.Providers.LLM)
			fmt.Printf("  Active: %s (%s)\n", resp.Providers.Active, resp.Providers.Model)
			fmt.Printf("History:\n")
			fmt.Printf("  Enabled: %t\n", resp.History.Enabled)
			if resp.History.Enabled {
				fmt.Printf("  Dialect: %s\n", resp.History.Dialect)
				fmt.Printf("  Calls:   %d\n", resp.History.Calls)
			}
			return nil
		},
	}
}
