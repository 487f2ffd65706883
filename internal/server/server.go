package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/config"
	"github.com/jackzampolin/ocrion/internal/document"
	"github.com/jackzampolin/ocrion/internal/history"
	"github.com/jackzampolin/ocrion/internal/home"
	"github.com/jackzampolin/ocrion/internal/ocr"
	"github.com/jackzampolin/ocrion/internal/providers"
	"github.com/jackzampolin/ocrion/internal/server/endpoints"
	"github.com/jackzampolin/ocrion/internal/svcctx"
)

// Server is the main ocrion HTTP server.
// It opens the call history store on start and closes it on shutdown.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	backend    *providers.Backend
	configMgr  *config.Manager
	home       *home.Dir
	detector   ocr.Detector
	renderer   document.Renderer
	history    *history.Store
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu          sync.RWMutex
	running     bool
	initialized bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config)
	Host string
	// Port is the port to listen on (default: server.port from config)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the ocrion home directory
	Home *home.Dir
	// Registry overrides the provider registry built from config
	Registry *providers.Registry
	// Detector overrides the configured text detector
	Detector ocr.Detector
	// Renderer rasterizes PDF uploads (default: pdftoppm)
	Renderer document.Renderer
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = document.Pdftoppm{}
	}

	c := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = c.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = strconv.Itoa(c.Server.Port)
	}

	// Create provider registry unless one was injected
	registry := cfg.Registry
	if registry == nil {
		registry = providers.NewRegistryFromConfig(c.ToProviderRegistryConfig(), cfg.Logger)

		// Watch for config changes
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		registry:  registry,
		backend:   NewBackend(c, registry),
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		detector:  cfg.Detector,
		renderer:  cfg.Renderer,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{MaxUploadSize: c.Upload.MaxSize}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// Two backend calls plus detection.
		WriteTimeout: 2*c.Extraction.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Init opens the history store and builds the extraction pipeline. A
// missing text detector leaves the server up with POST /extract returning
// 503. Start calls Init when it has not run yet.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	cfg := s.configMgr.Get()
	if err := cfg.CheckAPIKey(); err != nil {
		s.logger.Warn("extraction backend not configured", "error", err)
	}

	store, err := OpenHistory(ctx, cfg, s.logger)
	if err != nil {
		return err
	}
	s.history = store
	if store != nil {
		s.logger.Info("call history enabled", "dialect", store.Dialect())
	}

	services := &svcctx.Services{
		Registry:      s.registry,
		Backend:       s.backend,
		History:       store,
		Prompts:       NewCatalog(),
		ConfigManager: s.configMgr,
		Logger:        s.logger,
		Home:          s.home,
		StartTime:     time.Now(),
	}

	if s.detector == nil {
		if det, err := NewDetector(cfg); err != nil {
			s.logger.Error("text detection unavailable, extraction disabled", "error", err)
		} else {
			s.detector = det
		}
	}
	if s.detector != nil {
		p, err := NewPipeline(PipelineConfig{
			Config:      cfg,
			Backend:     s.backend,
			Detector:    s.detector,
			Renderer:    s.renderer,
			History:     store,
			RequireText: true,
			Logger:      s.logger,
		})
		if err != nil {
			s.closeResources()
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		services.Pipeline = p
		s.logger.Info("extraction pipeline ready", "ocr", s.detector.Name(), "backend", s.backend.ProviderName(), "model", s.backend.ModelName())
	}

	s.services = services
	s.initialized = true
	return nil
}

// Start initializes the server and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		s.setNotRunning()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops the HTTP server and releases the history store and detector.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.mu.Lock()
	s.closeResources()
	s.mu.Unlock()

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

// closeResources must be called with mu held.
func (s *Server) closeResources() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("history close error", "error", err)
		}
		s.history = nil
	}
	if c, ok := s.detector.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Error("detector close error", "error", err)
		}
	}
}

// Close releases resources acquired by Init without serving.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeResources()
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.currentServices(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the extraction pipeline isn't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if services := s.currentServices(); services == nil || services.Pipeline == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"success":false,"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
