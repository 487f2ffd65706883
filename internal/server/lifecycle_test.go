package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jackzampolin/ocrion/internal/config"
	"github.com/jackzampolin/ocrion/internal/ocr"
	"github.com/jackzampolin/ocrion/internal/providers"
	"github.com/jackzampolin/ocrion/internal/testutil"
)

func startServer(t *testing.T) (*Server, testutil.ServerConfig, *testutil.StartServer) {
	t.Helper()
	cfg := testutil.NewServerConfig(t)

	mgr, err := config.NewManager(cfg.ConfigFile, cfg.HomeDir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	registry := providers.NewRegistry()
	registry.Register(providers.OpenRouterName, providers.NewMockClient())

	srv, err := New(Config{
		ConfigManager: mgr,
		Registry:      registry,
		Detector:      ocr.NewStatic(),
		Logger:        cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	starter := &testutil.StartServer{Cancel: cancel, Done: done}
	if err := testutil.WaitForServer(cfg.URL(), 10*time.Second); err != nil {
		starter.Stop()
		t.Fatalf("server did not start: %v", err)
	}
	return srv, cfg, starter
}

func TestServer_FullLifecycle(t *testing.T) {
	srv, cfg, starter := startServer(t)

	if !srv.IsRunning() {
		t.Error("IsRunning() = false after start")
	}
	if srv.Addr() != cfg.Host+":"+cfg.Port {
		t.Errorf("Addr() = %s", srv.Addr())
	}

	status, err := testutil.GetStatus(cfg.URL())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Server != "running" || !status.History.Enabled {
		t.Errorf("unexpected status: %+v", status)
	}

	starter.Cancel()
	if err := testutil.WaitForShutdown(starter.Done, 10*time.Second); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}

	client := &http.Client{Timeout: time.Second}
	if resp, err := client.Get(cfg.URL() + "/health"); err == nil {
		resp.Body.Close()
		t.Error("server still answering after shutdown")
	}
}

func TestServer_DoubleStart(t *testing.T) {
	srv, _, starter := startServer(t)
	t.Cleanup(starter.Stop)

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail while running")
	}
}
