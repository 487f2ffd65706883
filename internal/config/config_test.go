package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/ocrion/internal/providers"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Providers.OpenRouter.APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if cfg.Server.Addr() != "127.0.0.1:8000" {
		t.Errorf("Addr() = %s", cfg.Server.Addr())
	}
}

func TestDefaultEntriesMatchDefaultConfig(t *testing.T) {
	mgr, err := NewManager("", "")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	got := mgr.Get()
	want := DefaultConfig()

	if got.Extraction != want.Extraction {
		t.Errorf("extraction = %+v, want %+v", got.Extraction, want.Extraction)
	}
	if got.Providers != want.Providers {
		t.Errorf("providers = %+v, want %+v", got.Providers, want.Providers)
	}
	if got.Upload.MaxSize != want.Upload.MaxSize || len(got.Upload.AllowedTypes) != len(want.Upload.AllowedTypes) {
		t.Errorf("upload = %+v, want %+v", got.Upload, want.Upload)
	}
	if got.Server != want.Server || got.OCR != want.OCR || got.Log != want.Log {
		t.Errorf("server/ocr/log mismatch: %+v %+v %+v", got.Server, got.OCR, got.Log)
	}
}

func TestGetDefault(t *testing.T) {
	e, err := GetDefault("extraction.max_tokens")
	if err != nil {
		t.Fatalf("GetDefault() error = %v", err)
	}
	if e.Value != 4096 {
		t.Errorf("Value = %v", e.Value)
	}
	if _, err := GetDefault("nope"); !errors.Is(err, ErrNoDefault) {
		t.Errorf("expected ErrNoDefault, got %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")
		if got := ResolveEnvVars("${TEST_API_KEY}"); got != "secret123" {
			t.Errorf("expected secret123, got %s", got)
		}
	})

	t.Run("resolves inside a string", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "db")
		if got := ResolveEnvVars("postgres://${TEST_DB_HOST}:5432/x"); got != "postgres://db:5432/x" {
			t.Errorf("got %s", got)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		if got := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"); got != "" {
			t.Errorf("expected empty string, got %s", got)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		if got := ResolveEnvVars("literal-value"); got != "literal-value" {
			t.Errorf("expected literal-value, got %s", got)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9100
extraction:
  model: openai/gpt-4o
  timeout: 15s
upload:
  allowed_types: [image/png]
`)
		mgr, err := NewManager(path, "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Server.Port != 9100 {
			t.Errorf("port = %d", cfg.Server.Port)
		}
		if cfg.Extraction.Model != "openai/gpt-4o" {
			t.Errorf("model = %s", cfg.Extraction.Model)
		}
		if cfg.Extraction.Timeout != 15*time.Second {
			t.Errorf("timeout = %s", cfg.Extraction.Timeout)
		}
		if cfg.Extraction.MaxTokens != 4096 {
			t.Errorf("max_tokens default lost: %d", cfg.Extraction.MaxTokens)
		}
		if len(cfg.Upload.AllowedTypes) != 1 || cfg.Upload.AllowedTypes[0] != "image/png" {
			t.Errorf("allowed_types = %v", cfg.Upload.AllowedTypes)
		}
		if mgr.ConfigFile() != path {
			t.Errorf("ConfigFile() = %s", mgr.ConfigFile())
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9100\n")
		t.Setenv("OCRION_SERVER_PORT", "9200")
		t.Setenv("OCRION_EXTRACTION_MAX_TOKENS", "1000")

		mgr, err := NewManager(path, "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Server.Port != 9200 {
			t.Errorf("port = %d, want 9200", cfg.Server.Port)
		}
		if cfg.Extraction.MaxTokens != 1000 {
			t.Errorf("max_tokens = %d, want 1000", cfg.Extraction.MaxTokens)
		}
	})

	t.Run("history defaults to home", func(t *testing.T) {
		dir := t.TempDir()
		mgr, err := NewManager("", dir)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		want := "sqlite://" + filepath.Join(dir, "history.db")
		if got := mgr.Get().HistoryDSN(); got != want {
			t.Errorf("HistoryDSN() = %s, want %s", got, want)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		path := writeConfig(t, "extraction:\n  max_tokens: 50000\n")
		if _, err := NewManager(path, ""); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		if _, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"backend", func(c *Config) { c.Extraction.Backend = "bard" }, "extraction.backend"},
		{"model", func(c *Config) { c.Extraction.Model = " " }, "extraction.model"},
		{"max tokens low", func(c *Config) { c.Extraction.MaxTokens = 0 }, "extraction.max_tokens"},
		{"max tokens high", func(c *Config) { c.Extraction.MaxTokens = 32001 }, "extraction.max_tokens"},
		{"timeout", func(c *Config) { c.Extraction.Timeout = 0 }, "extraction.timeout"},
		{"upload small", func(c *Config) { c.Upload.MaxSize = 1023 }, "upload.max_size"},
		{"upload large", func(c *Config) { c.Upload.MaxSize = 100<<20 + 1 }, "upload.max_size"},
		{"no types", func(c *Config) { c.Upload.AllowedTypes = nil }, "upload.allowed_types"},
		{"bad type", func(c *Config) { c.Upload.AllowedTypes = []string{"text/html"} }, "unsupported type"},
		{"ocr level", func(c *Config) { c.OCR.Level = "page" }, "ocr.level"},
		{"dsn", func(c *Config) { c.History.DSN = "mysql://x" }, "history.dsn"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	t.Run("limits are inclusive", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Extraction.MaxTokens = 32000
		cfg.Upload.MaxSize = 1024
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestConfig_CheckAPIKey(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("OPENROUTER_API_KEY", "")
	err := cfg.CheckAPIKey()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Errorf("error should name the variable: %v", err)
	}

	t.Setenv("OPENROUTER_API_KEY", "your-api-key-here")
	if err := cfg.CheckAPIKey(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected placeholder to be rejected, got %v", err)
	}

	t.Setenv("OPENROUTER_API_KEY", "sk-or-real")
	if err := cfg.CheckAPIKey(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Extraction.Backend = providers.OpenAIName
	cfg.Providers.OpenAI.APIKey = "sk-literal"
	if err := cfg.CheckAPIKey(); err != nil {
		t.Errorf("unexpected error for openai: %v", err)
	}
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-key-123")

	cfg := DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "${TEST_OPENROUTER_KEY}"
	cfg.Providers.OpenAI.APIKey = "direct-key"

	rc := cfg.ToProviderRegistryConfig()
	or := rc.LLMProviders[providers.OpenRouterName]
	if or.APIKey != "or-key-123" {
		t.Errorf("openrouter key = %s", or.APIKey)
	}
	if or.Model != cfg.Extraction.Model {
		t.Errorf("selected backend should carry model, got %q", or.Model)
	}
	if or.RateLimit != 2.0 || or.MaxRetries != 2 {
		t.Errorf("openrouter limits = %+v", or)
	}

	oa := rc.LLMProviders[providers.OpenAIName]
	if oa.APIKey != "direct-key" {
		t.Errorf("openai key = %s", oa.APIKey)
	}
	if oa.Model != "" {
		t.Errorf("unselected backend should keep its default model, got %q", oa.Model)
	}
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, "extraction:\n  model: first\n")
	mgr, err := NewManager(path, "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var calls atomic.Int32
	var last atomic.Value
	mgr.OnChange(func(cfg *Config) {
		calls.Add(1)
		last.Store(cfg.Extraction.Model)
	})

	rewrite := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := mgr.v.ReadInConfig(); err != nil {
			t.Fatal(err)
		}
		mgr.reload(path)
	}

	rewrite("extraction:\n  model: second\n")
	if calls.Load() != 1 || last.Load() != "second" {
		t.Fatalf("callback not invoked with new config (calls=%d)", calls.Load())
	}
	if mgr.Get().Extraction.Model != "second" {
		t.Errorf("Get() not updated")
	}

	rewrite("extraction:\n  model: third\n  max_tokens: 0\n")
	if calls.Load() != 1 {
		t.Error("invalid config should not trigger callbacks")
	}
	if mgr.Get().Extraction.Model != "second" {
		t.Error("invalid config replaced the active one")
	}
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: 8001\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Server.Port
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("# ocrion configuration")) {
		t.Error("missing header")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("written config is not YAML: %v", err)
	}
	for _, section := range []string{"server", "extraction", "providers", "upload", "ocr", "history", "log"} {
		if _, ok := parsed[section]; !ok {
			t.Errorf("missing section %s", section)
		}
	}

	mgr, err := NewManager(path, "")
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if mgr.Get().Extraction.Timeout != 60*time.Second {
		t.Errorf("timeout = %s", mgr.Get().Extraction.Timeout)
	}
	want := "sqlite://" + filepath.Join(filepath.Dir(path), "history.db")
	if got := mgr.Get().HistoryDSN(); got != want {
		t.Errorf("HistoryDSN() = %s, want %s", got, want)
	}
}
