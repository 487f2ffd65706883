package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackzampolin/ocrion/internal/providers"
)

// ErrMissingAPIKey is returned when the selected backend has no usable key.
var ErrMissingAPIKey = errors.New("missing API key")

// SupportedTypes are the MIME types the document reader can handle.
var SupportedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/tiff":      true,
	"image/bmp":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Validate checks every setting against its allowed range.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Extraction.Backend {
	case providers.OpenRouterName, providers.OpenAIName:
	default:
		add("extraction.backend must be %q or %q, got %q", providers.OpenRouterName, providers.OpenAIName, c.Extraction.Backend)
	}
	if strings.TrimSpace(c.Extraction.Model) == "" {
		add("extraction.model is required")
	}
	if c.Extraction.MaxTokens < MinMaxTokens || c.Extraction.MaxTokens > MaxMaxTokens {
		add("extraction.max_tokens must be between %d and %d, got %d", MinMaxTokens, MaxMaxTokens, c.Extraction.MaxTokens)
	}
	if c.Extraction.Temperature < 0 || c.Extraction.Temperature > 2 {
		add("extraction.temperature must be between 0 and 2, got %v", c.Extraction.Temperature)
	}
	if c.Extraction.Timeout <= 0 {
		add("extraction.timeout must be positive, got %s", c.Extraction.Timeout)
	}

	if c.Upload.MaxSize < MinUploadSize || c.Upload.MaxSize > MaxUploadSize {
		add("upload.max_size must be between %d and %d bytes, got %d", MinUploadSize, MaxUploadSize, c.Upload.MaxSize)
	}
	if len(c.Upload.AllowedTypes) == 0 {
		add("upload.allowed_types must not be empty")
	}
	for _, t := range c.Upload.AllowedTypes {
		if !SupportedTypes[strings.ToLower(t)] {
			add("upload.allowed_types: unsupported type %q", t)
		}
	}

	switch c.OCR.Level {
	case "word", "line":
	default:
		add("ocr.level must be word or line, got %q", c.OCR.Level)
	}

	dsn := c.HistoryDSN()
	if dsn != "" && !strings.HasPrefix(dsn, "sqlite://") &&
		!strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		add("history.dsn must start with sqlite://, postgres:// or postgresql://")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// CheckAPIKey reports a missing or unresolved API key for the selected backend.
func (c *Config) CheckAPIKey() error {
	raw := c.Provider().APIKey
	key := ResolveEnvVars(raw)
	if strings.TrimSpace(key) == "" {
		if strings.Contains(raw, "${") {
			return fmt.Errorf("%w for %s: %s is not set", ErrMissingAPIKey, c.Extraction.Backend, strings.Trim(raw, "${}"))
		}
		return fmt.Errorf("%w for %s", ErrMissingAPIKey, c.Extraction.Backend)
	}
	if strings.HasPrefix(key, "your-") || strings.EqualFold(key, "changeme") {
		return fmt.Errorf("%w for %s: placeholder value", ErrMissingAPIKey, c.Extraction.Backend)
	}
	return nil
}
