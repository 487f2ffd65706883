package config

import (
	"errors"
	"strconv"
	"time"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// Limits enforced by Validate.
const (
	MinMaxTokens  = 1
	MaxMaxTokens  = 32000
	MinUploadSize = 1 << 10
	MaxUploadSize = 100 << 20
)

// Entry is a single default configuration value.
type Entry struct {
	Key         string
	Value       any
	Description string
}

// DefaultEntries returns the default configuration entries in file order.
func DefaultEntries() []Entry {
	return []Entry{
		// Server
		{Key: "server.host", Value: "127.0.0.1", Description: "Interface the HTTP server binds to"},
		{Key: "server.port", Value: 8000, Description: "HTTP server port"},

		// Extraction
		{Key: "extraction.backend", Value: "openrouter", Description: "Provider used for extraction (openrouter or openai)"},
		{Key: "extraction.model", Value: "anthropic/claude-sonnet-4-20250514", Description: "Model requested from the backend"},
		{Key: "extraction.max_tokens", Value: 4096, Description: "Maximum completion tokens (1 to 32000)"},
		{Key: "extraction.temperature", Value: 0.0, Description: "Sampling temperature"},
		{Key: "extraction.timeout", Value: "60s", Description: "Timeout for each backend call"},

		// Providers
		{Key: "providers.openrouter.api_key", Value: "${OPENROUTER_API_KEY}", Description: "OpenRouter API key (uses environment variable)"},
		{Key: "providers.openrouter.base_url", Value: "https://openrouter.ai/api/v1", Description: "OpenRouter API base URL"},
		{Key: "providers.openrouter.rps", Value: 2.0, Description: "Rate limit in requests per second for OpenRouter"},
		{Key: "providers.openrouter.max_retries", Value: 2, Description: "Transport retries for failed OpenRouter requests"},
		{Key: "providers.openai.api_key", Value: "${OPENAI_API_KEY}", Description: "OpenAI API key (uses environment variable)"},
		{Key: "providers.openai.base_url", Value: "", Description: "OpenAI-compatible base URL (empty = api.openai.com)"},
		{Key: "providers.openai.max_retries", Value: 2, Description: "SDK retries for failed OpenAI requests"},

		// Upload
		{Key: "upload.max_size", Value: 5 << 20, Description: "Maximum upload size in bytes (1 KiB to 100 MiB)"},
		{Key: "upload.allowed_types", Value: []string{"image/jpeg", "image/jpg", "image/png", "application/pdf"}, Description: "Accepted MIME types"},

		// OCR
		{Key: "ocr.language", Value: "eng", Description: "Tesseract language"},
		{Key: "ocr.level", Value: "word", Description: "Fragment granularity (word or line)"},

		// History
		{Key: "history.dsn", Value: "", Description: "History store: sqlite://path or postgres://... (unset = sqlite in home, empty = disabled)"},

		// Logging
		{Key: "log.level", Value: "info", Description: "Log level (debug, info, warn, error)"},
		{Key: "log.format", Value: "text", Description: "Log format (text or json)"},
	}
}

// GetDefault returns the default entry for a key.
func GetDefault(key string) (*Entry, error) {
	for _, e := range DefaultEntries() {
		if e.Key == key {
			return &e, nil
		}
	}
	return nil, ErrNoDefault
}

// DefaultConfig returns configuration with the default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{Host: "127.0.0.1", Port: 8000},
		Extraction: ExtractionCfg{
			Backend:   "openrouter",
			Model:     "anthropic/claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   60 * time.Second,
		},
		Providers: ProvidersCfg{
			OpenRouter: ProviderCfg{
				APIKey:     "${OPENROUTER_API_KEY}",
				BaseURL:    "https://openrouter.ai/api/v1",
				RPS:        2.0,
				MaxRetries: 2,
			},
			OpenAI: ProviderCfg{
				APIKey:     "${OPENAI_API_KEY}",
				MaxRetries: 2,
			},
		},
		Upload: UploadCfg{
			MaxSize:      5 << 20,
			AllowedTypes: []string{"image/jpeg", "image/jpg", "image/png", "application/pdf"},
		},
		OCR: OCRCfg{Language: "eng", Level: "word"},
		Log: LogCfg{Level: "info", Format: "text"},
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
