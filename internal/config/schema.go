package config

import "time"

// Config holds ocrion configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server     ServerCfg     `mapstructure:"server" yaml:"server"`
	Extraction ExtractionCfg `mapstructure:"extraction" yaml:"extraction"`
	Providers  ProvidersCfg  `mapstructure:"providers" yaml:"providers"`
	Upload     UploadCfg     `mapstructure:"upload" yaml:"upload"`
	OCR        OCRCfg        `mapstructure:"ocr" yaml:"ocr"`
	History    HistoryCfg    `mapstructure:"history" yaml:"history"`
	Log        LogCfg        `mapstructure:"log" yaml:"log"`
}

// ServerCfg configures the HTTP listener.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// ExtractionCfg selects the backend and bounds each call.
type ExtractionCfg struct {
	Backend     string        `mapstructure:"backend" yaml:"backend"` // "openrouter", "openai"
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"` // Per backend call
}

// ProvidersCfg configures each supported backend.
type ProvidersCfg struct {
	OpenRouter ProviderCfg `mapstructure:"openrouter" yaml:"openrouter"`
	OpenAI     ProviderCfg `mapstructure:"openai" yaml:"openai"`
}

// ProviderCfg configures an LLM provider.
type ProviderCfg struct {
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL    string  `mapstructure:"base_url" yaml:"base_url"`
	RPS        float64 `mapstructure:"rps" yaml:"rps"` // Requests per second
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// UploadCfg limits accepted documents.
type UploadCfg struct {
	MaxSize      int64    `mapstructure:"max_size" yaml:"max_size"` // Bytes
	AllowedTypes []string `mapstructure:"allowed_types" yaml:"allowed_types"`
}

// OCRCfg configures text detection.
type OCRCfg struct {
	Language string `mapstructure:"language" yaml:"language"`
	Level    string `mapstructure:"level" yaml:"level"` // "word", "line"
}

// HistoryCfg configures the backend call history store.
type HistoryCfg struct {
	// DSN is sqlite://path or postgres://...; empty disables history.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LogCfg configures structured logging.
type LogCfg struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// Addr returns host:port.
func (s ServerCfg) Addr() string {
	return s.Host + ":" + itoa(s.Port)
}
