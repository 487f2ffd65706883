package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/ocrion/internal/home"
	"github.com/jackzampolin/ocrion/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. OCRION_SERVER_PORT.
const EnvPrefix = "OCRION"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config. An
// explicit cfgFile must exist; otherwise ./config.yaml and {homeDir}/config.yaml
// are tried and defaults are used when neither exists.
func NewManager(cfgFile, homeDir string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile, homeDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults, environment and config file.
func (cm *Manager) initViper(cfgFile, homeDir string) error {
	v := cm.v
	for _, e := range DefaultEntries() {
		v.SetDefault(e.Key, e.Value)
	}
	if homeDir != "" {
		v.SetDefault("history.dsn", "sqlite://"+filepath.Join(homeDir, home.HistoryFileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir != "" {
			v.AddConfigPath(homeDir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the config was read from, or "".
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A changed file that
// fails to parse or validate is ignored and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.reload(e.Name)
	})
	cm.v.WatchConfig()
}

func (cm *Manager) reload(source string) {
	cm.mu.RLock()
	logger := cm.logger
	cm.mu.RUnlock()

	cfg, err := cm.load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Warn("ignoring invalid config change", "file", source, "error", err)
		return
	}

	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	logger.Info("config reloaded", "file", source)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// HistoryDSN returns the history DSN with environment references resolved.
func (c *Config) HistoryDSN() string {
	return ResolveEnvVars(c.History.DSN)
}

// Provider returns the settings of the selected extraction backend.
func (c *Config) Provider() ProviderCfg {
	if c.Extraction.Backend == providers.OpenAIName {
		return c.Providers.OpenAI
	}
	return c.Providers.OpenRouter
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys. Only the selected backend
// receives the configured model.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{LLMProviders: make(map[string]providers.LLMProviderConfig)}

	add := func(name string, p ProviderCfg) {
		pc := providers.LLMProviderConfig{
			Type:       name,
			APIKey:     ResolveEnvVars(p.APIKey),
			BaseURL:    p.BaseURL,
			RateLimit:  p.RPS,
			MaxRetries: p.MaxRetries,
			Enabled:    true,
		}
		if c.Extraction.Backend == name {
			pc.Model = c.Extraction.Model
		}
		cfg.LLMProviders[name] = pc
	}
	add(providers.OpenRouterName, c.Providers.OpenRouter)
	add(providers.OpenAIName, c.Providers.OpenAI)

	return cfg
}

// NewLogger builds the process logger from the log settings.
func (l LogCfg) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WriteDefault writes the default configuration to the specified path. The
// history store defaults to a SQLite file next to it.
func WriteDefault(path string) error {
	dsn := "sqlite://" + filepath.Join(filepath.Dir(path), home.HistoryFileName)
	data, err := yaml.Marshal(defaultTree(dsn))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := []byte(`# ocrion configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENROUTER_API_KEY=xxx OPENAI_API_KEY=xxx
# Any key can be overridden with OCRION_<SECTION>_<KEY>, e.g. OCRION_SERVER_PORT=9000

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

// defaultTree nests the default entries into ordered YAML sections.
func defaultTree(historyDSN string) yaml.MapSlice {
	var root yaml.MapSlice
	for _, e := range DefaultEntries() {
		if e.Key == "history.dsn" {
			e.Value = historyDSN
		}
		root = insert(root, strings.Split(e.Key, "."), e.Value)
	}
	return root
}

func insert(m yaml.MapSlice, path []string, value any) yaml.MapSlice {
	if len(path) == 1 {
		return append(m, yaml.MapItem{Key: path[0], Value: value})
	}
	for i := range m {
		if m[i].Key == path[0] {
			child, _ := m[i].Value.(yaml.MapSlice)
			m[i].Value = insert(child, path[1:], value)
			return m
		}
	}
	return append(m, yaml.MapItem{Key: path[0], Value: insert(nil, path[1:], value)})
}
