package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/client"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/poller"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/default.yaml"

// 環境變數覆蓋，優先級: --api > 環境變數 > 配置文件
const (
	envBaseURL  = "INGESTFLOW_API_BASE_URL"
	envLogLevel = "INGESTFLOW_LOG_LEVEL"
)

// Config represents the complete client configuration structure
// Maps config file fields through YAML tags
type Config struct {
	API struct {
		BaseURL   string        `yaml:"base_url"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit int           `yaml:"rate_limit"` // requests per second, 0 disables
	} `yaml:"api"`

	Poller struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"poller"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // text, json
	} `yaml:"log"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}

// resolveConfig loads the --config file, tolerating a missing file only at
// the default path, then applies environment overrides, the --api flag and defaults.
// A .env file in the working directory is loaded first when present.
func resolveConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		if configFile != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	if v := os.Getenv(envBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if apiOverride != "" {
		cfg.API.BaseURL = apiOverride
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills every unset field
func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = client.DefaultBaseURL
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = client.DefaultTimeout
	}
	if cfg.API.RateLimit < 0 {
		cfg.API.RateLimit = 0
	}
	if cfg.Poller.Interval <= 0 {
		cfg.Poller.Interval = poller.DefaultInterval
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// newLogger builds the slog logger described by cfg.Log
func newLogger(cfg *Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", cfg.Log.Format)
	}
}
