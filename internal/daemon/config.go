// Package daemon manages the awardd daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/hearthboard/awards/internal/app/batch"
	"github.com/hearthboard/awards/internal/infra/events"
	"github.com/hearthboard/awards/internal/infra/sqlite"
)

// Config holds all daemon configuration. Values come from config.toml and
// are then overridden by AWARDD_* environment variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Events     EventsConfig     `toml:"events"`
	Logging    LoggingConfig    `toml:"logging"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	RateLimit  RateLimitConfig  `toml:"ratelimit"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `toml:"host" env:"AWARDD_HOST"`
	Port int    `toml:"port" env:"AWARDD_PORT"`
}

// StorageConfig controls the SQLite store.
type StorageConfig struct {
	Dir         string `toml:"dir" env:"AWARDD_DATA_DIR"`
	HistoryDays int    `toml:"history_days" env:"AWARDD_HISTORY_DAYS"`
}

// EvaluationConfig tunes the batch manager. Durations use Go syntax ("2s").
type EvaluationConfig struct {
	Debounce        string `toml:"debounce" env:"AWARDD_DEBOUNCE"`
	MaxWait         string `toml:"max_wait" env:"AWARDD_MAX_WAIT"`
	MaxApplyRetries int    `toml:"max_apply_retries" env:"AWARDD_MAX_APPLY_RETRIES"`
	MaxBacklog      int    `toml:"max_backlog" env:"AWARDD_MAX_BACKLOG"` // health threshold, 0 = unchecked
}

// CatalogConfig locates the award catalog. Empty uses the built-in one.
type CatalogConfig struct {
	Path string `toml:"path" env:"AWARDD_CATALOG"`
}

// EventsConfig enables change-event intake from a Redis stream.
type EventsConfig struct {
	RedisURL string `toml:"redis_url" env:"AWARDD_REDIS_URL"` // empty disables intake
	Stream   string `toml:"stream" env:"AWARDD_EVENTS_STREAM"`
	Group    string `toml:"group" env:"AWARDD_EVENTS_GROUP"`
	Consumer string `toml:"consumer" env:"AWARDD_EVENTS_CONSUMER"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level" env:"AWARDD_LOG_LEVEL"`   // debug, info, warn, error
	Format string `toml:"format" env:"AWARDD_LOG_FORMAT"` // text, json
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus" env:"AWARDD_PROMETHEUS"`
}

// RateLimitConfig limits POST /api/events per client. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `toml:"rps" env:"AWARDD_RATELIMIT_RPS"`
	Burst int     `toml:"burst" env:"AWARDD_RATELIMIT_BURST"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	def := batch.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		Storage: StorageConfig{
			Dir:         awarddHome(),
			HistoryDays: sqlite.DefaultHistoryDays,
		},
		Evaluation: EvaluationConfig{
			Debounce:        def.Debounce.String(),
			MaxWait:         def.MaxWait.String(),
			MaxApplyRetries: def.MaxApplyRetries,
			MaxBacklog:      10000,
		},
		Events: EventsConfig{
			Stream: events.DefaultStream,
			Group:  events.DefaultGroup,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
	}
}

// ConfigPath returns the location of config.toml.
func ConfigPath() string {
	return filepath.Join(awarddHome(), "config.toml")
}

// LoadConfig reads ConfigPath, falling back to defaults, then applies
// environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom reads config from path. A missing file is not an error.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return cfg, fmt.Errorf("parse config: unknown key %s", undec[0])
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Evaluation.Batch(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to ConfigPath.
func SaveConfig(cfg Config) error {
	return SaveConfigTo(ConfigPath(), cfg)
}

// SaveConfigTo writes the config as TOML to path.
func SaveConfigTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Batch converts the evaluation section into batch manager settings.
func (c EvaluationConfig) Batch() (batch.Config, error) {
	debounce, err := parseDuration("evaluation.debounce", c.Debounce, batch.DefaultConfig().Debounce)
	if err != nil {
		return batch.Config{}, err
	}
	maxWait, err := parseDuration("evaluation.max_wait", c.MaxWait, 0)
	if err != nil {
		return batch.Config{}, err
	}
	if maxWait > 0 && maxWait < debounce {
		return batch.Config{}, fmt.Errorf("evaluation.max_wait %s is shorter than debounce %s", maxWait, debounce)
	}
	if c.MaxApplyRetries < 0 {
		return batch.Config{}, fmt.Errorf("evaluation.max_apply_retries must not be negative")
	}
	return batch.Config{
		Debounce:        debounce,
		MaxWait:         maxWait,
		MaxApplyRetries: c.MaxApplyRetries,
	}, nil
}

// ConsumerConfig converts the events section into consumer settings.
func (c EventsConfig) ConsumerConfig() events.Config {
	return events.Config{
		Stream:   c.Stream,
		Group:    c.Group,
		Consumer: c.Consumer,
	}
}

// parseDuration parses a duration setting. Empty means fallback.
func parseDuration(key, s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// awarddHome returns the awardd data directory.
func awarddHome() string {
	if env := os.Getenv("AWARDD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".awardd")
}

// Home is exported for use by other packages.
func Home() string {
	return awarddHome()
}
