// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/snapvault/snapvault/internal/browser"
	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/notify/pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Worker  WorkerConfig   `mapstructure:"worker"`
	Capture CaptureConfig  `mapstructure:"capture"`
	Browser browser.Config `mapstructure:"browser"`
	Storage StorageConfig  `mapstructure:"storage"`
	DB      DBConfig       `mapstructure:"db"`
	Notify  NotifyConfig   `mapstructure:"notify"`
	Ingest  IngestConfig   `mapstructure:"ingest"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WorkerConfig governs job fan-out.
type WorkerConfig struct {
	Count      int `mapstructure:"count"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// CaptureConfig holds the per-job retry, timeout, politeness, and breaker
// knobs.
type CaptureConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialTimeout    time.Duration `mapstructure:"initial_timeout"`
	TimeoutMultiplier float64       `mapstructure:"timeout_multiplier"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	Jitter            time.Duration `mapstructure:"jitter"`
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	ResetTimeout      time.Duration `mapstructure:"reset_timeout"`
}

// Options converts the section into orchestrator options.
func (c CaptureConfig) Options() capture.Options {
	return capture.Options{
		MaxAttempts:       c.MaxAttempts,
		InitialTimeout:    c.InitialTimeout,
		TimeoutMultiplier: c.TimeoutMultiplier,
		BaseDelay:         c.BaseDelay,
		Jitter:            c.Jitter,
		FailureThreshold:  c.FailureThreshold,
		ResetTimeout:      c.ResetTimeout,
	}
}

// StorageConfig selects and configures the artifact store backend.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	LocalDir string `mapstructure:"local_dir"`
}

// DBConfig selects and configures the job record store.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// NotifyConfig selects the completion event publisher.
type NotifyConfig struct {
	Provider string        `mapstructure:"provider"`
	PubSub   pubsub.Config `mapstructure:"pubsub"`
}

// IngestConfig bounds uploaded URL lists.
type IngestConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNAPVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("capture.max_attempts", 3)
	v.SetDefault("capture.initial_timeout", "30s")
	v.SetDefault("capture.timeout_multiplier", 2.0)
	v.SetDefault("capture.base_delay", "2s")
	v.SetDefault("capture.jitter", "3s")
	v.SetDefault("capture.failure_threshold", 5)
	v.SetDefault("capture.reset_timeout", "60s")
	v.SetDefault("browser.host_qps", 1.0)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "data/captures")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("ingest.max_rows", 10000)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	if err := c.Capture.Options().Validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs provider")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local provider")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("storage.provider %q is not one of gcs, local, memory, noop", c.Storage.Provider)
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("db.provider %q is not one of postgres, memory", c.DB.Provider)
	}
	switch c.Notify.Provider {
	case "pubsub":
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicID == "" {
			return fmt.Errorf("notify.pubsub.project_id and topic_id must be set for the pubsub provider")
		}
	case "noop":
	default:
		return fmt.Errorf("notify.provider %q is not one of pubsub, noop", c.Notify.Provider)
	}
	if c.Ingest.MaxRows <= 0 {
		return fmt.Errorf("ingest.max_rows must be > 0")
	}
	return nil
}
