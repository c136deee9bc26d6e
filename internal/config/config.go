// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (PROTYPE_* runtime override)
//  2. Config file (~/.protype/config.yaml)
//  3. Default values
//
// Validation uses sentinel errors so callers can branch with errors.Is().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidDriver indicates an unsupported storage driver.
	ErrInvalidDriver = errors.New("invalid storage driver")

	// ErrInvalidPostgresURL indicates a missing or malformed Postgres URL.
	ErrInvalidPostgresURL = errors.New("invalid postgres url")

	// ErrInvalidInterval indicates a learning interval out of range.
	ErrInvalidInterval = errors.New("invalid learning interval")

	// ErrInvalidWeight indicates an answer weight outside [0,1].
	ErrInvalidWeight = errors.New("invalid answer weight")

	// ErrInvalidCacheSize indicates a non-positive cache size.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidInferredCap indicates a non-positive inferred edge cap.
	ErrInvalidInferredCap = errors.New("invalid inferred edge cap")

	// ErrMissingAPIKey indicates the generative provider API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Storage driver identifiers used in Config.Storage.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Storage holds persistence configuration. SQLite is the default; Postgres
// is used when Driver is "postgres" and URL is set.
type Storage struct {
	Driver string `mapstructure:"driver"`
	// URL is the Postgres connection string. SENSITIVE: never logged.
	URL string `mapstructure:"url"`
}

// Generative holds the external generative knowledge service configuration.
type Generative struct {
	Provider  string        `mapstructure:"provider"`   // "gemini" (default)
	Model     string        `mapstructure:"model"`      // e.g. "gemini-2.5-flash"
	Timeout   time.Duration `mapstructure:"timeout"`    // per-call timeout
	SourceTag string        `mapstructure:"source_tag"` // provenance label for stored answers
}

// Learning holds the background scheduler configuration.
type Learning struct {
	Interval        time.Duration `mapstructure:"interval"`         // fast loop inter-step delay
	ReinforceFactor int           `mapstructure:"reinforce_factor"` // reinforcement loop = Interval * factor
	MaxBatch        int           `mapstructure:"max_batch"`        // unanswered questions per replay step
	RebuildEvery    int           `mapstructure:"rebuild_every"`    // graph rebuild every N fast steps
	Topics          []string      `mapstructure:"topics"`           // topic-crawl rotation
	Questions       []string      `mapstructure:"questions"`        // generated-Q&A pool
}

// Cache holds the retrieval answer-cache configuration.
type Cache struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
	// RedisAddr switches the cache to Redis when non-empty (host:port).
	RedisAddr string `mapstructure:"redis_addr"`
}

// Observability holds optional OTLP trace export configuration.
type Observability struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"` // OTLP HTTP endpoint, default localhost:4318
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Config stores application configuration.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	Storage       Storage       `mapstructure:"storage"`
	Generative    Generative    `mapstructure:"generative"`
	Learning      Learning      `mapstructure:"learning"`
	Cache         Cache         `mapstructure:"cache"`
	Observability Observability `mapstructure:"observability"`

	// SearchEnabled controls the full-text index tier (sqlite only).
	SearchEnabled bool `mapstructure:"search_enabled"`

	// InferredEdgeCap bounds speculative graph edges.
	InferredEdgeCap int `mapstructure:"inferred_edge_cap"`

	// HTTP server settings. RatePerSecond tokens refill each client's
	// rate-limit bucket; RateBurst is the bucket size.
	ListenAddr    string  `mapstructure:"listen_addr"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"`

	// GeminiAPIKey is read from the environment only. SENSITIVE: never logged.
	GeminiAPIKey string `mapstructure:"-"`
}

// DefaultTopics seed the topic-crawl rotation when none are configured.
var DefaultTopics = []string{
	"Artificial_intelligence", "Machine_learning", "Deep_learning",
	"Natural_language_processing", "Computer_vision", "Robotics",
	"Data_science", "Neural_networks", "Quantum_computing", "Blockchain",
}

// DefaultQuestions seed the generated-Q&A pool when none are configured.
var DefaultQuestions = []string{
	"What is the future of renewable energy?",
	"How does blockchain technology secure transactions?",
	"How is big data transforming business analytics?",
	"How do neural networks function?",
	"What are the latest advancements in space exploration?",
	"Why is quantum computing important?",
	"How do self-driving cars navigate?",
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".protype"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROTYPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults + env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("PROTYPE_GEMINI_API_KEY")
	}

	if len(cfg.Learning.Topics) == 0 {
		cfg.Learning.Topics = DefaultTopics
	}
	if len(cfg.Learning.Questions) == 0 {
		cfg.Learning.Questions = DefaultQuestions
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".protype"))

	v.SetDefault("storage.driver", DriverSQLite)

	v.SetDefault("generative.provider", "gemini")
	v.SetDefault("generative.model", "gemini-2.5-flash")
	v.SetDefault("generative.timeout", 15*time.Second)
	v.SetDefault("generative.source_tag", "gemini_flash_direct")

	v.SetDefault("learning.interval", 5*time.Second)
	v.SetDefault("learning.reinforce_factor", 5)
	v.SetDefault("learning.max_batch", 3)
	v.SetDefault("learning.rebuild_every", 5)

	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("search_enabled", true)
	v.SetDefault("inferred_edge_cap", 30)

	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("rate_per_second", 10)
	v.SetDefault("rate_burst", 60)

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.endpoint", "localhost:4318")
	v.SetDefault("observability.service_name", "protype-engine")
}

// Validate checks configuration ranges. Serve-time requirements (API key)
// are checked separately by ValidateServe.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.URL == "" {
			return fmt.Errorf("%w: driver postgres requires storage.url", ErrInvalidPostgresURL)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Storage.Driver)
	}

	if c.Learning.Interval < time.Second || c.Learning.Interval > time.Hour {
		return fmt.Errorf("%w: %s (want 1s..1h)", ErrInvalidInterval, c.Learning.Interval)
	}
	if c.Learning.ReinforceFactor < 1 {
		return fmt.Errorf("%w: reinforce_factor %d", ErrInvalidInterval, c.Learning.ReinforceFactor)
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, c.Cache.Size)
	}
	if c.InferredEdgeCap <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInferredCap, c.InferredEdgeCap)
	}
	return nil
}

// ValidateServe checks requirements for running the full engine, on top of
// Validate. The generative tier needs an API key; commands that only read
// the local store do not.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}
