package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		DataDir: "/tmp/protype-test",
		Storage: Storage{Driver: DriverSQLite},
		Learning: Learning{
			Interval:        5 * time.Second,
			ReinforceFactor: 5,
		},
		Cache:           Cache{Size: 256, TTL: 5 * time.Minute},
		InferredEdgeCap: 30,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults pass", func(c *Config) {}, nil},
		{"postgres with url", func(c *Config) {
			c.Storage = Storage{Driver: DriverPostgres, URL: "postgres://localhost/protype"}
		}, nil},
		{"postgres without url", func(c *Config) {
			c.Storage = Storage{Driver: DriverPostgres}
		}, ErrInvalidPostgresURL},
		{"unknown driver", func(c *Config) {
			c.Storage.Driver = "oracle"
		}, ErrInvalidDriver},
		{"interval too short", func(c *Config) {
			c.Learning.Interval = 100 * time.Millisecond
		}, ErrInvalidInterval},
		{"interval too long", func(c *Config) {
			c.Learning.Interval = 2 * time.Hour
		}, ErrInvalidInterval},
		{"zero reinforce factor", func(c *Config) {
			c.Learning.ReinforceFactor = 0
		}, ErrInvalidInterval},
		{"zero cache size", func(c *Config) {
			c.Cache.Size = 0
		}, ErrInvalidCacheSize},
		{"zero inferred cap", func(c *Config) {
			c.InferredEdgeCap = 0
		}, ErrInvalidInferredCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServeRequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateServe(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("ValidateServe() = %v, want ErrMissingAPIKey", err)
	}

	cfg.GeminiAPIKey = "test-key"
	if err := cfg.ValidateServe(); err != nil {
		t.Errorf("ValidateServe() with key = %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("PROTYPE_GEMINI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Generative.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", cfg.Generative.Model)
	}
	if cfg.Learning.Interval != 5*time.Second {
		t.Errorf("interval = %s", cfg.Learning.Interval)
	}
	if len(cfg.Learning.Topics) == 0 || len(cfg.Learning.Questions) == 0 {
		t.Error("default topics/questions not seeded")
	}
	if !cfg.SearchEnabled {
		t.Error("search not enabled by default")
	}
	if cfg.RatePerSecond != 10 || cfg.RateBurst != 60 {
		t.Errorf("rate limit defaults = %v/s burst %d, want 10/s burst 60", cfg.RatePerSecond, cfg.RateBurst)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PROTYPE_STORAGE_DRIVER", "postgres")
	t.Setenv("PROTYPE_LISTEN_ADDR", "0.0.0.0:9999")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != DriverPostgres {
		t.Errorf("driver = %q, want env override", cfg.Storage.Driver)
	}
	if cfg.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.GeminiAPIKey != "env-key" {
		t.Errorf("api key not read from environment")
	}
}
