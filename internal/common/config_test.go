package common

import (
	"errors"
	"testing"
	"time"

	"github.com/joseph-ayodele/checkup-extractor/constants"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("PARSE_CONCURRENCY", "")
	t.Setenv("STRATEGY_MAX_ATTEMPTS", "")
	t.Setenv("DOCLING_URL", "")

	cfg := LoadConfig()

	if cfg.Deployment != constants.DeploymentLocal {
		t.Errorf("Deployment = %q, want %q", cfg.Deployment, constants.DeploymentLocal)
	}
	if cfg.Pipeline.ParseConcurrency != 3 {
		t.Errorf("ParseConcurrency = %d, want 3", cfg.Pipeline.ParseConcurrency)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Providers.DoclingURL != "http://docling-serve:5001" {
		t.Errorf("DoclingURL = %q", cfg.Providers.DoclingURL)
	}
	if cfg.Providers.Timeout != 5*time.Minute {
		t.Errorf("Providers.Timeout = %v, want 5m", cfg.Providers.Timeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "CLOUD")
	t.Setenv("PARSE_CONCURRENCY", "5")
	t.Setenv("STRATEGY_RETRY_BACKOFF", "250ms")
	t.Setenv("LENIENT_SCHEMA", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_PAGES", "not-a-number")

	cfg := LoadConfig()

	if cfg.Deployment != constants.DeploymentCloud {
		t.Errorf("Deployment = %q, want cloud", cfg.Deployment)
	}
	if cfg.Pipeline.ParseConcurrency != 5 {
		t.Errorf("ParseConcurrency = %d, want 5", cfg.Pipeline.ParseConcurrency)
	}
	if cfg.Pipeline.RetryBackoff != 250*time.Millisecond {
		t.Errorf("RetryBackoff = %v, want 250ms", cfg.Pipeline.RetryBackoff)
	}
	if cfg.Pipeline.Lenient {
		t.Error("Lenient = true, want false")
	}
	if got := cfg.Server.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", got)
	}
	if cfg.Raster.MaxPages != 20 {
		t.Errorf("MaxPages = %d, want default 20 on parse error", cfg.Raster.MaxPages)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad deployment", func(c *Config) { c.Deployment = "staging" }, true},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }, true},
		{"postgres with dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "postgres://x" }, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, true},
		{"zero concurrency", func(c *Config) { c.Pipeline.ParseConcurrency = 0 }, true},
		{"zero attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", "sqlite")
			t.Setenv("DEPLOYMENT_ENV", "local")
			cfg := LoadConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var appErr *AppError
				if !errors.As(err, &appErr) || appErr.Code != "CONFIG_ERROR" {
					t.Errorf("Validate() error = %v, want CONFIG_ERROR AppError", err)
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("Validate() error should wrap ErrInvalidInput")
				}
			}
		})
	}
}
