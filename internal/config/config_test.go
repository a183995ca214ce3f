package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gizmo-stock/internal/batch"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "STATION_ID", "STATE_DSN",
		"GCP_PROJECT", "GIZMO_SECRET", "GIZMO_SERVER", "GIZMO_USERNAME", "GIZMO_PASSWORD",
		"GIZMO_API_VERSION", "GIZMO_PRODUCTS_ENDPOINT", "GIZMO_GROUPS_ENDPOINT",
		"GIZMO_BASE_PARAMS", "GIZMO_PAGE_LIMIT", "GIZMO_TIMEOUT_SECONDS",
		"RETRY_MAX", "RETRY_BASE_DELAY_MS", "RETRY_MAX_DELAY_MS", "RETRY_MULTIPLIER",
		"BATCH_CONCURRENCY", "BATCH_PACING_MS", "BATCH_STRATEGY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GIZMO_SERVER", "192.168.1.10")
	t.Setenv("GIZMO_USERNAME", "admin")
	t.Setenv("GIZMO_PASSWORD", "secret")
	t.Setenv("GIZMO_API_VERSION", "2.1")
	t.Setenv("GIZMO_PAGE_LIMIT", "250")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STATION_ID", "till-1")
	t.Setenv("RETRY_MAX", "5")
	t.Setenv("RETRY_BASE_DELAY_MS", "200")
	t.Setenv("RETRY_MULTIPLIER", "1.5")
	t.Setenv("BATCH_STRATEGY", "sliding")
	t.Setenv("BATCH_PACING_MS", "250")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.StationID != "till-1" {
		t.Errorf("StationID = %s, want till-1", cfg.StationID)
	}
	if cfg.StateDSN != "sqlite://gizmo-stock.db" {
		t.Errorf("StateDSN = %s, want default sqlite", cfg.StateDSN)
	}

	gc := cfg.GizmoClient()
	if gc.BaseURL != "http://192.168.1.10/api" {
		t.Errorf("BaseURL = %s, want http://192.168.1.10/api", gc.BaseURL)
	}
	if gc.ProductsEndpoint != "/v2.1/products" {
		t.Errorf("ProductsEndpoint = %s, want /v2.1/products", gc.ProductsEndpoint)
	}
	if gc.GroupsEndpoint != "/v2.1/productgroups" {
		t.Errorf("GroupsEndpoint = %s, want /v2.1/productgroups", gc.GroupsEndpoint)
	}
	if gc.PageLimit != 250 {
		t.Errorf("PageLimit = %d, want 250", gc.PageLimit)
	}
	if gc.Username != "admin" || gc.Password != "secret" {
		t.Errorf("credentials = %s/%s, want admin/secret", gc.Username, gc.Password)
	}

	ro := cfg.RetryOptions()
	if ro.MaxRetries != 5 || ro.BaseDelay != 200*time.Millisecond || ro.BackoffMultiplier != 1.5 {
		t.Errorf("RetryOptions() = %+v", ro)
	}
	if ro.MaxDelay != 0 {
		t.Errorf("MaxDelay = %v, want 0 (executor default)", ro.MaxDelay)
	}

	bo := cfg.BatchOptions()
	if bo.Strategy != batch.StrategySliding || bo.Pacing != 250*time.Millisecond {
		t.Errorf("BatchOptions() = %+v", bo)
	}
}

func TestLoadMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing server",
			env:     map[string]string{"GIZMO_USERNAME": "admin"},
			wantErr: "gizmo server is required",
		},
		{
			name:    "missing username",
			env:     map[string]string{"GIZMO_SERVER": "pos.local"},
			wantErr: "gizmo username is required",
		},
		{
			name:    "old API version",
			env:     map[string]string{"GIZMO_SERVER": "pos.local", "GIZMO_USERNAME": "a", "GIZMO_API_VERSION": "v1.9"},
			wantErr: "older than the supported minimum",
		},
		{
			name:    "garbage API version",
			env:     map[string]string{"GIZMO_SERVER": "pos.local", "GIZMO_USERNAME": "a", "GIZMO_API_VERSION": "latest"},
			wantErr: "invalid gizmo API version",
		},
		{
			name:    "unsupported state DSN",
			env:     map[string]string{"GIZMO_SERVER": "pos.local", "GIZMO_USERNAME": "a", "STATE_DSN": "mysql://x"},
			wantErr: "state DSN",
		},
		{
			name:    "bad batch strategy",
			env:     map[string]string{"GIZMO_SERVER": "pos.local", "GIZMO_USERNAME": "a", "BATCH_STRATEGY": "yolo"},
			wantErr: "invalid batch strategy",
		},
		{
			name:    "non-numeric page limit",
			env:     map[string]string{"GIZMO_SERVER": "pos.local", "GIZMO_USERNAME": "a", "GIZMO_PAGE_LIMIT": "lots"},
			wantErr: "parsing GIZMO_PAGE_LIMIT",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"GIZMO_SERVER": "pos.local", "GIZMO_USERNAME": "a", "LOG_LEVEL": "chatty"},
			wantErr: "invalid log level",
		},
		{
			name:    "production without project",
			env:     map[string]string{"GIZMO_SERVER": "pos.local", "ENVIRONMENT": "production"},
			wantErr: "GCP_PROJECT required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"192.168.1.10", "http://192.168.1.10/api"},
		{"pos.local:8080", "http://pos.local:8080/api"},
		{"pos.local/", "http://pos.local/api"},
		{"https://pos.example.com", "https://pos.example.com/api"},
		{"https://pos.example.com/", "https://pos.example.com/api"},
		{"http://10.0.0.2/gizmo/api", "http://10.0.0.2/gizmo/api"},
	}
	for _, tt := range tests {
		cfg := &Config{Gizmo: GizmoConfig{Server: tt.server}}
		if got := cfg.BaseURL(); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestApplySecret(t *testing.T) {
	cfg := &Config{Gizmo: GizmoConfig{Server: "pos.local", Username: "env-user"}}

	if err := cfg.applySecret([]byte(`{"username":"vault-user","password":"p@ss"}`)); err != nil {
		t.Fatalf("applySecret() error: %v", err)
	}
	if cfg.Gizmo.Username != "vault-user" || cfg.Gizmo.Password != "p@ss" {
		t.Errorf("credentials = %s/%s", cfg.Gizmo.Username, cfg.Gizmo.Password)
	}
	if cfg.Gizmo.Server != "pos.local" {
		t.Errorf("Server = %s, want pos.local (kept)", cfg.Gizmo.Server)
	}

	if err := cfg.applySecret([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid secret JSON")
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_OR_DEFAULT", "")
	if got := envOrDefault("TEST_ENV_OR_DEFAULT", "fallback"); got != "fallback" {
		t.Errorf("envOrDefault(unset) = %s, want fallback", got)
	}
	t.Setenv("TEST_ENV_OR_DEFAULT", "set")
	if got := envOrDefault("TEST_ENV_OR_DEFAULT", "fallback"); got != "set" {
		t.Errorf("envOrDefault(set) = %s, want set", got)
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("", "default"); got != "default" {
		t.Errorf("withDefault('', 'default') = %s, want default", got)
	}
	if got := withDefault("value", "default"); got != "value" {
		t.Errorf("withDefault('value', 'default') = %s, want value", got)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeConfigFile(t, `{
		"port": "9090",
		"log_level": "warn",
		"station_id": "bar",
		"state_dsn": "postgres://gizmo@localhost/stock",
		"gizmo": {
			"server": "https://pos.example.com",
			"username": "admin",
			"password": "pw",
			"products_endpoint": "/v2.0/products/list"
		},
		"batch": {"concurrency": 3}
	}`))

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.StateDSN != "postgres://gizmo@localhost/stock" {
		t.Errorf("StateDSN = %s", cfg.StateDSN)
	}
	gc := cfg.GizmoClient()
	if gc.BaseURL != "https://pos.example.com/api" {
		t.Errorf("BaseURL = %s", gc.BaseURL)
	}
	if gc.ProductsEndpoint != "/v2.0/products/list" {
		t.Errorf("ProductsEndpoint = %s, want file override", gc.ProductsEndpoint)
	}
	if cfg.BatchOptions().Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.BatchOptions().Concurrency)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", "/nonexistent/config.json")
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", writeConfigFile(t, "{invalid json"))
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("missing server", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", writeConfigFile(t, `{"gizmo": {"username": "admin"}}`))
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "gizmo server is required") {
			t.Errorf("expected server error, got: %v", err)
		}
	})
}
