// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/mod/semver"

	"gizmo-stock/internal/batch"
	"gizmo-stock/internal/gizmo"
	"gizmo-stock/internal/retry"
)

// MinAPIVersion is the oldest Gizmo API the client speaks.
const MinAPIVersion = "v2.0"

// Config holds all service configuration.
// Environment determines whether POS credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// StationID names this till. It is the default operator station.
	StationID string

	// StateDSN selects the local state store: sqlite://path or postgres://...
	StateDSN string

	// GCP settings (required in production)
	GCPProject string
	SecretName string

	Gizmo GizmoConfig
	Retry RetryConfig
	Batch BatchConfig
}

// GizmoConfig describes the POS server. In production the credentials are
// loaded from Secret Manager as JSON.
type GizmoConfig struct {
	Server           string `json:"server"` // host[:port] or full URL
	Username         string `json:"username"`
	Password         string `json:"password"`
	APIVersion       string `json:"api_version,omitempty"`
	ProductsEndpoint string `json:"products_endpoint,omitempty"`
	GroupsEndpoint   string `json:"groups_endpoint,omitempty"`
	BaseParams       string `json:"base_params,omitempty"`
	PageLimit        int    `json:"page_limit,omitempty"`
	TimeoutSeconds   int    `json:"timeout_seconds,omitempty"`
}

// RetryConfig tunes the retry executor. Zero values take its defaults.
type RetryConfig struct {
	MaxRetries  int     `json:"max_retries,omitempty"`
	BaseDelayMS int     `json:"base_delay_ms,omitempty"`
	MaxDelayMS  int     `json:"max_delay_ms,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty"`
}

// BatchConfig tunes the batch dispatcher. Zero values take its defaults.
type BatchConfig struct {
	Concurrency int    `json:"concurrency,omitempty"`
	PacingMS    int    `json:"pacing_ms,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		StationID:   os.Getenv("STATION_ID"),
		StateDSN:    envOrDefault("STATE_DSN", "sqlite://gizmo-stock.db"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		SecretName:  envOrDefault("GIZMO_SECRET", "gizmo-credentials"),
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	// Credentials come from Secret Manager in production
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading POS credentials: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string      `json:"port"`
		Environment string      `json:"environment"`
		LogLevel    string      `json:"log_level"`
		StationID   string      `json:"station_id"`
		StateDSN    string      `json:"state_dsn"`
		Gizmo       GizmoConfig `json:"gizmo"`
		Retry       RetryConfig `json:"retry"`
		Batch       BatchConfig `json:"batch"`
	}
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		StationID:   fileConfig.StationID,
		StateDSN:    withDefault(fileConfig.StateDSN, "sqlite://gizmo-stock.db"),
		Gizmo:       fileConfig.Gizmo,
		Retry:       fileConfig.Retry,
		Batch:       fileConfig.Batch,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches POS credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret}/versions/latest
// The payload is JSON with username and password; other GizmoConfig
// fields present in it override the environment.
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

// applySecret merges a credentials payload into the Gizmo settings.
func (c *Config) applySecret(data []byte) error {
	var secret GizmoConfig
	if err := json.Unmarshal(data, &secret); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.Gizmo.Username = withDefault(secret.Username, c.Gizmo.Username)
	c.Gizmo.Password = withDefault(secret.Password, c.Gizmo.Password)
	c.Gizmo.Server = withDefault(secret.Server, c.Gizmo.Server)
	return nil
}

// loadFromEnv reads POS and tuning settings from individual environment
// variables.
func (c *Config) loadFromEnv() error {
	c.Gizmo = GizmoConfig{
		Server:           os.Getenv("GIZMO_SERVER"),
		Username:         os.Getenv("GIZMO_USERNAME"),
		Password:         os.Getenv("GIZMO_PASSWORD"),
		APIVersion:       os.Getenv("GIZMO_API_VERSION"),
		ProductsEndpoint: os.Getenv("GIZMO_PRODUCTS_ENDPOINT"),
		GroupsEndpoint:   os.Getenv("GIZMO_GROUPS_ENDPOINT"),
		BaseParams:       os.Getenv("GIZMO_BASE_PARAMS"),
	}
	c.Batch.Strategy = os.Getenv("BATCH_STRATEGY")

	ints := []struct {
		key string
		dst *int
	}{
		{"GIZMO_PAGE_LIMIT", &c.Gizmo.PageLimit},
		{"GIZMO_TIMEOUT_SECONDS", &c.Gizmo.TimeoutSeconds},
		{"RETRY_MAX", &c.Retry.MaxRetries},
		{"RETRY_BASE_DELAY_MS", &c.Retry.BaseDelayMS},
		{"RETRY_MAX_DELAY_MS", &c.Retry.MaxDelayMS},
		{"BATCH_CONCURRENCY", &c.Batch.Concurrency},
		{"BATCH_PACING_MS", &c.Batch.PacingMS},
	}
	for _, v := range ints {
		raw := os.Getenv(v.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", v.key, err)
		}
		*v.dst = n
	}

	if raw := os.Getenv("RETRY_MULTIPLIER"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parsing RETRY_MULTIPLIER: %w", err)
		}
		c.Retry.Multiplier = f
	}
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Gizmo.Server == "" {
		return fmt.Errorf("gizmo server is required (GIZMO_SERVER)")
	}
	if _, err := url.Parse(c.BaseURL()); err != nil {
		return fmt.Errorf("invalid gizmo server: %w", err)
	}
	if c.Gizmo.Username == "" {
		return fmt.Errorf("gizmo username is required (GIZMO_USERNAME)")
	}

	if c.Gizmo.APIVersion != "" {
		v := normalizeVersion(c.Gizmo.APIVersion)
		if !semver.IsValid(v) {
			return fmt.Errorf("invalid gizmo API version %q", c.Gizmo.APIVersion)
		}
		if semver.Compare(v, MinAPIVersion) < 0 {
			return fmt.Errorf("gizmo API version %s is older than the supported minimum %s", v, MinAPIVersion)
		}
	}

	if !strings.HasPrefix(c.StateDSN, "sqlite://") &&
		!strings.HasPrefix(c.StateDSN, "postgres://") &&
		!strings.HasPrefix(c.StateDSN, "postgresql://") {
		return fmt.Errorf("state DSN must start with sqlite:// or postgres://")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	switch batch.Strategy(c.Batch.Strategy) {
	case "", batch.StrategyWindowed, batch.StrategySliding:
	default:
		return fmt.Errorf("invalid batch strategy %q (windowed or sliding)", c.Batch.Strategy)
	}
	if c.Batch.Concurrency < 0 || c.Batch.PacingMS < 0 {
		return fmt.Errorf("batch concurrency and pacing must not be negative")
	}
	if c.Retry.MaxRetries < 0 || c.Retry.BaseDelayMS < 0 || c.Retry.MaxDelayMS < 0 || c.Retry.Multiplier < 0 {
		return fmt.Errorf("retry settings must not be negative")
	}

	return nil
}

// BaseURL is the POS API root. A bare host becomes http://<host>/api; a
// URL without a path gets /api appended.
func (c *Config) BaseURL() string {
	server := strings.TrimSuffix(strings.TrimSpace(c.Gizmo.Server), "/")
	if !strings.Contains(server, "://") {
		return "http://" + server + "/api"
	}
	u, err := url.Parse(server)
	if err != nil || u.Path != "" {
		return server
	}
	return server + "/api"
}

// GizmoClient builds the POS client configuration. Logger and OnRetry are
// left for the caller.
func (c *Config) GizmoClient() gizmo.Config {
	version := MinAPIVersion
	if c.Gizmo.APIVersion != "" {
		version = normalizeVersion(c.Gizmo.APIVersion)
	}
	return gizmo.Config{
		BaseURL:          c.BaseURL(),
		Username:         c.Gizmo.Username,
		Password:         c.Gizmo.Password,
		ProductsEndpoint: withDefault(c.Gizmo.ProductsEndpoint, "/"+version+"/products"),
		GroupsEndpoint:   withDefault(c.Gizmo.GroupsEndpoint, "/"+version+"/productgroups"),
		BaseParams:       c.Gizmo.BaseParams,
		PageLimit:        c.Gizmo.PageLimit,
		Timeout:          time.Duration(c.Gizmo.TimeoutSeconds) * time.Second,
		Retry:            c.RetryOptions(),
	}
}

// RetryOptions builds the retry policy.
func (c *Config) RetryOptions() retry.Options {
	return retry.Options{
		MaxRetries:        c.Retry.MaxRetries,
		BaseDelay:         time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:          time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
		BackoffMultiplier: c.Retry.Multiplier,
	}
}

// BatchOptions builds the dispatcher settings. Logger is left for the
// caller.
func (c *Config) BatchOptions() batch.Options {
	return batch.Options{
		Concurrency: c.Batch.Concurrency,
		Pacing:      time.Duration(c.Batch.PacingMS) * time.Millisecond,
		Strategy:    batch.Strategy(c.Batch.Strategy),
	}
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if v == "" || v[0] != 'v' {
		return "v" + v
	}
	return v
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
