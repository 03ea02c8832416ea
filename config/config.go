// Package config loads the analyst configuration.
//
// Values are applied in layers, each overriding the one before:
//
//  1. [Default]
//  2. an optional YAML file
//  3. a .env file, which only fills variables not already set in the environment
//  4. ANALYST_* environment variables
//
// Provider API keys also fall back to the conventional ANTHROPIC_API_KEY, OPENAI_API_KEY,
// OPENROUTER_API_KEY and GEMINI_API_KEY (or GOOGLE_API_KEY) variables, and the alerts key to
// CNZ_API_KEY.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/shaper"
)

// Provider selects the model adapter.
type Provider string

const (
	ProviderAnthropic    Provider = "anthropic"
	ProviderAnthropicLCG Provider = "anthropic-lcg"
	ProviderOpenAI       Provider = "openai"
	ProviderOpenRouter   Provider = "openrouter"
	ProviderGemini       Provider = "gemini"
)

// Driver selects the SQL executor.
type Driver string

const (
	DriverPostgres   Driver = "postgres"
	DriverClickHouse Driver = "clickhouse"
	DriverMindsDB    Driver = "mindsdb"
)

const envPrefix = "ANALYST_"

var (
	ErrMissingModel    = errors.New("config: model is required")
	ErrMissingAPIKey   = errors.New("config: API key for the selected provider is required")
	ErrUnknownProvider = errors.New("config: unknown provider")
	ErrUnknownDriver   = errors.New("config: unknown database driver")
	ErrMissingDSN      = errors.New("config: database DSN is required")
	ErrNegative        = errors.New("config: limits must not be negative")
	ErrShaperRows      = errors.New("config: shaper fallback_rows must not exceed max_rows")
	ErrRetryBase       = errors.New("config: retry base must be positive")
	ErrThreshold       = errors.New("config: alert threshold must be within [0, 1]")
	ErrMissingAlertURL = errors.New("config: alerts base_url is required when alerts are enabled")
	ErrMissingAlertKey = errors.New("config: alerts api_key is required when alerts are enabled")
)

// Config is the complete analyst configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Database DatabaseConfig `yaml:"database"`
	Budget   BudgetConfig   `yaml:"budget"`
	Retry    RetryConfig    `yaml:"retry"`
	Guard    GuardConfig    `yaml:"guard"`
	Shaper   ShaperConfig   `yaml:"shaper"`
	Export   ExportConfig   `yaml:"export"`
	Insights InsightsConfig `yaml:"insights"`
	Alerts   AlertsConfig   `yaml:"alerts"`

	// WindowTurns is the conversation window kept by the pruner.
	WindowTurns int `yaml:"window_turns"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9464".
	MetricsAddr string `yaml:"metrics_addr"`
}

type ModelConfig struct {
	Provider  Provider `yaml:"provider"`
	Name      string   `yaml:"name"`
	APIKey    string   `yaml:"api_key"`
	BaseURL   string   `yaml:"base_url"`
	MaxTokens int      `yaml:"max_tokens"`

	// AppTitle is sent to OpenRouter as X-Title.
	AppTitle string `yaml:"app_title"`
}

type DatabaseConfig struct {
	Driver Driver `yaml:"driver"`

	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`

	ClickHouse ClickHouseConfig `yaml:"clickhouse"`

	// MindsDBURL is the MindsDB HTTP API base.
	MindsDBURL string `yaml:"mindsdb_url"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Secure   bool   `yaml:"secure"`
}

type BudgetConfig struct {
	Iterations int `yaml:"iterations"`
	Queries    int `yaml:"queries"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Base       time.Duration `yaml:"base"`
}

type GuardConfig struct {
	LargeColumns  []string `yaml:"large_columns"`
	MaxLargeLimit int      `yaml:"max_large_limit"`
	MaxLimit      int      `yaml:"max_limit"`

	// AllowWrite disables every rule after the write-keyword check. Never enable it
	// against a shared database.
	AllowWrite bool `yaml:"allow_write"`
}

type ShaperConfig struct {
	MaxRows      int `yaml:"max_rows"`
	FallbackRows int `yaml:"fallback_rows"`
	MaxBytes     int `yaml:"max_bytes"`
}

type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	MaxRows int    `yaml:"max_rows"`
}

type InsightsConfig struct {
	// DSN of the insights database. Empty disables persistence.
	DSN string `yaml:"dsn"`
}

type AlertsConfig struct {
	Enabled   bool    `yaml:"enabled"`
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	Threshold float64 `yaml:"threshold"`
	GeonameID string  `yaml:"geoname_id"`
}

// Default returns the built-in configuration. It carries no credentials.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:  ProviderAnthropic,
			Name:      "claude-sonnet-4-5",
			MaxTokens: 4096,
			AppTitle:  "data-analyst",
		},
		Database: DatabaseConfig{
			Driver:     DriverPostgres,
			MindsDBURL: "http://localhost:47334",
			ClickHouse: ClickHouseConfig{
				Addr:     "localhost:9000",
				Database: "default",
				Username: "default",
			},
		},
		Budget: BudgetConfig{Iterations: 10, Queries: 8},
		Retry:  RetryConfig{MaxRetries: 5, Base: 3 * time.Second},
		Guard: GuardConfig{
			LargeColumns:  []string{"raw_data", "error_details"},
			MaxLargeLimit: 10,
		},
		Shaper: ShaperConfig{MaxRows: 5, FallbackRows: 2, MaxBytes: 3000},
		Export: ExportConfig{Enabled: true, Dir: "results", MaxRows: 10000},
		Alerts: AlertsConfig{Threshold: 0.7},

		WindowTurns: 8,
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when path is
// empty), the .env files (default ".env", missing files ignored) and the environment.
// It does not validate.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv.Load never overrides variables already in the environment.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// envVar binds one environment variable to a field.
type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolean(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envVars = []envVar{
	{"PROVIDER", func(c *Config, v string) error { c.Model.Provider = Provider(strings.ToLower(v)); return nil }},
	{"MODEL", str(func(c *Config) *string { return &c.Model.Name })},
	{"API_KEY", str(func(c *Config) *string { return &c.Model.APIKey })},
	{"BASE_URL", str(func(c *Config) *string { return &c.Model.BaseURL })},
	{"MAX_TOKENS", integer(func(c *Config) *int { return &c.Model.MaxTokens })},

	{"DB_DRIVER", func(c *Config, v string) error { c.Database.Driver = Driver(strings.ToLower(v)); return nil }},
	{"DB_DSN", str(func(c *Config) *string { return &c.Database.DSN })},
	{"CLICKHOUSE_ADDR", str(func(c *Config) *string { return &c.Database.ClickHouse.Addr })},
	{"CLICKHOUSE_DATABASE", str(func(c *Config) *string { return &c.Database.ClickHouse.Database })},
	{"CLICKHOUSE_USERNAME", str(func(c *Config) *string { return &c.Database.ClickHouse.Username })},
	{"CLICKHOUSE_PASSWORD", str(func(c *Config) *string { return &c.Database.ClickHouse.Password })},
	{"CLICKHOUSE_SECURE", boolean(func(c *Config) *bool { return &c.Database.ClickHouse.Secure })},
	{"MINDSDB_URL", str(func(c *Config) *string { return &c.Database.MindsDBURL })},

	{"MAX_ITERATIONS", integer(func(c *Config) *int { return &c.Budget.Iterations })},
	{"MAX_QUERIES", integer(func(c *Config) *int { return &c.Budget.Queries })},
	{"MAX_RETRIES", integer(func(c *Config) *int { return &c.Retry.MaxRetries })},
	{"RETRY_BASE", func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		c.Retry.Base = d
		return nil
	}},
	{"WINDOW_TURNS", integer(func(c *Config) *int { return &c.WindowTurns })},

	{"ALLOW_WRITE", boolean(func(c *Config) *bool { return &c.Guard.AllowWrite })},
	{"MAX_LIMIT", integer(func(c *Config) *int { return &c.Guard.MaxLimit })},
	{"LARGE_COLUMNS", func(c *Config, v string) error {
		c.Guard.LargeColumns = splitList(v)
		return nil
	}},

	{"EXPORT_ENABLED", boolean(func(c *Config) *bool { return &c.Export.Enabled })},
	{"EXPORT_DIR", str(func(c *Config) *string { return &c.Export.Dir })},

	{"INSIGHTS_DSN", str(func(c *Config) *string { return &c.Insights.DSN })},

	{"ALERTS_ENABLED", boolean(func(c *Config) *bool { return &c.Alerts.Enabled })},
	{"ALERTS_BASE_URL", str(func(c *Config) *string { return &c.Alerts.BaseURL })},
	{"ALERTS_API_KEY", str(func(c *Config) *string { return &c.Alerts.APIKey })},
	{"ALERTS_THRESHOLD", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		c.Alerts.Threshold = f
		return nil
	}},
	{"GEONAME_ID", str(func(c *Config) *string { return &c.Alerts.GeonameID })},

	{"METRICS_ADDR", str(func(c *Config) *string { return &c.MetricsAddr })},
}

// applyEnv overrides fields from the environment. lookup is os.LookupEnv outside tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, ev := range envVars {
		v, ok := lookup(envPrefix + ev.name)
		if !ok {
			continue
		}
		if err := ev.set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, ev.name, err))
		}
	}

	for _, name := range providerKeyVars(c.Model.Provider) {
		if c.Model.APIKey != "" {
			break
		}
		c.Model.APIKey, _ = lookup(name)
	}
	if c.Alerts.APIKey == "" {
		c.Alerts.APIKey, _ = lookup("CNZ_API_KEY")
	}
	return errors.Join(errs...)
}

func providerKeyVars(p Provider) []string {
	switch p {
	case ProviderAnthropic, ProviderAnthropicLCG:
		return []string{"ANTHROPIC_API_KEY"}
	case ProviderOpenAI:
		return []string{"OPENAI_API_KEY"}
	case ProviderOpenRouter:
		return []string{"OPENROUTER_API_KEY"}
	case ProviderGemini:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	default:
		return nil
	}
}

func splitList(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// effective returns def when v is left at zero, mirroring how constructors fill defaults.
func effective(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Validate reports every missing or invalid field.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderAnthropic, ProviderAnthropicLCG, ProviderOpenAI, ProviderOpenRouter, ProviderGemini:
		if c.Model.APIKey == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingAPIKey, c.Model.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownProvider, c.Model.Provider))
	}
	if c.Model.Name == "" {
		errs = append(errs, ErrMissingModel)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, ErrMissingDSN)
		}
	case DriverClickHouse, DriverMindsDB:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownDriver, c.Database.Driver))
	}

	if c.Model.MaxTokens < 0 || c.Budget.Iterations < 0 || c.Budget.Queries < 0 ||
		c.Retry.MaxRetries < 0 || c.Retry.Base < 0 || c.WindowTurns < 0 ||
		c.Guard.MaxLimit < 0 || c.Guard.MaxLargeLimit < 0 || c.Export.MaxRows < 0 ||
		c.Shaper.MaxRows < 0 || c.Shaper.FallbackRows < 0 || c.Shaper.MaxBytes < 0 {
		errs = append(errs, ErrNegative)
	}
	if c.Retry.Base == 0 {
		errs = append(errs, ErrRetryBase)
	}
	if maxRows, fallback := effective(c.Shaper.MaxRows, shaper.DefaultMaxRows),
		effective(c.Shaper.FallbackRows, shaper.DefaultFallbackRows); fallback > maxRows {
		errs = append(errs, fmt.Errorf("%w: %d > %d", ErrShaperRows, fallback, maxRows))
	}

	if c.Alerts.Threshold < 0 || c.Alerts.Threshold > 1 {
		errs = append(errs, ErrThreshold)
	}
	if c.Alerts.Enabled {
		if c.Alerts.BaseURL == "" {
			errs = append(errs, ErrMissingAlertURL)
		}
		if c.Alerts.APIKey == "" {
			errs = append(errs, ErrMissingAlertKey)
		}
	}
	return errors.Join(errs...)
}
