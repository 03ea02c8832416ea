package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/retry"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/shaper"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func lookupMap(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.Model.APIKey = "sk-test"
	cfg.Database.DSN = "postgres://localhost/analytics"
	return cfg
}

func TestDefault_CarriesNoCredentials(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Model.APIKey)
	assert.Empty(t, cfg.Alerts.APIKey)
	assert.Empty(t, cfg.Database.DSN)
	assert.Empty(t, cfg.Database.ClickHouse.Password)

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Retry.Base)
	assert.Equal(t, 8, cfg.WindowTurns)
	assert.Equal(t, 0.7, cfg.Alerts.Threshold)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "analyst.yaml", `
model:
  provider: openrouter
  name: anthropic/claude-sonnet-4.5
database:
  driver: clickhouse
  clickhouse:
    addr: ch.internal:9440
    secure: true
budget:
  queries: 4
retry:
  base: 2s
guard:
  large_columns: [payload]
`)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenRouter, cfg.Model.Provider)
	assert.Equal(t, "anthropic/claude-sonnet-4.5", cfg.Model.Name)
	assert.Equal(t, DriverClickHouse, cfg.Database.Driver)
	assert.Equal(t, "ch.internal:9440", cfg.Database.ClickHouse.Addr)
	assert.True(t, cfg.Database.ClickHouse.Secure)
	assert.Equal(t, "default", cfg.Database.ClickHouse.Database, "untouched nested defaults survive")
	assert.Equal(t, 4, cfg.Budget.Queries)
	assert.Equal(t, 10, cfg.Budget.Iterations)
	assert.Equal(t, 2*time.Second, cfg.Retry.Base)
	assert.Equal(t, []string{"payload"}, cfg.Guard.LargeColumns)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.yaml"), expected: "reading config file"},
		{name: "bad yaml", path: writeFile(t, "bad.yaml", "budget: [1, 2"), expected: "parsing config file"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.path, filepath.Join(t.TempDir(), "missing.env"))
			assert.ErrorContains(t, err, tc.expected)
		})
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "analyst.yaml", "model:\n  name: from-yaml\n")
	t.Setenv("ANALYST_MODEL", "from-env")
	t.Setenv("ANALYST_MAX_QUERIES", "3")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.Name)
	assert.Equal(t, 3, cfg.Budget.Queries)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	envFile := writeFile(t, ".env", "ANALYST_EXPORT_DIR=from-dotenv\nANALYST_DB_DSN=postgres://dotenv/db\n")
	t.Setenv("ANALYST_EXPORT_DIR", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("ANALYST_DB_DSN") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Export.Dir)
	assert.Equal(t, "postgres://dotenv/db", cfg.Database.DSN)
}

func TestApplyEnv(t *testing.T) {
	type expected struct {
		cfg func(t *testing.T, c Config)
		err string
	}

	tests := []struct {
		name     string
		input    map[string]string
		expected expected
	}{
		{
			name: "typed values",
			input: map[string]string{
				"ANALYST_ALLOW_WRITE":      "true",
				"ANALYST_RETRY_BASE":       "500ms",
				"ANALYST_ALERTS_THRESHOLD": "0.9",
				"ANALYST_LARGE_COLUMNS":    "raw_data, payload ,",
				"ANALYST_DB_DRIVER":        "MindsDB",
			},
			expected: expected{cfg: func(t *testing.T, c Config) {
				assert.True(t, c.Guard.AllowWrite)
				assert.Equal(t, 500*time.Millisecond, c.Retry.Base)
				assert.Equal(t, 0.9, c.Alerts.Threshold)
				assert.Equal(t, []string{"raw_data", "payload"}, c.Guard.LargeColumns)
				assert.Equal(t, DriverMindsDB, c.Database.Driver)
			}},
		},
		{
			name:  "provider key fallback",
			input: map[string]string{"ANALYST_PROVIDER": "openai", "OPENAI_API_KEY": "sk-openai", "ANTHROPIC_API_KEY": "sk-ant"},
			expected: expected{cfg: func(t *testing.T, c Config) {
				assert.Equal(t, "sk-openai", c.Model.APIKey)
			}},
		},
		{
			name:  "gemini key fallback order",
			input: map[string]string{"ANALYST_PROVIDER": "Gemini", "GOOGLE_API_KEY": "g-google", "GEMINI_API_KEY": "g-gemini"},
			expected: expected{cfg: func(t *testing.T, c Config) {
				assert.Equal(t, ProviderGemini, c.Model.Provider)
				assert.Equal(t, "g-gemini", c.Model.APIKey)
			}},
		},
		{
			name:  "gemini google key fallback",
			input: map[string]string{"ANALYST_PROVIDER": "gemini", "GOOGLE_API_KEY": "g-google"},
			expected: expected{cfg: func(t *testing.T, c Config) {
				assert.Equal(t, "g-google", c.Model.APIKey)
			}},
		},
		{
			name:  "explicit key wins over fallback",
			input: map[string]string{"ANALYST_API_KEY": "sk-explicit", "ANTHROPIC_API_KEY": "sk-ant"},
			expected: expected{cfg: func(t *testing.T, c Config) {
				assert.Equal(t, "sk-explicit", c.Model.APIKey)
			}},
		},
		{
			name:  "alerts key fallback",
			input: map[string]string{"CNZ_API_KEY": "cnz-test"},
			expected: expected{cfg: func(t *testing.T, c Config) {
				assert.Equal(t, "cnz-test", c.Alerts.APIKey)
			}},
		},
		{
			name:     "invalid values are all reported",
			input:    map[string]string{"ANALYST_MAX_QUERIES": "many", "ANALYST_ALLOW_WRITE": "perhaps"},
			expected: expected{err: "ANALYST_MAX_QUERIES"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(lookupMap(tc.input))
			if tc.expected.err != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, tc.expected.err)
				assert.ErrorContains(t, err, "ANALYST_ALLOW_WRITE")
				return
			}
			require.NoError(t, err)
			tc.expected.cfg(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		expected []error
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:     "missing key and model",
			mutate:   func(c *Config) { c.Model.APIKey = ""; c.Model.Name = "" },
			expected: []error{ErrMissingAPIKey, ErrMissingModel},
		},
		{
			name:     "unknown provider",
			mutate:   func(c *Config) { c.Model.Provider = "mistral" },
			expected: []error{ErrUnknownProvider},
		},
		{
			name:     "postgres needs a dsn",
			mutate:   func(c *Config) { c.Database.DSN = "" },
			expected: []error{ErrMissingDSN},
		},
		{
			name:   "clickhouse needs no dsn",
			mutate: func(c *Config) { c.Database.Driver = DriverClickHouse; c.Database.DSN = "" },
		},
		{
			name:     "unknown driver",
			mutate:   func(c *Config) { c.Database.Driver = "sqlite" },
			expected: []error{ErrUnknownDriver},
		},
		{
			name:     "negative limits",
			mutate:   func(c *Config) { c.Budget.Queries = -1 },
			expected: []error{ErrNegative},
		},
		{
			name:     "shaper rows inverted",
			mutate:   func(c *Config) { c.Shaper.FallbackRows = 9 },
			expected: []error{ErrShaperRows},
		},
		{
			name:     "shaper fallback above default max rows",
			mutate:   func(c *Config) { c.Shaper.MaxRows = 0; c.Shaper.FallbackRows = 6 },
			expected: []error{ErrShaperRows},
		},
		{
			name:     "shaper max rows below default fallback",
			mutate:   func(c *Config) { c.Shaper.MaxRows = 1; c.Shaper.FallbackRows = 0 },
			expected: []error{ErrShaperRows},
		},
		{
			name:   "shaper both defaulted",
			mutate: func(c *Config) { c.Shaper.MaxRows = 0; c.Shaper.FallbackRows = 0 },
		},
		{
			name:     "zero retry base",
			mutate:   func(c *Config) { c.Retry.Base = 0 },
			expected: []error{ErrRetryBase},
		},
		{
			name:     "alerts incomplete",
			mutate:   func(c *Config) { c.Alerts.Enabled = true; c.Alerts.Threshold = 1.5 },
			expected: []error{ErrThreshold, ErrMissingAlertURL, ErrMissingAlertKey},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if len(tc.expected) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, want := range tc.expected {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestValidate_AcceptedConfigConstructs(t *testing.T) {
	tests := []struct {
		name  string
		input func(c *Config)
	}{
		{name: "defaults", input: func(c *Config) {}},
		{name: "shaper defaulted", input: func(c *Config) { c.Shaper = ShaperConfig{} }},
		{name: "fallback equals default max", input: func(c *Config) { c.Shaper = ShaperConfig{FallbackRows: 5} }},
		{name: "fallback above default max", input: func(c *Config) { c.Shaper = ShaperConfig{FallbackRows: 6} }},
		{name: "max below default fallback", input: func(c *Config) { c.Shaper = ShaperConfig{MaxRows: 1} }},
		{name: "zero retry base", input: func(c *Config) { c.Retry.Base = 0 }},
		{name: "short retry base", input: func(c *Config) { c.Retry.Base = time.Millisecond }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.input(&cfg)
			if cfg.Validate() != nil {
				return
			}
			assert.NotPanics(t, func() {
				shaper.New(shaper.Config{
					MaxRows:      cfg.Shaper.MaxRows,
					FallbackRows: cfg.Shaper.FallbackRows,
					MaxBytes:     cfg.Shaper.MaxBytes,
				})
				retry.New(retry.Config{MaxRetries: cfg.Retry.MaxRetries, Base: cfg.Retry.Base})
			})
		})
	}
}
