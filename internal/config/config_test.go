package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withKeys(t *testing.T) {
	t.Helper()
	t.Setenv("FMP_KEY", "fmp-key")
	t.Setenv("ALPACA_KEY", "alpaca-key")
	t.Setenv("ALPACA_SECRET", "alpaca-secret")
	t.Setenv("CONFIG_FILE", "")
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	withKeys(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Pricing.DefaultABPrecision)
	require.Equal(t, int64(60_000), cfg.Pricing.DefaultMaxTimestampDiffMs)
	require.Equal(t, 3, cfg.Pricing.RetryAttempts)
	require.Equal(t, "fmp-key", cfg.FMP.APIKey)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	withKeys(t)
	t.Setenv("SERVER_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7070"
  rate_limit:
    window_sec: 10
    max_requests: 5
pricing:
  workers: 8
  default_ab_precision: 4
alpaca:
  enabled: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port, "env wins over file")
	require.Equal(t, 5, cfg.Server.RateLimit.MaxRequests)
	require.Equal(t, 8, cfg.Pricing.Workers)
	require.Equal(t, 4, cfg.Pricing.DefaultABPrecision)
	require.Equal(t, 8, cfg.Pricing.DefaultConfPrecision, "unset keys keep defaults")
	require.False(t, cfg.Alpaca.Enabled)
	require.True(t, cfg.Pyth.Enabled)
}

func TestLoad_JSONFile(t *testing.T) {
	withKeys(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"catalog":{"file":"assets.json","retry_attempts":5}}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "assets.json", cfg.Catalog.File)
	require.Equal(t, 5, cfg.Catalog.RetryAttempts)
}

func TestLoad_MalformedFile(t *testing.T) {
	withKeys(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "parse config")
}

func TestLoad_BadHTTPSFlag(t *testing.T) {
	withKeys(t)
	t.Setenv("HTTPS", "maybe")

	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		c := Default()
		c.FMP.APIKey = "k"
		c.Alpaca.APIKey = "k"
		c.Alpaca.APISecret = "s"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"precision too large": func(c *Config) { c.Pricing.DefaultABPrecision = 21 },
		"negative conf":       func(c *Config) { c.Pricing.DefaultConfPrecision = -1 },
		"diff over a week":    func(c *Config) { c.Pricing.DefaultMaxTimestampDiffMs = MaxTimestampDiffMax + 1 },
		"no workers":          func(c *Config) { c.Pricing.Workers = 0 },
		"no attempts":         func(c *Config) { c.Pricing.RetryAttempts = 0 },
		"no providers": func(c *Config) {
			c.FMP.Enabled, c.Alpaca.Enabled, c.Pyth.Enabled = false, false, false
		},
		"alpaca without secret": func(c *Config) { c.Alpaca.APISecret = "" },
		"https without cert":    func(c *Config) { c.Server.HTTPS = true },
		"unknown log level":     func(c *Config) { c.Log.Level = "loud" },
		"no catalog source": func(c *Config) {
			c.FMP.Enabled = false
			c.Catalog.File = ""
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
