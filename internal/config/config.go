package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MaxPrecision        = 20
	MaxTimestampDiffMax = 7 * 24 * 60 * 60 * 1000
)

type RateLimit struct {
	WindowSec   int `json:"window_sec" yaml:"window_sec"`
	MaxRequests int `json:"max_requests" yaml:"max_requests"`
}

type Server struct {
	Address           string    `json:"address" yaml:"address"`
	Port              string    `json:"port" yaml:"port"`
	RequestTimeoutSec int       `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	HTTPS             bool      `json:"https" yaml:"https"`
	CertFile          string    `json:"cert_file" yaml:"cert_file"`
	KeyFile           string    `json:"key_file" yaml:"key_file"`
	APIKeysFile       string    `json:"api_keys_file" yaml:"api_keys_file"`
	RateLimit         RateLimit `json:"rate_limit" yaml:"rate_limit"`
}

func (s Server) Addr() string { return s.Address + ":" + s.Port }

type Log struct {
	Level     string `json:"level" yaml:"level"`
	Directory string `json:"directory" yaml:"directory"`
}

type Pricing struct {
	DefaultABPrecision        int   `json:"default_ab_precision" yaml:"default_ab_precision"`
	DefaultConfPrecision      int   `json:"default_conf_precision" yaml:"default_conf_precision"`
	DefaultMaxTimestampDiffMs int64 `json:"default_max_timestamp_diff_ms" yaml:"default_max_timestamp_diff_ms"`
	RetryAttempts             int   `json:"retry_attempts" yaml:"retry_attempts"`
	FetchTimeoutMs            int   `json:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
	ResultTTLSec              int   `json:"result_ttl_sec" yaml:"result_ttl_sec"`
	Workers                   int   `json:"workers" yaml:"workers"`
	QueueSize                 int   `json:"queue_size" yaml:"queue_size"`
}

// Provider holds the knobs shared by every upstream feed. Secret is only
// used by Alpaca.
type Provider struct {
	Enabled               bool   `json:"enabled" yaml:"enabled"`
	Endpoint              string `json:"endpoint" yaml:"endpoint"`
	APIKey                string `json:"api_key" yaml:"api_key"`
	APISecret             string `json:"api_secret" yaml:"api_secret"`
	TimeoutMs             int    `json:"timeout_ms" yaml:"timeout_ms"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	Burst                 int    `json:"burst" yaml:"burst"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	CacheTTLMs            int    `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	CacheMaxItems         int    `json:"cache_max_items" yaml:"cache_max_items"`
}

func (p Provider) Timeout() time.Duration  { return time.Duration(p.TimeoutMs) * time.Millisecond }
func (p Provider) CacheTTL() time.Duration { return time.Duration(p.CacheTTLMs) * time.Millisecond }

type Catalog struct {
	File          string `json:"file" yaml:"file"`
	RetryAttempts int    `json:"retry_attempts" yaml:"retry_attempts"`
}

type Config struct {
	Server  Server   `json:"server" yaml:"server"`
	Log     Log      `json:"log" yaml:"log"`
	Pricing Pricing  `json:"pricing" yaml:"pricing"`
	FMP     Provider `json:"fmp" yaml:"fmp"`
	Alpaca  Provider `json:"alpaca" yaml:"alpaca"`
	Pyth    Provider `json:"pyth" yaml:"pyth"`
	Catalog Catalog  `json:"catalog" yaml:"catalog"`
}

func Default() Config {
	return Config{
		Server: Server{
			Address:           "0.0.0.0",
			Port:              "8080",
			RequestTimeoutSec: 10,
			APIKeysFile:       "apiKeys.json",
			RateLimit:         RateLimit{WindowSec: 60, MaxRequests: 600},
		},
		Log: Log{Level: "info", Directory: "logs"},
		Pricing: Pricing{
			DefaultABPrecision:        8,
			DefaultConfPrecision:      8,
			DefaultMaxTimestampDiffMs: 60_000,
			RetryAttempts:             3,
			FetchTimeoutMs:            5_000,
			ResultTTLSec:              30,
			Workers:                   4,
			QueueSize:                 256,
		},
		FMP: Provider{
			Enabled:              true,
			Endpoint:             "https://financialmodelingprep.com/api/v3",
			TimeoutMs:            2_000,
			MaxRequestsPerMinute: 300,
			Burst:                10,
		},
		Alpaca: Provider{
			Enabled:              true,
			Endpoint:             "https://data.alpaca.markets",
			TimeoutMs:            2_000,
			MaxRequestsPerMinute: 200,
			Burst:                10,
		},
		Pyth: Provider{
			Enabled:              true,
			Endpoint:             "https://hermes.pyth.network",
			TimeoutMs:            2_000,
			MaxRequestsPerMinute: 600,
			Burst:                20,
		},
		Catalog: Catalog{RetryAttempts: 3},
	}
}

// Load reads config from path, YAML when the extension is .yaml or .yml
// and JSON otherwise. If path is empty, CONFIG_FILE and then config.json
// are tried. A missing file yields defaults. Environment variables
// override file values, then the result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("HTTPS"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("HTTPS: %w", err)
		}
		cfg.Server.HTTPS = b
	}
	if v := os.Getenv("SSL_CERT_PRIVATE_KEY_PATH"); v != "" {
		cfg.Server.KeyFile = v
	}
	if v := os.Getenv("SSL_CERT_CERTIFICATE_PATH"); v != "" {
		cfg.Server.CertFile = v
	}
	if v := os.Getenv("API_KEYS_FILE"); v != "" {
		cfg.Server.APIKeysFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_DIRECTORY"); v != "" {
		cfg.Log.Directory = v
	}
	if v := os.Getenv("FMP_KEY"); v != "" {
		cfg.FMP.APIKey = v
	}
	if v := os.Getenv("ALPACA_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("PYTH_ENDPOINT"); v != "" {
		cfg.Pyth.Endpoint = v
	}
	if v := os.Getenv("CATALOG_FILE"); v != "" {
		cfg.Catalog.File = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		x, err := strconv.Atoi(v)
		if err != nil || x <= 0 {
			return fmt.Errorf("REQUEST_TIMEOUT_SEC: invalid value %q", v)
		}
		cfg.Server.RequestTimeoutSec = x
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	p := c.Pricing
	check(p.DefaultABPrecision >= 0 && p.DefaultABPrecision <= MaxPrecision,
		"pricing.default_ab_precision must be within 0..%d", MaxPrecision)
	check(p.DefaultConfPrecision >= 0 && p.DefaultConfPrecision <= MaxPrecision,
		"pricing.default_conf_precision must be within 0..%d", MaxPrecision)
	check(p.DefaultMaxTimestampDiffMs >= 0 && p.DefaultMaxTimestampDiffMs <= MaxTimestampDiffMax,
		"pricing.default_max_timestamp_diff_ms must be within 0..%d", MaxTimestampDiffMax)
	check(p.RetryAttempts >= 1, "pricing.retry_attempts must be at least 1")
	check(p.Workers >= 1, "pricing.workers must be at least 1")
	check(p.QueueSize >= 0, "pricing.queue_size must not be negative")
	check(p.ResultTTLSec >= 0, "pricing.result_ttl_sec must not be negative")
	check(c.Catalog.RetryAttempts >= 1, "catalog.retry_attempts must be at least 1")

	check(c.FMP.Enabled || c.Alpaca.Enabled || c.Pyth.Enabled, "at least one provider must be enabled")
	check(!c.FMP.Enabled || c.FMP.APIKey != "", "fmp.api_key is required when fmp is enabled (FMP_KEY)")
	check(!c.Alpaca.Enabled || (c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""),
		"alpaca.api_key and alpaca.api_secret are required when alpaca is enabled (ALPACA_KEY, ALPACA_SECRET)")
	check(c.Catalog.File != "" || c.FMP.Enabled, "catalog.file is required when fmp is disabled")

	if c.Server.HTTPS {
		check(c.Server.CertFile != "" && c.Server.KeyFile != "", "server.cert_file and server.key_file are required for https")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}
