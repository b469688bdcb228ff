package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModeTest = "test"
	ModeLive = "live"
)

type Server struct {
	Port              string `mapstructure:"port"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Aggregator struct {
	// MinSources of 0 means "derive from mode".
	MinSources    int `mapstructure:"min_sources"`
	CacheTTLMS    int `mapstructure:"cache_ttl_ms"`
	CacheMaxItems int `mapstructure:"cache_max_items"`
	DeadlineMS    int `mapstructure:"deadline_ms"`
	MaxParallel   int `mapstructure:"max_parallel"`
	// Thresholds are deviation limits in percent keyed by asset class.
	Thresholds map[string]float64 `mapstructure:"thresholds"`
	// Routes lists connector names per asset class, highest priority first.
	Routes map[string][]string `mapstructure:"routes"`
	// Priority orders connectors for any asset class without a route.
	Priority []string `mapstructure:"priority"`
}

type Breaker struct {
	MaxFailures     int `mapstructure:"max_failures"`
	ResetTimeoutSec int `mapstructure:"reset_timeout_sec"`
}

type Retry struct {
	MaxRetries              int     `mapstructure:"max_retries"`
	BaseDelayMS             int     `mapstructure:"base_delay_ms"`
	MaxDelayMS              int     `mapstructure:"max_delay_ms"`
	RateLimitBackoffFactor  float64 `mapstructure:"rate_limit_backoff_factor"`
	CountRateLimitAsFailure bool    `mapstructure:"count_rate_limit_as_failure"`
}

type Connector struct {
	Enabled      bool    `mapstructure:"enabled"`
	APIKey       string  `mapstructure:"api_key"`
	APISecret    string  `mapstructure:"api_secret"`
	BaseURL      string  `mapstructure:"base_url"`
	Capacity     int     `mapstructure:"capacity"`
	RefillPerSec float64 `mapstructure:"refill_per_sec"`
	TimeoutMS    int     `mapstructure:"timeout_ms"`
}

type Config struct {
	Mode       string               `mapstructure:"mode"`
	Server     Server               `mapstructure:"server"`
	Log        Log                  `mapstructure:"log"`
	Aggregator Aggregator           `mapstructure:"aggregator"`
	Breaker    Breaker              `mapstructure:"breaker"`
	Retry      Retry                `mapstructure:"retry"`
	Connectors map[string]Connector `mapstructure:"connectors"`
}

// connectorDefaults holds the per-source bucket parameters.
var connectorDefaults = map[string]Connector{
	"coingecko":   {Enabled: true, Capacity: 10, RefillPerSec: 0.1, TimeoutMS: 10000},
	"coincap":     {Enabled: true, Capacity: 30, RefillPerSec: 0.5, TimeoutMS: 10000},
	"polygon":     {Enabled: true, Capacity: 5, RefillPerSec: 5.0 / 60, TimeoutMS: 10000},
	"alpaca":      {Enabled: true, Capacity: 200, RefillPerSec: 200.0 / 60, TimeoutMS: 10000},
	"yahoo":       {Enabled: true, Capacity: 60, RefillPerSec: 1, TimeoutMS: 10000},
	"metals_live": {Enabled: true, Capacity: 10, RefillPerSec: 0.1, TimeoutMS: 10000},
	"mock_live":   {Enabled: true, Capacity: 1000, RefillPerSec: 1000, TimeoutMS: 1000},
}

// credentialEnv lists the conventional variables checked after the prefixed ones.
var credentialEnv = map[string]string{
	"connectors.polygon.api_key":   "POLYGON_API_KEY",
	"connectors.alpaca.api_key":    "ALPACA_API_KEY",
	"connectors.alpaca.api_secret": "ALPACA_SECRET_KEY",
	"connectors.coingecko.api_key": "COINGECKO_API_KEY",
	"connectors.coincap.api_key":   "COINCAP_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeLive)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout_sec", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("aggregator.cache_ttl_ms", 10_000)
	v.SetDefault("aggregator.cache_max_items", 1024)
	v.SetDefault("aggregator.deadline_ms", 8_000)
	v.SetDefault("aggregator.max_parallel", 4)
	v.SetDefault("aggregator.thresholds.crypto", 1.5)
	v.SetDefault("aggregator.thresholds.metals", 1.0)
	v.SetDefault("aggregator.thresholds.forex", 0.5)
	v.SetDefault("aggregator.routes.crypto", []string{"coingecko", "coincap", "polygon", "alpaca", "yahoo", "mock_live"})
	v.SetDefault("aggregator.routes.metals", []string{"metals_live", "polygon", "yahoo", "mock_live"})
	v.SetDefault("aggregator.routes.forex", []string{"polygon", "yahoo", "mock_live"})
	v.SetDefault("aggregator.priority", []string{"coingecko", "coincap", "polygon", "alpaca", "yahoo", "metals_live", "mock_live"})

	v.SetDefault("breaker.max_failures", 3)
	v.SetDefault("breaker.reset_timeout_sec", 300)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30_000)
	v.SetDefault("retry.rate_limit_backoff_factor", 3.0)
	v.SetDefault("retry.count_rate_limit_as_failure", false)

	for name, c := range connectorDefaults {
		prefix := "connectors." + name + "."
		v.SetDefault(prefix+"enabled", c.Enabled)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"api_secret", "")
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"capacity", c.Capacity)
		v.SetDefault(prefix+"refill_per_sec", c.RefillPerSec)
		v.SetDefault(prefix+"timeout_ms", c.TimeoutMS)
	}
}

// Default returns the configuration used when no file or env is present.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, _ := decode(v)
	return cfg
}

// Load reads an optional YAML/JSON file and PRICEQUORUM_* environment
// variables on top of the defaults. With an empty path, ./config.{yaml,json}
// is used when present. The result is a read-only snapshot.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PRICEQUORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("aggregator.min_sources"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	for key, env := range credentialEnv {
		prefixed := "PRICEQUORUM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind env: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Aggregator.MinSources <= 0 {
		cfg.Aggregator.MinSources = 2
		if cfg.Mode == ModeTest {
			cfg.Aggregator.MinSources = 1
		}
	}
	return cfg, nil
}

// Validate rejects snapshots the aggregator cannot run with.
func (c Config) Validate() error {
	if c.Mode != ModeTest && c.Mode != ModeLive {
		return fmt.Errorf("config: mode must be %q or %q, got %q", ModeTest, ModeLive, c.Mode)
	}
	for class, pct := range c.Aggregator.Thresholds {
		if pct <= 0 {
			return fmt.Errorf("config: aggregator.thresholds.%s must be positive", class)
		}
	}
	if c.Breaker.MaxFailures <= 0 {
		return errors.New("config: breaker.max_failures must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("config: retry.max_retries must not be negative")
	}
	return nil
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Aggregator.CacheTTLMS) * time.Millisecond
}

func (c Config) Deadline() time.Duration {
	return time.Duration(c.Aggregator.DeadlineMS) * time.Millisecond
}

func (c Config) ResetTimeout() time.Duration {
	return time.Duration(c.Breaker.ResetTimeoutSec) * time.Second
}

func (c Connector) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
