// Package config loads runner configuration from the environment, with an
// optional YAML override file for local development. Every field has a
// documented default except the handful spec calls mandatory: a missing
// mandatory value is a fatal startup error, not a zero-valued field.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kline-runner/runner/pkg/errors"
)

// Config is the fully resolved runner configuration. Durations are stored
// already-clamped; callers never need to re-check spec's floors.
type Config struct {
	Venue          string
	PolygonAPIKey  string
	DatabaseURL    string
	RedisURL        string
	JaegerAgentHost string
	JaegerAgentPort int

	AdminAddr string

	KlineRetentionDays   int
	KlineRefreshEvery    time.Duration
	KlineMaxConcurrency  int
	IndicatorMaxCandles  int
	ActiveProjectStatuses []string

	SchedulerClaimLimit int
	SandboxTimeout      time.Duration

	EngineVersion string
}

const (
	minRefreshEvery     = 10 * time.Second
	minIndicatorCandles = 50
)

// Load reads configuration from the environment (and, when set, the file
// named by --config or the CONFIG_FILE env var) and validates the handful
// of values spec marks mandatory. configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("VENUE", "binance")
	v.SetDefault("ADMIN_ADDR", ":8090")
	v.SetDefault("KLINE_RETENTION_DAYS", 30)
	v.SetDefault("KLINE_REFRESH_EVERY_MS", 60000)
	v.SetDefault("KLINE_MAX_CONCURRENCY", 3)
	v.SetDefault("INDICATOR_MAX_CANDLES", 5000)
	v.SetDefault("ACTIVE_PROJECT_STATUSES", "live,running")
	v.SetDefault("SCHEDULER_CLAIM_LIMIT", 10)
	v.SetDefault("SANDBOX_TIMEOUT_MS", 5000)
	v.SetDefault("ENGINE_VERSION", "1.0.0")
	v.SetDefault("JAEGER_AGENT_PORT", 6831)

	if configFile == "" {
		configFile = v.GetString("CONFIG_FILE")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "reading --config override file", err)
		}
	}

	cfg := &Config{
		Venue:           strings.ToLower(v.GetString("VENUE")),
		PolygonAPIKey:   v.GetString("POLYGON_API_KEY"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisURL:        v.GetString("REDIS_URL"),
		JaegerAgentHost: v.GetString("JAEGER_AGENT_HOST"),
		JaegerAgentPort: v.GetInt("JAEGER_AGENT_PORT"),

		AdminAddr: v.GetString("ADMIN_ADDR"),

		KlineRetentionDays:  v.GetInt("KLINE_RETENTION_DAYS"),
		KlineMaxConcurrency: v.GetInt("KLINE_MAX_CONCURRENCY"),
		IndicatorMaxCandles: v.GetInt("INDICATOR_MAX_CANDLES"),

		SchedulerClaimLimit: v.GetInt("SCHEDULER_CLAIM_LIMIT"),
		SandboxTimeout:      time.Duration(v.GetInt("SANDBOX_TIMEOUT_MS")) * time.Millisecond,

		EngineVersion: v.GetString("ENGINE_VERSION"),
	}

	cfg.KlineRefreshEvery = time.Duration(v.GetInt("KLINE_REFRESH_EVERY_MS")) * time.Millisecond
	if cfg.KlineRefreshEvery < minRefreshEvery {
		cfg.KlineRefreshEvery = minRefreshEvery
	}

	if cfg.IndicatorMaxCandles < minIndicatorCandles {
		cfg.IndicatorMaxCandles = minIndicatorCandles
	}

	cfg.ActiveProjectStatuses = splitCSV(v.GetString("ACTIVE_PROJECT_STATUSES"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New(errors.ErrCodeMissingCredential, "DATABASE_URL is required")
	}

	if c.Venue == "polygon" && c.PolygonAPIKey == "" {
		return errors.New(errors.ErrCodeMissingCredential, "POLYGON_API_KEY is required when VENUE=polygon")
	}

	if c.Venue != "binance" && c.Venue != "polygon" {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "VENUE %q is not one of binance, polygon", c.Venue)
	}

	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")

	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		out = append(out, p)
	}

	return out
}
