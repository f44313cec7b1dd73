// Package config defines the top-level configuration for the cross-venue
// arbitrage engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Detector  DetectorConfig  `toml:"detector"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Venues    []VenueConfig   `toml:"venues"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig holds coordination cycle parameters.
type EngineConfig struct {
	Symbols       []string `toml:"symbols"`
	CycleInterval duration `toml:"cycle_interval"`
	Workers       int      `toml:"workers"`
	// RecentLimit bounds the in-memory ring of recently detected
	// opportunities kept for operator inspection.
	RecentLimit int `toml:"recent_limit"`
}

// DetectorConfig holds spread detection thresholds.
type DetectorConfig struct {
	MinSpreadPct              float64 `toml:"min_spread_pct"`
	MinVolume                 float64 `toml:"min_volume"`
	StalenessThresholdSeconds int     `toml:"staleness_threshold_seconds"`
}

// StalenessThreshold returns the configured threshold as a duration.
func (c DetectorConfig) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessThresholdSeconds) * time.Second
}

// RiskConfig holds the tunable parameters for the risk manager.
type RiskConfig struct {
	MaxDailyTrades         int     `toml:"max_daily_trades"`
	MaxDailyLoss           float64 `toml:"max_daily_loss"`
	MaxPositionSize        float64 `toml:"max_position_size"`
	MaxCorrelatedPositions int     `toml:"max_correlated_positions"`
	MinTradeQuantity       float64 `toml:"min_trade_quantity"`
	ResetHourUTC           int     `toml:"reset_hour_utc"`
	// CorrelationGroups maps a group name to the symbols it contains. A
	// symbol absent from every group forms its own implicit group.
	CorrelationGroups map[string][]string `toml:"correlation_groups"`
}

// ExecutionConfig holds leg dispatch parameters.
type ExecutionConfig struct {
	LegTimeoutSeconds int `toml:"leg_timeout_seconds"`
	MaxRetries        int `toml:"max_retries"`
}

// LegTimeout returns the per-leg timeout as a duration.
func (c ExecutionConfig) LegTimeout() time.Duration {
	return time.Duration(c.LegTimeoutSeconds) * time.Second
}

// VenueConfig describes one venue adapter registration.
type VenueConfig struct {
	Name string `toml:"name"`
	// Kind selects the adapter implementation: "ws" (feed only), "rest"
	// (execution only), "full" (both), or "sim" (simulated venue).
	Kind    string `toml:"kind"`
	WsURL   string `toml:"ws_url"`
	RestURL string `toml:"rest_url"`
	ApiKey  string `toml:"api_key"`
	// ApiSecret may be provided raw, or via an encrypted keystore file.
	ApiSecret        string `toml:"api_secret"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// Sim venue tuning. Zero values fall back to the simulator defaults;
	// give two sim venues different drifts to make their quotes cross.
	SimBasePrice      float64 `toml:"sim_base_price"`
	SimSpreadBps      float64 `toml:"sim_spread_bps"`
	SimDriftBps       float64 `toml:"sim_drift_bps"`
	SimTickIntervalMs int     `toml:"sim_tick_interval_ms"`
	SimSlippageBps    float64 `toml:"sim_slippage_bps"`
	SimFeeBps         float64 `toml:"sim_fee_bps"`
	SimLatencyMs      int     `toml:"sim_latency_ms"`
	SimFailEvery      int     `toml:"sim_fail_every"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds settled-execution archival parameters.
type ArchiveConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "250ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Symbols:       []string{"BTC-USD"},
			CycleInterval: duration{1 * time.Second},
			Workers:       4,
			RecentLimit:   500,
		},
		Detector: DetectorConfig{
			MinSpreadPct:              0.001,
			MinVolume:                 0.01,
			StalenessThresholdSeconds: 5,
		},
		Risk: RiskConfig{
			MaxDailyTrades:         100,
			MaxDailyLoss:           1_000,
			MaxPositionSize:        10_000,
			MaxCorrelatedPositions: 3,
			MinTradeQuantity:       0.001,
			ResetHourUTC:           0,
		},
		Execution: ExecutionConfig{
			LegTimeoutSeconds: 10,
			MaxRetries:        1,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 10000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 7,
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internally inconsistent or missing
// values and returns a descriptive error for the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "trade", "paper", "monitor":
	default:
		return fmt.Errorf("config: unsupported mode %q (want trade, paper, or monitor)", c.Mode)
	}

	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("config: engine.symbols must not be empty")
	}
	if c.Engine.CycleInterval.Duration <= 0 {
		return fmt.Errorf("config: engine.cycle_interval must be positive")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("config: engine.workers must be positive")
	}

	if c.Detector.MinSpreadPct < 0 {
		return fmt.Errorf("config: detector.min_spread_pct must not be negative")
	}
	if c.Detector.StalenessThresholdSeconds <= 0 {
		return fmt.Errorf("config: detector.staleness_threshold_seconds must be positive")
	}

	if c.Risk.MaxDailyTrades <= 0 {
		return fmt.Errorf("config: risk.max_daily_trades must be positive")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("config: risk.max_daily_loss must be positive")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("config: risk.max_position_size must be positive")
	}
	if c.Risk.ResetHourUTC < 0 || c.Risk.ResetHourUTC > 23 {
		return fmt.Errorf("config: risk.reset_hour_utc must be in [0,23]")
	}
	seen := make(map[string]string)
	for group, symbols := range c.Risk.CorrelationGroups {
		for _, sym := range symbols {
			if prev, ok := seen[sym]; ok && prev != group {
				return fmt.Errorf("config: symbol %q appears in correlation groups %q and %q", sym, prev, group)
			}
			seen[sym] = group
		}
	}

	if c.Execution.LegTimeoutSeconds <= 0 {
		return fmt.Errorf("config: execution.leg_timeout_seconds must be positive")
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("config: execution.max_retries must not be negative")
	}

	names := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("config: venues[%d].name must not be empty", i)
		}
		if names[v.Name] {
			return fmt.Errorf("config: duplicate venue name %q", v.Name)
		}
		names[v.Name] = true
		switch v.Kind {
		case "ws", "rest", "full", "sim":
		default:
			return fmt.Errorf("config: venue %q: unsupported kind %q", v.Name, v.Kind)
		}
		if (v.Kind == "ws" || v.Kind == "full") && v.WsURL == "" {
			return fmt.Errorf("config: venue %q: ws_url is required for kind %q", v.Name, v.Kind)
		}
		if (v.Kind == "rest" || v.Kind == "full") && v.RestURL == "" {
			return fmt.Errorf("config: venue %q: rest_url is required for kind %q", v.Name, v.Kind)
		}
	}
	if len(c.Venues) < 2 && strings.ToLower(c.Mode) != "monitor" {
		return fmt.Errorf("config: at least two venues are required to arbitrage")
	}

	return nil
}
