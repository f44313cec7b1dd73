package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStringSlice(&cfg.Engine.Symbols, "CROSSARB_ENGINE_SYMBOLS")
	setDuration(&cfg.Engine.CycleInterval, "CROSSARB_ENGINE_CYCLE_INTERVAL")
	setInt(&cfg.Engine.Workers, "CROSSARB_ENGINE_WORKERS")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinSpreadPct, "CROSSARB_DETECTOR_MIN_SPREAD_PCT")
	setFloat64(&cfg.Detector.MinVolume, "CROSSARB_DETECTOR_MIN_VOLUME")
	setInt(&cfg.Detector.StalenessThresholdSeconds, "CROSSARB_DETECTOR_STALENESS_THRESHOLD_SECONDS")

	// ── Risk ──
	setInt(&cfg.Risk.MaxDailyTrades, "CROSSARB_RISK_MAX_DAILY_TRADES")
	setFloat64(&cfg.Risk.MaxDailyLoss, "CROSSARB_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.MaxPositionSize, "CROSSARB_RISK_MAX_POSITION_SIZE")
	setInt(&cfg.Risk.MaxCorrelatedPositions, "CROSSARB_RISK_MAX_CORRELATED_POSITIONS")
	setFloat64(&cfg.Risk.MinTradeQuantity, "CROSSARB_RISK_MIN_TRADE_QUANTITY")
	setInt(&cfg.Risk.ResetHourUTC, "CROSSARB_RISK_RESET_HOUR_UTC")

	// ── Execution ──
	setInt(&cfg.Execution.LegTimeoutSeconds, "CROSSARB_EXECUTION_LEG_TIMEOUT_SECONDS")
	setInt(&cfg.Execution.MaxRetries, "CROSSARB_EXECUTION_MAX_RETRIES")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "CROSSARB_REDIS_STREAM_MAX_LEN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CROSSARB_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CROSSARB_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Per-venue secrets: CROSSARB_VENUE_<NAME>_API_KEY / _API_SECRET ──
	for i := range cfg.Venues {
		prefix := "CROSSARB_VENUE_" + envName(cfg.Venues[i].Name)
		setStr(&cfg.Venues[i].ApiKey, prefix+"_API_KEY")
		setStr(&cfg.Venues[i].ApiSecret, prefix+"_API_SECRET")
		setStr(&cfg.Venues[i].KeyPassword, prefix+"_KEY_PASSWORD")
	}

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// envName converts a venue name into the uppercase token used in its
// environment variable prefix (e.g. "kraken-eu" -> "KRAKEN_EU").
func envName(name string) string {
	upper := strings.ToUpper(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
