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
// built-in defaults, applies YIELDROUTER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known YIELDROUTER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "YIELDROUTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "YIELDROUTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "YIELDROUTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "YIELDROUTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "YIELDROUTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "YIELDROUTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "YIELDROUTER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "YIELDROUTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "YIELDROUTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "YIELDROUTER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "YIELDROUTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "YIELDROUTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "YIELDROUTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "YIELDROUTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "YIELDROUTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "YIELDROUTER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "YIELDROUTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "YIELDROUTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "YIELDROUTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "YIELDROUTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "YIELDROUTER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "YIELDROUTER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "YIELDROUTER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "YIELDROUTER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "YIELDROUTER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "YIELDROUTER_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "YIELDROUTER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "YIELDROUTER_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "YIELDROUTER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "YIELDROUTER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "YIELDROUTER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "YIELDROUTER_NOTIFY_EVENTS")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "YIELDROUTER_SCANNER_INTERVAL")
	setDuration(&cfg.Scanner.LockTTL, "YIELDROUTER_SCANNER_LOCK_TTL")
	setDuration(&cfg.Scanner.MaxPriceAge, "YIELDROUTER_SCANNER_MAX_PRICE_AGE")
	setStr(&cfg.Scanner.ProbeAmount, "YIELDROUTER_SCANNER_PROBE_AMOUNT")
	setStr(&cfg.Scanner.MinProfit, "YIELDROUTER_SCANNER_MIN_PROFIT")
	setStr(&cfg.Scanner.GasPriceWei, "YIELDROUTER_SCANNER_GAS_PRICE_WEI")
	setInt(&cfg.Scanner.MaxConcurrent, "YIELDROUTER_SCANNER_MAX_CONCURRENT")
	setInt(&cfg.Scanner.TriangularVenueLegs, "YIELDROUTER_SCANNER_TRIANGULAR_VENUE_LEGS")
	setBool(&cfg.Scanner.UseFlashLoans, "YIELDROUTER_SCANNER_USE_FLASH_LOANS")
	setStringSlice(&cfg.Scanner.Assets, "YIELDROUTER_SCANNER_ASSETS")
	setStringSlice(&cfg.Scanner.Venues, "YIELDROUTER_SCANNER_VENUES")

	// ── Allocator ──
	setStr(&cfg.Allocator.LocalDomain, "YIELDROUTER_ALLOCATOR_LOCAL_DOMAIN")
	setUint64(&cfg.Allocator.RebalanceThresholdBps, "YIELDROUTER_ALLOCATOR_REBALANCE_THRESHOLD_BPS")
	setUint8(&cfg.Allocator.DefaultMaxRisk, "YIELDROUTER_ALLOCATOR_DEFAULT_MAX_RISK")
	setDuration(&cfg.Allocator.RebalanceInterval, "YIELDROUTER_ALLOCATOR_REBALANCE_INTERVAL")

	// ── Risk ──
	setDuration(&cfg.Risk.AssessmentTTL, "YIELDROUTER_RISK_ASSESSMENT_TTL")

	// ── Venues ──
	setStr(&cfg.Venues.Source, "YIELDROUTER_VENUES_SOURCE")
	setStr(&cfg.Venues.RPCURL, "YIELDROUTER_VENUES_RPC_URL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "YIELDROUTER_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "YIELDROUTER_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "YIELDROUTER_ARCHIVE_RETENTION_DAYS")

	// ── Auth ──
	setBool(&cfg.Auth.Open, "YIELDROUTER_AUTH_OPEN")

	// ── Top-level ──
	setStr(&cfg.Mode, "YIELDROUTER_MODE")
	setStr(&cfg.LogLevel, "YIELDROUTER_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint8(dst *uint8, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			*dst = uint8(n)
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
