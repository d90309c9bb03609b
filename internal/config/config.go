// Package config defines the top-level configuration for the yield router
// engine and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by YIELDROUTER_* environment
// variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Allocator AllocatorConfig `toml:"allocator"`
	Risk      RiskConfig      `toml:"risk"`
	Venues    VenuesConfig    `toml:"venues"`
	Archive   ArchiveConfig   `toml:"archive"`
	Auth      AuthConfig      `toml:"auth"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
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

// ServerConfig holds the admin API server parameters. APIKeys maps key
// strings to actor names; the actor's role comes from the auth section.
type ServerConfig struct {
	Enabled     bool              `toml:"enabled"`
	Port        int               `toml:"port"`
	CORSOrigins []string          `toml:"cors_origins"`
	APIKeys     map[string]string `toml:"api_keys"`
	RateLimit   int               `toml:"rate_limit"`
	RateWindow  duration          `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ScannerConfig holds scan pass parameters. Amounts are base-10 integer
// strings at the probe asset's native scale.
type ScannerConfig struct {
	Interval            duration `toml:"interval"`
	LockTTL             duration `toml:"lock_ttl"`
	MaxPriceAge         duration `toml:"max_price_age"`
	ProbeAmount         string   `toml:"probe_amount"`
	MinProfit           string   `toml:"min_profit"`
	GasPriceWei         string   `toml:"gas_price_wei"`
	MaxConcurrent       int      `toml:"max_concurrent"`
	TriangularVenueLegs int      `toml:"triangular_venue_legs"`
	UseFlashLoans       bool     `toml:"use_flash_loans"`
	Assets              []string `toml:"assets"`
	Venues              []string `toml:"venues"`
}

// AllocatorConfig holds allocation parameters.
type AllocatorConfig struct {
	LocalDomain           string   `toml:"local_domain"`
	RebalanceThresholdBps uint64   `toml:"rebalance_threshold_bps"`
	DefaultMaxRisk        uint8    `toml:"default_max_risk"`
	RebalanceInterval     duration `toml:"rebalance_interval"`
}

// RiskConfig holds risk gate parameters.
type RiskConfig struct {
	AssessmentTTL duration `toml:"assessment_ttl"`
}

// VenueConfig describes one quote venue. Router is the venue's router
// contract address, used only by the evm source.
type VenueConfig struct {
	ID                  string `toml:"id"`
	Name                string `toml:"name"`
	Router              string `toml:"router"`
	GasOverhead         uint64 `toml:"gas_overhead"`
	FeeBps              int64  `toml:"fee_bps"`
	SupportsMultiHop    bool   `toml:"supports_multi_hop"`
	SupportsTieredPools bool   `toml:"supports_tiered_pools"`
}

// VenuesConfig selects and configures the quote source. Source is "static"
// (fixture rates, for dry runs) or "evm" (live routers over JSON-RPC).
type VenuesConfig struct {
	Source string            `toml:"source"`
	RPCURL string            `toml:"rpc_url"`
	Tokens map[string]string `toml:"tokens"` // asset id -> ERC-20 address
	List   []VenueConfig     `toml:"list"`
}

// ArchiveConfig holds opportunity archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// AuthConfig maps actor names to roles ("admin", "updater", "viewer"). When
// Open is true every actor holds every capability; meant for local runs only.
type AuthConfig struct {
	Open   bool              `toml:"open"`
	Actors map[string]string `toml:"actors"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "30s" or "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "yieldrouter",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "yieldrouter-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "rebalance_suggested", "emergency_flagged"},
		},
		Scanner: ScannerConfig{
			Interval:            duration{30 * time.Second},
			LockTTL:             duration{time.Minute},
			MaxPriceAge:         duration{5 * time.Minute},
			ProbeAmount:         "1000000000000000000", // 1 unit at 18 decimals
			MinProfit:           "0",
			GasPriceWei:         "20000000000", // 20 gwei
			MaxConcurrent:       8,
			TriangularVenueLegs: 2,
		},
		Allocator: AllocatorConfig{
			LocalDomain:           "flow",
			RebalanceThresholdBps: 50,
			DefaultMaxRisk:        5,
			RebalanceInterval:     duration{time.Minute},
		},
		Risk: RiskConfig{
			AssessmentTTL: duration{24 * time.Hour},
		},
		Venues: VenuesConfig{
			Source: "static",
			Tokens: map[string]string{},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Auth: AuthConfig{
			Open:   false,
			Actors: map[string]string{},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":     true,
	"allocate": true,
	"serve":    true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRoles = map[string]bool{
	"admin":   true,
	"updater": true,
	"viewer":  true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, allocate, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Scanner amounts
	for _, f := range []struct{ name, val string }{
		{"probe_amount", c.Scanner.ProbeAmount},
		{"min_profit", c.Scanner.MinProfit},
		{"gas_price_wei", c.Scanner.GasPriceWei},
	} {
		if f.val == "" {
			continue
		}
		if _, ok := new(big.Int).SetString(f.val, 10); !ok {
			errs = append(errs, fmt.Sprintf("scanner: %s must be a base-10 integer, got %q", f.name, f.val))
		}
	}
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if legs := c.Scanner.TriangularVenueLegs; legs != 0 && legs != 2 && legs != 3 {
		errs = append(errs, fmt.Sprintf("scanner: triangular_venue_legs must be 2 or 3, got %d", legs))
	}

	// Allocator
	if c.Allocator.LocalDomain == "" {
		errs = append(errs, "allocator: local_domain must not be empty")
	}
	if c.Allocator.DefaultMaxRisk == 0 || c.Allocator.DefaultMaxRisk > 10 {
		errs = append(errs, fmt.Sprintf("allocator: default_max_risk must be 1-10, got %d", c.Allocator.DefaultMaxRisk))
	}

	// Venues
	switch c.Venues.Source {
	case "static":
	case "evm":
		if c.Venues.RPCURL == "" {
			errs = append(errs, "venues: rpc_url is required for the evm source")
		}
		for _, v := range c.Venues.List {
			if v.Router == "" {
				errs = append(errs, fmt.Sprintf("venues: venue %q needs a router address", v.ID))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("venues: unknown source %q (valid: static, evm)", c.Venues.Source))
	}

	// Auth
	for actor, role := range c.Auth.Actors {
		if !validRoles[strings.ToLower(role)] {
			errs = append(errs, fmt.Sprintf("auth: actor %q has unknown role %q (valid: admin, updater, viewer)", actor, role))
		}
	}
	for key, actor := range c.Server.APIKeys {
		if actor == "" {
			errs = append(errs, fmt.Sprintf("server: api key %q maps to an empty actor", key))
			continue
		}
		if !c.Auth.Open {
			if _, ok := c.Auth.Actors[actor]; !ok {
				errs = append(errs, fmt.Sprintf("server: api key actor %q has no auth.actors role", actor))
			}
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BigInt parses one of the scanner amount strings, returning nil for empty.
func BigInt(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, _ := new(big.Int).SetString(s, 10)
	return v
}
