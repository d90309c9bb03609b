package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"probe amount", func(c *Config) { c.Scanner.ProbeAmount = "1.5" }, "base-10 integer"},
		{"legs", func(c *Config) { c.Scanner.TriangularVenueLegs = 4 }, "triangular_venue_legs"},
		{"risk", func(c *Config) { c.Allocator.DefaultMaxRisk = 11 }, "default_max_risk"},
		{"venue source", func(c *Config) { c.Venues.Source = "csv" }, "unknown source"},
		{"evm without rpc", func(c *Config) { c.Venues.Source = "evm" }, "rpc_url"},
		{"actor role", func(c *Config) { c.Auth.Actors = map[string]string{"bob": "owner"} }, "unknown role"},
		{"orphan api key", func(c *Config) { c.Server.APIKeys = map[string]string{"k1": "ghost"} }, "no auth.actors role"},
		{"server port", func(c *Config) { c.Server.Port = 0 }, "port must be"},
	}
	for _, tc := range cases {
		cfg := Defaults()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: validation passed, want error containing %q", tc.name, tc.wantMsg)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Errorf("%s: error = %v, want mention of %q", tc.name, err, tc.wantMsg)
		}
	}
}

func TestAPIKeyActorAllowedWhenAuthOpen(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.Open = true
	cfg.Server.APIKeys = map[string]string{"k1": "anyone"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("open auth should not require actor grants: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "scan"
log_level = "debug"

[scanner]
interval = "10s"
min_profit = "500"
assets = ["USDC", "WETH"]

[redis]
addr = "redis.internal:6380"

[auth]
open = false

[auth.actors]
ops = "admin"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "scan" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %s/%s, want scan/debug", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Scanner.Interval.Duration != 10*time.Second {
		t.Errorf("interval = %v, want 10s", cfg.Scanner.Interval.Duration)
	}
	if cfg.Scanner.MinProfit != "500" {
		t.Errorf("min_profit = %q, want 500", cfg.Scanner.MinProfit)
	}
	if len(cfg.Scanner.Assets) != 2 || cfg.Scanner.Assets[0] != "USDC" {
		t.Errorf("assets = %v, want [USDC WETH]", cfg.Scanner.Assets)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q, file value not applied", cfg.Redis.Addr)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d, want default 5432", cfg.Postgres.Port)
	}
	if cfg.Auth.Actors["ops"] != "admin" {
		t.Errorf("auth actors = %v, want ops->admin", cfg.Auth.Actors)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config does not validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"serve\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("YIELDROUTER_REDIS_ADDR", "env-redis:6379")
	t.Setenv("YIELDROUTER_POSTGRES_PASSWORD", "sekrit")
	t.Setenv("YIELDROUTER_SCANNER_INTERVAL", "45s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "env-redis:6379" {
		t.Errorf("redis addr = %q, env override not applied", cfg.Redis.Addr)
	}
	if cfg.Postgres.Password != "sekrit" {
		t.Errorf("postgres password not overridden")
	}
	if cfg.Scanner.Interval.Duration != 45*time.Second {
		t.Errorf("interval = %v, want 45s", cfg.Scanner.Interval.Duration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("loading a missing file succeeded")
	}
}

func TestBigIntHelper(t *testing.T) {
	if BigInt("") != nil {
		t.Error("empty string should map to nil")
	}
	v := BigInt("1000000000000000000")
	if v == nil || v.Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("BigInt = %v, want 1e18", v)
	}
	if BigInt("not-a-number") != nil {
		t.Error("garbage should map to nil")
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pgpass"
	cfg.Redis.Password = "redispass"
	cfg.S3.SecretKey = "s3secret"
	cfg.Notify.TelegramToken = "tg-token"
	cfg.Server.APIKeys = map[string]string{"raw-key-value": "ops"}
	cfg.Auth.Actors = map[string]string{"ops": "admin"}

	red := RedactedConfig(&cfg)
	if red.Postgres.Password == "pgpass" || red.Redis.Password == "redispass" ||
		red.S3.SecretKey == "s3secret" || red.Notify.TelegramToken == "tg-token" {
		t.Error("redacted config still carries raw secrets")
	}
	for key, actor := range red.Server.APIKeys {
		if key == "raw-key-value" {
			t.Error("raw API key survived redaction")
		}
		if actor != "ops" {
			t.Errorf("redaction lost the actor mapping: %q", actor)
		}
	}
	// The original must be untouched.
	if cfg.Postgres.Password != "pgpass" {
		t.Error("redaction mutated the source config")
	}
}
