// Package config defines the top-level configuration for the sniper and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SNIPER_* environment variables.
type Config struct {
	Market   MarketConfig    `toml:"market"`
	RefPrice RefPriceConfig  `toml:"refprice"`
	Accounts []AccountConfig `toml:"accounts"`
	Postgres PostgresConfig  `toml:"postgres"`
	Redis    RedisConfig     `toml:"redis"`
	S3       S3Config        `toml:"s3"`
	Notify   NotifyConfig    `toml:"notify"`
	Secrets  SecretsConfig   `toml:"secrets"`
	BanList  BanListConfig   `toml:"banlist"`
	LogLevel string          `toml:"log_level"`
}

// MarketConfig holds the partner marketplace API endpoints.
type MarketConfig struct {
	Endpoint string  `toml:"endpoint"` // GraphQL endpoint
	WSURL    string  `toml:"ws_url"`   // push channel (websocket)
	SSEURL   string  `toml:"sse_url"`  // SSE fallback stream
	FeeRate  float64 `toml:"fee_rate"` // cost multiplier applied to listing prices
}

// RefPriceConfig holds the external reference price service parameters.
type RefPriceConfig struct {
	URL       string `toml:"url"`
	AuthToken string `toml:"auth_token"`
}

// AccountConfig holds one trading account: its API key and risk parameters.
// Exactly one of api_key and encrypted_api_key must be set; encrypted keys
// are decrypted at startup with secrets.key_password.
type AccountConfig struct {
	Name            string   `toml:"name"`
	Enabled         bool     `toml:"enabled"`
	APIKey          string   `toml:"api_key"`
	EncryptedAPIKey string   `toml:"encrypted_api_key"`
	PollInterval    duration `toml:"poll_interval"` // 0 disables the poll path
	MinProfitMargin float64  `toml:"min_profit_margin"`
	LiquidityFloor  float64  `toml:"liquidity_floor"`
	MinQuantity     int      `toml:"min_quantity"`
	PriceMin        float64  `toml:"price_min"`
	PriceMax        float64  `toml:"price_max"`
}

// PostgresConfig holds the purchase audit database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

	ArchiveRetentionDays int `toml:"archive_retention_days"`
}

// RedisConfig holds Redis connection parameters for the reference snapshot
// mirror.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for purchase
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// SecretsConfig holds the parameters for decrypting encrypted account keys
// and for writing rotated keys back to disk.
type SecretsConfig struct {
	KeyPassword     string `toml:"key_password"`
	CredentialsPath string `toml:"credentials_path"`
}

// BanListConfig holds the operator ban list file location.
type BanListConfig struct {
	Path string `toml:"path"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Endpoint: "https://api.white.market/graphql",
			WSURL:    "wss://center.white.market/connection/websocket",
			SSEURL:   "https://center.white.market/connection/uni_sse",
			FeeRate:  1.0,
		},
		Postgres: PostgresConfig{
			Enabled:              false,
			Host:                 "localhost",
			Port:                 5432,
			Database:             "sniper",
			User:                 "postgres",
			SSLMode:              "disable",
			PoolMaxConns:         10,
			PoolMinConns:         2,
			RunMigrations:        true,
			ArchiveRetentionDays: 90,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sniper-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		BanList: BanListConfig{
			Path: "banlist.json",
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market endpoints
	if c.Market.Endpoint == "" {
		errs = append(errs, "market: endpoint must not be empty")
	}
	if c.Market.WSURL == "" {
		errs = append(errs, "market: ws_url must not be empty")
	}
	if c.Market.SSEURL == "" {
		errs = append(errs, "market: sse_url must not be empty")
	}
	if c.Market.FeeRate <= 0 {
		errs = append(errs, "market: fee_rate must be > 0")
	}

	// Reference price service
	if c.RefPrice.URL == "" {
		errs = append(errs, "refprice: url must not be empty")
	}

	// Accounts
	enabled := 0
	names := map[string]bool{}
	for i, a := range c.Accounts {
		ref := a.Name
		if ref == "" {
			ref = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Sprintf("accounts[%d]: name must not be empty", i))
		}
		if names[a.Name] && a.Name != "" {
			errs = append(errs, fmt.Sprintf("accounts: duplicate name %q", a.Name))
		}
		names[a.Name] = true
		if !a.Enabled {
			continue
		}
		enabled++

		hasPlain := a.APIKey != ""
		hasEnc := a.EncryptedAPIKey != ""
		if hasPlain == hasEnc {
			errs = append(errs, fmt.Sprintf("account %s: exactly one of api_key and encrypted_api_key must be set", ref))
		}
		if hasEnc && c.Secrets.KeyPassword == "" {
			errs = append(errs, fmt.Sprintf("account %s: secrets.key_password is required for encrypted_api_key", ref))
		}
		if a.MinProfitMargin <= 0 {
			errs = append(errs, fmt.Sprintf("account %s: min_profit_margin must be > 0", ref))
		}
		if a.LiquidityFloor < 0 {
			errs = append(errs, fmt.Sprintf("account %s: liquidity_floor must be >= 0", ref))
		}
		if a.MinQuantity < 0 {
			errs = append(errs, fmt.Sprintf("account %s: min_quantity must be >= 0", ref))
		}
		if a.PriceMin < 0 {
			errs = append(errs, fmt.Sprintf("account %s: price_min must be >= 0", ref))
		}
		if a.PriceMax <= a.PriceMin {
			errs = append(errs, fmt.Sprintf("account %s: price_max must exceed price_min", ref))
		}
	}
	if enabled == 0 {
		errs = append(errs, "accounts: at least one enabled account is required")
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Postgres.ArchiveRetentionDays < 0 {
			errs = append(errs, "postgres: archive_retention_days must be >= 0")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Telegram fields must be set together.
	tk := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tk != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
