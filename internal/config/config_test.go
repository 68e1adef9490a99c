package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.RefPrice.URL = "https://prices.example.com/table"
	cfg.Accounts = []AccountConfig{{
		Name:            "main",
		Enabled:         true,
		APIKey:          "key-1",
		MinProfitMargin: 0.05,
		LiquidityFloor:  80,
		MinQuantity:     5,
		PriceMin:        1,
		PriceMax:        500,
	}}
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"missing refprice url", func(c *Config) { c.RefPrice.URL = "" }, "refprice: url"},
		{"zero fee rate", func(c *Config) { c.Market.FeeRate = 0 }, "fee_rate"},
		{"no enabled accounts", func(c *Config) { c.Accounts[0].Enabled = false }, "at least one enabled account"},
		{"both key forms", func(c *Config) { c.Accounts[0].EncryptedAPIKey = "enc" }, "exactly one of"},
		{"no key at all", func(c *Config) { c.Accounts[0].APIKey = "" }, "exactly one of"},
		{"encrypted key without password", func(c *Config) {
			c.Accounts[0].APIKey = ""
			c.Accounts[0].EncryptedAPIKey = "enc"
		}, "key_password"},
		{"inverted price bounds", func(c *Config) { c.Accounts[0].PriceMax = 0.5 }, "price_max"},
		{"zero margin", func(c *Config) { c.Accounts[0].MinProfitMargin = 0 }, "min_profit_margin"},
		{"duplicate account names", func(c *Config) {
			c.Accounts = append(c.Accounts, c.Accounts[0])
		}, "duplicate name"},
		{"postgres bad pool", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.PoolMaxConns = 0
		}, "pool_max_conns"},
		{"redis enabled without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis: addr"},
		{"s3 enabled without bucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"telegram token without chat id", func(c *Config) {
			c.Notify.TelegramToken = "tok"
		}, "telegram"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
log_level = "debug"

[refprice]
url = "https://prices.example.com/table"

[[accounts]]
name = "main"
enabled = true
api_key = "key-1"
poll_interval = "45s"
min_profit_margin = 0.07
liquidity_floor = 85
min_quantity = 3
price_min = 2.0
price_max = 300.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("SNIPER_MARKET_FEE_RATE", "1.03")
	t.Setenv("SNIPER_REFPRICE_AUTH_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1.03, cfg.Market.FeeRate, "env override wins")
	assert.Equal(t, "env-token", cfg.RefPrice.AuthToken)
	// Defaults survive where the file is silent.
	assert.Equal(t, "https://api.white.market/graphql", cfg.Market.Endpoint)

	require.Len(t, cfg.Accounts, 1)
	acc := cfg.Accounts[0]
	assert.Equal(t, 45*time.Second, acc.PollInterval.Duration)
	assert.Equal(t, 0.07, acc.MinProfitMargin)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.RefPrice.AuthToken = "secret"
	cfg.Notify.TelegramToken = "tg-secret"
	cfg.Postgres.Password = "pg-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.RefPrice.AuthToken)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Accounts[0].APIKey)
	// The original is untouched.
	assert.Equal(t, "key-1", cfg.Accounts[0].APIKey)
	// Non-secret fields pass through.
	assert.Equal(t, cfg.Market.Endpoint, red.Market.Endpoint)
}

func TestFileCredentialStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileCredentialStore(path, "main")

	require.NoError(t, store.UpdateAPIKey("key-1", "key-2"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var keys map[string]string
	require.NoError(t, json.Unmarshal(data, &keys))
	assert.Equal(t, "key-2", keys["main"])

	// A second rotation from the recorded key succeeds.
	require.NoError(t, store.UpdateAPIKey("key-2", "key-3"))

	// A rotation from a stale key is refused.
	err = store.UpdateAPIKey("key-2", "key-4")
	require.Error(t, err)
}

func TestFileBanListStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banlist.json")
	store := NewFileBanListStore(path)

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries, "missing file yields an empty list")

	require.NoError(t, store.Save([]string{"Dragon Lore", "Howl"}))

	entries, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Dragon Lore", "Howl"}, entries)
}
