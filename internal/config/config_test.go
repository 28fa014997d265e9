package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode      = "watch"
log_level = "debug"

[aggregator]
pair          = "ETH-USD"
fetch_timeout = "3s"

[exchanges.kraken]
enabled = true
product = "XETHZUSD"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "watch", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ETH-USD", cfg.Aggregator.Pair)
	assert.Equal(t, 3*time.Second, cfg.Aggregator.FetchTimeout.Duration)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Aggregator.RefreshInterval.Duration)
	assert.True(t, cfg.Exchanges.Coinbase.Enabled)
	assert.Equal(t, "https://api.exchange.coinbase.com", cfg.Exchanges.Coinbase.Endpoint)

	// Partial exchange tables inherit the remaining defaults.
	assert.True(t, cfg.Exchanges.Kraken.Enabled)
	assert.Equal(t, "XETHZUSD", cfg.Exchanges.Kraken.Product)
	assert.Equal(t, "https://api.kraken.com", cfg.Exchanges.Kraken.Endpoint)
	assert.Equal(t, 100, cfg.Exchanges.Kraken.Depth)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[aggregator]
pair = "ETH-USD"
`), 0o644))

	t.Setenv("OBAGG_PAIR", "SOL-USD")
	t.Setenv("OBAGG_FETCH_TIMEOUT", "7s")
	t.Setenv("COINBASE_API", "http://127.0.0.1:9999")
	t.Setenv("OBAGG_REDIS_ENABLED", "true")
	t.Setenv("OBAGG_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SOL-USD", cfg.Aggregator.Pair)
	assert.Equal(t, 7*time.Second, cfg.Aggregator.FetchTimeout.Duration)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Exchanges.Coinbase.Endpoint)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "quote", cfg.Mode)
	assert.Equal(t, "BTC-USD", cfg.Aggregator.Pair)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "stream"
	cfg.Aggregator.Pair = " "
	cfg.Aggregator.FetchTimeout.Duration = 0
	cfg.Quote.DefaultQuantity = "-3"
	cfg.Exchanges.Coinbase.Endpoint = "ftp://example.com"
	cfg.Exchanges.Coinbase.RateLimit = 0

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "stream"`)
	assert.Contains(t, msg, "pair must not be empty")
	assert.Contains(t, msg, "fetch_timeout must be positive")
	assert.Contains(t, msg, "default_quantity must be positive")
	assert.Contains(t, msg, "exchanges.coinbase: endpoint")
	assert.Contains(t, msg, "exchanges.coinbase: rate_limit must be >= 1")
}

func TestValidateRequiresOneExchange(t *testing.T) {
	cfg := Defaults()
	cfg.Exchanges.Coinbase.Enabled = false
	cfg.Exchanges.Gemini.Enabled = false
	cfg.Exchanges.Kraken.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one exchange must be enabled")
}

func TestValidateDisabledExchangeIgnored(t *testing.T) {
	cfg := Defaults()
	// Kraken is disabled by default; its settings must not be checked.
	cfg.Exchanges.Kraken.Endpoint = ""
	cfg.Exchanges.Kraken.RateLimit = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidateNotifyPairing(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Enabled = true
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram_token and telegram_chat_id must be set together")

	cfg.Notify.TelegramChatID = "42"
	assert.NoError(t, cfg.Validate())
}

func TestValidateNotifyNeedsChannel(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no channel configured")
}

func TestNotifyEvents(t *testing.T) {
	n := NotifyConfig{OnCrossed: true, OnFailure: true}
	assert.Equal(t, []string{"crossed_book", "aggregation_failed", "aggregation_recovered"}, n.Events())

	n = NotifyConfig{OnCrossed: false, OnFailure: true}
	assert.Equal(t, []string{"aggregation_failed", "aggregation_recovered"}, n.Events())

	n = NotifyConfig{}
	assert.Empty(t, n.Events())
}

func TestEnabledNames(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, []string{"coinbase", "gemini"}, cfg.Exchanges.EnabledNames())

	cfg.Exchanges.Kraken.Enabled = true
	assert.Equal(t, []string{"coinbase", "gemini", "kraken"}, cfg.Exchanges.EnabledNames())
}

func TestRedactedKeepsOriginal(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "super-secret"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"

	red := cfg.Redacted()
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Empty(t, red.Notify.DiscordWebhookURL)

	// The original is untouched.
	assert.Equal(t, "super-secret", cfg.Server.APIKey)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}
