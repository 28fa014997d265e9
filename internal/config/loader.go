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
// built-in defaults, applies OBAGG_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus environment. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// A local .env is a convenience for development; missing is fine.
	_ = godotenv.Load()

	overlayEnv(&cfg)

	return &cfg, nil
}

// overlayEnv applies OBAGG_* environment variables on top of whatever the
// file set, so operators can inject secrets and endpoints at deploy time
// without touching the TOML.
func overlayEnv(cfg *Config) {
	// ── Top-level ──
	envStr("OBAGG_MODE", &cfg.Mode)
	envStr("OBAGG_LOG_LEVEL", &cfg.LogLevel)
	envStr("OBAGG_LOG_FORMAT", &cfg.LogFormat)

	// ── Aggregator ──
	envStr("OBAGG_PAIR", &cfg.Aggregator.Pair)
	envDuration("OBAGG_FETCH_TIMEOUT", &cfg.Aggregator.FetchTimeout)
	envDuration("OBAGG_REFRESH_INTERVAL", &cfg.Aggregator.RefreshInterval)
	envInt("OBAGG_DEPTH_LIMIT", &cfg.Aggregator.DepthLimit)
	envInt("OBAGG_MIN_SOURCES", &cfg.Aggregator.MinSources)

	// ── Quote ──
	envStr("OBAGG_DEFAULT_QUANTITY", &cfg.Quote.DefaultQuantity)
	envStr("OBAGG_DEFAULT_SIDE", &cfg.Quote.DefaultSide)

	// ── Exchanges ──
	// Endpoint overrides use the bare *_API names shared with sibling tools.
	envBool("OBAGG_COINBASE_ENABLED", &cfg.Exchanges.Coinbase.Enabled)
	envStr("COINBASE_API", &cfg.Exchanges.Coinbase.Endpoint)
	envStr("OBAGG_COINBASE_PRODUCT", &cfg.Exchanges.Coinbase.Product)
	envBool("OBAGG_GEMINI_ENABLED", &cfg.Exchanges.Gemini.Enabled)
	envStr("GEMINI_API", &cfg.Exchanges.Gemini.Endpoint)
	envStr("OBAGG_GEMINI_PRODUCT", &cfg.Exchanges.Gemini.Product)
	envBool("OBAGG_KRAKEN_ENABLED", &cfg.Exchanges.Kraken.Enabled)
	envStr("KRAKEN_API", &cfg.Exchanges.Kraken.Endpoint)
	envStr("OBAGG_KRAKEN_PRODUCT", &cfg.Exchanges.Kraken.Product)

	// ── Server ──
	envStr("OBAGG_SERVER_HOST", &cfg.Server.Host)
	envInt("OBAGG_SERVER_PORT", &cfg.Server.Port)
	envStr("OBAGG_API_KEY", &cfg.Server.APIKey)
	envList("OBAGG_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	// ── Redis ──
	envBool("OBAGG_REDIS_ENABLED", &cfg.Redis.Enabled)
	envStr("OBAGG_REDIS_ADDR", &cfg.Redis.Addr)
	envStr("OBAGG_REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("OBAGG_REDIS_DB", &cfg.Redis.DB)
	envInt("OBAGG_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	envBool("OBAGG_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)
	envDuration("OBAGG_REDIS_BOOK_TTL", &cfg.Redis.BookTTL)

	// ── Notify ──
	envBool("OBAGG_NOTIFY_ENABLED", &cfg.Notify.Enabled)
	envStr("OBAGG_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	envStr("OBAGG_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	envStr("OBAGG_DISCORD_WEBHOOK", &cfg.Notify.DiscordWebhookURL)
}

// env returns the trimmed value of key and whether it was set to something
// non-empty. Unset and empty are treated the same: keep the current value.
func env(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envStr(key string, dst *string) {
	if v, ok := env(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := env(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envBool(key string, dst *bool) {
	v, ok := env(key)
	if !ok {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func envDuration(key string, dst *duration) {
	v, ok := env(key)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		dst.Duration = d
	}
}

func envList(key string, dst *[]string) {
	v, ok := env(key)
	if !ok {
		return
	}
	var items []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if len(items) > 0 {
		*dst = items
	}
}
