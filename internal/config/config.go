// Package config defines the top-level configuration for the order book
// aggregator and provides validation helpers.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is everything the aggregator can be told: TOML file first, then
// OBAGG_* environment overrides on top.
type Config struct {
	Aggregator AggregatorConfig `toml:"aggregator"`
	Quote      QuoteConfig      `toml:"quote"`
	Exchanges  ExchangesConfig  `toml:"exchanges"`
	Server     ServerConfig     `toml:"server"`
	Redis      RedisConfig      `toml:"redis"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	LogFormat  string           `toml:"log_format"`
}

// AggregatorConfig holds the aggregation cycle parameters.
type AggregatorConfig struct {
	Pair            string   `toml:"pair"`
	FetchTimeout    duration `toml:"fetch_timeout"`
	RefreshInterval duration `toml:"refresh_interval"`
	DepthLimit      int      `toml:"depth_limit"`
	MinSources      int      `toml:"min_sources"`
}

// QuoteConfig holds the defaults for quote mode when no flags are given.
type QuoteConfig struct {
	DefaultQuantity string `toml:"default_quantity"`
	DefaultSide     string `toml:"default_side"`
}

// ExchangesConfig holds per-exchange connection and rate-limit settings.
type ExchangesConfig struct {
	Coinbase ExchangeConfig `toml:"coinbase"`
	Gemini   ExchangeConfig `toml:"gemini"`
	Kraken   ExchangeConfig `toml:"kraken"`
}

// ExchangeConfig configures a single exchange source. Depth is only used by
// exchanges whose book endpoint takes a level count (Kraken).
type ExchangeConfig struct {
	Enabled      bool     `toml:"enabled"`
	Endpoint     string   `toml:"endpoint"`
	Product      string   `toml:"product"`
	Depth        int      `toml:"depth"`
	RateLimit    int      `toml:"rate_limit"`
	RateInterval duration `toml:"rate_interval"`
}

// EnabledNames returns the names of all enabled exchanges, in fixed order.
func (e *ExchangesConfig) EnabledNames() []string {
	var names []string
	if e.Coinbase.Enabled {
		names = append(names, "coinbase")
	}
	if e.Gemini.Enabled {
		names = append(names, "gemini")
	}
	if e.Kraken.Enabled {
		names = append(names, "kraken")
	}
	return names
}

// ServerConfig holds HTTP server parameters for serve mode.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the server runs without the shared cache, pub/sub fan-out, and
// API rate limiting.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BookTTL    duration `toml:"book_ttl"`
}

// NotifyConfig holds notification channel credentials and event toggles.
type NotifyConfig struct {
	Enabled           bool   `toml:"enabled"`
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook"`
	OnCrossed         bool   `toml:"on_crossed"`
	OnFailure         bool   `toml:"on_failure"`
}

// Events translates the notify toggles into the allowed event list consumed
// by the notifier.
func (n *NotifyConfig) Events() []string {
	var events []string
	if n.OnCrossed {
		events = append(events, "crossed_book")
	}
	if n.OnFailure {
		events = append(events, "aggregation_failed", "aggregation_recovered")
	}
	return events
}

// duration lets TOML carry durations as strings like "30s" or "5m".
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

// Defaults is the built-in configuration, kept in sync with
// config.example.toml. It runs quote mode against Coinbase and Gemini with
// no Redis and no notifications.
func Defaults() Config {
	return Config{
		Aggregator: AggregatorConfig{
			Pair:            "BTC-USD",
			FetchTimeout:    duration{10 * time.Second},
			RefreshInterval: duration{5 * time.Second},
			DepthLimit:      0,
			MinSources:      1,
		},
		Quote: QuoteConfig{
			DefaultQuantity: "10",
			DefaultSide:     "both",
		},
		Exchanges: ExchangesConfig{
			Coinbase: ExchangeConfig{
				Enabled:      true,
				Endpoint:     "https://api.exchange.coinbase.com",
				Product:      "BTC-USD",
				RateLimit:    3,
				RateInterval: duration{time.Second},
			},
			Gemini: ExchangeConfig{
				Enabled:      true,
				Endpoint:     "https://api.gemini.com",
				Product:      "btcusd",
				RateLimit:    1,
				RateInterval: duration{2 * time.Second},
			},
			Kraken: ExchangeConfig{
				Enabled:      false,
				Endpoint:     "https://api.kraken.com",
				Product:      "XBTUSD",
				Depth:        100,
				RateLimit:    1,
				RateInterval: duration{time.Second},
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{15 * time.Second},
			ShutdownTimeout: duration{10 * time.Second},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			TLSEnabled: false,
			BookTTL:    duration{30 * time.Second},
		},
		Notify: NotifyConfig{
			Enabled:   false,
			OnCrossed: true,
			OnFailure: true,
		},
		Mode:      "quote",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// oneOf reports whether v, lowercased, appears in the accepted list.
func oneOf(v string, accepted ...string) bool {
	return slices.Contains(accepted, strings.ToLower(v))
}

// Validate checks the whole configuration and reports every problem at once,
// so a broken file surfaces all its mistakes in a single run.
func (c *Config) Validate() error {
	var errs []string

	if !oneOf(c.Mode, "quote", "watch", "serve") {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: quote, watch, serve)", c.Mode))
	}
	if !oneOf(c.LogLevel, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !oneOf(c.LogFormat, "text", "json") {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: text, json)", c.LogFormat))
	}

	// Aggregator
	if strings.TrimSpace(c.Aggregator.Pair) == "" {
		errs = append(errs, "aggregator: pair must not be empty")
	}
	if c.Aggregator.FetchTimeout.Duration <= 0 {
		errs = append(errs, "aggregator: fetch_timeout must be positive")
	}
	if c.Aggregator.RefreshInterval.Duration <= 0 {
		errs = append(errs, "aggregator: refresh_interval must be positive")
	}
	if c.Aggregator.DepthLimit < 0 {
		errs = append(errs, "aggregator: depth_limit must be >= 0 (0 keeps full depth)")
	}
	if c.Aggregator.MinSources < 1 {
		errs = append(errs, "aggregator: min_sources must be >= 1")
	}

	// Quote defaults
	if qty, err := decimal.NewFromString(c.Quote.DefaultQuantity); err != nil {
		errs = append(errs, fmt.Sprintf("quote: default_quantity %q is not a number", c.Quote.DefaultQuantity))
	} else if !qty.IsPositive() {
		errs = append(errs, "quote: default_quantity must be positive")
	}
	if !oneOf(c.Quote.DefaultSide, "buy", "sell", "both") {
		errs = append(errs, fmt.Sprintf("unknown quote side %q (valid: buy, sell, both)", c.Quote.DefaultSide))
	}

	// Exchanges: at least one must be enabled, and every enabled one must be
	// fully specified. Limiter construction re-checks the rate parameters.
	if len(c.Exchanges.EnabledNames()) == 0 {
		errs = append(errs, "exchanges: at least one exchange must be enabled")
	}
	for _, ex := range []struct {
		name string
		cfg  *ExchangeConfig
	}{
		{"coinbase", &c.Exchanges.Coinbase},
		{"gemini", &c.Exchanges.Gemini},
		{"kraken", &c.Exchanges.Kraken},
	} {
		if !ex.cfg.Enabled {
			continue
		}
		if !strings.HasPrefix(ex.cfg.Endpoint, "http://") && !strings.HasPrefix(ex.cfg.Endpoint, "https://") {
			errs = append(errs, fmt.Sprintf("exchanges.%s: endpoint %q must be an http(s) URL", ex.name, ex.cfg.Endpoint))
		}
		if strings.TrimSpace(ex.cfg.Product) == "" {
			errs = append(errs, fmt.Sprintf("exchanges.%s: product must not be empty", ex.name))
		}
		if ex.cfg.RateLimit < 1 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: rate_limit must be >= 1, got %d", ex.name, ex.cfg.RateLimit))
		}
		if ex.cfg.RateInterval.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: rate_interval must be positive", ex.name))
		}
		if ex.cfg.Depth < 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: depth must be >= 0", ex.name))
		}
	}

	// Server settings only bind in serve mode.
	if c.Mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0 (0 disables)")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.BookTTL.Duration <= 0 {
			errs = append(errs, "redis: book_ttl must be positive")
		}
	}

	// Notify: telegram credentials come in pairs.
	if c.Notify.Enabled {
		tt := c.Notify.TelegramToken != ""
		tc := c.Notify.TelegramChatID != ""
		if tt != tc {
			errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
		}
		if !tt && c.Notify.DiscordWebhookURL == "" {
			errs = append(errs, "notify: enabled but no channel configured (telegram or discord)")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
}
