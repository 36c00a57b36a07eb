// Package config defines the static configuration for the arbitrage monitor
// and provides validation helpers. Runtime behavior (venue set, symbols,
// profit threshold) lives in the store under "bot:config"; this file covers
// infrastructure endpoints, fee schedules, and detector tunables.
package config

import (
	"fmt"
	"strings"

	"github.com/Jonathan-Vandenberg/arbot/internal/symbols"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Redis    RedisConfig            `toml:"redis"`
	Postgres PostgresConfig         `toml:"postgres"`
	Bot      BotDefaults            `toml:"bot"`
	Detector DetectorConfig         `toml:"detector"`
	Venues   map[string]VenueConfig `toml:"venues"`
	LogLevel string                 `toml:"log_level"`
}

// RedisConfig holds Redis connection parameters. URL, when set, wins over the
// discrete fields.
type RedisConfig struct {
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the sink.
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

// BotDefaults seeds the runtime config when the store holds no "bot:config"
// key yet.
type BotDefaults struct {
	Exchanges        []string `toml:"exchanges"`
	Symbols          []string `toml:"symbols"`
	MinProfitPercent float64  `toml:"min_profit_percent"`
	TradeAmountUSD   float64  `toml:"trade_amount_usd"`
	IsActive         bool     `toml:"is_active"`
}

// DetectorConfig holds the static detection tunables.
type DetectorConfig struct {
	SlippageBufferPercent float64 `toml:"slippage_buffer_percent"`
	MaxSpreadAgeMs        int64   `toml:"max_spread_age_ms"`
	TickIntervalMs        int64   `toml:"tick_interval_ms"`
	RetentionCount        int     `toml:"retention_count"`
	QuoteEquivalence      bool    `toml:"quote_equivalence"`
}

// VenueConfig holds one venue's endpoints and fee schedule. Taker and maker
// fees are fractional rates (0.001 = 10 bps).
type VenueConfig struct {
	DisplayName     string  `toml:"display_name"`
	WsURL           string  `toml:"ws_url"`
	RestURL         string  `toml:"rest_url"`
	TakerFee        float64 `toml:"taker_fee"`
	MakerFee        float64 `toml:"maker_fee"`
	RateLimitPerMin int     `toml:"rate_limit_per_min"`
}

// Defaults returns the built-in configuration: all six public venues with
// their production endpoints and published taker fees.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbot",
			User:          "arbot",
			SSLMode:       "disable",
			RunMigrations: true,
		},
		Bot: BotDefaults{
			Exchanges:        []string{symbols.VenueBinance, symbols.VenueCoinbase, symbols.VenueKraken},
			Symbols:          []string{"BTCUSD", "ETHUSD"},
			MinProfitPercent: 0.1,
			TradeAmountUSD:   1000,
			IsActive:         true,
		},
		Detector: DetectorConfig{
			SlippageBufferPercent: 0.1,
			MaxSpreadAgeMs:        5000,
			TickIntervalMs:        1000,
			RetentionCount:        1000,
			QuoteEquivalence:      true,
		},
		Venues: map[string]VenueConfig{
			symbols.VenueBinance: {
				DisplayName:     "Binance",
				WsURL:           "wss://stream.binance.com:9443/ws",
				RestURL:         "https://api.binance.com",
				TakerFee:        0.001,
				MakerFee:        0.001,
				RateLimitPerMin: 1200,
			},
			symbols.VenueCoinbase: {
				DisplayName:     "Coinbase",
				WsURL:           "wss://ws-feed.exchange.coinbase.com",
				RestURL:         "https://api.exchange.coinbase.com",
				TakerFee:        0.006,
				MakerFee:        0.004,
				RateLimitPerMin: 600,
			},
			symbols.VenueKraken: {
				DisplayName:     "Kraken",
				WsURL:           "wss://ws.kraken.com",
				RestURL:         "https://api.kraken.com",
				TakerFee:        0.0026,
				MakerFee:        0.0016,
				RateLimitPerMin: 60,
			},
			symbols.VenueBybit: {
				DisplayName:     "Bybit",
				WsURL:           "wss://stream.bybit.com/v5/public/spot",
				RestURL:         "https://api.bybit.com",
				TakerFee:        0.001,
				MakerFee:        0.001,
				RateLimitPerMin: 600,
			},
			symbols.VenueKuCoin: {
				DisplayName:     "KuCoin",
				WsURL:           "", // resolved via bullet-public bootstrap
				RestURL:         "https://api.kucoin.com",
				TakerFee:        0.001,
				MakerFee:        0.001,
				RateLimitPerMin: 600,
			},
			symbols.VenueGemini: {
				DisplayName:     "Gemini",
				WsURL:           "wss://api.gemini.com",
				RestURL:         "https://api.gemini.com",
				TakerFee:        0.004,
				MakerFee:        0.002,
				RateLimitPerMin: 120,
			},
		},
	}
}

// Validate checks the configuration for inconsistencies that would prevent
// startup.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}

	if c.Redis.URL == "" && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis url or addr is required")
	}
	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
		return fmt.Errorf("config: postgres dsn or host/database/user is required")
	}

	if len(c.Bot.Exchanges) == 0 {
		return fmt.Errorf("config: bot.exchanges must not be empty")
	}
	for _, v := range c.Bot.Exchanges {
		if !symbols.Known(v) {
			return fmt.Errorf("config: unknown venue %q in bot.exchanges", v)
		}
	}
	if c.Bot.MinProfitPercent < 0 {
		return fmt.Errorf("config: bot.min_profit_percent must be >= 0")
	}
	if c.Bot.TradeAmountUSD <= 0 {
		return fmt.Errorf("config: bot.trade_amount_usd must be > 0")
	}

	if c.Detector.MaxSpreadAgeMs <= 0 {
		return fmt.Errorf("config: detector.max_spread_age_ms must be > 0")
	}
	if c.Detector.TickIntervalMs <= 0 {
		return fmt.Errorf("config: detector.tick_interval_ms must be > 0")
	}
	if c.Detector.RetentionCount <= 0 {
		return fmt.Errorf("config: detector.retention_count must be > 0")
	}

	for id := range c.Venues {
		if !symbols.Known(id) {
			return fmt.Errorf("config: unknown venue %q in venues", id)
		}
	}
	return nil
}
