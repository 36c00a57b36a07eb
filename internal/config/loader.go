package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults
// plus environment carry a complete configuration. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	// TOML decoding rebuilds map entries from zero, so a partial
	// [venues.<id>] block would wipe the venue's endpoints. Backfill empty
	// fields from the built-in defaults.
	defaults := Defaults()
	for id, v := range cfg.Venues {
		base, ok := defaults.Venues[id]
		if !ok {
			continue
		}
		if v.DisplayName == "" {
			v.DisplayName = base.DisplayName
		}
		if v.WsURL == "" {
			v.WsURL = base.WsURL
		}
		if v.RestURL == "" {
			v.RestURL = base.RestURL
		}
		if v.TakerFee == 0 {
			v.TakerFee = base.TakerFee
		}
		if v.MakerFee == 0 {
			v.MakerFee = base.MakerFee
		}
		if v.RateLimitPerMin == 0 {
			v.RateLimitPerMin = base.RateLimitPerMin
		}
		cfg.Venues[id] = v
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject endpoints and secrets at deploy time without
// touching the TOML file. REDIS_URL is honored as the conventional
// deployment variable.
func applyEnvOverrides(cfg *Config) {
	// ── Redis ──
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.URL, "ARBOT_REDIS_URL")
	setStr(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.DSN, "ARBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Bot defaults ──
	setStringSlice(&cfg.Bot.Exchanges, "ARBOT_BOT_EXCHANGES")
	setStringSlice(&cfg.Bot.Symbols, "ARBOT_BOT_SYMBOLS")
	setFloat64(&cfg.Bot.MinProfitPercent, "ARBOT_BOT_MIN_PROFIT_PERCENT")
	setFloat64(&cfg.Bot.TradeAmountUSD, "ARBOT_BOT_TRADE_AMOUNT_USD")
	setBool(&cfg.Bot.IsActive, "ARBOT_BOT_IS_ACTIVE")

	// ── Detector ──
	setFloat64(&cfg.Detector.SlippageBufferPercent, "ARBOT_DETECTOR_SLIPPAGE_BUFFER_PERCENT")
	setInt64(&cfg.Detector.MaxSpreadAgeMs, "ARBOT_DETECTOR_MAX_SPREAD_AGE_MS")
	setInt64(&cfg.Detector.TickIntervalMs, "ARBOT_DETECTOR_TICK_INTERVAL_MS")
	setInt(&cfg.Detector.RetentionCount, "ARBOT_DETECTOR_RETENTION_COUNT")
	setBool(&cfg.Detector.QuoteEquivalence, "ARBOT_DETECTOR_QUOTE_EQUIVALENCE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
