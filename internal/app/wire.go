package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jonathan-Vandenberg/arbot/internal/cache/redis"
	"github.com/Jonathan-Vandenberg/arbot/internal/config"
	"github.com/Jonathan-Vandenberg/arbot/internal/detector"
	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/manager"
	"github.com/Jonathan-Vandenberg/arbot/internal/store/postgres"
	"github.com/Jonathan-Vandenberg/arbot/internal/symbols"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue/binance"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue/bybit"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue/coinbase"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue/gemini"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue/kraken"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue/kucoin"
)

// Wire constructs the full pipeline from the given configuration and returns
// the manager together with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*manager.Manager, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*manager.Manager, func(), error) {
		cleanup()
		return nil, nil, err
	}

	redisCfg := redis.ClientConfig{
		URL:        cfg.Redis.URL,
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	}

	// Two store connections: one for reads/writes, one dedicated to the
	// config subscription.
	rw, err := redis.New(ctx, redisCfg)
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = rw.Close() })

	sub, err := redis.New(ctx, redisCfg)
	if err != nil {
		return fail(fmt.Errorf("wire: redis subscriber: %w", err))
	}
	closers = append(closers, func() { _ = sub.Close() })

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pg.Close)

	if cfg.Postgres.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: migrations: %w", err))
		}
	}

	venues := descriptors(cfg)
	registry := symbols.NewRegistry(cfg.Detector.QuoteEquivalence)

	// Extend the registry from Binance pair discovery; a failure here only
	// costs discovery, recipe formatting still resolves the configured
	// symbols.
	if binanceCfg, ok := cfg.Venues[symbols.VenueBinance]; ok {
		if pairs, err := binance.DiscoverPairs(ctx, binanceCfg.RestURL); err != nil {
			logger.Warn("binance pair discovery failed", slog.String("error", err.Error()))
		} else if err := registry.RegisterPairs(symbols.VenueBinance, pairs); err != nil {
			logger.Warn("binance pair registration failed", slog.String("error", err.Error()))
		}
	}

	fees := make(map[string]detector.FeeRate, len(cfg.Venues))
	for id, v := range cfg.Venues {
		fees[id] = detector.FeeRate{Taker: v.TakerFee, Maker: v.MakerFee}
	}

	sink := postgres.NewOpportunityStore(pg.Pool(), venues)
	bus := redis.NewSignalBus(rw)

	det := detector.New(detector.Config{
		Registry: registry,
		Sink:     sink,
		Bus:      bus,
		Fees:     fees,
		Tunables: detector.Tunables{
			MinProfitPercent: cfg.Bot.MinProfitPercent,
			SlippageBuffer:   cfg.Detector.SlippageBufferPercent,
			TradeAmountUSD:   cfg.Bot.TradeAmountUSD,
			MaxSpreadAge:     time.Duration(cfg.Detector.MaxSpreadAgeMs) * time.Millisecond,
			TickInterval:     time.Duration(cfg.Detector.TickIntervalMs) * time.Millisecond,
			RetentionCount:   cfg.Detector.RetentionCount,
		},
		Logger: logger,
	})

	mgr := manager.New(manager.Config{
		Defaults: domain.BotConfig{
			Exchanges:        cfg.Bot.Exchanges,
			Symbols:          cfg.Bot.Symbols,
			MinProfitPercent: cfg.Bot.MinProfitPercent,
			TradeAmount:      cfg.Bot.TradeAmountUSD,
			IsActive:         cfg.Bot.IsActive,
		},
		Venues:      venues,
		Registry:    registry,
		Detector:    det,
		Cache:       redis.NewBookCache(rw),
		ConfigStore: redis.NewConfigStore(rw),
		Bus:         redis.NewSignalBus(sub),
		Factory:     newClient,
		Logger:      logger,
	})

	return mgr, cleanup, nil
}

// descriptors converts the venue config map into domain descriptors.
func descriptors(cfg *config.Config) map[string]domain.VenueDescriptor {
	out := make(map[string]domain.VenueDescriptor, len(cfg.Venues))
	for id, v := range cfg.Venues {
		out[id] = domain.VenueDescriptor{
			ID:              id,
			DisplayName:     v.DisplayName,
			WsURL:           v.WsURL,
			RestURL:         v.RestURL,
			TakerFee:        v.TakerFee,
			MakerFee:        v.MakerFee,
			RateLimitPerMin: v.RateLimitPerMin,
		}
	}
	return out
}

// newClient is the manager's venue client factory.
func newClient(venueID string, desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) (venue.Client, error) {
	switch venueID {
	case symbols.VenueBinance:
		return binance.New(desc, nativeSymbols, logger), nil
	case symbols.VenueCoinbase:
		return coinbase.New(desc, nativeSymbols, logger), nil
	case symbols.VenueKraken:
		return kraken.New(desc, nativeSymbols, logger), nil
	case symbols.VenueBybit:
		return bybit.New(desc, nativeSymbols, logger), nil
	case symbols.VenueKuCoin:
		return kucoin.New(desc, nativeSymbols, logger), nil
	case symbols.VenueGemini:
		return gemini.New(desc, nativeSymbols, logger), nil
	default:
		return nil, fmt.Errorf("wire: %q: %w", venueID, domain.ErrUnknownVenue)
	}
}
