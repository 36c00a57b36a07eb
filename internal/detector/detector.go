// Package detector turns order-book updates into qualifying two-leg
// arbitrage opportunities. It keeps the latest book per (venue, symbol),
// throttles scans to one per tick interval, and evaluates every venue pair
// in both directions with taker fees and a slippage buffer applied.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/symbols"
)

// OpportunitiesChannel is the pub/sub channel qualifying opportunities are
// re-emitted on for external consumers.
const OpportunitiesChannel = "bot:opportunities"

// DefaultTakerFee applies to venues missing from the fee schedule.
const DefaultTakerFee = 0.001

// thresholdEpsilon is the tolerance, in percentage points, of the inclusive
// profit threshold comparison.
const thresholdEpsilon = 1e-9

// Tunables are the runtime-adjustable detection parameters. MinProfitPercent
// and TradeAmountUSD follow the bot config; the rest come from static config.
type Tunables struct {
	MinProfitPercent float64
	SlippageBuffer   float64
	TradeAmountUSD   float64
	MaxSpreadAge     time.Duration
	TickInterval     time.Duration
	RetentionCount   int
}

// FeeRate is one venue's fee pair, fractional (0.001 = 10 bps).
type FeeRate struct {
	Taker float64
	Maker float64
}

// Config wires a Detector.
type Config struct {
	Registry *symbols.Registry
	Sink     domain.OpportunityStore
	Bus      domain.SignalBus // may be nil in tests
	Fees     map[string]FeeRate
	Tunables Tunables
	Logger   *slog.Logger
	// Now overrides the clock; tests inject a fixed time.
	Now func() time.Time
}

type bookKey struct {
	venue  string
	symbol string
}

// Detector is single-writer: Intake is called only from the manager's intake
// goroutine. The mutex guards the tunables, which the manager's config path
// adjusts concurrently.
type Detector struct {
	registry *symbols.Registry
	sink     domain.OpportunityStore
	bus      domain.SignalBus
	fees     map[string]FeeRate
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	tunables Tunables
	books    map[bookKey]domain.OrderBook
	lastTick time.Time
}

// New creates a detector.
func New(cfg Config) *Detector {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Fees == nil {
		cfg.Fees = make(map[string]FeeRate)
	}
	return &Detector{
		registry: cfg.Registry,
		sink:     cfg.Sink,
		bus:      cfg.Bus,
		fees:     cfg.Fees,
		logger:   cfg.Logger.With(slog.String("component", "detector")),
		now:      cfg.Now,
		tunables: cfg.Tunables,
		books:    make(map[bookKey]domain.OrderBook),
	}
}

// SetTunables pushes updated min-profit and trade-amount values from a
// config change; the static tunables are preserved.
func (d *Detector) SetTunables(minProfitPercent, tradeAmountUSD float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tunables.MinProfitPercent = minProfitPercent
	d.tunables.TradeAmountUSD = tradeAmountUSD
}

// Reset drops all tracked books; called when the manager reshapes the venue
// set so stale venues cannot linger.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.books = make(map[bookKey]domain.OrderBook)
}

// Intake records the latest book for its (venue, symbol) slot and, at most
// once per tick interval, scans all canonical symbols for opportunities.
func (d *Detector) Intake(ctx context.Context, book domain.OrderBook) {
	d.mu.Lock()
	d.books[bookKey{venue: book.Venue, symbol: book.Symbol}] = book

	now := d.now()
	if now.Sub(d.lastTick) < d.tunables.TickInterval {
		d.mu.Unlock()
		return
	}
	d.lastTick = now

	snapshot := make(map[bookKey]domain.OrderBook, len(d.books))
	for k, v := range d.books {
		snapshot[k] = v
	}
	tun := d.tunables
	d.mu.Unlock()

	d.scan(ctx, snapshot, tun, now)
}

// scan groups fresh books by canonical symbol and evaluates every venue pair
// in both directions. Iteration order is deterministic: symbols ascending,
// venue pairs by (min id, max id).
func (d *Detector) scan(ctx context.Context, books map[bookKey]domain.OrderBook, tun Tunables, now time.Time) {
	byCanonical := make(map[string][]domain.OrderBook)
	for k, b := range books {
		canonical, err := d.registry.Canonicalize(k.venue, k.symbol)
		if err != nil {
			continue
		}
		// Freshness window: future timestamps count as fresh.
		if now.UnixMilli()-b.TimestampMs > tun.MaxSpreadAge.Milliseconds() {
			continue
		}
		byCanonical[canonical] = append(byCanonical[canonical], b)
	}

	canonicals := make([]string, 0, len(byCanonical))
	for s := range byCanonical {
		canonicals = append(canonicals, s)
	}
	sort.Strings(canonicals)

	for _, sym := range canonicals {
		group := byCanonical[sym]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Venue < group[j].Venue })

		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if opp, ok := d.evaluate(group[i], group[j], sym, tun, now); ok {
					d.record(ctx, opp, tun)
				}
				if opp, ok := d.evaluate(group[j], group[i], sym, tun, now); ok {
					d.record(ctx, opp, tun)
				}
			}
		}
	}
}

// evaluate prices one direction: buy at buySide's best ask, sell at
// sellSide's best bid, for a USD-denominated trade amount.
func (d *Detector) evaluate(buySide, sellSide domain.OrderBook, canonical string, tun Tunables, now time.Time) (domain.ArbitrageOpportunity, bool) {
	ask, okAsk := buySide.BestAsk()
	bid, okBid := sellSide.BestBid()
	if !okAsk || !okBid {
		return domain.ArbitrageOpportunity{}, false
	}

	buyPrice := ask.PriceFloat()
	sellPrice := bid.PriceFloat()
	if buyPrice <= 0 || sellPrice <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	qty := tun.TradeAmountUSD / buyPrice
	buyValue := tun.TradeAmountUSD
	sellValue := sellPrice * qty

	buyFee := buyValue * d.takerFee(buySide.Venue)
	sellFee := sellValue * d.takerFee(sellSide.Venue)
	totalFee := buyFee + sellFee

	gross := sellValue - buyValue
	net := gross - totalFee
	profitPercent := (net / buyValue) * 100

	// The threshold is inclusive; thresholdEpsilon absorbs float rounding so a
	// profit exactly at the threshold in decimal terms still qualifies.
	if profitPercent < tun.MinProfitPercent+tun.SlippageBuffer-thresholdEpsilon {
		return domain.ArbitrageOpportunity{}, false
	}

	return domain.ArbitrageOpportunity{
		ID:              newOpportunityID(now),
		Symbol:          canonical,
		BuyVenue:        buySide.Venue,
		SellVenue:       sellSide.Venue,
		BuyPrice:        buyPrice,
		SellPrice:       sellPrice,
		Spread:          gross,
		SpreadPercent:   profitPercent,
		EstimatedProfit: net,
		BuyFee:          buyFee,
		SellFee:         sellFee,
		TotalFee:        totalFee,
		DetectedAt:      now,
	}, true
}

// record appends the opportunity to the sink, prunes to the retention bound,
// and re-emits the event. Sink failures are logged; the in-process event is
// still emitted.
func (d *Detector) record(ctx context.Context, opp domain.ArbitrageOpportunity, tun Tunables) {
	if d.sink != nil {
		if err := d.sink.Append(ctx, opp); err != nil {
			d.logger.Warn("opportunity append failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		} else if tun.RetentionCount > 0 {
			if err := d.sink.PruneTo(ctx, tun.RetentionCount); err != nil {
				d.logger.Warn("opportunity prune failed", slog.String("error", err.Error()))
			}
		}
	}

	d.logger.Info("opportunity detected",
		slog.String("symbol", opp.Symbol),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
		slog.Float64("profit_percent", opp.SpreadPercent),
		slog.Float64("net_profit_usd", opp.EstimatedProfit),
	)

	if d.bus != nil {
		payload, err := json.Marshal(opp)
		if err == nil {
			if err := d.bus.Publish(ctx, OpportunitiesChannel, payload); err != nil {
				d.logger.Warn("opportunity publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (d *Detector) takerFee(venueID string) float64 {
	if fee, ok := d.fees[venueID]; ok {
		return fee.Taker
	}
	return DefaultTakerFee
}

// newOpportunityID builds opp_<unix_ms>_<random>.
func newOpportunityID(now time.Time) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("opp_%d_%s", now.UnixMilli(), suffix)
}
