// Package binance streams depth diffs from Binance's combined public stream
// and reconstructs local books against REST snapshots.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue"
)

// Depth is the per-side level limit for Binance books.
const Depth = 100

// Client implements venue.Client for Binance spot.
type Client struct {
	wsURL    string
	restURL  string
	symbols  []string
	books    *venue.BookSet
	stream   *venue.Stream
	listener venue.Listener
	logger   *slog.Logger
}

// New creates a Binance client for the given native symbols (e.g. BTCUSDT).
func New(desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) *Client {
	return &Client{
		wsURL:    desc.WsURL,
		restURL:  desc.RestURL,
		symbols:  append([]string(nil), nativeSymbols...),
		books:    venue.NewBookSet(symbolsVenueID, Depth),
		listener: venue.NopListener{},
		logger:   logger.With(slog.String("component", "binance_client")),
	}
}

const symbolsVenueID = "binance"

// Venue returns the venue id.
func (c *Client) Venue() string { return symbolsVenueID }

// SubscribedSymbols returns the native symbols this client tracks.
func (c *Client) SubscribedSymbols() []string {
	return append([]string(nil), c.symbols...)
}

// LocalBooks returns copies of all primed books.
func (c *Client) LocalBooks() []domain.OrderBook {
	return c.books.Snapshots()
}

// SetListener installs the event listener; must precede Connect.
func (c *Client) SetListener(l venue.Listener) { c.listener = l }

// Connect primes every symbol from REST and opens the combined depth stream.
func (c *Client) Connect(ctx context.Context) error {
	c.stream = venue.NewStream(venue.StreamConfig{
		Venue:    symbolsVenueID,
		DialURL:  func(context.Context) (string, error) { return c.streamURL(), nil },
		Prime:    c.prime,
		Handle:   c.handle,
		Listener: c.listener,
		Logger:   c.logger,
	})
	return c.stream.Start(ctx)
}

// Disconnect stops the stream and clears the local books.
func (c *Client) Disconnect() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Stop()
	c.books.Clear()
	return err
}

// streamURL composes the combined-stream URL; symbols are lowercased in the
// URL only.
func (c *Client) streamURL() string {
	parts := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		parts = append(parts, strings.ToLower(s)+"@depth")
	}
	return c.wsURL + "/" + strings.Join(parts, "/")
}

// depthSnapshot is the REST /api/v3/depth payload.
type depthSnapshot struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// prime fetches one REST snapshot per symbol. A failed symbol is logged and
// stays absent until the next reconnect cycle.
func (c *Client) prime(ctx context.Context) error {
	for _, sym := range c.symbols {
		var snap depthSnapshot
		u := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", c.restURL, url.QueryEscape(sym), Depth)
		if err := venue.GetJSON(ctx, u, &snap); err != nil {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		b := c.books.GetOrCreate(sym)
		if err := b.ApplySnapshot(pairsToLevels(snap.Bids), pairsToLevels(snap.Asks),
			time.Now().UnixMilli(), snap.LastUpdateID); err != nil {
			c.logger.Warn("snapshot rejected",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.listener.OnOrderBook(b.Snapshot())
	}
	return nil
}

// depthUpdate is one diff event from <symbol>@depth.
type depthUpdate struct {
	Event   string      `json:"e"`
	EventMs int64       `json:"E"`
	Symbol  string      `json:"s"`
	FirstID int64       `json:"U"`
	FinalID int64       `json:"u"`
	Bids    [][2]string `json:"b"`
	Asks    [][2]string `json:"a"`
}

func (c *Client) handle(msg []byte) error {
	var upd depthUpdate
	if err := json.Unmarshal(msg, &upd); err != nil {
		return fmt.Errorf("binance: decode frame: %w", err)
	}
	if upd.Event != "depthUpdate" {
		return nil
	}

	b := c.books.Get(upd.Symbol)
	if b == nil {
		c.logger.Warn("update for unknown symbol", slog.String("symbol", upd.Symbol))
		return nil
	}

	tsMs := upd.EventMs
	if tsMs == 0 {
		tsMs = time.Now().UnixMilli()
	}
	err := b.ApplyDelta(pairsToLevels(upd.Bids), pairsToLevels(upd.Asks), tsMs, upd.FinalID)
	switch {
	case errors.Is(err, domain.ErrStaleUpdate):
		return nil
	case errors.Is(err, domain.ErrCrossedBook):
		c.logger.Warn("crossed book update discarded", slog.String("symbol", upd.Symbol))
		return nil
	case err != nil:
		return err
	}

	c.listener.OnOrderBook(b.Snapshot())
	return nil
}

func pairsToLevels(pairs [][2]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return out
}

// exchangeInfo is the subset of /api/v3/exchangeInfo used for discovery.
type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Status     string `json:"status"`
	} `json:"symbols"`
}

// DiscoverPairs fetches the venue's tradable pairs for registry extension.
func DiscoverPairs(ctx context.Context, restURL string) ([]domain.TradingPair, error) {
	var info exchangeInfo
	if err := venue.GetJSON(ctx, restURL+"/api/v3/exchangeInfo", &info); err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}
	pairs := make([]domain.TradingPair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		pairs = append(pairs, domain.TradingPair{
			NativeSymbol: s.Symbol,
			BaseAsset:    s.BaseAsset,
			QuoteAsset:   s.QuoteAsset,
			Active:       s.Status == "TRADING",
		})
	}
	return pairs, nil
}

var _ venue.Client = (*Client)(nil)
