// Package coinbase streams the public ticker channel from Coinbase Exchange.
// The unauthenticated feed carries only top-of-book updates, so the client
// primes full depth from REST and then rewrites just the best bid and ask on
// every ticker. Depth below the top is not refreshed.
package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue"
)

// Depth is the per-side level limit for Coinbase books.
const Depth = 50

const venueID = "coinbase"

// Client implements venue.Client for Coinbase Exchange.
type Client struct {
	wsURL    string
	restURL  string
	symbols  []string // product ids, e.g. BTC-USD
	books    *venue.BookSet
	stream   *venue.Stream
	listener venue.Listener
	logger   *slog.Logger
}

// New creates a Coinbase client for the given product ids.
func New(desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) *Client {
	return &Client{
		wsURL:    desc.WsURL,
		restURL:  desc.RestURL,
		symbols:  append([]string(nil), nativeSymbols...),
		books:    venue.NewBookSet(venueID, Depth),
		listener: venue.NopListener{},
		logger:   logger.With(slog.String("component", "coinbase_client")),
	}
}

func (c *Client) Venue() string { return venueID }

func (c *Client) SubscribedSymbols() []string {
	return append([]string(nil), c.symbols...)
}

func (c *Client) LocalBooks() []domain.OrderBook {
	return c.books.Snapshots()
}

func (c *Client) SetListener(l venue.Listener) { c.listener = l }

// Connect primes depth from REST and subscribes to the ticker channel.
func (c *Client) Connect(ctx context.Context) error {
	c.stream = venue.NewStream(venue.StreamConfig{
		Venue:     venueID,
		DialURL:   func(context.Context) (string, error) { return c.wsURL, nil },
		Prime:     c.prime,
		Subscribe: c.subscribe,
		Handle:    c.handle,
		Listener:  c.listener,
		Logger:    c.logger,
	})
	return c.stream.Start(ctx)
}

func (c *Client) Disconnect() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Stop()
	c.books.Clear()
	return err
}

// restBook is the /products/<id>/book?level=2 payload; levels are
// [price, size, num_orders].
type restBook struct {
	Bids [][]json.RawMessage `json:"bids"`
	Asks [][]json.RawMessage `json:"asks"`
}

func (c *Client) prime(ctx context.Context) error {
	for _, sym := range c.symbols {
		var snap restBook
		u := fmt.Sprintf("%s/products/%s/book?level=2", c.restURL, sym)
		if err := venue.GetJSON(ctx, u, &snap); err != nil {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		b := c.books.GetOrCreate(sym)
		if err := b.ApplySnapshot(rawLevels(snap.Bids), rawLevels(snap.Asks),
			time.Now().UnixMilli(), 0); err != nil {
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

// subscribeFrame is the public (no-auth) subscribe request.
type subscribeFrame struct {
	Type     string    `json:"type"`
	Channels []channel `json:"channels"`
}

type channel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

func (c *Client) subscribe(_ context.Context, s *venue.Stream) error {
	return s.WriteJSON(subscribeFrame{
		Type:     "subscribe",
		Channels: []channel{{Name: "ticker", ProductIDs: c.symbols}},
	})
}

// tickerMsg is one ticker event; best bid/ask sizes are present on the
// current feed version and empty on older ones.
type tickerMsg struct {
	Type        string `json:"type"`
	ProductID   string `json:"product_id"`
	BestBid     string `json:"best_bid"`
	BestBidSize string `json:"best_bid_size"`
	BestAsk     string `json:"best_ask"`
	BestAskSize string `json:"best_ask_size"`
	Time        string `json:"time"`
}

func (c *Client) handle(msg []byte) error {
	var tick tickerMsg
	if err := json.Unmarshal(msg, &tick); err != nil {
		return fmt.Errorf("coinbase: decode frame: %w", err)
	}
	if tick.Type != "ticker" {
		return nil
	}

	b := c.books.Get(tick.ProductID)
	if b == nil {
		c.logger.Warn("ticker for unknown symbol", slog.String("symbol", tick.ProductID))
		return nil
	}

	tsMs := time.Now().UnixMilli()
	if tick.Time != "" {
		if t, err := time.Parse(time.RFC3339Nano, tick.Time); err == nil {
			tsMs = t.UnixMilli()
		}
	}

	err := b.UpdateTop(tick.BestBid, tick.BestBidSize, tick.BestAsk, tick.BestAskSize, tsMs)
	if errors.Is(err, domain.ErrCrossedBook) {
		c.logger.Warn("crossed ticker discarded", slog.String("symbol", tick.ProductID))
		return nil
	}
	if err != nil {
		return err
	}

	c.listener.OnOrderBook(b.Snapshot())
	return nil
}

// rawLevels converts [price, size, ...] arrays whose elements may be JSON
// strings or numbers into price levels.
func rawLevels(rows [][]json.RawMessage) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, domain.PriceLevel{
			Price:    rawString(row[0]),
			Quantity: rawString(row[1]),
		})
	}
	return out
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var _ venue.Client = (*Client)(nil)
