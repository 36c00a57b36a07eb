// Package gemini streams market data from Gemini's v1 feed. Gemini opens one
// WebSocket per symbol on /v1/marketdata/<sym>; all events arrive pre-formed
// with no subscribe frame. The first update of a connection carries the full
// book as "initial" change events.
package gemini

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

// Depth is the per-side level limit for Gemini books.
const Depth = 50

const venueID = "gemini"

// Client implements venue.Client for Gemini. It holds one stream per symbol.
type Client struct {
	wsURL    string
	restURL  string
	symbols  []string // lowercase, e.g. btcusd
	books    *venue.BookSet
	streams  map[string]*venue.Stream
	listener venue.Listener
	logger   *slog.Logger
}

// New creates a Gemini client for the given native symbols.
func New(desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) *Client {
	return &Client{
		wsURL:    desc.WsURL,
		restURL:  desc.RestURL,
		symbols:  append([]string(nil), nativeSymbols...),
		books:    venue.NewBookSet(venueID, Depth),
		streams:  make(map[string]*venue.Stream),
		listener: venue.NopListener{},
		logger:   logger.With(slog.String("component", "gemini_client")),
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

// Connect primes and opens one socket per symbol. Individual symbol failures
// are logged; Connect errors only when every symbol fails.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	started := 0
	for _, sym := range c.symbols {
		sym := sym
		s := venue.NewStream(venue.StreamConfig{
			Venue: venueID,
			DialURL: func(context.Context) (string, error) {
				return c.wsURL + "/v1/marketdata/" + sym, nil
			},
			Prime:    func(ctx context.Context) error { return c.primeSymbol(ctx, sym) },
			Handle:   func(msg []byte) error { return c.handleSymbol(sym, msg) },
			Listener: c.listener,
			Logger:   c.logger,
		})
		if err := s.Start(ctx); err != nil {
			c.logger.Warn("symbol stream failed to start",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		c.streams[sym] = s
		started++
	}
	if started == 0 && lastErr != nil {
		return fmt.Errorf("gemini: connect: %w", lastErr)
	}
	return nil
}

func (c *Client) Disconnect() error {
	var firstErr error
	for _, s := range c.streams {
		if err := s.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.streams = make(map[string]*venue.Stream)
	c.books.Clear()
	return firstErr
}

// restBook is the /v1/book/<sym> payload; levels are objects rather than
// arrays on this venue.
type restBook struct {
	Bids []restLevel `json:"bids"`
	Asks []restLevel `json:"asks"`
}

type restLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

func (c *Client) primeSymbol(ctx context.Context, sym string) error {
	var snap restBook
	if err := venue.GetJSON(ctx, c.restURL+"/v1/book/"+sym, &snap); err != nil {
		c.logger.Warn("snapshot priming failed",
			slog.String("symbol", sym),
			slog.String("error", err.Error()),
		)
		return nil
	}
	b := c.books.GetOrCreate(sym)
	if err := b.ApplySnapshot(objLevels(snap.Bids), objLevels(snap.Asks),
		time.Now().UnixMilli(), 0); err != nil {
		c.logger.Warn("snapshot rejected",
			slog.String("symbol", sym),
			slog.String("error", err.Error()),
		)
		return nil
	}
	c.listener.OnOrderBook(b.Snapshot())
	return nil
}

// marketEvent is one feed message; change events carry side/price/remaining.
type marketEvent struct {
	Type        string `json:"type"`
	TimestampMs int64  `json:"timestampms"`
	Events      []struct {
		Type      string `json:"type"`
		Side      string `json:"side"` // "bid" or "ask"
		Price     string `json:"price"`
		Remaining string `json:"remaining"`
		Reason    string `json:"reason"`
	} `json:"events"`
}

func (c *Client) handleSymbol(sym string, msg []byte) error {
	var ev marketEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return fmt.Errorf("gemini: decode frame: %w", err)
	}
	if ev.Type != "update" || len(ev.Events) == 0 {
		return nil
	}

	b := c.books.Get(sym)
	if b == nil {
		// Priming failed; the feed's initial update rebuilds the book.
		b = c.books.GetOrCreate(sym)
	}

	var bids, asks []domain.PriceLevel
	initial := true
	for _, e := range ev.Events {
		if e.Type != "change" {
			continue
		}
		if e.Reason != "initial" {
			initial = false
		}
		lvl := domain.PriceLevel{Price: e.Price, Quantity: e.Remaining}
		switch e.Side {
		case "bid":
			bids = append(bids, lvl)
		case "ask":
			asks = append(asks, lvl)
		}
	}
	if len(bids) == 0 && len(asks) == 0 {
		return nil
	}

	tsMs := ev.TimestampMs
	if tsMs == 0 {
		tsMs = time.Now().UnixMilli()
	}

	var err error
	if initial {
		err = b.ApplySnapshot(bids, asks, tsMs, 0)
	} else {
		err = b.ApplyDelta(bids, asks, tsMs, 0)
	}
	if errors.Is(err, domain.ErrCrossedBook) {
		c.logger.Warn("crossed book update discarded", slog.String("symbol", sym))
		return nil
	}
	if err != nil {
		return err
	}

	c.listener.OnOrderBook(b.Snapshot())
	return nil
}

func objLevels(levels []restLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.PriceLevel{Price: l.Price, Quantity: l.Amount})
	}
	return out
}

var _ venue.Client = (*Client)(nil)
