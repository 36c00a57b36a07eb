// Package bybit streams orderbook.50 topics from Bybit's v5 public spot
// WebSocket. The first message per topic is a full snapshot, subsequent ones
// are deltas.
package bybit

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

// Depth is the orderbook topic depth and per-side level limit.
const Depth = 50

const venueID = "bybit"

// Client implements venue.Client for Bybit spot.
type Client struct {
	wsURL    string
	restURL  string
	symbols  []string // e.g. BTCUSDT
	books    *venue.BookSet
	stream   *venue.Stream
	listener venue.Listener
	logger   *slog.Logger
}

// New creates a Bybit client for the given native symbols.
func New(desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) *Client {
	return &Client{
		wsURL:    desc.WsURL,
		restURL:  desc.RestURL,
		symbols:  append([]string(nil), nativeSymbols...),
		books:    venue.NewBookSet(venueID, Depth),
		listener: venue.NopListener{},
		logger:   logger.With(slog.String("component", "bybit_client")),
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

// restOrderbook is the /v5/market/orderbook result payload.
type restOrderbook struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	TsMs   int64       `json:"ts"`
}

func (c *Client) prime(ctx context.Context) error {
	for _, sym := range c.symbols {
		var resp struct {
			RetCode int           `json:"retCode"`
			RetMsg  string        `json:"retMsg"`
			Result  restOrderbook `json:"result"`
		}
		u := fmt.Sprintf("%s/v5/market/orderbook?category=spot&symbol=%s&limit=%d",
			c.restURL, url.QueryEscape(sym), Depth)
		if err := venue.GetJSON(ctx, u, &resp); err != nil {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		if resp.RetCode != 0 {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", resp.RetMsg),
			)
			continue
		}

		tsMs := resp.Result.TsMs
		if tsMs == 0 {
			tsMs = time.Now().UnixMilli()
		}
		b := c.books.GetOrCreate(sym)
		if err := b.ApplySnapshot(pairsToLevels(resp.Result.Bids), pairsToLevels(resp.Result.Asks),
			tsMs, 0); err != nil {
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

type subscribeFrame struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func (c *Client) subscribe(_ context.Context, s *venue.Stream) error {
	args := make([]string, 0, len(c.symbols))
	for _, sym := range c.symbols {
		args = append(args, fmt.Sprintf("orderbook.%d.%s", Depth, sym))
	}
	return s.WriteJSON(subscribeFrame{Op: "subscribe", Args: args})
}

// bookMsg is one orderbook topic message.
type bookMsg struct {
	Topic string `json:"topic"`
	Type  string `json:"type"` // "snapshot" or "delta"
	TsMs  int64  `json:"ts"`
	Data  struct {
		Symbol string      `json:"s"`
		Bids   [][2]string `json:"b"`
		Asks   [][2]string `json:"a"`
		Update int64       `json:"u"`
	} `json:"data"`
}

func (c *Client) handle(msg []byte) error {
	var m bookMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return fmt.Errorf("bybit: decode frame: %w", err)
	}
	if !strings.HasPrefix(m.Topic, "orderbook.") {
		return nil
	}

	b := c.books.Get(m.Data.Symbol)
	if b == nil {
		c.logger.Warn("update for unknown symbol", slog.String("symbol", m.Data.Symbol))
		return nil
	}

	tsMs := m.TsMs
	if tsMs == 0 {
		tsMs = time.Now().UnixMilli()
	}

	var err error
	switch m.Type {
	case "snapshot":
		err = b.ApplySnapshot(pairsToLevels(m.Data.Bids), pairsToLevels(m.Data.Asks), tsMs, 0)
	case "delta":
		err = b.ApplyDelta(pairsToLevels(m.Data.Bids), pairsToLevels(m.Data.Asks), tsMs, 0)
	default:
		return nil
	}

	if errors.Is(err, domain.ErrCrossedBook) {
		c.logger.Warn("crossed book update discarded", slog.String("symbol", m.Data.Symbol))
		return nil
	}
	if err != nil {
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

var _ venue.Client = (*Client)(nil)
