// Package kraken streams book updates from Kraken's v1 WebSocket. All pairs
// share a single socket with a "book" subscription at depth 100; inbound data
// frames are JSON arrays rather than tagged objects.
package kraken

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

// Depth is the subscription depth and per-side level limit.
const Depth = 100

const venueID = "kraken"

// Client implements venue.Client for Kraken spot.
type Client struct {
	wsURL    string
	restURL  string
	symbols  []string // ws pair names, e.g. XBT/USD
	books    *venue.BookSet
	stream   *venue.Stream
	listener venue.Listener
	logger   *slog.Logger
}

// New creates a Kraken client for the given pair names.
func New(desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) *Client {
	return &Client{
		wsURL:    desc.WsURL,
		restURL:  desc.RestURL,
		symbols:  append([]string(nil), nativeSymbols...),
		books:    venue.NewBookSet(venueID, Depth),
		listener: venue.NopListener{},
		logger:   logger.With(slog.String("component", "kraken_client")),
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

// depthResult is one pair's entry in the REST Depth result map; rows are
// [price, volume, timestamp].
type depthResult struct {
	Bids [][]json.RawMessage `json:"bids"`
	Asks [][]json.RawMessage `json:"asks"`
}

func (c *Client) prime(ctx context.Context) error {
	for _, sym := range c.symbols {
		pairParam := strings.ReplaceAll(sym, "/", "")
		u := fmt.Sprintf("%s/0/public/Depth?pair=%s&count=%d", c.restURL, url.QueryEscape(pairParam), Depth)

		var resp struct {
			Error  []string               `json:"error"`
			Result map[string]depthResult `json:"result"`
		}
		if err := venue.GetJSON(ctx, u, &resp); err != nil {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(resp.Error) > 0 {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", strings.Join(resp.Error, "; ")),
			)
			continue
		}

		// The result key differs from the request spelling (XXBTZUSD); take
		// the single entry.
		var depth depthResult
		for _, v := range resp.Result {
			depth = v
			break
		}

		b := c.books.GetOrCreate(sym)
		if err := b.ApplySnapshot(rowLevels(depth.Bids), rowLevels(depth.Asks),
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

type subscribeFrame struct {
	Event        string       `json:"event"`
	Pair         []string     `json:"pair"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
}

func (c *Client) subscribe(_ context.Context, s *venue.Stream) error {
	return s.WriteJSON(subscribeFrame{
		Event:        "subscribe",
		Pair:         c.symbols,
		Subscription: subscription{Name: "book", Depth: Depth},
	})
}

// bookPayload is the object portion of an inbound array frame. Snapshots use
// bs/as, incremental updates b/a.
type bookPayload struct {
	Bids     [][]json.RawMessage `json:"b"`
	Asks     [][]json.RawMessage `json:"a"`
	BidsSnap [][]json.RawMessage `json:"bs"`
	AsksSnap [][]json.RawMessage `json:"as"`
}

func (c *Client) handle(msg []byte) error {
	// Object frames are events (systemStatus, heartbeat, subscriptionStatus);
	// only array frames carry book data.
	if len(msg) == 0 || msg[0] != '[' {
		return nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		return fmt.Errorf("kraken: decode frame: %w", err)
	}
	if len(frame) < 4 {
		return nil
	}

	var pair string
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return fmt.Errorf("kraken: decode pair: %w", err)
	}

	b := c.books.Get(pair)
	if b == nil {
		c.logger.Warn("update for unknown symbol", slog.String("symbol", pair))
		return nil
	}

	tsMs := time.Now().UnixMilli()

	// A frame may carry one or two payload objects (separate a/b updates).
	for _, raw := range frame[1 : len(frame)-2] {
		var payload bookPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}

		var err error
		if len(payload.BidsSnap) > 0 || len(payload.AsksSnap) > 0 {
			err = b.ApplySnapshot(rowLevels(payload.BidsSnap), rowLevels(payload.AsksSnap), tsMs, 0)
		} else if len(payload.Bids) > 0 || len(payload.Asks) > 0 {
			err = b.ApplyDelta(rowLevels(payload.Bids), rowLevels(payload.Asks), tsMs, 0)
		} else {
			continue
		}

		if errors.Is(err, domain.ErrCrossedBook) {
			c.logger.Warn("crossed book update discarded", slog.String("symbol", pair))
			continue
		}
		if err != nil {
			return err
		}
		c.listener.OnOrderBook(b.Snapshot())
	}
	return nil
}

// rowLevels converts [price, volume, timestamp, ...] rows to price levels.
func rowLevels(rows [][]json.RawMessage) []domain.PriceLevel {
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
