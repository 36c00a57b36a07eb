// Package kucoin streams level2 updates from KuCoin. The public WebSocket
// endpoint is dynamic: every connection first POSTs /api/v1/bullet-public for
// a token + endpoint, then dials endpoint?token=...&connectId=.... The server
// expects an application-level ping frame every 20 seconds.
package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue"
)

// Depth is the per-side level limit for KuCoin books.
const Depth = 100

// PingInterval is the application-level keepalive period.
const PingInterval = 20 * time.Second

const venueID = "kucoin"

// Client implements venue.Client for KuCoin spot.
type Client struct {
	restURL  string
	symbols  []string // e.g. BTC-USDT
	books    *venue.BookSet
	stream   *venue.Stream
	listener venue.Listener
	logger   *slog.Logger
}

// New creates a KuCoin client for the given native symbols. The descriptor's
// WsURL is unused; the endpoint comes from the bullet-public bootstrap.
func New(desc domain.VenueDescriptor, nativeSymbols []string, logger *slog.Logger) *Client {
	return &Client{
		restURL:  desc.RestURL,
		symbols:  append([]string(nil), nativeSymbols...),
		books:    venue.NewBookSet(venueID, Depth),
		listener: venue.NopListener{},
		logger:   logger.With(slog.String("component", "kucoin_client")),
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
		Venue:             venueID,
		DialURL:           c.bootstrapURL,
		Prime:             c.prime,
		Subscribe:         c.subscribe,
		Handle:            c.handle,
		KeepaliveInterval: PingInterval,
		Keepalive:         sendPing,
		Listener:          c.listener,
		Logger:            c.logger,
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

// bootstrapURL performs the bullet-public handshake and builds the
// token-bearing WebSocket URL. Tokens expire, so this runs on every
// (re)connect.
func (c *Client) bootstrapURL(ctx context.Context) (string, error) {
	var resp struct {
		Code string `json:"code"`
		Data struct {
			Token           string `json:"token"`
			InstanceServers []struct {
				Endpoint string `json:"endpoint"`
			} `json:"instanceServers"`
		} `json:"data"`
	}
	if err := venue.PostJSON(ctx, c.restURL+"/api/v1/bullet-public", &resp); err != nil {
		return "", fmt.Errorf("kucoin: bullet-public: %w", err)
	}
	if resp.Code != "200000" {
		return "", fmt.Errorf("kucoin: bullet-public: unexpected code %s", resp.Code)
	}
	if resp.Data.Token == "" || len(resp.Data.InstanceServers) == 0 {
		return "", fmt.Errorf("kucoin: bullet-public: missing token or instance servers")
	}

	connectID := strconv.FormatInt(time.Now().UnixNano(), 10)
	return fmt.Sprintf("%s?token=%s&connectId=%s",
		resp.Data.InstanceServers[0].Endpoint, resp.Data.Token, connectID), nil
}

// restLevel2 is the /api/v1/market/orderbook/level2_100 data payload.
type restLevel2 struct {
	Sequence string      `json:"sequence"`
	TimeMs   int64       `json:"time"`
	Bids     [][2]string `json:"bids"`
	Asks     [][2]string `json:"asks"`
}

func (c *Client) prime(ctx context.Context) error {
	for _, sym := range c.symbols {
		var resp struct {
			Code string     `json:"code"`
			Data restLevel2 `json:"data"`
		}
		u := fmt.Sprintf("%s/api/v1/market/orderbook/level2_100?symbol=%s", c.restURL, url.QueryEscape(sym))
		if err := venue.GetJSON(ctx, u, &resp); err != nil {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		if resp.Code != "200000" {
			c.logger.Warn("snapshot priming failed",
				slog.String("symbol", sym),
				slog.String("error", "code "+resp.Code),
			)
			continue
		}

		seq, _ := strconv.ParseInt(resp.Data.Sequence, 10, 64)
		tsMs := resp.Data.TimeMs
		if tsMs == 0 {
			tsMs = time.Now().UnixMilli()
		}
		b := c.books.GetOrCreate(sym)
		if err := b.ApplySnapshot(pairsToLevels(resp.Data.Bids), pairsToLevels(resp.Data.Asks),
			tsMs, seq); err != nil {
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

type wsCommand struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic,omitempty"`
	PrivateChannel bool   `json:"privateChannel,omitempty"`
	Response       bool   `json:"response,omitempty"`
}

func (c *Client) subscribe(_ context.Context, s *venue.Stream) error {
	return s.WriteJSON(wsCommand{
		ID:       strconv.FormatInt(time.Now().UnixMilli(), 10),
		Type:     "subscribe",
		Topic:    "/market/level2:" + strings.Join(c.symbols, ","),
		Response: true,
	})
}

func sendPing(s *venue.Stream) error {
	return s.WriteJSON(wsCommand{
		ID:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Type: "ping",
	})
}

// l2Update is one trade.l2update message; change rows are
// [price, size, sequence].
type l2Update struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Data    struct {
		Symbol        string `json:"symbol"`
		SequenceStart int64  `json:"sequenceStart"`
		SequenceEnd   int64  `json:"sequenceEnd"`
		Changes       struct {
			Bids [][]string `json:"bids"`
			Asks [][]string `json:"asks"`
		} `json:"changes"`
	} `json:"data"`
}

func (c *Client) handle(msg []byte) error {
	var m l2Update
	if err := json.Unmarshal(msg, &m); err != nil {
		return fmt.Errorf("kucoin: decode frame: %w", err)
	}
	if m.Type != "message" || m.Subject != "trade.l2update" {
		return nil
	}

	b := c.books.Get(m.Data.Symbol)
	if b == nil {
		c.logger.Warn("update for unknown symbol", slog.String("symbol", m.Data.Symbol))
		return nil
	}

	err := b.ApplyDelta(changeLevels(m.Data.Changes.Bids), changeLevels(m.Data.Changes.Asks),
		time.Now().UnixMilli(), m.Data.SequenceEnd)
	switch {
	case errors.Is(err, domain.ErrStaleUpdate):
		return nil
	case errors.Is(err, domain.ErrCrossedBook):
		c.logger.Warn("crossed book update discarded", slog.String("symbol", m.Data.Symbol))
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

func changeLevels(rows [][]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		// A zero price marks a market-order change with no book level.
		if row[0] == "0" || row[0] == "" {
			continue
		}
		out = append(out, domain.PriceLevel{Price: row[0], Quantity: row[1]})
	}
	return out
}

var _ venue.Client = (*Client)(nil)
