package coinbase

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue"
)

type recorder struct {
	mu    sync.Mutex
	books []domain.OrderBook
}

func (r *recorder) OnConnected(string)    {}
func (r *recorder) OnError(string, error) {}
func (r *recorder) OnDisconnected(string) {}

func (r *recorder) OnOrderBook(b domain.OrderBook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books = append(r.books, b)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.books)
}

func (r *recorder) last() (domain.OrderBook, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.books) == 0 {
		return domain.OrderBook{}, false
	}
	return r.books[len(r.books)-1], true
}

var _ venue.Listener = (*recorder)(nil)

func newTestClient(t *testing.T, symbols ...string) (*Client, *recorder) {
	t.Helper()
	c := New(domain.VenueDescriptor{
		ID:      "coinbase",
		WsURL:   "wss://ws-feed.exchange.coinbase.com",
		RestURL: "https://api.exchange.coinbase.com",
	}, symbols, slog.Default())
	rec := &recorder{}
	c.SetListener(rec)
	return c, rec
}

func primeBook(t *testing.T, c *Client, sym string) {
	t.Helper()
	b := c.books.GetOrCreate(sym)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{{Price: "50000", Quantity: "1"}, {Price: "49990", Quantity: "2"}},
		[]domain.PriceLevel{{Price: "50010", Quantity: "1"}, {Price: "50020", Quantity: "2"}},
		1, 0,
	))
}

func TestHandleTickerUpdatesTopOfBook(t *testing.T) {
	c, rec := newTestClient(t, "BTC-USD")
	primeBook(t, c, "BTC-USD")

	frame := []byte(`{"type":"ticker","product_id":"BTC-USD",` +
		`"best_bid":"50005","best_bid_size":"0.7",` +
		`"best_ask":"50008","best_ask_size":"0.4",` +
		`"time":"2023-11-14T22:13:20.123456Z"}`)
	require.NoError(t, c.handle(frame))

	book, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, domain.PriceLevel{Price: "50005", Quantity: "0.7"}, book.Bids[0])
	assert.Equal(t, domain.PriceLevel{Price: "50008", Quantity: "0.4"}, book.Asks[0])

	// Primed depth below the top survives the ticker.
	assert.Contains(t, book.Bids, domain.PriceLevel{Price: "49990", Quantity: "2"})
	assert.Contains(t, book.Asks, domain.PriceLevel{Price: "50020", Quantity: "2"})
}

func TestHandleTickerParsesTime(t *testing.T) {
	c, rec := newTestClient(t, "BTC-USD")
	primeBook(t, c, "BTC-USD")

	frame := []byte(`{"type":"ticker","product_id":"BTC-USD",` +
		`"best_bid":"50005","best_ask":"50008","time":"2023-11-14T22:13:20Z"}`)
	require.NoError(t, c.handle(frame))

	book, _ := rec.last()
	assert.Equal(t, int64(1700000000000), book.TimestampMs)
}

func TestHandleIgnoresNonTicker(t *testing.T) {
	c, rec := newTestClient(t, "BTC-USD")
	primeBook(t, c, "BTC-USD")

	require.NoError(t, c.handle([]byte(`{"type":"subscriptions","channels":[]}`)))
	assert.Equal(t, 0, rec.count())
}

func TestHandleUnknownProductIgnored(t *testing.T) {
	c, rec := newTestClient(t, "BTC-USD")
	primeBook(t, c, "BTC-USD")

	frame := []byte(`{"type":"ticker","product_id":"ETH-USD","best_bid":"1","best_ask":"2"}`)
	require.NoError(t, c.handle(frame))
	assert.Equal(t, 0, rec.count())
}

func TestHandleCrossedTickerDiscarded(t *testing.T) {
	c, rec := newTestClient(t, "BTC-USD")
	primeBook(t, c, "BTC-USD")

	// Best bid above best ask is discarded with the book untouched.
	frame := []byte(`{"type":"ticker","product_id":"BTC-USD",` +
		`"best_bid":"50100","best_bid_size":"1","best_ask":"50008","best_ask_size":"1"}`)
	require.NoError(t, c.handle(frame))

	assert.Equal(t, 0, rec.count())
	books := c.LocalBooks()
	require.Len(t, books, 1)
	assert.Equal(t, "50000", books[0].Bids[0].Price)
}
