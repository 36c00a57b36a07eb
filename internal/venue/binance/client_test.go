package binance

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
	"github.com/Jonathan-Vandenberg/arbot/internal/venue"
)

// recorder captures listener events for assertions.
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
		ID:      "binance",
		WsURL:   "wss://stream.binance.com:9443/ws",
		RestURL: "https://api.binance.com",
	}, symbols, slog.Default())
	rec := &recorder{}
	c.SetListener(rec)
	return c, rec
}

func seed(t *testing.T, c *Client, sym string, seq int64) {
	t.Helper()
	b := c.books.GetOrCreate(sym)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{{Price: "100", Quantity: "1"}},
		[]domain.PriceLevel{{Price: "101", Quantity: "1"}},
		1, seq,
	))
}

func TestStreamURLLowercasesSymbols(t *testing.T) {
	c, _ := newTestClient(t, "BTCUSDT", "ETHUSDT")
	assert.Equal(t,
		"wss://stream.binance.com:9443/ws/btcusdt@depth/ethusdt@depth",
		c.streamURL(),
	)
}

func TestHandleDepthUpdate(t *testing.T) {
	c, rec := newTestClient(t, "BTCUSDT")
	seed(t, c, "BTCUSDT", 10)

	frame := []byte(`{"e":"depthUpdate","E":1700000000123,"s":"BTCUSDT","U":11,"u":12,` +
		`"b":[["100.5","2"]],"a":[["101","0"]]}`)
	require.NoError(t, c.handle(frame))

	book, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "binance", book.Venue)
	assert.Equal(t, "BTCUSDT", book.Symbol)
	assert.Equal(t, int64(12), book.SeqID)
	assert.Equal(t, int64(1700000000123), book.TimestampMs)
	assert.Equal(t, []domain.PriceLevel{{Price: "100.5", Quantity: "2"}, {Price: "100", Quantity: "1"}}, book.Bids)
	assert.Empty(t, book.Asks) // the only ask was removed
}

func TestHandleSkipsStaleSequence(t *testing.T) {
	c, rec := newTestClient(t, "BTCUSDT")
	seed(t, c, "BTCUSDT", 10)

	frame := []byte(`{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":9,"u":10,"b":[["100.5","2"]],"a":[]}`)
	require.NoError(t, c.handle(frame))

	_, emitted := rec.last()
	assert.False(t, emitted)

	books := c.LocalBooks()
	require.Len(t, books, 1)
	assert.Equal(t, int64(10), books[0].SeqID)
}

func TestHandleIgnoresUnknownSymbol(t *testing.T) {
	c, rec := newTestClient(t, "BTCUSDT")
	seed(t, c, "BTCUSDT", 10)

	frame := []byte(`{"e":"depthUpdate","E":1,"s":"DOGEUSDT","U":1,"u":2,"b":[["1","1"]],"a":[]}`)
	require.NoError(t, c.handle(frame))

	_, emitted := rec.last()
	assert.False(t, emitted)
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	c, rec := newTestClient(t, "BTCUSDT")
	seed(t, c, "BTCUSDT", 10)

	require.NoError(t, c.handle([]byte(`{"e":"aggTrade","s":"BTCUSDT"}`)))
	_, emitted := rec.last()
	assert.False(t, emitted)
}

func TestHandleMalformedFrame(t *testing.T) {
	c, _ := newTestClient(t, "BTCUSDT")
	assert.Error(t, c.handle([]byte(`{not json`)))
}
