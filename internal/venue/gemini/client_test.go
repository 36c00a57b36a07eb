package gemini

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
		ID:      "gemini",
		WsURL:   "wss://api.gemini.com",
		RestURL: "https://api.gemini.com",
	}, symbols, slog.Default())
	rec := &recorder{}
	c.SetListener(rec)
	return c, rec
}

func TestHandleInitialUpdateBuildsBook(t *testing.T) {
	c, rec := newTestClient(t, "btcusd")

	frame := []byte(`{"type":"update","eventId":1,"timestampms":1700000000123,"events":[` +
		`{"type":"change","side":"bid","price":"50000","remaining":"1","reason":"initial"},` +
		`{"type":"change","side":"ask","price":"50001","remaining":"2","reason":"initial"}]}`)
	require.NoError(t, c.handleSymbol("btcusd", frame))

	book, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "gemini", book.Venue)
	assert.Equal(t, "btcusd", book.Symbol)
	assert.Equal(t, []domain.PriceLevel{{Price: "50000", Quantity: "1"}}, book.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: "50001", Quantity: "2"}}, book.Asks)
	assert.Equal(t, int64(1700000000123), book.TimestampMs)
}

func TestHandleChangeUpdatesLevel(t *testing.T) {
	c, rec := newTestClient(t, "btcusd")
	b := c.books.GetOrCreate("btcusd")
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{{Price: "50000", Quantity: "1"}},
		[]domain.PriceLevel{{Price: "50001", Quantity: "1"}},
		1, 0,
	))

	frame := []byte(`{"type":"update","eventId":2,"timestampms":1700000001000,"events":[` +
		`{"type":"change","side":"bid","price":"50000","remaining":"0","reason":"cancel"}]}`)
	require.NoError(t, c.handleSymbol("btcusd", frame))

	book, ok := rec.last()
	require.True(t, ok)
	assert.Empty(t, book.Bids)
	assert.Len(t, book.Asks, 1)
}

func TestHandleIgnoresTradeEvents(t *testing.T) {
	c, rec := newTestClient(t, "btcusd")
	c.books.GetOrCreate("btcusd")

	frame := []byte(`{"type":"update","eventId":3,"events":[` +
		`{"type":"trade","price":"50000","amount":"0.1","makerSide":"bid"}]}`)
	require.NoError(t, c.handleSymbol("btcusd", frame))
	assert.Equal(t, 0, rec.count())
}

func TestHandleHeartbeatIgnored(t *testing.T) {
	c, rec := newTestClient(t, "btcusd")
	require.NoError(t, c.handleSymbol("btcusd", []byte(`{"type":"heartbeat","socket_sequence":5}`)))
	assert.Equal(t, 0, rec.count())
}
