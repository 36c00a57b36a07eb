// Package venue defines the client capability set every exchange adapter
// implements, plus the small pieces they compose: the reconnect backoff, a
// guarded book set, and a shared REST fetch helper. The per-venue packages
// under venue/ differ only in wire framing.
package venue

import (
	"context"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

// Client is one venue's streaming market-data client. Connect primes REST
// snapshots, opens the public WebSocket, and keeps the local books current
// until Disconnect or reconnect exhaustion.
type Client interface {
	// Connect primes snapshots and starts the stream. It returns once the
	// initial connection attempt settles; reconnects happen in background.
	Connect(ctx context.Context) error
	// Disconnect stops the stream and clears the local books. Idempotent.
	Disconnect() error
	Venue() string
	SubscribedSymbols() []string
	// LocalBooks returns copies of every primed book.
	LocalBooks() []domain.OrderBook
	// SetListener installs the event listener; must be called before Connect.
	SetListener(l Listener)
}

// Listener receives client events. The dynamic manager is the only listener
// in the monitor; there is no global event bus.
type Listener interface {
	OnConnected(venueID string)
	OnOrderBook(book domain.OrderBook)
	OnError(venueID string, err error)
	OnDisconnected(venueID string)
}

// NopListener discards all events. Clients fall back to it so event emission
// never needs a nil check.
type NopListener struct{}

func (NopListener) OnConnected(string)           {}
func (NopListener) OnOrderBook(domain.OrderBook) {}
func (NopListener) OnError(string, error)        {}
func (NopListener) OnDisconnected(string)        {}

var _ Listener = NopListener{}
