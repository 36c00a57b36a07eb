// Package book maintains a locally reconstructed order book for one native
// symbol on one venue. All venue clients share this update engine and differ
// only in wire framing.
package book

import (
	"sort"
	"sync"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

// Book holds both sides of a depth replica. Methods are safe for concurrent
// use; in practice a single client goroutine applies updates while the
// manager and tests read snapshots.
type Book struct {
	mu       sync.Mutex
	venue    string
	symbol   string
	maxDepth int
	bids     []domain.PriceLevel // descending by price
	asks     []domain.PriceLevel // ascending by price
	tsMs     int64
	seqID    int64
	primed   bool
}

// New creates an empty book truncated to maxDepth levels per side.
func New(venue, symbol string, maxDepth int) *Book {
	return &Book{
		venue:    venue,
		symbol:   symbol,
		maxDepth: maxDepth,
	}
}

// Symbol returns the native symbol this book tracks.
func (b *Book) Symbol() string { return b.symbol }

// Primed reports whether the book has received at least one snapshot.
func (b *Book) Primed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.primed
}

// ApplySnapshot replaces both sides wholesale. Zero-quantity levels are
// dropped, sides are sorted and truncated. A snapshot that remains crossed
// after sorting is rejected with domain.ErrCrossedBook and the previous
// state is kept.
func (b *Book) ApplySnapshot(bids, asks []domain.PriceLevel, tsMs, seqID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	newBids := rebuildSide(bids, true, b.maxDepth)
	newAsks := rebuildSide(asks, false, b.maxDepth)
	if crossed(newBids, newAsks) {
		return domain.ErrCrossedBook
	}

	b.bids = newBids
	b.asks = newAsks
	b.tsMs = tsMs
	b.seqID = seqID
	b.primed = true
	return nil
}

// ApplyDelta applies an incremental update: for each incoming level the
// existing entry at that price is removed, the new entry inserted when its
// quantity parses > 0, the side re-sorted and truncated. When finalSeq > 0
// the update is dropped with domain.ErrStaleUpdate if finalSeq does not
// advance past the book's current id. A delta that leaves the book crossed
// after a recompute is discarded with domain.ErrCrossedBook.
func (b *Book) ApplyDelta(bids, asks []domain.PriceLevel, tsMs, finalSeq int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if finalSeq > 0 && finalSeq <= b.seqID {
		return domain.ErrStaleUpdate
	}

	newBids := applySide(b.bids, bids, true, b.maxDepth)
	newAsks := applySide(b.asks, asks, false, b.maxDepth)
	if crossed(newBids, newAsks) {
		// Recompute from the stored entries; the sort in applySide already
		// ran, so a cross here is persistent and the update is discarded.
		sortSide(newBids, true)
		sortSide(newAsks, false)
		if crossed(newBids, newAsks) {
			return domain.ErrCrossedBook
		}
	}

	b.bids = newBids
	b.asks = newAsks
	b.tsMs = tsMs
	if finalSeq > 0 {
		b.seqID = finalSeq
	}
	return nil
}

// UpdateTop rewrites only the best bid and best ask, leaving the primed depth
// below untouched. Venues whose public feed streams only a ticker (Coinbase)
// use this. Empty price strings leave the corresponding side unchanged; an
// empty quantity keeps the previous quantity at the top level.
func (b *Book) UpdateTop(bidPrice, bidQty, askPrice, askQty string, tsMs int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	newBids := replaceTop(b.bids, bidPrice, bidQty, true, b.maxDepth)
	newAsks := replaceTop(b.asks, askPrice, askQty, false, b.maxDepth)
	if crossed(newBids, newAsks) {
		return domain.ErrCrossedBook
	}

	b.bids = newBids
	b.asks = newAsks
	b.tsMs = tsMs
	return nil
}

// Snapshot returns a copy of the book in its wire/storage representation.
func (b *Book) Snapshot() domain.OrderBook {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := domain.OrderBook{
		Venue:       b.venue,
		Symbol:      b.symbol,
		Bids:        append([]domain.PriceLevel(nil), b.bids...),
		Asks:        append([]domain.PriceLevel(nil), b.asks...),
		TimestampMs: b.tsMs,
		SeqID:       b.seqID,
	}
	return out
}

// rebuildSide builds a fresh sorted, deduplicated, truncated side from a
// snapshot's levels.
func rebuildSide(levels []domain.PriceLevel, desc bool, maxDepth int) []domain.PriceLevel {
	seen := make(map[string]struct{}, len(levels))
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.QuantityFloat() <= 0 {
			continue
		}
		if _, dup := seen[lvl.Price]; dup {
			continue
		}
		seen[lvl.Price] = struct{}{}
		out = append(out, lvl)
	}
	sortSide(out, desc)
	return truncate(out, maxDepth)
}

// applySide applies incremental updates to a sorted side and returns the new
// side; the input slice is not mutated.
func applySide(side, updates []domain.PriceLevel, desc bool, maxDepth int) []domain.PriceLevel {
	if len(updates) == 0 {
		return side
	}

	byPrice := make(map[string]domain.PriceLevel, len(side)+len(updates))
	for _, lvl := range side {
		byPrice[lvl.Price] = lvl
	}
	for _, u := range updates {
		if u.QuantityFloat() > 0 {
			byPrice[u.Price] = u
		} else {
			delete(byPrice, u.Price)
		}
	}

	out := make([]domain.PriceLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		out = append(out, lvl)
	}
	sortSide(out, desc)
	return truncate(out, maxDepth)
}

// replaceTop swaps the best level of a side for a new price, keeping the rest
// of the primed depth. Levels that would sit ahead of the new top are dropped.
func replaceTop(side []domain.PriceLevel, price, qty string, desc bool, maxDepth int) []domain.PriceLevel {
	if price == "" {
		return side
	}
	if qty == "" {
		if len(side) > 0 {
			qty = side[0].Quantity
		} else {
			qty = "0"
		}
	}

	top := domain.PriceLevel{Price: price, Quantity: qty}
	p := top.PriceFloat()

	out := make([]domain.PriceLevel, 0, len(side)+1)
	out = append(out, top)
	for _, lvl := range side {
		lp := lvl.PriceFloat()
		if lp == p {
			continue
		}
		if desc && lp > p {
			continue
		}
		if !desc && lp < p {
			continue
		}
		out = append(out, lvl)
	}
	sortSide(out, desc)
	return truncate(out, maxDepth)
}

func sortSide(levels []domain.PriceLevel, desc bool) {
	sort.SliceStable(levels, func(i, j int) bool {
		if desc {
			return levels[i].PriceFloat() > levels[j].PriceFloat()
		}
		return levels[i].PriceFloat() < levels[j].PriceFloat()
	})
}

func truncate(levels []domain.PriceLevel, maxDepth int) []domain.PriceLevel {
	if maxDepth > 0 && len(levels) > maxDepth {
		return levels[:maxDepth]
	}
	return levels
}

func crossed(bids, asks []domain.PriceLevel) bool {
	if len(bids) == 0 || len(asks) == 0 {
		return false
	}
	return bids[0].PriceFloat() >= asks[0].PriceFloat()
}
