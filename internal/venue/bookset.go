package venue

import (
	"sync"

	"github.com/Jonathan-Vandenberg/arbot/internal/book"
	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

// BookSet is the per-client collection of local books keyed by native symbol.
type BookSet struct {
	mu    sync.RWMutex
	venue string
	depth int
	books map[string]*book.Book
}

// NewBookSet creates an empty set for a venue with the given per-side depth.
func NewBookSet(venue string, depth int) *BookSet {
	return &BookSet{
		venue: venue,
		depth: depth,
		books: make(map[string]*book.Book),
	}
}

// Get returns the book for a native symbol, or nil when the symbol is not
// tracked (e.g. priming failed for it).
func (s *BookSet) Get(symbol string) *book.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[symbol]
}

// GetOrCreate returns the book for a native symbol, creating it on first use.
func (s *BookSet) GetOrCreate(symbol string) *book.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[symbol]
	if !ok {
		b = book.New(s.venue, symbol, s.depth)
		s.books[symbol] = b
	}
	return b
}

// Snapshots returns copies of all primed books.
func (s *BookSet) Snapshots() []domain.OrderBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OrderBook, 0, len(s.books))
	for _, b := range s.books {
		if b.Primed() {
			out = append(out, b.Snapshot())
		}
	}
	return out
}

// Clear drops every book; called on disconnect.
func (s *BookSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = make(map[string]*book.Book)
}
