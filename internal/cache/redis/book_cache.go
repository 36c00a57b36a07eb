package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jonathan-Vandenberg/arbot/internal/domain"
)

// BookTTL bounds how long a cached book stays readable after its last write,
// so a silently dead client cannot serve stale data to direct readers.
const BookTTL = 10 * time.Second

// BookCache implements domain.BookCache with one JSON value per
// (venue, native symbol) under a short TTL.
//
// Key schema: orderbook:<venue>:<native-symbol>
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying(), ttl: BookTTL}
}

func bookKey(venue, symbol string) string {
	return "orderbook:" + venue + ":" + symbol
}

// Set serializes the book and writes it with the cache TTL.
func (bc *BookCache) Set(ctx context.Context, book domain.OrderBook) error {
	payload, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s:%s: %w", book.Venue, book.Symbol, err)
	}
	key := bookKey(book.Venue, book.Symbol)
	if err := bc.rdb.Set(ctx, key, payload, bc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Get reads a cached book; expired or absent entries return
// domain.ErrNotFound.
func (bc *BookCache) Get(ctx context.Context, venue, nativeSymbol string) (domain.OrderBook, error) {
	key := bookKey(venue, nativeSymbol)
	payload, err := bc.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var book domain.OrderBook
	if err := json.Unmarshal(payload, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return book, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
