// Package domain contains the core types shared across the arbitrage
// monitor: order books, venue metadata, runtime configuration, detected
// opportunities, and the store/cache/bus interfaces the adapters implement.
package domain

import "strconv"

// PriceLevel is a single price+quantity entry in an order book. Both values
// are carried as the exact decimal strings the venue sent; they are parsed to
// float64 only at comparison and output time. A quantity of "0" on the wire
// means "remove this level".
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// PriceFloat returns the price parsed as float64, or 0 if unparseable.
func (l PriceLevel) PriceFloat() float64 {
	f, _ := strconv.ParseFloat(l.Price, 64)
	return f
}

// QuantityFloat returns the quantity parsed as float64, or 0 if unparseable.
func (l PriceLevel) QuantityFloat() float64 {
	f, _ := strconv.ParseFloat(l.Quantity, 64)
	return f
}

// OrderBook is the locally reconstructed depth for one native symbol on one
// venue. Bids are strictly descending by price, asks strictly ascending, each
// side truncated to the venue's depth limit. TimestampMs is the time of the
// last applied update in UTC milliseconds. SeqID is non-zero only for venues
// that expose a monotonic update id.
type OrderBook struct {
	Venue       string       `json:"venue"`
	Symbol      string       `json:"symbol"`
	Bids        []PriceLevel `json:"bids"`
	Asks        []PriceLevel `json:"asks"`
	TimestampMs int64        `json:"timestampMs"`
	SeqID       int64        `json:"seqId,omitempty"`
}

// BestBid returns the highest bid, if any.
func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}
