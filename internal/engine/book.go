// Package engine implements the per-market central limit order books and
// the price-time priority matching loop that drives every ledger mutation.
package engine

import (
	"sort"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// Entry wraps a resting order with its mutable remaining quantity. An
// entry is exclusively owned by the book it rests in; once removed it is
// discarded, never reused.
type Entry struct {
	Order     domain.Order
	Price     int64 // derived limit price, cached at insertion
	Remaining int64 // outcome tokens still open (1e6 scale)
	// LockedRemaining is the exact ledger lock still held for this entry:
	// collateral for a BUY, outcome tokens for a SELL. Tracking it here
	// keeps cancels and dust unlocks exact under fixed-point truncation.
	LockedRemaining int64
	Timestamp       time.Time
}

// lockAsset returns the ledger asset the entry's lock is held in.
func (e *Entry) lockAsset() string {
	if e.Order.Side == domain.OrderSideBuy {
		return domain.CollateralAssetID
	}
	return e.Order.TokenID
}

// book holds one market's two price-ordered queues. Bids are sorted by
// descending price, asks ascending, both with ascending timestamp
// tie-break, so index 0 is always the best resting order.
type book struct {
	bids []*Entry
	asks []*Entry
}

// insert places e at the position preserving price-time order.
func (b *book) insert(e *Entry) {
	if e.Order.Side == domain.OrderSideBuy {
		i := sort.Search(len(b.bids), func(i int) bool {
			return b.bids[i].Price < e.Price
		})
		b.bids = append(b.bids, nil)
		copy(b.bids[i+1:], b.bids[i:])
		b.bids[i] = e
		return
	}
	i := sort.Search(len(b.asks), func(i int) bool {
		return b.asks[i].Price > e.Price
	})
	b.asks = append(b.asks, nil)
	copy(b.asks[i+1:], b.asks[i:])
	b.asks[i] = e
}

// opposite returns the queue an incoming order on side matches against.
func (b *book) opposite(side domain.OrderSide) []*Entry {
	if side == domain.OrderSideBuy {
		return b.asks
	}
	return b.bids
}

// find returns the resting entry with the given order ID without removing
// it. Cancels peek first so a rejected request leaves the entry's queue
// position untouched.
func (b *book) find(orderID string) (*Entry, bool) {
	for _, e := range b.bids {
		if e.Order.ID == orderID {
			return e, true
		}
	}
	for _, e := range b.asks {
		if e.Order.ID == orderID {
			return e, true
		}
	}
	return nil, false
}

// remove deletes the entry with the given order ID from either queue and
// returns it. The second return value is false if no such entry rests in
// this book.
func (b *book) remove(orderID string) (*Entry, bool) {
	for i, e := range b.bids {
		if e.Order.ID == orderID {
			b.bids = append(b.bids[:i], b.bids[i+1:]...)
			return e, true
		}
	}
	for i, e := range b.asks {
		if e.Order.ID == orderID {
			b.asks = append(b.asks[:i], b.asks[i+1:]...)
			return e, true
		}
	}
	return nil, false
}

// depth aggregates each side into at most maxLevels price levels.
func (b *book) depth(maxLevels int) ([]domain.BookLevel, []domain.BookLevel) {
	return aggregate(b.bids, maxLevels), aggregate(b.asks, maxLevels)
}

func aggregate(entries []*Entry, maxLevels int) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, maxLevels)
	for _, e := range entries {
		if n := len(levels); n > 0 && levels[n-1].Price == e.Price {
			levels[n-1].Size += e.Remaining
			levels[n-1].Orders++
			continue
		}
		if len(levels) == maxLevels {
			break
		}
		levels = append(levels, domain.BookLevel{Price: e.Price, Size: e.Remaining, Orders: 1})
	}
	return levels
}
