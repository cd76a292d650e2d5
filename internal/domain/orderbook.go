package domain

import "time"

// BookLevel is one aggregated price level of a market's order book.
// Size is the summed remaining quantity at that price (1e6 scale).
type BookLevel struct {
	Price  int64 `json:"price"`
	Size   int64 `json:"size"`
	Orders int   `json:"orders"`
}

// BookDepth is a depth-limited snapshot of one market's bids and asks,
// bids best (highest) first, asks best (lowest) first.
type BookDepth struct {
	MarketID  string      `json:"marketId"`
	TokenID   string      `json:"tokenId"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}
