// Package domain defines the core types shared across the trading core:
// orders, trades, balances, settlement epochs, and the store/cache
// interfaces their persistence layers implement.
package domain

import (
	"math"
	"math/big"
	"time"
)

// Fixed-point scales used throughout the core. Collateral amounts and
// outcome-token sizes are integers scaled by 1e6; prices are integers
// scaled by PriceUnit so that a price of 1.0 (certainty) equals 1e18.
const (
	PriceUnit       int64 = 1_000_000_000_000_000_000
	CollateralScale int64 = 1_000_000
)

// CollateralAssetID is the ledger asset identifier for the collateral
// token. Outcome tokens are keyed by their ERC-1155 token ID string.
const CollateralAssetID = "collateral"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Uint8 returns the EIP-712 wire encoding of the side (0 = BUY, 1 = SELL).
func (s OrderSide) Uint8() uint8 {
	if s == OrderSideSell {
		return 1
	}
	return 0
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// SignatureType identifies how the order signature was produced.
type SignatureType int

const (
	SignatureTypeEOA        SignatureType = 0
	SignatureTypeProxy      SignatureType = 1
	SignatureTypeGnosisSafe SignatureType = 2
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a signed, immutable limit order. Addresses are 0x-prefixed hex
// strings; all monetary fields are fixed-point integers (1e6 scale). The
// price is never stored: it is derived from the maker/taker amount ratio.
type Order struct {
	ID            string
	Salt          *big.Int
	Maker         string // funding address
	Signer        string // address that produced the signature
	Taker         string // zero address means "any"
	MarketID      string
	TokenID       string
	Side          OrderSide
	MakerAmount   int64 // what the maker gives (BUY: collateral, SELL: outcome tokens)
	TakerAmount   int64 // what the maker wants (BUY: outcome tokens, SELL: collateral)
	Expiration    int64 // unix seconds, 0 = never
	Nonce         int64
	FeeRateBps    int64
	SignatureType SignatureType
	Signature     string // 65-byte hex EIP-712 signature
	CreatedAt     time.Time
}

// Price returns the implied limit price scaled by PriceUnit.
//
// For a BUY the maker gives makerAmount collateral for takerAmount outcome
// tokens, so price = makerAmount/takerAmount; for a SELL the ratio flips.
func (o Order) Price() int64 {
	switch o.Side {
	case OrderSideBuy:
		return MulDiv(o.MakerAmount, PriceUnit, o.TakerAmount)
	default:
		return MulDiv(o.TakerAmount, PriceUnit, o.MakerAmount)
	}
}

// Size returns the outcome-token quantity the order trades (1e6 scale).
func (o Order) Size() int64 {
	if o.Side == OrderSideBuy {
		return o.TakerAmount
	}
	return o.MakerAmount
}

// Expired reports whether the order's expiration has passed at now. An
// order is live through its expiration second and expired strictly after.
// Expiration 0 means the order never expires.
func (o Order) Expired(now time.Time) bool {
	return o.Expiration != 0 && now.Unix() > o.Expiration
}

// MulDiv computes a*b/den with a big.Int intermediate so that products
// exceeding 63 bits (price times size, fee numerators) do not overflow.
// den must be non-zero; the result is truncated toward zero. A quotient
// outside the int64 range saturates instead of wrapping, so range checks
// on the result stay sound for any wire-valid input.
func MulDiv(a, b, den int64) int64 {
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	n.Quo(n, big.NewInt(den))
	if !n.IsInt64() {
		if n.Sign() < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return n.Int64()
}
