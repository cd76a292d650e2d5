package domain

import "time"

// MatchType classifies how a fill sources its outcome tokens.
type MatchType string

const (
	// MatchTypeComplementary is a plain BUY-vs-SELL transfer of existing
	// outcome tokens.
	MatchTypeComplementary MatchType = "COMPLEMENTARY"
	// MatchTypeMint pairs two fully-collateralizing BUY orders that
	// synthesize a complete outcome set.
	MatchTypeMint MatchType = "MINT"
	// MatchTypeMerge pairs two SELL orders that redeem a complete outcome
	// set back into collateral.
	MatchTypeMerge MatchType = "MERGE"
)

// Trade is the immutable record of one match. Amount is the outcome-token
// quantity (1e6 scale), Price the execution price (PriceUnit scale, always
// the resting order's price), Fee the collateral fee charged to the taker
// (1e6 scale).
type Trade struct {
	ID           string
	MarketID     string
	TokenID      string
	Maker        string
	Taker        string
	MakerOrderID string
	TakerOrderID string
	TakerSide    OrderSide
	Amount       int64
	Price        int64
	MatchType    MatchType
	Fee          int64
	Timestamp    time.Time
}

// CollateralValue returns the collateral notional of the trade at its
// execution price (1e6 scale).
func (t Trade) CollateralValue() int64 {
	return MulDiv(t.Price, t.Amount, PriceUnit)
}
