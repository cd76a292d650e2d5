package engine

import (
	"math/big"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// maxFeeRateBps caps the taker fee rate at 100%. Anything outside
// [0, maxFeeRateBps] is rejected at order admission: a negative rate would
// turn the fee into a payout and break the fill's ledger flow.
const maxFeeRateBps = 10_000

// Fee computes the taker fee in collateral units (1e6 scale):
//
//	fee = feeRateBps * min(price, 1-price) * amount / (10000 * PriceUnit)
//
// Using min(price, 1-price) keeps fees symmetric across the two sides of a
// binary-outcome market. Intermediates use big.Int; the bps numerator
// alone can exceed 63 bits.
func Fee(feeRateBps, price, amount int64) int64 {
	base := price
	if inv := domain.PriceUnit - price; inv < base {
		base = inv
	}
	if base < 0 {
		base = 0
	}

	n := new(big.Int).Mul(big.NewInt(feeRateBps), big.NewInt(base))
	n.Mul(n, big.NewInt(amount))
	n.Quo(n, new(big.Int).Mul(big.NewInt(10_000), big.NewInt(domain.PriceUnit)))
	return n.Int64()
}

// DetectMatchType classifies a match between the taker and maker orders.
// The classification is informational metadata on the resulting trade and
// never changes the fill arithmetic.
//
// A BUY against a SELL transfers existing outcome tokens (COMPLEMENTARY).
// Two BUY orders whose prices sum to at least one full unit collateralize
// a complete outcome set (MINT); two SELL orders whose prices sum to at
// most one unit redeem one (MERGE).
func DetectMatchType(taker, maker domain.Order) domain.MatchType {
	if taker.Side != maker.Side {
		return domain.MatchTypeComplementary
	}
	sum := taker.Price() + maker.Price()
	switch taker.Side {
	case domain.OrderSideBuy:
		if sum >= domain.PriceUnit {
			return domain.MatchTypeMint
		}
	case domain.OrderSideSell:
		if sum <= domain.PriceUnit {
			return domain.MatchTypeMerge
		}
	}
	return domain.MatchTypeComplementary
}
