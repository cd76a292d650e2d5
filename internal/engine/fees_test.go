package engine

import (
	"testing"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

func TestFeeSymmetry(t *testing.T) {
	// min(p, 1-p) makes the fee identical on both sides of the market.
	amount := size(10)
	at40 := Fee(200, price(40), amount)
	at60 := Fee(200, price(60), amount)
	if at40 != at60 {
		t.Fatalf("fee not symmetric: %d vs %d", at40, at60)
	}
}

func TestFeeValues(t *testing.T) {
	cases := []struct {
		name   string
		bps    int64
		price  int64
		amount int64
		want   int64
	}{
		// 2% of 0.45 * 10 units = 0.09 collateral units.
		{"two_percent", 200, price(55), size(10), 90_000},
		{"zero_bps", 0, price(55), size(10), 0},
		{"midpoint", 100, price(50), size(100), 500_000},
		{"extreme_price", 100, price(99), size(100), 10_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fee(tc.bps, tc.price, tc.amount); got != tc.want {
				t.Errorf("Fee(%d, %d, %d) = %d, want %d", tc.bps, tc.price, tc.amount, got, tc.want)
			}
		})
	}
}

func TestDetectMatchType(t *testing.T) {
	buy := func(p int64) domain.Order { return buyOrder(alice, p, size(10)) }
	sell := func(p int64) domain.Order { return sellOrder(bob, p, size(10)) }

	cases := []struct {
		name         string
		taker, maker domain.Order
		want         domain.MatchType
	}{
		{"buy_vs_sell", buy(price(60)), sell(price(55)), domain.MatchTypeComplementary},
		{"sell_vs_buy", sell(price(50)), buy(price(55)), domain.MatchTypeComplementary},
		{"two_buys_collateralized", buy(price(60)), buy(price(45)), domain.MatchTypeMint},
		{"two_buys_exactly_one", buy(price(55)), buy(price(45)), domain.MatchTypeMint},
		{"two_buys_undercollateralized", buy(price(40)), buy(price(45)), domain.MatchTypeComplementary},
		{"two_sells_redeemable", sell(price(40)), sell(price(45)), domain.MatchTypeMerge},
		{"two_sells_over_one", sell(price(60)), sell(price(55)), domain.MatchTypeComplementary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectMatchType(tc.taker, tc.maker); got != tc.want {
				t.Errorf("DetectMatchType = %s, want %s", got, tc.want)
			}
		})
	}
}
