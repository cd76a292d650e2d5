package domain

import (
	"math"
	"testing"
	"time"
)

func TestMulDiv(t *testing.T) {
	// 0.55 * 10 units: the product needs the big.Int intermediate.
	if got := MulDiv(550_000_000_000_000_000, 10_000_000, PriceUnit); got != 5_500_000 {
		t.Fatalf("MulDiv = %d, want 5500000", got)
	}
	if got := MulDiv(7, 3, 2); got != 10 {
		t.Fatalf("truncation: got %d, want 10", got)
	}
}

func TestMulDivSaturatesInsteadOfWrapping(t *testing.T) {
	// 2^62 * 1e18 / 10 is far outside int64; the result must pin to the
	// range edge, never wrap into a plausible-looking value.
	if got := MulDiv(1<<62, PriceUnit, 10); got != math.MaxInt64 {
		t.Fatalf("positive overflow = %d, want MaxInt64", got)
	}
	if got := MulDiv(-(1 << 62), PriceUnit, 10); got != math.MinInt64 {
		t.Fatalf("negative overflow = %d, want MinInt64", got)
	}
}

func TestExpiredBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	o := Order{Expiration: now.Unix()}
	if o.Expired(now) {
		t.Fatal("order must be live through its expiration second")
	}
	if !o.Expired(now.Add(time.Second)) {
		t.Fatal("order must be expired strictly after its expiration second")
	}

	if (Order{}).Expired(now) {
		t.Fatal("zero expiration means never expires")
	}
}
