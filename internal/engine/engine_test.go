package engine

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/ledger"
)

const (
	alice = "0xaaa0000000000000000000000000000000000001"
	bob   = "0xbbb0000000000000000000000000000000000002"
	carol = "0xccc0000000000000000000000000000000000003"

	mkt = "mkt-1"
	tok = "77000000000000000000000000000000000000000000000000000000000000000000000001"

	unit = domain.PriceUnit
	usdc = int64(1_000_000) // one collateral unit
)

// nopVerifier accepts every signature; engine tests exercise matching, not
// recovery (covered in package crypto). Its digest covers the same fields
// as the wire type hash, which deliberately excludes the market ID.
type nopVerifier struct{}

func (nopVerifier) VerifyOrder(domain.Order) error { return nil }

func (nopVerifier) HashOrder(o domain.Order) ([]byte, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d|%d|%d|%d|%d|%d",
		o.Maker, o.Signer, o.Taker, o.TokenID,
		o.MakerAmount, o.TakerAmount, o.Expiration, o.Nonce, o.FeeRateBps, o.Side.Uint8())))
	return sum[:], nil
}

// rejectVerifier fails every order with INVALID_SIGNATURE.
type rejectVerifier struct{ nopVerifier }

func (rejectVerifier) VerifyOrder(o domain.Order) error {
	return domain.Errf(domain.CodeInvalidSignature, "order %s: bad signature", o.ID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	e := New(nopVerifier{}, l, testLogger(), Config{})
	return e, l
}

// price is a 1e18-scaled price from hundredths (55 -> 0.55). The unit is
// divided first: hundredths*unit would overflow int64 from 10 upward.
func price(hundredths int64) int64 {
	return hundredths * (unit / 100)
}

// size is a 1e6-scaled outcome-token quantity from whole units.
func size(units int64) int64 {
	return units * 1_000_000
}

func buyOrder(maker string, p, sz int64) domain.Order {
	return domain.Order{
		Maker:       maker,
		Signer:      maker,
		MarketID:    mkt,
		TokenID:     tok,
		Side:        domain.OrderSideBuy,
		MakerAmount: domain.MulDiv(p, sz, unit),
		TakerAmount: sz,
	}
}

func sellOrder(maker string, p, sz int64) domain.Order {
	return domain.Order{
		Maker:       maker,
		Signer:      maker,
		MarketID:    mkt,
		TokenID:     tok,
		Side:        domain.OrderSideSell,
		MakerAmount: sz,
		TakerAmount: domain.MulDiv(p, sz, unit),
	}
}

func fund(l *ledger.Ledger, user string, collateral, tokens int64) {
	if collateral > 0 {
		l.Credit(user, domain.CollateralAssetID, collateral)
	}
	if tokens > 0 {
		l.Credit(user, tok, tokens)
	}
}

// TestCrossingPair walks the example scenario: Bob rests a SELL of 10
// units at 0.55, Alice crosses with a BUY of 10 at 0.60. One trade of 10
// at 0.55, Alice pays 5.5, Bob receives 5.5, book empty after.
func TestCrossingPair(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))

	res, err := e.AddOrder(sellOrder(bob, price(55), size(10)))
	if err != nil {
		t.Fatalf("rest sell: %v", err)
	}
	if res.Status != domain.OrderStatusOpen || len(res.Trades) != 0 {
		t.Fatalf("sell should rest unmatched, got %+v", res)
	}

	res, err = e.AddOrder(buyOrder(alice, price(60), size(10)))
	if err != nil {
		t.Fatalf("crossing buy: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Price != price(55) {
		t.Errorf("trade price = %d, want maker price %d", tr.Price, price(55))
	}
	if tr.Amount != size(10) {
		t.Errorf("trade amount = %d, want %d", tr.Amount, size(10))
	}
	if tr.Maker != bob || tr.Taker != alice {
		t.Errorf("maker/taker = %s/%s", tr.Maker, tr.Taker)
	}
	if tr.MatchType != domain.MatchTypeComplementary {
		t.Errorf("match type = %s", tr.MatchType)
	}

	// Alice paid 5.5 at the maker's price, not 6.0 at her own limit.
	ab := l.Balance(alice, domain.CollateralAssetID)
	if ab.Available != 100*usdc-5_500_000 || ab.Locked != 0 {
		t.Errorf("alice collateral = %+v", ab)
	}
	if got := l.Balance(alice, tok).Available; got != size(10) {
		t.Errorf("alice tokens = %d", got)
	}
	bb := l.Balance(bob, domain.CollateralAssetID)
	if bb.Available != 5_500_000 {
		t.Errorf("bob collateral = %+v", bb)
	}
	if bt := l.Balance(bob, tok); bt.Available != size(90) || bt.Locked != 0 {
		t.Errorf("bob tokens = %+v", bt)
	}

	depth := e.Book(mkt, tok, 10)
	if len(depth.Bids) != 0 || len(depth.Asks) != 0 {
		t.Errorf("book not empty: %+v", depth)
	}
}

func TestPriceTimePriority(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 1000*usdc, 0)
	fund(l, bob, 0, size(100))
	fund(l, carol, 0, size(100))

	// Bob and Carol both rest at 0.50; Bob first. A third ask rests at a
	// better price and must fill before either.
	if _, err := e.AddOrder(sellOrder(bob, price(50), size(5))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(sellOrder(carol, price(50), size(5))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(sellOrder(carol, price(45), size(5))); err != nil {
		t.Fatal(err)
	}

	res, err := e.AddOrder(buyOrder(alice, price(60), size(12)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(res.Trades))
	}
	// Best price first.
	if res.Trades[0].Price != price(45) || res.Trades[0].Maker != carol {
		t.Errorf("trade 0 = %+v", res.Trades[0])
	}
	// Then time priority at 0.50: Bob before Carol.
	if res.Trades[1].Maker != bob || res.Trades[1].Price != price(50) {
		t.Errorf("trade 1 = %+v", res.Trades[1])
	}
	if res.Trades[2].Maker != carol || res.Trades[2].Amount != size(2) {
		t.Errorf("trade 2 = %+v", res.Trades[2])
	}
}

func TestPartialFillRests(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))

	if _, err := e.AddOrder(sellOrder(bob, price(55), size(4))); err != nil {
		t.Fatal(err)
	}
	res, err := e.AddOrder(buyOrder(alice, price(60), size(10)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.OrderStatusOpen {
		t.Fatalf("expected residual to rest, got %s", res.Status)
	}
	if res.Remaining != size(6) {
		t.Fatalf("remaining = %d", res.Remaining)
	}

	depth := e.Book(mkt, tok, 10)
	if len(depth.Bids) != 1 || depth.Bids[0].Price != price(60) || depth.Bids[0].Size != size(6) {
		t.Fatalf("residual bid missing: %+v", depth.Bids)
	}

	// Residual lock: 6 units at Alice's own limit price.
	ab := l.Balance(alice, domain.CollateralAssetID)
	if ab.Locked != domain.MulDiv(price(60), size(6), unit) {
		t.Errorf("alice locked = %d", ab.Locked)
	}
}

func TestNonCrossingEarlyExit(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))

	if _, err := e.AddOrder(sellOrder(bob, price(70), size(10))); err != nil {
		t.Fatal(err)
	}
	res, err := e.AddOrder(buyOrder(alice, price(60), size(10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 || res.Status != domain.OrderStatusOpen {
		t.Fatalf("orders should not cross: %+v", res)
	}
}

func TestInsufficientBalanceAborts(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 1*usdc, 0)

	_, err := e.AddOrder(buyOrder(alice, price(60), size(10)))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
	if depth := e.Book(mkt, tok, 10); len(depth.Bids) != 0 {
		t.Fatal("failed order must not touch the book")
	}
	b := l.Balance(alice, domain.CollateralAssetID)
	if b.Available != 1*usdc || b.Locked != 0 {
		t.Fatalf("ledger mutated by rejected order: %+v", b)
	}
}

func TestInvalidNonceRejected(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	l.IncrementNonce(alice)

	o := buyOrder(alice, price(60), size(10)) // nonce 0, ledger nonce 1
	_, err := e.AddOrder(o)
	if !errors.Is(err, domain.ErrInvalidNonce) {
		t.Fatalf("expected INVALID_NONCE, got %v", err)
	}

	o.Nonce = 1
	if _, err := e.AddOrder(o); err != nil {
		t.Fatalf("matching nonce rejected: %v", err)
	}
}

func TestExpiredOrderRejected(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)

	o := buyOrder(alice, price(60), size(10))
	o.Expiration = time.Now().Add(-time.Minute).Unix()
	_, err := e.AddOrder(o)
	if !errors.Is(err, domain.ErrOrderExpired) {
		t.Fatalf("expected ORDER_EXPIRED, got %v", err)
	}
}

func TestInvalidSignatureRejected(t *testing.T) {
	l := ledger.New()
	e := New(rejectVerifier{}, l, testLogger(), Config{})
	fund(l, alice, 100*usdc, 0)

	_, err := e.AddOrder(buyOrder(alice, price(60), size(10)))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected INVALID_SIGNATURE, got %v", err)
	}
}

func TestExpiredRestingOrderEvictedBeforeFill(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))
	fund(l, carol, 0, size(100))

	now := time.Now()
	e.now = func() time.Time { return now }

	stale := sellOrder(bob, price(50), size(10))
	stale.Expiration = now.Add(time.Minute).Unix()
	if _, err := e.AddOrder(stale); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(sellOrder(carol, price(55), size(10))); err != nil {
		t.Fatal(err)
	}

	// Advance past the resting order's expiry; the match must skip it and
	// fill against Carol, returning Bob's token lock.
	e.now = func() time.Time { return now.Add(2 * time.Minute) }

	res, err := e.AddOrder(buyOrder(alice, price(60), size(10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Maker != carol || res.Trades[0].Price != price(55) {
		t.Fatalf("expected fill against carol at 0.55: %+v", res.Trades)
	}
	if bt := l.Balance(bob, tok); bt.Locked != 0 || bt.Available != size(100) {
		t.Fatalf("bob's expired lock not returned: %+v", bt)
	}
}

func TestCancelOrder(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)

	res, err := e.AddOrder(buyOrder(alice, price(60), size(10)))
	if err != nil {
		t.Fatal(err)
	}

	// Only the maker may cancel.
	ok, err := e.CancelOrder(res.OrderID, bob)
	if err != nil || ok {
		t.Fatalf("non-maker cancel: ok=%v err=%v", ok, err)
	}

	ok, err = e.CancelOrder(res.OrderID, alice)
	if err != nil || !ok {
		t.Fatalf("maker cancel: ok=%v err=%v", ok, err)
	}
	b := l.Balance(alice, domain.CollateralAssetID)
	if b.Locked != 0 || b.Available != 100*usdc {
		t.Fatalf("cancel did not return the exact lock: %+v", b)
	}

	// Double-cancel finds nothing.
	ok, err = e.CancelOrder(res.OrderID, alice)
	if err != nil || ok {
		t.Fatalf("double cancel: ok=%v err=%v", ok, err)
	}
}

func TestCancelAllBumpsNonceAndSweeps(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))

	if _, err := e.AddOrder(buyOrder(alice, price(40), size(10))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(buyOrder(alice, price(45), size(10))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(sellOrder(bob, price(80), size(5))); err != nil {
		t.Fatal(err)
	}

	nonce, removed := e.CancelAll(alice)
	if nonce != 1 || removed != 2 {
		t.Fatalf("nonce=%d removed=%d", nonce, removed)
	}
	if b := l.Balance(alice, domain.CollateralAssetID); b.Locked != 0 {
		t.Fatalf("locks not swept: %+v", b)
	}
	// Bob's order untouched.
	if depth := e.Book(mkt, tok, 10); len(depth.Asks) != 1 || len(depth.Bids) != 0 {
		t.Fatalf("unexpected book: %+v", depth)
	}
	// Old-nonce orders are now invalid.
	_, err := e.AddOrder(buyOrder(alice, price(40), size(1)))
	if !errors.Is(err, domain.ErrInvalidNonce) {
		t.Fatalf("expected INVALID_NONCE after mass cancel, got %v", err)
	}
}

func TestTakerSellFee(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))

	// Alice rests a BUY at 0.55, Bob crosses with a fee-bearing SELL.
	if _, err := e.AddOrder(buyOrder(alice, price(55), size(10))); err != nil {
		t.Fatal(err)
	}
	o := sellOrder(bob, price(50), size(10))
	o.FeeRateBps = 200 // 2%
	res, err := e.AddOrder(o)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Price != price(55) {
		t.Errorf("maker-price execution violated: %d", tr.Price)
	}

	wantFee := Fee(200, price(55), size(10))
	if tr.Fee != wantFee {
		t.Errorf("fee = %d, want %d", tr.Fee, wantFee)
	}
	// Seller receives cost minus fee.
	cost := domain.MulDiv(price(55), size(10), unit)
	if got := l.Balance(bob, domain.CollateralAssetID).Available; got != cost-wantFee {
		t.Errorf("bob proceeds = %d, want %d", got, cost-wantFee)
	}
	if got := l.Balance("fee-pool", domain.CollateralAssetID).Available; got != wantFee {
		t.Errorf("fee pool = %d, want %d", got, wantFee)
	}
}

// TestConservation runs a burst of deposits, orders, fills, and cancels
// and checks that collateral is conserved: Σ available + Σ locked across
// all accounts (fee pool included) never changes except through credits.
func TestConservation(t *testing.T) {
	e, l := newTestEngine(t)
	users := []string{alice, bob, carol}
	fund(l, alice, 1000*usdc, 0)
	fund(l, bob, 500*usdc, size(200))
	fund(l, carol, 250*usdc, size(100))
	const totalCollateral = int64(1750) * 1_000_000

	sum := func() int64 {
		var s int64
		for _, u := range append([]string{"fee-pool"}, users...) {
			b := l.Balance(u, domain.CollateralAssetID)
			s += b.Available + b.Locked
		}
		return s
	}

	orders := []domain.Order{
		sellOrder(bob, price(52), size(30)),
		sellOrder(carol, price(55), size(20)),
		buyOrder(alice, price(57), size(40)),
		buyOrder(alice, price(48), size(10)),
		sellOrder(bob, price(47), size(25)),
	}
	for i, o := range orders {
		o.FeeRateBps = 100
		if _, err := e.AddOrder(o); err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
		if got := sum(); got != totalCollateral {
			t.Fatalf("after order %d: Σcollateral = %d, want %d", i, got, totalCollateral)
		}
	}

	e.CancelAll(alice)
	e.CancelAll(bob)
	if got := sum(); got != totalCollateral {
		t.Fatalf("after cancels: Σcollateral = %d, want %d", got, totalCollateral)
	}
}

// TestFailedCancelKeepsTimePriority guards against a rejected cancel
// disturbing the victim's queue position: Bob and Carol rest at the same
// price, a stranger's cancel of Bob's order fails, and a crossing buy must
// still fill Bob first.
func TestFailedCancelKeepsTimePriority(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))
	fund(l, carol, 0, size(100))

	res, err := e.AddOrder(sellOrder(bob, price(50), size(5)))
	if err != nil {
		t.Fatal(err)
	}
	bobID := res.OrderID
	if _, err := e.AddOrder(sellOrder(carol, price(50), size(5))); err != nil {
		t.Fatal(err)
	}

	ok, err := e.CancelOrder(bobID, "0x9999000000000000000000000000000000000009")
	if err != nil || ok {
		t.Fatalf("stranger cancel: ok=%v err=%v", ok, err)
	}

	got, err := e.AddOrder(buyOrder(alice, price(60), size(5)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Trades) != 1 || got.Trades[0].Maker != bob {
		t.Fatalf("first fill went to %s, want %s", got.Trades[0].Maker, bob)
	}
}

// TestCancelAllKeepsOthersTimePriority: a mass cancel by one maker must not
// reorder the equal-priced entries it leaves behind.
func TestCancelAllKeepsOthersTimePriority(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))
	fund(l, carol, 0, size(100))

	if _, err := e.AddOrder(sellOrder(bob, price(50), size(5))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(sellOrder(carol, price(50), size(5))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(buyOrder(alice, price(40), size(5))); err != nil {
		t.Fatal(err)
	}

	if _, removed := e.CancelAll(alice); removed != 1 {
		t.Fatalf("removed = %d", removed)
	}

	cross := buyOrder(alice, price(60), size(5))
	cross.Nonce = 1 // CancelAll bumped it
	got, err := e.AddOrder(cross)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Trades) != 1 || got.Trades[0].Maker != bob {
		t.Fatalf("first fill went to %s, want %s", got.Trades[0].Maker, bob)
	}
}

// TestFeeRateOutOfRangeRejected: a fee rate outside [0, 10000] bps must be
// rejected before any lock or fill. A negative rate would pay the taker
// out of thin air; above 100% the fill's collateral flow goes negative.
func TestFeeRateOutOfRangeRejected(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))

	if _, err := e.AddOrder(sellOrder(bob, price(50), size(10))); err != nil {
		t.Fatal(err)
	}

	for _, bps := range []int64{-1, -100_000, 10_001} {
		o := buyOrder(alice, price(60), size(10))
		o.FeeRateBps = bps
		_, err := e.AddOrder(o)
		if code, ok := domain.CodeOf(err); !ok || code != domain.CodeValidation {
			t.Fatalf("bps=%d: expected VALIDATION_ERROR, got %v", bps, err)
		}
	}

	// Nothing moved: Alice holds no tokens, Bob's order still rests fully
	// backed by its lock.
	if got := l.Balance(alice, tok).Available; got != 0 {
		t.Fatalf("alice tokens = %d after rejected orders", got)
	}
	if bt := l.Balance(bob, tok); bt.Locked != size(10) {
		t.Fatalf("bob lock = %+v", bt)
	}

	// The cap itself is fine: 10000 bps fills with the whole cost as fee.
	o := buyOrder(alice, price(50), size(10))
	o.FeeRateBps = 10_000
	res, err := e.AddOrder(o)
	if err != nil || len(res.Trades) != 1 {
		t.Fatalf("max-bps fill: res=%+v err=%v", res, err)
	}
}

// TestPrivateOrderFillsNamedTakerOnly: a resting order with a non-zero
// taker is skipped by everyone except that counterparty.
func TestPrivateOrderFillsNamedTakerOnly(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))
	fund(l, carol, 100*usdc, 0)

	private := sellOrder(bob, price(50), size(10))
	private.Taker = alice
	if _, err := e.AddOrder(private); err != nil {
		t.Fatal(err)
	}

	// Carol crosses but is not the named taker: no fill, her bid rests.
	res, err := e.AddOrder(buyOrder(carol, price(60), size(10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 || res.Status != domain.OrderStatusOpen {
		t.Fatalf("private order filled a stranger: %+v", res)
	}

	res, err = e.AddOrder(buyOrder(alice, price(60), size(10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Maker != bob {
		t.Fatalf("named taker did not fill: %+v", res)
	}
}

// TestOversizedAmountsRejected: amounts whose implied price exceeds the
// fixed-point range must not slip through as a resting order backed by a
// wrapped (or zero) lock.
func TestOversizedAmountsRejected(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 1, 0)

	o := domain.Order{
		Maker:       alice,
		Signer:      alice,
		MarketID:    mkt,
		TokenID:     tok,
		Side:        domain.OrderSideBuy,
		MakerAmount: 1 << 62,
		TakerAmount: 10,
	}
	_, err := e.AddOrder(o)
	if code, ok := domain.CodeOf(err); !ok || code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if depth := e.Book(mkt, tok, 10); len(depth.Bids) != 0 {
		t.Fatal("oversized order rested")
	}
	if b := l.Balance(alice, domain.CollateralAssetID); b.Available != 1 || b.Locked != 0 {
		t.Fatalf("ledger mutated: %+v", b)
	}
}

// TestDuplicateOrderRejected: an order's digest is its identity — the same
// signed order cannot be submitted twice, not even into a different
// market's book.
func TestDuplicateOrderRejected(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)

	o := buyOrder(alice, price(40), size(10))
	first, err := e.AddOrder(o)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.AddOrder(o)
	if code, ok := domain.CodeOf(err); !ok || code != domain.CodeValidation {
		t.Fatalf("replay: expected VALIDATION_ERROR, got %v", err)
	}

	// The market ID is outside the signed payload, so changing it does not
	// change the identity.
	cross := o
	cross.MarketID = "mkt-2"
	if _, err := e.AddOrder(cross); err == nil {
		t.Fatal("cross-market replay accepted")
	}

	// Still rejected after the original is gone from the book.
	if ok, err := e.CancelOrder(first.OrderID, alice); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	if _, err := e.AddOrder(o); err == nil {
		t.Fatal("replay of a cancelled order accepted")
	}
}

// TestRejectedOrderMayBeResubmitted: an order that never locked funds is
// not a replay — once the maker is funded, the same order goes through.
func TestRejectedOrderMayBeResubmitted(t *testing.T) {
	e, l := newTestEngine(t)

	o := buyOrder(alice, price(40), size(10))
	if _, err := e.AddOrder(o); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}

	fund(l, alice, 100*usdc, 0)
	if _, err := e.AddOrder(o); err != nil {
		t.Fatalf("funded resubmission rejected: %v", err)
	}
}

func TestTradeCallbackFires(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, alice, 100*usdc, 0)
	fund(l, bob, 0, size(100))

	var seen []domain.Trade
	e.OnTrade(func(tr domain.Trade) { seen = append(seen, tr) })

	if _, err := e.AddOrder(sellOrder(bob, price(55), size(10))); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddOrder(buyOrder(alice, price(60), size(10))); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0].Amount != size(10) {
		t.Fatalf("trade callback saw %+v", seen)
	}
}
