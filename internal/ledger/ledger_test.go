package ledger

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

const (
	alice = "0xAAA0000000000000000000000000000000000001"
	bob   = "0xBBB0000000000000000000000000000000000002"
)

func TestLockRequiresAvailable(t *testing.T) {
	l := New()
	l.Credit(alice, domain.CollateralAssetID, 1_000_000)

	if err := l.Lock(alice, domain.CollateralAssetID, 1_500_000); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
	// Failed lock must not mutate state.
	b := l.Balance(alice, domain.CollateralAssetID)
	if b.Available != 1_000_000 || b.Locked != 0 {
		t.Fatalf("balance mutated by failed lock: %+v", b)
	}

	if err := l.Lock(alice, domain.CollateralAssetID, 600_000); err != nil {
		t.Fatalf("lock: %v", err)
	}
	b = l.Balance(alice, domain.CollateralAssetID)
	if b.Available != 400_000 || b.Locked != 600_000 {
		t.Fatalf("unexpected balance after lock: %+v", b)
	}
}

func TestUnlockIsCallerError(t *testing.T) {
	l := New()
	l.Credit(alice, domain.CollateralAssetID, 500_000)
	if err := l.Unlock(alice, domain.CollateralAssetID, 100_000); err == nil {
		t.Fatal("expected error unlocking more than locked")
	}
	code, ok := domain.CodeOf(l.Unlock(alice, domain.CollateralAssetID, 1))
	if !ok || code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", code)
	}
}

// Zero and negative amounts are caller bugs, not no-ops: a zero lock
// would let an order rest backed by nothing, a negative transfer would
// reverse the flow's direction.
func TestNonPositiveAmountsRejected(t *testing.T) {
	l := New()
	l.Credit(alice, domain.CollateralAssetID, 1_000_000)

	for _, amount := range []int64{0, -1, -500_000} {
		if code, ok := domain.CodeOf(l.Lock(alice, domain.CollateralAssetID, amount)); !ok || code != domain.CodeValidation {
			t.Errorf("Lock(%d): expected VALIDATION_ERROR", amount)
		}
		if code, ok := domain.CodeOf(l.Unlock(alice, domain.CollateralAssetID, amount)); !ok || code != domain.CodeValidation {
			t.Errorf("Unlock(%d): expected VALIDATION_ERROR", amount)
		}
		if code, ok := domain.CodeOf(l.Transfer(alice, bob, domain.CollateralAssetID, amount, false)); !ok || code != domain.CodeValidation {
			t.Errorf("Transfer(%d): expected VALIDATION_ERROR", amount)
		}
	}

	a := l.Balance(alice, domain.CollateralAssetID)
	b := l.Balance(bob, domain.CollateralAssetID)
	if a.Available != 1_000_000 || a.Locked != 0 || b.Available != 0 {
		t.Fatalf("rejected ops mutated state: alice=%+v bob=%+v", a, b)
	}
}

func TestTransferFromLockedConsumesLock(t *testing.T) {
	l := New()
	l.Credit(alice, domain.CollateralAssetID, 1_000_000)
	if err := l.Lock(alice, domain.CollateralAssetID, 800_000); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := l.Transfer(alice, bob, domain.CollateralAssetID, 550_000, true); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	a := l.Balance(alice, domain.CollateralAssetID)
	b := l.Balance(bob, domain.CollateralAssetID)
	if a.Available != 200_000 || a.Locked != 250_000 {
		t.Fatalf("unexpected sender balance: %+v", a)
	}
	if b.Available != 550_000 || b.Locked != 0 {
		t.Fatalf("unexpected receiver balance: %+v", b)
	}
	// Conservation: total value unchanged.
	if a.Total()+b.Total() != 1_000_000 {
		t.Fatalf("value not conserved: %d", a.Total()+b.Total())
	}
}

func TestTransferFromAvailable(t *testing.T) {
	l := New()
	l.Credit(alice, "tok1", 300_000)
	if err := l.Transfer(alice, bob, "tok1", 400_000, false); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected INSUFFICIENT_BALANCE, got %v", err)
	}
	if err := l.Transfer(alice, bob, "tok1", 300_000, false); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.Balance(bob, "tok1").Available; got != 300_000 {
		t.Fatalf("receiver available = %d", got)
	}
}

func TestAddressCaseInsensitive(t *testing.T) {
	l := New()
	l.Credit("0xABCDEF0000000000000000000000000000000001", domain.CollateralAssetID, 100)
	if got := l.Balance("0xabcdef0000000000000000000000000000000001", domain.CollateralAssetID).Available; got != 100 {
		t.Fatalf("case-folded lookup got %d", got)
	}
}

func TestNonceIncrement(t *testing.T) {
	l := New()
	if l.Nonce(alice) != 0 {
		t.Fatal("fresh nonce should be 0")
	}
	if n := l.IncrementNonce(alice); n != 1 {
		t.Fatalf("IncrementNonce = %d", n)
	}
	if l.Nonce(alice) != 1 || l.Nonce(bob) != 0 {
		t.Fatal("nonces must be per-user")
	}
}
