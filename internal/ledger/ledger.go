// Package ledger holds the authoritative balance and nonce state per
// (user, asset) pair. It is the only component allowed to create, lock,
// unlock, or transfer value internally; it never interprets why a
// mutation happens.
package ledger

import (
	"strings"
	"sync"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

type balanceKey struct {
	user  string
	asset string
}

// Ledger is an in-memory balance and nonce table. One mutex serializes
// every mutation, which also serializes access per (user, asset) pair for
// users whose orders rest in multiple markets.
type Ledger struct {
	mu       sync.Mutex
	balances map[balanceKey]*domain.Balance
	nonces   map[string]int64
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]*domain.Balance),
		nonces:   make(map[string]int64),
	}
}

// normalize lowercases an address so mixed-case hex inputs hit the same
// ledger entry.
func normalize(addr string) string {
	return strings.ToLower(addr)
}

func (l *Ledger) entry(user, asset string) *domain.Balance {
	k := balanceKey{user: normalize(user), asset: asset}
	b, ok := l.balances[k]
	if !ok {
		b = &domain.Balance{User: k.user, Asset: asset}
		l.balances[k] = b
	}
	return b
}

// Credit increases the user's available balance. Used for confirmed
// deposits reported by the chain indexer.
func (l *Ledger) Credit(user, asset string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry(user, asset).Available += amount
}

// Lock moves amount from available to locked. It fails with
// INSUFFICIENT_BALANCE when available < amount and mutates nothing.
// A non-positive amount is rejected: every lock must be backed by real
// value, so a zero lock is always a caller bug upstream.
func (l *Ledger) Lock(user, asset string, amount int64) error {
	if amount <= 0 {
		return domain.Errf(domain.CodeValidation,
			"lock %d %s for %s: amount must be positive", amount, asset, user)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.entry(user, asset)
	if b.Available < amount {
		return domain.Errf(domain.CodeInsufficientBalance,
			"lock %d %s for %s: available %d", amount, asset, user, b.Available)
	}
	b.Available -= amount
	b.Locked += amount
	return nil
}

// Unlock moves amount from locked back to available. A locked balance
// smaller than amount is a caller error, never a user error.
func (l *Ledger) Unlock(user, asset string, amount int64) error {
	if amount <= 0 {
		return domain.Errf(domain.CodeValidation,
			"unlock %d %s for %s: amount must be positive", amount, asset, user)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.entry(user, asset)
	if b.Locked < amount {
		return domain.Errf(domain.CodeValidation,
			"unlock %d %s for %s: locked %d", amount, asset, user, b.Locked)
	}
	b.Locked -= amount
	b.Available += amount
	return nil
}

// Transfer moves amount between users. When fromLocked is true the source
// funds come out of the sender's locked bucket (consuming a prior lock),
// otherwise out of available. Destination funds always land in available.
func (l *Ledger) Transfer(from, to, asset string, amount int64, fromLocked bool) error {
	if amount <= 0 {
		return domain.Errf(domain.CodeValidation,
			"transfer %d %s from %s: amount must be positive", amount, asset, from)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.entry(from, asset)
	if fromLocked {
		if src.Locked < amount {
			return domain.Errf(domain.CodeInsufficientBalance,
				"transfer %d %s from %s: locked %d", amount, asset, from, src.Locked)
		}
		src.Locked -= amount
	} else {
		if src.Available < amount {
			return domain.Errf(domain.CodeInsufficientBalance,
				"transfer %d %s from %s: available %d", amount, asset, from, src.Available)
		}
		src.Available -= amount
	}
	l.entry(to, asset).Available += amount
	return nil
}

// HasSufficientBalance reports whether the user's available balance covers
// amount. Read-only pre-validation; the authoritative check is Lock.
func (l *Ledger) HasSufficientBalance(user, asset string, amount int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(user, asset).Available >= amount
}

// Balance returns a copy of the user's balance for an asset.
func (l *Ledger) Balance(user, asset string) domain.Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.entry(user, asset)
}

// Nonce returns the user's current replay-protection counter.
func (l *Ledger) Nonce(user string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[normalize(user)]
}

// IncrementNonce bumps the user's nonce, invalidating every order signed
// against the previous value. This is the mass-cancel primitive.
func (l *Ledger) IncrementNonce(user string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := normalize(user)
	l.nonces[u]++
	return l.nonces[u]
}
