package domain

// Balance is the ledger state for one (user, asset) pair. Available and
// Locked are fixed-point integers (1e6 scale) and are never negative.
type Balance struct {
	User      string
	Asset     string
	Available int64
	Locked    int64
}

// Total returns available + locked.
func (b Balance) Total() int64 {
	return b.Available + b.Locked
}
