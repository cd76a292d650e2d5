package domain

import "time"

// EpochStatus is the settlement lifecycle state. Transitions only move
// forward: pending -> committed -> settled.
type EpochStatus string

const (
	EpochStatusPending   EpochStatus = "pending"
	EpochStatusCommitted EpochStatus = "committed"
	EpochStatusSettled   EpochStatus = "settled"
)

// EpochEntry is one Merkle leaf: an address with a strictly positive net
// collateral claim (1e6 scale) for the epoch.
type EpochEntry struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// SettlementEpoch is one committed batch of trades. Entries are sorted by
// address and immutable once the Merkle root is computed.
type SettlementEpoch struct {
	ID          uint64
	MerkleRoot  string // 0x-prefixed hex
	Entries     []EpochEntry
	TradeCount  int
	Status      EpochStatus
	CommitTx    string // on-chain commit transaction hash, set when committed
	CreatedAt   time.Time
	CommittedAt *time.Time
	SettledAt   *time.Time
}

// WithdrawalProof is the inclusion proof a user presents to the escrow
// vault's claim function. It is derived from an epoch's entry list on
// demand and never stored.
type WithdrawalProof struct {
	EpochID    uint64   `json:"epochId"`
	Address    string   `json:"address"`
	Amount     int64    `json:"amount"`
	Proof      []string `json:"proof"` // sibling hashes, leaf to root, 0x hex
	MerkleRoot string   `json:"merkleRoot"`
}
