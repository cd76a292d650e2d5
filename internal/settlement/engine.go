package settlement

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// VaultClient is the slice of the on-chain escrow vault this engine
// needs: committing an epoch root and checking claim state. Implemented
// by chain.VaultClient.
type VaultClient interface {
	CommitRoot(ctx context.Context, epochID uint64, root [32]byte) (txHash string, err error)
	HasClaimed(ctx context.Context, user string, epochID uint64) (bool, error)
}

// Options carries the optional collaborators. Every field may be nil: the
// engine then runs purely in memory, which is how the tests drive it.
type Options struct {
	Store    domain.EpochStore
	Archiver domain.BlobWriter
	Vault    VaultClient
	// ArchivePrefix is the blob key prefix for settled-epoch archives.
	ArchivePrefix string
}

// Engine converts the accumulated trade log into auditable, on-chain
// verifiable epoch commitments.
type Engine struct {
	logger *slog.Logger
	opts   Options
	now    func() time.Time

	mu      sync.Mutex
	pending []domain.Trade
	epochs  map[uint64]*domain.SettlementEpoch
	order   []uint64 // epoch IDs in creation order
	lastID  uint64
}

// New creates a settlement Engine.
func New(logger *slog.Logger, opts Options) *Engine {
	return &Engine{
		logger: logger.With(slog.String("component", "settlement")),
		opts:   opts,
		now:    time.Now,
		epochs: make(map[uint64]*domain.SettlementEpoch),
	}
}

// Restore loads the persisted epoch history so epoch IDs keep increasing
// across restarts. No-op without a store.
func (e *Engine) Restore(ctx context.Context) error {
	if e.opts.Store == nil {
		return nil
	}
	epochs, err := e.opts.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("settlement: restore epochs: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range epochs {
		ep := epochs[i]
		e.epochs[ep.ID] = &ep
		e.order = append(e.order, ep.ID)
		if ep.ID > e.lastID {
			e.lastID = ep.ID
		}
	}
	sort.Slice(e.order, func(i, j int) bool { return e.order[i] < e.order[j] })
	return nil
}

// Record appends an executed trade to the pending list. Wired as an
// engine trade callback, so every fill lands here exactly once.
func (e *Engine) Record(t domain.Trade) {
	e.mu.Lock()
	e.pending = append(e.pending, t)
	e.mu.Unlock()
}

// PendingCount returns the number of trades awaiting the next batch.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// CreateBatch drains the pending trade list into a new epoch: trades are
// folded into net per-participant collateral deltas, participants with a
// strictly positive net claim become sorted Merkle leaves, and the epoch
// is persisted with status pending. Concurrent fills accumulate into the
// next epoch; the drain and the root computation are one atomic step.
//
// An empty pending list is a caller error reported as ErrNoPendingTrades.
func (e *Engine) CreateBatch(ctx context.Context) (domain.SettlementEpoch, error) {
	e.mu.Lock()

	if len(e.pending) == 0 {
		e.mu.Unlock()
		return domain.SettlementEpoch{}, domain.ErrNoPendingTrades
	}
	trades := e.pending
	e.pending = nil

	entries := netEntries(trades)
	leaves := make([][]byte, len(entries))
	for i, en := range entries {
		leaves[i] = leafHash(en)
	}

	e.lastID++
	epoch := domain.SettlementEpoch{
		ID:         e.lastID,
		MerkleRoot: hexHash(merkleRoot(leaves)),
		Entries:    entries,
		TradeCount: len(trades),
		Status:     domain.EpochStatusPending,
		CreatedAt:  e.now(),
	}
	e.epochs[epoch.ID] = &epoch
	e.order = append(e.order, epoch.ID)
	e.mu.Unlock()

	if e.opts.Store != nil {
		if err := e.opts.Store.Create(ctx, epoch); err != nil {
			e.logger.ErrorContext(ctx, "persist epoch failed",
				slog.Uint64("epoch_id", epoch.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "epoch created",
		slog.Uint64("epoch_id", epoch.ID),
		slog.Int("trades", epoch.TradeCount),
		slog.Int("entries", len(epoch.Entries)),
		slog.String("merkle_root", epoch.MerkleRoot),
	)
	return epoch, nil
}

// netEntries folds trades into net per-participant deltas. The buyer of
// each fill owes its collateral value; the seller is owed that value
// minus the fee. Only strictly positive nets become leaves, one per
// address, sorted by address so leaf order is deterministic.
func netEntries(trades []domain.Trade) []domain.EpochEntry {
	deltas := make(map[string]int64)
	for _, t := range trades {
		buyer, seller := t.Taker, t.Maker
		if t.TakerSide == domain.OrderSideSell {
			buyer, seller = t.Maker, t.Taker
		}
		cost := t.CollateralValue()
		deltas[strings.ToLower(buyer)] -= cost
		deltas[strings.ToLower(seller)] += cost - t.Fee
	}

	entries := make([]domain.EpochEntry, 0, len(deltas))
	for addr, amount := range deltas {
		if amount > 0 {
			entries = append(entries, domain.EpochEntry{Address: addr, Amount: amount})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })
	return entries
}

// Epochs lists all epochs in increasing ID order.
func (e *Engine) Epochs() []domain.SettlementEpoch {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.SettlementEpoch, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.epochs[id])
	}
	return out
}

// Epoch returns one epoch by ID.
func (e *Engine) Epoch(id uint64) (domain.SettlementEpoch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ep, ok := e.epochs[id]
	if !ok {
		return domain.SettlementEpoch{}, domain.Errf(domain.CodeNotFound, "epoch %d not found", id)
	}
	return *ep, nil
}

// Proof derives the withdrawal proof for an address in an epoch. It is a
// pure function of the epoch's entry list: re-deriving the proof for the
// same (epoch, address) always returns byte-identical output. Addresses
// without a positive net claim have no proof.
func (e *Engine) Proof(epochID uint64, address string) (domain.WithdrawalProof, error) {
	e.mu.Lock()
	ep, ok := e.epochs[epochID]
	e.mu.Unlock()
	if !ok {
		return domain.WithdrawalProof{}, domain.Errf(domain.CodeNotFound, "epoch %d not found", epochID)
	}

	addr := strings.ToLower(address)
	index := -1
	for i, en := range ep.Entries {
		if en.Address == addr {
			index = i
			break
		}
	}
	if index < 0 {
		return domain.WithdrawalProof{}, domain.Errf(domain.CodeNotFound,
			"no proof found for %s in epoch %d", address, epochID)
	}

	leaves := make([][]byte, len(ep.Entries))
	for i, en := range ep.Entries {
		leaves[i] = leafHash(en)
	}
	path := merkleProof(leaves, index)
	proof := make([]string, len(path))
	for i, h := range path {
		proof[i] = hexHash(h)
	}

	return domain.WithdrawalProof{
		EpochID:    epochID,
		Address:    addr,
		Amount:     ep.Entries[index].Amount,
		Proof:      proof,
		MerkleRoot: ep.MerkleRoot,
	}, nil
}

// CommitEpoch submits the epoch's root to the escrow vault and advances
// the status from pending to committed. Status only moves forward; a
// second commit of the same epoch is rejected.
func (e *Engine) CommitEpoch(ctx context.Context, id uint64) (domain.SettlementEpoch, error) {
	e.mu.Lock()
	ep, ok := e.epochs[id]
	if !ok {
		e.mu.Unlock()
		return domain.SettlementEpoch{}, domain.Errf(domain.CodeNotFound, "epoch %d not found", id)
	}
	if ep.Status != domain.EpochStatusPending {
		e.mu.Unlock()
		return domain.SettlementEpoch{}, domain.Errf(domain.CodeValidation,
			"epoch %d is %s, not pending", id, ep.Status)
	}
	root := ep.MerkleRoot
	e.mu.Unlock()

	var txHash string
	if e.opts.Vault != nil {
		var root32 [32]byte
		raw, err := hex.DecodeString(strings.TrimPrefix(root, "0x"))
		if err != nil || len(raw) != 32 {
			return domain.SettlementEpoch{}, fmt.Errorf("settlement: epoch %d root malformed: %v", id, err)
		}
		copy(root32[:], raw)

		txHash, err = e.opts.Vault.CommitRoot(ctx, id, root32)
		if err != nil {
			return domain.SettlementEpoch{}, fmt.Errorf("settlement: commit epoch %d: %w", id, err)
		}
	}

	now := e.now()
	e.mu.Lock()
	ep.Status = domain.EpochStatusCommitted
	ep.CommitTx = txHash
	ep.CommittedAt = &now
	out := *ep
	e.mu.Unlock()

	if e.opts.Store != nil {
		if err := e.opts.Store.UpdateStatus(ctx, id, domain.EpochStatusCommitted, txHash); err != nil {
			e.logger.ErrorContext(ctx, "persist epoch status failed",
				slog.Uint64("epoch_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return out, nil
}

// MarkSettled advances a committed epoch to settled and archives its
// entry list as JSON to blob storage for audit.
func (e *Engine) MarkSettled(ctx context.Context, id uint64) (domain.SettlementEpoch, error) {
	now := e.now()

	e.mu.Lock()
	ep, ok := e.epochs[id]
	if !ok {
		e.mu.Unlock()
		return domain.SettlementEpoch{}, domain.Errf(domain.CodeNotFound, "epoch %d not found", id)
	}
	if ep.Status != domain.EpochStatusCommitted {
		e.mu.Unlock()
		return domain.SettlementEpoch{}, domain.Errf(domain.CodeValidation,
			"epoch %d is %s, not committed", id, ep.Status)
	}
	ep.Status = domain.EpochStatusSettled
	ep.SettledAt = &now
	out := *ep
	e.mu.Unlock()

	if e.opts.Store != nil {
		if err := e.opts.Store.UpdateStatus(ctx, id, domain.EpochStatusSettled, out.CommitTx); err != nil {
			e.logger.ErrorContext(ctx, "persist epoch status failed",
				slog.Uint64("epoch_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.opts.Archiver != nil {
		e.archive(ctx, out)
	}
	return out, nil
}

func (e *Engine) archive(ctx context.Context, ep domain.SettlementEpoch) {
	data, err := json.MarshalIndent(ep, "", "  ")
	if err != nil {
		e.logger.ErrorContext(ctx, "marshal epoch archive failed",
			slog.Uint64("epoch_id", ep.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	key := fmt.Sprintf("%sepoch-%06d.json", e.opts.ArchivePrefix, ep.ID)
	if err := e.opts.Archiver.Put(ctx, key, data, "application/json"); err != nil {
		e.logger.ErrorContext(ctx, "archive epoch failed",
			slog.Uint64("epoch_id", ep.ID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.InfoContext(ctx, "epoch archived", slog.Uint64("epoch_id", ep.ID), slog.String("key", key))
}
