package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// batchLockTTL bounds how long a batch cut may exclude other instances.
const batchLockTTL = 30 * time.Second

// SettlementEngine is the slice of the settlement engine the HTTP layer
// needs.
type SettlementEngine interface {
	CreateBatch(ctx context.Context) (domain.SettlementEpoch, error)
	Epochs() []domain.SettlementEpoch
	Proof(epochID uint64, address string) (domain.WithdrawalProof, error)
	CommitEpoch(ctx context.Context, id uint64) (domain.SettlementEpoch, error)
	MarkSettled(ctx context.Context, id uint64) (domain.SettlementEpoch, error)
	PendingCount() int
}

// SettlementHandler serves epoch batching, proofs, and lifecycle
// transitions.
type SettlementHandler struct {
	engine SettlementEngine
	locks  domain.LockManager // may be nil
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler. The lock manager is
// optional; with one configured, batch cuts are serialized across
// instances.
func NewSettlementHandler(eng SettlementEngine, locks domain.LockManager, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		engine: eng,
		locks:  locks,
		logger: logHandler(logger, "settlement"),
	}
}

// epochView is the wire form of a settlement epoch.
type epochView struct {
	EpochID    uint64              `json:"epochId"`
	MerkleRoot string              `json:"merkleRoot"`
	Entries    []domain.EpochEntry `json:"entries"`
	TradeCount int                 `json:"tradeCount"`
	Status     string              `json:"status"`
	CommitTx   string              `json:"commitTx,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

func toEpochView(e domain.SettlementEpoch) epochView {
	return epochView{
		EpochID:    e.ID,
		MerkleRoot: e.MerkleRoot,
		Entries:    e.Entries,
		TradeCount: e.TradeCount,
		Status:     string(e.Status),
		CommitTx:   e.CommitTx,
		CreatedAt:  e.CreatedAt,
	}
}

// CreateBatch drains pending trades into a new epoch.
// POST /api/settlement/batch
func (h *SettlementHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if h.locks != nil {
		unlock, err := h.locks.Acquire(r.Context(), "settlement:batch", batchLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				writeError(w, http.StatusConflict, "batch creation already in progress")
				return
			}
			h.logger.Error("batch lock failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "lock acquisition failed")
			return
		}
		defer unlock()
	}

	epoch, err := h.engine.CreateBatch(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNoPendingTrades) {
			writeError(w, http.StatusUnprocessableEntity, "no pending trades")
			return
		}
		h.logger.Error("create batch failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "batch creation failed")
		return
	}

	writeJSON(w, http.StatusOK, toEpochView(epoch))
}

// ListEpochs returns every epoch with status, newest last.
// GET /api/settlement/epochs
func (h *SettlementHandler) ListEpochs(w http.ResponseWriter, r *http.Request) {
	epochs := h.engine.Epochs()
	views := make([]epochView, 0, len(epochs))
	for _, e := range epochs {
		views = append(views, toEpochView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"epochs":  views,
		"pending": h.engine.PendingCount(),
	})
}

// GetProof returns the Merkle inclusion proof for one address in one epoch.
// GET /api/settlement/proof/{epochId}/{address}
func (h *SettlementHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	epochID, err := strconv.ParseUint(pathParam(r, "epochId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch id")
		return
	}
	address := pathParam(r, "address")

	proof, err := h.engine.Proof(epochID, address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

// CommitEpoch submits the epoch root to the escrow vault.
// POST /api/settlement/epochs/{id}/commit
func (h *SettlementHandler) CommitEpoch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch id")
		return
	}

	epoch, err := h.engine.CommitEpoch(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEpochView(epoch))
}

// SettleEpoch marks a committed epoch as settled and archives it.
// POST /api/settlement/epochs/{id}/settle
func (h *SettlementHandler) SettleEpoch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid epoch id")
		return
	}

	epoch, err := h.engine.MarkSettled(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEpochView(epoch))
}
