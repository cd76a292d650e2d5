package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/ledger"
)

// BalanceHandler exposes ledger state for one account.
type BalanceHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(l *ledger.Ledger, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{
		ledger: l,
		logger: logHandler(logger, "balances"),
	}
}

// balanceView is the wire form of one asset balance.
type balanceView struct {
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

// GetBalance returns the account's collateral balance, nonce, and any
// outcome-token balances named via ?asset= (repeatable).
// GET /api/balances/{address}?asset=...
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")

	assets := []string{domain.CollateralAssetID}
	assets = append(assets, r.URL.Query()["asset"]...)

	views := make([]balanceView, 0, len(assets))
	for _, asset := range assets {
		b := h.ledger.Balance(address, asset)
		views = append(views, balanceView{
			Asset:     asset,
			Available: strconv.FormatInt(b.Available, 10),
			Locked:    strconv.FormatInt(b.Locked, 10),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":  address,
		"nonce":    strconv.FormatInt(h.ledger.Nonce(address), 10),
		"balances": views,
	})
}
