package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// TradeHandler serves executed trade history from the durable store.
type TradeHandler struct {
	trades domain.TradeStore
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades domain.TradeStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logHandler(logger, "trades"),
	}
}

// ListRecent returns the most recent executions, newest first.
// GET /api/trades?limit=&offset=
func (h *TradeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.Error("list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "trade lookup failed")
		return
	}

	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, toTradeView(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": views})
}
