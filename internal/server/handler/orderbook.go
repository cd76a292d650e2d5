package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// BookSource serves live depth snapshots; the matching engine implements it.
type BookSource interface {
	Book(marketID, tokenID string, levels int) domain.BookDepth
}

// OrderbookHandler serves aggregated depth snapshots. It prefers the live
// engine and falls back to the cache when the engine does not host the
// market (engine-only instances behind a shared Redis).
type OrderbookHandler struct {
	source BookSource
	cache  domain.BookCache // may be nil
	logger *slog.Logger
}

// NewOrderbookHandler creates an OrderbookHandler.
func NewOrderbookHandler(source BookSource, cache domain.BookCache, logger *slog.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		source: source,
		cache:  cache,
		logger: logHandler(logger, "orderbook"),
	}
}

// GetDepth returns the aggregated book for one market token.
// GET /api/orderbook/{marketId}/{tokenId}?depth=N
func (h *OrderbookHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "marketId")
	tokenID := pathParam(r, "tokenId")

	levels := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			levels = n
		}
	}

	if h.source != nil {
		writeJSON(w, http.StatusOK, h.source.Book(marketID, tokenID, levels))
		return
	}

	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "no book source configured")
		return
	}

	depth, err := h.cache.GetDepth(r.Context(), marketID, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDomainError(w, domain.Errf(domain.CodeNotFound, "no book for %s/%s", marketID, tokenID))
			return
		}
		h.logger.Error("cache depth read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "depth lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, depth)
}
