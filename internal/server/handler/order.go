package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/engine"
)

// MatchingEngine is the slice of the matching engine the HTTP layer needs.
type MatchingEngine interface {
	AddOrder(o domain.Order) (engine.Result, error)
	CancelOrder(orderID, requester string) (bool, error)
	CancelAll(maker string) (int64, int)
}

// OrderHandler serves order placement and cancellation.
type OrderHandler struct {
	engine MatchingEngine
	orders domain.OrderStore // may be nil
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler. The order store is optional;
// without one, placements are served purely from memory.
func NewOrderHandler(eng MatchingEngine, orders domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		engine: eng,
		orders: orders,
		logger: logHandler(logger, "orders"),
	}
}

// orderRequest is the wire form of a signed order. All fixed-point
// integers travel as decimal strings so large values survive JSON.
type orderRequest struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	MarketID      string `json:"marketId"`
	TokenID       string `json:"tokenId"`
	Side          string `json:"side"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// tradeView is the wire form of an executed trade.
type tradeView struct {
	ID        string `json:"id"`
	MarketID  string `json:"marketId"`
	TokenID   string `json:"tokenId"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker"`
	TakerSide string `json:"takerSide"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	MatchType string `json:"matchType"`
	Fee       string `json:"fee"`
	Timestamp string `json:"timestamp"`
}

func toTradeView(t domain.Trade) tradeView {
	return tradeView{
		ID:        t.ID,
		MarketID:  t.MarketID,
		TokenID:   t.TokenID,
		Maker:     t.Maker,
		Taker:     t.Taker,
		TakerSide: string(t.TakerSide),
		Amount:    strconv.FormatInt(t.Amount, 10),
		Price:     strconv.FormatInt(t.Price, 10),
		MatchType: string(t.MatchType),
		Fee:       strconv.FormatInt(t.Fee, 10),
		Timestamp: t.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (req orderRequest) toOrder() (domain.Order, error) {
	o := domain.Order{
		Maker:         req.Maker,
		Signer:        req.Signer,
		Taker:         req.Taker,
		MarketID:      req.MarketID,
		TokenID:       req.TokenID,
		SignatureType: domain.SignatureType(req.SignatureType),
		Signature:     req.Signature,
	}

	switch req.Side {
	case "buy", "BUY":
		o.Side = domain.OrderSideBuy
	case "sell", "SELL":
		o.Side = domain.OrderSideSell
	default:
		return domain.Order{}, domain.Errf(domain.CodeValidation, "unknown side %q", req.Side)
	}

	if req.Salt != "" {
		salt, ok := new(big.Int).SetString(req.Salt, 10)
		if !ok {
			return domain.Order{}, domain.Errf(domain.CodeValidation, "invalid salt %q", req.Salt)
		}
		o.Salt = salt
	}

	var err error
	if o.MakerAmount, err = parseAmount(req.MakerAmount); err != nil {
		return domain.Order{}, domain.Errf(domain.CodeValidation, "invalid makerAmount %q", req.MakerAmount)
	}
	if o.TakerAmount, err = parseAmount(req.TakerAmount); err != nil {
		return domain.Order{}, domain.Errf(domain.CodeValidation, "invalid takerAmount %q", req.TakerAmount)
	}
	if req.Expiration != "" {
		if o.Expiration, err = parseAmount(req.Expiration); err != nil {
			return domain.Order{}, domain.Errf(domain.CodeValidation, "invalid expiration %q", req.Expiration)
		}
	}
	if req.Nonce != "" {
		if o.Nonce, err = parseAmount(req.Nonce); err != nil {
			return domain.Order{}, domain.Errf(domain.CodeValidation, "invalid nonce %q", req.Nonce)
		}
	}
	if req.FeeRateBps != "" {
		if o.FeeRateBps, err = parseAmount(req.FeeRateBps); err != nil {
			return domain.Order{}, domain.Errf(domain.CodeValidation, "invalid feeRateBps %q", req.FeeRateBps)
		}
	}

	return o, nil
}

// PlaceOrder validates, matches, and optionally rests a signed order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := req.toOrder()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.engine.AddOrder(o)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.orders != nil {
		o.ID = res.OrderID
		h.persist(r.Context(), o, res)
	}

	trades := make([]tradeView, 0, len(res.Trades))
	for _, t := range res.Trades {
		trades = append(trades, toTradeView(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orderId":   res.OrderID,
		"status":    string(res.Status),
		"remaining": strconv.FormatInt(res.Remaining, 10),
		"trades":    trades,
	})
}

// persist records the accepted order and its resulting status. Store
// failures are logged, never surfaced: the in-memory engine is the source
// of truth for live state.
func (h *OrderHandler) persist(ctx context.Context, o domain.Order, res engine.Result) {
	if err := h.orders.Create(ctx, o); err != nil {
		h.logger.Error("persist order failed",
			slog.String("order_id", o.ID), slog.String("error", err.Error()))
		return
	}
	if res.Status != domain.OrderStatusOpen || res.Remaining != o.Size() {
		if err := h.orders.UpdateStatus(ctx, o.ID, res.Status, res.Remaining); err != nil {
			h.logger.Error("persist order status failed",
				slog.String("order_id", o.ID), slog.String("error", err.Error()))
		}
	}
}

// CancelOrder removes a resting order. The X-Account header must match the
// order's maker.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	account := r.Header.Get("X-Account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	cancelled, err := h.engine.CancelOrder(id, account)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if cancelled && h.orders != nil {
		if err := h.orders.UpdateStatus(r.Context(), id, domain.OrderStatusCancelled, 0); err != nil {
			h.logger.Error("persist cancel failed",
				slog.String("order_id", id), slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orderId":   id,
		"cancelled": cancelled,
	})
}

// CancelAll bumps the account's nonce and sweeps every resting order whose
// nonce is now stale.
// DELETE /api/orders
func (h *OrderHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	account := r.Header.Get("X-Account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	nonce, removed := h.engine.CancelAll(account)
	writeJSON(w, http.StatusOK, map[string]any{
		"nonce":     strconv.FormatInt(nonce, 10),
		"cancelled": removed,
	})
}
