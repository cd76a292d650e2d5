// Package server is the HTTP + WebSocket API surface of the trading core.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/server/handler"
	"github.com/alanyoungcy/clobcore/internal/server/middleware"
	"github.com/alanyoungcy/clobcore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// rate limiting even when a limiter is wired.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Orders     *handler.OrderHandler
	Orderbook  *handler.OrderbookHandler
	Trades     *handler.TradeHandler
	Balances   *handler.BalanceHandler
	Settlement *handler.SettlementHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux
// and the middleware chain (rate limit, auth, logging, CORS) applied.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Order endpoints.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)
	mux.HandleFunc("DELETE /api/orders", handlers.Orders.CancelAll)

	// Market data endpoints.
	mux.HandleFunc("GET /api/orderbook/{marketId}/{tokenId}", handlers.Orderbook.GetDepth)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListRecent)
	mux.HandleFunc("GET /api/balances/{address}", handlers.Balances.GetBalance)

	// Settlement endpoints.
	mux.HandleFunc("POST /api/settlement/batch", handlers.Settlement.CreateBatch)
	mux.HandleFunc("GET /api/settlement/epochs", handlers.Settlement.ListEpochs)
	mux.HandleFunc("GET /api/settlement/proof/{epochId}/{address}", handlers.Settlement.GetProof)
	mux.HandleFunc("POST /api/settlement/epochs/{id}/commit", handlers.Settlement.CommitEpoch)
	mux.HandleFunc("POST /api/settlement/epochs/{id}/settle", handlers.Settlement.SettleEpoch)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
