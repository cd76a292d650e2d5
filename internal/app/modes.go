package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/notify"
	"github.com/alanyoungcy/clobcore/internal/server"
	"github.com/alanyoungcy/clobcore/internal/server/handler"
	"github.com/alanyoungcy/clobcore/internal/server/ws"
)

// shutdownGrace bounds how long graceful HTTP shutdown may take.
const shutdownGrace = 10 * time.Second

// hookSinks connects the matching engine's event stream to persistence,
// the settlement engine, the depth cache, the signal bus, and (optionally)
// a WebSocket hub. When a signal bus is wired the hub receives trades
// through the bus instead of directly, so multi-instance deployments see
// every execution exactly once.
func (a *App) hookSinks(ctx context.Context, deps *Dependencies, hub *ws.Hub) {
	logger := a.logger

	deps.Engine.OnTrade(func(t domain.Trade) {
		deps.Settlement.Record(t)

		if deps.TradeStore != nil {
			if err := deps.TradeStore.Create(ctx, t); err != nil {
				logger.Error("persist trade failed",
					slog.String("trade_id", t.ID),
					slog.String("error", err.Error()))
			}
		}

		if deps.SignalBus != nil {
			if err := deps.SignalBus.PublishTrade(ctx, t); err != nil {
				logger.Error("publish trade failed",
					slog.String("trade_id", t.ID),
					slog.String("error", err.Error()))
			}
		} else if hub != nil {
			hub.BroadcastTrade(t)
		}
	})

	deps.Engine.OnDepth(func(d domain.BookDepth) {
		if deps.BookCache != nil {
			if err := deps.BookCache.SetDepth(ctx, d); err != nil {
				logger.Error("cache depth failed",
					slog.String("market_id", d.MarketID),
					slog.String("error", err.Error()))
			}
		}
		if hub != nil {
			hub.BroadcastDepth(d)
		}
	})
}

// runBatchLoop cuts a settlement epoch on a fixed interval when
// configured. An empty pending set is not an error; the tick is skipped.
func (a *App) runBatchLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Settlement.BatchInterval.Duration
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if deps.Settlement.PendingCount() == 0 {
				continue
			}
			unlock, err := deps.LockManager.Acquire(ctx, "settlement:batch", interval)
			if err != nil {
				if !errors.Is(err, domain.ErrLockHeld) {
					a.logger.Error("batch lock failed", slog.String("error", err.Error()))
				}
				continue
			}
			epoch, err := deps.Settlement.CreateBatch(ctx)
			unlock()
			if err != nil {
				if !errors.Is(err, domain.ErrNoPendingTrades) {
					a.logger.Error("scheduled batch failed", slog.String("error", err.Error()))
				}
				continue
			}
			a.logger.Info("settlement batch cut",
				slog.Uint64("epoch_id", epoch.ID),
				slog.Int("trades", epoch.TradeCount),
				slog.String("root", epoch.MerkleRoot))
			if deps.Notifier != nil {
				_ = deps.Notifier.Notify(ctx, notify.EventSettlement,
					"Settlement batch cut",
					fmt.Sprintf("epoch %d: %d trades, root %s", epoch.ID, epoch.TradeCount, epoch.MerkleRoot))
			}
		}
	}
}

// runArchiveLoop periodically moves aged trades out of Postgres into
// object storage. Disabled unless an archive interval is configured.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Settlement.ArchiveInterval.Duration
	if interval <= 0 || deps.Archiver == nil {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().Add(-a.cfg.Settlement.TradeRetention.Duration)
			n, err := deps.Archiver.ArchiveTrades(ctx, before)
			if err != nil {
				a.logger.Error("trade archive failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("trades archived", slog.Int64("count", n))
			}
		}
	}
}

// ServeMode runs the full stack: matching engine, settlement, WebSocket
// hub, and the HTTP API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	a.hookSinks(ctx, deps, hub)

	g.Go(func() error { return hub.Run(ctx) })

	if deps.Indexer != nil {
		g.Go(func() error { return deps.Indexer.Run(ctx) })
	}
	g.Go(func() error { return a.runBatchLoop(ctx, deps) })
	g.Go(func() error { return a.runArchiveLoop(ctx, deps) })

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Orders:     handler.NewOrderHandler(deps.Engine, deps.OrderStore, a.logger),
		Orderbook:  handler.NewOrderbookHandler(deps.Engine, deps.BookCache, a.logger),
		Trades:     handler.NewTradeHandler(deps.TradeStore, a.logger),
		Balances:   handler.NewBalanceHandler(deps.Ledger, a.logger),
		Settlement: handler.NewSettlementHandler(deps.Settlement, deps.LockManager, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// EngineMode runs matching and settlement without the HTTP surface.
// Orders arrive through other instances sharing the same Postgres and
// Redis; this instance contributes indexing and scheduled batching.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.hookSinks(ctx, deps, nil)

	if deps.Indexer != nil {
		g.Go(func() error { return deps.Indexer.Run(ctx) })
	}
	g.Go(func() error { return a.runBatchLoop(ctx, deps) })
	g.Go(func() error { return a.runArchiveLoop(ctx, deps) })

	return g.Wait()
}
