package domain

import (
	"context"
	"time"
)

// ListOpts carries standard pagination parameters.
type ListOpts struct {
	Limit  int
	Offset int
}

// ---------------------------------------------------------------------------
// Durable store interfaces, implemented by internal/store/postgres.
// The core never depends on a specific query builder: stores accept and
// return the explicit domain structs above.
// ---------------------------------------------------------------------------

// OrderStore persists order lifecycle state for audit and restart recovery.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus, remaining int64) error
	Get(ctx context.Context, id string) (Order, error)
}

// TradeStore persists executed trades.
type TradeStore interface {
	Create(ctx context.Context, t Trade) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// EpochStore persists settlement epochs and their entry lists.
type EpochStore interface {
	Create(ctx context.Context, e SettlementEpoch) error
	UpdateStatus(ctx context.Context, id uint64, status EpochStatus, commitTx string) error
	Get(ctx context.Context, id uint64) (SettlementEpoch, error)
	List(ctx context.Context) ([]SettlementEpoch, error)
	LastID(ctx context.Context) (uint64, error)
}

// ---------------------------------------------------------------------------
// Cache interfaces, implemented by internal/cache/redis.
// ---------------------------------------------------------------------------

// BookCache holds the latest depth snapshot per market for cheap reads by
// other processes.
type BookCache interface {
	SetDepth(ctx context.Context, depth BookDepth) error
	GetDepth(ctx context.Context, marketID, tokenID string) (BookDepth, error)
}

// SignalBus publishes trade executions to interested subscribers.
type SignalBus interface {
	PublishTrade(ctx context.Context, t Trade) error
	SubscribeTrades(ctx context.Context) (<-chan Trade, func(), error)
}

// BlockCursor tracks the last chain block processed by the deposit
// indexer so credits are applied exactly once across restarts.
type BlockCursor interface {
	Get(ctx context.Context) (uint64, error)
	Set(ctx context.Context, block uint64) error
}

// RateLimiter throttles requests per key across all server instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion for operations that
// must run on at most one instance at a time, such as cutting a
// settlement batch.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ---------------------------------------------------------------------------
// Blob storage interfaces, implemented by internal/blob/s3.
// ---------------------------------------------------------------------------

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
