package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

const depthTTL = 24 * time.Hour

// BookCache implements domain.BookCache using Redis strings with
// JSON-serialized depth snapshots.
//
// Key schema:
//
//	book:{marketID}:{tokenID} - JSON BookDepth, refreshed on every change
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func depthKey(marketID, tokenID string) string {
	return "book:" + marketID + ":" + tokenID
}

// SetDepth stores the latest depth snapshot for a market token. The TTL
// only bounds staleness after the writer disappears; a live engine
// overwrites the key on every book change.
func (bc *BookCache) SetDepth(ctx context.Context, depth domain.BookDepth) error {
	data, err := json.Marshal(depth)
	if err != nil {
		return fmt.Errorf("redis: marshal depth %s/%s: %w", depth.MarketID, depth.TokenID, err)
	}
	key := depthKey(depth.MarketID, depth.TokenID)
	if err := bc.rdb.Set(ctx, key, data, depthTTL).Err(); err != nil {
		return fmt.Errorf("redis: set depth %s: %w", key, err)
	}
	return nil
}

// GetDepth returns the cached depth snapshot for a market token.
// It returns domain.ErrNotFound when no snapshot exists.
func (bc *BookCache) GetDepth(ctx context.Context, marketID, tokenID string) (domain.BookDepth, error) {
	key := depthKey(marketID, tokenID)
	data, err := bc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookDepth{}, domain.ErrNotFound
		}
		return domain.BookDepth{}, fmt.Errorf("redis: get depth %s: %w", key, err)
	}

	var depth domain.BookDepth
	if err := json.Unmarshal(data, &depth); err != nil {
		return domain.BookDepth{}, fmt.Errorf("redis: unmarshal depth %s: %w", key, err)
	}
	return depth, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
