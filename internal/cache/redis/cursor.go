package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// BlockCursor implements domain.BlockCursor as a single Redis key holding
// the last chain block the deposit indexer processed.
type BlockCursor struct {
	rdb *redis.Client
	key string
}

// NewBlockCursor creates a BlockCursor backed by the given Client. The name
// distinguishes cursors when several indexers share one Redis.
func NewBlockCursor(c *Client, name string) *BlockCursor {
	return &BlockCursor{rdb: c.Underlying(), key: "cursor:" + name}
}

// Get returns the last processed block, or zero when no cursor exists yet.
func (bc *BlockCursor) Get(ctx context.Context) (uint64, error) {
	val, err := bc.rdb.Get(ctx, bc.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: get cursor %s: %w", bc.key, err)
	}
	block, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse cursor %s: %w", bc.key, err)
	}
	return block, nil
}

// Set records the last processed block.
func (bc *BlockCursor) Set(ctx context.Context, block uint64) error {
	if err := bc.rdb.Set(ctx, bc.key, strconv.FormatUint(block, 10), 0).Err(); err != nil {
		return fmt.Errorf("redis: set cursor %s: %w", bc.key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BlockCursor = (*BlockCursor)(nil)
