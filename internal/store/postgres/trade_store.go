package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Create inserts an executed trade.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, market_id, token_id, maker, taker,
			maker_order_id, taker_order_id, taker_side,
			amount, price, match_type, fee, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.MarketID, t.TokenID, t.Maker, t.Taker,
		t.MakerOrderID, t.TakerOrderID, string(t.TakerSide),
		t.Amount, t.Price, string(t.MatchType), t.Fee, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

const tradeSelectCols = `id, market_id, token_id, maker, taker,
	maker_order_id, taker_order_id, taker_side,
	amount, price, match_type, fee, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, matchType string
		err := rows.Scan(
			&t.ID, &t.MarketID, &t.TokenID, &t.Maker, &t.Taker,
			&t.MakerOrderID, &t.TakerOrderID, &side,
			&t.Amount, &t.Price, &matchType, &t.Fee, &t.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		t.TakerSide = domain.OrderSide(side)
		t.MatchType = domain.MatchType(matchType)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListRecent returns the most recently executed trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 ORDER BY executed_at DESC
		 LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades executed strictly before the cutoff,
// oldest first. Used by the archiver when rotating cold trades to blob
// storage.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE executed_at < $1
		 ORDER BY executed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before cutoff: %w", err)
	}
	return trades, nil
}
