package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order. Remaining starts at the full order size.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	var saltStr *string
	if o.Salt != nil {
		v := o.Salt.String()
		saltStr = &v
	}

	const query = `
		INSERT INTO orders (
			id, salt, maker, signer, taker, market_id, token_id, side,
			maker_amount, taker_amount, remaining,
			expiration, nonce, fee_rate_bps, signature_type, signature,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, saltStr, o.Maker, o.Signer, o.Taker,
		o.MarketID, o.TokenID, string(o.Side),
		o.MakerAmount, o.TakerAmount, o.Size(),
		o.Expiration, o.Nonce, o.FeeRateBps,
		int16(o.SignatureType), o.Signature,
		string(domain.OrderStatusOpen), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status and remaining size of an existing order.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, remaining int64) error {
	const query = `
		UPDATE orders SET status = $1, remaining = $2, updated_at = NOW()
		WHERE id = $3`

	tag, err := s.pool.Exec(ctx, query, string(status), remaining, id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, salt, maker, signer, taker, market_id, token_id, side,
	maker_amount, taker_amount,
	expiration, nonce, fee_rate_bps, signature_type, signature,
	status, created_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var side, status string
	var sigType int16
	var saltStr *string

	err := scanner.Scan(
		&o.ID, &saltStr, &o.Maker, &o.Signer, &o.Taker,
		&o.MarketID, &o.TokenID, &side,
		&o.MakerAmount, &o.TakerAmount,
		&o.Expiration, &o.Nonce, &o.FeeRateBps,
		&sigType, &o.Signature,
		&status, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.SignatureType = domain.SignatureType(sigType)
	// The status column is authoritative at rest but the matching engine
	// keeps live state in memory, so callers treat it as advisory.
	_ = status

	if saltStr != nil {
		o.Salt = new(big.Int)
		o.Salt.SetString(*saltStr, 10)
	}

	return o, nil
}

// Get retrieves a single order by ID.
func (s *OrderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}
