package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// EpochStore implements domain.EpochStore using PostgreSQL. An epoch and
// its entry list are written in a single transaction so a crash can never
// leave a root without its leaves.
type EpochStore struct {
	pool *pgxpool.Pool
}

// NewEpochStore creates a new EpochStore backed by the given connection pool.
func NewEpochStore(pool *pgxpool.Pool) *EpochStore {
	return &EpochStore{pool: pool}
}

// Create inserts a settlement epoch together with its entries.
func (s *EpochStore) Create(ctx context.Context, e domain.SettlementEpoch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin epoch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const epochQuery = `
		INSERT INTO settlement_epochs (
			id, merkle_root, trade_count, status, commit_tx,
			created_at, committed_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, epochQuery,
		int64(e.ID), e.MerkleRoot, e.TradeCount, string(e.Status),
		e.CommitTx, e.CreatedAt, e.CommittedAt, e.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create epoch %d: %w", e.ID, err)
	}

	const entryQuery = `
		INSERT INTO settlement_entries (epoch_id, address, amount, leaf_idx)
		VALUES ($1, $2, $3, $4)`

	for i, entry := range e.Entries {
		if _, err := tx.Exec(ctx, entryQuery, int64(e.ID), entry.Address, entry.Amount, i); err != nil {
			return fmt.Errorf("postgres: create epoch %d entry %s: %w", e.ID, entry.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit epoch %d: %w", e.ID, err)
	}
	return nil
}

// UpdateStatus advances an epoch's status and records the commit
// transaction hash when one exists. The timestamp column matching the new
// status is stamped server-side.
func (s *EpochStore) UpdateStatus(ctx context.Context, id uint64, status domain.EpochStatus, commitTx string) error {
	var query string
	switch status {
	case domain.EpochStatusCommitted:
		query = `UPDATE settlement_epochs
			 SET status = $1, commit_tx = $2, committed_at = NOW()
			 WHERE id = $3`
	case domain.EpochStatusSettled:
		query = `UPDATE settlement_epochs
			 SET status = $1, commit_tx = $2, settled_at = NOW()
			 WHERE id = $3`
	default:
		query = `UPDATE settlement_epochs
			 SET status = $1, commit_tx = $2
			 WHERE id = $3`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), commitTx, int64(id))
	if err != nil {
		return fmt.Errorf("postgres: update epoch %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const epochSelectCols = `id, merkle_root, trade_count, status, commit_tx,
	created_at, committed_at, settled_at`

func (s *EpochStore) scanEpoch(
	ctx context.Context,
	scanner interface{ Scan(dest ...any) error },
) (domain.SettlementEpoch, error) {
	var e domain.SettlementEpoch
	var id int64
	var status string

	err := scanner.Scan(
		&id, &e.MerkleRoot, &e.TradeCount, &status, &e.CommitTx,
		&e.CreatedAt, &e.CommittedAt, &e.SettledAt,
	)
	if err != nil {
		return domain.SettlementEpoch{}, err
	}
	e.ID = uint64(id)
	e.Status = domain.EpochStatus(status)

	rows, err := s.pool.Query(ctx,
		`SELECT address, amount FROM settlement_entries
		 WHERE epoch_id = $1 ORDER BY leaf_idx ASC`, id)
	if err != nil {
		return domain.SettlementEpoch{}, fmt.Errorf("load epoch entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.EpochEntry
		if err := rows.Scan(&entry.Address, &entry.Amount); err != nil {
			return domain.SettlementEpoch{}, err
		}
		e.Entries = append(e.Entries, entry)
	}
	return e, rows.Err()
}

// Get retrieves a single epoch with its entries.
func (s *EpochStore) Get(ctx context.Context, id uint64) (domain.SettlementEpoch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+epochSelectCols+` FROM settlement_epochs WHERE id = $1`, int64(id))

	e, err := s.scanEpoch(ctx, row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.SettlementEpoch{}, domain.ErrNotFound
		}
		return domain.SettlementEpoch{}, fmt.Errorf("postgres: get epoch %d: %w", id, err)
	}
	return e, nil
}

// List returns all epochs with their entries, oldest first.
func (s *EpochStore) List(ctx context.Context) ([]domain.SettlementEpoch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+epochSelectCols+` FROM settlement_epochs ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list epochs: %w", err)
	}
	defer rows.Close()

	// Collect the header rows first: scanEpoch issues follow-up entry
	// queries, and pgx forbids overlapping queries on one connection.
	type header struct {
		e      domain.SettlementEpoch
		id     int64
		status string
	}
	var headers []header
	for rows.Next() {
		var h header
		err := rows.Scan(
			&h.id, &h.e.MerkleRoot, &h.e.TradeCount, &h.status, &h.e.CommitTx,
			&h.e.CreatedAt, &h.e.CommittedAt, &h.e.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan epoch: %w", err)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list epochs: %w", err)
	}

	epochs := make([]domain.SettlementEpoch, 0, len(headers))
	for _, h := range headers {
		h.e.ID = uint64(h.id)
		h.e.Status = domain.EpochStatus(h.status)

		entryRows, err := s.pool.Query(ctx,
			`SELECT address, amount FROM settlement_entries
			 WHERE epoch_id = $1 ORDER BY leaf_idx ASC`, h.id)
		if err != nil {
			return nil, fmt.Errorf("postgres: load epoch %d entries: %w", h.id, err)
		}
		for entryRows.Next() {
			var entry domain.EpochEntry
			if err := entryRows.Scan(&entry.Address, &entry.Amount); err != nil {
				entryRows.Close()
				return nil, fmt.Errorf("postgres: scan epoch %d entry: %w", h.id, err)
			}
			h.e.Entries = append(h.e.Entries, entry)
		}
		if err := entryRows.Err(); err != nil {
			entryRows.Close()
			return nil, fmt.Errorf("postgres: load epoch %d entries: %w", h.id, err)
		}
		entryRows.Close()

		epochs = append(epochs, h.e)
	}
	return epochs, nil
}

// LastID returns the highest epoch ID on record, or zero when none exist.
func (s *EpochStore) LastID(ctx context.Context) (uint64, error) {
	var last int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM settlement_epochs`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("postgres: last epoch id: %w", err)
	}
	return uint64(last), nil
}
