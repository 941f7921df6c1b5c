package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// TransactionStore implements domain.ArchivableLedger using PostgreSQL.
// Records are keyed by (chain_id, tx_hash, action_index), so re-logging the
// same on-chain action after a crash is a no-op rather than a duplicate.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a TransactionStore backed by the given pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const txInsert = `
	INSERT INTO transactions (
		id, cycle_id, chain_id, tx_hash, action_index,
		type, denom, amount, details, created_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10
	) ON CONFLICT (chain_id, tx_hash, action_index) DO NOTHING`

const txSelectCols = `id, cycle_id, chain_id, tx_hash, action_index,
	type, denom, amount, details, created_at`

// AddTransaction records one ledger entry.
func (s *TransactionStore) AddTransaction(ctx context.Context, rec domain.TransactionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, txInsert,
		rec.ID, rec.CycleID, rec.ChainID, rec.TxHash, rec.ActionIndex,
		string(rec.Type), rec.Denom, rec.Amount, rec.Details, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: add transaction %s/%s: %w", rec.ChainID, rec.TxHash, err)
	}
	return nil
}

// AddTransactionBatch records multiple ledger entries in one round trip.
func (s *TransactionStore) AddTransactionBatch(ctx context.Context, recs []domain.TransactionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		batch.Queue(txInsert,
			rec.ID, rec.CycleID, rec.ChainID, rec.TxHash, rec.ActionIndex,
			string(rec.Type), rec.Denom, rec.Amount, rec.Details, rec.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: add transaction batch item %d: %w", i, err)
		}
	}
	return nil
}

func scanTransactionRows(rows pgx.Rows) ([]domain.TransactionRecord, error) {
	var recs []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		var typ string
		if err := rows.Scan(
			&rec.ID, &rec.CycleID, &rec.ChainID, &rec.TxHash, &rec.ActionIndex,
			&typ, &rec.Denom, &rec.Amount, &rec.Details, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Type = domain.TransactionType(typ)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListByCycle returns all records for one rebalance cycle in execution order.
func (s *TransactionStore) ListByCycle(ctx context.Context, cycleID string) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txSelectCols+` FROM transactions WHERE cycle_id = $1 ORDER BY created_at ASC, action_index ASC`,
		cycleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions by cycle: %w", err)
	}
	defer rows.Close()

	recs, err := scanTransactionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions by cycle: %w", err)
	}
	return recs, nil
}

// ListBefore returns all records created strictly before the given time, for
// archiving.
func (s *TransactionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txSelectCols+` FROM transactions WHERE created_at < $1 ORDER BY created_at ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions before: %w", err)
	}
	defer rows.Close()
	return scanTransactionRows(rows)
}

// DeleteBefore deletes all records created before the given time and returns
// the number deleted.
func (s *TransactionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete transactions before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.ArchivableLedger = (*TransactionStore)(nil)
