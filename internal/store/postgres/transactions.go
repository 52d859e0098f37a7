package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"factory/internal/domain"
)

// InsertTransaction appends a new ledger entry and returns its ID.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.TransactionRecord) (int64, error) {
	query := `
		INSERT INTO transaction_records (owner, kind, amount, deployment_id, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at
	`
	var id int64
	err := s.q.QueryRowContext(ctx, query, tx.Owner, tx.Kind, tx.Amount, nullableString(tx.DeploymentID), nullableString(tx.Memo)).
		Scan(&id, &tx.CreatedAt)
	if err != nil {
		s.logger.Errorf("Failed to insert transaction: %v", err)
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	tx.ID = id
	return id, nil
}

// InsertRefundIfAbsent inserts a Refund record for tx.DeploymentID, relying
// on the idx_tx_refund_dedup partial unique index to make the insert
// idempotent: a second attempt for the same deployment_id reports
// inserted=false instead of erroring.
func (s *Store) InsertRefundIfAbsent(ctx context.Context, tx *domain.TransactionRecord) (bool, error) {
	query := `
		INSERT INTO transaction_records (owner, kind, amount, deployment_id, memo, created_at)
		VALUES ($1, 'refund', $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (deployment_id) WHERE kind = 'refund' DO NOTHING
		RETURNING id, created_at
	`
	var id int64
	err := s.q.QueryRowContext(ctx, query, tx.Owner, tx.Amount, tx.DeploymentID, nullableString(tx.Memo)).
		Scan(&id, &tx.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		s.logger.Errorf("Failed to insert refund: %v", err)
		return false, fmt.Errorf("failed to insert refund: %w", err)
	}
	tx.ID = id
	return true, nil
}

// InsertFeeIfAbsent inserts a Fee record for tx.DeploymentID, relying on
// the idx_tx_fee_dedup partial unique index to make the insert idempotent:
// a second attempt for the same deployment_id reports inserted=false
// instead of erroring.
func (s *Store) InsertFeeIfAbsent(ctx context.Context, tx *domain.TransactionRecord) (bool, error) {
	query := `
		INSERT INTO transaction_records (owner, kind, amount, deployment_id, memo, created_at)
		VALUES ($1, 'fee', $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (deployment_id) WHERE kind = 'fee' DO NOTHING
		RETURNING id, created_at
	`
	var id int64
	err := s.q.QueryRowContext(ctx, query, tx.Owner, tx.Amount, tx.DeploymentID, nullableString(tx.Memo)).
		Scan(&id, &tx.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		s.logger.Errorf("Failed to insert fee: %v", err)
		return false, fmt.Errorf("failed to insert fee: %w", err)
	}
	tx.ID = id
	return true, nil
}

// HasFeeCharge reports whether a DeploymentFee transaction has already
// been recorded for deploymentID.
func (s *Store) HasFeeCharge(ctx context.Context, deploymentID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transaction_records WHERE deployment_id = $1 AND kind = 'fee')`
	var exists bool
	if err := s.q.QueryRowContext(ctx, query, deploymentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check fee charge: %w", err)
	}
	return exists, nil
}

// ListTransactions returns owner's most recent transactions, newest first.
func (s *Store) ListTransactions(ctx context.Context, owner string, limit int) ([]domain.TransactionRecord, error) {
	query := `
		SELECT id, owner, kind, amount, COALESCE(deployment_id, ''), COALESCE(memo, ''), created_at
		FROM transaction_records
		WHERE owner = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.q.QueryContext(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.TransactionRecord
	for rows.Next() {
		var t domain.TransactionRecord
		if err := rows.Scan(&t.ID, &t.Owner, &t.Kind, &t.Amount, &t.DeploymentID, &t.Memo, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
