package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"factory/internal/apperrors"
	"factory/internal/domain"
)

// GetAccount returns the account for owner, or apperrors.ErrNotFound if
// owner has never deposited.
func (s *Store) GetAccount(ctx context.Context, owner string) (*domain.UserAccount, error) {
	query := `SELECT owner, balance, created_at, updated_at FROM accounts WHERE owner = $1`

	var acc domain.UserAccount
	err := s.q.QueryRowContext(ctx, query, owner).Scan(
		&acc.Owner, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get account: %v", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

// UpsertAccount inserts owner's account or overwrites its balance.
func (s *Store) UpsertAccount(ctx context.Context, acc *domain.UserAccount) error {
	query := `
		INSERT INTO accounts (owner, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner) DO UPDATE SET balance = $2, updated_at = $4
	`
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, query, acc.Owner, acc.Balance, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		s.logger.Errorf("Failed to upsert account: %v", err)
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}
