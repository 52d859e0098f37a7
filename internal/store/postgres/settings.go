package postgres

import (
	"context"
	"fmt"
)

// GetDeploymentFee returns the current flat per-deployment fee scalar.
func (s *Store) GetDeploymentFee(ctx context.Context) (int64, error) {
	var fee int64
	err := s.q.QueryRowContext(ctx, `SELECT deployment_fee FROM factory_settings WHERE id = 1`).Scan(&fee)
	if err != nil {
		return 0, fmt.Errorf("failed to get deployment fee: %w", err)
	}
	return fee, nil
}

// SetDeploymentFee updates the flat per-deployment fee scalar (admin op).
func (s *Store) SetDeploymentFee(ctx context.Context, fee int64) error {
	_, err := s.q.ExecContext(ctx, `UPDATE factory_settings SET deployment_fee = $1 WHERE id = 1`, fee)
	if err != nil {
		return fmt.Errorf("failed to set deployment fee: %w", err)
	}
	return nil
}

// GetTickCursor returns the persisted tick_cursor scalar. The
// Reconciliation Scheduler does not read it.
func (s *Store) GetTickCursor(ctx context.Context) (int64, error) {
	var cursor int64
	err := s.q.QueryRowContext(ctx, `SELECT tick_cursor FROM factory_settings WHERE id = 1`).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to get tick cursor: %w", err)
	}
	return cursor, nil
}

// SetTickCursor overwrites the persisted tick_cursor scalar; its only
// caller is Scheduler.ResetTimers, which writes 0.
func (s *Store) SetTickCursor(ctx context.Context, cursor int64) error {
	_, err := s.q.ExecContext(ctx, `UPDATE factory_settings SET tick_cursor = $1 WHERE id = 1`, cursor)
	if err != nil {
		return fmt.Errorf("failed to set tick cursor: %w", err)
	}
	return nil
}
