package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"factory/internal/apperrors"
	"factory/internal/domain"
)

// InsertStrategy records a newly running deployment in the owner index (C7).
func (s *Store) InsertStrategy(ctx context.Context, m *domain.StrategyMetadata) error {
	query := `
		INSERT INTO strategy_metadata (container_id, owner, kind, deployment_id, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING created_at
	`
	err := s.q.QueryRowContext(ctx, query, m.ContainerID, m.Owner, m.Kind, m.DeploymentID).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert strategy: %w", err)
	}
	return nil
}

// GetStrategy looks up a running strategy by its container ID.
func (s *Store) GetStrategy(ctx context.Context, containerID string) (*domain.StrategyMetadata, error) {
	var m domain.StrategyMetadata
	err := s.q.QueryRowContext(ctx, `
		SELECT container_id, owner, kind, deployment_id, created_at
		FROM strategy_metadata WHERE container_id = $1
	`, containerID).Scan(&m.ContainerID, &m.Owner, &m.Kind, &m.DeploymentID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}
	return &m, nil
}

// ListStrategiesByOwner returns owner's running strategies.
func (s *Store) ListStrategiesByOwner(ctx context.Context, owner string) ([]domain.StrategyMetadata, error) {
	return s.queryStrategies(ctx, `
		SELECT container_id, owner, kind, deployment_id, created_at
		FROM strategy_metadata WHERE owner = $1 ORDER BY created_at DESC
	`, owner)
}

// ListAllStrategies returns every running strategy across every owner
// (admin-only).
func (s *Store) ListAllStrategies(ctx context.Context) ([]domain.StrategyMetadata, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT container_id, owner, kind, deployment_id, created_at FROM strategy_metadata ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()
	return scanStrategies(rows)
}

// DeleteStrategy removes a strategy from the owner index; its only
// caller is strategy.Registry.Deregister.
func (s *Store) DeleteStrategy(ctx context.Context, containerID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM strategy_metadata WHERE container_id = $1`, containerID)
	if err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}
	return nil
}

func (s *Store) queryStrategies(ctx context.Context, query string, arg interface{}) ([]domain.StrategyMetadata, error) {
	rows, err := s.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()
	return scanStrategies(rows)
}

func scanStrategies(rows *sql.Rows) ([]domain.StrategyMetadata, error) {
	var out []domain.StrategyMetadata
	for rows.Next() {
		var m domain.StrategyMetadata
		if err := rows.Scan(&m.ContainerID, &m.Owner, &m.Kind, &m.DeploymentID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
