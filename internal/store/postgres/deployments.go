package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"factory/internal/apperrors"
	"factory/internal/domain"
)

// GetDeployment returns a deployment record by ID.
func (s *Store) GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	query := `
		SELECT id, owner, kind, status, fee_charged, COALESCE(container_id, ''), container_create_attempted, config_blob,
		       install_attempts, refund_attempts, COALESCE(last_error, ''), created_at, last_update_time
		FROM deployment_records WHERE id = $1
	`
	var d domain.DeploymentRecord
	var blob []byte
	err := s.q.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Owner, &d.Kind, &d.Status, &d.FeeCharged, &d.ContainerID, &d.ContainerCreateAttempted, &blob,
		&d.InstallAttempts, &d.RefundAttempts, &d.LastError, &d.CreatedAt, &d.LastUpdateTime,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	d.ConfigBlob = json.RawMessage(blob)
	return &d, nil
}

// InsertDeployment creates a new deployment record in the status d
// carries (CreateDeployment passes StatusPendingContainer).
func (s *Store) InsertDeployment(ctx context.Context, d *domain.DeploymentRecord) error {
	query := `
		INSERT INTO deployment_records
			(id, owner, kind, status, fee_charged, config_blob, install_attempts, refund_attempts, created_at, last_update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, last_update_time
	`
	err := s.q.QueryRowContext(ctx, query,
		d.ID, d.Owner, d.Kind, d.Status, d.FeeCharged, []byte(d.ConfigBlob), d.InstallAttempts, d.RefundAttempts,
	).Scan(&d.CreatedAt, &d.LastUpdateTime)
	if err != nil {
		return fmt.Errorf("failed to insert deployment: %w", err)
	}
	return nil
}

// UpdateDeployment persists the next safe waypoint of the state machine:
// status, container assignment, attempt counters and error.
func (s *Store) UpdateDeployment(ctx context.Context, d *domain.DeploymentRecord) error {
	query := `
		UPDATE deployment_records
		SET status = $1, container_id = $2, container_create_attempted = $3, install_attempts = $4, refund_attempts = $5,
		    last_error = $6, last_update_time = CURRENT_TIMESTAMP
		WHERE id = $7
		RETURNING last_update_time
	`
	res, err := s.q.QueryContext(ctx, query,
		d.Status, nullableString(d.ContainerID), d.ContainerCreateAttempted, d.InstallAttempts, d.RefundAttempts,
		nullableString(d.LastError), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update deployment: %w", err)
	}
	defer res.Close()
	if res.Next() {
		_ = res.Scan(&d.LastUpdateTime)
	}
	return res.Err()
}

// ListDeploymentsByOwner returns owner's deployments, newest first.
func (s *Store) ListDeploymentsByOwner(ctx context.Context, owner string) ([]domain.DeploymentRecord, error) {
	return s.queryDeployments(ctx, `
		SELECT id, owner, kind, status, fee_charged, COALESCE(container_id, ''), container_create_attempted, config_blob,
		       install_attempts, refund_attempts, COALESCE(last_error, ''), created_at, last_update_time
		FROM deployment_records WHERE owner = $1 ORDER BY created_at DESC
	`, owner)
}

// ListAllDeployments returns up to limit deployment records across every
// owner from the live table (not the archive), newest first — the admin
// query for observing deployments still in flight, which ListArchivedDeployments
// cannot answer since it only sees records already swept into the archive.
func (s *Store) ListAllDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error) {
	return s.queryDeployments(ctx, `
		SELECT id, owner, kind, status, fee_charged, COALESCE(container_id, ''), container_create_attempted, config_blob,
		       install_attempts, refund_attempts, COALESCE(last_error, ''), created_at, last_update_time
		FROM deployment_records ORDER BY created_at DESC LIMIT $1
	`, limit)
}

// ScanActiveDeployments returns up to limit non-terminal deployments
// ordered by last_update_time ascending, the range scan the Reconciliation
// Scheduler (C9) drives its tick with.
func (s *Store) ScanActiveDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error) {
	return s.queryDeployments(ctx, `
		SELECT id, owner, kind, status, fee_charged, COALESCE(container_id, ''), container_create_attempted, config_blob,
		       install_attempts, refund_attempts, COALESCE(last_error, ''), created_at, last_update_time
		FROM deployment_records
		WHERE status NOT IN ('running', 'failed', 'refunded')
		ORDER BY last_update_time ASC
		LIMIT $1
	`, limit)
}

func (s *Store) queryDeployments(ctx context.Context, query string, arg interface{}) ([]domain.DeploymentRecord, error) {
	rows, err := s.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	var out []domain.DeploymentRecord
	for rows.Next() {
		var d domain.DeploymentRecord
		var blob []byte
		if err := rows.Scan(
			&d.ID, &d.Owner, &d.Kind, &d.Status, &d.FeeCharged, &d.ContainerID, &d.ContainerCreateAttempted, &blob,
			&d.InstallAttempts, &d.RefundAttempts, &d.LastError, &d.CreatedAt, &d.LastUpdateTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		d.ConfigBlob = blob
		out = append(out, d)
	}
	return out, rows.Err()
}

// ArchiveOldDeployments moves terminal records past olderThan (unix
// seconds) or beyond maxCompleted (oldest first) into
// deployment_records_archive. Records are moved, never erased — the
// append-only guarantee on deployment history extends to archiving.
func (s *Store) ArchiveOldDeployments(ctx context.Context, olderThan int64, maxCompleted int) (int, error) {
	cutoff := time.Unix(olderThan, 0)

	moveByAge := `
		WITH moved AS (
			DELETE FROM deployment_records
			WHERE status IN ('running', 'failed', 'refunded') AND last_update_time < $1
			RETURNING *
		)
		INSERT INTO deployment_records_archive
		SELECT *, CURRENT_TIMESTAMP FROM moved
	`
	res, err := s.q.ExecContext(ctx, moveByAge, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive aged deployments: %w", err)
	}
	n1, _ := res.RowsAffected()

	moveByCount := `
		WITH excess AS (
			SELECT id FROM deployment_records
			WHERE status IN ('running', 'failed', 'refunded')
			ORDER BY last_update_time ASC
			OFFSET $1
		), moved AS (
			DELETE FROM deployment_records WHERE id IN (SELECT id FROM excess)
			RETURNING *
		)
		INSERT INTO deployment_records_archive
		SELECT *, CURRENT_TIMESTAMP FROM moved
	`
	res2, err := s.q.ExecContext(ctx, moveByCount, maxCompleted)
	if err != nil {
		return int(n1), fmt.Errorf("failed to archive excess deployments: %w", err)
	}
	n2, _ := res2.RowsAffected()

	return int(n1 + n2), nil
}

// ListArchivedDeployments supports the admin listing of archived
// deployment records.
func (s *Store) ListArchivedDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, owner, kind, status, fee_charged, COALESCE(container_id, ''), container_create_attempted, config_blob,
		       install_attempts, refund_attempts, COALESCE(last_error, ''), created_at, last_update_time
		FROM deployment_records_archive
		ORDER BY archived_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived deployments: %w", err)
	}
	defer rows.Close()

	var out []domain.DeploymentRecord
	for rows.Next() {
		var d domain.DeploymentRecord
		var blob []byte
		if err := rows.Scan(
			&d.ID, &d.Owner, &d.Kind, &d.Status, &d.FeeCharged, &d.ContainerID, &d.ContainerCreateAttempted, &blob,
			&d.InstallAttempts, &d.RefundAttempts, &d.LastError, &d.CreatedAt, &d.LastUpdateTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archived deployment: %w", err)
		}
		d.ConfigBlob = blob
		out = append(out, d)
	}
	return out, rows.Err()
}
