package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"factory/internal/apperrors"
	"factory/internal/domain"
)

// GetCodeImage returns the current published binary reference for kind.
func (s *Store) GetCodeImage(ctx context.Context, kind domain.StrategyKind) (*domain.CodeImage, error) {
	var img domain.CodeImage
	err := s.q.QueryRowContext(ctx, `
		SELECT kind, version_tag, object_key, size_bytes, checksum, uploaded_by, uploaded_at
		FROM code_images WHERE kind = $1
	`, kind).Scan(&img.Kind, &img.VersionTag, &img.ObjectKey, &img.SizeBytes, &img.Checksum, &img.UploadedBy, &img.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get code image: %w", err)
	}
	return &img, nil
}

// PutCodeImage publishes a new binary reference for kind, replacing any
// prior one. In-flight deployments already mid-install are unaffected
// since they resolved their object key at install time, not retroactively.
func (s *Store) PutCodeImage(ctx context.Context, img *domain.CodeImage) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO code_images (kind, version_tag, object_key, size_bytes, checksum, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (kind) DO UPDATE SET
			version_tag = $2, object_key = $3, size_bytes = $4, checksum = $5,
			uploaded_by = $6, uploaded_at = CURRENT_TIMESTAMP
	`, img.Kind, img.VersionTag, img.ObjectKey, img.SizeBytes, img.Checksum, img.UploadedBy)
	if err != nil {
		return fmt.Errorf("failed to put code image: %w", err)
	}
	return nil
}
