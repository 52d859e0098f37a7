package postgres

import (
	"context"
	"fmt"
)

// IsAdmin reports whether owner is in the admin set.
func (s *Store) IsAdmin(ctx context.Context, owner string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM admin_set WHERE owner = $1)`, owner).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return exists, nil
}

// AddAdmin adds owner to the admin set. Inserting an existing admin is a
// no-op, not an error.
func (s *Store) AddAdmin(ctx context.Context, owner string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO admin_set (owner, added_at) VALUES ($1, CURRENT_TIMESTAMP)
		ON CONFLICT (owner) DO NOTHING
	`, owner)
	if err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}
	return nil
}

// RemoveAdmin removes owner from the admin set. Callers must enforce the
// "never empty the set" invariant themselves, typically inside a WithTx
// alongside AdminCount, since Postgres has no portable way to express it
// as a single CHECK constraint here.
func (s *Store) RemoveAdmin(ctx context.Context, owner string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM admin_set WHERE owner = $1`, owner)
	if err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}
	return nil
}

// ListAdmins returns every identity currently in the admin set.
func (s *Store) ListAdmins(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT owner FROM admin_set ORDER BY added_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

// AdminCount returns the size of the admin set.
func (s *Store) AdminCount(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_set`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}
