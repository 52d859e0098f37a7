// Package identity implements the Identity & Role Registry (C2): the
// admin set and the helpers that gate admin-only operations.
package identity

import (
	"context"

	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/store"
)

// Registry is the Identity & Role Registry.
type Registry struct {
	store  store.Store
	logger *logrus.Logger
}

// New creates a Registry backed by store.
func New(s store.Store, logger *logrus.Logger) *Registry {
	return &Registry{store: s, logger: logger}
}

// IsAdmin reports whether owner is a current admin.
func (r *Registry) IsAdmin(ctx context.Context, owner string) (bool, error) {
	return r.store.IsAdmin(ctx, owner)
}

// EnsureSeeded seeds owner as the sole admin if the admin set is currently
// empty, so the first identity to call any admin endpoint (RequireAdmin
// runs this on every admin route, reads included) becomes the Factory's
// administrator. There is no process-init moment with a known caller
// identity, so seeding happens lazily on the first admin request instead.
// The count and the insert run in one store transaction, so concurrent
// first callers cannot both be seeded.
func (r *Registry) EnsureSeeded(ctx context.Context, owner string) error {
	return r.store.WithTx(ctx, func(tx store.Store) error {
		count, err := tx.AdminCount(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.AddAdmin(ctx, owner); err != nil {
			return err
		}
		r.logger.Infof("Seeded %s as the first admin", owner)
		return nil
	})
}

// AddAdmin adds newAdmin to the set. caller must already be an admin.
func (r *Registry) AddAdmin(ctx context.Context, caller, newAdmin string) error {
	if ok, err := r.store.IsAdmin(ctx, caller); err != nil {
		return err
	} else if !ok {
		return apperrors.ErrNotAdmin
	}
	if err := r.store.AddAdmin(ctx, newAdmin); err != nil {
		return err
	}
	r.logger.Infof("%s added %s as admin", caller, newAdmin)
	return nil
}

// RemoveAdmin removes target from the set, refusing to ever empty it.
func (r *Registry) RemoveAdmin(ctx context.Context, caller, target string) error {
	if ok, err := r.store.IsAdmin(ctx, caller); err != nil {
		return err
	} else if !ok {
		return apperrors.ErrNotAdmin
	}

	return r.store.WithTx(ctx, func(tx store.Store) error {
		count, err := tx.AdminCount(ctx)
		if err != nil {
			return err
		}
		if count <= 1 {
			return apperrors.ErrLastAdmin
		}
		if err := tx.RemoveAdmin(ctx, target); err != nil {
			return err
		}
		r.logger.Infof("%s removed %s as admin", caller, target)
		return nil
	})
}

// ListAdmins returns every current admin.
func (r *Registry) ListAdmins(ctx context.Context) ([]string, error) {
	return r.store.ListAdmins(ctx)
}
