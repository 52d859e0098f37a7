package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/storetest"
)

func newTestRegistry() (*Registry, *storetest.Fake) {
	s := storetest.New()
	logger := logrus.New()
	logger.SetOutput(nullWriter{})
	return New(s, logger), s
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestEnsureSeeded_SeedsFirstAdmin(t *testing.T) {
	r, s := newTestRegistry()
	ctx := context.Background()

	if err := r.EnsureSeeded(ctx, "alice"); err != nil {
		t.Fatalf("EnsureSeeded() error = %v", err)
	}

	ok, err := s.IsAdmin(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("alice should be seeded as admin, IsAdmin() = %v, %v", ok, err)
	}

	if err := r.EnsureSeeded(ctx, "bob"); err != nil {
		t.Fatalf("second EnsureSeeded() error = %v", err)
	}
	ok, _ = s.IsAdmin(ctx, "bob")
	if ok {
		t.Fatalf("bob should not be seeded once an admin already exists")
	}
}

func TestAddAdmin_RequiresCallerToBeAdmin(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	err := r.AddAdmin(ctx, "nobody", "carol")
	if !errors.Is(err, apperrors.ErrNotAdmin) {
		t.Fatalf("AddAdmin() error = %v, want ErrNotAdmin", err)
	}
}

func TestRemoveAdmin_RefusesToEmptyTheSet(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	if err := r.EnsureSeeded(ctx, "alice"); err != nil {
		t.Fatalf("EnsureSeeded() error = %v", err)
	}

	err := r.RemoveAdmin(ctx, "alice", "alice")
	if !errors.Is(err, apperrors.ErrLastAdmin) {
		t.Fatalf("RemoveAdmin() error = %v, want ErrLastAdmin", err)
	}
}

func TestRemoveAdmin_AllowsRemovalWhenMultipleAdminsExist(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	if err := r.EnsureSeeded(ctx, "alice"); err != nil {
		t.Fatalf("EnsureSeeded() error = %v", err)
	}
	if err := r.AddAdmin(ctx, "alice", "bob"); err != nil {
		t.Fatalf("AddAdmin() error = %v", err)
	}

	if err := r.RemoveAdmin(ctx, "alice", "bob"); err != nil {
		t.Fatalf("RemoveAdmin() error = %v", err)
	}

	admins, err := r.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins() error = %v", err)
	}
	if len(admins) != 1 || admins[0] != "alice" {
		t.Fatalf("ListAdmins() = %v, want [alice]", admins)
	}
}
