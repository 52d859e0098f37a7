package strategy

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"factory/internal/domain"
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

func TestRegister_UpdatesTheInMemoryIndex(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, &domain.StrategyMetadata{ContainerID: "c1", Owner: "alice", Kind: domain.StrategyDCA}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	out, err := r.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(out) != 1 || out[0].ContainerID != "c1" {
		t.Fatalf("ListByOwner() = %v, want one entry for c1", out)
	}
}

func TestDeregister_RemovesFromTheIndex(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, &domain.StrategyMetadata{ContainerID: "c1", Owner: "alice", Kind: domain.StrategyDCA}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Deregister(ctx, "c1"); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}

	out, err := r.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("ListByOwner() = %v, want empty after deregister", out)
	}
}

func TestRebuild_RestoresTheIndexFromTheStore(t *testing.T) {
	r, s := newTestRegistry()
	ctx := context.Background()

	if err := s.InsertStrategy(ctx, &domain.StrategyMetadata{ContainerID: "c1", Owner: "alice", Kind: domain.StrategyDCA}); err != nil {
		t.Fatalf("InsertStrategy() error = %v", err)
	}

	if err := r.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	out, err := r.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(out) != 1 || out[0].ContainerID != "c1" {
		t.Fatalf("ListByOwner() after Rebuild = %v, want one entry for c1", out)
	}
}

func TestListByOwner_FallsBackToStoreWhenIndexIsEmpty(t *testing.T) {
	r, s := newTestRegistry()
	ctx := context.Background()

	if err := s.InsertStrategy(ctx, &domain.StrategyMetadata{ContainerID: "c1", Owner: "alice", Kind: domain.StrategyDCA}); err != nil {
		t.Fatalf("InsertStrategy() error = %v", err)
	}

	out, err := r.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(out) != 1 || out[0].ContainerID != "c1" {
		t.Fatalf("ListByOwner() = %v, want fallback to store to find c1", out)
	}
}
