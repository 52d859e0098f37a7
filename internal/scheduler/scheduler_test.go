package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"factory/internal/cache"
	"factory/internal/codeimage"
	"factory/internal/containerport"
	"factory/internal/deployment"
	"factory/internal/domain"
	"factory/internal/keyedlock"
	"factory/internal/ledger"
	"factory/internal/ledgerport"
	"factory/internal/notify"
	"factory/internal/storetest"
	"factory/internal/strategy"
)

func newTestScheduler(t *testing.T, retention time.Duration) (*Scheduler, *storetest.Fake) {
	t.Helper()
	s := storetest.New()
	logger := logrus.New()
	logger.SetOutput(nullWriter{})

	l := ledger.New(s, ledgerport.NewStub(), cache.NewScalarCache(time.Minute),
		notify.NewProducer([]string{"localhost:9092"}, "factory-events", 1_000_000, logger),
		keyedlock.New(), 1, 1_000_000, logger)
	strategies := strategy.New(s, logger)
	images := codeimage.New(s, nil, "bucket", logger)

	machine := deployment.New(s, l, images, strategies, containerport.NewStub(), keyedlock.New(), notify.NewProducer([]string{"localhost:9092"}, "factory-events", 1_000_000, logger), deployment.Config{
		MaxInstallAttempts: 3,
		RetryBaseInterval:  time.Millisecond,
		RetryCapInterval:   10 * time.Millisecond,
		PendingTTL:         time.Hour,
		DeploymentTTL:      time.Hour,
		StuckTTL:           time.Hour,
	}, logger)

	sched, err := New(s, machine, time.Hour, 100, retention, 1000, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sched, s
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRunTick_AdvancesEveryActiveDeployment(t *testing.T) {
	sched, s := newTestScheduler(t, time.Hour)
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, &domain.UserAccount{Owner: "alice", Balance: 100}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if err := s.InsertDeployment(ctx, &domain.DeploymentRecord{
		ID: "d1", Owner: "alice", Kind: domain.StrategyDCA, Status: domain.StatusPendingPayment, FeeCharged: 10,
	}); err != nil {
		t.Fatalf("InsertDeployment() error = %v", err)
	}

	sched.runTick(ctx)

	rec, err := s.GetDeployment(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDeployment() error = %v", err)
	}
	if rec.Status != domain.StatusPendingContainer {
		t.Fatalf("status = %s, want pending_container after one tick", rec.Status)
	}
}

func TestRunTick_ContinuesAfterAStepFailure(t *testing.T) {
	sched, s := newTestScheduler(t, time.Hour)
	ctx := context.Background()

	if err := s.InsertDeployment(ctx, &domain.DeploymentRecord{
		ID: "d2", Owner: "bob", Kind: domain.StrategyDCA, Status: domain.StatusPendingPayment, FeeCharged: 10,
	}); err != nil {
		t.Fatalf("InsertDeployment() error = %v", err)
	}

	// runTick should not panic or block even though bob has zero balance
	// (stepPendingPayment fails) — the tick just logs and moves on.
	sched.runTick(ctx)

	rec, err := s.GetDeployment(ctx, "d2")
	if err != nil {
		t.Fatalf("GetDeployment() error = %v", err)
	}
	if rec.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed (insufficient funds)", rec.Status)
	}
}

func TestRunTick_ArchivesTerminalDeployments(t *testing.T) {
	sched, s := newTestScheduler(t, 0)
	ctx := context.Background()

	if err := s.InsertDeployment(ctx, &domain.DeploymentRecord{
		ID: "d3", Owner: "carol", Kind: domain.StrategyDCA, Status: domain.StatusRunning,
	}); err != nil {
		t.Fatalf("InsertDeployment() error = %v", err)
	}

	sched.runTick(ctx)

	if _, err := s.GetDeployment(ctx, "d3"); err == nil {
		t.Fatalf("GetDeployment() should fail once the record has been archived")
	}

	archived, err := s.ListArchivedDeployments(ctx, 10)
	if err != nil {
		t.Fatalf("ListArchivedDeployments() error = %v", err)
	}
	if len(archived) != 1 || archived[0].ID != "d3" {
		t.Fatalf("ListArchivedDeployments() = %v, want [d3]", archived)
	}
}
