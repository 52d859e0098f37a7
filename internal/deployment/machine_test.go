package deployment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/cache"
	"factory/internal/codeimage"
	"factory/internal/containerport"
	"factory/internal/domain"
	"factory/internal/keyedlock"
	"factory/internal/ledger"
	"factory/internal/ledgerport"
	"factory/internal/notify"
	"factory/internal/storetest"
	"factory/internal/strategy"
)

var errAmbiguousCreate = errors.New("stub: create timed out before a response arrived")

func newTestMachine(t *testing.T) (*Machine, *storetest.Fake, *containerport.Stub) {
	t.Helper()
	return newTestMachineWithConfig(t, Config{
		MaxInstallAttempts: 3,
		RetryBaseInterval:  time.Millisecond,
		RetryCapInterval:   10 * time.Millisecond,
		PendingTTL:         time.Hour,
		DeploymentTTL:      time.Hour,
		StuckTTL:           time.Hour,
	})
}

func newTestMachineWithConfig(t *testing.T, cfg Config) (*Machine, *storetest.Fake, *containerport.Stub) {
	t.Helper()
	s := storetest.New()
	logger := logrus.New()
	logger.SetOutput(silentWriter{})

	ledgerPort := ledgerport.NewStub()
	containerPort := containerport.NewStub()
	notifier := notify.NewProducer([]string{"localhost:9092"}, "factory-events", 1_000_000, logger)
	locks := keyedlock.New()

	l := ledger.New(s, ledgerPort, cache.NewScalarCache(time.Minute), notifier, locks, 1, 1_000_000, logger)
	strategies := strategy.New(s, logger)
	images := codeimage.New(s, nil, "bucket", logger)
	_ = images

	// publish a code image record directly, bypassing S3, since these
	// tests only exercise the state machine's control flow
	if err := s.PutCodeImage(context.Background(), &domain.CodeImage{
		Kind: domain.StrategySelfHedging, VersionTag: "v1", ObjectKey: "code-images/self_hedging/v1.bin",
	}); err != nil {
		t.Fatalf("seed code image: %v", err)
	}

	m := New(s, l, images, strategies, containerPort, locks, notifier, cfg, logger)

	return m, s, containerPort
}

type silentWriter struct{}

func (silentWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAdvance_HappyPathReachesRunning(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, &domain.UserAccount{Owner: "alice", Balance: 100}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	rec, err := m.CreateDeployment(ctx, "d1", "alice", domain.StrategySelfHedging, []byte(`{}`))
	if err != nil {
		t.Fatalf("CreateDeployment() error = %v", err)
	}

	for i := 0; i < 4 && rec.Status != domain.StatusRunning; i++ {
		if err := m.Advance(ctx, "d1"); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		rec, err = m.Get(ctx, "d1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}

	if rec.Status != domain.StatusRunning {
		t.Fatalf("final status = %s, want running", rec.Status)
	}
}

// TestCreateDeployment_InsufficientFundsPersistsNothing covers the seed
// scenario where a request's fee exceeds the caller's balance: the fee
// debit must fail before any record is written, so the caller gets
// CodeInsufficient back directly and neither a DeploymentRecord nor a
// TransactionRecord is ever created.
func TestCreateDeployment_InsufficientFundsPersistsNothing(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()

	// bob has no account, so any positive fee exceeds his zero balance
	if err := s.SetDeploymentFee(ctx, 100); err != nil {
		t.Fatalf("seed fee: %v", err)
	}

	if _, err := m.CreateDeployment(ctx, "d2", "bob", domain.StrategyDCA, []byte(`{}`)); err == nil {
		t.Fatalf("CreateDeployment() expected an insufficient-funds error")
	} else if got := apperrors.CodeOf(err); got != apperrors.CodeInsufficient {
		t.Fatalf("CreateDeployment() error code = %s, want %s", got, apperrors.CodeInsufficient)
	}

	if _, err := s.GetDeployment(ctx, "d2"); err == nil {
		t.Fatalf("GetDeployment() should fail, no record should have been persisted")
	}
	txs, err := s.ListTransactions(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("ListTransactions() = %v, want none for a failed fee debit", txs)
	}
}

func TestAdvance_PersistentInstallFailureMovesToRefund(t *testing.T) {
	m, s, containerPort := newTestMachine(t)
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, &domain.UserAccount{Owner: "carol", Balance: 100}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	containerPort.AlwaysTemp = true

	if _, err := m.CreateDeployment(ctx, "d3", "carol", domain.StrategySelfHedging, []byte(`{}`)); err != nil {
		t.Fatalf("CreateDeployment() error = %v", err)
	}

	// PendingContainer -> Installing: container.create succeeds, only
	// install fails.
	if err := m.Advance(ctx, "d3"); err != nil {
		t.Fatalf("Advance() (create) error = %v", err)
	}

	// Exhaust install attempts against a container port that always fails
	// temporarily, until the record escalates to refund_pending.
	var rec *domain.DeploymentRecord
	var err error
	for i := 0; i < 5; i++ {
		_ = m.Advance(ctx, "d3")
		rec, err = m.Get(ctx, "d3")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if rec.Status == domain.StatusRefundPending {
			break
		}
	}

	if rec.Status != domain.StatusRefundPending {
		t.Fatalf("status = %s, want refund_pending after exhausting install attempts", rec.Status)
	}
	if rec.InstallAttempts != 3 {
		t.Fatalf("install_attempts = %d, want 3 (maxInstallAttempts)", rec.InstallAttempts)
	}

	// Let the refund itself succeed now and confirm it completes.
	if err := m.Advance(ctx, "d3"); err != nil {
		t.Fatalf("Advance() (refund) error = %v", err)
	}
	rec, err = m.Get(ctx, "d3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != domain.StatusRefunded {
		t.Fatalf("status = %s, want refunded", rec.Status)
	}
}

// TestAdvance_InstallAttemptsCountsTheSucceedingCall covers the case where
// install fails temporarily twice and then succeeds: the final, successful
// call must still be counted, so install_attempts ends at 3, not 2.
func TestAdvance_InstallAttemptsCountsTheSucceedingCall(t *testing.T) {
	m, s, containerPort := newTestMachine(t)
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, &domain.UserAccount{Owner: "dana", Balance: 100}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	containerPort.FailInstallN = 2

	if _, err := m.CreateDeployment(ctx, "d4", "dana", domain.StrategySelfHedging, []byte(`{}`)); err != nil {
		t.Fatalf("CreateDeployment() error = %v", err)
	}

	var rec *domain.DeploymentRecord
	var err error
	for i := 0; i < 5 && (rec == nil || rec.Status != domain.StatusRunning); i++ {
		if err := m.Advance(ctx, "d4"); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		rec, err = m.Get(ctx, "d4")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}

	if rec.Status != domain.StatusRunning {
		t.Fatalf("status = %s, want running", rec.Status)
	}
	if rec.InstallAttempts != 3 {
		t.Fatalf("install_attempts = %d, want 3 (2 failures + the succeeding call)", rec.InstallAttempts)
	}
}

// TestAdvance_AmbiguousCreateNeverRetriesAndEscalatesAfterStuckTTL covers
// the at-most-once contract for container.create: an ambiguous (Temporary)
// failure must not be retried, only waited out until StuckTTL elapses.
func TestAdvance_AmbiguousCreateNeverRetriesAndEscalatesAfterStuckTTL(t *testing.T) {
	m, s, containerPort := newTestMachineWithConfig(t, Config{
		MaxInstallAttempts: 3,
		RetryBaseInterval:  time.Millisecond,
		RetryCapInterval:   10 * time.Millisecond,
		PendingTTL:         time.Hour,
		DeploymentTTL:      time.Hour,
		StuckTTL:           10 * time.Millisecond,
	})
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, &domain.UserAccount{Owner: "erin", Balance: 100}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	containerPort.CreateResult = &containerport.Error{Class: containerport.Temporary, Err: errAmbiguousCreate}

	if _, err := m.CreateDeployment(ctx, "d5", "erin", domain.StrategySelfHedging, []byte(`{}`)); err != nil {
		t.Fatalf("CreateDeployment() error = %v", err)
	}

	// PendingContainer: create() is attempted exactly once here.
	if err := m.Advance(ctx, "d5"); err != nil {
		t.Fatalf("Advance() (create attempt) error = %v", err)
	}
	rec, err := m.Get(ctx, "d5")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !rec.ContainerCreateAttempted {
		t.Fatalf("ContainerCreateAttempted = false, want true after the first ambiguous attempt")
	}
	if rec.Status != domain.StatusPendingContainer {
		t.Fatalf("status = %s, want pending_container while waiting out StuckTTL", rec.Status)
	}

	// A second Advance before StuckTTL elapses must not call Create again.
	if err := m.Advance(ctx, "d5"); err != nil {
		t.Fatalf("Advance() (still waiting) error = %v", err)
	}
	if containerPort.CreateCalls != 1 {
		t.Fatalf("Create() called %d times, want exactly 1", containerPort.CreateCalls)
	}

	time.Sleep(20 * time.Millisecond)

	if err := m.Advance(ctx, "d5"); err != nil {
		t.Fatalf("Advance() (stuck ttl elapsed) error = %v", err)
	}
	if containerPort.CreateCalls != 1 {
		t.Fatalf("Create() called %d times after StuckTTL elapsed, want exactly 1 (never retried)", containerPort.CreateCalls)
	}
	rec, err = m.Get(ctx, "d5")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != domain.StatusRefundPending {
		t.Fatalf("status = %s, want refund_pending once StuckTTL has elapsed", rec.Status)
	}
}

// TestAdvance_PendingPaymentExpiresAfterPendingTTL covers a record that
// somehow still sits in PendingPayment (CreateDeployment no longer
// leaves one there, but Advance must still reconcile one correctly if
// it shows up, e.g. from data seeded outside the normal request path).
func TestAdvance_PendingPaymentExpiresAfterPendingTTL(t *testing.T) {
	m, s, _ := newTestMachineWithConfig(t, Config{
		MaxInstallAttempts: 3,
		RetryBaseInterval:  time.Millisecond,
		RetryCapInterval:   10 * time.Millisecond,
		PendingTTL:         10 * time.Millisecond,
		DeploymentTTL:      time.Hour,
		StuckTTL:           time.Hour,
	})
	ctx := context.Background()

	if err := s.InsertDeployment(ctx, &domain.DeploymentRecord{
		ID: "d6", Owner: "frank", Kind: domain.StrategyDCA, Status: domain.StatusPendingPayment, FeeCharged: 10,
	}); err != nil {
		t.Fatalf("InsertDeployment() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if err := m.Advance(ctx, "d6"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	rec, err := m.Get(ctx, "d6")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed once PendingTTL has elapsed", rec.Status)
	}
}

func TestAdvance_NonTerminalDeploymentExpiresAfterDeploymentTTL(t *testing.T) {
	m, s, _ := newTestMachineWithConfig(t, Config{
		MaxInstallAttempts: 3,
		RetryBaseInterval:  time.Millisecond,
		RetryCapInterval:   10 * time.Millisecond,
		PendingTTL:         time.Hour,
		DeploymentTTL:      10 * time.Millisecond,
		StuckTTL:           time.Hour,
	})
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, &domain.UserAccount{Owner: "grace", Balance: 100}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	if _, err := m.CreateDeployment(ctx, "d7", "grace", domain.StrategySelfHedging, []byte(`{}`)); err != nil {
		t.Fatalf("CreateDeployment() error = %v", err)
	}

	// The fee is already charged at this point (CreateDeployment debits
	// it before the record ever exists), so the clock that matters here
	// is DeploymentTTL, counted from creation.
	time.Sleep(20 * time.Millisecond)

	if err := m.Advance(ctx, "d7"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	rec, err := m.Get(ctx, "d7")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != domain.StatusRefundPending {
		t.Fatalf("status = %s, want refund_pending once DeploymentTTL has elapsed (fee already charged)", rec.Status)
	}
}
