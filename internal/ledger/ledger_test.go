package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/cache"
	"factory/internal/domain"
	"factory/internal/keyedlock"
	"factory/internal/ledgerport"
	"factory/internal/notify"
	"factory/internal/storetest"
)

func newTestLedger(t *testing.T) (*Ledger, *storetest.Fake, *ledgerport.Stub) {
	t.Helper()
	s := storetest.New()
	port := ledgerport.NewStub()
	logger := logrus.New()
	logger.SetOutput(testWriter{t})
	l := New(s, port, cache.NewScalarCache(time.Minute), notify.NewProducer([]string{"localhost:9092"}, "factory-events", 1_000_000, logger), keyedlock.New(), 1, 1_000_000, logger)
	return l, s, port
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDeposit_CreditsBalance(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	balance, err := l.Deposit(ctx, "alice", 100, "initial")
	if err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if balance != 100 {
		t.Fatalf("balance = %d, want 100", balance)
	}

	got, err := l.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if got != 100 {
		t.Fatalf("Balance() = %d, want 100", got)
	}
}

func TestDeposit_RejectsAmountOutOfBounds(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Deposit(ctx, "alice", 0, ""); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("Deposit(0) error = %v, want validation error", err)
	}
}

func TestWithdraw_RejectsInsufficientBalance(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Withdraw(ctx, "alice", 50); apperrors.CodeOf(err) != apperrors.CodeInsufficient {
		t.Fatalf("Withdraw() error = %v, want insufficient funds", err)
	}
}

func TestCreditRefund_IsIdempotent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.CreditRefund(ctx, "alice", 10, "deploy-1"); err != nil {
		t.Fatalf("first CreditRefund() error = %v", err)
	}
	if err := l.CreditRefund(ctx, "alice", 10, "deploy-1"); err != nil {
		t.Fatalf("second CreditRefund() error = %v", err)
	}

	balance, err := l.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 10 {
		t.Fatalf("balance = %d, want 10 (refund must not double-credit)", balance)
	}
}

func TestDebitFee_FailsWhenBalanceTooLow(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if err := l.DebitFee(ctx, "bob", 50, "deploy-2"); apperrors.CodeOf(err) != apperrors.CodeInsufficient {
		t.Fatalf("DebitFee() error = %v, want insufficient funds", err)
	}
}

func TestDebitFee_IsIdempotent(t *testing.T) {
	l, s, _ := newTestLedger(t)
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, &domain.UserAccount{Owner: "carol", Balance: 100}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	if err := l.DebitFee(ctx, "carol", 30, "deploy-3"); err != nil {
		t.Fatalf("first DebitFee() error = %v", err)
	}
	if err := l.DebitFee(ctx, "carol", 30, "deploy-3"); err != nil {
		t.Fatalf("second DebitFee() error = %v", err)
	}

	balance, err := l.Balance(ctx, "carol")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance != 70 {
		t.Fatalf("balance = %d, want 70 (fee must not double-charge)", balance)
	}

	txs, err := l.History(ctx, "carol", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	feeCount := 0
	for _, tx := range txs {
		if tx.Kind == domain.TxFee {
			feeCount++
		}
	}
	if feeCount != 1 {
		t.Fatalf("fee transaction count = %d, want exactly 1", feeCount)
	}
}

func TestSetDeploymentFee_InvalidatesCache(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.DeploymentFee(ctx); err != nil {
		t.Fatalf("DeploymentFee() error = %v", err)
	}
	if err := l.SetDeploymentFee(ctx, 42); err != nil {
		t.Fatalf("SetDeploymentFee() error = %v", err)
	}
	fee, err := l.DeploymentFee(ctx)
	if err != nil {
		t.Fatalf("DeploymentFee() error = %v", err)
	}
	if fee != 42 {
		t.Fatalf("DeploymentFee() = %d, want 42", fee)
	}
}
