// Package ledger implements the Account Ledger: balance mutations, fee
// debits, refund credits and the append-only transaction history for
// the Factory's single-token balance/fee/refund model.
package ledger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/cache"
	"factory/internal/domain"
	"factory/internal/keyedlock"
	"factory/internal/ledgerport"
	"factory/internal/notify"
	"factory/internal/store"
)

// Ledger is the Account Ledger service.
type Ledger struct {
	store       store.Store
	ledgerPort  ledgerport.Port
	feeCache    *cache.ScalarCache
	notifier    *notify.Producer
	locks       *keyedlock.Map
	minDeposit  int64
	maxDeposit  int64
	logger      *logrus.Logger
}

// New creates a Ledger service.
func New(
	s store.Store,
	port ledgerport.Port,
	feeCache *cache.ScalarCache,
	notifier *notify.Producer,
	locks *keyedlock.Map,
	minDeposit, maxDeposit int64,
	logger *logrus.Logger,
) *Ledger {
	return &Ledger{
		store:      s,
		ledgerPort: port,
		feeCache:   feeCache,
		notifier:   notifier,
		locks:      locks,
		minDeposit: minDeposit,
		maxDeposit: maxDeposit,
		logger:     logger,
	}
}

// Balance returns owner's current platform-token balance. An owner with
// no account yet has a zero balance, not an error.
func (l *Ledger) Balance(ctx context.Context, owner string) (int64, error) {
	acc, err := l.store.GetAccount(ctx, owner)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return 0, nil
		}
		return 0, err
	}
	return acc.Balance, nil
}

// AccountInfo returns owner's full account record, defaulting to a fresh
// zero-balance view if owner has never deposited.
func (l *Ledger) AccountInfo(ctx context.Context, owner string) (*domain.UserAccount, error) {
	acc, err := l.store.GetAccount(ctx, owner)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return &domain.UserAccount{Owner: owner}, nil
		}
		return nil, err
	}
	return acc, nil
}

// Deposit claims amount of platform token for owner, verifying the claim
// against the external ledger before crediting the mirrored balance.
func (l *Ledger) Deposit(ctx context.Context, owner string, amount int64, memo string) (int64, error) {
	if amount < l.minDeposit || amount > l.maxDeposit {
		return 0, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("amount must be between %d and %d", l.minDeposit, l.maxDeposit))
	}

	if err := l.ledgerPort.VerifyDeposit(ctx, owner, amount, memo); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeLedgerFailure, "deposit verification failed", err)
	}

	var newBalance int64
	l.locks.WithLock(owner, func() {
		newBalance, _ = l.creditAndRecord(ctx, owner, amount, domain.TxDeposit, "", memo)
	})

	if err := l.notifier.NotifyLedgerMovement(ctx, owner, string(domain.TxDeposit), amount); err != nil {
		l.logger.Warnf("Failed to send deposit notification: %v", err)
	}

	l.logger.Infof("Deposit completed: owner=%s amount=%d", owner, amount)
	return newBalance, nil
}

// Withdraw moves amount out of owner's mirrored balance and out through
// the external ledger to owner.
func (l *Ledger) Withdraw(ctx context.Context, owner string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}

	var newBalance int64
	var txErr error
	l.locks.WithLock(owner, func() {
		acc, err := l.store.GetAccount(ctx, owner)
		if err != nil {
			if apperrors.CodeOf(err) != apperrors.CodeNotFound {
				txErr = err
				return
			}
			acc = &domain.UserAccount{Owner: owner}
		}
		if acc.Balance < amount {
			txErr = apperrors.ErrInsufficientFunds
			return
		}
		if _, err := l.ledgerPort.Transfer(ctx, owner, amount); err != nil {
			txErr = apperrors.Wrap(apperrors.CodeLedgerFailure, "withdrawal transfer failed", err)
			return
		}
		newBalance, txErr = l.debitAndRecord(ctx, owner, amount, domain.TxWithdraw, "", "")
	})
	if txErr != nil {
		return 0, txErr
	}

	if err := l.notifier.NotifyLedgerMovement(ctx, owner, string(domain.TxWithdraw), amount); err != nil {
		l.logger.Warnf("Failed to send withdrawal notification: %v", err)
	}

	l.logger.Infof("Withdrawal completed: owner=%s amount=%d", owner, amount)
	return newBalance, nil
}

// DeploymentFee returns the current flat per-deployment fee, using the
// settings cache to avoid a database round trip on the request hot path.
func (l *Ledger) DeploymentFee(ctx context.Context) (int64, error) {
	if fee, ok := l.feeCache.Get(); ok {
		return fee, nil
	}
	fee, err := l.store.GetDeploymentFee(ctx)
	if err != nil {
		return 0, err
	}
	l.feeCache.Set(fee)
	return fee, nil
}

// SetDeploymentFee updates the flat per-deployment fee (admin op).
func (l *Ledger) SetDeploymentFee(ctx context.Context, fee int64) error {
	if fee < 0 {
		return apperrors.New(apperrors.CodeValidation, "fee must not be negative")
	}
	if err := l.store.SetDeploymentFee(ctx, fee); err != nil {
		return err
	}
	l.feeCache.Invalidate()
	return nil
}

// DebitFee charges owner the deployment fee for deploymentID, failing with
// CodeInsufficient if the balance can't cover it. It is idempotent on
// deploymentID: if a fee has already been charged for this deployment
// (e.g. a retry after a crash between the debit and whatever the caller
// persists next), DebitFee is a no-op rather than a second charge.
func (l *Ledger) DebitFee(ctx context.Context, owner string, amount int64, deploymentID string) error {
	var err error
	l.locks.WithLock(owner, func() {
		err = l.store.WithTx(ctx, func(tx store.Store) error {
			charged, hasErr := tx.HasFeeCharge(ctx, deploymentID)
			if hasErr != nil {
				return hasErr
			}
			if charged {
				return nil
			}

			acc, getErr := tx.GetAccount(ctx, owner)
			if getErr != nil {
				if apperrors.CodeOf(getErr) != apperrors.CodeNotFound {
					return getErr
				}
				acc = &domain.UserAccount{Owner: owner}
			}
			if acc.Balance < amount {
				return apperrors.ErrInsufficientFunds
			}
			acc.Balance -= amount
			if err := tx.UpsertAccount(ctx, acc); err != nil {
				return err
			}

			inserted, insErr := tx.InsertFeeIfAbsent(ctx, &domain.TransactionRecord{
				Owner: owner, Amount: -amount, DeploymentID: deploymentID,
			})
			if insErr != nil {
				return fmt.Errorf("insert fee: %w", insErr)
			}
			if !inserted {
				// a concurrent attempt won the race; undo our balance change
				acc.Balance += amount
				return tx.UpsertAccount(ctx, acc)
			}
			return nil
		})
	})
	return err
}

// CreditRefund credits owner amount for a failed deploymentID, exactly
// once per deployment: a second call for the same deploymentID is a
// no-op, not an error, because the state machine may call it again
// after a crash before the waypoint for "refund already sent" was
// durably recorded.
func (l *Ledger) CreditRefund(ctx context.Context, owner string, amount int64, deploymentID string) error {
	l.locks.Lock(owner)
	defer l.locks.Unlock(owner)

	var credited bool
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		inserted, err := tx.InsertRefundIfAbsent(ctx, &domain.TransactionRecord{
			Owner: owner, Amount: amount, DeploymentID: deploymentID,
		})
		if err != nil {
			return fmt.Errorf("insert refund: %w", err)
		}
		if !inserted {
			return nil // already credited by a prior attempt
		}
		credited = true

		acc, err := tx.GetAccount(ctx, owner)
		if err != nil && apperrors.CodeOf(err) != apperrors.CodeNotFound {
			return err
		}
		if acc == nil {
			acc = &domain.UserAccount{Owner: owner}
		}
		acc.Balance += amount
		return tx.UpsertAccount(ctx, acc)
	})
	if err != nil {
		return err
	}
	if !credited {
		l.logger.Debugf("Refund for deployment %s already recorded, skipping", deploymentID)
		return nil
	}

	if err := l.notifier.NotifyLedgerMovement(ctx, owner, string(domain.TxRefund), amount); err != nil {
		l.logger.Warnf("Failed to send refund notification: %v", err)
	}
	l.logger.Infof("Refund credited: owner=%s amount=%d deployment=%s", owner, amount, deploymentID)
	return nil
}

// AdminAdjust applies an arbitrary signed balance correction, recorded as
// an admin_adjust transaction. amount may be negative.
func (l *Ledger) AdminAdjust(ctx context.Context, caller, target string, amount int64, memo string) (int64, error) {
	var newBalance int64
	var err error
	l.locks.WithLock(target, func() {
		if amount >= 0 {
			newBalance, err = l.creditAndRecord(ctx, target, amount, domain.TxAdminAdjust, "", memo)
			return
		}
		acc, getErr := l.store.GetAccount(ctx, target)
		if getErr != nil && apperrors.CodeOf(getErr) != apperrors.CodeNotFound {
			err = getErr
			return
		}
		if acc == nil || acc.Balance < -amount {
			err = apperrors.ErrInsufficientFunds
			return
		}
		newBalance, err = l.debitAndRecord(ctx, target, -amount, domain.TxAdminAdjust, "", memo)
	})
	if err != nil {
		return 0, err
	}
	l.logger.Infof("Admin adjust: %s adjusted %s by %d (%s)", caller, target, amount, memo)
	return newBalance, nil
}

// AdminWithdraw sends amount of platform token from the Factory's
// external-ledger treasury to to, audit-logged. Unlike Withdraw, it never
// touches any owner's mirrored balance — the treasury sits outside the
// owner->balance map entirely.
func (l *Ledger) AdminWithdraw(ctx context.Context, caller, to string, amount int64) (ledgerport.TxHandle, error) {
	if amount <= 0 {
		return "", apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}

	handle, err := l.ledgerPort.Transfer(ctx, to, amount)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeLedgerFailure, "admin withdrawal transfer failed", err)
	}

	l.logger.Infof("Admin withdrawal: %s sent %d to %s (tx=%s)", caller, amount, to, handle)
	return handle, nil
}

// History returns owner's most recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, owner string, limit int) ([]domain.TransactionRecord, error) {
	return l.store.ListTransactions(ctx, owner, limit)
}

func (l *Ledger) creditAndRecord(ctx context.Context, owner string, amount int64, kind domain.TransactionKind, deploymentID, memo string) (int64, error) {
	var newBalance int64
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetAccount(ctx, owner)
		if err != nil {
			if apperrors.CodeOf(err) != apperrors.CodeNotFound {
				return err
			}
			acc = &domain.UserAccount{Owner: owner}
		}
		acc.Balance += amount
		if err := tx.UpsertAccount(ctx, acc); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, &domain.TransactionRecord{
			Owner: owner, Kind: kind, Amount: amount, DeploymentID: deploymentID, Memo: memo,
		}); err != nil {
			return err
		}
		newBalance = acc.Balance
		return nil
	})
	return newBalance, err
}

func (l *Ledger) debitAndRecord(ctx context.Context, owner string, amount int64, kind domain.TransactionKind, deploymentID, memo string) (int64, error) {
	var newBalance int64
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		acc, err := tx.GetAccount(ctx, owner)
		if err != nil {
			return err
		}
		if acc.Balance < amount {
			return apperrors.ErrInsufficientFunds
		}
		acc.Balance -= amount
		if err := tx.UpsertAccount(ctx, acc); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, &domain.TransactionRecord{
			Owner: owner, Kind: kind, Amount: -amount, DeploymentID: deploymentID, Memo: memo,
		}); err != nil {
			return err
		}
		newBalance = acc.Balance
		return nil
	})
	return newBalance, err
}
