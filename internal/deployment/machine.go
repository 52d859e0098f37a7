// Package deployment implements the Deployment State Machine: one
// Advance call performs exactly one suspension-crossing step for a
// single deployment, following a create -> install -> initialize
// pipeline with refund-with-retry handling on failure, driven by the
// reconciliation scheduler's tick-driven polling rather than a
// spawn-a-task-per-step model.
package deployment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"factory/internal/apperrors"
	"factory/internal/codeimage"
	"factory/internal/containerport"
	"factory/internal/domain"
	"factory/internal/keyedlock"
	"factory/internal/ledger"
	"factory/internal/notify"
	"factory/internal/store"
	"factory/internal/strategy"
)

// Machine drives deployment records through their state diagram.
type Machine struct {
	store        store.Store
	ledger       *ledger.Ledger
	codeImages   *codeimage.Registry
	strategies   *strategy.Registry
	containers   containerport.Port
	locks        *keyedlock.Map
	notifier     *notify.Producer

	maxInstallAttempts int
	retryBase          time.Duration
	retryCap           time.Duration
	pendingTTL         time.Duration
	deploymentTTL      time.Duration
	stuckTTL           time.Duration
	logger             *logrus.Logger
}

// Config bundles Machine's tunables.
type Config struct {
	MaxInstallAttempts int
	RetryBaseInterval  time.Duration
	RetryCapInterval   time.Duration

	// PendingTTL bounds how long a record may sit in PendingPayment before
	// it is cancelled outright.
	PendingTTL time.Duration
	// DeploymentTTL bounds how long a charged record may sit in
	// PendingContainer or Installing before it fails with a timeout
	// cause and is handed to the refund path. RefundPending is not bound
	// by it.
	DeploymentTTL time.Duration
	// StuckTTL bounds how long PendingContainer waits for an ambiguous
	// container.create result to resolve before giving up on it.
	StuckTTL time.Duration
}

// New creates a Machine.
func New(
	s store.Store,
	l *ledger.Ledger,
	codeImages *codeimage.Registry,
	strategies *strategy.Registry,
	containers containerport.Port,
	locks *keyedlock.Map,
	notifier *notify.Producer,
	cfg Config,
	logger *logrus.Logger,
) *Machine {
	return &Machine{
		store:              s,
		ledger:             l,
		codeImages:         codeImages,
		strategies:         strategies,
		containers:         containers,
		locks:              locks,
		notifier:           notifier,
		maxInstallAttempts: cfg.MaxInstallAttempts,
		retryBase:          cfg.RetryBaseInterval,
		retryCap:           cfg.RetryCapInterval,
		pendingTTL:         cfg.PendingTTL,
		deploymentTTL:      cfg.DeploymentTTL,
		stuckTTL:           cfg.StuckTTL,
		logger:             logger,
	}
}

// CreateDeployment charges owner the flat deployment fee and, only once
// that charge succeeds, opens a new deployment record already in
// PendingContainer, ready for the scheduler (or an immediate Advance) to
// drive forward. No record is ever persisted for a request whose fee
// cannot be charged — on CodeInsufficient the caller gets the error
// straight back and the store is never touched.
func (m *Machine) CreateDeployment(ctx context.Context, id, owner string, kind domain.StrategyKind, configBlob []byte) (*domain.DeploymentRecord, error) {
	if !domain.ValidStrategyKind(kind) {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown strategy kind %q", kind))
	}

	fee, err := m.ledger.DeploymentFee(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.ledger.DebitFee(ctx, owner, fee, id); err != nil {
		return nil, err
	}

	rec := &domain.DeploymentRecord{
		ID:         id,
		Owner:      owner,
		Kind:       kind,
		Status:     domain.StatusPendingContainer,
		FeeCharged: fee,
		ConfigBlob: configBlob,
	}
	if err := m.store.InsertDeployment(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Advance performs a single state transition for deploymentID. It is
// safe to call repeatedly and concurrently — per-deployment locking via
// locks admits one caller at a time; an overlapping call does not wait
// and returns ErrDeploymentLocked instead.
func (m *Machine) Advance(ctx context.Context, deploymentID string) error {
	locked := m.locks.TryLock(deploymentID)
	if !locked {
		return apperrors.ErrDeploymentLocked
	}
	defer m.locks.Unlock(deploymentID)

	rec, err := m.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}

	timedOut, err := m.checkTimeout(ctx, rec)
	if err != nil {
		return err
	}
	if timedOut {
		return nil
	}

	var stepErr error
	switch rec.Status {
	case domain.StatusPendingPayment:
		stepErr = m.stepPendingPayment(ctx, rec)
	case domain.StatusPendingContainer:
		stepErr = m.stepPendingContainer(ctx, rec)
	case domain.StatusInstalling:
		stepErr = m.stepInstalling(ctx, rec)
	case domain.StatusRefundPending:
		stepErr = m.stepRefundPending(ctx, rec)
	default:
		return fmt.Errorf("deployment %s in unhandled status %s", deploymentID, rec.Status)
	}

	if stepErr != nil {
		m.logger.Warnf("Advance step failed for %s (status=%s): %v", deploymentID, rec.Status, stepErr)
	}
	return stepErr
}

// ForceExecute resets a stuck deployment's retry clock and immediately
// retries the current step once, without resetting refund_attempts or
// bypassing the install attempt budget.
func (m *Machine) ForceExecute(ctx context.Context, deploymentID string) error {
	rec, err := m.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return apperrors.New(apperrors.CodeConflict, "deployment already reached a terminal state")
	}
	rec.LastUpdateTime = time.Time{}
	if err := m.store.UpdateDeployment(ctx, rec); err != nil {
		return err
	}
	return m.Advance(ctx, deploymentID)
}

// checkTimeout enforces the two age-based timeouts that apply regardless
// of which step a record is waiting on: a record stuck in PendingPayment
// past PendingTTL is cancelled outright (the fee was never charged, so
// there is nothing to refund); a record past DeploymentTTL in
// PendingContainer or Installing has already been charged and fails with
// a timeout cause, which routes it to refund. RefundPending is subject to
// neither timeout. Age is measured from CreatedAt (the
// original request time), not from the last update, so a deployment that
// keeps failing and retrying still ages out eventually.
func (m *Machine) checkTimeout(ctx context.Context, rec *domain.DeploymentRecord) (bool, error) {
	age := time.Since(rec.CreatedAt)
	switch rec.Status {
	case domain.StatusPendingPayment:
		if age > m.pendingTTL {
			return true, m.transition(ctx, rec, domain.StatusFailed, "pending payment exceeded its timeout, cancelled")
		}
	case domain.StatusPendingContainer, domain.StatusInstalling:
		if age > m.deploymentTTL {
			return true, m.failPermanently(ctx, rec, fmt.Errorf("%w: deployment exceeded its timeout", apperrors.ErrDeploymentTimeout))
		}
	}
	return false, nil
}

func (m *Machine) stepPendingPayment(ctx context.Context, rec *domain.DeploymentRecord) error {
	err := m.ledger.DebitFee(ctx, rec.Owner, rec.FeeCharged, rec.ID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeInsufficient {
			// nothing was charged, so there is nothing to refund
			return m.transition(ctx, rec, domain.StatusFailed, err.Error())
		}
		return err
	}
	return m.transition(ctx, rec, domain.StatusPendingContainer, "")
}

// stepPendingContainer calls containers.Create at most once per record.
// Create is non-idempotent, so a Temporary (ambiguous) failure does not
// retry the call — it leaves the record in PendingContainer with
// ContainerCreateAttempted set and waits for StuckTTL to elapse before
// giving up. A Permanent failure fails the record immediately, since no
// container was ever provisioned.
func (m *Machine) stepPendingContainer(ctx context.Context, rec *domain.DeploymentRecord) error {
	if rec.ContainerCreateAttempted {
		if time.Since(rec.LastUpdateTime) < m.stuckTTL {
			return nil // still waiting for the ambiguous result to resolve
		}
		return m.failPermanently(ctx, rec, fmt.Errorf("%w: %s", apperrors.ErrCreateAmbiguous, rec.LastError))
	}

	id, err := m.containers.Create(ctx)
	rec.ContainerCreateAttempted = true
	if err != nil {
		if !containerport.Temp(err) {
			return m.failPermanently(ctx, rec, err)
		}
		rec.LastError = err.Error()
		return m.store.UpdateDeployment(ctx, rec) // ambiguous result, wait out StuckTTL
	}

	rec.ContainerID = string(id)
	return m.transition(ctx, rec, domain.StatusInstalling, "")
}

func (m *Machine) stepInstalling(ctx context.Context, rec *domain.DeploymentRecord) error {
	img, err := m.codeImages.GetCodeImageMetadata(ctx, rec.Kind)
	if err != nil {
		return m.failPermanently(ctx, rec, fmt.Errorf("no code image published for %s: %w", rec.Kind, err))
	}

	rec.InstallAttempts++
	if err := m.containers.Install(ctx, containerport.ContainerID(rec.ContainerID), img.ObjectKey, rec.ConfigBlob); err != nil {
		return m.handleInstallError(ctx, rec, err)
	}

	if err := m.strategies.Register(ctx, &domain.StrategyMetadata{
		ContainerID:  rec.ContainerID,
		Owner:        rec.Owner,
		Kind:         rec.Kind,
		DeploymentID: rec.ID,
	}); err != nil {
		return err
	}

	return m.transition(ctx, rec, domain.StatusRunning, "")
}

// handleInstallError retries Temporary install failures against the same
// container up to maxInstallAttempts (counting every attempt, including
// the one that eventually succeeds), then escalates to refund.
func (m *Machine) handleInstallError(ctx context.Context, rec *domain.DeploymentRecord, err error) error {
	if !containerport.Temp(err) {
		return m.failPermanently(ctx, rec, err)
	}

	if rec.InstallAttempts >= m.maxInstallAttempts {
		return m.failPermanently(ctx, rec, fmt.Errorf("%w: %v", apperrors.ErrMaxInstallRetries, err))
	}

	rec.LastError = err.Error()
	return m.store.UpdateDeployment(ctx, rec) // stays in place, scheduler retries next tick
}

func (m *Machine) failPermanently(ctx context.Context, rec *domain.DeploymentRecord, err error) error {
	if rec.ContainerID != "" {
		if destroyErr := m.containers.Destroy(ctx, containerport.ContainerID(rec.ContainerID)); destroyErr != nil {
			m.logger.Warnf("Failed to destroy container %s for deployment %s: %v", rec.ContainerID, rec.ID, destroyErr)
		}
	}
	return m.transition(ctx, rec, domain.StatusRefundPending, err.Error())
}

func (m *Machine) stepRefundPending(ctx context.Context, rec *domain.DeploymentRecord) error {
	if wait := m.backoffRemaining(rec); wait > 0 {
		return nil // not due for retry yet
	}

	if err := m.ledger.CreditRefund(ctx, rec.Owner, rec.FeeCharged, rec.ID); err != nil {
		rec.RefundAttempts++
		rec.LastError = err.Error()
		if updErr := m.store.UpdateDeployment(ctx, rec); updErr != nil {
			return updErr
		}
		return err
	}

	return m.transition(ctx, rec, domain.StatusRefunded, "")
}

// backoffRemaining returns how long is left before a refund retry is due:
// delay = min(base * 2^attempts, cap).
func (m *Machine) backoffRemaining(rec *domain.DeploymentRecord) time.Duration {
	if rec.RefundAttempts == 0 {
		return 0
	}
	factor := math.Pow(2, float64(rec.RefundAttempts))
	delay := time.Duration(float64(m.retryBase) * factor)
	if delay > m.retryCap {
		delay = m.retryCap
	}
	elapsed := time.Since(rec.LastUpdateTime)
	if elapsed >= delay {
		return 0
	}
	return delay - elapsed
}

func (m *Machine) transition(ctx context.Context, rec *domain.DeploymentRecord, status domain.DeploymentStatus, lastError string) error {
	rec.Status = status
	rec.LastError = lastError
	if err := m.store.UpdateDeployment(ctx, rec); err != nil {
		return err
	}

	if err := m.notifier.NotifyDeploymentTransition(ctx, rec.Owner, rec.ID, string(status)); err != nil {
		m.logger.Warnf("Failed to send deployment transition notification: %v", err)
	}
	m.logger.Infof("Deployment %s: %s", rec.ID, status)
	return nil
}

// Get returns a deployment record by ID.
func (m *Machine) Get(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	return m.store.GetDeployment(ctx, id)
}

// ListByOwner returns owner's deployment records.
func (m *Machine) ListByOwner(ctx context.Context, owner string) ([]domain.DeploymentRecord, error) {
	return m.store.ListDeploymentsByOwner(ctx, owner)
}
