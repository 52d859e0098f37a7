// Package storetest provides an in-memory store.Store used by package
// tests elsewhere in the module, so ledger/identity/deployment tests
// don't need a live PostgreSQL instance.
package storetest

import (
	"context"
	"sync"
	"time"

	"factory/internal/apperrors"
	"factory/internal/domain"
	"factory/internal/store"
)

// Fake is an in-memory store.Store. Not safe for concurrent use across
// goroutines without external synchronization beyond what's needed to
// satisfy a single test's call sequence — WithTx doesn't provide real
// isolation, just the same call shape.
type Fake struct {
	mu sync.Mutex

	accounts     map[string]*domain.UserAccount
	transactions []domain.TransactionRecord
	deployments  map[string]*domain.DeploymentRecord
	archive      []domain.DeploymentRecord
	strategies   map[string]*domain.StrategyMetadata
	codeImages   map[domain.StrategyKind]*domain.CodeImage
	admins       map[string]bool
	fee          int64
	tickCursor   int64
	nextTxID     int64
}

// New returns an empty Fake store.
func New() *Fake {
	return &Fake{
		accounts:    make(map[string]*domain.UserAccount),
		deployments: make(map[string]*domain.DeploymentRecord),
		strategies:  make(map[string]*domain.StrategyMetadata),
		codeImages:  make(map[domain.StrategyKind]*domain.CodeImage),
		admins:      make(map[string]bool),
	}
}

func (f *Fake) GetAccount(ctx context.Context, owner string) (*domain.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[owner]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *Fake) UpsertAccount(ctx context.Context, acc *domain.UserAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *acc
	f.accounts[acc.Owner] = &cp
	return nil
}

func (f *Fake) InsertTransaction(ctx context.Context, tx *domain.TransactionRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTxID++
	tx.ID = f.nextTxID
	f.transactions = append(f.transactions, *tx)
	return tx.ID, nil
}

func (f *Fake) InsertRefundIfAbsent(ctx context.Context, tx *domain.TransactionRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.Kind == domain.TxRefund && t.DeploymentID == tx.DeploymentID {
			return false, nil
		}
	}
	f.nextTxID++
	tx.ID = f.nextTxID
	tx.Kind = domain.TxRefund
	f.transactions = append(f.transactions, *tx)
	return true, nil
}

func (f *Fake) InsertFeeIfAbsent(ctx context.Context, tx *domain.TransactionRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.Kind == domain.TxFee && t.DeploymentID == tx.DeploymentID {
			return false, nil
		}
	}
	f.nextTxID++
	tx.ID = f.nextTxID
	tx.Kind = domain.TxFee
	f.transactions = append(f.transactions, *tx)
	return true, nil
}

func (f *Fake) HasFeeCharge(ctx context.Context, deploymentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.Kind == domain.TxFee && t.DeploymentID == deploymentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) ListTransactions(ctx context.Context, owner string, limit int) ([]domain.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TransactionRecord
	for i := len(f.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if f.transactions[i].Owner == owner {
			out = append(out, f.transactions[i])
		}
	}
	return out, nil
}

func (f *Fake) GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *Fake) InsertDeployment(ctx context.Context, d *domain.DeploymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	d.CreatedAt = now
	d.LastUpdateTime = now
	cp := *d
	f.deployments[d.ID] = &cp
	return nil
}

func (f *Fake) UpdateDeployment(ctx context.Context, d *domain.DeploymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deployments[d.ID]; !ok {
		return apperrors.ErrNotFound
	}
	d.LastUpdateTime = time.Now()
	cp := *d
	f.deployments[d.ID] = &cp
	return nil
}

func (f *Fake) ListDeploymentsByOwner(ctx context.Context, owner string) ([]domain.DeploymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeploymentRecord
	for _, d := range f.deployments {
		if d.Owner == owner {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *Fake) ListAllDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeploymentRecord
	for _, d := range f.deployments {
		out = append(out, *d)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) ScanActiveDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeploymentRecord
	for _, d := range f.deployments {
		if !d.Status.Terminal() {
			out = append(out, *d)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) ArchiveOldDeployments(ctx context.Context, olderThan int64, maxCompleted int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, d := range f.deployments {
		if d.Status.Terminal() {
			f.archive = append(f.archive, *d)
			delete(f.deployments, id)
			n++
		}
	}
	return n, nil
}

func (f *Fake) ListArchivedDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.archive) > limit {
		return f.archive[:limit], nil
	}
	return f.archive, nil
}

func (f *Fake) InsertStrategy(ctx context.Context, s *domain.StrategyMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.strategies[s.ContainerID] = &cp
	return nil
}

func (f *Fake) GetStrategy(ctx context.Context, containerID string) (*domain.StrategyMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.strategies[containerID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *Fake) ListStrategiesByOwner(ctx context.Context, owner string) ([]domain.StrategyMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StrategyMetadata
	for _, s := range f.strategies {
		if s.Owner == owner {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *Fake) ListAllStrategies(ctx context.Context) ([]domain.StrategyMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StrategyMetadata
	for _, s := range f.strategies {
		out = append(out, *s)
	}
	return out, nil
}

func (f *Fake) DeleteStrategy(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.strategies, containerID)
	return nil
}

func (f *Fake) GetCodeImage(ctx context.Context, kind domain.StrategyKind) (*domain.CodeImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.codeImages[kind]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (f *Fake) PutCodeImage(ctx context.Context, img *domain.CodeImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *img
	f.codeImages[img.Kind] = &cp
	return nil
}

func (f *Fake) IsAdmin(ctx context.Context, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[owner], nil
}

func (f *Fake) AddAdmin(ctx context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[owner] = true
	return nil
}

func (f *Fake) RemoveAdmin(ctx context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.admins, owner)
	return nil
}

func (f *Fake) ListAdmins(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for o := range f.admins {
		out = append(out, o)
	}
	return out, nil
}

func (f *Fake) AdminCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.admins), nil
}

func (f *Fake) GetDeploymentFee(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fee, nil
}

func (f *Fake) SetDeploymentFee(ctx context.Context, fee int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fee = fee
	return nil
}

func (f *Fake) GetTickCursor(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickCursor, nil
}

func (f *Fake) SetTickCursor(ctx context.Context, cursor int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickCursor = cursor
	return nil
}

// WithTx runs fn directly against f — the fake has no real transaction
// isolation, just the same call shape callers depend on.
func (f *Fake) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(f)
}

func (f *Fake) Ping(ctx context.Context) error { return nil }
func (f *Fake) Close() error                   { return nil }
