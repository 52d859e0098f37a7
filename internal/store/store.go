// Package store defines the Factory's Persistent Store: the keyed maps
// and scalars that back accounts, transactions, deployments, strategies
// and settings, abstracted behind an interface so the Postgres-backed
// implementation can be swapped for a fake in tests.
package store

import (
	"context"
	"database/sql"

	"factory/internal/domain"
)

// Store is the Persistent Store's full read/write surface.
type Store interface {
	// Accounts (UserAccount map)
	GetAccount(ctx context.Context, owner string) (*domain.UserAccount, error)
	UpsertAccount(ctx context.Context, acc *domain.UserAccount) error

	// Transactions (append-only log)
	InsertTransaction(ctx context.Context, tx *domain.TransactionRecord) (int64, error)
	InsertRefundIfAbsent(ctx context.Context, tx *domain.TransactionRecord) (inserted bool, err error)
	InsertFeeIfAbsent(ctx context.Context, tx *domain.TransactionRecord) (inserted bool, err error)
	HasFeeCharge(ctx context.Context, deploymentID string) (bool, error)
	ListTransactions(ctx context.Context, owner string, limit int) ([]domain.TransactionRecord, error)

	// Deployments
	GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error)
	InsertDeployment(ctx context.Context, d *domain.DeploymentRecord) error
	UpdateDeployment(ctx context.Context, d *domain.DeploymentRecord) error
	ListDeploymentsByOwner(ctx context.Context, owner string) ([]domain.DeploymentRecord, error)
	ListAllDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error)
	ScanActiveDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error)
	ArchiveOldDeployments(ctx context.Context, olderThan int64, maxCompleted int) (archived int, err error)
	ListArchivedDeployments(ctx context.Context, limit int) ([]domain.DeploymentRecord, error)

	// Strategies (owner index of running deployments)
	InsertStrategy(ctx context.Context, s *domain.StrategyMetadata) error
	GetStrategy(ctx context.Context, containerID string) (*domain.StrategyMetadata, error)
	ListStrategiesByOwner(ctx context.Context, owner string) ([]domain.StrategyMetadata, error)
	ListAllStrategies(ctx context.Context) ([]domain.StrategyMetadata, error)
	DeleteStrategy(ctx context.Context, containerID string) error

	// Code images
	GetCodeImage(ctx context.Context, kind domain.StrategyKind) (*domain.CodeImage, error)
	PutCodeImage(ctx context.Context, img *domain.CodeImage) error

	// Admin set
	IsAdmin(ctx context.Context, owner string) (bool, error)
	AddAdmin(ctx context.Context, owner string) error
	RemoveAdmin(ctx context.Context, owner string) error
	ListAdmins(ctx context.Context) ([]string, error)
	AdminCount(ctx context.Context) (int, error)

	// Scalars
	GetDeploymentFee(ctx context.Context) (int64, error)
	SetDeploymentFee(ctx context.Context, fee int64) error
	GetTickCursor(ctx context.Context) (int64, error)
	SetTickCursor(ctx context.Context, cursor int64) error

	// WithTx runs fn inside one *sql.Tx-backed transactional Store, so a
	// caller can atomically write across two or more logical maps.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
	Close() error
}

// TxRunner is implemented by Store implementations whose WithTx needs
// access to the underlying *sql.Tx, e.g. for a nested helper that isn't
// part of the public Store interface.
type TxRunner interface {
	Tx() *sql.Tx
}
