// Package domain holds the entities shared across the Factory's components:
// accounts, transactions, deployments, strategies and code images.
package domain

import (
	"encoding/json"
	"time"
)

// StrategyKind enumerates the deployable strategy templates.
type StrategyKind string

const (
	StrategyDCA           StrategyKind = "dca"
	StrategyValueAvg       StrategyKind = "value_avg"
	StrategyFixedBalance   StrategyKind = "fixed_balance"
	StrategyLimitOrder     StrategyKind = "limit_order"
	StrategySelfHedging    StrategyKind = "self_hedging"
)

// ValidStrategyKind reports whether kind is one of the five supported templates.
func ValidStrategyKind(kind StrategyKind) bool {
	switch kind {
	case StrategyDCA, StrategyValueAvg, StrategyFixedBalance, StrategyLimitOrder, StrategySelfHedging:
		return true
	default:
		return false
	}
}

// UserAccount is a per-identity platform-token balance.
type UserAccount struct {
	Owner     string    `json:"owner"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionKind enumerates the append-only ledger entry kinds.
type TransactionKind string

const (
	TxDeposit      TransactionKind = "deposit"
	TxWithdraw     TransactionKind = "withdraw"
	TxFee          TransactionKind = "fee"
	TxRefund       TransactionKind = "refund"
	TxAdminAdjust  TransactionKind = "admin_adjust"
)

// TransactionRecord is an append-only ledger entry.
// Records are never mutated or deleted once written.
type TransactionRecord struct {
	ID           int64           `json:"id"`
	Owner        string          `json:"owner"`
	Kind         TransactionKind `json:"kind"`
	Amount       int64           `json:"amount"`
	DeploymentID string          `json:"deployment_id,omitempty"`
	Memo         string          `json:"memo,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DeploymentStatus enumerates the deployment state machine's states.
type DeploymentStatus string

const (
	StatusPendingPayment  DeploymentStatus = "pending_payment"
	StatusPendingContainer DeploymentStatus = "pending_container"
	StatusInstalling      DeploymentStatus = "installing"
	StatusRunning         DeploymentStatus = "running"
	StatusRefundPending   DeploymentStatus = "refund_pending"
	StatusFailed          DeploymentStatus = "failed"
	StatusRefunded        DeploymentStatus = "refunded"
)

// Terminal reports whether status is a terminal state of the machine.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case StatusRunning, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

// DeploymentRecord tracks one strategy-deployment request through the
// state machine.
type DeploymentRecord struct {
	ID              string           `json:"id"`
	Owner           string           `json:"owner"`
	Kind            StrategyKind     `json:"kind"`
	Status          DeploymentStatus `json:"status"`
	FeeCharged      int64            `json:"fee_charged"`
	ContainerID     string           `json:"container_id,omitempty"`
	// ContainerCreateAttempted marks that containers.Create has already
	// been called once for this record. Create is non-idempotent and must
	// never be invoked a second time — once set, PendingContainer only
	// waits out StuckTTL, it never retries the call.
	ContainerCreateAttempted bool            `json:"container_create_attempted,omitempty"`
	ConfigBlob      json.RawMessage  `json:"config_blob,omitempty"`
	InstallAttempts int              `json:"install_attempts"`
	RefundAttempts  int              `json:"refund_attempts"`
	LastError       string           `json:"last_error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	LastUpdateTime  time.Time        `json:"last_update_time"`
}

// StrategyMetadata records a running deployment's owner index entry.
type StrategyMetadata struct {
	ContainerID  string       `json:"container_id"`
	Owner        string       `json:"owner"`
	Kind         StrategyKind `json:"kind"`
	DeploymentID string       `json:"deployment_id"`
	CreatedAt    time.Time    `json:"created_at"`
}

// CodeImage is the admin-managed binary reference for one strategy kind.
type CodeImage struct {
	Kind       StrategyKind `json:"kind"`
	VersionTag string       `json:"version_tag"`
	ObjectKey  string       `json:"object_key"`
	SizeBytes  int64        `json:"size_bytes"`
	Checksum   string       `json:"checksum"`
	UploadedBy string       `json:"uploaded_by"`
	UploadedAt time.Time    `json:"uploaded_at"`
}
