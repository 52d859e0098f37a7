// Package ledgerport is the Factory's outbound Ledger Port: the
// boundary to the external token-ledger service that actually custodies
// user funds. The Factory never custodies tokens itself — it only tracks
// a mirrored balance, asks the external ledger to verify claimed
// deposits, and asks it to move real funds out on withdrawals.
package ledgerport

import (
	"context"
	"errors"
)

// Classification distinguishes a failure that is worth retrying from one
// that is not, the same Temporary/Permanent split used by the Container
// Port.
type Classification int

const (
	Unclassified Classification = iota
	Temporary
	Permanent
)

// Error wraps a Ledger Port failure with its retry classification.
type Error struct {
	Class Classification
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Temp reports whether err is a Ledger Port error classified as
// worth retrying.
func Temp(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Class == Temporary
	}
	return false
}

// TxHandle is an opaque reference to a confirmed external-ledger transfer,
// returned by Transfer. It is not stored on any TransactionRecord.
type TxHandle string

// Port is the Ledger Port's interface. Calls carry no idempotency key:
// a repeated Transfer is a second transfer, not a no-op.
type Port interface {
	// VerifyDeposit confirms that `from` deposited at least `amount` of
	// platform token tagged with `memo`, under a deposit-based-with-proof
	// contract. Returns a *Error with Class set on failure.
	VerifyDeposit(ctx context.Context, from string, amount int64, memo string) error

	// Transfer moves `amount` of platform token to `to` (used for user
	// withdrawals and admin withdrawals; refunds are credited to the
	// mirrored balance without a transfer). Returns a *Error with Class
	// set on failure.
	Transfer(ctx context.Context, to string, amount int64) (TxHandle, error)

	// Ping checks reachability without mutating anything.
	Ping(ctx context.Context) error
}
