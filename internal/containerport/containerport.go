// Package containerport is the Factory's outbound Container Port: the
// boundary to the container platform that actually runs a deployed
// strategy. Mirrors ledgerport's shape deliberately — both ports follow
// the same classify-then-retry contract.
package containerport

import (
	"context"
	"errors"
)

// Classification distinguishes a failure worth retrying from one that isn't.
type Classification int

const (
	Unclassified Classification = iota
	Temporary
	Permanent
)

// Error wraps a Container Port failure with its retry classification.
type Error struct {
	Class Classification
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Temp reports whether err is a Container Port error worth retrying.
func Temp(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class == Temporary
	}
	return false
}

// ContainerID identifies a provisioned execution container.
type ContainerID string

// Port is the Container Port's interface.
type Port interface {
	// Create provisions a fresh, empty container and returns its ID.
	Create(ctx context.Context) (ContainerID, error)

	// Install pushes the code image object key and an opaque init payload
	// into the container, starting the strategy. initBlob is the
	// deployment's config_blob, passed through unexamined.
	Install(ctx context.Context, id ContainerID, objectKey string, initBlob []byte) error

	// Destroy tears a container down, e.g. after install attempts are
	// exhausted.
	Destroy(ctx context.Context, id ContainerID) error

	// Ping checks reachability without mutating anything.
	Ping(ctx context.Context) error
}
