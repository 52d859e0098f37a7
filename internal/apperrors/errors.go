// Package apperrors defines the Factory's error taxonomy as Go sentinel
// errors carrying a stable code, so API middleware can map every
// failure to one HTTP status in a single place.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is a stable discriminant for an application error.
type Code string

const (
	CodeValidation     Code = "validation_error"
	CodeNotFound       Code = "not_found"
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeConflict       Code = "conflict"
	CodeInsufficient   Code = "insufficient_funds"
	CodeLedgerFailure  Code = "ledger_failure"
	CodeContainerFailure Code = "container_failure"
	CodeInternal       Code = "internal_error"
	CodeLastAdmin      Code = "last_admin"
	CodeTimeout        Code = "timeout"
)

// AppError is the typed error every component returns at a public boundary.
type AppError struct {
	Code    Code
	Message string
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *AppError) Unwrap() error { return e.err }

// New builds an AppError with no wrapped cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap builds an AppError around a lower-level error.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, err: err}
}

// CodeOf extracts the Code of err, defaulting to CodeInternal for errors
// that were never classified.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Sentinel errors for conditions callers commonly check with errors.Is.
var (
	ErrNotFound          = New(CodeNotFound, "resource not found")
	ErrLastAdmin         = New(CodeLastAdmin, "cannot remove the last admin")
	ErrInsufficientFunds = New(CodeInsufficient, "insufficient balance")
	ErrAlreadyAdmin      = New(CodeConflict, "identity is already an admin")
	ErrNotAdmin          = New(CodeForbidden, "identity is not an admin")
	ErrDuplicateRefund   = New(CodeConflict, "refund already recorded for this deployment")
	ErrMaxInstallRetries = New(CodeContainerFailure, "install attempts exhausted")
	ErrDeploymentLocked  = New(CodeConflict, "deployment is currently locked")
	ErrCreateAmbiguous   = New(CodeContainerFailure, "container creation result never resolved")
	ErrDeploymentTimeout = New(CodeTimeout, "deployment exceeded its timeout")
)
