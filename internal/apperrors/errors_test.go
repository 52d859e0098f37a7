package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf_ReturnsTheWrappedCode(t *testing.T) {
	if got := CodeOf(ErrInsufficientFunds); got != CodeInsufficient {
		t.Fatalf("CodeOf() = %s, want %s", got, CodeInsufficient)
	}
}

func TestCodeOf_DefaultsToInternalForUnclassifiedErrors(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Fatalf("CodeOf() = %s, want %s", got, CodeInternal)
	}
}

func TestWrap_PreservesCauseForUnwrapping(t *testing.T) {
	cause := errors.New("underlying failure")
	wrapped := Wrap(CodeLedgerFailure, "deposit verification failed", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatalf("errors.Is(wrapped, cause) = false, want true")
	}
	if CodeOf(wrapped) != CodeLedgerFailure {
		t.Fatalf("CodeOf(wrapped) = %s, want %s", CodeOf(wrapped), CodeLedgerFailure)
	}
}

func TestErrorMessage_IncludesWrappedCause(t *testing.T) {
	cause := errors.New("timeout")
	wrapped := Wrap(CodeLedgerFailure, "deposit verification failed", cause)
	if got := wrapped.Error(); got == "" {
		t.Fatalf("Error() returned empty string")
	}
	want := fmt.Sprintf("%s: deposit verification failed: timeout", CodeLedgerFailure)
	if wrapped.Error() != want {
		t.Fatalf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestSentinels_AreDistinguishableByErrorsIs(t *testing.T) {
	err := fmt.Errorf("escalating: %w", ErrMaxInstallRetries)
	if !errors.Is(err, ErrMaxInstallRetries) {
		t.Fatalf("errors.Is() = false, want true for a wrapped sentinel")
	}
	if errors.Is(err, ErrDeploymentLocked) {
		t.Fatalf("errors.Is() = true, want false for an unrelated sentinel")
	}
}

func TestCodeOf_ClassifiesTimeoutSentinels(t *testing.T) {
	if got := CodeOf(ErrDeploymentTimeout); got != CodeTimeout {
		t.Fatalf("CodeOf(ErrDeploymentTimeout) = %s, want %s", got, CodeTimeout)
	}
	wrapped := fmt.Errorf("deployment d1: %w", ErrCreateAmbiguous)
	if CodeOf(wrapped) != CodeContainerFailure {
		t.Fatalf("CodeOf(wrapped ErrCreateAmbiguous) = %s, want %s", CodeOf(wrapped), CodeContainerFailure)
	}
}
