package ledgerport

import (
	"context"
	"sync"
)

// Stub is a deterministic in-memory Ledger Port used by tests to exercise
// fault-injection scenarios without a live ledger service.
type Stub struct {
	mu sync.Mutex

	// VerifyResult, if set, is returned by every VerifyDeposit call.
	// Defaults to success.
	VerifyResult error
	// TransferResult, if set, is returned by every Transfer call.
	// Defaults to success with a synthetic handle.
	TransferResult error

	VerifyCalls   int
	TransferCalls []int64
}

// NewStub returns a Stub that succeeds on every call until configured
// otherwise.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) VerifyDeposit(ctx context.Context, from string, amount int64, memo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.VerifyCalls++
	return s.VerifyResult
}

func (s *Stub) Transfer(ctx context.Context, to string, amount int64) (TxHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransferCalls = append(s.TransferCalls, amount)
	if s.TransferResult != nil {
		return "", s.TransferResult
	}
	return TxHandle("stub-tx"), nil
}

func (s *Stub) Ping(ctx context.Context) error { return nil }
