package containerport

import (
	"context"
	"fmt"
	"sync"
)

// Stub is a deterministic in-memory Container Port used by tests,
// grounded on ledgerport.Stub's shape.
type Stub struct {
	mu sync.Mutex

	CreateResult   error
	InstallResult  error
	AlwaysTemp     bool // forces every Install to fail Temporary, for S7
	FailInstallN   int  // Install fails Temporary this many times before succeeding

	CreateCalls int
	nextID      int
	Installs    []ContainerID
}

// NewStub returns a Stub that succeeds on every call until configured
// otherwise.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Create(ctx context.Context) (ContainerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++
	if s.CreateResult != nil {
		return "", s.CreateResult
	}
	s.nextID++
	return ContainerID(fmt.Sprintf("stub-container-%d", s.nextID)), nil
}

func (s *Stub) Install(ctx context.Context, id ContainerID, objectKey string, initBlob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AlwaysTemp {
		return &Error{Class: Temporary, Err: fmt.Errorf("stub: install always fails temporarily")}
	}
	if s.FailInstallN > 0 {
		s.FailInstallN--
		return &Error{Class: Temporary, Err: fmt.Errorf("stub: install failing temporarily")}
	}
	if s.InstallResult != nil {
		return s.InstallResult
	}
	s.Installs = append(s.Installs, id)
	return nil
}

func (s *Stub) Destroy(ctx context.Context, id ContainerID) error { return nil }

func (s *Stub) Ping(ctx context.Context) error { return nil }
