// Package directory answers whether patients and providers exist. The records belong to the
// profile service; this package only reads them.
package directory

import (
	"context"
	"sync"
)

type Checker interface {
	PatientExists(ctx context.Context, id string) (bool, error)
	ProviderExists(ctx context.Context, id string) (bool, error)
}

// Permissive accepts every id. It is only wired when the service runs on the in-memory store
// without a directory endpoint.
type Permissive struct{}

func (Permissive) PatientExists(context.Context, string) (bool, error)  { return true, nil }
func (Permissive) ProviderExists(context.Context, string) (bool, error) { return true, nil }

// Static is a fixed in-memory directory.
type Static struct {
	mu        sync.RWMutex
	patients  map[string]bool
	providers map[string]bool
}

func NewStatic() *Static {
	return &Static{patients: map[string]bool{}, providers: map[string]bool{}}
}

func (s *Static) AddPatients(ids ...string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.patients[id] = true
	}
	return s
}

func (s *Static) AddProviders(ids ...string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.providers[id] = true
	}
	return s
}

func (s *Static) PatientExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patients[id], nil
}

func (s *Static) ProviderExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.providers[id], nil
}
