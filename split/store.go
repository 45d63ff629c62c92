package split

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SplitNotFoundError reports a missing master record
type SplitNotFoundError struct {
	ID string
}

func (e *SplitNotFoundError) Error() string {
	return fmt.Sprintf("split %s not found", e.ID)
}

// Store is the persistence contract for split masters and their
// distributions. WithTx semantics match payment.Store.
type Store interface {
	CreateMaster(ctx context.Context, m *Master) error
	GetMaster(ctx context.Context, id string) (*Master, error)
	GetMasterByPaymentID(ctx context.Context, paymentID string) (*Master, error)
	UpdateMaster(ctx context.Context, m *Master) error

	CreateDistribution(ctx context.Context, d *Distribution) error
	UpdateDistribution(ctx context.Context, d *Distribution) error
	DistributionsForMaster(ctx context.Context, masterID string) ([]Distribution, error)

	WithTx(ctx context.Context, fn func(Store) error) error
}

// MemoryStore keeps splits in process memory, for tests and for
// single-node deployments without Postgres
type MemoryStore struct {
	mu            sync.RWMutex
	masters       map[string]*Master
	distributions map[string][]*Distribution
}

// NewMemoryStore creates an empty in-memory split store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		masters:       make(map[string]*Master),
		distributions: make(map[string][]*Distribution),
	}
}

func (s *MemoryStore) CreateMaster(_ context.Context, m *Master) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.masters[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMaster(_ context.Context, id string) (*Master, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.masters[id]
	if !ok {
		return nil, &SplitNotFoundError{ID: id}
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetMasterByPaymentID(_ context.Context, paymentID string) (*Master, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.masters {
		if m.PaymentID == paymentID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, &SplitNotFoundError{ID: paymentID}
}

func (s *MemoryStore) UpdateMaster(_ context.Context, m *Master) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.masters[m.ID]; !ok {
		return &SplitNotFoundError{ID: m.ID}
	}
	m.UpdatedAt = time.Now()
	cp := *m
	s.masters[m.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateDistribution(_ context.Context, d *Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *d
	s.distributions[d.MasterID] = append(s.distributions[d.MasterID], &cp)
	return nil
}

func (s *MemoryStore) UpdateDistribution(_ context.Context, d *Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.distributions[d.MasterID] {
		if existing.ID == d.ID {
			d.UpdatedAt = time.Now()
			cp := *d
			s.distributions[d.MasterID][i] = &cp
			return nil
		}
	}
	return fmt.Errorf("distribution %s not found", d.ID)
}

func (s *MemoryStore) DistributionsForMaster(_ context.Context, masterID string) ([]Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.distributions[masterID]
	out := make([]Distribution, len(list))
	for i, d := range list {
		out[i] = *d
	}
	return out, nil
}

// WithTx snapshots state and restores it when fn fails, giving the
// same all-or-nothing behavior the Postgres store gets from real
// transactions
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	masters := make(map[string]*Master, len(s.masters))
	for k, v := range s.masters {
		cp := *v
		masters[k] = &cp
	}
	distributions := make(map[string][]*Distribution, len(s.distributions))
	for k, list := range s.distributions {
		cps := make([]*Distribution, len(list))
		for i, d := range list {
			cp := *d
			cps[i] = &cp
		}
		distributions[k] = cps
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.masters = masters
		s.distributions = distributions
		s.mu.Unlock()
		return err
	}
	return nil
}
