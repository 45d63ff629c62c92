package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node development
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	byTxID   map[string]string // transactionID -> payment id
	refunds  map[string][]*Refund
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		byTxID:   make(map[string]string),
		refunds:  make(map[string][]*Refund),
	}
}

// CreatePayment stores a new payment
func (s *MemoryStore) CreatePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTxID[p.TransactionID]; exists {
		return ErrDuplicateTransactionID
	}

	copied := clonePayment(p)
	s.payments[p.ID] = copied
	s.byTxID[p.TransactionID] = p.ID
	return nil
}

// GetPayment retrieves a payment by id
func (s *MemoryStore) GetPayment(_ context.Context, id string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.payments[id]
	if !exists {
		return nil, &NotFoundError{ID: id}
	}
	return clonePayment(p), nil
}

// GetPaymentByTransactionID retrieves a payment by its transaction id
func (s *MemoryStore) GetPaymentByTransactionID(_ context.Context, transactionID string) (*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byTxID[transactionID]
	if !exists {
		return nil, &NotFoundError{ID: transactionID}
	}
	return clonePayment(s.payments[id]), nil
}

// UpdatePayment replaces a stored payment
func (s *MemoryStore) UpdatePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; !exists {
		return &NotFoundError{ID: p.ID}
	}

	p.UpdatedAt = time.Now()
	s.payments[p.ID] = clonePayment(p)
	return nil
}

// ListPayments returns payments matching the filter, newest first
func (s *MemoryStore) ListPayments(_ context.Context, filter Filter) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Payment
	for _, p := range s.payments {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Provider != "" && p.Provider != filter.Provider {
			continue
		}
		if filter.CommunityID != "" && p.CommunityID != filter.CommunityID {
			continue
		}
		if !filter.From.IsZero() && p.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && p.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, *clonePayment(p))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

// ListUnsettled returns PENDING/PROCESSING payments created before cutoff
func (s *MemoryStore) ListUnsettled(_ context.Context, cutoff time.Time) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Payment
	for _, p := range s.payments {
		if !p.Status.IsSettled() && p.CreatedAt.Before(cutoff) {
			out = append(out, *clonePayment(p))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateRefund stores a new refund
func (s *MemoryStore) CreateRefund(_ context.Context, r *Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *r
	s.refunds[r.PaymentID] = append(s.refunds[r.PaymentID], &copied)
	return nil
}

// RefundsForPayment returns all refunds recorded against a payment
func (s *MemoryStore) RefundsForPayment(_ context.Context, paymentID string) ([]Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refunds := s.refunds[paymentID]
	out := make([]Refund, len(refunds))
	for i, r := range refunds {
		out[i] = *r
	}
	return out, nil
}

// WithTx emulates a transaction by snapshotting state and restoring it
// if fn fails
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.restoreLocked(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	payments map[string]*Payment
	byTxID   map[string]string
	refunds  map[string][]*Refund
}

func (s *MemoryStore) snapshotLocked() memorySnapshot {
	snap := memorySnapshot{
		payments: make(map[string]*Payment, len(s.payments)),
		byTxID:   make(map[string]string, len(s.byTxID)),
		refunds:  make(map[string][]*Refund, len(s.refunds)),
	}
	for id, p := range s.payments {
		snap.payments[id] = clonePayment(p)
	}
	for tx, id := range s.byTxID {
		snap.byTxID[tx] = id
	}
	for id, refunds := range s.refunds {
		copied := make([]*Refund, len(refunds))
		for i, r := range refunds {
			c := *r
			copied[i] = &c
		}
		snap.refunds[id] = copied
	}
	return snap
}

func (s *MemoryStore) restoreLocked(snap memorySnapshot) {
	s.payments = snap.payments
	s.byTxID = snap.byTxID
	s.refunds = snap.refunds
}

func clonePayment(p *Payment) *Payment {
	copied := *p
	if p.Metadata != nil {
		copied.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
