package payment

import (
	"context"
	"time"
)

// Filter narrows a payment listing
type Filter struct {
	Status      Status
	Provider    string
	CommunityID string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// Store is the persistence contract for payments and refunds.
// Implementations must make WithTx atomic: either every mutation made
// through the transactional store commits, or none do.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, filter Filter) ([]Payment, error)

	// ListUnsettled returns PENDING/PROCESSING payments created before cutoff
	ListUnsettled(ctx context.Context, cutoff time.Time) ([]Payment, error)

	CreateRefund(ctx context.Context, r *Refund) error
	RefundsForPayment(ctx context.Context, paymentID string) ([]Refund, error)

	// WithTx runs fn against a transactional view of the store
	WithTx(ctx context.Context, fn func(Store) error) error
}
