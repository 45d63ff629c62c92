// Package payment implements the payment lifecycle: the state machine,
// the orchestrator that drives it, and the stores it persists through.
package payment

import (
	"time"
)

// Status is the canonical payment status vocabulary
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusProcessing        Status = "PROCESSING"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
	StatusExpired           Status = "EXPIRED"

	// StatusUnknown is what webhook normalization falls back to when a
	// provider reports a status outside its table. Never persisted.
	StatusUnknown Status = "UNKNOWN"
)

// ParseStatus maps a canonical status name to a Status
func ParseStatus(name string) (Status, bool) {
	switch Status(name) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
		StatusCancelled, StatusRefunded, StatusPartiallyRefunded, StatusExpired:
		return Status(name), true
	default:
		return StatusUnknown, false
	}
}

// transitions is the single authority for status changes. Every path
// that mutates a payment (API, webhook consumer, reconciler) goes
// through CanTransition.
var transitions = map[Status][]Status{
	StatusPending:           {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusExpired},
	StatusProcessing:        {StatusCompleted, StatusFailed, StatusCancelled, StatusExpired},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusRefunded, StatusPartiallyRefunded},
}

// CanTransition reports whether moving from one status to another is legal
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status can never change again except
// through refund aggregation
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

// IsSettled reports whether the payment reached a provider answer
// (anything past PENDING/PROCESSING)
func (s Status) IsSettled() bool {
	return s != StatusPending && s != StatusProcessing
}

// Payment is a single monetary transaction attempt. Amounts are
// positive integer minor currency units.
type Payment struct {
	ID                    string            `json:"id"`
	TransactionID         string            `json:"transactionId"`
	ProviderTransactionID string            `json:"providerTransactionId,omitempty"`
	Provider              string            `json:"provider"`
	Status                Status            `json:"status"`
	Amount                int64             `json:"amount"`
	Currency              string            `json:"currency"`
	CommunityID           string            `json:"communityId,omitempty"`
	UserID                string            `json:"userId,omitempty"`
	Description           string            `json:"description,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	AuthorizationCode     string            `json:"authorizationCode,omitempty"`
	ErrorCode             string            `json:"errorCode,omitempty"`
	ErrorMessage          string            `json:"errorMessage,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
	ProcessedAt           *time.Time        `json:"processedAt,omitempty"`
	FailedAt              *time.Time        `json:"failedAt,omitempty"`
	RefundedAt            *time.Time        `json:"refundedAt,omitempty"`
}

// Refund is a monetary reversal against exactly one Payment
type Refund struct {
	ID                  string     `json:"id"`
	PaymentID           string     `json:"paymentId"`
	RefundTransactionID string     `json:"refundTransactionId"`
	ProviderRefundID    string     `json:"providerRefundId,omitempty"`
	Amount              int64      `json:"amount"`
	Reason              string     `json:"reason,omitempty"`
	Status              Status     `json:"status"`
	CreatedAt           time.Time  `json:"createdAt"`
	ProcessedAt         *time.Time `json:"processedAt,omitempty"`
}

// StatusProjection is the cache-resident short view of a payment
type StatusProjection struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Provider string `json:"provider"`
}
