// Package split implements split payments: one collected payment
// distributed across multiple recipients through a saga that keeps the
// master record and its distributions consistent.
package split

import (
	"time"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// Mode selects how the total is divided among recipients
type Mode string

const (
	ModePercentage Mode = "PERCENTAGE"
	ModeFixed      Mode = "FIXED"
	ModeEqual      Mode = "EQUAL"
)

// MasterStatus is the lifecycle of a split as a whole
type MasterStatus string

const (
	MasterPending              MasterStatus = "PENDING"
	MasterProcessing           MasterStatus = "PROCESSING"
	MasterCompleted            MasterStatus = "COMPLETED"
	MasterPartiallyDistributed MasterStatus = "PARTIALLY_DISTRIBUTED"
	MasterFailed               MasterStatus = "FAILED"
	MasterCancelled            MasterStatus = "CANCELLED"
)

// DistributionStatus is the lifecycle of a single recipient payout
type DistributionStatus string

const (
	DistributionPending   DistributionStatus = "PENDING"
	DistributionCompleted DistributionStatus = "COMPLETED"
	DistributionFailed    DistributionStatus = "FAILED"
	DistributionCancelled DistributionStatus = "CANCELLED"
)

// Recipient is one party in a split plan. Exactly one recipient is
// the main one; it absorbs the rounding residual.
type Recipient struct {
	ID          string               `json:"id" validate:"required"`
	Name        string               `json:"name"`
	Email       string               `json:"email,omitempty" validate:"omitempty,email"`
	BankAccount provider.BankAccount `json:"bankAccount"`
	Percentage  float64              `json:"percentage,omitempty"`
	FixedAmount int64                `json:"fixedAmount,omitempty"`
	IsMain      bool                 `json:"isMain,omitempty"`
}

// Master is the aggregate record of one split payment
type Master struct {
	ID            string       `json:"id"`
	PaymentID     string       `json:"paymentId"`
	TransactionID string       `json:"transactionId"`
	Provider      string       `json:"provider"`
	TotalAmount   int64        `json:"totalAmount"`
	Currency      string       `json:"currency"`
	Mode          Mode         `json:"mode"`
	Status        MasterStatus `json:"status"`
	RetryCount    int          `json:"retryCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}

// Distribution is one recipient's share of a split
type Distribution struct {
	ID            string               `json:"id"`
	MasterID      string               `json:"masterId"`
	RecipientID   string               `json:"recipientId"`
	RecipientName string               `json:"recipientName,omitempty"`
	BankAccount   provider.BankAccount `json:"bankAccount"`
	Amount        int64                `json:"amount"`
	IsMain        bool                 `json:"isMain,omitempty"`
	Status        DistributionStatus   `json:"status"`
	TransferID    string               `json:"transferId,omitempty"`
	ErrorMessage  string               `json:"errorMessage,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// Summary is the derived distribution roll-up served by Status
type Summary struct {
	TotalAmount      int64 `json:"totalAmount"`
	DistributedMinor int64 `json:"distributedAmount"`
	CompletedCount   int   `json:"completedCount"`
	PendingCount     int   `json:"pendingCount"`
	FailedCount      int   `json:"failedCount"`
	CancelledCount   int   `json:"cancelledCount"`
}

// Summarize derives the roll-up from a distribution set
func Summarize(master *Master, distributions []Distribution) Summary {
	s := Summary{TotalAmount: master.TotalAmount}
	for _, d := range distributions {
		switch d.Status {
		case DistributionCompleted:
			s.CompletedCount++
			s.DistributedMinor += d.Amount
		case DistributionPending:
			s.PendingCount++
		case DistributionFailed:
			s.FailedCount++
		case DistributionCancelled:
			s.CancelledCount++
		}
	}
	return s
}
