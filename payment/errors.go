package payment

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a payment does not exist
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("payment '%s' not found", e.ID)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// InvalidStateError is returned when an operation is illegal for the
// payment's current status
type InvalidStateError struct {
	PaymentID string
	Status    Status
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("payment '%s': cannot %s from status %s", e.PaymentID, e.Operation, e.Status)
}

// IsInvalidState reports whether err is an InvalidStateError
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}

// RefundExceedsAmountError is returned when a refund would push the
// refunded total past the payment amount
type RefundExceedsAmountError struct {
	PaymentID string
	Requested int64
	Refunded  int64
	Amount    int64
}

func (e *RefundExceedsAmountError) Error() string {
	return fmt.Sprintf("payment '%s': refund of %d plus already refunded %d exceeds amount %d",
		e.PaymentID, e.Requested, e.Refunded, e.Amount)
}

// IsRefundExceedsAmount reports whether err is a RefundExceedsAmountError
func IsRefundExceedsAmount(err error) bool {
	var ree *RefundExceedsAmountError
	return errors.As(err, &ree)
}

// ValidationError is returned for malformed caller input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrDuplicateTransactionID is returned when a transaction id is reused
var ErrDuplicateTransactionID = errors.New("payment: transaction id already exists")
