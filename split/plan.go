package split

import (
	"errors"
	"fmt"
	"math"
)

// Plan validation errors
var (
	ErrNoRecipients            = errors.New("split: at least one recipient is required")
	ErrNoSecondaryRecipient    = errors.New("split: at least one secondary recipient is required")
	ErrMixedSplitMode          = errors.New("split: recipients mix percentage and fixed amounts")
	ErrDuplicateRecipient      = errors.New("split: duplicate recipient id")
	ErrNoMainRecipient         = errors.New("split: exactly one main recipient is required")
	ErrFixedAmountExceedsTotal = errors.New("split: fixed amounts exceed the total")
)

// PercentageSumError reports a percentage plan that does not add up
type PercentageSumError struct {
	Sum float64
}

func (e *PercentageSumError) Error() string {
	return fmt.Sprintf("split: percentages sum to %.2f, want 100.00", e.Sum)
}

// percentageTolerance absorbs float noise in user-supplied percentages
const percentageTolerance = 0.01

// Share is one recipient's computed amount
type Share struct {
	RecipientID string
	Amount      int64
	IsMain      bool
}

// Plan is a validated division of a total among recipients
type Plan struct {
	Mode       Mode
	Recipients []Recipient
}

// NewPlan infers the mode from the recipients and validates them
func NewPlan(recipients []Recipient) (*Plan, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if len(recipients) < 2 {
		return nil, ErrNoSecondaryRecipient
	}

	seen := make(map[string]bool, len(recipients))
	var hasPercentage, hasFixed bool
	mains := 0
	for _, r := range recipients {
		if seen[r.ID] {
			return nil, ErrDuplicateRecipient
		}
		seen[r.ID] = true
		if r.Percentage != 0 {
			hasPercentage = true
		}
		if r.FixedAmount != 0 {
			hasFixed = true
		}
		if r.IsMain {
			mains++
		}
	}

	if hasPercentage && hasFixed {
		return nil, ErrMixedSplitMode
	}
	if mains != 1 {
		return nil, ErrNoMainRecipient
	}

	mode := ModeEqual
	switch {
	case hasPercentage:
		mode = ModePercentage
		var sum float64
		for _, r := range recipients {
			sum += r.Percentage
		}
		if math.Abs(sum-100) > percentageTolerance {
			return nil, &PercentageSumError{Sum: sum}
		}
	case hasFixed:
		mode = ModeFixed
	}

	return &Plan{Mode: mode, Recipients: recipients}, nil
}

// ComputeShares divides total minor units among the recipients.
// Fractions are floored and the main recipient absorbs the residual,
// so the shares always sum exactly to total.
func (p *Plan) ComputeShares(total int64) ([]Share, error) {
	if total <= 0 {
		return nil, fmt.Errorf("split: total must be positive, got %d", total)
	}

	shares := make([]Share, len(p.Recipients))
	var allocated int64
	mainIdx := -1

	for i, r := range p.Recipients {
		var amount int64
		switch p.Mode {
		case ModePercentage:
			amount = int64(math.Floor(float64(total) * r.Percentage / 100))
		case ModeFixed:
			amount = r.FixedAmount
		case ModeEqual:
			amount = total / int64(len(p.Recipients))
		}
		shares[i] = Share{RecipientID: r.ID, Amount: amount, IsMain: r.IsMain}
		allocated += amount
		if r.IsMain {
			mainIdx = i
		}
	}

	if p.Mode == ModeFixed {
		if allocated > total {
			return nil, ErrFixedAmountExceedsTotal
		}
	}

	// Residual from flooring (or the fixed-mode remainder) goes to the
	// main recipient
	shares[mainIdx].Amount += total - allocated
	return shares, nil
}
