package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func recipient(id string, main bool) Recipient {
	return Recipient{ID: id, Name: "Recipient " + id, IsMain: main}
}

func TestEqualSplitMainAbsorbsResidual(t *testing.T) {
	plan, err := NewPlan([]Recipient{
		recipient("a", true),
		recipient("b", false),
		recipient("c", false),
	})
	assert.NoError(t, err)
	assert.Equal(t, ModeEqual, plan.Mode)

	shares, err := plan.ComputeShares(100001)
	assert.NoError(t, err)

	var total int64
	for _, s := range shares {
		total += s.Amount
		if s.IsMain {
			assert.Equal(t, int64(33335), s.Amount)
		} else {
			assert.Equal(t, int64(33333), s.Amount)
		}
	}
	assert.Equal(t, int64(100001), total)
}

func TestPercentageSplit(t *testing.T) {
	a, b := recipient("a", true), recipient("b", false)
	a.Percentage = 70
	b.Percentage = 30

	plan, err := NewPlan([]Recipient{a, b})
	assert.NoError(t, err)
	assert.Equal(t, ModePercentage, plan.Mode)

	shares, err := plan.ComputeShares(10001)
	assert.NoError(t, err)
	assert.Equal(t, int64(7001), shares[0].Amount)
	assert.Equal(t, int64(3000), shares[1].Amount)
}

func TestPercentageSumMustBeHundred(t *testing.T) {
	a, b := recipient("a", true), recipient("b", false)
	a.Percentage = 70
	b.Percentage = 25

	_, err := NewPlan([]Recipient{a, b})
	var sumErr *PercentageSumError
	assert.ErrorAs(t, err, &sumErr)
	assert.InDelta(t, 95.0, sumErr.Sum, 0.001)
}

func TestPercentageToleranceAbsorbsFloatNoise(t *testing.T) {
	a, b, c := recipient("a", true), recipient("b", false), recipient("c", false)
	a.Percentage = 33.33
	b.Percentage = 33.33
	c.Percentage = 33.34

	_, err := NewPlan([]Recipient{a, b, c})
	assert.NoError(t, err)
}

func TestFixedSplitRemainderToMain(t *testing.T) {
	a, b := recipient("a", true), recipient("b", false)
	a.FixedAmount = 2000
	b.FixedAmount = 3000

	plan, err := NewPlan([]Recipient{a, b})
	assert.NoError(t, err)
	assert.Equal(t, ModeFixed, plan.Mode)

	shares, err := plan.ComputeShares(10000)
	assert.NoError(t, err)
	assert.Equal(t, int64(7000), shares[0].Amount)
	assert.Equal(t, int64(3000), shares[1].Amount)
}

func TestFixedSplitExceedsTotal(t *testing.T) {
	a, b := recipient("a", true), recipient("b", false)
	a.FixedAmount = 8000
	b.FixedAmount = 3000

	plan, err := NewPlan([]Recipient{a, b})
	assert.NoError(t, err)

	_, err = plan.ComputeShares(10000)
	assert.ErrorIs(t, err, ErrFixedAmountExceedsTotal)
}

func TestMixedModeRejected(t *testing.T) {
	a, b := recipient("a", true), recipient("b", false)
	a.Percentage = 50
	b.FixedAmount = 3000

	_, err := NewPlan([]Recipient{a, b})
	assert.ErrorIs(t, err, ErrMixedSplitMode)
}

func TestDuplicateRecipientRejected(t *testing.T) {
	_, err := NewPlan([]Recipient{recipient("a", true), recipient("a", false)})
	assert.ErrorIs(t, err, ErrDuplicateRecipient)
}

func TestExactlyOneMainRequired(t *testing.T) {
	_, err := NewPlan([]Recipient{recipient("a", false), recipient("b", false)})
	assert.ErrorIs(t, err, ErrNoMainRecipient)

	_, err = NewPlan([]Recipient{recipient("a", true), recipient("b", true)})
	assert.ErrorIs(t, err, ErrNoMainRecipient)
}

func TestEmptyPlanRejected(t *testing.T) {
	_, err := NewPlan(nil)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestMainAloneRejected(t *testing.T) {
	_, err := NewPlan([]Recipient{{ID: "only", IsMain: true}})
	assert.ErrorIs(t, err, ErrNoSecondaryRecipient)
}
