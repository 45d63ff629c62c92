package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"pending to refunded", StatusPending, StatusRefunded, false},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to pending", StatusProcessing, StatusPending, false},
		{"completed to refunded", StatusCompleted, StatusRefunded, true},
		{"completed to partially refunded", StatusCompleted, StatusPartiallyRefunded, true},
		{"completed to failed", StatusCompleted, StatusFailed, false},
		{"partially refunded to refunded", StatusPartiallyRefunded, StatusRefunded, true},
		{"partially refunded again", StatusPartiallyRefunded, StatusPartiallyRefunded, true},
		{"failed is terminal", StatusFailed, StatusPending, false},
		{"cancelled is terminal", StatusCancelled, StatusCompleted, false},
		{"expired is terminal", StatusExpired, StatusCompleted, false},
		{"refunded is terminal", StatusRefunded, StatusPartiallyRefunded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusPartiallyRefunded.IsTerminal())
}

func TestStatusIsSettled(t *testing.T) {
	assert.False(t, StatusPending.IsSettled())
	assert.False(t, StatusProcessing.IsSettled())
	assert.True(t, StatusCompleted.IsSettled())
	assert.True(t, StatusFailed.IsSettled())
	assert.True(t, StatusExpired.IsSettled())
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("COMPLETED")
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, s)

	s, ok = ParseStatus("bogus")
	assert.False(t, ok)
	assert.Equal(t, StatusUnknown, s)
}
