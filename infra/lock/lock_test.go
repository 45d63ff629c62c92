package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManager_AcquireAndRelease(t *testing.T) {
	m := NewManager(time.Second)

	token, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, m.IsHeld("lock:pay-1"))

	err = m.Release("lock:pay-1", token)
	assert.NoError(t, err)
	assert.False(t, m.IsHeld("lock:pay-1"))
}

func TestManager_ContendedAcquireTimesOut(t *testing.T) {
	m := NewManager(time.Minute, WithRetries(2, 5*time.Millisecond))

	_, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)

	_, err = m.Acquire(context.Background(), "lock:pay-1")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestManager_TTLExpiryAllowsReacquire(t *testing.T) {
	m := NewManager(10 * time.Millisecond)

	first, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	second, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)

	// Original holder's token is stale now
	err = m.Release("lock:pay-1", first)
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestManager_ReleaseWrongToken(t *testing.T) {
	m := NewManager(time.Minute)

	_, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)

	err = m.Release("lock:pay-1", "bogus")
	assert.ErrorIs(t, err, ErrNotHeld)
	assert.True(t, m.IsHeld("lock:pay-1"))
}

func TestManager_IndependentKeys(t *testing.T) {
	m := NewManager(time.Minute)

	_, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)

	_, err = m.Acquire(context.Background(), "lock:pay-2")
	assert.NoError(t, err)
}

func TestManager_AcquireRespectsContext(t *testing.T) {
	m := NewManager(time.Minute, WithRetries(10, 50*time.Millisecond))

	_, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "lock:pay-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Cleanup(t *testing.T) {
	m := NewManager(time.Millisecond)

	_, err := m.Acquire(context.Background(), "lock:pay-1")
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.Cleanup()

	assert.False(t, m.IsHeld("lock:pay-1"))
}
