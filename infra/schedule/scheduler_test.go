package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_After(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32
	s.After("job", 10*time.Millisecond, func() {
		fired.Add(1)
	})

	assert.True(t, s.Pending("job"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, s.Pending("job"))
}

func TestScheduler_AfterReplacesKey(t *testing.T) {
	s := New()
	defer s.Stop()

	var first, second atomic.Int32
	s.After("job", 10*time.Millisecond, func() { first.Add(1) })
	s.After("job", 10*time.Millisecond, func() { second.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestScheduler_Cancel(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32
	s.After("job", 20*time.Millisecond, func() { fired.Add(1) })
	s.Cancel("job")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, s.Pending("job"))
}

func TestScheduler_Every(t *testing.T) {
	s := New()
	defer s.Stop()

	var ticks atomic.Int32
	s.Every("sweep", 10*time.Millisecond, func() { ticks.Add(1) })

	time.Sleep(55 * time.Millisecond)
	s.Cancel("sweep")
	count := ticks.Load()

	assert.GreaterOrEqual(t, count, int32(3))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, ticks.Load())
}

func TestScheduler_StopPreventsNewJobs(t *testing.T) {
	s := New()
	s.Stop()

	var fired atomic.Int32
	s.After("job", time.Millisecond, func() { fired.Add(1) })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestScheduler_StopReturnsAfterReplacedPendingKey(t *testing.T) {
	s := New()

	s.After("job", time.Hour, func() {})
	s.After("job", time.Hour, func() {})
	s.Cancel("job")

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after a pending key was replaced")
	}
}
