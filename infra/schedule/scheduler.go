// Package schedule runs named one-shot and recurring background jobs.
package schedule

import (
	"sync"
	"time"
)

// Scheduler manages keyed timers. Scheduling a key that is already
// pending replaces the previous timer.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	tickers map[string]chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// New creates a scheduler
func New() *Scheduler {
	return &Scheduler{
		timers:  make(map[string]*time.Timer),
		tickers: make(map[string]chan struct{}),
	}
}

// After runs fn once after delay. The key can be used to cancel.
func (s *Scheduler) After(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if existing, ok := s.timers[key]; ok {
		if existing.Stop() {
			s.wg.Done()
		}
	}

	s.wg.Add(1)
	s.timers[key] = time.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		delete(s.timers, key)
		stopped := s.stopped
		s.mu.Unlock()

		if !stopped {
			fn()
		}
	})
}

// Every runs fn on a fixed interval until the key is cancelled or the
// scheduler stops. The first run happens after one interval.
func (s *Scheduler) Every(key string, interval time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if existing, ok := s.tickers[key]; ok {
		close(existing)
	}

	done := make(chan struct{})
	s.tickers[key] = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
}

// Cancel stops a pending or recurring job by key
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[key]; ok {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, key)
	}

	if done, ok := s.tickers[key]; ok {
		close(done)
		delete(s.tickers, key)
	}
}

// Pending reports whether a one-shot job is scheduled for key
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[key]
	return ok
}

// Stop cancels all jobs and waits for in-flight callbacks to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, key)
	}
	for key, done := range s.tickers {
		close(done)
		delete(s.tickers, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
