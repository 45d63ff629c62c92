// Package lock provides per-key mutual exclusion with TTL expiry.
//
// Keys follow the lock:{resource} convention, e.g. lock:{paymentID}.
// A holder that crashes without releasing is fenced out once the TTL
// elapses, so a stuck operation cannot wedge a payment forever.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a lock could not be acquired
// within the configured number of retries.
var ErrLockTimeout = errors.New("lock: acquisition timed out")

// ErrNotHeld is returned when releasing a lock with a stale or wrong token.
var ErrNotHeld = errors.New("lock: not held by this token")

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// Manager hands out per-key TTL locks
type Manager struct {
	locks      map[string]*lockEntry
	mu         sync.Mutex
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
}

// Option configures a Manager
type Option func(*Manager)

// WithRetries sets the number of acquisition retries and the delay between them
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(m *Manager) {
		m.maxRetries = maxRetries
		m.retryDelay = delay
	}
}

// NewManager creates a lock manager with the given TTL
func NewManager(ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		locks:      make(map[string]*lockEntry),
		ttl:        ttl,
		maxRetries: 3,
		retryDelay: 150 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Acquire takes the lock for key, retrying up to the configured limit.
// It returns an opaque token that must be passed to Release.
func (m *Manager) Acquire(ctx context.Context, key string) (string, error) {
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if token, ok := m.tryAcquire(key); ok {
			return token, nil
		}

		if attempt == m.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}

	return "", ErrLockTimeout
}

// TryAcquire takes the lock for key without retrying
func (m *Manager) TryAcquire(key string) (string, bool) {
	return m.tryAcquire(key)
}

func (m *Manager) tryAcquire(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, held := m.locks[key]; held && now.Before(existing.expiresAt) {
		return "", false
	}

	token := uuid.New().String()
	m.locks[key] = &lockEntry{
		token:     token,
		expiresAt: now.Add(m.ttl),
	}
	return token, true
}

// Release frees the lock if token still owns it. Releasing after the
// TTL handed the lock to another owner returns ErrNotHeld.
func (m *Manager) Release(key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, held := m.locks[key]
	if !held || existing.token != token {
		return ErrNotHeld
	}

	delete(m.locks, key)
	return nil
}

// IsHeld reports whether key is currently locked
func (m *Manager) IsHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, held := m.locks[key]
	return held && time.Now().Before(existing.expiresAt)
}

// Cleanup removes expired lock entries
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, e := range m.locks {
		if now.After(e.expiresAt) {
			delete(m.locks, key)
		}
	}
}
