// Package queue provides the durable delivery queue used by the
// webhook pipeline. Messages survive a crash between enqueue and ack
// when backed by Postgres; the in-memory implementation backs tests
// and single-node development.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmpty is returned by Dequeue when no message is ready.
var ErrEmpty = errors.New("queue: no message available")

// Message is a queued webhook delivery
type Message struct {
	ID         string
	Provider   string
	EventType  string
	PaymentID  string
	Payload    []byte
	ReceivedAt time.Time
	Attempts   int
}

// DeadLetter is a message that exhausted its delivery attempts
type DeadLetter struct {
	Message
	Reason string
	DeadAt time.Time
}

// Queue is the durable message queue contract
type Queue interface {
	// Enqueue stores a message for later consumption
	Enqueue(ctx context.Context, msg Message) error

	// Dequeue claims the oldest ready message, or ErrEmpty
	Dequeue(ctx context.Context) (*Message, error)

	// Ack removes a claimed message permanently
	Ack(ctx context.Context, id string) error

	// Nack returns a claimed message to the queue with attempts incremented
	Nack(ctx context.Context, id string) error

	// MoveToDLQ removes a claimed message and records it as dead
	MoveToDLQ(ctx context.Context, id, reason string) error

	// Depth returns the number of messages waiting
	Depth(ctx context.Context) (int, error)

	// DeadLetters returns the dead letter entries, newest first
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
}

// MemoryQueue is an in-memory Queue for tests and development
type MemoryQueue struct {
	mu      sync.Mutex
	ready   []*Message
	claimed map[string]*Message
	dead    []DeadLetter
}

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		claimed: make(map[string]*Message),
	}
}

// Enqueue stores a message for later consumption
func (q *MemoryQueue) Enqueue(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	copied := msg
	q.ready = append(q.ready, &copied)
	return nil
}

// Dequeue claims the oldest ready message
func (q *MemoryQueue) Dequeue(_ context.Context) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil, ErrEmpty
	}

	msg := q.ready[0]
	q.ready = q.ready[1:]
	q.claimed[msg.ID] = msg

	copied := *msg
	return &copied, nil
}

// Ack removes a claimed message permanently
func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.claimed, id)
	return nil
}

// Nack returns a claimed message to the queue with attempts incremented
func (q *MemoryQueue) Nack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.claimed[id]
	if !ok {
		return nil
	}
	delete(q.claimed, id)

	msg.Attempts++
	q.ready = append(q.ready, msg)
	return nil
}

// MoveToDLQ removes a claimed message and records it as dead
func (q *MemoryQueue) MoveToDLQ(_ context.Context, id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.claimed[id]
	if !ok {
		return nil
	}
	delete(q.claimed, id)

	q.dead = append(q.dead, DeadLetter{
		Message: *msg,
		Reason:  reason,
		DeadAt:  time.Now(),
	})
	return nil
}

// Depth returns the number of messages waiting
func (q *MemoryQueue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ready), nil
}

// DeadLetters returns the dead letter entries, newest first
func (q *MemoryQueue) DeadLetters(_ context.Context) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetter, len(q.dead))
	for i := range q.dead {
		out[len(q.dead)-1-i] = q.dead[i]
	}
	return out, nil
}
