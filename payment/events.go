package payment

import (
	"context"
	"sync"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/logger"
)

// Domain event types emitted by the orchestrator and its collaborators
const (
	EventPaymentCreated       = "payment.created"
	EventPaymentCompleted     = "payment.completed"
	EventPaymentFailed        = "payment.failed"
	EventPaymentStatusChanged = "payment.status_changed"
	EventPaymentRefunded      = "payment.refunded"

	EventSplitCompleted            = "split.completed"
	EventSplitPartiallyDistributed = "split.partially_distributed"
	EventSplitCancelled            = "split.cancelled"
)

// EventPublisher broadcasts domain events. Injected into every
// component that emits them, never inherited or global.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

// LogPublisher writes domain events to the system logger
type LogPublisher struct{}

// Publish logs the event
func (LogPublisher) Publish(_ context.Context, eventType string, payload any) {
	logger.Info("domain event", logger.LogContext{
		Fields: map[string]any{
			"event_type": eventType,
			"payload":    payload,
		},
	})
}

// MemoryPublisher records events for assertions in tests
type MemoryPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

// PublishedEvent is one recorded event
type PublishedEvent struct {
	Type    string
	Payload any
}

// Publish records the event
func (p *MemoryPublisher) Publish(_ context.Context, eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Type: eventType, Payload: payload})
}

// Events returns all recorded events
func (p *MemoryPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// CountByType returns how many events of the given type were recorded
func (p *MemoryPublisher) CountByType(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, e := range p.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}
