// Package webhook receives provider callbacks, verifies and queues
// them, and applies the resulting status transitions.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/logger"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/metrics"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/opensearch"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/queue"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/split"
)

// ErrBadSignature rejects a webhook whose signature does not verify
var ErrBadSignature = errors.New("webhook: signature verification failed")

// Pipeline is the ingress side: verify, normalize, enqueue
type Pipeline struct {
	registry *provider.Registry
	queue    queue.Queue
	audit    *opensearch.Logger
}

// NewPipeline creates the webhook ingress pipeline
func NewPipeline(registry *provider.Registry, q queue.Queue, audit *opensearch.Logger) *Pipeline {
	return &Pipeline{registry: registry, queue: q, audit: audit}
}

// HandleIncoming verifies and enqueues one raw webhook delivery.
// Providers with no webhook secret configured are accepted with the
// audit record flagging the unverified signature.
func (p *Pipeline) HandleIncoming(ctx context.Context, providerName, requestID string, payload []byte, signature string) error {
	adapter, err := p.registry.Resolve(providerName)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(providerName, "unknown_provider").Inc()
		return err
	}

	verified := false
	ok, verr := adapter.VerifySignature(payload, signature)
	switch {
	case errors.Is(verr, provider.ErrNoWebhookSecret):
		logger.Warn("webhook accepted without signature verification", logger.LogContext{
			Provider:  providerName,
			RequestID: requestID,
		})
	case verr != nil || !ok:
		p.writeAudit(ctx, providerName, "", requestID, payload, false, false, "bad signature")
		metrics.WebhooksTotal.WithLabelValues(providerName, "bad_signature").Inc()
		return ErrBadSignature
	default:
		verified = true
	}

	event, err := adapter.Normalize(payload)
	if err != nil {
		p.writeAudit(ctx, providerName, "", requestID, payload, verified, false, "malformed payload")
		metrics.WebhooksTotal.WithLabelValues(providerName, "malformed").Inc()
		return err
	}

	msg := queue.Message{
		ID:         deliveryID(providerName, event),
		Provider:   providerName,
		EventType:  event.Event,
		PaymentID:  event.TransactionID,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	if err := p.queue.Enqueue(ctx, msg); err != nil {
		return err
	}

	if depth, derr := p.queue.Depth(ctx); derr == nil {
		metrics.WebhookQueueDepth.Set(float64(depth))
	}

	p.writeAudit(ctx, providerName, event.TransactionID, requestID, payload, verified, true, "")
	metrics.WebhooksTotal.WithLabelValues(providerName, "accepted").Inc()
	return nil
}

func (p *Pipeline) writeAudit(ctx context.Context, providerName, paymentID, requestID string, payload []byte, verified, accepted bool, reason string) {
	if p.audit == nil {
		return
	}
	_ = p.audit.LogWebhookAudit(ctx, opensearch.WebhookAudit{
		Timestamp:         time.Now(),
		Provider:          providerName,
		EventType:         "webhook.received",
		PaymentID:         paymentID,
		RequestID:         requestID,
		Payload:           string(payload),
		SignatureVerified: verified,
		Accepted:          accepted,
		Reason:            reason,
	})
}

// deliveryID makes duplicate deliveries of the same provider event
// collide in the queue, so redelivery storms collapse to one message
func deliveryID(providerName string, event *provider.WebhookEvent) string {
	sum := sha256.Sum256([]byte(providerName + "|" + event.TransactionID + "|" + event.Status + "|" + event.Event))
	return hex.EncodeToString(sum[:16])
}

// Consumer is the egress side: drain the queue and apply transitions
type Consumer struct {
	registry     *provider.Registry
	queue        queue.Queue
	orchestrator *payment.Orchestrator
	splits       *split.Coordinator

	maxAttempts int
	idle        time.Duration
}

// NewConsumer creates a webhook consumer. splits may be nil when split
// payments are disabled.
func NewConsumer(registry *provider.Registry, q queue.Queue, orchestrator *payment.Orchestrator, splits *split.Coordinator) *Consumer {
	return &Consumer{
		registry:     registry,
		queue:        q,
		orchestrator: orchestrator,
		splits:       splits,
		maxAttempts:  5,
		idle:         200 * time.Millisecond,
	}
}

// Run drains the queue until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) {
	for {
		if err := c.ProcessOne(ctx); err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.idle):
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error("webhook consume failed", err, logger.LogContext{})
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// ProcessOne claims and processes a single queued delivery
func (c *Consumer) ProcessOne(ctx context.Context) error {
	msg, err := c.queue.Dequeue(ctx)
	if err != nil {
		return err
	}

	if perr := c.process(ctx, msg); perr != nil {
		// Attempts counts prior deliveries; this one makes Attempts+1
		if msg.Attempts+1 >= c.maxAttempts {
			metrics.WebhookDLQTotal.WithLabelValues(msg.Provider).Inc()
			logger.Error("webhook moved to dead letter queue", perr, logger.LogContext{
				Provider:  msg.Provider,
				PaymentID: msg.PaymentID,
				Fields:    map[string]any{"attempts": msg.Attempts},
			})
			return c.queue.MoveToDLQ(ctx, msg.ID, perr.Error())
		}
		return c.queue.Nack(ctx, msg.ID)
	}

	return c.queue.Ack(ctx, msg.ID)
}

func (c *Consumer) process(ctx context.Context, msg *queue.Message) error {
	adapter, err := c.registry.Resolve(msg.Provider)
	if err != nil {
		return err
	}

	event, err := adapter.Normalize(msg.Payload)
	if err != nil {
		return err
	}

	target := resolveStatus(adapter, event.Status)
	if target == payment.StatusUnknown {
		// Not a retryable condition: flag it and drop the delivery
		metrics.WebhooksTotal.WithLabelValues(msg.Provider, "unknown_status").Inc()
		logger.Warn("webhook reported unknown status", logger.LogContext{
			Provider:  msg.Provider,
			PaymentID: event.TransactionID,
			Fields:    map[string]any{"provider_status": event.Status},
		})
		return nil
	}

	changed, err := c.orchestrator.ApplyTransition(ctx, event.TransactionID, target, "webhook:"+msg.Provider)
	if err != nil {
		if payment.IsInvalidState(err) {
			// Out-of-order or duplicate delivery; the current state wins
			logger.Warn("webhook transition rejected", logger.LogContext{
				Provider:  msg.Provider,
				PaymentID: event.TransactionID,
				Fields:    map[string]any{"target": target, "error": err.Error()},
			})
			return nil
		}
		return err
	}

	if changed && target == payment.StatusCompleted && c.splits != nil {
		p, gerr := c.orchestrator.FindByTransactionID(ctx, event.TransactionID)
		if gerr == nil {
			if serr := c.splits.OnPaymentCompleted(ctx, p.ID); serr != nil {
				logger.Error("split distribution after webhook failed", serr, logger.LogContext{
					Provider:  msg.Provider,
					PaymentID: p.ID,
				})
			}
		}
	}

	return nil
}

// resolveStatus maps a provider status through the adapter's table to
// a canonical Status
func resolveStatus(adapter provider.Adapter, providerStatus string) payment.Status {
	name, ok := adapter.StatusTable()[providerStatus]
	if !ok {
		return payment.StatusUnknown
	}
	status, ok := payment.ParseStatus(name)
	if !ok {
		return payment.StatusUnknown
	}
	return status
}
