// Package reconcile sweeps payments stuck in flight and brings them in
// line with the provider's view.
package reconcile

import (
	"context"
	"time"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/logger"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/metrics"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/schedule"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// Options tunes the sweep cadence and age thresholds
type Options struct {
	Interval     time.Duration
	StaleAfter   time.Duration
	ExpireAfter  time.Duration
	QueryTimeout time.Duration
}

// Reconciler periodically polls providers for payments that have been
// PENDING or PROCESSING too long. Anything unanswered past the expiry
// horizon is forced to EXPIRED through the same transition authority
// every other path uses.
type Reconciler struct {
	store        payment.Store
	registry     *provider.Registry
	orchestrator *payment.Orchestrator
	scheduler    *schedule.Scheduler

	interval     time.Duration
	staleAfter   time.Duration
	expireAfter  time.Duration
	queryTimeout time.Duration
}

// New creates a reconciler
func New(store payment.Store, registry *provider.Registry, orchestrator *payment.Orchestrator,
	scheduler *schedule.Scheduler, opts Options) *Reconciler {
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.StaleAfter == 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	if opts.ExpireAfter == 0 {
		opts.ExpireAfter = 2 * time.Hour
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 15 * time.Second
	}

	return &Reconciler{
		store:        store,
		registry:     registry,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		interval:     opts.Interval,
		staleAfter:   opts.StaleAfter,
		expireAfter:  opts.ExpireAfter,
		queryTimeout: opts.QueryTimeout,
	}
}

// Start arms the periodic sweep
func (r *Reconciler) Start() {
	r.scheduler.Every("reconcile:sweep", r.interval, func() {
		if err := r.Sweep(context.Background()); err != nil {
			logger.Error("reconcile sweep failed", err, logger.LogContext{})
		}
	})
}

// Stop cancels the periodic sweep
func (r *Reconciler) Stop() {
	r.scheduler.Cancel("reconcile:sweep")
}

// Sweep processes every payment stuck past the stale threshold
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.staleAfter)
	stuck, err := r.store.ListUnsettled(ctx, cutoff)
	if err != nil {
		return err
	}

	for i := range stuck {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.reconcileOne(ctx, &stuck[i])
	}
	return nil
}

// reconcileOne polls the provider for one stuck payment and applies
// whatever it answers. A payment past the expiry horizon with no
// settled answer is expired.
func (r *Reconciler) reconcileOne(ctx context.Context, p *payment.Payment) {
	adapter, err := r.registry.Resolve(p.Provider)
	if err != nil {
		logger.Error("reconcile: unknown provider", err, logger.LogContext{
			Provider:  p.Provider,
			PaymentID: p.ID,
		})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	resp, err := adapter.GetTransaction(callCtx, provider.StatusRequest{
		TransactionID:         p.TransactionID,
		ProviderTransactionID: p.ProviderTransactionID,
	})

	expired := time.Since(p.CreatedAt) > r.expireAfter

	if err != nil {
		if expired {
			r.expire(ctx, p)
			return
		}
		metrics.ReconcileSweepsTotal.WithLabelValues("unreachable").Inc()
		logger.Warn("reconcile: provider unreachable", logger.LogContext{
			Provider:  p.Provider,
			PaymentID: p.ID,
			Fields:    map[string]any{"error": err.Error()},
		})
		return
	}

	target := statusFromProvider(resp.Status)
	if target == payment.StatusUnknown || target == p.Status || !target.IsSettled() {
		// The provider still has it in flight
		if expired {
			r.expire(ctx, p)
			return
		}
		metrics.ReconcileSweepsTotal.WithLabelValues("unchanged").Inc()
		return
	}

	changed, err := r.orchestrator.ApplyTransition(ctx, p.TransactionID, target, "reconcile")
	if err != nil {
		metrics.ReconcileSweepsTotal.WithLabelValues("rejected").Inc()
		logger.Warn("reconcile: transition rejected", logger.LogContext{
			Provider:  p.Provider,
			PaymentID: p.ID,
			Fields:    map[string]any{"target": target, "error": err.Error()},
		})
		return
	}
	if changed {
		metrics.ReconcileSweepsTotal.WithLabelValues("settled").Inc()
	}
}

func (r *Reconciler) expire(ctx context.Context, p *payment.Payment) {
	if _, err := r.orchestrator.ApplyTransition(ctx, p.TransactionID, payment.StatusExpired, "reconcile:expiry"); err != nil {
		logger.Error("reconcile: expiry failed", err, logger.LogContext{
			Provider:  p.Provider,
			PaymentID: p.ID,
		})
		return
	}
	metrics.ReconcileSweepsTotal.WithLabelValues("expired").Inc()
	logger.Warn("payment expired by reconciliation", logger.LogContext{
		Provider:  p.Provider,
		PaymentID: p.ID,
	})
}

// statusFromProvider maps the provider-side status enum to the
// canonical one
func statusFromProvider(s provider.Status) payment.Status {
	switch s {
	case provider.StatusSuccessful:
		return payment.StatusCompleted
	case provider.StatusFailed:
		return payment.StatusFailed
	case provider.StatusCancelled:
		return payment.StatusCancelled
	case provider.StatusProcessing:
		return payment.StatusProcessing
	case provider.StatusPending:
		return payment.StatusPending
	case provider.StatusRefunded:
		return payment.StatusRefunded
	default:
		return payment.StatusUnknown
	}
}
