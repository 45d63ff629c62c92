// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsTotal counts payment operations by provider and outcome
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_payments_total",
		Help: "Total payment operations processed, labeled by provider and outcome",
	}, []string{"provider", "operation", "outcome"})

	// PaymentDuration tracks provider call latency
	PaymentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paycore_provider_request_duration_seconds",
		Help:    "Latency distribution of provider API calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"provider", "operation"})

	// StatusTransitionsTotal counts payment status transitions
	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_status_transitions_total",
		Help: "Total payment status transitions, labeled by from and to status",
	}, []string{"from", "to"})

	// WebhooksTotal counts webhook deliveries by provider and result
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_webhooks_total",
		Help: "Total webhook deliveries received, labeled by provider and result",
	}, []string{"provider", "result"})

	// WebhookQueueDepth tracks the pending webhook queue size
	WebhookQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paycore_webhook_queue_depth",
		Help: "Number of webhook events waiting to be consumed",
	})

	// WebhookDLQTotal counts webhook events routed to the dead letter queue
	WebhookDLQTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_webhook_dlq_total",
		Help: "Total webhook events moved to the dead letter queue",
	}, []string{"provider"})

	// SplitDistributionsTotal counts split distribution attempts by outcome
	SplitDistributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_split_distributions_total",
		Help: "Total split distribution transfers attempted, labeled by outcome",
	}, []string{"outcome"})

	// SplitRetriesTotal counts scheduled retries of failed distributions
	SplitRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paycore_split_retries_total",
		Help: "Total scheduled retries of failed split distributions",
	})

	// ReconcileSweepsTotal counts reconciliation sweeps by action taken
	ReconcileSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_reconcile_actions_total",
		Help: "Total reconciliation actions applied to stuck payments",
	}, []string{"action"})

	// LockContentionTotal counts lock acquisitions that had to wait or failed
	LockContentionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paycore_lock_contention_total",
		Help: "Total lock acquisition attempts that found the lock held",
	}, []string{"result"})
)
