package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/logger"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/metrics"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// CreateRequest is the input to Orchestrator.Create
type CreateRequest struct {
	TransactionID string            `json:"transactionId" validate:"required"`
	Provider      string            `json:"provider" validate:"required"`
	Amount        int64             `json:"amount" validate:"required,gt=0"`
	Currency      string            `json:"currency" validate:"required,len=3"`
	CommunityID   string            `json:"communityId,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	Description   string            `json:"description,omitempty"`
	CallbackURL   string            `json:"callbackUrl,omitempty" validate:"omitempty,url"`
	Customer      provider.Customer `json:"customer"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Options tunes orchestrator behavior
type Options struct {
	ProviderTimeout time.Duration
	StatusCacheTTL  time.Duration
}

// Orchestrator drives payments through their lifecycle. All status
// mutation funnels through applyTransitionLocked so API calls,
// webhooks and the reconciler cannot diverge.
type Orchestrator struct {
	store     Store
	registry  *provider.Registry
	cache     *cache.Cache
	locks     *lock.Manager
	publisher EventPublisher

	providerTimeout time.Duration
	statusCacheTTL  time.Duration
}

// NewOrchestrator creates a payment orchestrator
func NewOrchestrator(store Store, registry *provider.Registry, c *cache.Cache, locks *lock.Manager, publisher EventPublisher, opts Options) *Orchestrator {
	if opts.ProviderTimeout == 0 {
		opts.ProviderTimeout = 30 * time.Second
	}
	if opts.StatusCacheTTL == 0 {
		opts.StatusCacheTTL = 5 * time.Minute
	}

	return &Orchestrator{
		store:           store,
		registry:        registry,
		cache:           c,
		locks:           locks,
		publisher:       publisher,
		providerTimeout: opts.ProviderTimeout,
		statusCacheTTL:  opts.StatusCacheTTL,
	}
}

func statusCacheKey(id string) string { return "payment:" + id }
func fullCacheKey(id string) string   { return "payment:full:" + id }
func lockKey(id string) string        { return "lock:" + id }

// Create validates the request, persists a PENDING payment, submits it
// to the provider and records the immediate answer. Runs inside one
// store transaction so a provider failure cannot leave an orphaned row
// with no status.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*Payment, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	adapter, err := o.registry.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Payment{
		ID:            uuid.New().String(),
		TransactionID: req.TransactionID,
		Provider:      req.Provider,
		Status:        StatusPending,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CommunityID:   req.CommunityID,
		UserID:        req.UserID,
		Description:   req.Description,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var transientErr, declinedErr error
	err = o.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
		defer cancel()

		start := time.Now()
		resp, perr := adapter.ProcessPayment(callCtx, provider.PaymentRequest{
			TransactionID: req.TransactionID,
			Amount:        req.Amount,
			Currency:      req.Currency,
			Customer:      req.Customer,
			Description:   req.Description,
			CallbackURL:   req.CallbackURL,
			CommunityID:   req.CommunityID,
			Metadata:      req.Metadata,
		})
		metrics.PaymentDuration.WithLabelValues(req.Provider, "process").Observe(time.Since(start).Seconds())

		switch {
		case perr == nil:
			p.ProviderTransactionID = resp.ProviderTransactionID
			p.AuthorizationCode = resp.AuthorizationCode
			if resp.Status == provider.StatusSuccessful {
				p.Status = StatusCompleted
				processed := time.Now()
				p.ProcessedAt = &processed
			} else if resp.Status == provider.StatusProcessing {
				p.Status = StatusProcessing
			}
			return tx.UpdatePayment(ctx, p)

		case provider.IsDeclined(perr):
			// A decline is a real provider answer: the payment is FAILED
			// and the row is kept for audit.
			p.Status = StatusFailed
			failed := time.Now()
			p.FailedAt = &failed
			p.ErrorMessage = perr.Error()
			if pe, ok := perr.(*provider.Error); ok {
				p.ErrorCode = pe.Code
			}
			if uerr := tx.UpdatePayment(ctx, p); uerr != nil {
				return uerr
			}
			declinedErr = perr
			return nil

		case provider.IsValidation(perr) || provider.IsAuthError(perr):
			// Nothing reached the provider's ledger; roll the row back.
			return perr

		default:
			// Transient failure: commit the PENDING row so reconciliation
			// can re-poll, but surface the error to the caller.
			p.ErrorMessage = perr.Error()
			if uerr := tx.UpdatePayment(ctx, p); uerr != nil {
				return uerr
			}
			transientErr = perr
			return nil
		}
	})

	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(req.Provider, "create", "error").Inc()
		return nil, err
	}

	if declinedErr != nil {
		o.publisher.Publish(ctx, EventPaymentCreated, p)
		o.publisher.Publish(ctx, EventPaymentFailed, p)
		metrics.PaymentsTotal.WithLabelValues(req.Provider, "create", "declined").Inc()
		return p, declinedErr
	}

	if transientErr != nil {
		o.publisher.Publish(ctx, EventPaymentCreated, p)
		metrics.PaymentsTotal.WithLabelValues(req.Provider, "create", "pending").Inc()
		return p, transientErr
	}

	o.publisher.Publish(ctx, EventPaymentCreated, p)
	if p.Status == StatusCompleted {
		o.publisher.Publish(ctx, EventPaymentCompleted, p)
	}
	metrics.PaymentsTotal.WithLabelValues(req.Provider, "create", "ok").Inc()

	logger.Info("payment created", logger.LogContext{
		Provider:  p.Provider,
		PaymentID: p.ID,
		Fields:    map[string]any{"status": p.Status, "amount": p.Amount},
	})

	return p, nil
}

// Capture confirms a pending payment with the provider. Legal only
// from PENDING.
func (o *Orchestrator) Capture(ctx context.Context, id string, amount int64) (*Payment, error) {
	token, err := o.locks.Acquire(ctx, lockKey(id))
	if err != nil {
		metrics.LockContentionTotal.WithLabelValues("timeout").Inc()
		return nil, err
	}
	defer o.locks.Release(lockKey(id), token)

	p, err := o.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusPending {
		return nil, &InvalidStateError{PaymentID: id, Status: p.Status, Operation: "capture"}
	}

	adapter, err := o.registry.Resolve(p.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	start := time.Now()
	resp, err := adapter.ConfirmPayment(callCtx, provider.ConfirmRequest{
		TransactionID:         p.TransactionID,
		ProviderTransactionID: p.ProviderTransactionID,
		Amount:                amount,
	})
	metrics.PaymentDuration.WithLabelValues(p.Provider, "confirm").Observe(time.Since(start).Seconds())

	if err != nil {
		if provider.IsDeclined(err) {
			if _, terr := o.applyTransitionLocked(ctx, p, StatusFailed, "capture"); terr != nil {
				return nil, terr
			}
		}
		// Transient errors leave the payment untouched for reconciliation
		metrics.PaymentsTotal.WithLabelValues(p.Provider, "capture", "error").Inc()
		return nil, err
	}

	p.AuthorizationCode = resp.AuthorizationCode
	if _, err := o.applyTransitionLocked(ctx, p, StatusCompleted, "capture"); err != nil {
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(p.Provider, "capture", "ok").Inc()
	return p, nil
}

// Cancel cancels a payment. Legal only from PENDING/PROCESSING.
func (o *Orchestrator) Cancel(ctx context.Context, id, reason string) (*Payment, error) {
	token, err := o.locks.Acquire(ctx, lockKey(id))
	if err != nil {
		metrics.LockContentionTotal.WithLabelValues("timeout").Inc()
		return nil, err
	}
	defer o.locks.Release(lockKey(id), token)

	p, err := o.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusPending && p.Status != StatusProcessing {
		return nil, &InvalidStateError{PaymentID: id, Status: p.Status, Operation: "cancel"}
	}

	adapter, err := o.registry.Resolve(p.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	if _, err := adapter.CancelPayment(callCtx, provider.CancelRequest{
		TransactionID:         p.TransactionID,
		ProviderTransactionID: p.ProviderTransactionID,
		Reason:                reason,
	}); err != nil {
		metrics.PaymentsTotal.WithLabelValues(p.Provider, "cancel", "error").Inc()
		return nil, err
	}

	if _, err := o.applyTransitionLocked(ctx, p, StatusCancelled, "cancel"); err != nil {
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(p.Provider, "cancel", "ok").Inc()
	return p, nil
}

// Refund reverses part or all of a completed payment. Legal only from
// COMPLETED/PARTIALLY_REFUNDED. The payment's aggregate refund status
// is derived from the refund sum, never stored independently.
func (o *Orchestrator) Refund(ctx context.Context, id string, amount int64, reason string) (*Payment, *Refund, error) {
	if amount <= 0 {
		return nil, nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}

	token, err := o.locks.Acquire(ctx, lockKey(id))
	if err != nil {
		metrics.LockContentionTotal.WithLabelValues("timeout").Inc()
		return nil, nil, err
	}
	defer o.locks.Release(lockKey(id), token)

	p, err := o.store.GetPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if p.Status != StatusCompleted && p.Status != StatusPartiallyRefunded {
		return nil, nil, &InvalidStateError{PaymentID: id, Status: p.Status, Operation: "refund"}
	}

	refunds, err := o.store.RefundsForPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var refunded int64
	for _, r := range refunds {
		if r.Status != StatusFailed {
			refunded += r.Amount
		}
	}
	if refunded+amount > p.Amount {
		return nil, nil, &RefundExceedsAmountError{
			PaymentID: id, Requested: amount, Refunded: refunded, Amount: p.Amount,
		}
	}

	adapter, err := o.registry.Resolve(p.Provider)
	if err != nil {
		return nil, nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	start := time.Now()
	resp, err := adapter.RefundPayment(callCtx, provider.RefundRequest{
		TransactionID:         p.TransactionID,
		ProviderTransactionID: p.ProviderTransactionID,
		Amount:                amount,
		Currency:              p.Currency,
		Reason:                reason,
	})
	metrics.PaymentDuration.WithLabelValues(p.Provider, "refund").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(p.Provider, "refund", "error").Inc()
		return nil, nil, err
	}

	now := time.Now()
	refund := &Refund{
		ID:                  uuid.New().String(),
		PaymentID:           id,
		RefundTransactionID: uuid.New().String(),
		ProviderRefundID:    resp.ProviderRefundID,
		Amount:              amount,
		Reason:              reason,
		Status:              StatusRefunded,
		CreatedAt:           now,
		ProcessedAt:         &now,
	}
	if err := o.store.CreateRefund(ctx, refund); err != nil {
		return nil, nil, err
	}

	// Derive aggregate state from the refund sum
	target := StatusPartiallyRefunded
	if refunded+amount == p.Amount {
		target = StatusRefunded
	}
	if _, err := o.applyTransitionLocked(ctx, p, target, "refund"); err != nil {
		return nil, nil, err
	}
	p.RefundedAt = &now
	if err := o.store.UpdatePayment(ctx, p); err != nil {
		return nil, nil, err
	}

	o.publisher.Publish(ctx, EventPaymentRefunded, refund)
	metrics.PaymentsTotal.WithLabelValues(p.Provider, "refund", "ok").Inc()
	return p, refund, nil
}

// Get returns the payment hydrated with its refunds, cache-first
func (o *Orchestrator) Get(ctx context.Context, id string) (*Payment, []Refund, error) {
	type hydrated struct {
		Payment *Payment
		Refunds []Refund
	}

	if cached, ok := o.cache.Get(fullCacheKey(id)); ok {
		h := cached.(hydrated)
		return h.Payment, h.Refunds, nil
	}

	p, err := o.store.GetPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	refunds, err := o.store.RefundsForPayment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	o.cache.Set(fullCacheKey(id), hydrated{Payment: p, Refunds: refunds}, o.statusCacheTTL)
	return p, refunds, nil
}

// GetStatus returns the short status projection, cache-first. No lock.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*StatusProjection, error) {
	if cached, ok := o.cache.Get(statusCacheKey(id)); ok {
		proj := cached.(StatusProjection)
		return &proj, nil
	}

	p, err := o.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	proj := StatusProjection{ID: p.ID, Status: p.Status, Provider: p.Provider}
	o.cache.Set(statusCacheKey(id), proj, o.statusCacheTTL)
	return &proj, nil
}

// FindByTransactionID returns the payment for a merchant transaction id
func (o *Orchestrator) FindByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	return o.store.GetPaymentByTransactionID(ctx, transactionID)
}

// List returns payments matching the filter
func (o *Orchestrator) List(ctx context.Context, filter Filter) ([]Payment, error) {
	return o.store.ListPayments(ctx, filter)
}

// Retry re-submits a FAILED payment as a fresh provider attempt in the
// same transaction id lineage
func (o *Orchestrator) Retry(ctx context.Context, id string) (*Payment, error) {
	token, err := o.locks.Acquire(ctx, lockKey(id))
	if err != nil {
		metrics.LockContentionTotal.WithLabelValues("timeout").Inc()
		return nil, err
	}
	defer o.locks.Release(lockKey(id), token)

	p, err := o.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusFailed {
		return nil, &InvalidStateError{PaymentID: id, Status: p.Status, Operation: "retry"}
	}

	attempt := 1
	if prev := p.Metadata["retry_attempt"]; prev != "" {
		fmt.Sscanf(prev, "%d", &attempt)
		attempt++
	}

	metadata := make(map[string]string, len(p.Metadata)+2)
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata["retry_of"] = p.ID
	metadata["retry_attempt"] = fmt.Sprintf("%d", attempt)

	return o.Create(ctx, CreateRequest{
		TransactionID: fmt.Sprintf("%s/r%d", p.TransactionID, attempt),
		Provider:      p.Provider,
		Amount:        p.Amount,
		Currency:      p.Currency,
		CommunityID:   p.CommunityID,
		UserID:        p.UserID,
		Description:   p.Description,
		Metadata:      metadata,
	})
}

// ApplyTransition is the idempotent transition authority shared by the
// webhook consumer and the reconciler. It locks the payment, applies
// the transition if it is a real change and legal, invalidates caches
// and emits payment.status_changed. Returns whether a change happened.
func (o *Orchestrator) ApplyTransition(ctx context.Context, transactionID string, target Status, source string) (bool, error) {
	p, err := o.store.GetPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return false, err
	}

	token, err := o.locks.Acquire(ctx, lockKey(p.ID))
	if err != nil {
		metrics.LockContentionTotal.WithLabelValues("timeout").Inc()
		return false, err
	}
	defer o.locks.Release(lockKey(p.ID), token)

	// Re-read under the lock; a concurrent mutation may have advanced it
	p, err = o.store.GetPayment(ctx, p.ID)
	if err != nil {
		return false, err
	}

	return o.applyTransitionLocked(ctx, p, target, source)
}

// applyTransitionLocked applies a status change for callers already
// holding the payment lock. Same-status is an idempotent no-op;
// illegal transitions are rejected, never forced.
func (o *Orchestrator) applyTransitionLocked(ctx context.Context, p *Payment, target Status, source string) (bool, error) {
	if p.Status == target {
		return false, nil
	}

	if !CanTransition(p.Status, target) {
		return false, &InvalidStateError{
			PaymentID: p.ID,
			Status:    p.Status,
			Operation: fmt.Sprintf("transition to %s (via %s)", target, source),
		}
	}

	from := p.Status
	p.Status = target

	now := time.Now()
	switch target {
	case StatusCompleted:
		p.ProcessedAt = &now
	case StatusFailed:
		p.FailedAt = &now
	case StatusRefunded, StatusPartiallyRefunded:
		p.RefundedAt = &now
	}

	if err := o.store.UpdatePayment(ctx, p); err != nil {
		p.Status = from
		return false, err
	}

	// Invalidate, don't overwrite: the next read rebuilds from the store
	o.cache.Delete(statusCacheKey(p.ID))
	o.cache.Delete(fullCacheKey(p.ID))

	metrics.StatusTransitionsTotal.WithLabelValues(string(from), string(target)).Inc()
	o.publisher.Publish(ctx, EventPaymentStatusChanged, map[string]any{
		"payment_id": p.ID,
		"from":       from,
		"to":         target,
		"source":     source,
	})
	if target == StatusCompleted {
		o.publisher.Publish(ctx, EventPaymentCompleted, p)
	}
	if target == StatusFailed {
		o.publisher.Publish(ctx, EventPaymentFailed, p)
	}

	logger.Info("payment status changed", logger.LogContext{
		Provider:  p.Provider,
		PaymentID: p.ID,
		Fields:    map[string]any{"from": from, "to": target, "source": source},
	})

	return true, nil
}

func validateCreate(req CreateRequest) error {
	if req.TransactionID == "" {
		return &ValidationError{Field: "transactionId", Message: "is required"}
	}
	if req.Provider == "" {
		return &ValidationError{Field: "provider", Message: "is required"}
	}
	if req.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if len(req.Currency) != 3 {
		return &ValidationError{Field: "currency", Message: "must be a 3-letter ISO code"}
	}
	if req.Customer.Email == "" && req.Customer.ID == "" {
		return &ValidationError{Field: "customer", Message: "id or email is required"}
	}
	return nil
}
