package split

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/logger"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/metrics"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/schedule"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// CreateRequest is the input to Coordinator.CreateSplit
type CreateRequest struct {
	TransactionID string            `json:"transactionId" validate:"required"`
	Provider      string            `json:"provider" validate:"required"`
	Amount        int64             `json:"amount" validate:"required,gt=0"`
	Currency      string            `json:"currency" validate:"required,len=3"`
	CommunityID   string            `json:"communityId,omitempty"`
	Description   string            `json:"description,omitempty"`
	Customer      provider.Customer `json:"customer"`
	Recipients    []Recipient       `json:"recipients" validate:"required,min=1"`
}

// StatusView is the hydrated answer served by Status
type StatusView struct {
	Master        *Master        `json:"split"`
	Distributions []Distribution `json:"distributions"`
	Summary       Summary        `json:"summary"`
}

// Options tunes the coordinator's retry policy
type Options struct {
	MaxRetries      int
	RetryBase       time.Duration
	ProviderTimeout time.Duration
}

// Coordinator runs the split saga: collect the main payment first,
// then record and execute the per-recipient distributions. A failed
// collection never leaves split rows behind.
type Coordinator struct {
	payments  *payment.Orchestrator
	store     Store
	registry  *provider.Registry
	cache     *cache.Cache
	scheduler *schedule.Scheduler
	publisher payment.EventPublisher

	maxRetries      int
	retryBase       time.Duration
	providerTimeout time.Duration
}

// NewCoordinator creates a split coordinator
func NewCoordinator(payments *payment.Orchestrator, store Store, registry *provider.Registry,
	c *cache.Cache, scheduler *schedule.Scheduler, publisher payment.EventPublisher, opts Options) *Coordinator {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBase == 0 {
		opts.RetryBase = 5 * time.Minute
	}
	if opts.ProviderTimeout == 0 {
		opts.ProviderTimeout = 30 * time.Second
	}

	return &Coordinator{
		payments:        payments,
		store:           store,
		registry:        registry,
		cache:           c,
		scheduler:       scheduler,
		publisher:       publisher,
		maxRetries:      opts.MaxRetries,
		retryBase:       opts.RetryBase,
		providerTimeout: opts.ProviderTimeout,
	}
}

const masterCacheTTL = 7 * 24 * time.Hour

func masterCacheKey(id string) string { return "split:master:" + id }
func retryKey(id string) string       { return "split:retry:" + id }

// CreateSplit validates the plan, collects the main payment and, only
// once the collection is accepted, persists the master and its
// distributions in one transaction
func (c *Coordinator) CreateSplit(ctx context.Context, req CreateRequest) (*StatusView, error) {
	plan, err := NewPlan(req.Recipients)
	if err != nil {
		return nil, err
	}
	shares, err := plan.ComputeShares(req.Amount)
	if err != nil {
		return nil, err
	}

	p, err := c.payments.Create(ctx, payment.CreateRequest{
		TransactionID: req.TransactionID,
		Provider:      req.Provider,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CommunityID:   req.CommunityID,
		Description:   req.Description,
		Customer:      req.Customer,
		Metadata:      map[string]string{"split": "true"},
	})
	if err != nil && (p == nil || p.Status != payment.StatusPending) {
		// Collection failed outright; abort before any split row exists
		return nil, err
	}

	now := time.Now()
	master := &Master{
		ID:            uuid.New().String(),
		PaymentID:     p.ID,
		TransactionID: req.TransactionID,
		Provider:      req.Provider,
		TotalAmount:   req.Amount,
		Currency:      req.Currency,
		Mode:          plan.Mode,
		Status:        MasterProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	byID := make(map[string]Recipient, len(req.Recipients))
	for _, r := range req.Recipients {
		byID[r.ID] = r
	}

	txErr := c.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateMaster(ctx, master); err != nil {
			return err
		}
		for _, share := range shares {
			r := byID[share.RecipientID]
			d := &Distribution{
				ID:            uuid.New().String(),
				MasterID:      master.ID,
				RecipientID:   r.ID,
				RecipientName: r.Name,
				BankAccount:   r.BankAccount,
				Amount:        share.Amount,
				IsMain:        share.IsMain,
				Status:        DistributionPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.CreateDistribution(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		// The collection went through but the split rows did not; void
		// the payment so no money sits behind a lost distribution plan
		if _, cerr := c.payments.Cancel(ctx, p.ID, "split persistence failed"); cerr != nil {
			logger.Error("split compensation failed, payment needs manual review", cerr, logger.LogContext{
				Provider:  req.Provider,
				PaymentID: p.ID,
			})
		}
		return nil, txErr
	}

	// Collection already settled synchronously; distribute right away.
	// Otherwise the webhook consumer triggers it on completion.
	if p.Status == payment.StatusCompleted {
		if err := c.DistributeFunds(ctx, master.ID); err != nil {
			logger.Error("split distribution failed", err, logger.LogContext{
				Provider:  master.Provider,
				PaymentID: master.PaymentID,
				Fields:    map[string]any{"split_id": master.ID},
			})
		}
	}

	return c.Status(ctx, master.ID)
}

// OnPaymentCompleted triggers distribution for the split tied to a
// payment, if any. Called by the webhook consumer.
func (c *Coordinator) OnPaymentCompleted(ctx context.Context, paymentID string) error {
	master, err := c.store.GetMasterByPaymentID(ctx, paymentID)
	if err != nil {
		if _, ok := err.(*SplitNotFoundError); ok {
			return nil
		}
		return err
	}
	return c.DistributeFunds(ctx, master.ID)
}

// DistributeFunds executes the pending and previously failed payouts
// of a split. A single recipient failure never blocks the others; the
// master ends PARTIALLY_DISTRIBUTED and a retry is scheduled with
// exponential backoff, up to the retry ceiling.
func (c *Coordinator) DistributeFunds(ctx context.Context, masterID string) error {
	master, err := c.store.GetMaster(ctx, masterID)
	if err != nil {
		return err
	}
	if master.Status == MasterCancelled || master.Status == MasterCompleted {
		return nil
	}

	adapter, err := c.registry.Resolve(master.Provider)
	if err != nil {
		return err
	}

	distributions, err := c.store.DistributionsForMaster(ctx, masterID)
	if err != nil {
		return err
	}

	master.Status = MasterProcessing
	if err := c.store.UpdateMaster(ctx, master); err != nil {
		return err
	}

	var failed int
	for i := range distributions {
		d := &distributions[i]
		if d.Status != DistributionPending && d.Status != DistributionFailed {
			continue
		}

		if err := c.payout(ctx, adapter, master, d); err != nil {
			failed++
			d.Status = DistributionFailed
			d.ErrorMessage = err.Error()
		} else {
			d.Status = DistributionCompleted
			d.ErrorMessage = ""
		}
		if uerr := c.store.UpdateDistribution(ctx, d); uerr != nil {
			return uerr
		}
	}

	c.cache.Delete(masterCacheKey(masterID))

	if failed == 0 {
		master.Status = MasterCompleted
		done := time.Now()
		master.CompletedAt = &done
		if err := c.store.UpdateMaster(ctx, master); err != nil {
			return err
		}
		metrics.SplitDistributionsTotal.WithLabelValues("completed").Inc()
		c.publisher.Publish(ctx, payment.EventSplitCompleted, master)
		return nil
	}

	master.Status = MasterPartiallyDistributed
	scheduled := c.scheduleRetry(master)
	if err := c.store.UpdateMaster(ctx, master); err != nil {
		return err
	}
	metrics.SplitDistributionsTotal.WithLabelValues("partial").Inc()
	c.publisher.Publish(ctx, payment.EventSplitPartiallyDistributed, master)

	logger.Warn("split partially distributed", logger.LogContext{
		Provider:  master.Provider,
		PaymentID: master.PaymentID,
		Fields: map[string]any{
			"split_id":        master.ID,
			"failed":          failed,
			"retry_scheduled": scheduled,
		},
	})
	return nil
}

// payout transfers one distribution's amount to its recipient
func (c *Coordinator) payout(ctx context.Context, adapter provider.Adapter, master *Master, d *Distribution) error {
	if d.Amount == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	if bank, ok := adapter.(provider.BankAdapter); ok {
		if err := bank.ValidateBankAccount(ctx, d.BankAccount); err != nil {
			return err
		}
	}

	resp, err := adapter.ProcessPayment(ctx, provider.PaymentRequest{
		TransactionID: fmt.Sprintf("%s/d/%s", master.TransactionID, d.RecipientID),
		Amount:        d.Amount,
		Currency:      master.Currency,
		Customer: provider.Customer{
			ID:    d.RecipientID,
			Name:  d.RecipientName,
			Email: "",
		},
		Description: fmt.Sprintf("split payout %s", master.ID),
		Metadata:    map[string]string{"split_id": master.ID, "recipient_id": d.RecipientID},
	})
	if err != nil {
		return err
	}

	d.TransferID = resp.ProviderTransactionID
	return nil
}

// scheduleRetry arms the backoff timer for a partially distributed
// split. Returns false once the retry ceiling is reached.
func (c *Coordinator) scheduleRetry(master *Master) bool {
	if master.RetryCount >= c.maxRetries {
		return false
	}

	delay := time.Duration(math.Pow(3, float64(master.RetryCount))) * c.retryBase
	master.RetryCount++
	metrics.SplitRetriesTotal.Inc()

	id := master.ID
	c.scheduler.After(retryKey(id), delay, func() {
		if err := c.DistributeFunds(context.Background(), id); err != nil {
			logger.Error("split retry failed", err, logger.LogContext{
				Fields: map[string]any{"split_id": id},
			})
		}
	})
	return true
}

// Cancel aborts a split all-or-nothing: it is rejected as soon as any
// recipient has been paid
func (c *Coordinator) Cancel(ctx context.Context, masterID, reason string) (*StatusView, error) {
	master, err := c.store.GetMaster(ctx, masterID)
	if err != nil {
		return nil, err
	}

	distributions, err := c.store.DistributionsForMaster(ctx, masterID)
	if err != nil {
		return nil, err
	}
	for _, d := range distributions {
		if d.Status == DistributionCompleted {
			return nil, &payment.InvalidStateError{
				PaymentID: master.PaymentID,
				Status:    payment.Status(master.Status),
				Operation: "cancel split",
			}
		}
	}

	c.scheduler.Cancel(retryKey(masterID))

	// Cancel the collection if it is still cancellable; an already
	// settled payment keeps its state and only the split is voided
	if _, err := c.payments.Cancel(ctx, master.PaymentID, reason); err != nil && !payment.IsInvalidState(err) {
		return nil, err
	}

	err = c.store.WithTx(ctx, func(tx Store) error {
		master.Status = MasterCancelled
		if err := tx.UpdateMaster(ctx, master); err != nil {
			return err
		}
		for i := range distributions {
			d := &distributions[i]
			d.Status = DistributionCancelled
			if err := tx.UpdateDistribution(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Delete(masterCacheKey(masterID))
	c.publisher.Publish(ctx, payment.EventSplitCancelled, master)
	return c.Status(ctx, masterID)
}

// Status returns the split with its distributions and derived summary,
// cache-first
func (c *Coordinator) Status(ctx context.Context, masterID string) (*StatusView, error) {
	if cached, ok := c.cache.Get(masterCacheKey(masterID)); ok {
		view := cached.(StatusView)
		return &view, nil
	}

	master, err := c.store.GetMaster(ctx, masterID)
	if err != nil {
		return nil, err
	}
	distributions, err := c.store.DistributionsForMaster(ctx, masterID)
	if err != nil {
		return nil, err
	}

	view := StatusView{
		Master:        master,
		Distributions: distributions,
		Summary:       Summarize(master, distributions),
	}
	c.cache.Set(masterCacheKey(masterID), view, masterCacheTTL)
	return &view, nil
}
