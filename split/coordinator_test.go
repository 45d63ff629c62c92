package split

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/schedule"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// payoutAdapter collects the main payment instantly and lets tests
// fail individual recipient payouts. Payout requests are recognized by
// their split metadata.
type payoutAdapter struct {
	declineCollection bool
	pendingCollection bool
	hangPayouts       bool

	mu             sync.Mutex
	failRecipients map[string]bool
	payouts        int
}

func (a *payoutAdapter) failRecipient(id string, fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failRecipients == nil {
		a.failRecipients = make(map[string]bool)
	}
	a.failRecipients[id] = fail
}

func (a *payoutAdapter) payoutCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payouts
}

func (a *payoutAdapter) Initialize(map[string]string) error { return nil }

func (a *payoutAdapter) RequiredConfig(string) []provider.ConfigField { return nil }

func (a *payoutAdapter) ValidateConfig(map[string]string) error { return nil }

func (a *payoutAdapter) ProcessPayment(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResponse, error) {
	if recipientID, isPayout := req.Metadata["recipient_id"]; isPayout {
		a.mu.Lock()
		a.payouts++
		fail := a.failRecipients[recipientID]
		a.mu.Unlock()
		if a.hangPayouts {
			<-ctx.Done()
			return nil, provider.NewUnavailableError("fake", "transfer timed out", ctx.Err())
		}
		if fail {
			return nil, provider.NewUnavailableError("fake", "transfer rejected", nil)
		}
		return &provider.PaymentResponse{
			Success:               true,
			Status:                provider.StatusSuccessful,
			ProviderTransactionID: "transfer-" + recipientID,
		}, nil
	}

	if a.declineCollection {
		return nil, provider.NewDeclinedError("fake", "51", "insufficient funds")
	}
	if a.pendingCollection {
		return &provider.PaymentResponse{
			Success:               true,
			Status:                provider.StatusPending,
			TransactionID:         req.TransactionID,
			ProviderTransactionID: "prov-" + req.TransactionID,
		}, nil
	}
	return &provider.PaymentResponse{
		Success:               true,
		Status:                provider.StatusSuccessful,
		TransactionID:         req.TransactionID,
		ProviderTransactionID: "prov-" + req.TransactionID,
	}, nil
}

func (a *payoutAdapter) ConfirmPayment(context.Context, provider.ConfirmRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusSuccessful}, nil
}

func (a *payoutAdapter) CancelPayment(context.Context, provider.CancelRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusCancelled}, nil
}

func (a *payoutAdapter) RefundPayment(context.Context, provider.RefundRequest) (*provider.RefundResponse, error) {
	return &provider.RefundResponse{Success: true}, nil
}

func (a *payoutAdapter) GetTransaction(context.Context, provider.StatusRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusSuccessful}, nil
}

func (a *payoutAdapter) HealthCheck(context.Context) error { return nil }

func (a *payoutAdapter) VerifySignature([]byte, string) (bool, error) { return true, nil }

func (a *payoutAdapter) Normalize([]byte) (*provider.WebhookEvent, error) { return nil, nil }

func (a *payoutAdapter) StatusTable() map[string]string { return nil }

type testRig struct {
	coordinator *Coordinator
	payments    *payment.Orchestrator
	store       *MemoryStore
	adapter     *payoutAdapter
	scheduler   *schedule.Scheduler
	publisher   *payment.MemoryPublisher
}

func newTestRig(t *testing.T, opts Options) *testRig {
	return newTestRigWithStore(t, opts, nil)
}

// newTestRigWithStore lets a test interpose its own split store; wrap
// receives the backing MemoryStore.
func newTestRigWithStore(t *testing.T, opts Options, wrap func(*MemoryStore) Store) *testRig {
	t.Helper()

	adapter := &payoutAdapter{}
	registry := provider.NewRegistry()
	registry.Activate("fake", adapter)

	publisher := &payment.MemoryPublisher{}
	payments := payment.NewOrchestrator(payment.NewMemoryStore(), registry, cache.New(64),
		lock.NewManager(30*time.Second, lock.WithRetries(3, 10*time.Millisecond)),
		publisher, payment.Options{ProviderTimeout: time.Second})

	memStore := NewMemoryStore()
	var store Store = memStore
	if wrap != nil {
		store = wrap(memStore)
	}
	scheduler := schedule.New()
	t.Cleanup(scheduler.Stop)

	coordinator := NewCoordinator(payments, store, registry, cache.New(64), scheduler, publisher, opts)
	return &testRig{
		coordinator: coordinator,
		payments:    payments,
		store:       memStore,
		adapter:     adapter,
		scheduler:   scheduler,
		publisher:   publisher,
	}
}

func splitReq(txID string, amount int64) CreateRequest {
	a, b, c := recipient("admin", true), recipient("maintenance", false), recipient("reserve", false)
	return CreateRequest{
		TransactionID: txID,
		Provider:      "fake",
		Amount:        amount,
		Currency:      "CLP",
		Customer:      provider.Customer{Email: "resident@condo.cl"},
		Recipients:    []Recipient{a, b, c},
	}
}

func TestCreateSplitFullDistribution(t *testing.T) {
	rig := newTestRig(t, Options{})

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-1", 100001))
	assert.NoError(t, err)
	assert.Equal(t, MasterCompleted, view.Master.Status)
	assert.Len(t, view.Distributions, 3)
	assert.Equal(t, int64(100001), view.Summary.DistributedMinor)
	assert.Equal(t, 3, view.Summary.CompletedCount)
	assert.Equal(t, 3, rig.adapter.payoutCount())
	assert.Equal(t, 1, rig.publisher.CountByType(payment.EventSplitCompleted))
}

func TestCreateSplitAbortsOnDeclinedCollection(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.adapter.declineCollection = true

	_, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-2", 90000))
	assert.Error(t, err)
	assert.True(t, provider.IsDeclined(err))

	// The aborted saga leaves no split rows behind
	rig.store.mu.RLock()
	defer rig.store.mu.RUnlock()
	assert.Empty(t, rig.store.masters)
	assert.Empty(t, rig.store.distributions)
}

func TestCreateSplitRejectsBadPlan(t *testing.T) {
	rig := newTestRig(t, Options{})

	req := splitReq("sp-3", 90000)
	req.Recipients[0].Percentage = 50
	req.Recipients[1].FixedAmount = 1000

	_, err := rig.coordinator.CreateSplit(context.Background(), req)
	assert.ErrorIs(t, err, ErrMixedSplitMode)
	assert.Equal(t, 0, rig.adapter.payoutCount())
}

func TestPartialFailureIsolatesRecipients(t *testing.T) {
	rig := newTestRig(t, Options{RetryBase: time.Hour})
	rig.adapter.failRecipient("maintenance", true)

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-4", 90000))
	assert.NoError(t, err)
	assert.Equal(t, MasterPartiallyDistributed, view.Master.Status)
	assert.Equal(t, 2, view.Summary.CompletedCount)
	assert.Equal(t, 1, view.Summary.FailedCount)
	assert.Equal(t, int64(60000), view.Summary.DistributedMinor)

	// A retry is armed with backoff
	assert.True(t, rig.scheduler.Pending(retryKey(view.Master.ID)))
	assert.Equal(t, 1, view.Master.RetryCount)
}

func TestRetryCompletesFailedPayouts(t *testing.T) {
	rig := newTestRig(t, Options{RetryBase: 5 * time.Millisecond})
	rig.adapter.failRecipient("maintenance", true)

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-5", 90000))
	assert.NoError(t, err)
	assert.Equal(t, MasterPartiallyDistributed, view.Master.Status)

	// The recipient recovers before the retry fires
	rig.adapter.failRecipient("maintenance", false)

	assert.Eventually(t, func() bool {
		v, err := rig.coordinator.Status(context.Background(), view.Master.ID)
		return err == nil && v.Master.Status == MasterCompleted
	}, 2*time.Second, 10*time.Millisecond)

	v, err := rig.coordinator.Status(context.Background(), view.Master.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(90000), v.Summary.DistributedMinor)
	// Completed payouts are not re-sent on retry
	assert.Equal(t, 4, rig.adapter.payoutCount())
}

func TestRetryCeiling(t *testing.T) {
	rig := newTestRig(t, Options{MaxRetries: 2, RetryBase: time.Millisecond})
	rig.adapter.failRecipient("maintenance", true)

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-6", 90000))
	assert.NoError(t, err)

	// Initial attempt plus two retries, then the timer stays dark
	assert.Eventually(t, func() bool {
		v, err := rig.coordinator.Status(context.Background(), view.Master.ID)
		return err == nil && v.Master.RetryCount == 2 && !rig.scheduler.Pending(retryKey(view.Master.ID))
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, rig.scheduler.Pending(retryKey(view.Master.ID)))

	v, err := rig.coordinator.Status(context.Background(), view.Master.ID)
	assert.NoError(t, err)
	assert.Equal(t, MasterPartiallyDistributed, v.Master.Status)
	assert.Equal(t, 2, v.Master.RetryCount)
}

func TestCancelBeforeDistribution(t *testing.T) {
	rig := newTestRig(t, Options{RetryBase: time.Hour})
	// Every payout fails so nothing completes and cancel stays legal
	rig.adapter.failRecipient("admin", true)
	rig.adapter.failRecipient("maintenance", true)
	rig.adapter.failRecipient("reserve", true)

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-7", 90000))
	assert.NoError(t, err)
	assert.Equal(t, MasterPartiallyDistributed, view.Master.Status)

	cancelled, err := rig.coordinator.Cancel(context.Background(), view.Master.ID, "community decision")
	assert.NoError(t, err)
	assert.Equal(t, MasterCancelled, cancelled.Master.Status)
	for _, d := range cancelled.Distributions {
		assert.Equal(t, DistributionCancelled, d.Status)
	}
	assert.False(t, rig.scheduler.Pending(retryKey(view.Master.ID)))
	assert.Equal(t, 1, rig.publisher.CountByType(payment.EventSplitCancelled))
}

func TestCancelRejectedAfterPayout(t *testing.T) {
	rig := newTestRig(t, Options{})

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-8", 90000))
	assert.NoError(t, err)
	assert.Equal(t, MasterCompleted, view.Master.Status)

	_, err = rig.coordinator.Cancel(context.Background(), view.Master.ID, "too late")
	assert.True(t, payment.IsInvalidState(err))
}

func TestOnPaymentCompletedTriggersDistribution(t *testing.T) {
	rig := newTestRig(t, Options{})

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-9", 90000))
	assert.NoError(t, err)

	// Idempotent: a second completion signal does not re-pay anyone
	assert.NoError(t, rig.coordinator.OnPaymentCompleted(context.Background(), view.Master.PaymentID))
	assert.Equal(t, 3, rig.adapter.payoutCount())

	// Unknown payment ids are silently ignored
	assert.NoError(t, rig.coordinator.OnPaymentCompleted(context.Background(), "no-such-payment"))
}

// brokenTxStore refuses distribution writes so the split transaction
// always rolls back.
type brokenTxStore struct {
	*MemoryStore
}

func (s *brokenTxStore) CreateDistribution(context.Context, *Distribution) error {
	return errors.New("storage write refused")
}

func (s *brokenTxStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.MemoryStore.WithTx(ctx, func(Store) error { return fn(s) })
}

func TestCreateSplitCompensatesWhenPersistenceFails(t *testing.T) {
	rig := newTestRigWithStore(t, Options{}, func(m *MemoryStore) Store {
		return &brokenTxStore{MemoryStore: m}
	})
	rig.adapter.pendingCollection = true

	_, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-10", 90000))
	assert.Error(t, err)

	rig.store.mu.RLock()
	assert.Empty(t, rig.store.masters)
	assert.Empty(t, rig.store.distributions)
	rig.store.mu.RUnlock()

	// The collection is voided rather than left behind without a plan
	p, err := rig.payments.FindByTransactionID(context.Background(), "sp-10")
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, p.Status)
	assert.Equal(t, 0, rig.adapter.payoutCount())
}

func TestCreateSplitMasterProcessingWhileCollectionPending(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.adapter.pendingCollection = true

	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-11", 90000))
	assert.NoError(t, err)
	assert.Equal(t, MasterProcessing, view.Master.Status)
	assert.Equal(t, 0, rig.adapter.payoutCount())
}

func TestPayoutTimeoutBoundsDistribution(t *testing.T) {
	rig := newTestRig(t, Options{ProviderTimeout: 20 * time.Millisecond, RetryBase: time.Hour})
	rig.adapter.hangPayouts = true

	start := time.Now()
	view, err := rig.coordinator.CreateSplit(context.Background(), splitReq("sp-12", 90000))
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, MasterPartiallyDistributed, view.Master.Status)
	assert.Equal(t, 3, view.Summary.FailedCount)
}
