package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// fakeAdapter is a scriptable in-memory provider for orchestrator tests
type fakeAdapter struct {
	processErr error
	processRes provider.Status
	confirmErr error
	refundErr  error
	cancelErr  error
	delay      time.Duration

	mu       sync.Mutex
	confirms int
	refunds  int
}

func (f *fakeAdapter) Initialize(map[string]string) error { return nil }

func (f *fakeAdapter) RequiredConfig(string) []provider.ConfigField { return nil }

func (f *fakeAdapter) ValidateConfig(map[string]string) error { return nil }

func (f *fakeAdapter) ProcessPayment(ctx context.Context, req provider.PaymentRequest) (*provider.PaymentResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.processErr != nil {
		return nil, f.processErr
	}
	status := f.processRes
	if status == "" {
		status = provider.StatusPending
	}
	return &provider.PaymentResponse{
		Success:               true,
		Status:                status,
		TransactionID:         req.TransactionID,
		ProviderTransactionID: "prov-" + req.TransactionID,
	}, nil
}

func (f *fakeAdapter) ConfirmPayment(ctx context.Context, req provider.ConfirmRequest) (*provider.PaymentResponse, error) {
	f.mu.Lock()
	f.confirms++
	f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &provider.PaymentResponse{
		Success:           true,
		Status:            provider.StatusSuccessful,
		AuthorizationCode: "auth-1",
	}, nil
}

func (f *fakeAdapter) CancelPayment(ctx context.Context, req provider.CancelRequest) (*provider.PaymentResponse, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &provider.PaymentResponse{Success: true, Status: provider.StatusCancelled}, nil
}

func (f *fakeAdapter) RefundPayment(ctx context.Context, req provider.RefundRequest) (*provider.RefundResponse, error) {
	f.mu.Lock()
	f.refunds++
	f.mu.Unlock()
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &provider.RefundResponse{
		Success:          true,
		ProviderRefundID: "ref-1",
		Amount:           req.Amount,
	}, nil
}

func (f *fakeAdapter) GetTransaction(ctx context.Context, req provider.StatusRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusSuccessful}, nil
}

func (f *fakeAdapter) HealthCheck(context.Context) error { return nil }

func (f *fakeAdapter) VerifySignature([]byte, string) (bool, error) { return true, nil }

func (f *fakeAdapter) Normalize([]byte) (*provider.WebhookEvent, error) { return nil, nil }

func (f *fakeAdapter) StatusTable() map[string]string {
	return map[string]string{"successful": "COMPLETED", "failed": "FAILED"}
}

func newTestOrchestrator(t *testing.T, adapter provider.Adapter) (*Orchestrator, *MemoryStore, *MemoryPublisher) {
	t.Helper()

	registry := provider.NewRegistry()
	registry.Activate("fake", adapter)

	store := NewMemoryStore()
	publisher := &MemoryPublisher{}
	o := NewOrchestrator(store, registry, cache.New(128),
		lock.NewManager(30*time.Second, lock.WithRetries(3, 10*time.Millisecond)),
		publisher, Options{ProviderTimeout: time.Second})

	return o, store, publisher
}

func createReq(txID string, amount int64) CreateRequest {
	return CreateRequest{
		TransactionID: txID,
		Provider:      "fake",
		Amount:        amount,
		Currency:      "CLP",
		Customer:      provider.Customer{Email: "resident@condo.cl"},
	}
}

func TestCreatePending(t *testing.T) {
	o, _, publisher := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusPending})

	p, err := o.Create(context.Background(), createReq("tx-1", 25000))
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "prov-tx-1", p.ProviderTransactionID)
	assert.Equal(t, 1, publisher.CountByType(EventPaymentCreated))
	assert.Equal(t, 0, publisher.CountByType(EventPaymentCompleted))
}

func TestCreateImmediateCompletion(t *testing.T) {
	o, _, publisher := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusSuccessful})

	p, err := o.Create(context.Background(), createReq("tx-2", 25000))
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.NotNil(t, p.ProcessedAt)
	assert.Equal(t, 1, publisher.CountByType(EventPaymentCompleted))
}

func TestCreateDeclinedKeepsFailedRow(t *testing.T) {
	o, store, publisher := newTestOrchestrator(t, &fakeAdapter{
		processErr: provider.NewDeclinedError("fake", "51", "insufficient funds"),
	})

	p, err := o.Create(context.Background(), createReq("tx-3", 25000))
	assert.Error(t, err)
	assert.True(t, provider.IsDeclined(err))
	assert.Equal(t, StatusFailed, p.Status)

	// The failed attempt stays on record
	stored, gerr := store.GetPayment(context.Background(), p.ID)
	assert.NoError(t, gerr)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, "51", stored.ErrorCode)
	assert.Equal(t, 1, publisher.CountByType(EventPaymentFailed))
}

func TestCreateValidationLeavesNoRow(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeAdapter{
		processErr: provider.NewValidationError("fake", "currency not supported"),
	})

	_, err := o.Create(context.Background(), createReq("tx-4", 25000))
	assert.Error(t, err)

	_, gerr := store.GetPaymentByTransactionID(context.Background(), "tx-4")
	assert.True(t, IsNotFound(gerr))
}

func TestCreateTransientKeepsPendingRow(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeAdapter{
		processErr: provider.NewUnavailableError("fake", "gateway timeout", nil),
	})

	p, err := o.Create(context.Background(), createReq("tx-5", 25000))
	assert.Error(t, err)
	assert.True(t, provider.IsRetryable(err))
	assert.Equal(t, StatusPending, p.Status)

	stored, gerr := store.GetPaymentByTransactionID(context.Background(), "tx-5")
	assert.NoError(t, gerr)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestCreateRejectsBadInput(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{})

	_, err := o.Create(context.Background(), CreateRequest{Provider: "fake", Amount: 100, Currency: "CLP"})
	assert.True(t, IsValidation(err))

	req := createReq("tx-6", -5)
	_, err = o.Create(context.Background(), req)
	assert.True(t, IsValidation(err))

	req = createReq("tx-7", 100)
	req.Currency = "PESOS"
	_, err = o.Create(context.Background(), req)
	assert.True(t, IsValidation(err))
}

func TestCaptureFromPending(t *testing.T) {
	adapter := &fakeAdapter{processRes: provider.StatusPending}
	o, _, _ := newTestOrchestrator(t, adapter)

	p, err := o.Create(context.Background(), createReq("tx-8", 40000))
	assert.NoError(t, err)

	captured, err := o.Capture(context.Background(), p.ID, 40000)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, captured.Status)
	assert.Equal(t, "auth-1", captured.AuthorizationCode)
}

func TestCaptureRejectsCompleted(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusSuccessful})

	p, err := o.Create(context.Background(), createReq("tx-9", 40000))
	assert.NoError(t, err)

	_, err = o.Capture(context.Background(), p.ID, 40000)
	assert.True(t, IsInvalidState(err))
}

func TestConcurrentCaptureOnlyOneWins(t *testing.T) {
	adapter := &fakeAdapter{processRes: provider.StatusPending}
	o, _, _ := newTestOrchestrator(t, adapter)

	p, err := o.Create(context.Background(), createReq("tx-10", 40000))
	assert.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Capture(context.Background(), p.ID, 40000)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, e := range errs {
		switch {
		case e == nil:
			ok++
		case IsInvalidState(e) || e == lock.ErrLockTimeout:
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, adapter.confirms)
}

func TestCancelFromPending(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusPending})

	p, err := o.Create(context.Background(), createReq("tx-11", 10000))
	assert.NoError(t, err)

	cancelled, err := o.Cancel(context.Background(), p.ID, "user requested")
	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = o.Cancel(context.Background(), p.ID, "again")
	assert.True(t, IsInvalidState(err))
}

func TestRefundBounds(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusSuccessful})

	p, err := o.Create(context.Background(), createReq("tx-12", 50000))
	assert.NoError(t, err)

	// More than the original amount is rejected outright
	_, _, err = o.Refund(context.Background(), p.ID, 60000, "overcharge")
	assert.True(t, IsRefundExceedsAmount(err))

	// Partial leaves the payment PARTIALLY_REFUNDED
	p, r, err := o.Refund(context.Background(), p.ID, 30000, "overcharge")
	assert.NoError(t, err)
	assert.Equal(t, StatusPartiallyRefunded, p.Status)
	assert.Equal(t, int64(30000), r.Amount)

	// Second partial exceeding the remainder is rejected
	_, _, err = o.Refund(context.Background(), p.ID, 25000, "too much")
	assert.True(t, IsRefundExceedsAmount(err))

	// Exhausting the amount derives REFUNDED
	p, _, err = o.Refund(context.Background(), p.ID, 20000, "rest")
	assert.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.Status)

	// REFUNDED is terminal
	_, _, err = o.Refund(context.Background(), p.ID, 1, "one more")
	assert.True(t, IsInvalidState(err))
}

func TestRefundRejectsPending(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusPending})

	p, err := o.Create(context.Background(), createReq("tx-13", 50000))
	assert.NoError(t, err)

	_, _, err = o.Refund(context.Background(), p.ID, 1000, "nope")
	assert.True(t, IsInvalidState(err))
}

func TestGetStatusCacheFirst(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusPending})

	p, err := o.Create(context.Background(), createReq("tx-14", 15000))
	assert.NoError(t, err)

	proj, err := o.GetStatus(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, proj.Status)

	// Mutate behind the cache; the stale projection is served until
	// a transition invalidates it
	raw, _ := store.GetPayment(context.Background(), p.ID)
	raw.Status = StatusProcessing
	assert.NoError(t, store.UpdatePayment(context.Background(), raw))

	proj, err = o.GetStatus(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, proj.Status)

	changed, err := o.ApplyTransition(context.Background(), "tx-14", StatusCompleted, "test")
	assert.NoError(t, err)
	assert.True(t, changed)

	proj, err = o.GetStatus(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, proj.Status)
}

func TestApplyTransitionIdempotent(t *testing.T) {
	o, _, publisher := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusPending})

	_, err := o.Create(context.Background(), createReq("tx-15", 15000))
	assert.NoError(t, err)

	changed, err := o.ApplyTransition(context.Background(), "tx-15", StatusCompleted, "webhook")
	assert.NoError(t, err)
	assert.True(t, changed)

	// Same target again is a silent no-op
	changed, err = o.ApplyTransition(context.Background(), "tx-15", StatusCompleted, "webhook")
	assert.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, publisher.CountByType(EventPaymentStatusChanged))

	// Regression to an earlier status is rejected
	_, err = o.ApplyTransition(context.Background(), "tx-15", StatusPending, "webhook")
	assert.True(t, IsInvalidState(err))
}

func TestRetryFromFailed(t *testing.T) {
	adapter := &fakeAdapter{processErr: provider.NewDeclinedError("fake", "51", "insufficient funds")}
	o, _, _ := newTestOrchestrator(t, adapter)

	p, err := o.Create(context.Background(), createReq("tx-16", 20000))
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, p.Status)

	// Funds arrived; the retry is a fresh attempt in the same lineage
	adapter.processErr = nil
	adapter.processRes = provider.StatusSuccessful

	retried, err := o.Retry(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, retried.Status)
	assert.Equal(t, "tx-16/r1", retried.TransactionID)
	assert.Equal(t, p.ID, retried.Metadata["retry_of"])
	assert.NotEqual(t, p.ID, retried.ID)
}

func TestRetryRejectsNonFailed(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusSuccessful})

	p, err := o.Create(context.Background(), createReq("tx-17", 20000))
	assert.NoError(t, err)

	_, err = o.Retry(context.Background(), p.ID)
	assert.True(t, IsInvalidState(err))
}

func TestDuplicateTransactionID(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeAdapter{processRes: provider.StatusPending})

	_, err := o.Create(context.Background(), createReq("tx-18", 20000))
	assert.NoError(t, err)

	_, err = o.Create(context.Background(), createReq("tx-18", 20000))
	assert.ErrorIs(t, err, ErrDuplicateTransactionID)
}
