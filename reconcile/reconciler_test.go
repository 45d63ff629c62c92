package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/schedule"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// pollAdapter answers GetTransaction from a scripted per-transaction
// status map
type pollAdapter struct {
	answers map[string]provider.Status
	err     error
}

func (a *pollAdapter) Initialize(map[string]string) error { return nil }

func (a *pollAdapter) RequiredConfig(string) []provider.ConfigField { return nil }

func (a *pollAdapter) ValidateConfig(map[string]string) error { return nil }

func (a *pollAdapter) ProcessPayment(context.Context, provider.PaymentRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusPending}, nil
}

func (a *pollAdapter) ConfirmPayment(context.Context, provider.ConfirmRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusSuccessful}, nil
}

func (a *pollAdapter) CancelPayment(context.Context, provider.CancelRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusCancelled}, nil
}

func (a *pollAdapter) RefundPayment(context.Context, provider.RefundRequest) (*provider.RefundResponse, error) {
	return &provider.RefundResponse{Success: true}, nil
}

func (a *pollAdapter) GetTransaction(_ context.Context, req provider.StatusRequest) (*provider.PaymentResponse, error) {
	if a.err != nil {
		return nil, a.err
	}
	status, ok := a.answers[req.TransactionID]
	if !ok {
		status = provider.StatusPending
	}
	return &provider.PaymentResponse{Success: true, Status: status}, nil
}

func (a *pollAdapter) HealthCheck(context.Context) error { return nil }

func (a *pollAdapter) VerifySignature([]byte, string) (bool, error) { return true, nil }

func (a *pollAdapter) Normalize([]byte) (*provider.WebhookEvent, error) { return nil, nil }

func (a *pollAdapter) StatusTable() map[string]string { return nil }

type sweepRig struct {
	reconciler   *Reconciler
	store        *payment.MemoryStore
	orchestrator *payment.Orchestrator
	adapter      *pollAdapter
	publisher    *payment.MemoryPublisher
}

func newSweepRig(t *testing.T) *sweepRig {
	t.Helper()

	adapter := &pollAdapter{answers: make(map[string]provider.Status)}
	registry := provider.NewRegistry()
	registry.Activate("pollbank", adapter)

	store := payment.NewMemoryStore()
	publisher := &payment.MemoryPublisher{}
	orchestrator := payment.NewOrchestrator(store, registry, cache.New(64),
		lock.NewManager(30*time.Second, lock.WithRetries(3, 10*time.Millisecond)),
		publisher, payment.Options{ProviderTimeout: time.Second})

	scheduler := schedule.New()
	t.Cleanup(scheduler.Stop)

	reconciler := New(store, registry, orchestrator, scheduler, Options{
		StaleAfter:  30 * time.Minute,
		ExpireAfter: 2 * time.Hour,
	})

	return &sweepRig{
		reconciler:   reconciler,
		store:        store,
		orchestrator: orchestrator,
		adapter:      adapter,
		publisher:    publisher,
	}
}

// seed inserts a payment with a backdated creation time
func (r *sweepRig) seed(t *testing.T, txID string, status payment.Status, age time.Duration) *payment.Payment {
	t.Helper()
	created := time.Now().Add(-age)
	p := &payment.Payment{
		ID:            uuid.New().String(),
		TransactionID: txID,
		Provider:      "pollbank",
		Status:        status,
		Amount:        30000,
		Currency:      "CLP",
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	assert.NoError(t, r.store.CreatePayment(context.Background(), p))
	return p
}

func TestSweepSettlesStalePayment(t *testing.T) {
	rig := newSweepRig(t)
	p := rig.seed(t, "rc-1", payment.StatusPending, time.Hour)
	rig.adapter.answers["rc-1"] = provider.StatusSuccessful

	assert.NoError(t, rig.reconciler.Sweep(context.Background()))

	got, err := rig.store.GetPayment(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, got.Status)
	assert.Equal(t, 1, rig.publisher.CountByType(payment.EventPaymentStatusChanged))
}

func TestSweepIgnoresFreshPayments(t *testing.T) {
	rig := newSweepRig(t)
	p := rig.seed(t, "rc-2", payment.StatusPending, 5*time.Minute)
	rig.adapter.answers["rc-2"] = provider.StatusSuccessful

	assert.NoError(t, rig.reconciler.Sweep(context.Background()))

	got, err := rig.store.GetPayment(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status)
}

func TestSweepExpiresUnansweredPayment(t *testing.T) {
	rig := newSweepRig(t)
	p := rig.seed(t, "rc-3", payment.StatusPending, 3*time.Hour)
	// Provider still reports it in flight past the expiry horizon

	assert.NoError(t, rig.reconciler.Sweep(context.Background()))

	got, err := rig.store.GetPayment(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusExpired, got.Status)
}

func TestSweepExpiresWhenProviderUnreachable(t *testing.T) {
	rig := newSweepRig(t)
	p := rig.seed(t, "rc-4", payment.StatusProcessing, 3*time.Hour)
	rig.adapter.err = provider.NewUnavailableError("pollbank", "down", nil)

	assert.NoError(t, rig.reconciler.Sweep(context.Background()))

	got, err := rig.store.GetPayment(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusExpired, got.Status)
}

func TestSweepToleratesUnreachableProviderBeforeHorizon(t *testing.T) {
	rig := newSweepRig(t)
	p := rig.seed(t, "rc-5", payment.StatusPending, time.Hour)
	rig.adapter.err = provider.NewUnavailableError("pollbank", "down", nil)

	assert.NoError(t, rig.reconciler.Sweep(context.Background()))

	got, err := rig.store.GetPayment(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status)
}

func TestSweepAppliesFailure(t *testing.T) {
	rig := newSweepRig(t)
	p := rig.seed(t, "rc-6", payment.StatusProcessing, time.Hour)
	rig.adapter.answers["rc-6"] = provider.StatusFailed

	assert.NoError(t, rig.reconciler.Sweep(context.Background()))

	got, err := rig.store.GetPayment(context.Background(), p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, got.Status)
	assert.NotNil(t, got.FailedAt)
}
