package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/handler"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/queue"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/schedule"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/split"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/webhook"
)

func testHandlers(t *testing.T) Handlers {
	t.Helper()

	registry := provider.NewRegistry()
	validate := validator.New()
	q := queue.NewMemoryQueue()

	orchestrator := payment.NewOrchestrator(payment.NewMemoryStore(), registry, cache.New(16),
		lock.NewManager(time.Second), &payment.MemoryPublisher{}, payment.Options{})

	scheduler := schedule.New()
	t.Cleanup(scheduler.Stop)
	coordinator := split.NewCoordinator(orchestrator, split.NewMemoryStore(), registry,
		cache.New(16), scheduler, &payment.MemoryPublisher{}, split.Options{})

	return Handlers{
		Payment: handler.NewPaymentHandler(orchestrator, validate),
		Split:   handler.NewSplitHandler(coordinator, validate),
		Webhook: handler.NewWebhookHandler(webhook.NewPipeline(registry, q, nil)),
		Health:  handler.NewHealthHandler(nil, registry, q, nil),
	}
}

func TestRoutesMount(t *testing.T) {
	r := chi.NewRouter()
	require.NotNil(t, r)

	assert.NotPanics(t, func() {
		Routes(r, testHandlers(t))
	})
}

func TestPublicRoutesNeedNoAuth(t *testing.T) {
	t.Setenv("API_KEY", "topsecret")

	r := chi.NewRouter()
	Routes(r, testHandlers(t))

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	t.Setenv("API_KEY", "topsecret")

	r := chi.NewRouter()
	Routes(r, testHandlers(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/payments", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/payments", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
