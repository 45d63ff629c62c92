package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/cache"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/lock"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/response"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// stubAdapter answers every provider call successfully
type stubAdapter struct {
	status provider.Status
}

func (a *stubAdapter) Initialize(map[string]string) error { return nil }

func (a *stubAdapter) RequiredConfig(string) []provider.ConfigField { return nil }

func (a *stubAdapter) ValidateConfig(map[string]string) error { return nil }

func (a *stubAdapter) ProcessPayment(_ context.Context, req provider.PaymentRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{
		Success:               true,
		Status:                a.status,
		TransactionID:         req.TransactionID,
		ProviderTransactionID: "prov-" + req.TransactionID,
	}, nil
}

func (a *stubAdapter) ConfirmPayment(context.Context, provider.ConfirmRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusSuccessful}, nil
}

func (a *stubAdapter) CancelPayment(context.Context, provider.CancelRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: provider.StatusCancelled}, nil
}

func (a *stubAdapter) RefundPayment(_ context.Context, req provider.RefundRequest) (*provider.RefundResponse, error) {
	return &provider.RefundResponse{Success: true, Amount: req.Amount}, nil
}

func (a *stubAdapter) GetTransaction(context.Context, provider.StatusRequest) (*provider.PaymentResponse, error) {
	return &provider.PaymentResponse{Success: true, Status: a.status}, nil
}

func (a *stubAdapter) HealthCheck(context.Context) error { return nil }

func (a *stubAdapter) VerifySignature([]byte, string) (bool, error) { return true, nil }

func (a *stubAdapter) Normalize([]byte) (*provider.WebhookEvent, error) { return nil, nil }

func (a *stubAdapter) StatusTable() map[string]string { return nil }

func newTestHandler(t *testing.T, status provider.Status) (*PaymentHandler, *chi.Mux) {
	t.Helper()

	registry := provider.NewRegistry()
	registry.Activate("stub", &stubAdapter{status: status})

	orchestrator := payment.NewOrchestrator(payment.NewMemoryStore(), registry, cache.New(64),
		lock.NewManager(30*time.Second, lock.WithRetries(3, 10*time.Millisecond)),
		&payment.MemoryPublisher{}, payment.Options{ProviderTimeout: time.Second})

	h := NewPaymentHandler(orchestrator, validator.New())

	r := chi.NewRouter()
	r.Post("/v1/payments", h.CreatePayment)
	r.Get("/v1/payments/{paymentID}", h.GetPayment)
	r.Get("/v1/payments/{paymentID}/status", h.GetPaymentStatus)
	r.Post("/v1/payments/{paymentID}/refund", h.RefundPayment)
	r.Delete("/v1/payments/{paymentID}", h.CancelPayment)

	return h, r
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createBody(txID string, amount int64) map[string]any {
	return map[string]any{
		"transactionId": txID,
		"provider":      "stub",
		"amount":        amount,
		"currency":      "CLP",
		"customer":      map[string]any{"email": "resident@condo.cl"},
	}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreatePaymentEndpoint(t *testing.T) {
	_, r := newTestHandler(t, provider.StatusSuccessful)

	w := postJSON(r, "/v1/payments", createBody("h-1", 45000))
	assert.Equal(t, http.StatusCreated, w.Code)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "COMPLETED", data["status"])
	assert.Equal(t, float64(45000), data["amount"])
}

func TestCreatePaymentValidation(t *testing.T) {
	_, r := newTestHandler(t, provider.StatusSuccessful)

	body := createBody("h-2", 45000)
	delete(body, "provider")
	w := postJSON(r, "/v1/payments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = createBody("h-3", 45000)
	body["amount"] = -1
	w = postJSON(r, "/v1/payments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePaymentMalformedBody(t *testing.T) {
	_, r := newTestHandler(t, provider.StatusSuccessful)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPaymentStatusEndpoint(t *testing.T) {
	_, r := newTestHandler(t, provider.StatusPending)

	w := postJSON(r, "/v1/payments", createBody("h-4", 20000))
	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	id := data["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/v1/payments/"+id+"/status", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	proj := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "PENDING", proj["status"])
}

func TestGetPaymentNotFound(t *testing.T) {
	_, r := newTestHandler(t, provider.StatusPending)

	req := httptest.NewRequest(http.MethodGet, "/v1/payments/no-such-id", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefundEndpointBounds(t *testing.T) {
	_, r := newTestHandler(t, provider.StatusSuccessful)

	w := postJSON(r, "/v1/payments", createBody("h-5", 50000))
	data := decodeResponse(t, w).Data.(map[string]any)
	id := data["id"].(string)

	// Over-refund is a client error
	w = postJSON(r, "/v1/payments/"+id+"/refund", map[string]any{"amount": 60000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/v1/payments/"+id+"/refund", map[string]any{"amount": 50000, "reason": "overcharge"})
	assert.Equal(t, http.StatusOK, w.Code)

	refundData := decodeResponse(t, w).Data.(map[string]any)
	p := refundData["payment"].(map[string]any)
	assert.Equal(t, "REFUNDED", p["status"])
}

func TestCancelEndpointInvalidState(t *testing.T) {
	_, r := newTestHandler(t, provider.StatusSuccessful)

	w := postJSON(r, "/v1/payments", createBody("h-6", 50000))
	data := decodeResponse(t, w).Data.(map[string]any)
	id := data["id"].(string)

	// Completed payments cannot be cancelled
	req := httptest.NewRequest(http.MethodDelete, "/v1/payments/"+id, nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}
