package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/response"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/payment"
)

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	orchestrator *payment.Orchestrator
	validate     *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(orchestrator *payment.Orchestrator, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator, validate: validate}
}

// CreatePayment handles POST /payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	var req payment.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	p, err := h.orchestrator.Create(ctx, req)
	if err != nil {
		// The payment row may exist even when the attempt failed
		status := httpStatusFor(err)
		if p != nil {
			response.WriteJSON(w, status, response.Response{
				Code:    status,
				Success: false,
				Message: "Payment not completed",
				Error:   err.Error(),
				Data:    p,
			})
			return
		}
		response.Error(w, status, "Payment failed", err)
		return
	}

	response.Success(w, http.StatusCreated, "Payment created", p)
}

// GetPayment handles GET /payments/{paymentID}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	p, refunds, err := h.orchestrator.Get(r.Context(), paymentID)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to get payment", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment retrieved", map[string]any{
		"payment": p,
		"refunds": refunds,
	})
}

// GetPaymentStatus handles GET /payments/{paymentID}/status. Served
// without authentication so provider redirect pages can poll it.
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	proj, err := h.orchestrator.GetStatus(r.Context(), paymentID)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to get payment status", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment status retrieved", proj)
}

// ListPayments handles GET /payments
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := payment.Filter{
		Status:      payment.Status(r.URL.Query().Get("status")),
		Provider:    r.URL.Query().Get("provider"),
		CommunityID: r.URL.Query().Get("communityId"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = ts
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = ts
		}
	}

	payments, err := h.orchestrator.List(r.Context(), filter)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to list payments", err)
		return
	}

	response.Success(w, http.StatusOK, "Payments retrieved", map[string]any{
		"payments": payments,
		"count":    len(payments),
	})
}

// CapturePayment handles PUT /payments/{paymentID}/capture
func (h *PaymentHandler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentID")

	var req struct {
		Amount int64 `json:"amount"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request format", err)
			return
		}
	}

	p, err := h.orchestrator.Capture(ctx, paymentID, req.Amount)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Capture failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment captured", p)
}

// CancelPayment handles DELETE /payments/{paymentID}
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentID")

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request format", err)
			return
		}
	}

	p, err := h.orchestrator.Cancel(ctx, paymentID, req.Reason)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Cancel failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment cancelled", p)
}

// RefundPayment handles POST /payments/{paymentID}/refund
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentID")

	var req struct {
		Amount int64  `json:"amount" validate:"required,gt=0"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	p, refund, err := h.orchestrator.Refund(ctx, paymentID, req.Amount, req.Reason)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Refund failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Refund processed", map[string]any{
		"payment": p,
		"refund":  refund,
	})
}

// RetryPayment handles POST /payments/{paymentID}/retry
func (h *PaymentHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentID")

	p, err := h.orchestrator.Retry(ctx, paymentID)
	if err != nil {
		status := httpStatusFor(err)
		if p != nil {
			response.WriteJSON(w, status, response.Response{
				Code:    status,
				Success: false,
				Message: "Retry not completed",
				Error:   err.Error(),
				Data:    p,
			})
			return
		}
		response.Error(w, status, "Retry failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment retried", p)
}
