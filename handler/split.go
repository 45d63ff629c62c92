package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/response"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/split"
)

// SplitHandler handles split payment HTTP requests
type SplitHandler struct {
	coordinator *split.Coordinator
	validate    *validator.Validate
}

// NewSplitHandler creates a new split handler
func NewSplitHandler(coordinator *split.Coordinator, validate *validator.Validate) *SplitHandler {
	return &SplitHandler{coordinator: coordinator, validate: validate}
}

// CreateSplit handles POST /payments/split
func (h *SplitHandler) CreateSplit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	var req split.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	view, err := h.coordinator.CreateSplit(ctx, req)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Split payment failed", err)
		return
	}

	response.Success(w, http.StatusCreated, "Split payment created", view)
}

// GetSplitStatus handles GET /payments/split/{splitID}/status
func (h *SplitHandler) GetSplitStatus(w http.ResponseWriter, r *http.Request) {
	splitID := chi.URLParam(r, "splitID")

	view, err := h.coordinator.Status(r.Context(), splitID)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to get split status", err)
		return
	}

	response.Success(w, http.StatusOK, "Split status retrieved", view)
}

// CancelSplit handles POST /payments/split/{splitID}/cancel
func (h *SplitHandler) CancelSplit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
	defer cancel()

	splitID := chi.URLParam(r, "splitID")

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request format", err)
			return
		}
	}

	view, err := h.coordinator.Cancel(ctx, splitID, req.Reason)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Split cancel failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Split payment cancelled", view)
}
