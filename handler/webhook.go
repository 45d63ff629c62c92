package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/response"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/webhook"
)

// signatureHeaders lists the header names providers deliver their
// webhook signatures in, probed in order
var signatureHeaders = []string{
	"X-Signature",
	"X-Webhook-Signature",
	"Tbk-Signature",
	"X-Khipu-Signature",
}

// WebhookHandler receives provider callbacks
type WebhookHandler struct {
	pipeline *webhook.Pipeline
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(pipeline *webhook.Pipeline) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline}
}

// HandleWebhook handles POST /webhooks/{provider}. The body is
// accepted and queued; processing happens asynchronously so providers
// get their 200 fast.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	requestID := r.Header.Get("X-Request-Id")

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	var signature string
	for _, header := range signatureHeaders {
		if v := r.Header.Get(header); v != "" {
			signature = v
			break
		}
	}

	if err := h.pipeline.HandleIncoming(r.Context(), providerName, requestID, payload, signature); err != nil {
		response.Error(w, httpStatusFor(err), "Webhook rejected", err)
		return
	}

	response.Success(w, http.StatusOK, "Webhook accepted", nil)
}
