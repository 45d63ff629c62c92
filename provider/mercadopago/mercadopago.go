package mercadopago

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"

	appconfig "github.com/PeterH4ck/SKYN3T-Control--sub000/infra/config"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

// Mercado Pago payment statuses
const (
	statusPending     = "pending"
	statusApproved    = "approved"
	statusAuthorized  = "authorized"
	statusInProcess   = "in_process"
	statusRejected    = "rejected"
	statusCancelled   = "cancelled"
	statusRefunded    = "refunded"
	statusChargedBack = "charged_back"
)

// MercadoPagoProvider implements the provider.GatewayAdapter interface on
// the official Mercado Pago SDK
type MercadoPagoProvider struct {
	accessToken   string
	webhookSecret string
	appBaseURL    string
	payments      payment.Client
	refunds       refund.Client
}

// NewProvider creates a new Mercado Pago payment adapter
func NewProvider() provider.Adapter {
	return &MercadoPagoProvider{}
}

// RequiredConfig returns the configuration fields required for Mercado Pago
func (p *MercadoPagoProvider) RequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "accessToken",
			Required:    true,
			Type:        "string",
			Description: "Mercado Pago access token",
			Example:     "APP_USR-1234567890-abcdef",
			MinLength:   20,
			MaxLength:   128,
		},
		{
			Key:         "webhookSecret",
			Required:    false,
			Type:        "string",
			Description: "Webhook signature secret from the MP dashboard",
			Example:     "a1b2c3d4e5...",
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Description: "Environment setting (sandbox or production)",
			Example:     "sandbox",
			Pattern:     "^(sandbox|production)$",
		},
	}
}

// ValidateConfig validates the provided configuration
func (p *MercadoPagoProvider) ValidateConfig(conf map[string]string) error {
	return provider.ValidateConfigFields("mercadopago", conf, p.RequiredConfig(conf["environment"]))
}

// Initialize sets up the SDK clients with the access token
func (p *MercadoPagoProvider) Initialize(conf map[string]string) error {
	p.accessToken = conf["accessToken"]
	p.webhookSecret = conf["webhookSecret"]

	if p.accessToken == "" {
		return errors.New("mercadopago: accessToken is required")
	}

	p.appBaseURL = appconfig.GetEnv("APP_URL", "http://localhost:9999")

	cfg, err := mpconfig.New(p.accessToken)
	if err != nil {
		return fmt.Errorf("mercadopago: failed creating sdk config: %w", err)
	}

	p.payments = payment.NewClient(cfg)
	p.refunds = refund.NewClient(cfg)

	return nil
}

// ProcessPayment submits a new payment through the SDK
func (p *MercadoPagoProvider) ProcessPayment(ctx context.Context, request provider.PaymentRequest) (*provider.PaymentResponse, error) {
	if request.Amount <= 0 {
		return nil, provider.NewValidationError("mercadopago", "amount must be greater than zero")
	}
	if request.TransactionID == "" {
		return nil, provider.NewValidationError("mercadopago", "transactionId is required")
	}

	req := payment.Request{
		TransactionAmount: toUnits(request.Amount, request.Currency),
		Description:       request.Description,
		ExternalReference: request.TransactionID,
		NotificationURL:   fmt.Sprintf("%s/webhooks/mercadopago", p.appBaseURL),
		Payer: &payment.PayerRequest{
			Email: request.Customer.Email,
		},
	}

	resp, err := p.payments.Create(ctx, req)
	if err != nil {
		return nil, provider.NewUnavailableError("mercadopago", "sdk create failed", err)
	}

	if resp.Status == statusRejected {
		return nil, provider.NewDeclinedError("mercadopago", resp.StatusDetail, "payment rejected")
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:               resp.Status == statusApproved,
		Status:                mapStatus(resp.Status),
		TransactionID:         request.TransactionID,
		ProviderTransactionID: strconv.Itoa(resp.ID),
		Amount:                request.Amount,
		Currency:              request.Currency,
		SystemTime:            &now,
		ProviderResponse:      resp,
	}, nil
}

// ConfirmPayment captures an authorized payment
func (p *MercadoPagoProvider) ConfirmPayment(ctx context.Context, request provider.ConfirmRequest) (*provider.PaymentResponse, error) {
	id, err := parseProviderID(request.ProviderTransactionID)
	if err != nil {
		return nil, err
	}

	resp, err := p.payments.Capture(ctx, id)
	if err != nil {
		return nil, provider.NewUnavailableError("mercadopago", "sdk capture failed", err)
	}

	return p.mapResponse(resp, request.TransactionID), nil
}

// CancelPayment cancels a pending payment
func (p *MercadoPagoProvider) CancelPayment(ctx context.Context, request provider.CancelRequest) (*provider.PaymentResponse, error) {
	id, err := parseProviderID(request.ProviderTransactionID)
	if err != nil {
		return nil, err
	}

	resp, err := p.payments.Cancel(ctx, id)
	if err != nil {
		return nil, provider.NewUnavailableError("mercadopago", "sdk cancel failed", err)
	}

	return p.mapResponse(resp, request.TransactionID), nil
}

// RefundPayment issues a full or partial refund
func (p *MercadoPagoProvider) RefundPayment(ctx context.Context, request provider.RefundRequest) (*provider.RefundResponse, error) {
	if request.Amount <= 0 {
		return nil, provider.NewValidationError("mercadopago", "refund amount must be greater than zero")
	}

	id, err := parseProviderID(request.ProviderTransactionID)
	if err != nil {
		return nil, err
	}

	resp, err := p.refunds.CreatePartialRefund(ctx, id, toUnits(request.Amount, request.Currency))
	if err != nil {
		return nil, provider.NewUnavailableError("mercadopago", "sdk refund failed", err)
	}

	now := time.Now()
	return &provider.RefundResponse{
		Success:          true,
		ProviderRefundID: strconv.Itoa(resp.ID),
		Status:           provider.StatusRefunded,
		Amount:           request.Amount,
		SystemTime:       &now,
		RawResponse:      resp,
	}, nil
}

// GetTransaction retrieves the provider's current view of a payment
func (p *MercadoPagoProvider) GetTransaction(ctx context.Context, request provider.StatusRequest) (*provider.PaymentResponse, error) {
	id, err := parseProviderID(request.ProviderTransactionID)
	if err != nil {
		return nil, err
	}

	resp, err := p.payments.Get(ctx, id)
	if err != nil {
		return nil, provider.NewUnavailableError("mercadopago", "sdk get failed", err)
	}

	return p.mapResponse(resp, request.TransactionID), nil
}

// HealthCheck verifies the access token works with a narrow search
func (p *MercadoPagoProvider) HealthCheck(ctx context.Context) error {
	_, err := p.payments.Search(ctx, payment.SearchRequest{
		Limit: 1,
		Filters: map[string]string{
			"sort": "date_created",
		},
	})
	if err != nil {
		return provider.NewUnavailableError("mercadopago", "search probe failed", err)
	}
	return nil
}

// VerifySignature checks the x-signature header (ts=...,v1=... format)
func (p *MercadoPagoProvider) VerifySignature(payload []byte, signature string) (bool, error) {
	if p.webhookSecret == "" {
		return false, provider.ErrNoWebhookSecret
	}
	if signature == "" {
		return false, nil
	}

	var v1 string
	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] == "v1" {
			v1 = kv[1]
		}
	}
	if v1 == "" {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(v1)), nil
}

// Normalize maps a raw Mercado Pago notification into the internal envelope
func (p *MercadoPagoProvider) Normalize(payload []byte) (*provider.WebhookEvent, error) {
	var raw struct {
		Action string `json:"action"`
		Type   string `json:"type"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
		ExternalReference string  `json:"external_reference"`
		Status            string  `json:"status"`
		TransactionAmount float64 `json:"transaction_amount"`
		CurrencyID        string  `json:"currency_id"`
		DateCreated       string  `json:"date_created"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("mercadopago: malformed notification payload: %w", err)
	}
	if raw.ExternalReference == "" {
		return nil, errors.New("mercadopago: notification missing external_reference")
	}

	timestamp := time.Now()
	if ts, err := time.Parse(time.RFC3339, raw.DateCreated); err == nil {
		timestamp = ts
	}

	event := raw.Action
	if event == "" {
		event = "mercadopago." + raw.Status
	}

	return &provider.WebhookEvent{
		Event:                 event,
		TransactionID:         raw.ExternalReference,
		ProviderTransactionID: raw.Data.ID,
		Status:                raw.Status,
		Amount:                fromUnits(raw.TransactionAmount, raw.CurrencyID),
		Currency:              raw.CurrencyID,
		Timestamp:             timestamp,
	}, nil
}

// StatusTable maps Mercado Pago statuses to canonical status names
func (p *MercadoPagoProvider) StatusTable() map[string]string {
	return map[string]string{
		statusPending:     "PENDING",
		statusInProcess:   "PROCESSING",
		statusAuthorized:  "PROCESSING",
		statusApproved:    "COMPLETED",
		statusRejected:    "FAILED",
		statusCancelled:   "CANCELLED",
		statusRefunded:    "REFUNDED",
		statusChargedBack: "REFUNDED",
	}
}

// ListPayments returns recent payments via the SDK search endpoint
func (p *MercadoPagoProvider) ListPayments(ctx context.Context, opts provider.ListOptions) ([]provider.PaymentResponse, error) {
	filters := map[string]string{"sort": "date_created", "criteria": "desc"}
	if opts.Status != "" {
		filters["status"] = opts.Status
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	result, err := p.payments.Search(ctx, payment.SearchRequest{
		Limit:   limit,
		Filters: filters,
	})
	if err != nil {
		return nil, provider.NewUnavailableError("mercadopago", "sdk search failed", err)
	}

	out := make([]provider.PaymentResponse, 0, len(result.Results))
	for i := range result.Results {
		resp := result.Results[i]
		out = append(out, *p.mapResponse(&resp, resp.ExternalReference))
	}
	return out, nil
}

func (p *MercadoPagoProvider) mapResponse(resp *payment.Response, transactionID string) *provider.PaymentResponse {
	if transactionID == "" {
		transactionID = resp.ExternalReference
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:               resp.Status == statusApproved,
		Status:                mapStatus(resp.Status),
		TransactionID:         transactionID,
		ProviderTransactionID: strconv.Itoa(resp.ID),
		Amount:                fromUnits(resp.TransactionAmount, resp.CurrencyID),
		Currency:              resp.CurrencyID,
		SystemTime:            &now,
		ProviderResponse:      resp,
	}
}

func mapStatus(status string) provider.Status {
	switch status {
	case statusPending:
		return provider.StatusPending
	case statusInProcess, statusAuthorized:
		return provider.StatusProcessing
	case statusApproved:
		return provider.StatusSuccessful
	case statusRejected:
		return provider.StatusFailed
	case statusCancelled:
		return provider.StatusCancelled
	case statusRefunded, statusChargedBack:
		return provider.StatusRefunded
	default:
		return provider.StatusPending
	}
}

func parseProviderID(providerTransactionID string) (int, error) {
	if providerTransactionID == "" {
		return 0, provider.NewValidationError("mercadopago", "providerTransactionId is required")
	}

	id, err := strconv.Atoi(providerTransactionID)
	if err != nil {
		return 0, provider.NewValidationError("mercadopago", "providerTransactionId must be numeric")
	}
	return id, nil
}

// zeroDecimalCurrencies have no minor unit, so minor units == units
var zeroDecimalCurrencies = map[string]bool{
	"CLP": true,
	"PYG": true,
	"JPY": true,
}

func toUnits(amountMinor int64, currency string) float64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return float64(amountMinor)
	}
	return float64(amountMinor) / 100
}

func fromUnits(amount float64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return int64(amount)
	}
	return int64(amount * 100)
}
