package khipu

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/infra/config"
	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
)

const (
	apiBaseURL = "https://payment-api.khipu.com"

	// API Endpoints
	endpointPayments = "/v3/payments"
	endpointPayment  = "/v3/payments/%s" // payment id
	endpointRefund   = "/v3/payments/%s/refunds"
	endpointBanks    = "/v3/banks"
	endpointPredict  = "/v3/predict"

	// Khipu payment statuses
	statusPending   = "pending"
	statusVerifying = "verifying"
	statusDone      = "done"
	statusRejected  = "rejected"
	statusExpired   = "expired"
)

// KhipuProvider implements the provider.BankAdapter interface for Khipu
// bank transfers
type KhipuProvider struct {
	apiKey        string
	webhookSecret string
	appBaseURL    string
	isProduction  bool
	httpClient    *provider.HTTPClient
}

// NewProvider creates a new Khipu payment adapter
func NewProvider() provider.Adapter {
	return &KhipuProvider{}
}

// RequiredConfig returns the configuration fields required for Khipu
func (p *KhipuProvider) RequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "apiKey",
			Required:    true,
			Type:        "string",
			Description: "Khipu API key",
			Example:     "f2c5a0b1-7e3d-4c8a-9f21-3a7b6d2e8c11",
			MinLength:   16,
			MaxLength:   64,
		},
		{
			Key:         "webhookSecret",
			Required:    false,
			Type:        "string",
			Description: "Shared secret for notification HMAC verification",
			Example:     "khipu_whsec_...",
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

// ValidateConfig validates the provided configuration against Khipu requirements
func (p *KhipuProvider) ValidateConfig(conf map[string]string) error {
	return provider.ValidateConfigFields("khipu", conf, p.RequiredConfig(conf["environment"]))
}

// Initialize sets up the Khipu adapter with authentication credentials
func (p *KhipuProvider) Initialize(conf map[string]string) error {
	p.apiKey = conf["apiKey"]
	p.webhookSecret = conf["webhookSecret"]

	if p.apiKey == "" {
		return errors.New("khipu: apiKey is required")
	}

	p.appBaseURL = config.GetEnv("APP_URL", "http://localhost:9999")
	p.isProduction = conf["environment"] == "production"

	p.httpClient = provider.NewHTTPClient(provider.CreateHTTPClientConfig(apiBaseURL, p.isProduction, 0))

	return nil
}

type khipuPayment struct {
	PaymentID     string `json:"payment_id"`
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	StatusDetail  string `json:"status_detail"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Subject       string `json:"subject"`
}

// ProcessPayment creates a Khipu payment and returns the payment URL
func (p *KhipuProvider) ProcessPayment(ctx context.Context, request provider.PaymentRequest) (*provider.PaymentResponse, error) {
	if request.Amount <= 0 {
		return nil, provider.NewValidationError("khipu", "amount must be greater than zero")
	}
	if request.TransactionID == "" {
		return nil, provider.NewValidationError("khipu", "transactionId is required")
	}

	body := map[string]any{
		"subject":        request.Description,
		"amount":         request.Amount,
		"currency":       request.Currency,
		"transaction_id": request.TransactionID,
		"payer_email":    request.Customer.Email,
		"return_url":     request.CallbackURL,
		"notify_url":     fmt.Sprintf("%s/v1/webhooks/khipu", p.appBaseURL),
	}

	raw, err := p.doRequest(ctx, http.MethodPost, endpointPayments, body)
	if err != nil {
		return nil, err
	}

	var payment khipuPayment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, provider.NewUnavailableError("khipu", "malformed create response", err)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:               true,
		Status:                provider.StatusPending,
		TransactionID:         request.TransactionID,
		ProviderTransactionID: payment.PaymentID,
		Amount:                request.Amount,
		Currency:              request.Currency,
		RedirectURL:           payment.PaymentURL,
		SystemTime:            &now,
	}, nil
}

// ConfirmPayment re-reads the payment; bank transfers confirm when the
// payer completes the transfer, there is no separate capture step.
func (p *KhipuProvider) ConfirmPayment(ctx context.Context, request provider.ConfirmRequest) (*provider.PaymentResponse, error) {
	return p.GetTransaction(ctx, provider.StatusRequest{
		TransactionID:         request.TransactionID,
		ProviderTransactionID: request.ProviderTransactionID,
	})
}

// CancelPayment deletes a pending Khipu payment
func (p *KhipuProvider) CancelPayment(ctx context.Context, request provider.CancelRequest) (*provider.PaymentResponse, error) {
	if request.ProviderTransactionID == "" {
		return nil, provider.NewValidationError("khipu", "providerTransactionId is required")
	}

	endpoint := fmt.Sprintf(endpointPayment, request.ProviderTransactionID)
	if _, err := p.doRequest(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return nil, err
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:               true,
		Status:                provider.StatusCancelled,
		TransactionID:         request.TransactionID,
		ProviderTransactionID: request.ProviderTransactionID,
		SystemTime:            &now,
	}, nil
}

// RefundPayment issues a full or partial refund
func (p *KhipuProvider) RefundPayment(ctx context.Context, request provider.RefundRequest) (*provider.RefundResponse, error) {
	if request.Amount <= 0 {
		return nil, provider.NewValidationError("khipu", "refund amount must be greater than zero")
	}
	if request.ProviderTransactionID == "" {
		return nil, provider.NewValidationError("khipu", "providerTransactionId is required")
	}

	endpoint := fmt.Sprintf(endpointRefund, request.ProviderTransactionID)
	raw, err := p.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"amount": request.Amount})
	if err != nil {
		return nil, err
	}

	var refund struct {
		RefundID string `json:"refund_id"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(raw, &refund); err != nil {
		return nil, provider.NewUnavailableError("khipu", "malformed refund response", err)
	}

	now := time.Now()
	return &provider.RefundResponse{
		Success:          true,
		ProviderRefundID: refund.RefundID,
		Status:           provider.StatusRefunded,
		Amount:           request.Amount,
		SystemTime:       &now,
	}, nil
}

// GetTransaction retrieves the provider's current view of a payment
func (p *KhipuProvider) GetTransaction(ctx context.Context, request provider.StatusRequest) (*provider.PaymentResponse, error) {
	if request.ProviderTransactionID == "" {
		return nil, provider.NewValidationError("khipu", "providerTransactionId is required")
	}

	endpoint := fmt.Sprintf(endpointPayment, request.ProviderTransactionID)
	raw, err := p.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payment khipuPayment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, provider.NewUnavailableError("khipu", "malformed payment response", err)
	}

	if payment.Status == statusRejected {
		return nil, provider.NewDeclinedError("khipu", payment.Status, payment.StatusDetail)
	}

	transactionID := request.TransactionID
	if transactionID == "" {
		transactionID = payment.TransactionID
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:               payment.Status == statusDone,
		Status:                mapStatus(payment.Status),
		TransactionID:         transactionID,
		ProviderTransactionID: payment.PaymentID,
		Amount:                payment.Amount,
		Currency:              payment.Currency,
		SystemTime:            &now,
	}, nil
}

// HealthCheck lists available banks, a cheap authenticated endpoint
func (p *KhipuProvider) HealthCheck(ctx context.Context) error {
	_, err := p.doRequest(ctx, http.MethodGet, endpointBanks, nil)
	return err
}

// ValidateBankAccount checks a recipient account before distribution
func (p *KhipuProvider) ValidateBankAccount(ctx context.Context, account provider.BankAccount) error {
	if account.HolderID == "" || account.AccountNumber == "" || account.BankCode == "" {
		return provider.NewValidationError("khipu", "holderId, bankCode and accountNumber are required")
	}

	body := map[string]any{
		"holder_id":      account.HolderID,
		"holder_name":    account.HolderName,
		"bank_id":        account.BankCode,
		"account_number": account.AccountNumber,
		"account_type":   account.AccountType,
	}

	raw, err := p.doRequest(ctx, http.MethodPost, endpointPredict, body)
	if err != nil {
		return err
	}

	var prediction struct {
		Result string `json:"result"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &prediction); err != nil {
		return provider.NewUnavailableError("khipu", "malformed predict response", err)
	}

	if prediction.Result == "rejected" {
		return provider.NewValidationError("khipu",
			fmt.Sprintf("bank account rejected: %s", prediction.Detail))
	}

	return nil
}

// VerifySignature checks the HMAC-SHA256 signature of a notification payload
func (p *KhipuProvider) VerifySignature(payload []byte, signature string) (bool, error) {
	if p.webhookSecret == "" {
		return false, provider.ErrNoWebhookSecret
	}
	if signature == "" {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// Normalize maps a raw Khipu notification into the internal envelope
func (p *KhipuProvider) Normalize(payload []byte) (*provider.WebhookEvent, error) {
	var raw struct {
		PaymentID     string `json:"payment_id"`
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
		Amount        int64  `json:"amount"`
		Currency      string `json:"currency"`
		Timestamp     string `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("khipu: malformed notification payload: %w", err)
	}
	if raw.TransactionID == "" {
		return nil, errors.New("khipu: notification missing transaction_id")
	}

	timestamp := time.Now()
	if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
		timestamp = ts
	}

	return &provider.WebhookEvent{
		Event:                 "khipu." + raw.Status,
		TransactionID:         raw.TransactionID,
		ProviderTransactionID: raw.PaymentID,
		Status:                raw.Status,
		Amount:                raw.Amount,
		Currency:              raw.Currency,
		Timestamp:             timestamp,
	}, nil
}

// StatusTable maps Khipu payment statuses to canonical status names
func (p *KhipuProvider) StatusTable() map[string]string {
	return map[string]string{
		statusPending:   "PENDING",
		statusVerifying: "PROCESSING",
		statusDone:      "COMPLETED",
		statusRejected:  "FAILED",
		statusExpired:   "EXPIRED",
	}
}

func mapStatus(status string) provider.Status {
	switch status {
	case statusPending:
		return provider.StatusPending
	case statusVerifying:
		return provider.StatusProcessing
	case statusDone:
		return provider.StatusSuccessful
	case statusRejected:
		return provider.StatusFailed
	case statusExpired:
		return provider.StatusCancelled
	default:
		return provider.StatusPending
	}
}

func (p *KhipuProvider) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	resp, err := p.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   method,
		Endpoint: endpoint,
		Headers:  map[string]string{"x-api-key": p.apiKey},
		Body:     body,
	})
	if err != nil {
		return nil, provider.NewUnavailableError("khipu", "request failed", err)
	}

	if herr := provider.ClassifyHTTPStatus("khipu", resp.StatusCode, string(resp.Body)); herr != nil {
		return nil, herr
	}

	return resp.Body, nil
}
