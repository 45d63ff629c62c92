package webpay

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
	// API URLs
	apiSandboxURL    = "https://webpay3gint.transbank.cl"
	apiProductionURL = "https://webpay3g.transbank.cl"

	// API Endpoints
	endpointTransactions = "/rswebpaytransaction/api/webpay/v1.2/transactions"
	endpointTransaction  = "/rswebpaytransaction/api/webpay/v1.2/transactions/%s" // token
	endpointRefund       = "/rswebpaytransaction/api/webpay/v1.2/transactions/%s/refunds"

	// Webpay transaction statuses
	statusInitialized = "INITIALIZED"
	statusAuthorized  = "AUTHORIZED"
	statusFailed      = "FAILED"
	statusNullified   = "NULLIFIED"
	statusReversed    = "REVERSED"
)

// WebpayProvider implements the provider.GatewayAdapter interface for
// Transbank Webpay Plus
type WebpayProvider struct {
	commerceCode  string
	apiKey        string
	webhookSecret string
	baseURL       string
	appBaseURL    string // our own base URL for return callbacks
	isProduction  bool
	httpClient    *provider.HTTPClient
}

// NewProvider creates a new Webpay payment adapter
func NewProvider() provider.Adapter {
	return &WebpayProvider{}
}

// RequiredConfig returns the configuration fields required for Webpay
func (p *WebpayProvider) RequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "commerceCode",
			Required:    true,
			Type:        "string",
			Description: "Transbank commerce code",
			Example:     "597055555532",
			MinLength:   8,
			MaxLength:   20,
		},
		{
			Key:         "apiKey",
			Required:    true,
			Type:        "string",
			Description: "Transbank API key secret",
			Example:     "579B532A7440BB0C9079DED94D31EA161...",
			MinLength:   16,
			MaxLength:   128,
		},
		{
			Key:         "webhookSecret",
			Required:    false,
			Type:        "string",
			Description: "Shared secret for webhook HMAC verification",
			Example:     "whsec_5f3a...",
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

// ValidateConfig validates the provided configuration against Webpay requirements
func (p *WebpayProvider) ValidateConfig(conf map[string]string) error {
	return provider.ValidateConfigFields("webpay", conf, p.RequiredConfig(conf["environment"]))
}

// Initialize sets up the Webpay adapter with authentication credentials
func (p *WebpayProvider) Initialize(conf map[string]string) error {
	p.commerceCode = conf["commerceCode"]
	p.apiKey = conf["apiKey"]
	p.webhookSecret = conf["webhookSecret"]

	if p.commerceCode == "" || p.apiKey == "" {
		return errors.New("webpay: commerceCode and apiKey are required")
	}

	p.appBaseURL = config.GetEnv("APP_URL", "http://localhost:9999")

	p.isProduction = conf["environment"] == "production"
	if p.isProduction {
		p.baseURL = apiProductionURL
	} else {
		p.baseURL = apiSandboxURL
	}

	p.httpClient = provider.NewHTTPClient(provider.CreateHTTPClientConfig(p.baseURL, p.isProduction, 0))

	return nil
}

type webpayTransaction struct {
	Token             string `json:"token,omitempty"`
	URL               string `json:"url,omitempty"`
	BuyOrder          string `json:"buy_order,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	Status            string `json:"status,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	ResponseCode      int    `json:"response_code,omitempty"`
	TransactionDate   string `json:"transaction_date,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// ProcessPayment creates a Webpay transaction and returns the redirect URL
func (p *WebpayProvider) ProcessPayment(ctx context.Context, request provider.PaymentRequest) (*provider.PaymentResponse, error) {
	if request.Amount <= 0 {
		return nil, provider.NewValidationError("webpay", "amount must be greater than zero")
	}
	if request.TransactionID == "" {
		return nil, provider.NewValidationError("webpay", "transactionId is required")
	}

	body := map[string]any{
		"buy_order":  request.TransactionID,
		"session_id": request.Customer.ID,
		"amount":     request.Amount,
		"return_url": request.CallbackURL,
	}

	raw, err := p.doRequest(ctx, http.MethodPost, endpointTransactions, body)
	if err != nil {
		return nil, err
	}

	var tx webpayTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, provider.NewUnavailableError("webpay", "malformed create response", err)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:               true,
		Status:                provider.StatusPending,
		TransactionID:         request.TransactionID,
		ProviderTransactionID: tx.Token,
		Amount:                request.Amount,
		Currency:              request.Currency,
		RedirectURL:           fmt.Sprintf("%s?token_ws=%s", tx.URL, tx.Token),
		SystemTime:            &now,
	}, nil
}

// ConfirmPayment commits an authorized Webpay transaction
func (p *WebpayProvider) ConfirmPayment(ctx context.Context, request provider.ConfirmRequest) (*provider.PaymentResponse, error) {
	if request.ProviderTransactionID == "" {
		return nil, provider.NewValidationError("webpay", "providerTransactionId is required")
	}

	endpoint := fmt.Sprintf(endpointTransaction, request.ProviderTransactionID)
	raw, err := p.doRequest(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, err
	}

	return p.mapTransactionResponse(raw, request.TransactionID)
}

// CancelPayment reverses or nullifies a Webpay transaction
func (p *WebpayProvider) CancelPayment(ctx context.Context, request provider.CancelRequest) (*provider.PaymentResponse, error) {
	if request.ProviderTransactionID == "" {
		return nil, provider.NewValidationError("webpay", "providerTransactionId is required")
	}

	// Transbank models cancellation as a full-amount refund of the
	// authorization before capture.
	endpoint := fmt.Sprintf(endpointRefund, request.ProviderTransactionID)
	raw, err := p.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"amount": 0})
	if err != nil {
		return nil, err
	}

	var tx webpayTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, provider.NewUnavailableError("webpay", "malformed cancel response", err)
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
func (p *WebpayProvider) RefundPayment(ctx context.Context, request provider.RefundRequest) (*provider.RefundResponse, error) {
	if request.Amount <= 0 {
		return nil, provider.NewValidationError("webpay", "refund amount must be greater than zero")
	}
	if request.ProviderTransactionID == "" {
		return nil, provider.NewValidationError("webpay", "providerTransactionId is required")
	}

	endpoint := fmt.Sprintf(endpointRefund, request.ProviderTransactionID)
	raw, err := p.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"amount": request.Amount})
	if err != nil {
		return nil, err
	}

	var refund struct {
		Type              string `json:"type"`
		AuthorizationCode string `json:"authorization_code"`
		ResponseCode      int    `json:"response_code"`
		NullifiedAmount   int64  `json:"nullified_amount"`
	}
	if err := json.Unmarshal(raw, &refund); err != nil {
		return nil, provider.NewUnavailableError("webpay", "malformed refund response", err)
	}

	if refund.ResponseCode != 0 {
		return nil, provider.NewDeclinedError("webpay",
			fmt.Sprintf("%d", refund.ResponseCode), "refund rejected by provider")
	}

	now := time.Now()
	return &provider.RefundResponse{
		Success:          true,
		ProviderRefundID: refund.AuthorizationCode,
		Status:           provider.StatusRefunded,
		Amount:           request.Amount,
		SystemTime:       &now,
	}, nil
}

// GetTransaction retrieves the provider's current view of a transaction
func (p *WebpayProvider) GetTransaction(ctx context.Context, request provider.StatusRequest) (*provider.PaymentResponse, error) {
	if request.ProviderTransactionID == "" {
		return nil, provider.NewValidationError("webpay", "providerTransactionId is required")
	}

	endpoint := fmt.Sprintf(endpointTransaction, request.ProviderTransactionID)
	raw, err := p.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	return p.mapTransactionResponse(raw, request.TransactionID)
}

// HealthCheck verifies connectivity by creating and abandoning no state:
// Transbank has no ping endpoint, so an unauthorized-token status query
// distinguishes reachable from down.
func (p *WebpayProvider) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf(endpointTransaction, "healthcheck-probe")
	_, err := p.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil && provider.IsUnavailable(err) {
		return err
	}
	// Validation/auth answers still prove the API is reachable
	return nil
}

// VerifySignature checks the HMAC-SHA256 signature of a webhook payload
func (p *WebpayProvider) VerifySignature(payload []byte, signature string) (bool, error) {
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

// Normalize maps a raw Webpay webhook payload into the internal envelope
func (p *WebpayProvider) Normalize(payload []byte) (*provider.WebhookEvent, error) {
	var raw struct {
		BuyOrder        string `json:"buy_order"`
		Token           string `json:"token"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		TransactionDate string `json:"transaction_date"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("webpay: malformed webhook payload: %w", err)
	}
	if raw.BuyOrder == "" {
		return nil, errors.New("webpay: webhook payload missing buy_order")
	}

	timestamp := time.Now()
	if ts, err := time.Parse(time.RFC3339, raw.TransactionDate); err == nil {
		timestamp = ts
	}

	return &provider.WebhookEvent{
		Event:                 "webpay." + raw.Status,
		TransactionID:         raw.BuyOrder,
		ProviderTransactionID: raw.Token,
		Status:                raw.Status,
		Amount:                raw.Amount,
		Currency:              "CLP",
		Timestamp:             timestamp,
	}, nil
}

// StatusTable maps Webpay transaction statuses to canonical status names
func (p *WebpayProvider) StatusTable() map[string]string {
	return map[string]string{
		statusInitialized: "PROCESSING",
		statusAuthorized:  "COMPLETED",
		statusFailed:      "FAILED",
		statusNullified:   "CANCELLED",
		statusReversed:    "REFUNDED",
	}
}

// ListPayments returns recent transactions known to Transbank
func (p *WebpayProvider) ListPayments(ctx context.Context, opts provider.ListOptions) ([]provider.PaymentResponse, error) {
	params := map[string]string{}
	if !opts.From.IsZero() {
		params["from"] = opts.From.Format(time.RFC3339)
	}
	if !opts.To.IsZero() {
		params["to"] = opts.To.Format(time.RFC3339)
	}
	if opts.Status != "" {
		params["status"] = opts.Status
	}
	if opts.Limit > 0 {
		params["limit"] = fmt.Sprintf("%d", opts.Limit)
	}

	resp, err := p.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:      http.MethodGet,
		Endpoint:    endpointTransactions,
		Headers:     p.authHeaders(),
		QueryParams: params,
	})
	if err != nil {
		return nil, provider.NewUnavailableError("webpay", "list request failed", err)
	}
	if herr := provider.ClassifyHTTPStatus("webpay", resp.StatusCode, string(resp.Body)); herr != nil {
		return nil, herr
	}

	var items []webpayTransaction
	if err := resp.Unmarshal(&items); err != nil {
		return nil, provider.NewUnavailableError("webpay", "malformed list response", err)
	}

	out := make([]provider.PaymentResponse, 0, len(items))
	for _, tx := range items {
		out = append(out, provider.PaymentResponse{
			Success:               tx.Status == statusAuthorized,
			Status:                mapStatus(tx.Status),
			TransactionID:         tx.BuyOrder,
			ProviderTransactionID: tx.Token,
			Amount:                tx.Amount,
			AuthorizationCode:     tx.AuthorizationCode,
		})
	}
	return out, nil
}

func (p *WebpayProvider) mapTransactionResponse(raw []byte, transactionID string) (*provider.PaymentResponse, error) {
	var tx webpayTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, provider.NewUnavailableError("webpay", "malformed transaction response", err)
	}

	if tx.Status == statusFailed || (tx.Status == statusAuthorized && tx.ResponseCode != 0) {
		return nil, provider.NewDeclinedError("webpay",
			fmt.Sprintf("%d", tx.ResponseCode), "transaction declined")
	}

	if transactionID == "" {
		transactionID = tx.BuyOrder
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:               tx.Status == statusAuthorized,
		Status:                mapStatus(tx.Status),
		TransactionID:         transactionID,
		ProviderTransactionID: tx.Token,
		Amount:                tx.Amount,
		AuthorizationCode:     tx.AuthorizationCode,
		SystemTime:            &now,
	}, nil
}

func mapStatus(status string) provider.Status {
	switch status {
	case statusInitialized:
		return provider.StatusProcessing
	case statusAuthorized:
		return provider.StatusSuccessful
	case statusNullified:
		return provider.StatusCancelled
	case statusReversed:
		return provider.StatusRefunded
	case statusFailed:
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

func (p *WebpayProvider) authHeaders() map[string]string {
	return map[string]string{
		"Tbk-Api-Key-Id":     p.commerceCode,
		"Tbk-Api-Key-Secret": p.apiKey,
	}
}

func (p *WebpayProvider) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	resp, err := p.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   method,
		Endpoint: endpoint,
		Headers:  p.authHeaders(),
		Body:     body,
	})
	if err != nil {
		return nil, provider.NewUnavailableError("webpay", "request failed", err)
	}

	if herr := provider.ClassifyHTTPStatus("webpay", resp.StatusCode, string(resp.Body)); herr != nil {
		return nil, herr
	}

	return resp.Body, nil
}
