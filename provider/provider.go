package provider

import (
	"context"
	"time"
)

// Status represents the provider-side status of a payment attempt
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// ConfigField represents a required configuration field for a payment provider
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`   // regex pattern for validation
	MinLength   int    `json:"minLength,omitempty"` // minimum length for string fields
	MaxLength   int    `json:"maxLength,omitempty"` // maximum length for string fields
}

// Customer represents the paying party
type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	IPAddress   string `json:"ipAddress,omitempty"`
}

// BankAccount identifies a recipient account for bank-type providers
type BankAccount struct {
	HolderID      string `json:"holderId"`
	HolderName    string `json:"holderName"`
	BankCode      string `json:"bankCode"`
	AccountNumber string `json:"accountNumber"`
	AccountType   string `json:"accountType,omitempty"`
}

// PaymentRequest contains all information required to create a payment.
// Amounts are integer minor currency units.
type PaymentRequest struct {
	TransactionID string            `json:"transactionId"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Customer      Customer          `json:"customer"`
	Description   string            `json:"description,omitempty"`
	CallbackURL   string            `json:"callbackUrl,omitempty"`
	CommunityID   string            `json:"communityId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PaymentResponse contains the result of a provider operation
type PaymentResponse struct {
	Success               bool       `json:"success"`
	Status                Status     `json:"status"`
	Message               string     `json:"message,omitempty"`
	ErrorCode             string     `json:"errorCode,omitempty"`
	TransactionID         string     `json:"transactionId,omitempty"`
	ProviderTransactionID string     `json:"providerTransactionId,omitempty"`
	Amount                int64      `json:"amount,omitempty"`
	Currency              string     `json:"currency,omitempty"`
	RedirectURL           string     `json:"redirectUrl,omitempty"`
	AuthorizationCode     string     `json:"authorizationCode,omitempty"`
	SystemTime            *time.Time `json:"systemTime,omitempty"`
	ProviderResponse      any        `json:"providerResponse,omitempty"`
}

// ConfirmRequest contains information to confirm (capture) a payment
type ConfirmRequest struct {
	TransactionID         string `json:"transactionId"`
	ProviderTransactionID string `json:"providerTransactionId"`
	Amount                int64  `json:"amount,omitempty"`
}

// CancelRequest contains information to cancel a payment
type CancelRequest struct {
	TransactionID         string `json:"transactionId"`
	ProviderTransactionID string `json:"providerTransactionId"`
	Reason                string `json:"reason,omitempty"`
}

// RefundRequest contains information to request a refund
type RefundRequest struct {
	TransactionID         string `json:"transactionId"`
	ProviderTransactionID string `json:"providerTransactionId"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency,omitempty"`
	Reason                string `json:"reason,omitempty"`
}

// RefundResponse contains the result of a refund request
type RefundResponse struct {
	Success          bool       `json:"success"`
	RefundID         string     `json:"refundId,omitempty"`
	ProviderRefundID string     `json:"providerRefundId,omitempty"`
	Status           Status     `json:"status,omitempty"`
	Amount           int64      `json:"amount,omitempty"`
	Message          string     `json:"message,omitempty"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	SystemTime       *time.Time `json:"systemTime,omitempty"`
	RawResponse      any        `json:"rawResponse,omitempty"`
}

// StatusRequest contains information to query a transaction
type StatusRequest struct {
	TransactionID         string `json:"transactionId"`
	ProviderTransactionID string `json:"providerTransactionId,omitempty"`
}

// ListOptions filters a gateway payment listing
type ListOptions struct {
	From   time.Time `json:"from,omitempty"`
	To     time.Time `json:"to,omitempty"`
	Status string    `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// WebhookEvent is the normalized envelope every adapter produces from a
// raw provider callback
type WebhookEvent struct {
	Event                 string            `json:"event"`
	TransactionID         string            `json:"transactionId"`
	ProviderTransactionID string            `json:"providerTransactionId,omitempty"`
	Status                string            `json:"status"`
	Amount                int64             `json:"amount,omitempty"`
	Currency              string            `json:"currency,omitempty"`
	Timestamp             time.Time         `json:"timestamp"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// Adapter is the uniform payment-provider contract
type Adapter interface {
	// Initialize sets up the adapter with authentication and configuration
	Initialize(config map[string]string) error

	// RequiredConfig returns the configuration fields required for this provider
	RequiredConfig(environment string) []ConfigField

	// ValidateConfig validates the provided configuration against provider requirements
	ValidateConfig(config map[string]string) error

	// ProcessPayment submits a new payment to the provider
	ProcessPayment(ctx context.Context, request PaymentRequest) (*PaymentResponse, error)

	// ConfirmPayment captures a previously authorized payment
	ConfirmPayment(ctx context.Context, request ConfirmRequest) (*PaymentResponse, error)

	// CancelPayment cancels a payment that has not completed
	CancelPayment(ctx context.Context, request CancelRequest) (*PaymentResponse, error)

	// RefundPayment issues a full or partial refund
	RefundPayment(ctx context.Context, request RefundRequest) (*RefundResponse, error)

	// GetTransaction retrieves the provider's current view of a transaction
	GetTransaction(ctx context.Context, request StatusRequest) (*PaymentResponse, error)

	// HealthCheck verifies the provider is reachable and credentials work
	HealthCheck(ctx context.Context) error

	// VerifySignature checks the authenticity of a raw webhook payload.
	// Adapters with no secret configured return ErrNoWebhookSecret.
	VerifySignature(payload []byte, signature string) (bool, error)

	// Normalize maps a raw webhook payload into the internal envelope
	Normalize(payload []byte) (*WebhookEvent, error)

	// StatusTable maps the provider's free-text statuses to canonical
	// payment status names. Unknown values are the consumer's problem.
	StatusTable() map[string]string
}

// BankAdapter is an Adapter for bank-transfer providers
type BankAdapter interface {
	Adapter

	// ValidateBankAccount checks a recipient account before distribution
	ValidateBankAccount(ctx context.Context, account BankAccount) error
}

// GatewayAdapter is an Adapter for card/gateway providers
type GatewayAdapter interface {
	Adapter

	// ListPayments returns recent payments known to the provider
	ListPayments(ctx context.Context, opts ListOptions) ([]PaymentResponse, error)
}

// Factory is a function type that creates a new Adapter
type Factory func() Adapter
