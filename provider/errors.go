package provider

import (
	"errors"
	"fmt"
)

// ErrNoWebhookSecret signals that an adapter has no verification secret
// configured. The pipeline accepts such events but flags them for audit.
var ErrNoWebhookSecret = errors.New("provider: no webhook secret configured")

// Kind classifies a provider error for retry and HTTP mapping decisions
type Kind int

const (
	// KindUnavailable covers network errors and provider 5xx. Retryable.
	KindUnavailable Kind = iota
	// KindAuth covers 401/403. A configuration problem, never retried.
	KindAuth
	// KindDeclined is a business decline. Terminal outcome.
	KindDeclined
	// KindValidation is a malformed request. Terminal, caller's fault.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "provider_unavailable"
	case KindAuth:
		return "provider_auth"
	case KindDeclined:
		return "payment_declined"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the normalized error every adapter method returns
type Error struct {
	Kind     Kind
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s [%s]: %s", e.Provider, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewUnavailableError creates a retryable provider error
func NewUnavailableError(provider, message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Provider: provider, Message: message, Err: err}
}

// NewAuthError creates a fatal credential error
func NewAuthError(provider, message string) *Error {
	return &Error{Kind: KindAuth, Provider: provider, Message: message}
}

// NewDeclinedError creates a business-decline error
func NewDeclinedError(provider, code, message string) *Error {
	return &Error{Kind: KindDeclined, Provider: provider, Code: code, Message: message}
}

// NewValidationError creates a malformed-request error
func NewValidationError(provider, message string) *Error {
	return &Error{Kind: KindValidation, Provider: provider, Message: message}
}

func kindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err is a transient provider failure
func IsRetryable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnavailable
}

// IsUnavailable reports whether err is a ProviderUnavailable error
func IsUnavailable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnavailable
}

// IsAuthError reports whether err is a ProviderAuth error
func IsAuthError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindAuth
}

// IsDeclined reports whether err is a PaymentDeclined error
func IsDeclined(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindDeclined
}

// IsValidation reports whether err is a Validation error
func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

// ClassifyHTTPStatus maps a provider HTTP status code to the error taxonomy
func ClassifyHTTPStatus(provider string, statusCode int, body string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 401 || statusCode == 403:
		return NewAuthError(provider, fmt.Sprintf("authentication rejected (HTTP %d)", statusCode))
	case statusCode == 402:
		return NewDeclinedError(provider, fmt.Sprintf("%d", statusCode), body)
	case statusCode >= 400 && statusCode < 500:
		return NewValidationError(provider, fmt.Sprintf("request rejected (HTTP %d): %s", statusCode, body))
	default:
		return NewUnavailableError(provider, fmt.Sprintf("provider returned HTTP %d", statusCode), nil)
	}
}

// UnknownProviderError is returned by the registry for unregistered names
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("payment provider '%s' is not registered", e.Provider)
}

// IsUnknownProvider reports whether err is an UnknownProviderError
func IsUnknownProvider(err error) bool {
	var upe *UnknownProviderError
	return errors.As(err, &upe)
}
