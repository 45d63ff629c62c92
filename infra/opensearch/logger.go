package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// PaymentEvent represents a structured payment event entry
type PaymentEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Provider       string    `json:"provider"`
	EventType      string    `json:"event_type"`
	PaymentID      string    `json:"payment_id"`
	RequestID      string    `json:"request_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	AmountMinor    int64     `json:"amount_minor,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	Error          ErrorInfo `json:"error,omitempty"`
}

// WebhookAudit represents a webhook delivery audit entry
type WebhookAudit struct {
	Timestamp         time.Time `json:"timestamp"`
	Provider          string    `json:"provider"`
	EventType         string    `json:"event_type"`
	PaymentID         string    `json:"payment_id,omitempty"`
	RequestID         string    `json:"request_id"`
	Payload           string    `json:"payload,omitempty"`
	SignatureVerified bool      `json:"signature_verified"`
	Accepted          bool      `json:"accepted"`
	Reason            string    `json:"reason,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogPaymentEvent logs a payment event to OpenSearch
func (l *Logger) LogPaymentEvent(ctx context.Context, event PaymentEvent) error {
	if !l.client.IsEnabled() {
		return nil // Logging disabled
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.RequestID == "" {
		event.RequestID = uuid.New().String()
	}

	indexName := l.client.GetEventIndexName(event.Provider)

	return l.index(ctx, indexName, event)
}

// LogWebhookAudit logs a webhook delivery audit entry to OpenSearch
func (l *Logger) LogWebhookAudit(ctx context.Context, audit WebhookAudit) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if audit.Timestamp.IsZero() {
		audit.Timestamp = time.Now()
	}

	if audit.RequestID == "" {
		audit.RequestID = uuid.New().String()
	}

	audit.Payload = SanitizeForLog(audit.Payload)

	return l.index(ctx, "paycore-webhook-audit", audit)
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, log any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	return l.index(ctx, "paycore-system-logs", log)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchPaymentEvents searches for payment events based on criteria
func (l *Logger) SearchPaymentEvents(ctx context.Context, provider string, query map[string]any) ([]PaymentEvent, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	indexName := l.client.GetEventIndexName(provider)

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100, // Limit results
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source PaymentEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	events := make([]PaymentEvent, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		events[i] = hit.Source
	}

	return events, nil
}

// GetPaymentEvents retrieves events for a specific payment ID
func (l *Logger) GetPaymentEvents(ctx context.Context, provider, paymentID string) ([]PaymentEvent, error) {
	query := map[string]any{
		"match": map[string]any{
			"payment_id": paymentID,
		},
	}

	return l.SearchPaymentEvents(ctx, provider, query)
}

// SanitizeForLog removes sensitive information from data before logging
func SanitizeForLog(data string) string {
	sensitiveFields := []string{
		"cardNumber", "card_number", "cvv", "cvc", "cardHolderName", "card_holder_name",
		"apiKey", "api_key", "secretKey", "secret_key", "password", "token",
		"authorization", "x-api-key", "x-secret-key",
	}

	result := data
	for _, field := range sensitiveFields {
		patterns := []string{
			fmt.Sprintf(`"%s"\s*:\s*"[^"]*"`, field),
			fmt.Sprintf(`"%s"\s*:\s*'[^']*'`, field),
			fmt.Sprintf(`%s=\w+`, field),
		}

		for _, pattern := range patterns {
			re := regexp.MustCompile(pattern)
			result = re.ReplaceAllString(result, fmt.Sprintf(`"%s":"***REDACTED***"`, field))
		}
	}

	return result
}
