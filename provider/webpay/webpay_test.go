package webpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/PeterH4ck/SKYN3T-Control--sub000/provider"
	"github.com/stretchr/testify/assert"
)

func newInitializedProvider(t *testing.T) *WebpayProvider {
	t.Helper()

	p := NewProvider().(*WebpayProvider)
	err := p.Initialize(map[string]string{
		"commerceCode":  "597055555532",
		"apiKey":        "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C",
		"webhookSecret": "test-secret",
		"environment":   "sandbox",
	})
	assert.NoError(t, err)
	return p
}

func TestInitialize_RequiresCredentials(t *testing.T) {
	p := NewProvider().(*WebpayProvider)

	err := p.Initialize(map[string]string{"environment": "sandbox"})
	assert.Error(t, err)
}

func TestInitialize_SelectsEnvironmentURL(t *testing.T) {
	p := newInitializedProvider(t)
	assert.Equal(t, apiSandboxURL, p.baseURL)
	assert.False(t, p.isProduction)

	prod := NewProvider().(*WebpayProvider)
	err := prod.Initialize(map[string]string{
		"commerceCode": "597055555532",
		"apiKey":       "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C",
		"environment":  "production",
	})
	assert.NoError(t, err)
	assert.Equal(t, apiProductionURL, prod.baseURL)
}

func TestValidateConfig(t *testing.T) {
	p := NewProvider().(*WebpayProvider)

	err := p.ValidateConfig(map[string]string{
		"commerceCode": "597055555532",
		"apiKey":       "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C",
		"environment":  "sandbox",
	})
	assert.NoError(t, err)

	err = p.ValidateConfig(map[string]string{
		"commerceCode": "597055555532",
		"environment":  "sandbox",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "apiKey")

	err = p.ValidateConfig(map[string]string{
		"commerceCode": "597055555532",
		"apiKey":       "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C",
		"environment":  "staging",
	})
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	p := newInitializedProvider(t)
	payload := []byte(`{"buy_order":"tx-1","status":"AUTHORIZED"}`)

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	ok, err := p.VerifySignature(payload, signature)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.VerifySignature(payload, "deadbeef")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.VerifySignature(payload, "")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySignature_NoSecret(t *testing.T) {
	p := NewProvider().(*WebpayProvider)
	err := p.Initialize(map[string]string{
		"commerceCode": "597055555532",
		"apiKey":       "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C",
		"environment":  "sandbox",
	})
	assert.NoError(t, err)

	_, err = p.VerifySignature([]byte("{}"), "any")
	assert.ErrorIs(t, err, provider.ErrNoWebhookSecret)
}

func TestNormalize(t *testing.T) {
	p := newInitializedProvider(t)

	event, err := p.Normalize([]byte(`{
		"buy_order": "tx-42",
		"token": "01ab23cd",
		"status": "AUTHORIZED",
		"amount": 150000,
		"transaction_date": "2026-08-01T12:30:00Z"
	}`))
	assert.NoError(t, err)
	assert.Equal(t, "tx-42", event.TransactionID)
	assert.Equal(t, "01ab23cd", event.ProviderTransactionID)
	assert.Equal(t, "AUTHORIZED", event.Status)
	assert.Equal(t, int64(150000), event.Amount)
	assert.Equal(t, "CLP", event.Currency)
	assert.Equal(t, 2026, event.Timestamp.Year())
}

func TestNormalize_MissingBuyOrder(t *testing.T) {
	p := newInitializedProvider(t)

	_, err := p.Normalize([]byte(`{"status":"AUTHORIZED"}`))
	assert.Error(t, err)

	_, err = p.Normalize([]byte(`not json`))
	assert.Error(t, err)
}

func TestStatusTable(t *testing.T) {
	p := newInitializedProvider(t)

	table := p.StatusTable()
	assert.Equal(t, "COMPLETED", table["AUTHORIZED"])
	assert.Equal(t, "PROCESSING", table["INITIALIZED"])
	assert.Equal(t, "FAILED", table["FAILED"])
	assert.Equal(t, "CANCELLED", table["NULLIFIED"])
	assert.Equal(t, "REFUNDED", table["REVERSED"])
}

func TestAdapterSatisfiesGatewayContract(t *testing.T) {
	var _ provider.GatewayAdapter = &WebpayProvider{}
}
