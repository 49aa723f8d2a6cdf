package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/photo-print-storefront/internal/config"
)

type capturedRequest struct {
	path string
	auth string
	form url.Values
}

func fakeStripe(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	seen := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		seen.path = r.URL.Path
		seen.auth = r.Header.Get("Authorization")
		seen.form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestStripeSDKRejectsSecretKeys(t *testing.T) {
	sdk := NewStripeSDK(config.StripeConfig{}, nil)
	_, err := sdk.Load(context.Background(), "sk_live_nope")
	assert.Error(t, err)
}

func TestStripeSDKConfirmSucceeded(t *testing.T) {
	srv, seen := fakeStripe(t, http.StatusOK, `{
		"id": "pi_test_001",
		"object": "payment_intent",
		"amount": 1080,
		"currency": "usd",
		"status": "succeeded"
	}`)

	sdk := NewStripeSDK(config.StripeConfig{APIBase: srv.URL}, nil)
	client, err := sdk.Load(context.Background(), "pk_test_123")
	require.NoError(t, err)

	res, err := client.Confirm(context.Background(), ConfirmParams{
		ClientSecret:    "pi_test_001_secret_abc",
		PaymentMethodID: "pm_card_visa",
		ReturnURL:       "https://shop.example.com/done",
	})
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.True(t, res.Succeeded())
	assert.True(t, res.Intent.Amount.Equal(decimal.RequireFromString("10.80")))

	assert.Equal(t, "/v1/payment_intents/pi_test_001/confirm", seen.path)
	assert.Equal(t, "Bearer pk_test_123", seen.auth)
	assert.Equal(t, "pi_test_001_secret_abc", seen.form.Get("client_secret"))
	assert.Equal(t, "pm_card_visa", seen.form.Get("payment_method"))
	assert.Equal(t, "https://shop.example.com/done", seen.form.Get("return_url"))
}

func TestStripeSDKConfirmCardError(t *testing.T) {
	srv, _ := fakeStripe(t, http.StatusPaymentRequired, `{
		"error": {
			"type": "card_error",
			"code": "card_declined",
			"decline_code": "insufficient_funds",
			"message": "Your card has insufficient funds."
		}
	}`)

	client, err := NewStripeSDK(config.StripeConfig{APIBase: srv.URL}, nil).Load(context.Background(), "pk_test_123")
	require.NoError(t, err)

	res, err := client.Confirm(context.Background(), ConfirmParams{ClientSecret: "pi_9_secret_x", PaymentMethodID: "pm_card_visa"})
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, "card_declined", res.Err.Code)
	assert.Equal(t, "insufficient_funds", res.Err.DeclineCode)
	assert.Equal(t, ErrorMessage("insufficient_funds", ""), res.Err.UserMessage())
}

func TestStripeSDKConfirmServerError(t *testing.T) {
	srv, _ := fakeStripe(t, http.StatusInternalServerError, `{
		"error": {"type": "api_error", "message": "Something went wrong on Stripe's end."}
	}`)

	client, err := NewStripeSDK(config.StripeConfig{APIBase: srv.URL}, nil).Load(context.Background(), "pk_test_123")
	require.NoError(t, err)

	res, err := client.Confirm(context.Background(), ConfirmParams{ClientSecret: "pi_9_secret_x"})
	assert.Error(t, err)
	assert.Nil(t, res)
}
