// internal/domain/payment/stripe_sdk.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/pkg/logger"
)

// StripeSDK loads Stripe clients that act with a publishable key, the way the
// browser SDK does: an intent is confirmed with its client secret.
type StripeSDK struct {
	apiBase    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewStripeSDK(cfg config.StripeConfig, log logrus.FieldLogger) *StripeSDK {
	return &StripeSDK{
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		httpClient: &http.Client{Timeout: 80 * time.Second},
		log:        logger.Component(log, "stripe"),
	}
}

func (s *StripeSDK) Load(ctx context.Context, publishableKey string) (Client, error) {
	if !strings.HasPrefix(publishableKey, "pk_") {
		return nil, fmt.Errorf("invalid publishable key")
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        s.httpClient,
		LeveledLogger:     s.log,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if s.apiBase != "" {
		backendCfg.URL = stripe.String(s.apiBase)
	}
	api := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	uploads := stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg)

	sc := client.New(publishableKey, &stripe.Backends{
		API:     api,
		Connect: api,
		Uploads: uploads,
	})
	return &stripeClient{api: sc}, nil
}

type stripeClient struct {
	api *client.API
}

func (c *stripeClient) Confirm(ctx context.Context, p ConfirmParams) (*ConfirmResult, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if p.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(p.PaymentMethodID)
	}
	if p.ReturnURL != "" {
		params.ReturnURL = stripe.String(p.ReturnURL)
	}
	params.AddExtra("client_secret", p.ClientSecret)

	pi, err := c.api.PaymentIntents.Confirm(IntentIDFromSecret(p.ClientSecret), params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type != stripe.ErrorTypeAPI && se.HTTPStatusCode < http.StatusInternalServerError {
			return &ConfirmResult{Err: &ProviderError{
				Type:        string(se.Type),
				Code:        string(se.Code),
				DeclineCode: string(se.DeclineCode),
				Message:     se.Msg,
			}}, nil
		}
		return nil, err
	}

	return &ConfirmResult{Intent: &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: p.ClientSecret,
		Amount:       decimal.New(pi.Amount, -2),
		Currency:     string(pi.Currency),
		Status:       IntentStatus(pi.Status),
	}}, nil
}
