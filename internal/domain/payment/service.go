// internal/domain/payment/service.go
package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/photo-print-storefront/internal/pkg/apiclient"
	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
	"github.com/your-org/photo-print-storefront/internal/pkg/logger"
)

// Backend is the payment side of the storefront REST API
type Backend interface {
	GetConfig(ctx context.Context) (*ProviderConfig, error)
	CreatePaymentIntent(ctx context.Context, state, postalCode string) (*PaymentIntent, error)
}

// API implements Backend over HTTP
type API struct {
	client *apiclient.Client
}

func NewAPI(client *apiclient.Client) *API {
	return &API{client: client}
}

func (a *API) GetConfig(ctx context.Context) (*ProviderConfig, error) {
	return apiclient.Do[ProviderConfig](ctx, a.client, http.MethodGet, "/stripe/config", nil)
}

type createIntentRequest struct {
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

func (a *API) CreatePaymentIntent(ctx context.Context, state, postalCode string) (*PaymentIntent, error) {
	return apiclient.Do[PaymentIntent](ctx, a.client, http.MethodPost, "/orders/payment-intent", createIntentRequest{
		State:      state,
		PostalCode: postalCode,
	})
}

// Adapter bridges checkout and the payment SDK. The SDK is loaded lazily so
// shoppers paying at a branch never pay for it.
type Adapter struct {
	backend Backend
	sdk     SDK
	log     logrus.FieldLogger

	group singleflight.Group

	mu        sync.RWMutex
	config    *ProviderConfig
	client    Client
	returnURL string
}

// AdapterOption customizes an Adapter
type AdapterOption func(*Adapter)

// WithDefaultReturnURL is used when neither the caller nor the provider config names one
func WithDefaultReturnURL(url string) AdapterOption {
	return func(a *Adapter) { a.returnURL = url }
}

// NewAdapter creates a payment gateway adapter
func NewAdapter(backend Backend, sdk SDK, log logrus.FieldLogger, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		backend: backend,
		sdk:     sdk,
		log:     logger.Component(log, "payment"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize fetches the provider configuration and loads the SDK. Concurrent
// callers share one attempt; a failed attempt leaves the adapter ready to retry.
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.Ready() {
		return nil
	}

	_, err, shared := a.group.Do("initialize", func() (any, error) {
		if a.Ready() {
			return nil, nil
		}

		cfg, err := a.backend.GetConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch payment configuration: %w", err)
		}
		if cfg == nil || strings.TrimSpace(cfg.PublishableKey) == "" {
			return nil, ErrMissingKey
		}

		client, err := a.sdk.Load(ctx, cfg.PublishableKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load payment SDK: %w", err)
		}
		if client == nil {
			return nil, ErrNoClient
		}

		a.mu.Lock()
		a.config = cfg
		a.client = client
		a.mu.Unlock()

		a.log.WithFields(logrus.Fields{
			"currency": cfg.Currency,
			"country":  cfg.Country,
		}).Info("Payment gateway initialized")
		return nil, nil
	})
	if err != nil {
		a.log.WithError(err).WithField("shared", shared).Warn("Payment gateway initialization failed")
	}
	return err
}

// Ready reports whether Initialize has succeeded
func (a *Adapter) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil
}

// Config returns the provider configuration, nil before initialization
func (a *Adapter) Config() *ProviderConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// CreatePaymentIntent requests a fresh intent for the shipping region
func (a *Adapter) CreatePaymentIntent(ctx context.Context, state, postalCode string) (*PaymentIntent, error) {
	if !a.Ready() {
		return nil, ErrNotInitialized
	}
	if strings.TrimSpace(state) == "" || strings.TrimSpace(postalCode) == "" {
		return nil, envelope.Validation("Shipping region is required", "state and postalCode must not be empty")
	}

	intent, err := a.backend.CreatePaymentIntent(ctx, state, postalCode)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	if intent == nil || intent.ID == "" || intent.ClientSecret == "" {
		return nil, &envelope.Error{Kind: envelope.KindRejected, Message: "payment intent response is incomplete"}
	}

	a.log.WithFields(logrus.Fields{
		"payment_intent_id": intent.ID,
		"amount":            intent.Amount.String(),
		"currency":          intent.Currency,
	}).Info("Payment intent created")
	return intent, nil
}

// CreateElements builds a collection surface bound to clientSecret
func (a *Adapter) CreateElements(clientSecret string) (*Elements, error) {
	cfg := a.Config()
	if cfg == nil {
		return nil, ErrNotInitialized
	}
	if strings.TrimSpace(clientSecret) == "" {
		return nil, envelope.Validation("Payment is not ready yet", "client secret is required")
	}
	return &Elements{
		clientSecret: clientSecret,
		appearance:   cfg.Appearance,
		options:      cfg.ElementsOptions,
	}, nil
}

// CreatePaymentElement adds the card collection element to elements
func (a *Adapter) CreatePaymentElement(elements *Elements) (*PaymentElement, error) {
	if elements == nil {
		return nil, ErrElementsDestroyed
	}
	elements.mu.Lock()
	defer elements.mu.Unlock()
	if elements.destroyed {
		return nil, ErrElementsDestroyed
	}
	if elements.element != nil {
		elements.element.Unmount()
	}
	elements.element = &PaymentElement{}
	return elements.element, nil
}

// ConfirmPayment confirms the intent elements is bound to. Provider failures are
// reported in the result; the error return is for transport and usage failures.
func (a *Adapter) ConfirmPayment(ctx context.Context, elements *Elements, returnURL string) (*ConfirmResult, error) {
	a.mu.RLock()
	client, cfg := a.client, a.config
	a.mu.RUnlock()
	if client == nil {
		return nil, ErrNotInitialized
	}
	if elements == nil || elements.Destroyed() {
		return nil, ErrElementsDestroyed
	}

	el := elements.paymentElement()
	if el == nil || !el.Complete() {
		return &ConfirmResult{Err: &ProviderError{
			Type:    "validation_error",
			Code:    "incomplete",
			Message: "Your card details are incomplete.",
		}}, nil
	}

	if returnURL == "" {
		returnURL = cfg.ReturnURL
	}
	if returnURL == "" {
		returnURL = a.returnURL
	}

	entry := a.log.WithField("payment_intent_id", elements.IntentID())
	res, err := client.Confirm(ctx, ConfirmParams{
		ClientSecret:    elements.ClientSecret(),
		PaymentMethodID: el.collected(),
		ReturnURL:       returnURL,
	})
	if err != nil {
		entry.WithError(err).Error("Payment confirmation failed")
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("failed to confirm payment: empty result")
	}

	switch {
	case res.Err != nil:
		entry.WithFields(logrus.Fields{
			"code":         res.Err.Code,
			"decline_code": res.Err.DeclineCode,
		}).Warn("Payment confirmation rejected by provider")
	case res.Intent != nil:
		entry.WithField("status", res.Intent.Status).Info("Payment confirmation completed")
	}
	return res, nil
}
