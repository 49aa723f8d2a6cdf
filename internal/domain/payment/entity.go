// internal/domain/payment/entity.go
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotInitialized    = errors.New("payment gateway not initialized")
	ErrMissingKey        = errors.New("payment configuration has no publishable key")
	ErrNoClient          = errors.New("payment SDK returned no client")
	ErrElementsDestroyed = errors.New("payment elements destroyed")
)

// IntentStatus is the provider-side status of a payment intent
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// ProviderConfig is served by the backend so the publishable key is never baked into the client
type ProviderConfig struct {
	PublishableKey  string         `json:"publishableKey"`
	Currency        string         `json:"currency"`
	Country         string         `json:"country"`
	ReturnURL       string         `json:"returnUrl"`
	CancelURL       string         `json:"cancelUrl"`
	ElementsOptions map[string]any `json:"elementsOptions,omitempty"`
	Appearance      map[string]any `json:"appearance,omitempty"`
}

// PaymentIntent is the server-issued handle a card payment is confirmed against
type PaymentIntent struct {
	ID           string          `json:"paymentIntentId"`
	ClientSecret string          `json:"clientSecret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       IntentStatus    `json:"status"`
}

// ConfirmParams is what the SDK needs to confirm an intent client-side
type ConfirmParams struct {
	ClientSecret    string
	PaymentMethodID string
	ReturnURL       string
}

// ConfirmResult carries either a provider error or the intent after confirmation
type ConfirmResult struct {
	Intent *PaymentIntent
	Err    *ProviderError
}

// Succeeded reports whether the payment settled
func (r *ConfirmResult) Succeeded() bool {
	return r != nil && r.Err == nil && r.Intent != nil && r.Intent.Status == IntentStatusSucceeded
}

// ProviderError is a payment failure reported by the provider, e.g. a declined card
type ProviderError struct {
	Type        string
	Code        string
	DeclineCode string
	Message     string
}

func (e *ProviderError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("payment provider error %s (%s): %s", e.Code, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("payment provider error %s: %s", e.Code, e.Message)
}

// UserMessage returns the shopper-facing text for the error
func (e *ProviderError) UserMessage() string {
	return ErrorMessage(e.Code, e.DeclineCode)
}

// SDK bootstraps a provider client from a publishable key
type SDK interface {
	Load(ctx context.Context, publishableKey string) (Client, error)
}

// Client confirms payment intents against the provider
type Client interface {
	Confirm(ctx context.Context, params ConfirmParams) (*ConfirmResult, error)
}
