// internal/domain/payment/elements.go
package payment

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotMounted      = errors.New("payment element not mounted")
	ErrAlreadyMounted  = errors.New("payment element already mounted")
	ErrEmptyCardMethod = errors.New("payment method id is empty")
)

// Elements is a payment collection surface bound to one intent's client secret.
// It must be destroyed and rebuilt whenever the intent changes.
type Elements struct {
	mu           sync.Mutex
	clientSecret string
	appearance   map[string]any
	options      map[string]any
	element      *PaymentElement
	destroyed    bool
}

// ClientSecret returns the secret the surface is bound to
func (e *Elements) ClientSecret() string {
	return e.clientSecret
}

// IntentID derives the payment intent id from the client secret
func (e *Elements) IntentID() string {
	return IntentIDFromSecret(e.clientSecret)
}

// Appearance returns the theme configured by the backend
func (e *Elements) Appearance() map[string]any {
	return e.appearance
}

// Options returns the element layout options configured by the backend
func (e *Elements) Options() map[string]any {
	return e.options
}

// Destroy unmounts the payment element and invalidates the surface. It is idempotent.
func (e *Elements) Destroy() {
	e.mu.Lock()
	el := e.element
	e.destroyed = true
	e.element = nil
	e.mu.Unlock()

	if el != nil {
		el.Unmount()
	}
}

// Destroyed reports whether Destroy was called
func (e *Elements) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *Elements) paymentElement() *PaymentElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.element
}

// PaymentElement collects the tokenized card for its Elements
type PaymentElement struct {
	mu              sync.Mutex
	target          string
	mounted         bool
	paymentMethodID string
}

// Mount attaches the element to a render target
func (p *PaymentElement) Mount(target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mounted {
		return ErrAlreadyMounted
	}
	p.target = target
	p.mounted = true
	return nil
}

// Unmount detaches the element and forgets collected card data
func (p *PaymentElement) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mounted = false
	p.target = ""
	p.paymentMethodID = ""
}

// Mounted reports whether the element is attached
func (p *PaymentElement) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mounted
}

// Collect records the tokenized payment method entered by the shopper
func (p *PaymentElement) Collect(paymentMethodID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mounted {
		return ErrNotMounted
	}
	if strings.TrimSpace(paymentMethodID) == "" {
		return ErrEmptyCardMethod
	}
	p.paymentMethodID = paymentMethodID
	return nil
}

// Complete reports whether card details have been collected
func (p *PaymentElement) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mounted && p.paymentMethodID != ""
}

func (p *PaymentElement) collected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paymentMethodID
}

// IntentIDFromSecret returns the intent id embedded in a client secret ("pi_x_secret_y" -> "pi_x")
func IntentIDFromSecret(secret string) string {
	if i := strings.Index(secret, "_secret_"); i > 0 {
		return secret[:i]
	}
	return secret
}
