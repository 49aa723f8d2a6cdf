// internal/domain/checkout/entity.go
package checkout

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/your-org/photo-print-storefront/internal/domain/cart"
	"github.com/your-org/photo-print-storefront/internal/domain/order"
	"github.com/your-org/photo-print-storefront/internal/domain/payment"
)

// Step is a state of the checkout machine
type Step string

const (
	StepShippingEntry          Step = "shipping_entry"
	StepPaymentMethodSelection Step = "payment_method_selection"
	StepCardInitializing       Step = "card_initializing"
	StepCardReady              Step = "card_ready"
	StepConfirming             Step = "confirming"
	StepBranchReady            Step = "branch_ready"
	StepOrderCreated           Step = "order_created"
	// StepFailed is the retryable gateway failure of the card path
	StepFailed Step = "failed"
)

var (
	ErrInvalidTransition = errors.New("checkout: invalid transition")
	ErrSubmitting        = errors.New("checkout: order submission in progress")
	ErrNotReady          = errors.New("checkout: order cannot be placed yet")
	ErrNoPendingOrder    = errors.New("checkout: no order awaiting payment confirmation")
	ErrStaleIntent       = errors.New("checkout: payment intent was already discarded")
	ErrPaymentIncomplete = errors.New("checkout: payment not completed")
)

// CartView is the part of the cart store checkout reads
type CartView interface {
	Snapshot() cart.Snapshot
	Load(ctx context.Context) error
}

// Gateway is the payment adapter as checkout uses it
type Gateway interface {
	Initialize(ctx context.Context) error
	Ready() bool
	CreatePaymentIntent(ctx context.Context, state, postalCode string) (*payment.PaymentIntent, error)
	CreateElements(clientSecret string) (*payment.Elements, error)
	CreatePaymentElement(elements *payment.Elements) (*payment.PaymentElement, error)
	ConfirmPayment(ctx context.Context, elements *payment.Elements, returnURL string) (*payment.ConfirmResult, error)
}

// OrderCreator creates orders on the backend
type OrderCreator interface {
	CreateOrder(ctx context.Context, req order.Request, idempotencyKey string) (*order.Order, error)
}

// Navigator moves the shopper on once an order exists
type Navigator interface {
	ToOrderConfirmation(orderID string)
	ToOrderList()
}

// Pricing is the displayed cost breakdown for a payment method
type Pricing struct {
	Method   order.PaymentMethod
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// FeeModel derives displayed pricing from the cart summary for a payment method
type FeeModel interface {
	Price(summary cart.Summary, method order.PaymentMethod) Pricing
}

// SummaryFeeModel trusts the server summary for every payment method
type SummaryFeeModel struct{}

func (SummaryFeeModel) Price(summary cart.Summary, method order.PaymentMethod) Pricing {
	return Pricing{
		Method:   method,
		Subtotal: summary.Subtotal,
		Tax:      summary.Tax,
		Total:    summary.Total,
	}
}

// PendingOrder is an order created on the card path whose payment is not yet confirmed
type PendingOrder struct {
	Order    *order.Order
	IntentID string
}

// PlaceOrderInput carries the path-specific fields of the final submission
type PlaceOrderInput struct {
	CardholderName  string
	PreferredBranch string
}

// View is an observable snapshot of the checkout
type View struct {
	Step                Step
	Method              order.PaymentMethod
	Shipping            order.ShippingAddress
	ShippingValid       bool
	FieldErrors         map[string]string
	Intent              *payment.PaymentIntent
	GatewayInitializing bool
	GatewayError        error
	Submitting          bool
	Err                 error
	Message             string
	Pricing             Pricing
	Order               *order.Order
	Pending             *PendingOrder
	CanPlaceOrder       bool
}

type noopNavigator struct{}

func (noopNavigator) ToOrderConfirmation(string) {}
func (noopNavigator) ToOrderList()               {}
