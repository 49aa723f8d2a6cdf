// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/domain/order"
	"github.com/your-org/photo-print-storefront/internal/domain/payment"
	"github.com/your-org/photo-print-storefront/internal/pkg/broadcast"
	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
	"github.com/your-org/photo-print-storefront/internal/pkg/logger"
	"github.com/your-org/photo-print-storefront/internal/pkg/metrics"
)

// PaymentElementTarget is where the card element is mounted
const PaymentElementTarget = "#payment-element"

// Deps are the collaborators of an Orchestrator. Navigator and Fees are optional.
type Deps struct {
	Cart      CartView
	Gateway   Gateway
	Orders    OrderCreator
	Navigator Navigator
	Fees      FeeModel
}

// Orchestrator drives one checkout session
type Orchestrator struct {
	cart    CartView
	gateway Gateway
	orders  OrderCreator
	nav     Navigator
	fees    FeeModel
	cfg     config.CheckoutConfig
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	newKey  func() string

	// mu guards everything below and is never held across a network call.
	// epoch grows on every method switch or region change; work started
	// under an older epoch is dropped when it completes.
	mu            sync.Mutex
	epoch         uint64
	step          Step
	method        order.PaymentMethod
	shipping      order.ShippingAddress
	shippingValid bool
	fieldErrors   map[string]string
	intent        *payment.PaymentIntent
	elements      *payment.Elements
	element       *payment.PaymentElement
	initializing  bool
	gatewayErr    error
	submitting    bool
	err           error
	message       string
	order         *order.Order
	pending       *PendingOrder
	idemKey       string
	idemReq       order.Request
	discarded     map[string]struct{}

	hub *broadcast.Hub[View]
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithMetrics counts step transitions
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithKeyGenerator replaces the idempotency key source
func WithKeyGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newKey = fn }
}

// NewOrchestrator creates a checkout session starting at shipping entry
func NewOrchestrator(deps Deps, cfg config.CheckoutConfig, log logrus.FieldLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cart:      deps.Cart,
		gateway:   deps.Gateway,
		orders:    deps.Orders,
		nav:       deps.Navigator,
		fees:      deps.Fees,
		cfg:       cfg,
		log:       logger.Component(log, "checkout"),
		newKey:    uuid.NewString,
		step:      StepShippingEntry,
		discarded: make(map[string]struct{}),
		hub:       broadcast.NewHub[View](),
	}
	if o.nav == nil {
		o.nav = noopNavigator{}
	}
	if o.fees == nil {
		o.fees = SummaryFeeModel{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current view
func (o *Orchestrator) State() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// Subscribe streams the current view followed by every later one, in order
func (o *Orchestrator) Subscribe() (<-chan View, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hub.Subscribe(o.viewLocked())
}

// Close ends all subscriptions and disposes payment resources
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.epoch++
	o.teardownLocked()
	o.mu.Unlock()
	o.hub.Close()
}

// Pricing returns the cost breakdown for the selected payment method
func (o *Orchestrator) Pricing() Pricing {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pricingLocked()
}

// CanPlaceOrder reports whether PlaceOrder would be attempted
func (o *Orchestrator) CanPlaceOrder() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canPlaceLocked()
}

// UpdateShipping stores the shipping form and re-validates it. A region change on
// the card path discards the current intent and, when possible, requests a new one.
func (o *Orchestrator) UpdateShipping(ctx context.Context, addr order.ShippingAddress) error {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return ErrSubmitting
	}
	if o.step == StepOrderCreated || o.pending != nil {
		o.mu.Unlock()
		return ErrInvalidTransition
	}

	prevRegion := o.shipping.Region()
	if addr != o.shipping {
		o.idemKey = ""
	}
	o.shipping = addr
	o.fieldErrors = addr.FieldErrors()
	o.shippingValid = len(o.fieldErrors) == 0

	refresh := false
	var ep uint64
	if o.cardPathLocked() && (prevRegion != addr.Region() || (o.intent == nil && !o.initializing)) {
		wasInitializing := o.initializing
		o.epoch++
		ep = o.epoch
		o.teardownLocked()
		if o.gateway.Ready() || wasInitializing {
			o.gatewayErr = nil
			o.setStepLocked(StepCardInitializing)
			refresh = true
		}
	}
	o.publishLocked()
	o.mu.Unlock()

	if refresh {
		return o.prepareCard(ctx, ep)
	}
	return nil
}

// SubmitShipping moves from shipping entry to payment method selection
func (o *Orchestrator) SubmitShipping() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.step != StepShippingEntry {
		return ErrInvalidTransition
	}
	if err := o.shipping.Validate(); err != nil {
		o.err = err
		o.message = envelope.UserMessage(err)
		o.publishLocked()
		return err
	}

	o.err = nil
	o.message = ""
	o.setStepLocked(StepPaymentMethodSelection)
	o.publishLocked()
	return nil
}

// SelectPaymentMethod resets any payment surface and enters the chosen path.
// The branch path never touches the gateway.
func (o *Orchestrator) SelectPaymentMethod(ctx context.Context, method order.PaymentMethod) error {
	if method != order.PaymentMethodCreditCard && method != order.PaymentMethodBranchPayment {
		return envelope.Validation("Please choose a payment method", fmt.Sprintf("unsupported payment method %q", method))
	}

	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return ErrSubmitting
	}
	switch {
	case o.step == StepShippingEntry, o.step == StepOrderCreated, o.pending != nil:
		o.mu.Unlock()
		return ErrInvalidTransition
	}

	o.epoch++
	ep := o.epoch
	o.teardownLocked()
	o.gatewayErr = nil
	o.err = nil
	o.message = ""
	o.method = method

	if method == order.PaymentMethodBranchPayment {
		o.setStepLocked(StepBranchReady)
		o.publishLocked()
		o.mu.Unlock()
		return nil
	}

	o.setStepLocked(StepCardInitializing)
	o.publishLocked()
	o.mu.Unlock()
	return o.prepareCard(ctx, ep)
}

// RetryGatewayInit starts the card path over after a gateway failure
func (o *Orchestrator) RetryGatewayInit(ctx context.Context) error {
	o.mu.Lock()
	if o.method != order.PaymentMethodCreditCard || o.step != StepFailed {
		o.mu.Unlock()
		return ErrInvalidTransition
	}
	o.epoch++
	ep := o.epoch
	o.teardownLocked()
	o.gatewayErr = nil
	o.err = nil
	o.message = ""
	o.setStepLocked(StepCardInitializing)
	o.publishLocked()
	o.mu.Unlock()

	return o.prepareCard(ctx, ep)
}

// CollectCard records the tokenized card the shopper entered
func (o *Orchestrator) CollectCard(paymentMethodID string) error {
	o.mu.Lock()
	el := o.element
	ok := o.step == StepCardReady && el != nil
	o.mu.Unlock()
	if !ok {
		return ErrNotReady
	}
	return el.Collect(paymentMethodID)
}

// PlaceOrder finalizes the checkout on the selected path. On the card path the
// order is created first and then paid; a created order whose payment did not
// complete is returned together with the error and stays pending.
func (o *Orchestrator) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*order.Order, error) {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return nil, ErrSubmitting
	}
	if o.pending != nil {
		o.mu.Unlock()
		return o.RetryConfirmation(ctx)
	}
	if !o.canPlaceLocked() {
		o.mu.Unlock()
		return nil, ErrNotReady
	}

	prev := o.step
	var req order.Request
	switch o.method {
	case order.PaymentMethodCreditCard:
		if !o.element.Complete() {
			err := envelope.Validation("Please complete your card details", "card details are incomplete")
			o.err = err
			o.message = err.Message
			o.publishLocked()
			o.mu.Unlock()
			return nil, err
		}
		req = order.CreditCardRequest{
			ShippingAddress: o.shipping,
			PaymentIntentID: o.intent.ID,
			CardholderName:  in.CardholderName,
		}
		o.setStepLocked(StepConfirming)
	default:
		branch := in.PreferredBranch
		if branch == "" {
			branch = o.cfg.DefaultBranch
		}
		if branch == "" {
			err := envelope.Validation("Please choose a branch for pickup and payment", "preferredBranch is required")
			o.err = err
			o.message = err.Message
			o.publishLocked()
			o.mu.Unlock()
			return nil, err
		}
		req = order.BranchPaymentRequest{ShippingAddress: o.shipping, PreferredBranch: branch}
	}

	// a key covers exactly one request body
	if o.idemKey == "" || o.idemReq != req {
		o.idemKey = o.newKey()
		o.idemReq = req
	}
	key := o.idemKey
	elements := o.elements
	intentID := ""
	if o.intent != nil {
		intentID = o.intent.ID
	}
	o.submitting = true
	o.err = nil
	o.message = ""
	o.publishLocked()
	o.mu.Unlock()

	entry := o.log.WithFields(logrus.Fields{
		"payment_method":  req.Method(),
		"idempotency_key": key,
	})

	created, err := o.orders.CreateOrder(ctx, req, key)
	if err != nil {
		o.mu.Lock()
		o.submitting = false
		o.setStepLocked(prev)
		o.err = err
		o.message = envelope.UserMessage(err)
		o.publishLocked()
		o.mu.Unlock()

		entry.WithError(err).Warn("Order creation failed")
		return nil, err
	}
	entry.WithField("order_id", created.OrderID).Info("Order created")

	if req.Method() == order.PaymentMethodBranchPayment {
		o.complete(ctx, created)
		return created, nil
	}

	pending := &PendingOrder{Order: created, IntentID: intentID}
	o.mu.Lock()
	o.pending = pending
	o.publishLocked()
	o.mu.Unlock()

	return o.confirm(ctx, pending, elements)
}

// RetryConfirmation confirms the pending order's payment again. No new order is created.
func (o *Orchestrator) RetryConfirmation(ctx context.Context) (*order.Order, error) {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return nil, ErrSubmitting
	}
	pending := o.pending
	if pending == nil {
		o.mu.Unlock()
		return nil, ErrNoPendingOrder
	}
	elements := o.elements
	if elements == nil {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	o.submitting = true
	o.err = nil
	o.message = ""
	o.setStepLocked(StepConfirming)
	o.publishLocked()
	o.mu.Unlock()

	return o.confirm(ctx, pending, elements)
}

func (o *Orchestrator) confirm(ctx context.Context, pending *PendingOrder, elements *payment.Elements) (*order.Order, error) {
	entry := o.log.WithFields(logrus.Fields{
		"order_id":          pending.Order.OrderID,
		"payment_intent_id": pending.IntentID,
	})

	res, err := o.gateway.ConfirmPayment(ctx, elements, o.cfg.ReturnURL)
	if err == nil && res != nil && res.Err == nil && res.Succeeded() {
		entry.Info("Payment confirmed")
		o.complete(ctx, pending.Order)
		return pending.Order, nil
	}

	var message string
	switch {
	case err != nil:
		message = "Your order was created, but we could not confirm your payment. Please try again."
		entry.WithError(err).Error("Payment confirmation failed after order creation")
	case res == nil:
		message = "Your order was created, but we could not confirm your payment. Please try again."
		err = fmt.Errorf("failed to confirm payment: empty result")
		entry.Error("Payment confirmation returned no result")
	case res.Err != nil:
		message = res.Err.UserMessage()
		err = res.Err
		entry.WithFields(logrus.Fields{
			"code":         res.Err.Code,
			"decline_code": res.Err.DeclineCode,
		}).Error("Payment declined after order creation")
	default:
		status := payment.IntentStatus("")
		if res.Intent != nil {
			status = res.Intent.Status
		}
		message = payment.ResultMessage(status).Message
		err = fmt.Errorf("%w: %s", ErrPaymentIncomplete, status)
		entry.WithField("status", status).Warn("Payment not completed")
	}

	o.mu.Lock()
	o.submitting = false
	o.setStepLocked(StepCardReady)
	o.err = err
	o.message = message
	o.publishLocked()
	o.mu.Unlock()

	return pending.Order, err
}

// complete enters order_created, hands off to navigation and refreshes the
// cart the backend emptied
func (o *Orchestrator) complete(ctx context.Context, created *order.Order) {
	o.mu.Lock()
	o.epoch++
	o.teardownLocked()
	o.submitting = false
	o.pending = nil
	o.order = created
	o.err = nil
	o.message = payment.ResultMessage(payment.IntentStatusSucceeded).Message
	if o.method == order.PaymentMethodBranchPayment {
		o.message = "Your order has been placed. Please pay at the branch when you pick it up."
	}
	o.setStepLocked(StepOrderCreated)
	o.publishLocked()
	o.mu.Unlock()

	if created.OrderID != "" {
		o.nav.ToOrderConfirmation(created.OrderID)
	} else {
		o.log.Warn("Order created without an id, showing order list")
		o.nav.ToOrderList()
	}

	if err := o.cart.Load(ctx); err != nil {
		o.log.WithError(err).Warn("Failed to refresh cart after order creation")
	}
}

// prepareCard initializes the gateway when needed, then binds a fresh intent
// and payment element to epoch ep
func (o *Orchestrator) prepareCard(ctx context.Context, ep uint64) error {
	if !o.begin(ep) {
		return nil
	}

	if !o.gateway.Ready() {
		if err := o.gateway.Initialize(ctx); err != nil {
			o.fail(ep, err)
			return err
		}
	}

	o.mu.Lock()
	if o.epoch != ep {
		o.mu.Unlock()
		return nil
	}
	if !o.shippingValid {
		o.initializing = false
		o.setStepLocked(StepCardReady)
		o.publishLocked()
		o.mu.Unlock()
		return nil
	}
	region := o.shipping.Region()
	o.mu.Unlock()

	intent, err := o.gateway.CreatePaymentIntent(ctx, region.State, region.PostalCode)
	if err != nil {
		o.fail(ep, err)
		return err
	}

	o.mu.Lock()
	_, stale := o.discarded[intent.ID]
	o.mu.Unlock()
	if stale {
		err := fmt.Errorf("%w: %s", ErrStaleIntent, intent.ID)
		o.fail(ep, err)
		return err
	}

	elements, err := o.gateway.CreateElements(intent.ClientSecret)
	if err != nil {
		o.discard(intent, nil)
		o.fail(ep, err)
		return err
	}
	element, err := o.gateway.CreatePaymentElement(elements)
	if err == nil {
		err = element.Mount(PaymentElementTarget)
	}
	if err != nil {
		o.discard(intent, elements)
		o.fail(ep, err)
		return err
	}

	o.mu.Lock()
	if o.epoch != ep {
		o.mu.Unlock()
		o.discard(intent, elements)
		o.log.WithField("payment_intent_id", intent.ID).Debug("Dropped payment intent from superseded selection")
		return nil
	}
	o.intent = intent
	o.elements = elements
	o.element = element
	o.initializing = false
	o.setStepLocked(StepCardReady)
	o.publishLocked()
	o.mu.Unlock()
	return nil
}

// begin marks the card surface as initializing for ep
func (o *Orchestrator) begin(ep uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != ep {
		return false
	}
	o.initializing = true
	o.publishLocked()
	return true
}

// fail records a gateway failure for ep unless it was superseded
func (o *Orchestrator) fail(ep uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != ep {
		return
	}
	o.initializing = false
	o.gatewayErr = err
	o.message = envelope.UserMessage(err)
	o.setStepLocked(StepFailed)
	o.publishLocked()
	o.log.WithError(err).Warn("Card payment setup failed")
}

// discard disposes an intent that never became current
func (o *Orchestrator) discard(intent *payment.PaymentIntent, elements *payment.Elements) {
	if elements != nil {
		elements.Destroy()
	}
	o.mu.Lock()
	o.discarded[intent.ID] = struct{}{}
	o.mu.Unlock()
}

// teardownLocked disposes the payment surface. Discarded intents are never reused.
func (o *Orchestrator) teardownLocked() {
	if o.intent != nil {
		o.discarded[o.intent.ID] = struct{}{}
		o.log.WithField("payment_intent_id", o.intent.ID).Debug("Payment intent discarded")
	}
	if o.elements != nil {
		o.elements.Destroy()
	}
	o.intent = nil
	o.elements = nil
	o.element = nil
	o.initializing = false
	o.idemKey = ""
	o.idemReq = nil
}

func (o *Orchestrator) cardPathLocked() bool {
	if o.method != order.PaymentMethodCreditCard {
		return false
	}
	switch o.step {
	case StepCardInitializing, StepCardReady, StepFailed:
		return true
	}
	return false
}

func (o *Orchestrator) canPlaceLocked() bool {
	if !o.shippingValid || o.submitting {
		return false
	}
	if o.pending != nil {
		return o.elements != nil
	}

	switch o.method {
	case order.PaymentMethodCreditCard:
		if o.step != StepCardReady {
			return false
		}
		if !o.gateway.Ready() || o.initializing || o.gatewayErr != nil || o.intent == nil {
			return false
		}
	case order.PaymentMethodBranchPayment:
		if o.step != StepBranchReady {
			return false
		}
	default:
		return false
	}

	return !o.cart.Snapshot().Cart.IsEmpty()
}

func (o *Orchestrator) pricingLocked() Pricing {
	snap := o.cart.Snapshot()
	if snap.Cart == nil {
		return Pricing{Method: o.method}
	}
	return o.fees.Price(snap.Cart.Summary, o.method)
}

func (o *Orchestrator) setStepLocked(to Step) {
	from := o.step
	if from == to {
		return
	}
	o.step = to
	o.metrics.Transition(string(from), string(to))
	o.log.WithFields(logrus.Fields{
		"from":           from,
		"to":             to,
		"payment_method": o.method,
	}).Info("Checkout step changed")
}

func (o *Orchestrator) publishLocked() {
	o.hub.Publish(o.viewLocked())
}

func (o *Orchestrator) viewLocked() View {
	fieldErrors := make(map[string]string, len(o.fieldErrors))
	for k, v := range o.fieldErrors {
		fieldErrors[k] = v
	}
	var pending *PendingOrder
	if o.pending != nil {
		p := *o.pending
		pending = &p
	}

	return View{
		Step:                o.step,
		Method:              o.method,
		Shipping:            o.shipping,
		ShippingValid:       o.shippingValid,
		FieldErrors:         fieldErrors,
		Intent:              o.intent,
		GatewayInitializing: o.initializing,
		GatewayError:        o.gatewayErr,
		Submitting:          o.submitting,
		Err:                 o.err,
		Message:             o.message,
		Pricing:             o.pricingLocked(),
		Order:               o.order,
		Pending:             pending,
		CanPlaceOrder:       o.canPlaceLocked(),
	}
}
