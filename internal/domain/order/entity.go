// internal/domain/order/entity.go
package order

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusPaymentProcessing OrderStatus = "payment_processing"
	OrderStatusConfirmed         OrderStatus = "confirmed"
	OrderStatusProcessing        OrderStatus = "processing"
	OrderStatusShipped           OrderStatus = "shipped"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusCancelled         OrderStatus = "cancelled"
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// PaymentMethod selects the fulfillment path of an order
type PaymentMethod string

const (
	PaymentMethodCreditCard    PaymentMethod = "credit_card"
	PaymentMethodBranchPayment PaymentMethod = "branch_payment"
)

// Order is what the backend returns after creation. It is never modified client-side.
type Order struct {
	OrderID         string          `json:"orderId"`
	OrderNumber     string          `json:"orderNumber"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	PaymentIntentID string          `json:"paymentIntentId,omitempty"`
	ClientSecret    string          `json:"clientSecret,omitempty"`
	RequiresAction  bool            `json:"requiresAction,omitempty"`
}

// IsPaid reports whether the backend already considers the order paid
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending ||
		o.Status == OrderStatusPaymentProcessing ||
		o.Status == OrderStatusConfirmed
}

// ShippingAddress is the delivery address captured at checkout
type ShippingAddress struct {
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,phone"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=255"`
	AddressLine2 string `json:"addressLine2,omitempty" validate:"max=255"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,state_code"`
	PostalCode   string `json:"postalCode" validate:"required,postal_code"`
	Country      string `json:"country,omitempty" validate:"omitempty,len=2"`
}

// Region returns the part of the address that drives tax
func (a ShippingAddress) Region() Region {
	return Region{State: a.State, PostalCode: a.PostalCode}
}

// Region is the tax jurisdiction of a shipping address
type Region struct {
	State      string
	PostalCode string
}

// Request is an order creation body. It is either a CreditCardRequest or a
// BranchPaymentRequest.
type Request interface {
	Method() PaymentMethod
	Shipping() ShippingAddress
	isRequest()
}

// CreditCardRequest binds the order to a payment intent. The intent id travels in
// encryptedCardNumber; raw card data never reaches the backend.
type CreditCardRequest struct {
	ShippingAddress ShippingAddress
	PaymentIntentID string
	CardholderName  string
}

// BranchPaymentRequest creates an order paid in person at a branch
type BranchPaymentRequest struct {
	ShippingAddress ShippingAddress
	PreferredBranch string
}

func (CreditCardRequest) Method() PaymentMethod { return PaymentMethodCreditCard }

func (r CreditCardRequest) Shipping() ShippingAddress { return r.ShippingAddress }

func (CreditCardRequest) isRequest() {}

func (BranchPaymentRequest) Method() PaymentMethod { return PaymentMethodBranchPayment }

func (r BranchPaymentRequest) Shipping() ShippingAddress { return r.ShippingAddress }

func (BranchPaymentRequest) isRequest() {}

type creditCardBlock struct {
	EncryptedCardNumber string `json:"encryptedCardNumber"`
	CardholderName      string `json:"cardholderName,omitempty"`
}

type branchPaymentBlock struct {
	PreferredBranch string `json:"preferredBranch"`
}

func (r CreditCardRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ShippingAddress ShippingAddress `json:"shippingAddress"`
		PaymentMethod   PaymentMethod   `json:"paymentMethod"`
		CreditCard      creditCardBlock `json:"creditCard"`
	}{
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   PaymentMethodCreditCard,
		CreditCard: creditCardBlock{
			EncryptedCardNumber: r.PaymentIntentID,
			CardholderName:      r.CardholderName,
		},
	})
}

func (r BranchPaymentRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ShippingAddress ShippingAddress    `json:"shippingAddress"`
		PaymentMethod   PaymentMethod      `json:"paymentMethod"`
		BranchPayment   branchPaymentBlock `json:"branchPayment"`
	}{
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   PaymentMethodBranchPayment,
		BranchPayment:   branchPaymentBlock{PreferredBranch: r.PreferredBranch},
	})
}
