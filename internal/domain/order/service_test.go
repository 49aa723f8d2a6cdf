package order

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/pkg/apiclient"
	"github.com/your-org/photo-print-storefront/internal/pkg/backendtest"
	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
)

func validAddress() ShippingAddress {
	return ShippingAddress{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		Phone:        "617-555-0100",
		AddressLine1: "1 Main St",
		City:         "Boston",
		State:        "MA",
		PostalCode:   "02101",
		Country:      "US",
	}
}

func TestShippingAddressValidate(t *testing.T) {
	assert.NoError(t, validAddress().Validate())

	zipPlus4 := validAddress()
	zipPlus4.PostalCode = "02101-1234"
	assert.NoError(t, zipPlus4.Validate())

	intl := validAddress()
	intl.Phone = "+1 617 555 0100"
	assert.NoError(t, intl.Validate())

	cases := map[string]func(*ShippingAddress){
		"missing first name": func(a *ShippingAddress) { a.FirstName = "" },
		"bad email":          func(a *ShippingAddress) { a.Email = "not-an-email" },
		"short postal code":  func(a *ShippingAddress) { a.PostalCode = "0210" },
		"letters in postal":  func(a *ShippingAddress) { a.PostalCode = "0210A" },
		"short phone":        func(a *ShippingAddress) { a.Phone = "555-01" },
		"letters in phone":   func(a *ShippingAddress) { a.Phone = "call me maybe" },
		"long state":         func(a *ShippingAddress) { a.State = "Mass" },
		"missing city":       func(a *ShippingAddress) { a.City = "" },
		"bad country":        func(a *ShippingAddress) { a.Country = "USA" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := validAddress()
			mutate(&a)
			err := a.Validate()
			assert.True(t, envelope.IsValidation(err), "got %v", err)
		})
	}
}

func TestShippingAddressFieldErrors(t *testing.T) {
	a := validAddress()
	a.PostalCode = "abc"
	a.Phone = ""

	errs := a.FieldErrors()
	assert.Len(t, errs, 2)
	assert.Contains(t, errs["postalCode"], "ZIP")
	assert.Equal(t, "phone is required", errs["phone"])
	assert.Nil(t, validAddress().FieldErrors())
}

func TestRequestJSON(t *testing.T) {
	card, err := json.Marshal(CreditCardRequest{
		ShippingAddress: validAddress(),
		PaymentIntentID: "pi_123",
		CardholderName:  "Ada Lovelace",
	})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(card, &body))
	assert.Equal(t, "credit_card", body["paymentMethod"])
	assert.Equal(t, "pi_123", body["creditCard"].(map[string]any)["encryptedCardNumber"])
	assert.NotContains(t, body, "branchPayment")
	assert.Equal(t, "02101", body["shippingAddress"].(map[string]any)["postalCode"])

	branch, err := json.Marshal(BranchPaymentRequest{ShippingAddress: validAddress(), PreferredBranch: "downtown"})
	require.NoError(t, err)
	body = nil
	require.NoError(t, json.Unmarshal(branch, &body))
	assert.Equal(t, "branch_payment", body["paymentMethod"])
	assert.Equal(t, "downtown", body["branchPayment"].(map[string]any)["preferredBranch"])
	assert.NotContains(t, body, "creditCard")
}

type stubBackend struct {
	calls int
	last  Request
	resp  *Order
	err   error
}

func (b *stubBackend) CreateOrder(ctx context.Context, req Request, key string) (*Order, error) {
	b.calls++
	b.last = req
	return b.resp, b.err
}

func TestCreateOrderValidatesFirst(t *testing.T) {
	backend := &stubBackend{resp: &Order{OrderID: "ord_1"}}
	svc := NewService(backend, nil)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreditCardRequest{ShippingAddress: validAddress()}, "k")
	assert.True(t, envelope.IsValidation(err))

	_, err = svc.CreateOrder(ctx, BranchPaymentRequest{ShippingAddress: validAddress()}, "k")
	assert.True(t, envelope.IsValidation(err))

	bad := validAddress()
	bad.PostalCode = "1"
	_, err = svc.CreateOrder(ctx, BranchPaymentRequest{ShippingAddress: bad, PreferredBranch: "downtown"}, "k")
	assert.True(t, envelope.IsValidation(err))

	_, err = svc.CreateOrder(ctx, nil, "k")
	assert.True(t, envelope.IsValidation(err))

	assert.Equal(t, 0, backend.calls)
}

func TestCreateOrderWrapsBackendError(t *testing.T) {
	backend := &stubBackend{err: &envelope.Error{Kind: envelope.KindTransient, Status: 503}}
	svc := NewService(backend, nil)

	_, err := svc.CreateOrder(context.Background(), BranchPaymentRequest{ShippingAddress: validAddress(), PreferredBranch: "downtown"}, "k")
	require.Error(t, err)
	assert.True(t, envelope.IsTransient(err))
	assert.Contains(t, err.Error(), "failed to create order")
}

func TestCreateOrderAgainstBackend(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()
	backend.Seed("photo-1", "4x6", 2)

	log, hook := test.NewNullLogger()
	client := apiclient.New(config.APIConfig{BaseURL: backend.URL, Timeout: 2 * time.Second}, config.BreakerConfig{}, nil, log)
	svc := NewService(NewAPI(client), log)

	o, err := svc.CreateOrder(context.Background(), CreditCardRequest{
		ShippingAddress: validAddress(),
		PaymentIntentID: "pi_test_001",
		CardholderName:  "Ada Lovelace",
	}, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, "ord_1", o.OrderID)
	assert.Equal(t, "pi_test_001", o.PaymentIntentID)
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.True(t, o.CanBeCancelled())
	assert.False(t, o.IsPaid())
	assert.True(t, o.TotalAmount.Equal(o.TotalAmount.Round(2)))

	assert.Equal(t, []string{"attempt-1"}, backend.IdempotencyKeys())
	orders := backend.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "credit_card", orders[0]["paymentMethod"])
	assert.Equal(t, "Order created", hook.LastEntry().Message)

	backend.Fail("POST /orders", http.StatusUnprocessableEntity)
	_, err = svc.CreateOrder(context.Background(), BranchPaymentRequest{ShippingAddress: validAddress(), PreferredBranch: "downtown"}, "attempt-2")
	assert.True(t, envelope.IsKind(err, envelope.KindRejected))
}
