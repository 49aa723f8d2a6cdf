// internal/domain/order/service.go
package order

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/your-org/photo-print-storefront/internal/pkg/apiclient"
	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
	"github.com/your-org/photo-print-storefront/internal/pkg/logger"
)

// Backend creates orders on the storefront REST API
type Backend interface {
	CreateOrder(ctx context.Context, req Request, idempotencyKey string) (*Order, error)
}

// API implements Backend over HTTP
type API struct {
	client *apiclient.Client
}

func NewAPI(client *apiclient.Client) *API {
	return &API{client: client}
}

func (a *API) CreateOrder(ctx context.Context, req Request, idempotencyKey string) (*Order, error) {
	return apiclient.Do[Order](ctx, a.client, http.MethodPost, "/orders", req,
		apiclient.WithIdempotencyKey(idempotencyKey))
}

// Service validates order requests before they reach the backend
type Service struct {
	backend Backend
	log     logrus.FieldLogger
}

// NewService creates a new order service
func NewService(backend Backend, log logrus.FieldLogger) *Service {
	return &Service{
		backend: backend,
		log:     logger.Component(log, "order"),
	}
}

// CreateOrder validates req and creates the order. idempotencyKey lets the
// backend collapse retries of the same checkout attempt into one order.
func (s *Service) CreateOrder(ctx context.Context, req Request, idempotencyKey string) (*Order, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"payment_method":  req.Method(),
		"idempotency_key": idempotencyKey,
	})

	o, err := s.backend.CreateOrder(ctx, req, idempotencyKey)
	if err != nil {
		entry.WithError(err).Warn("Order creation failed")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if o == nil {
		return nil, &envelope.Error{Kind: envelope.KindRejected, Message: "order creation returned no order"}
	}

	entry.WithFields(logrus.Fields{
		"order_id":     o.OrderID,
		"order_number": o.OrderNumber,
	}).Info("Order created")
	return o, nil
}

// ValidateRequest checks the parts of an order body the client is responsible for
func ValidateRequest(req Request) error {
	if req == nil {
		return envelope.Validation("Order request is required")
	}
	if err := req.Shipping().Validate(); err != nil {
		return err
	}

	switch r := req.(type) {
	case CreditCardRequest:
		if strings.TrimSpace(r.PaymentIntentID) == "" {
			return envelope.Validation("Payment is not ready yet", "payment intent is required for card orders")
		}
	case BranchPaymentRequest:
		if strings.TrimSpace(r.PreferredBranch) == "" {
			return envelope.Validation("Please choose a branch", "preferredBranch is required")
		}
	default:
		return envelope.Validation("Unsupported payment method", fmt.Sprintf("unknown request type %T", req))
	}
	return nil
}
