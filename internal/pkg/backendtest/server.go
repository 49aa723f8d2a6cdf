// Package backendtest runs an in-process storefront backend for client tests.
package backendtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Selection struct {
	SizeCode  string          `json:"sizeCode"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Item struct {
	ID         string          `json:"id"`
	PhotoID    string          `json:"photoId"`
	PhotoURL   string          `json:"photoUrl,omitempty"`
	Selections []Selection     `json:"printSelections"`
	PhotoTotal decimal.Decimal `json:"photoTotal"`
}

type Summary struct {
	TotalPhotos int             `json:"totalPhotos"`
	TotalPrints int             `json:"totalPrints"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

type Cart struct {
	Items   []Item  `json:"items"`
	Summary Summary `json:"summary"`
}

// Server is a programmable fake of the REST backend
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	taxRate    decimal.Decimal
	items      []Item
	nextItem   int
	intents    int
	orders     []map[string]any
	failures   map[string][]int
	calls      map[string]int
	idemKeys   []string
	token      string
	stripeConf map[string]any
}

// Option configures a fake backend
type Option func(*options)

type options struct {
	log logrus.FieldLogger
}

// WithLogger logs every request the fake backend serves
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// New starts a fake backend. Call Close when done.
func New(opts ...Option) *Server {
	gin.SetMode(gin.TestMode)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		prices: map[string]decimal.Decimal{
			"4x6":  decimal.RequireFromString("0.29"),
			"5x7":  decimal.RequireFromString("0.99"),
			"8x10": decimal.RequireFromString("3.99"),
		},
		taxRate:  decimal.RequireFromString("0.08"),
		failures: map[string][]int{},
		calls:    map[string]int{},
		stripeConf: map[string]any{
			"publishableKey": "pk_test_fake",
			"currency":       "usd",
			"country":        "US",
			"returnUrl":      "http://localhost:3000/checkout/complete",
			"cancelUrl":      "http://localhost:3000/cart",
			"elementsOptions": map[string]any{
				"layout": "tabs",
			},
			"appearance": map[string]any{
				"theme": "stripe",
			},
		},
	}

	router := gin.New()
	if o.log != nil {
		router.Use(requestLogger(o.log))
	}
	router.Use(s.middleware)
	router.GET("/cart", s.getCart)
	router.POST("/cart/items", s.addItem)
	router.PUT("/cart/items/:id", s.updateItem)
	router.DELETE("/cart/items/:id", s.removeItem)
	router.DELETE("/cart", s.clearCart)
	router.POST("/cart/calculate-total", s.calculateTotal)
	router.GET("/stripe/config", s.stripeConfig)
	router.POST("/orders/payment-intent", s.createIntent)
	router.POST("/orders", s.createOrder)

	s.Server = httptest.NewServer(router)
	return s
}

// RequireToken makes every request without this bearer token fail with 401
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Fail makes the next len(statuses) calls to route answer with those statuses.
// route is "<METHOD> <gin path>", e.g. "DELETE /cart/items/:id".
func (s *Server) Fail(route string, statuses ...int) {
	s.mu.Lock()
	s.failures[route] = append(s.failures[route], statuses...)
	s.mu.Unlock()
}

// Calls returns how many requests hit route
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Orders returns the raw order bodies received
func (s *Server) Orders() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.orders...)
}

// IdempotencyKeys returns the keys seen on order creation
func (s *Server) IdempotencyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.idemKeys...)
}

// SetStripeConfig overrides one field of the provider configuration
func (s *Server) SetStripeConfig(key string, value any) {
	s.mu.Lock()
	s.stripeConf[key] = value
	s.mu.Unlock()
}

// Seed places an item in the cart directly
func (s *Server) Seed(photoID, sizeCode string, quantity int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.buildItemLocked(photoID, []selectionInput{{SizeCode: sizeCode, Quantity: quantity}})
	s.items = append(s.items, item)
	return item.ID
}

func (s *Server) middleware(c *gin.Context) {
	route := c.Request.Method + " " + c.FullPath()

	s.mu.Lock()
	s.calls[route]++
	token := s.token
	var status int
	if queue := s.failures[route]; len(queue) > 0 {
		status = queue[0]
		s.failures[route] = queue[1:]
	}
	s.mu.Unlock()

	if token != "" && c.GetHeader("Authorization") != "Bearer "+token {
		fail(c, http.StatusUnauthorized, "authentication required")
		return
	}
	if status != 0 {
		fail(c, status, fmt.Sprintf("injected failure %d", status))
		return
	}
	c.Next()
}

type selectionInput struct {
	SizeCode string `json:"sizeCode"`
	Quantity int    `json:"quantity"`
}

func (s *Server) getCart(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok(c, s.cartLocked(), "Cart retrieved successfully")
}

func (s *Server) addItem(c *gin.Context) {
	var req struct {
		PhotoID    string           `json:"photoId"`
		Selections []selectionInput `json:"printSelections"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PhotoID == "" || len(req.Selections) == 0 {
		fail(c, http.StatusBadRequest, "Invalid request data")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, s.buildItemLocked(req.PhotoID, req.Selections))
	ok(c, s.cartLocked(), "Item added to cart successfully")
}

func (s *Server) updateItem(c *gin.Context) {
	var req struct {
		Selections []selectionInput `json:"printSelections"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Selections) == 0 {
		fail(c, http.StatusBadRequest, "Invalid request data")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == c.Param("id") {
			updated := s.buildItemLocked(s.items[i].PhotoID, req.Selections)
			updated.ID = s.items[i].ID
			s.items[i] = updated
			ok(c, s.cartLocked(), "Cart item updated successfully")
			return
		}
	}
	fail(c, http.StatusNotFound, "Cart item not found")
}

func (s *Server) removeItem(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == c.Param("id") {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			ok(c, s.cartLocked(), "Item removed from cart")
			return
		}
	}
	fail(c, http.StatusNotFound, "Cart item not found")
}

func (s *Server) clearCart(c *gin.Context) {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": nil, "message": "Cart cleared", "errors": []string{}, "timestamp": time.Now().UTC()})
}

func (s *Server) calculateTotal(c *gin.Context) {
	var req struct {
		Subtotal   decimal.Decimal `json:"subtotal"`
		State      string          `json:"state"`
		PostalCode string          `json:"postalCode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Subtotal.IsPositive() || req.State == "" {
		fail(c, http.StatusBadRequest, "Invalid request data")
		return
	}
	tax := req.Subtotal.Mul(s.taxRate).Round(2)
	ok(c, gin.H{
		"subtotal": req.Subtotal,
		"tax":      tax,
		"total":    req.Subtotal.Add(tax),
		"taxRate":  s.taxRate,
	}, "Total calculated")
}

func (s *Server) stripeConfig(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok(c, s.stripeConf, "Stripe configuration")
}

func (s *Server) createIntent(c *gin.Context) {
	var req struct {
		State      string `json:"state"`
		PostalCode string `json:"postalCode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.State == "" || req.PostalCode == "" {
		fail(c, http.StatusBadRequest, "Shipping region is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents++
	id := fmt.Sprintf("pi_test_%03d", s.intents)
	summary := s.cartLocked().Summary
	ok(c, gin.H{
		"paymentIntentId": id,
		"clientSecret":    id + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"amount":          summary.Total,
		"currency":        "usd",
		"status":          "requires_payment_method",
	}, "Payment intent created")
}

func (s *Server) createOrder(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request data")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, body)
	s.idemKeys = append(s.idemKeys, c.GetHeader("Idempotency-Key"))

	n := len(s.orders)
	total := s.cartLocked().Summary.Total
	resp := gin.H{
		"orderId":       fmt.Sprintf("ord_%d", n),
		"orderNumber":   fmt.Sprintf("ORD-%s-%05d", time.Now().UTC().Format("20060102"), n),
		"status":        "pending",
		"totalAmount":   total,
		"paymentStatus": "pending",
	}
	if body["paymentMethod"] == "credit_card" {
		if cc, okCard := body["creditCard"].(map[string]any); okCard {
			resp["paymentIntentId"] = cc["encryptedCardNumber"]
		}
		resp["requiresAction"] = false
	}
	s.items = nil
	ok(c, resp, "Order created successfully")
}

func (s *Server) buildItemLocked(photoID string, in []selectionInput) Item {
	s.nextItem++
	item := Item{
		ID:       fmt.Sprintf("item-%d", s.nextItem),
		PhotoID:  photoID,
		PhotoURL: "https://cdn.example.com/photos/" + photoID + ".jpg",
	}
	for _, sel := range in {
		price := s.prices[sel.SizeCode]
		line := price.Mul(decimal.NewFromInt(int64(sel.Quantity)))
		item.Selections = append(item.Selections, Selection{
			SizeCode:  sel.SizeCode,
			Quantity:  sel.Quantity,
			UnitPrice: price,
			LineTotal: line,
		})
		item.PhotoTotal = item.PhotoTotal.Add(line)
	}
	return item
}

func (s *Server) cartLocked() Cart {
	cart := Cart{Items: append([]Item{}, s.items...)}
	for _, item := range s.items {
		cart.Summary.TotalPhotos++
		for _, sel := range item.Selections {
			cart.Summary.TotalPrints += sel.Quantity
		}
		cart.Summary.Subtotal = cart.Summary.Subtotal.Add(item.PhotoTotal)
	}
	cart.Summary.Tax = cart.Summary.Subtotal.Mul(s.taxRate).Round(2)
	cart.Summary.Total = cart.Summary.Subtotal.Add(cart.Summary.Tax)
	return cart
}

func ok(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      data,
		"message":   message,
		"errors":    []string{},
		"timestamp": time.Now().UTC(),
	})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"data":      nil,
		"message":   message,
		"errors":    []string{message},
		"timestamp": time.Now().UTC(),
	})
}
