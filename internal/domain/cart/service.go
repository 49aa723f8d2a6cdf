// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/pkg/broadcast"
	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
	"github.com/your-org/photo-print-storefront/internal/pkg/logger"
	"github.com/your-org/photo-print-storefront/internal/pkg/metrics"
	"github.com/your-org/photo-print-storefront/internal/pkg/optimistic"
)

// DefaultTaxRate applies when the configuration carries none
var DefaultTaxRate = decimal.RequireFromString("0.08")

// ErrCacheMiss is returned by a Cache that holds no snapshot for the owner
var ErrCacheMiss = errors.New("cart cache miss")

// Cache keeps the last server-confirmed cart per owner
type Cache interface {
	Get(ctx context.Context, owner string) (*Cart, error)
	Set(ctx context.Context, owner string, cart *Cart) error
	Delete(ctx context.Context, owner string) error
}

// Store is the single source of truth for cart contents
type Store struct {
	backend Backend
	cfg     config.CartConfig
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	cache   Cache
	owner   func() string

	// mu guards state; every change is published while it is held so
	// subscribers observe changes in the order they were made
	mu    sync.Mutex
	state Snapshot
	hub   *broadcast.Hub[Snapshot]

	// opMu serializes mutations so optimistic edits never interleave
	opMu sync.Mutex

	initOnce    sync.Once
	initErr     error
	readyOnce   sync.Once
	initialized atomic.Bool
	ready       chan struct{}
}

// Option customizes a Store
type Option func(*Store)

// WithCache enables the snapshot cache. owner names the cache entry, usually the session subject.
func WithCache(cache Cache, owner func() string) Option {
	return func(s *Store) {
		s.cache = cache
		s.owner = owner
	}
}

// WithMetrics records retries and rollbacks
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a cart store
func NewStore(backend Backend, cfg config.CartConfig, log logrus.FieldLogger, opts ...Option) *Store {
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = DefaultTaxRate
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	s := &Store{
		backend: backend,
		cfg:     cfg,
		log:     logger.Component(log, "cart"),
		hub:     broadcast.NewHub[Snapshot](),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cart returns the current cart, nil when empty or not loaded
func (s *Store) Cart() *Cart {
	return s.Snapshot().Cart
}

// TaxRate returns the rate used for local recomputation
func (s *Store) TaxRate() decimal.Decimal {
	return s.cfg.TaxRate
}

// Subscribe streams the current snapshot followed by every later one, in order
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.Subscribe(s.state)
}

// Close ends all subscriptions
func (s *Store) Close() {
	s.hub.Close()
}

// Initialize performs the first load at most once. Concurrent callers wait for
// the same load and receive its error.
func (s *Store) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.Load(ctx)
	})
	return s.initErr
}

// markReady resolves readiness after the first load attempt, whichever path ran it
func (s *Store) markReady() {
	s.readyOnce.Do(func() {
		s.initialized.Store(true)
		close(s.ready)
	})
}

// Initialized reports whether the first load has resolved
func (s *Store) Initialized() bool {
	return s.initialized.Load()
}

// Ready is closed once the first load has resolved, successfully or not
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the first load has resolved or ctx is done
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fetches the cart. Transient failures are retried; once retries run out the
// in-memory cart is kept and the snapshot is marked degraded. 401/403 drops the cart.
// The first Load to return resolves Ready, successful or not.
func (s *Store) Load(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	defer s.markReady()

	s.update(func(st *Snapshot) { st.Loading = true })

	c, err := s.fetchWithRetry(ctx)
	switch {
	case err == nil:
		c = normalize(c)
		s.update(func(st *Snapshot) {
			*st = Snapshot{Cart: c, Ready: true}
		})
		s.writeCache(ctx, c)
		return nil

	case envelope.IsUnauthorized(err):
		s.log.WithError(err).Warn("Cart session rejected, clearing cart")
		s.update(func(st *Snapshot) {
			*st = Snapshot{Ready: true, Err: err}
		})
		s.dropCache(ctx)
		return err

	default:
		s.log.WithError(err).Warn("Cart load degraded, keeping current cart")
		var cached *Cart
		if s.Cart() == nil {
			cached = s.readCache(ctx)
		}
		s.update(func(st *Snapshot) {
			st.Loading = false
			st.Ready = true
			st.Degraded = true
			st.Err = err
			if st.Cart == nil && cached != nil {
				st.Cart = cached
				st.Stale = true
			}
		})
		return err
	}
}

func (s *Store) fetchWithRetry(ctx context.Context) (*Cart, error) {
	for attempt := 0; ; attempt++ {
		c, err := s.backend.GetCart(ctx)
		if err == nil || !envelope.IsTransient(err) || attempt >= s.cfg.MaxRetries {
			return c, err
		}

		delay := s.cfg.RetryBaseDelay * time.Duration(attempt+1)
		s.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
		}).WithError(err).Warn("Cart load failed, retrying")
		s.metrics.CartRetry()

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// AddItem validates locally, then replaces the cart with the server's answer
func (s *Store) AddItem(ctx context.Context, photoID string, selections []SelectionInput) (*Cart, error) {
	if strings.TrimSpace(photoID) == "" {
		return nil, envelope.Validation("Photo is required", "photoId must not be empty")
	}
	if err := validateSelections(selections); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	c, err := s.backend.AddItem(ctx, photoID, selections)
	if err != nil {
		s.log.WithError(err).WithField("photo_id", photoID).Warn("Failed to add item to cart")
		return nil, err
	}
	return s.replace(ctx, c), nil
}

// UpdateItem replaces an item's selections and waits for the server's cart
func (s *Store) UpdateItem(ctx context.Context, itemID string, selections []SelectionInput) (*Cart, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, envelope.Validation("Cart item is required", "itemId must not be empty")
	}
	if err := validateSelections(selections); err != nil {
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	c, err := s.backend.UpdateItem(ctx, itemID, selections)
	if err != nil {
		s.log.WithError(err).WithField("item_id", itemID).Warn("Failed to update cart item")
		return nil, err
	}
	return s.replace(ctx, c), nil
}

// RemoveItem removes the item locally before asking the server. A missing item
// counts as removed; any other failure restores the cart as it was.
func (s *Store) RemoveItem(ctx context.Context, itemID string) error {
	if strings.TrimSpace(itemID) == "" {
		return envelope.Validation("Cart item is required", "itemId must not be empty")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	_, outcome, err := optimistic.Run(ctx, cartCell{s}, optimistic.Op[*Cart, *Cart]{
		Apply: func(current *Cart) *Cart {
			if _, ok := current.Item(itemID); !ok {
				return current
			}
			return current.without(itemID, s.cfg.TaxRate)
		},
		Confirm: func(ctx context.Context) (*Cart, error) {
			return s.backend.RemoveItem(ctx, itemID)
		},
		Tolerate: envelope.IsNotFound,
	})

	entry := s.log.WithField("item_id", itemID)
	switch outcome {
	case optimistic.RolledBack:
		entry.WithError(err).Warn("Cart item removal refused, restored previous cart")
		s.metrics.CartRollback()
		return err
	case optimistic.Tolerated:
		entry.Debug("Cart item already removed")
	}
	s.writeCache(ctx, s.Cart())
	return nil
}

// Clear empties the cart immediately. A failed server delete is logged and
// returned but never rolled back.
func (s *Store) Clear(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.update(func(st *Snapshot) {
		st.Cart = nil
		st.Stale = false
	})
	s.dropCache(ctx)

	if err := s.backend.Clear(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to clear cart on server")
		return err
	}
	s.update(func(st *Snapshot) {
		st.Degraded = false
		st.Err = nil
	})
	return nil
}

// CalculateTotal asks the backend tax engine for the totals of a shipping region
func (s *Store) CalculateTotal(ctx context.Context, subtotal decimal.Decimal, state, postalCode string) (*TotalCalculation, error) {
	if !subtotal.IsPositive() {
		return nil, envelope.Validation("Subtotal must be greater than zero")
	}
	if strings.TrimSpace(state) == "" {
		return nil, envelope.Validation("State is required")
	}
	return s.backend.CalculateTotal(ctx, subtotal, state, postalCode)
}

func (s *Store) replace(ctx context.Context, c *Cart) *Cart {
	c = normalize(c)
	s.update(func(st *Snapshot) {
		st.Cart = c
		st.Ready = true
		st.Stale = false
		st.Degraded = false
		st.Err = nil
	})
	s.writeCache(ctx, c)
	return c
}

func (s *Store) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	fn(&next)
	s.state = next
	s.hub.Publish(next)
}

func (s *Store) cacheOwner() string {
	if s.owner != nil {
		if owner := s.owner(); owner != "" {
			return owner
		}
	}
	return "anonymous"
}

func (s *Store) readCache(ctx context.Context) *Cart {
	if s.cache == nil {
		return nil
	}
	c, err := s.cache.Get(ctx, s.cacheOwner())
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.log.WithError(err).Warn("Failed to read cart cache")
		}
		return nil
	}
	return normalize(c)
}

func (s *Store) writeCache(ctx context.Context, c *Cart) {
	if s.cache == nil {
		return
	}
	if c == nil {
		s.dropCache(ctx)
		return
	}
	if err := s.cache.Set(ctx, s.cacheOwner(), c); err != nil {
		s.log.WithError(err).Warn("Failed to write cart cache")
	}
}

func (s *Store) dropCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheOwner()); err != nil {
		s.log.WithError(err).Warn("Failed to drop cart cache")
	}
}

// cartCell exposes the cart of a Store to the optimistic helper
type cartCell struct {
	s *Store
}

func (c cartCell) Load() *Cart {
	return c.s.Cart()
}

func (c cartCell) Store(cart *Cart) {
	c.s.update(func(st *Snapshot) { st.Cart = cart })
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
