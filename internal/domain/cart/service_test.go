package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
	"github.com/your-org/photo-print-storefront/internal/pkg/metrics"
)

type stubBackend struct {
	mu sync.Mutex

	cart       *Cart
	getErrs    []error
	removeErrs []error
	clearErr   error
	gate       chan struct{}
	onRemove   func()

	getCalls    int
	addCalls    int
	updateCalls int
	removeCalls int
	clearCalls  int
	totalCalls  int
}

func (b *stubBackend) GetCart(ctx context.Context) (*Cart, error) {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getCalls++
	if len(b.getErrs) > 0 {
		err := b.getErrs[0]
		b.getErrs = b.getErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return b.cart, nil
}

func (b *stubBackend) AddItem(ctx context.Context, photoID string, selections []SelectionInput) (*Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addCalls++
	return b.cart, nil
}

func (b *stubBackend) UpdateItem(ctx context.Context, itemID string, selections []SelectionInput) (*Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateCalls++
	return b.cart, nil
}

func (b *stubBackend) RemoveItem(ctx context.Context, itemID string) (*Cart, error) {
	if b.onRemove != nil {
		b.onRemove()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeCalls++
	if len(b.removeErrs) > 0 {
		err := b.removeErrs[0]
		b.removeErrs = b.removeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (b *stubBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearCalls++
	return b.clearErr
}

func (b *stubBackend) CalculateTotal(ctx context.Context, subtotal decimal.Decimal, state, postalCode string) (*TotalCalculation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalCalls++
	tax := subtotal.Mul(DefaultTaxRate).Round(2)
	return &TotalCalculation{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax), TaxRate: DefaultTaxRate}, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*Cart
	deletes int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]*Cart{}}
}

func (c *memCache) Get(ctx context.Context, owner string) (*Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[owner]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, owner string, cart *Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[owner] = cart
	return nil
}

func (c *memCache) Delete(ctx context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.entries, owner)
	return nil
}

func statusErr(code int) error {
	return &envelope.Error{Kind: envelope.KindFromStatus(code), Status: code, Message: http.StatusText(code)}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(id, size string, qty int, unit string) CartItem {
	line := dec(unit).Mul(decimal.NewFromInt(int64(qty)))
	return CartItem{
		ID:      id,
		PhotoID: "photo-" + id,
		Selections: []PrintSelection{{
			SizeCode:  size,
			Quantity:  qty,
			UnitPrice: dec(unit),
			LineTotal: line,
		}},
		PhotoTotal: line,
	}
}

func cartOf(items ...CartItem) *Cart {
	return &Cart{Items: items, Summary: recomputeSummary(items, DefaultTaxRate)}
}

func testConfig() config.CartConfig {
	return config.CartConfig{
		TaxRate:        DefaultTaxRate,
		RetryBaseDelay: time.Millisecond,
		MaxRetries:     2,
	}
}

func newLoadedStore(t *testing.T, backend *stubBackend, opts ...Option) *Store {
	t.Helper()
	log, _ := test.NewNullLogger()
	s := NewStore(backend, testConfig(), log, opts...)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestRemoveItemConfirmedKeepsOptimisticState(t *testing.T) {
	backend := &stubBackend{cart: cartOf(item("item-1", "4x6", 2, "0.29"))}
	s := newLoadedStore(t, backend)

	var duringConfirm *Cart
	var readyDuringConfirm bool
	backend.onRemove = func() {
		snap := s.Snapshot()
		duringConfirm, readyDuringConfirm = snap.Cart, snap.Ready
	}

	require.NoError(t, s.RemoveItem(context.Background(), "item-1"))
	assert.Nil(t, duringConfirm, "removal must be visible before the network call")
	assert.True(t, readyDuringConfirm)
	assert.Nil(t, s.Cart())
	assert.True(t, s.Snapshot().Ready)
}

func TestRemoveItemNotFoundCountsAsSuccess(t *testing.T) {
	backend := &stubBackend{
		cart:       cartOf(item("item-1", "4x6", 2, "0.29")),
		removeErrs: []error{statusErr(http.StatusNotFound)},
	}
	s := newLoadedStore(t, backend)

	assert.NoError(t, s.RemoveItem(context.Background(), "item-1"))
	assert.Nil(t, s.Cart())
}

func TestRemoveItemServerErrorRestoresSnapshot(t *testing.T) {
	backend := &stubBackend{
		cart:       cartOf(item("item-1", "4x6", 2, "0.29")),
		removeErrs: []error{statusErr(http.StatusInternalServerError)},
	}
	m := metrics.New(prometheus.NewRegistry())
	s := newLoadedStore(t, backend, WithMetrics(m))
	before := s.Cart()

	err := s.RemoveItem(context.Background(), "item-1")
	require.Error(t, err)
	assert.True(t, envelope.IsTransient(err))
	assert.Same(t, before, s.Cart())
	require.Len(t, s.Cart().Items, 1)
	assert.Equal(t, 2, s.Cart().Items[0].Selections[0].Quantity)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartRollbacks))
}

func TestRemoveItemRollbackPreservesOrderAndSummary(t *testing.T) {
	backend := &stubBackend{
		cart: cartOf(
			item("a", "4x6", 3, "0.29"),
			item("b", "8x10", 1, "3.99"),
			item("c", "5x7", 2, "0.99"),
		),
		removeErrs: []error{statusErr(http.StatusConflict)},
	}
	s := newLoadedStore(t, backend)
	before := *s.Cart()

	require.Error(t, s.RemoveItem(context.Background(), "b"))
	after := s.Cart()
	assert.Equal(t, []string{"a", "b", "c"}, []string{after.Items[0].ID, after.Items[1].ID, after.Items[2].ID})
	assert.Equal(t, before.Summary, after.Summary)
}

func TestRemoveItemRecomputesSummaryLocally(t *testing.T) {
	backend := &stubBackend{cart: cartOf(
		item("a", "4x6", 7, "0.29"),
		item("b", "8x10", 3, "3.99"),
	)}
	s := newLoadedStore(t, backend)

	var during *Cart
	backend.onRemove = func() { during = s.Cart() }
	require.NoError(t, s.RemoveItem(context.Background(), "a"))

	require.NotNil(t, during)
	sum := during.Summary
	assert.Equal(t, 1, sum.TotalPhotos)
	assert.Equal(t, 3, sum.TotalPrints)
	assert.True(t, sum.Subtotal.Equal(dec("11.97")))
	assert.True(t, sum.Tax.Equal(dec("0.96")))
	expected := sum.Subtotal.Add(sum.Subtotal.Mul(DefaultTaxRate)).Round(2)
	assert.True(t, sum.Total.Equal(expected), "total %s != %s", sum.Total, expected)
}

func TestRemoveItemTwiceSucceeds(t *testing.T) {
	backend := &stubBackend{
		cart:       cartOf(item("item-1", "4x6", 2, "0.29"), item("item-2", "5x7", 1, "0.99")),
		removeErrs: []error{nil, statusErr(http.StatusNotFound)},
	}
	s := newLoadedStore(t, backend)
	ctx := context.Background()

	assert.NoError(t, s.RemoveItem(ctx, "item-1"))
	assert.NoError(t, s.RemoveItem(ctx, "item-1"))
	assert.Equal(t, 2, backend.removeCalls)
	require.Equal(t, 1, s.Cart().ItemCount())
	assert.Equal(t, "item-2", s.Cart().Items[0].ID)
}

func TestAddItemValidatesWithoutNetwork(t *testing.T) {
	backend := &stubBackend{}
	s := newLoadedStore(t, backend)
	ctx := context.Background()

	cases := map[string]struct {
		photoID    string
		selections []SelectionInput
	}{
		"empty selections": {"photo-1", []SelectionInput{}},
		"nil selections":   {"photo-1", nil},
		"blank photo":      {"  ", []SelectionInput{{SizeCode: "4x6", Quantity: 1}}},
		"zero quantity":    {"photo-1", []SelectionInput{{SizeCode: "4x6", Quantity: 0}}},
		"blank size":       {"photo-1", []SelectionInput{{SizeCode: " ", Quantity: 1}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := s.AddItem(ctx, tc.photoID, tc.selections)
			assert.Nil(t, c)
			assert.True(t, envelope.IsValidation(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, backend.addCalls)
}

func TestAddItemReplacesCartWithServerCart(t *testing.T) {
	backend := &stubBackend{}
	s := newLoadedStore(t, backend)
	assert.Nil(t, s.Cart())

	backend.cart = cartOf(item("item-1", "5x7", 4, "0.99"))
	c, err := s.AddItem(context.Background(), "photo-1", []SelectionInput{{SizeCode: "5x7", Quantity: 4}})
	require.NoError(t, err)
	assert.Same(t, backend.cart, c)
	assert.Same(t, backend.cart, s.Cart())
}

func TestUpdateItemReplacesCart(t *testing.T) {
	backend := &stubBackend{cart: cartOf(item("item-1", "4x6", 1, "0.29"))}
	s := newLoadedStore(t, backend)

	backend.cart = cartOf(item("item-1", "4x6", 5, "0.29"))
	c, err := s.UpdateItem(context.Background(), "item-1", []SelectionInput{{SizeCode: "4x6", Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, 5, c.Summary.TotalPrints)
	assert.Equal(t, 1, backend.updateCalls)

	_, err = s.UpdateItem(context.Background(), "item-1", nil)
	assert.True(t, envelope.IsValidation(err))
	assert.Equal(t, 1, backend.updateCalls)
}

func TestLoadRetriesTransientFailures(t *testing.T) {
	backend := &stubBackend{
		cart:    cartOf(item("item-1", "4x6", 1, "0.29")),
		getErrs: []error{statusErr(http.StatusServiceUnavailable), statusErr(http.StatusBadGateway)},
	}
	m := metrics.New(prometheus.NewRegistry())
	s := NewStore(backend, testConfig(), nil, WithMetrics(m))

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 3, backend.getCalls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CartLoadRetries))
	assert.False(t, s.Snapshot().Degraded)
	assert.Equal(t, 1, s.Cart().ItemCount())
}

func TestLoadDegradedKeepsCurrentCart(t *testing.T) {
	backend := &stubBackend{cart: cartOf(item("item-1", "4x6", 1, "0.29"))}
	s := newLoadedStore(t, backend)
	before := s.Cart()

	backend.getErrs = []error{
		statusErr(http.StatusInternalServerError),
		statusErr(http.StatusInternalServerError),
		statusErr(http.StatusInternalServerError),
	}
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, backend.getCalls, "one initial load plus three attempts")

	snap := s.Snapshot()
	assert.Same(t, before, snap.Cart)
	assert.True(t, snap.Degraded)
	assert.True(t, snap.Ready)
	assert.False(t, snap.Loading)
	assert.Equal(t, "We could not reach the store right now. Please try again.", envelope.UserMessage(snap.Err))
}

func TestLoadUnauthorizedClearsCartWithoutRetry(t *testing.T) {
	cache := newMemCache()
	backend := &stubBackend{cart: cartOf(item("item-1", "4x6", 1, "0.29"))}
	s := newLoadedStore(t, backend, WithCache(cache, func() string { return "user-1" }))
	require.Contains(t, cache.entries, "user-1")

	backend.getErrs = []error{statusErr(http.StatusForbidden)}
	err := s.Load(context.Background())
	assert.True(t, envelope.IsUnauthorized(err))
	assert.Equal(t, 2, backend.getCalls)
	assert.Nil(t, s.Cart())
	assert.True(t, s.Snapshot().Ready)
	assert.NotContains(t, cache.entries, "user-1")
}

func TestLoadDegradedFallsBackToCachedCart(t *testing.T) {
	cache := newMemCache()
	cached := cartOf(item("item-9", "8x10", 1, "3.99"))
	cache.entries["anonymous"] = cached

	backend := &stubBackend{getErrs: []error{
		statusErr(http.StatusBadGateway),
		statusErr(http.StatusBadGateway),
		statusErr(http.StatusBadGateway),
	}}
	s := NewStore(backend, testConfig(), nil, WithCache(cache, nil))

	require.Error(t, s.Load(context.Background()))
	snap := s.Snapshot()
	assert.Same(t, cached, snap.Cart)
	assert.True(t, snap.Stale)
	assert.True(t, snap.Degraded)
}

func TestServerCartClearsDegradedState(t *testing.T) {
	backend := &stubBackend{cart: cartOf(item("item-1", "4x6", 1, "0.29"))}
	s := newLoadedStore(t, backend)

	backend.getErrs = []error{statusErr(http.StatusBadRequest)}
	require.Error(t, s.Load(context.Background()))
	require.True(t, s.Snapshot().Degraded)

	backend.cart = cartOf(item("item-1", "4x6", 2, "0.29"))
	_, err := s.AddItem(context.Background(), "photo-1", []SelectionInput{{SizeCode: "4x6", Quantity: 1}})
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.False(t, snap.Degraded)
	assert.NoError(t, snap.Err)
	assert.False(t, snap.Stale)
	assert.Equal(t, 2, snap.Cart.Items[0].Selections[0].Quantity)
}

func TestClearDropsStaleCachedCart(t *testing.T) {
	cache := newMemCache()
	cache.entries["anonymous"] = cartOf(item("item-9", "8x10", 1, "3.99"))

	backend := &stubBackend{getErrs: []error{
		statusErr(http.StatusBadGateway),
		statusErr(http.StatusBadGateway),
		statusErr(http.StatusBadGateway),
	}}
	s := NewStore(backend, testConfig(), nil, WithCache(cache, nil))
	require.Error(t, s.Load(context.Background()))
	require.True(t, s.Snapshot().Stale)

	require.NoError(t, s.Clear(context.Background()))
	snap := s.Snapshot()
	assert.Nil(t, snap.Cart)
	assert.False(t, snap.Stale)
	assert.False(t, snap.Degraded)
	assert.NoError(t, snap.Err)
	assert.NotContains(t, cache.entries, "anonymous")
}

func TestLoadNormalizesEmptyCart(t *testing.T) {
	backend := &stubBackend{cart: &Cart{Items: []CartItem{}}}
	s := NewStore(backend, testConfig(), nil)

	assert.False(t, s.Snapshot().Ready)
	require.NoError(t, s.Load(context.Background()))
	snap := s.Snapshot()
	assert.Nil(t, snap.Cart)
	assert.True(t, snap.Ready)
}

func TestInitializeRunsOnce(t *testing.T) {
	backend := &stubBackend{
		cart: cartOf(item("item-1", "4x6", 1, "0.29")),
		gate: make(chan struct{}),
	}
	s := NewStore(backend, testConfig(), nil)
	assert.False(t, s.Initialized())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Initialize(context.Background())
		}()
	}

	select {
	case <-s.Ready():
		t.Fatal("ready before the first load resolved")
	case <-time.After(20 * time.Millisecond):
	}
	close(backend.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, backend.getCalls)
	assert.True(t, s.Initialized())
	assert.NoError(t, s.WaitReady(context.Background()))
	assert.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 1, backend.getCalls)
}

func TestInitializeFailureStillResolvesReadiness(t *testing.T) {
	backend := &stubBackend{getErrs: []error{statusErr(http.StatusBadRequest)}}
	s := NewStore(backend, testConfig(), nil)

	err := s.Initialize(context.Background())
	assert.True(t, envelope.IsKind(err, envelope.KindRejected))
	assert.True(t, s.Initialized())
	assert.NoError(t, s.WaitReady(context.Background()))
	assert.Equal(t, 1, backend.getCalls, "non-transient failures are not retried")
}

func TestWaitReadyHonoursContext(t *testing.T) {
	s := NewStore(&stubBackend{}, testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitReady(ctx), context.DeadlineExceeded)
}

func TestLoadResolvesReadinessWithoutInitialize(t *testing.T) {
	backend := &stubBackend{cart: cartOf(item("item-1", "4x6", 1, "0.29"))}
	s := NewStore(backend, testConfig(), nil)
	require.False(t, s.Initialized())

	require.NoError(t, s.Load(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.WaitReady(ctx))
	assert.True(t, s.Initialized())
	assert.Equal(t, 1, backend.getCalls)

	// readiness stays resolved across later loads
	require.NoError(t, s.Load(context.Background()))
	assert.NoError(t, s.WaitReady(ctx))
}

func TestFailedLoadResolvesReadinessWithoutInitialize(t *testing.T) {
	backend := &stubBackend{getErrs: []error{statusErr(http.StatusBadRequest)}}
	s := NewStore(backend, testConfig(), nil)

	require.Error(t, s.Load(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.WaitReady(ctx))
	assert.True(t, s.Initialized())
}

func TestSubscribersSeeOrderedTransitions(t *testing.T) {
	original := cartOf(item("item-1", "4x6", 2, "0.29"))
	backend := &stubBackend{
		cart:       original,
		removeErrs: []error{statusErr(http.StatusInternalServerError)},
	}
	s := NewStore(backend, testConfig(), nil)
	defer s.Close()

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Load(context.Background()))
	require.Error(t, s.RemoveItem(context.Background(), "item-1"))

	var got []Snapshot
	for len(got) < 5 {
		select {
		case snap := <-ch:
			got = append(got, snap)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d snapshots received", len(got))
		}
	}

	assert.False(t, got[0].Ready, "initial")
	assert.True(t, got[1].Loading, "loading")
	assert.Same(t, original, got[2].Cart, "loaded")
	assert.Nil(t, got[3].Cart, "optimistic removal")
	assert.True(t, got[3].Ready)
	assert.Same(t, original, got[4].Cart, "rollback")
}

func TestClearDoesNotRollBack(t *testing.T) {
	backend := &stubBackend{
		cart:     cartOf(item("item-1", "4x6", 2, "0.29")),
		clearErr: statusErr(http.StatusInternalServerError),
	}
	s := newLoadedStore(t, backend)

	err := s.Clear(context.Background())
	require.Error(t, err)
	assert.Nil(t, s.Cart())
	assert.Equal(t, 1, backend.clearCalls)
}

func TestCalculateTotalValidates(t *testing.T) {
	backend := &stubBackend{}
	s := NewStore(backend, testConfig(), nil)
	ctx := context.Background()

	_, err := s.CalculateTotal(ctx, decimal.Zero, "MA", "02101")
	assert.True(t, envelope.IsValidation(err))
	_, err = s.CalculateTotal(ctx, dec("-1"), "MA", "02101")
	assert.True(t, envelope.IsValidation(err))
	_, err = s.CalculateTotal(ctx, dec("10"), " ", "02101")
	assert.True(t, envelope.IsValidation(err))
	assert.Equal(t, 0, backend.totalCalls)

	res, err := s.CalculateTotal(ctx, dec("10.00"), "MA", "02101")
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(dec("10.80")))
}

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore(&stubBackend{}, config.CartConfig{MaxRetries: -1}, nil)
	assert.True(t, s.TaxRate().Equal(DefaultTaxRate))
	assert.Equal(t, 0, s.cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, s.cfg.RetryBaseDelay)
}

func TestLoadCancelledDuringBackoff(t *testing.T) {
	backend := &stubBackend{getErrs: []error{statusErr(http.StatusServiceUnavailable)}}
	cfg := testConfig()
	cfg.RetryBaseDelay = time.Hour
	s := NewStore(backend, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Load(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, s.Snapshot().Degraded)
}
