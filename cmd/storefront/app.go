// cmd/storefront/app.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/your-org/photo-print-storefront/internal/config"
	"github.com/your-org/photo-print-storefront/internal/domain/cart"
	"github.com/your-org/photo-print-storefront/internal/domain/checkout"
	"github.com/your-org/photo-print-storefront/internal/domain/order"
	"github.com/your-org/photo-print-storefront/internal/domain/payment"
	redisstore "github.com/your-org/photo-print-storefront/internal/infrastructure/database/redis"
	"github.com/your-org/photo-print-storefront/internal/pkg/apiclient"
	"github.com/your-org/photo-print-storefront/internal/pkg/auth"
	"github.com/your-org/photo-print-storefront/internal/pkg/metrics"
)

// app holds the wired services for one process
type app struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	out      io.Writer
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	session  *auth.Session
	redis    *redisstore.Client
	cart     *cart.Store
	gateway  *payment.Adapter
	orders   *order.Service
	server   *http.Server
}

func newApp(cfg *config.Config, log logrus.FieldLogger, out io.Writer) (*app, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	session := auth.NewSession(cfg.API.AuthToken)

	client := apiclient.New(cfg.API, cfg.Breaker, session, log, apiclient.WithMetrics(m))

	a := &app{
		cfg:      cfg,
		log:      log,
		out:      out,
		registry: registry,
		metrics:  m,
		session:  session,
	}

	cartOpts := []cart.Option{cart.WithMetrics(m)}
	if cfg.Redis.Enabled {
		rdb, err := redisstore.NewConnection(cfg, log)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		cartOpts = append(cartOpts, cart.WithCache(redisstore.NewCartCache(rdb.Redis, cfg.Redis.CartTTL), session.Subject))
	}

	a.cart = cart.NewStore(cart.NewAPI(client), cfg.Cart, log, cartOpts...)
	a.gateway = payment.NewAdapter(
		payment.NewAPI(client),
		payment.NewStripeSDK(cfg.Stripe, log),
		log,
		payment.WithDefaultReturnURL(cfg.Checkout.ReturnURL),
	)
	a.orders = order.NewService(order.NewAPI(client), log)
	return a, nil
}

// serveMetrics exposes the registry on addr until close
func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Metrics server failed")
		}
	}()
	a.log.WithField("addr", addr).Info("Serving metrics")
}

func (a *app) close() {
	a.cart.Close()
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command: cart, add, remove, clear or checkout")
	}

	switch args[0] {
	case "cart":
		return a.runCart(ctx, args[1:])
	case "add":
		return a.runAdd(ctx, args[1:])
	case "remove":
		return a.runRemove(ctx, args[1:])
	case "clear":
		return a.runClear(ctx)
	case "checkout":
		return a.runCheckout(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) runCart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cart", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "keep printing the cart as it changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.cart.Initialize(ctx); err != nil {
		return err
	}
	if !*watch {
		a.printSnapshot(a.cart.Snapshot())
		return nil
	}

	snapshots, cancel := a.cart.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			a.printSnapshot(snap)
		}
	}
}

func (a *app) runAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	photo := fs.String("photo", "", "photo id")
	sizes := fs.String("sizes", "", "print selections, e.g. 4x6:2,5x7:1")
	if err := fs.Parse(args); err != nil {
		return err
	}

	selections, err := parseSelections(*sizes)
	if err != nil {
		return err
	}
	if _, err := a.cart.AddItem(ctx, *photo, selections); err != nil {
		return err
	}
	a.printSnapshot(a.cart.Snapshot())
	return nil
}

func (a *app) runRemove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	item := fs.String("item", "", "cart item id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.cart.Initialize(ctx); err != nil {
		return err
	}
	if err := a.cart.RemoveItem(ctx, *item); err != nil {
		return err
	}
	a.printSnapshot(a.cart.Snapshot())
	return nil
}

func (a *app) runClear(ctx context.Context) error {
	if err := a.cart.Clear(ctx); err != nil {
		return err
	}
	a.printSnapshot(a.cart.Snapshot())
	return nil
}

func (a *app) runCheckout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	shippingFile := fs.String("shipping", "", "JSON file with the shipping address")
	method := fs.String("method", string(order.PaymentMethodBranchPayment), "credit_card or branch_payment")
	branch := fs.String("branch", a.cfg.Checkout.DefaultBranch, "branch for in-person payment")
	card := fs.String("card", "", "tokenized payment method id for card payment")
	name := fs.String("name", "", "cardholder name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := readShipping(*shippingFile)
	if err != nil {
		return err
	}
	if err := a.cart.Initialize(ctx); err != nil {
		return err
	}

	o := checkout.NewOrchestrator(checkout.Deps{
		Cart:      a.cart,
		Gateway:   a.gateway,
		Orders:    a.orders,
		Navigator: &printNavigator{out: a.out},
	}, a.cfg.Checkout, a.log, checkout.WithMetrics(a.metrics))
	defer o.Close()

	if err := o.UpdateShipping(ctx, addr); err != nil {
		return err
	}
	if err := o.SubmitShipping(); err != nil {
		return err
	}
	if err := o.SelectPaymentMethod(ctx, order.PaymentMethod(*method)); err != nil {
		return err
	}
	if order.PaymentMethod(*method) == order.PaymentMethodCreditCard {
		if err := o.CollectCard(*card); err != nil {
			return err
		}
	}

	pricing := o.Pricing()
	fmt.Fprintf(a.out, "Subtotal %s  Tax %s  Total %s\n",
		pricing.Subtotal.StringFixed(2), pricing.Tax.StringFixed(2), pricing.Total.StringFixed(2))

	created, err := o.PlaceOrder(ctx, checkout.PlaceOrderInput{
		CardholderName:  *name,
		PreferredBranch: *branch,
	})
	if msg := o.State().Message; msg != "" {
		fmt.Fprintln(a.out, msg)
	}
	if err != nil {
		if created != nil {
			fmt.Fprintf(a.out, "Order %s was created and awaits payment\n", created.OrderNumber)
		}
		return err
	}
	fmt.Fprintf(a.out, "Order %s (%s)\n", created.OrderNumber, created.Status)
	return nil
}

func (a *app) printSnapshot(snap cart.Snapshot) {
	switch {
	case !snap.Ready:
		fmt.Fprintln(a.out, "Cart not loaded")
		return
	case snap.Cart.IsEmpty():
		fmt.Fprintln(a.out, "Cart is empty")
		return
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tPHOTO\tPRINTS\tTOTAL")
	for _, item := range snap.Cart.Items {
		prints := make([]string, 0, len(item.Selections))
		for _, sel := range item.Selections {
			prints = append(prints, fmt.Sprintf("%s x%d", sel.SizeCode, sel.Quantity))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.ID, item.PhotoID, strings.Join(prints, ", "), item.PhotoTotal.StringFixed(2))
	}
	_ = w.Flush()

	s := snap.Cart.Summary
	fmt.Fprintf(a.out, "Subtotal %s  Tax %s  Total %s\n", s.Subtotal.StringFixed(2), s.Tax.StringFixed(2), s.Total.StringFixed(2))
	if snap.Stale {
		fmt.Fprintln(a.out, "(showing a cached cart, the backend is unavailable)")
	}
}

// printNavigator reports where a UI would go next
type printNavigator struct {
	out io.Writer
}

func (n *printNavigator) ToOrderConfirmation(orderID string) {
	fmt.Fprintf(n.out, "Order confirmation: /orders/%s\n", orderID)
}

func (n *printNavigator) ToOrderList() {
	fmt.Fprintln(n.out, "Order confirmation: /orders")
}

func parseSelections(raw string) ([]cart.SelectionInput, error) {
	var out []cart.SelectionInput
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		size, qty, found := strings.Cut(part, ":")
		if !found {
			qty = "1"
		}
		n, err := strconv.Atoi(qty)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q", part)
		}
		out = append(out, cart.SelectionInput{SizeCode: strings.TrimSpace(size), Quantity: n})
	}
	return out, nil
}

func readShipping(path string) (order.ShippingAddress, error) {
	var addr order.ShippingAddress
	if path == "" {
		return addr, errors.New("-shipping is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return addr, fmt.Errorf("failed to read shipping address: %w", err)
	}
	if err := json.Unmarshal(raw, &addr); err != nil {
		return addr, fmt.Errorf("failed to parse shipping address: %w", err)
	}
	return addr, nil
}
