// internal/domain/cart/api.go
package cart

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/your-org/photo-print-storefront/internal/pkg/apiclient"
)

// Backend is the cart side of the storefront REST API
type Backend interface {
	GetCart(ctx context.Context) (*Cart, error)
	AddItem(ctx context.Context, photoID string, selections []SelectionInput) (*Cart, error)
	UpdateItem(ctx context.Context, itemID string, selections []SelectionInput) (*Cart, error)
	RemoveItem(ctx context.Context, itemID string) (*Cart, error)
	Clear(ctx context.Context) error
	CalculateTotal(ctx context.Context, subtotal decimal.Decimal, state, postalCode string) (*TotalCalculation, error)
}

// API implements Backend over HTTP
type API struct {
	client *apiclient.Client
}

func NewAPI(client *apiclient.Client) *API {
	return &API{client: client}
}

type addItemRequest struct {
	PhotoID    string           `json:"photoId"`
	Selections []SelectionInput `json:"printSelections"`
}

type updateItemRequest struct {
	Selections []SelectionInput `json:"printSelections"`
}

type calculateTotalRequest struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	State      string          `json:"state"`
	PostalCode string          `json:"postalCode"`
}

func (a *API) GetCart(ctx context.Context) (*Cart, error) {
	return apiclient.Do[Cart](ctx, a.client, http.MethodGet, "/cart", nil)
}

func (a *API) AddItem(ctx context.Context, photoID string, selections []SelectionInput) (*Cart, error) {
	return apiclient.Do[Cart](ctx, a.client, http.MethodPost, "/cart/items", addItemRequest{
		PhotoID:    photoID,
		Selections: selections,
	})
}

func (a *API) UpdateItem(ctx context.Context, itemID string, selections []SelectionInput) (*Cart, error) {
	return apiclient.Do[Cart](ctx, a.client, http.MethodPut, "/cart/items/"+url.PathEscape(itemID), updateItemRequest{
		Selections: selections,
	})
}

func (a *API) RemoveItem(ctx context.Context, itemID string) (*Cart, error) {
	return apiclient.Do[Cart](ctx, a.client, http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), nil)
}

func (a *API) Clear(ctx context.Context) error {
	_, err := apiclient.Do[struct{}](ctx, a.client, http.MethodDelete, "/cart", nil)
	return err
}

func (a *API) CalculateTotal(ctx context.Context, subtotal decimal.Decimal, state, postalCode string) (*TotalCalculation, error) {
	return apiclient.Do[TotalCalculation](ctx, a.client, http.MethodPost, "/cart/calculate-total", calculateTotalRequest{
		Subtotal:   subtotal,
		State:      state,
		PostalCode: postalCode,
	})
}
