// internal/domain/cart/entity.go
package cart

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/your-org/photo-print-storefront/internal/pkg/envelope"
)

// PrintSelection is one print size ordered for a photo
type PrintSelection struct {
	SizeCode  string          `json:"sizeCode"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// CartItem is one photo with its print selections
type CartItem struct {
	ID         string           `json:"id"`
	PhotoID    string           `json:"photoId"`
	PhotoURL   string           `json:"photoUrl,omitempty"`
	Selections []PrintSelection `json:"printSelections"`
	PhotoTotal decimal.Decimal  `json:"photoTotal"`
}

// Summary holds the derived cart totals
type Summary struct {
	TotalPhotos int             `json:"totalPhotos"`
	TotalPrints int             `json:"totalPrints"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Cart is the aggregate published by the Store. A published *Cart is never modified.
type Cart struct {
	Items   []CartItem `json:"items"`
	Summary Summary    `json:"summary"`
}

// SelectionInput is the outbound form of a print selection
type SelectionInput struct {
	SizeCode string `json:"sizeCode"`
	Quantity int    `json:"quantity"`
}

// TotalCalculation is the backend tax engine's answer
type TotalCalculation struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	TaxRate  decimal.Decimal `json:"taxRate"`
}

// Snapshot is one observable state of the Store.
// Cart == nil with Ready == false means the cart has not been loaded yet;
// Cart == nil with Ready == true means it was loaded and is empty.
type Snapshot struct {
	Cart     *Cart
	Ready    bool
	Loading  bool
	Degraded bool
	Stale    bool
	Err      error
}

// IsEmpty reports whether the cart holds no items. A nil cart is empty.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// ItemCount returns the number of photos in the cart
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Item finds an item by id
func (c *Cart) Item(id string) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return CartItem{}, false
}

// without returns a new cart lacking the item, with the summary recomputed locally
func (c *Cart) without(itemID string, taxRate decimal.Decimal) *Cart {
	if c == nil {
		return nil
	}
	items := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.ID != itemID {
			items = append(items, item)
		}
	}
	return normalize(&Cart{Items: items, Summary: recomputeSummary(items, taxRate)})
}

// recomputeSummary derives the summary from items. Tax is rounded to cents.
func recomputeSummary(items []CartItem, taxRate decimal.Decimal) Summary {
	s := Summary{TotalPhotos: len(items)}
	for _, item := range items {
		for _, sel := range item.Selections {
			s.TotalPrints += sel.Quantity
		}
		s.Subtotal = s.Subtotal.Add(item.PhotoTotal)
	}
	s.Tax = s.Subtotal.Mul(taxRate).Round(2)
	s.Total = s.Subtotal.Add(s.Tax)
	return s
}

// normalize maps a cart without items to nil
func normalize(c *Cart) *Cart {
	if c.IsEmpty() {
		return nil
	}
	return c
}

func validateSelections(selections []SelectionInput) error {
	if len(selections) == 0 {
		return envelope.Validation("Please select at least one print size", "printSelections must not be empty")
	}
	var errs []string
	for i, sel := range selections {
		if strings.TrimSpace(sel.SizeCode) == "" {
			errs = append(errs, fmt.Sprintf("printSelections[%d].sizeCode is required", i))
		}
		if sel.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("printSelections[%d].quantity must be greater than zero", i))
		}
	}
	if len(errs) > 0 {
		return envelope.Validation("Invalid print selection", errs...)
	}
	return nil
}
