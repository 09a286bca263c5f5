// Package totals computes the presented total for a subset of the cart's
// line items. The backend only knows the full-cart total, so the subset
// figure applies the cart's overall tax rate uniformly and adds shipping in
// full.
package totals

import (
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/shopspring/decimal"
)

// Aggregates are the full-cart figures reported by the backend.
type Aggregates struct {
	Subtotal      int64
	TaxTotal      int64
	ShippingTotal int64
	GiftCardTotal int64
}

func AggregatesOf(cart *domain.Cart) Aggregates {
	return Aggregates{
		Subtotal:      cart.Subtotal,
		TaxTotal:      cart.TaxTotal,
		ShippingTotal: cart.ShippingTotal,
		GiftCardTotal: cart.GiftCardTotal,
	}
}

type Result struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount_total"`
	Tax      int64 `json:"tax_total"`
	Shipping int64 `json:"shipping_total"`
	GiftCard int64 `json:"gift_card_total"`
	Total    int64 `json:"total"`
	Selected int   `json:"selected_items"`
}

// Calculate totals the selected items. Items missing from selected count as
// not selected. With nothing selected the total is zero.
func Calculate(items []domain.LineItem, selected map[string]bool, agg Aggregates) Result {
	var r Result
	for _, item := range items {
		if !selected[item.ID] {
			continue
		}
		r.Selected++
		r.Subtotal += item.UnitPrice * int64(item.Quantity)
		r.Discount += item.AdjustmentTotal()
	}

	r.Tax = proportionalTax(r.Subtotal, agg)
	r.GiftCard = agg.GiftCardTotal
	r.Total = r.Subtotal + r.Tax - r.Discount - r.GiftCard
	if agg.ShippingTotal > 0 {
		r.Shipping = agg.ShippingTotal
		r.Total += r.Shipping
	}

	if r.Selected == 0 {
		r.Total = 0
	}
	return r
}

// proportionalTax applies tax_total/subtotal of the full cart to the selected
// subtotal, rounding half away from zero.
func proportionalTax(selectedSubtotal int64, agg Aggregates) int64 {
	if agg.Subtotal == 0 {
		return 0
	}
	return decimal.NewFromInt(selectedSubtotal).
		Mul(decimal.NewFromInt(agg.TaxTotal)).
		Div(decimal.NewFromInt(agg.Subtotal)).
		Round(0).
		IntPart()
}

// DefaultSelection selects every item, the state of a freshly loaded cart.
func DefaultSelection(items []domain.LineItem) map[string]bool {
	selected := make(map[string]bool, len(items))
	for _, item := range items {
		selected[item.ID] = true
	}
	return selected
}
