package domain

import "time"

type Address struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Address1    string `json:"address_1,omitempty"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Province    string `json:"province,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// IsEmpty reports whether the address lacks a first street line.
func (a *Address) IsEmpty() bool {
	return a == nil || a.Address1 == ""
}

type Adjustment struct {
	Code   string `json:"code,omitempty"`
	Amount int64  `json:"amount"`
}

type LineItem struct {
	ID          string       `json:"id"`
	VariantID   string       `json:"variant_id"`
	Title       string       `json:"title,omitempty"`
	Quantity    int          `json:"quantity"`
	UnitPrice   int64        `json:"unit_price"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`

	// Selected is client-only and never sent to the backend.
	Selected bool `json:"-"`
}

func (i LineItem) AdjustmentTotal() int64 {
	var total int64
	for _, a := range i.Adjustments {
		total += a.Amount
	}
	return total
}

type ShippingMethod struct {
	ID               string `json:"id"`
	ShippingOptionID string `json:"shipping_option_id"`
	Name             string `json:"name,omitempty"`
	Amount           int64  `json:"amount"`
}

type ShippingOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

type Promotion struct {
	ID   string `json:"id,omitempty"`
	Code string `json:"code"`
}

type Cart struct {
	ID                string             `json:"id"`
	RegionID          string             `json:"region_id"`
	Email             string             `json:"email,omitempty"`
	CurrencyCode      string             `json:"currency_code"`
	Items             []LineItem         `json:"items"`
	ShippingAddress   *Address           `json:"shipping_address,omitempty"`
	BillingAddress    *Address           `json:"billing_address,omitempty"`
	ShippingMethods   []ShippingMethod   `json:"shipping_methods,omitempty"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	Promotions        []Promotion        `json:"promotions,omitempty"`

	// Totals are authoritative for the full cart only.
	Subtotal      int64 `json:"subtotal"`
	DiscountTotal int64 `json:"discount_total"`
	TaxTotal      int64 `json:"tax_total"`
	ShippingTotal int64 `json:"shipping_total"`
	GiftCardTotal int64 `json:"gift_card_total"`
	Total         int64 `json:"total"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (c *Cart) Item(id string) (LineItem, bool) {
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

func (c *Cart) PromotionCodes() []string {
	codes := make([]string, 0, len(c.Promotions))
	for _, p := range c.Promotions {
		codes = append(codes, p.Code)
	}
	return codes
}

// PaidByNonMonetary reports whether gift cards or promotions cover the whole total.
func (c *Cart) PaidByNonMonetary() bool {
	if c.Total != 0 || len(c.Items) == 0 {
		return false
	}
	return c.GiftCardTotal > 0 || c.DiscountTotal > 0 || len(c.Promotions) > 0
}

// CartUpdate carries the partial fields accepted by the backend cart update.
type CartUpdate struct {
	RegionID        *string  `json:"region_id,omitempty"`
	Email           *string  `json:"email,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
	PromoCodes      []string `json:"promo_codes,omitempty"`
}

// CartRef is the server-held reference from a storefront session to its cart.
type CartRef struct {
	SessionID string    `bson:"session_id"`
	CartID    string    `bson:"cart_id"`
	RegionID  string    `bson:"region_id"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Clone copies the cart so callers can apply local state without touching a
// shared snapshot.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = append([]LineItem(nil), c.Items...)
	out.ShippingMethods = append([]ShippingMethod(nil), c.ShippingMethods...)
	out.Promotions = append([]Promotion(nil), c.Promotions...)
	if c.ShippingAddress != nil {
		a := *c.ShippingAddress
		out.ShippingAddress = &a
	}
	if c.BillingAddress != nil {
		a := *c.BillingAddress
		out.BillingAddress = &a
	}
	if c.PaymentCollection != nil {
		pc := *c.PaymentCollection
		pc.PaymentSessions = append([]PaymentSession(nil), c.PaymentCollection.PaymentSessions...)
		out.PaymentCollection = &pc
	}
	return &out
}
