package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "21.80 EUR", FormatAmount(2180, "eur"))
	assert.Equal(t, "0.05 USD", FormatAmount(5, "usd"))
	assert.Equal(t, "1500 JPY", FormatAmount(1500, "jpy"))
}

func TestActiveSession_LatestForProviderWins(t *testing.T) {
	cart := &Cart{PaymentCollection: &PaymentCollection{
		ID: "pay_col_1",
		PaymentSessions: []PaymentSession{
			{ID: "ps_1", ProviderID: "pp_stripe", Status: PaymentSessionError},
			{ID: "ps_2", ProviderID: "pp_manual", Status: PaymentSessionPending},
			{ID: "ps_3", ProviderID: "pp_stripe", Status: PaymentSessionPending},
		},
	}}

	s := cart.ActiveSession("pp_stripe")
	require.NotNil(t, s)
	assert.Equal(t, "ps_3", s.ID)
	assert.Nil(t, cart.ActiveSession("pp_paypal"))
}

func TestSelectedSession_LastCreatedWins(t *testing.T) {
	cart := &Cart{PaymentCollection: &PaymentCollection{
		ID: "pay_col_1",
		PaymentSessions: []PaymentSession{
			{ID: "ps_1", ProviderID: "pp_stripe", Status: PaymentSessionAuthorized},
			{ID: "ps_2", ProviderID: "pp_manual", Status: PaymentSessionPending},
		},
	}}

	s := cart.SelectedSession()
	require.NotNil(t, s)
	assert.Equal(t, "ps_2", s.ID)
	assert.Nil(t, (&Cart{}).SelectedSession())
	assert.Nil(t, (&Cart{PaymentCollection: &PaymentCollection{ID: "pay_col_1"}}).SelectedSession())
}

func TestActiveSession_NoCollection(t *testing.T) {
	var cart *Cart
	assert.Nil(t, cart.ActiveSession("pp_stripe"))
	assert.Nil(t, (&Cart{}).ActiveSession("pp_stripe"))
}

func TestPaidByNonMonetary(t *testing.T) {
	items := []LineItem{{ID: "item_1", Quantity: 1, UnitPrice: 1000}}

	assert.True(t, (&Cart{Items: items, Total: 0, GiftCardTotal: 1000}).PaidByNonMonetary())
	assert.True(t, (&Cart{Items: items, Total: 0, Promotions: []Promotion{{Code: "FREE"}}}).PaidByNonMonetary())
	assert.False(t, (&Cart{Items: items, Total: 1000, GiftCardTotal: 500}).PaidByNonMonetary())
	assert.False(t, (&Cart{Total: 0, GiftCardTotal: 1000}).PaidByNonMonetary(), "empty cart is not paid")
}

func TestParseCheckoutStep(t *testing.T) {
	s, err := ParseCheckoutStep("delivery")
	require.NoError(t, err)
	assert.Equal(t, StepDelivery, s)
	assert.Equal(t, 1, s.Index())

	_, err = ParseCheckoutStep("shipping")
	assert.Error(t, err)
}

func TestClientSecret(t *testing.T) {
	s := &PaymentSession{Data: map[string]any{"client_secret": "pi_123_secret_456"}}
	assert.True(t, s.HasPayload())
	assert.Equal(t, "pi_123_secret_456", s.ClientSecret())

	empty := &PaymentSession{}
	assert.False(t, empty.HasPayload())
	assert.Equal(t, "", empty.ClientSecret())
}

func TestClone_IsIndependent(t *testing.T) {
	orig := &Cart{
		ID:              "cart_1",
		Items:           []LineItem{{ID: "item_1", Quantity: 1}},
		ShippingAddress: &Address{Address1: "1 Main St"},
	}

	c := orig.Clone()
	c.Items[0].Quantity = 5
	c.ShippingAddress.Address1 = "2 Side St"

	assert.Equal(t, 1, orig.Items[0].Quantity)
	assert.Equal(t, "1 Main St", orig.ShippingAddress.Address1)
	assert.Nil(t, (*Cart)(nil).Clone())
}
