// Package commercetest provides an in-memory commerce backend for tests.
package commercetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend mimics the store API: carts, line items, payment collections and
// completion, with queued failures and call counting.
type Backend struct {
	mu     sync.Mutex
	carts  map[string]*domain.Cart
	calls  map[string]int
	fail   map[string][]error
	nextID int

	// payload countdown per collection and provider, decremented on every
	// cart retrieve; sessions get their payload once it reaches zero
	payloadCountdown map[string]int

	ShippingOptions []domain.ShippingOption
	Providers       []domain.PaymentProvider

	// PayloadAfterRetrieves is how many cart retrieves happen before a
	// provider's sessions get their processor payload. 1 means the first
	// refetch after the first session was created sees it.
	PayloadAfterRetrieves int

	// Completion decides the reply of CompleteCart; nil places an order.
	Completion func(cart *domain.Cart) *domain.CompletionResult
}

func NewBackend() *Backend {
	return &Backend{
		carts:                 make(map[string]*domain.Cart),
		calls:                 make(map[string]int),
		fail:                  make(map[string][]error),
		payloadCountdown:      make(map[string]int),
		PayloadAfterRetrieves: 1,
	}
}

// Put stores a cart as the server-side truth.
func (b *Backend) Put(cart *domain.Cart) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := cart.Clone()
	recalc(c)
	b.carts[c.ID] = c
}

// Cart returns a copy of the server-side cart.
func (b *Backend) Cart(id string) *domain.Cart {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.carts[id].Clone()
}

// Mutate edits the server-side cart directly, e.g. to simulate another tab.
func (b *Backend) Mutate(id string, fn func(c *domain.Cart)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.carts[id])
	recalc(b.carts[id])
}

// FailNext queues errors returned by the next calls of method.
func (b *Backend) FailNext(method string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[method] = append(b.fail[method], errs...)
}

func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// Unavailable is a transient backend failure.
func Unavailable() error {
	return status.Error(codes.Unavailable, "backend temporarily unavailable")
}

// NotFound is the backend reply for a vanished cart or item.
func NotFound(what string) error {
	return status.Errorf(codes.NotFound, "%s not found", what)
}

func (b *Backend) enter(method string) error {
	b.calls[method]++
	if q := b.fail[method]; len(q) > 0 {
		err := q[0]
		b.fail[method] = q[1:]
		return err
	}
	return nil
}

func (b *Backend) cart(id string) (*domain.Cart, error) {
	c, ok := b.carts[id]
	if !ok {
		return nil, NotFound("cart " + id)
	}
	return c, nil
}

func (b *Backend) RetrieveCart(_ context.Context, cartID string) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("RetrieveCart"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	b.revealPayloads(c)
	return c.Clone(), nil
}

func (b *Backend) CreateCart(_ context.Context, regionID string) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreateCart"); err != nil {
		return nil, err
	}
	b.nextID++
	c := &domain.Cart{ID: fmt.Sprintf("cart_%02d", b.nextID), RegionID: regionID, CurrencyCode: "eur"}
	b.carts[c.ID] = c
	return c.Clone(), nil
}

func (b *Backend) UpdateCart(_ context.Context, cartID string, update domain.CartUpdate) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("UpdateCart"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	if update.RegionID != nil {
		c.RegionID = *update.RegionID
	}
	if update.Email != nil {
		c.Email = *update.Email
	}
	if update.ShippingAddress != nil {
		a := *update.ShippingAddress
		c.ShippingAddress = &a
	}
	if update.BillingAddress != nil {
		a := *update.BillingAddress
		c.BillingAddress = &a
	}
	recalc(c)
	return c.Clone(), nil
}

func (b *Backend) AddLineItem(_ context.Context, cartID, variantID string, quantity int) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("AddLineItem"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items[i].Quantity += quantity
			recalc(c)
			return c.Clone(), nil
		}
	}
	b.nextID++
	c.Items = append(c.Items, domain.LineItem{
		ID:        fmt.Sprintf("item_%02d", b.nextID),
		VariantID: variantID,
		Quantity:  quantity,
		UnitPrice: 1000,
	})
	recalc(c)
	return c.Clone(), nil
}

func (b *Backend) UpdateLineItem(_ context.Context, cartID, itemID string, quantity int) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("UpdateLineItem"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = quantity
			recalc(c)
			return c.Clone(), nil
		}
	}
	return nil, NotFound("line item " + itemID)
}

func (b *Backend) DeleteLineItem(_ context.Context, cartID, itemID string) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("DeleteLineItem"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			recalc(c)
			return c.Clone(), nil
		}
	}
	return nil, NotFound("line item " + itemID)
}

func (b *Backend) AddShippingMethod(_ context.Context, cartID, optionID string) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("AddShippingMethod"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	for _, o := range b.ShippingOptions {
		if o.ID == optionID {
			c.ShippingMethods = []domain.ShippingMethod{{
				ID:               "sm_" + o.ID,
				ShippingOptionID: o.ID,
				Name:             o.Name,
				Amount:           o.Amount,
			}}
			c.ShippingTotal = o.Amount
			recalc(c)
			return c.Clone(), nil
		}
	}
	return nil, status.Errorf(codes.InvalidArgument, "shipping option %s is not available for this cart", optionID)
}

func (b *Backend) ListShippingOptions(_ context.Context, cartID string) ([]domain.ShippingOption, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ListShippingOptions"); err != nil {
		return nil, err
	}
	if _, err := b.cart(cartID); err != nil {
		return nil, err
	}
	return append([]domain.ShippingOption(nil), b.ShippingOptions...), nil
}

func (b *Backend) ApplyPromotions(_ context.Context, cartID string, promoCodes []string) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ApplyPromotions"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	for _, code := range promoCodes {
		c.Promotions = append(c.Promotions, domain.Promotion{Code: code})
	}
	return c.Clone(), nil
}

func (b *Backend) RemovePromotions(_ context.Context, cartID string, promoCodes []string) (*domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("RemovePromotions"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]bool, len(promoCodes))
	for _, code := range promoCodes {
		drop[code] = true
	}
	kept := c.Promotions[:0]
	for _, p := range c.Promotions {
		if !drop[p.Code] {
			kept = append(kept, p)
		}
	}
	c.Promotions = kept
	return c.Clone(), nil
}

func (b *Backend) CreatePaymentCollection(_ context.Context, cartID string) (*domain.PaymentCollection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreatePaymentCollection"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	if c.PaymentCollection == nil {
		c.PaymentCollection = &domain.PaymentCollection{ID: "pay_col_" + c.ID, Amount: c.Total, Status: "not_paid"}
	}
	pc := *c.PaymentCollection
	return &pc, nil
}

func (b *Backend) InitiatePaymentSession(_ context.Context, collectionID, providerID string, _ map[string]any) (*domain.PaymentCollection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("InitiatePaymentSession"); err != nil {
		return nil, err
	}
	for _, c := range b.carts {
		if c.PaymentCollection == nil || c.PaymentCollection.ID != collectionID {
			continue
		}
		b.nextID++
		session := domain.PaymentSession{
			ID:         fmt.Sprintf("ps_%02d", b.nextID),
			ProviderID: providerID,
			Status:     domain.PaymentSessionPending,
			Amount:     c.Total,
		}
		// the new session supersedes older ones for the same provider
		kept := c.PaymentCollection.PaymentSessions[:0]
		for _, s := range c.PaymentCollection.PaymentSessions {
			if s.ProviderID != providerID {
				kept = append(kept, s)
			}
		}
		c.PaymentCollection.PaymentSessions = append(kept, session)
		key := payloadKey(collectionID, providerID)
		if _, ok := b.payloadCountdown[key]; !ok {
			b.payloadCountdown[key] = b.PayloadAfterRetrieves
		}
		pc := *c.PaymentCollection
		pc.PaymentSessions = append([]domain.PaymentSession(nil), c.PaymentCollection.PaymentSessions...)
		return &pc, nil
	}
	return nil, NotFound("payment collection " + collectionID)
}

// SetSessionStatus simulates the processor moving a session, e.g. to authorized.
func (b *Backend) SetSessionStatus(cartID, providerID string, st domain.PaymentSessionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.carts[cartID]
	if c == nil || c.PaymentCollection == nil {
		return
	}
	for i := range c.PaymentCollection.PaymentSessions {
		if c.PaymentCollection.PaymentSessions[i].ProviderID == providerID {
			c.PaymentCollection.PaymentSessions[i].Status = st
		}
	}
}

func (b *Backend) ListPaymentProviders(_ context.Context, _ string) ([]domain.PaymentProvider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ListPaymentProviders"); err != nil {
		return nil, err
	}
	return append([]domain.PaymentProvider(nil), b.Providers...), nil
}

func (b *Backend) CompleteCart(_ context.Context, cartID string) (*domain.CompletionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CompleteCart"); err != nil {
		return nil, err
	}
	c, err := b.cart(cartID)
	if err != nil {
		return nil, err
	}
	if b.Completion != nil {
		return b.Completion(c.Clone()), nil
	}
	b.nextID++
	order := &domain.Order{
		ID:           fmt.Sprintf("order_%02d", b.nextID),
		CartID:       c.ID,
		Email:        c.Email,
		CurrencyCode: c.CurrencyCode,
		Total:        c.Total,
		Items:        append([]domain.LineItem(nil), c.Items...),
	}
	delete(b.carts, cartID)
	return &domain.CompletionResult{Type: domain.CompletionOrder, Order: order}, nil
}

func (b *Backend) revealPayloads(c *domain.Cart) {
	if c.PaymentCollection == nil {
		return
	}
	seen := make(map[string]bool)
	for i := range c.PaymentCollection.PaymentSessions {
		s := &c.PaymentCollection.PaymentSessions[i]
		key := payloadKey(c.PaymentCollection.ID, s.ProviderID)
		left, tracked := b.payloadCountdown[key]
		if !tracked {
			continue
		}
		if !seen[key] && left > 0 {
			seen[key] = true
			left--
			b.payloadCountdown[key] = left
		}
		if left <= 0 && len(s.Data) == 0 {
			s.Data = map[string]any{"client_secret": s.ID + "_secret"}
		}
	}
}

func payloadKey(collectionID, providerID string) string {
	return collectionID + "/" + providerID
}

func recalc(c *domain.Cart) {
	var subtotal, discount int64
	for _, item := range c.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
		discount += item.AdjustmentTotal()
	}
	c.Subtotal = subtotal
	if discount > 0 {
		c.DiscountTotal = discount
	}
	c.Total = c.Subtotal + c.TaxTotal + c.ShippingTotal - c.DiscountTotal - c.GiftCardTotal
	if c.Total < 0 {
		c.Total = 0
	}
}
