// Package checkout decides which checkout steps a cart has satisfied and
// which step the shopper may move to.
package checkout

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
)

var ErrStepLocked = errors.New("checkout step is locked until the previous steps are complete")

// AddressComplete: a shipping address with a street line and a contact email.
func AddressComplete(cart *domain.Cart) bool {
	return cart != nil && !cart.ShippingAddress.IsEmpty() && strings.TrimSpace(cart.Email) != ""
}

// DeliveryComplete: at least one shipping method on the cart.
func DeliveryComplete(cart *domain.Cart) bool {
	return cart != nil && len(cart.ShippingMethods) > 0
}

// PaymentComplete: the selected provider's session is authorized, or nothing
// is left to pay because gift cards or promotions cover the total. A session
// authorized for a provider the shopper switched away from does not count.
func PaymentComplete(cart *domain.Cart) bool {
	if cart == nil {
		return false
	}
	if cart.PaidByNonMonetary() {
		return true
	}
	s := cart.SelectedSession()
	return s != nil && s.Status == domain.PaymentSessionAuthorized
}

// Complete reports whether the cart satisfies the step. Review and complete
// require all three earlier steps.
func Complete(cart *domain.Cart, step domain.CheckoutStep) bool {
	switch step {
	case domain.StepAddress:
		return AddressComplete(cart)
	case domain.StepDelivery:
		return DeliveryComplete(cart)
	case domain.StepPayment:
		return PaymentComplete(cart)
	default:
		return AddressComplete(cart) && DeliveryComplete(cart) && PaymentComplete(cart)
	}
}

// FirstIncomplete returns the earliest step the cart has not satisfied, or
// review when everything is in place.
func FirstIncomplete(cart *domain.Cart) domain.CheckoutStep {
	for _, step := range []domain.CheckoutStep{domain.StepAddress, domain.StepDelivery, domain.StepPayment} {
		if !Complete(cart, step) {
			return step
		}
	}
	return domain.StepReview
}

// Flow is the shopper's position in checkout. Completeness is always derived
// from the cart, so editing an earlier step invalidates later ones on the next
// read without any bookkeeping here.
type Flow struct {
	mu   sync.Mutex
	step domain.CheckoutStep
}

// NewFlow starts at the first step the cart has not satisfied.
func NewFlow(cart *domain.Cart) *Flow {
	return &Flow{step: FirstIncomplete(cart)}
}

// Current returns the step to show. A step ahead of what the cart allows
// falls back to the first incomplete one.
func (f *Flow) Current(cart *domain.Cart) domain.CheckoutStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current(cart)
}

func (f *Flow) current(cart *domain.Cart) domain.CheckoutStep {
	if f.step == domain.StepComplete {
		return f.step
	}
	if first := FirstIncomplete(cart); first.Index() < f.step.Index() {
		f.step = first
	}
	return f.step
}

// GoTo moves to step. Going back is always allowed; going forward only when
// every step before the target is complete.
func (f *Flow) GoTo(cart *domain.Cart, step domain.CheckoutStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if step == domain.StepComplete {
		return fmt.Errorf("%w: %s is reached by placing the order", ErrStepLocked, step)
	}
	if f.step == domain.StepComplete {
		return fmt.Errorf("%w: the order was already placed", ErrStepLocked)
	}
	if step.Index() > FirstIncomplete(cart).Index() {
		return fmt.Errorf("%w: %s", ErrStepLocked, step)
	}
	f.step = step
	return nil
}

// MarkComplete moves review to complete after the order was placed.
func (f *Flow) MarkComplete(cart *domain.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !Complete(cart, domain.StepReview) {
		return fmt.Errorf("%w: review requires address, delivery and payment", ErrStepLocked)
	}
	f.step = domain.StepComplete
	return nil
}

// Status is the per-step completeness shown by the checkout summary.
type Status struct {
	Current  domain.CheckoutStep `json:"current_step"`
	Address  bool                `json:"address_complete"`
	Delivery bool                `json:"delivery_complete"`
	Payment  bool                `json:"payment_complete"`
	Review   bool                `json:"review_ready"`
}

func (f *Flow) Status(cart *domain.Cart) Status {
	return Status{
		Current:  f.Current(cart),
		Address:  AddressComplete(cart),
		Delivery: DeliveryComplete(cart),
		Payment:  PaymentComplete(cart),
		Review:   Complete(cart, domain.StepReview),
	}
}

// Controller keeps one Flow per cart.
type Controller struct {
	mu    sync.Mutex
	flows map[string]*Flow
}

func NewController() *Controller {
	return &Controller{flows: make(map[string]*Flow)}
}

// Flow returns the cart's flow, starting a new one at the first incomplete step.
func (c *Controller) Flow(cart *domain.Cart) *Flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flows[cart.ID]
	if !ok {
		f = NewFlow(cart)
		c.flows[cart.ID] = f
	}
	return f
}

func (c *Controller) Release(cartID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flows, cartID)
}
