package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cartstore"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/checkout"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/order"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/payment"
)

type CheckoutHandler struct {
	store          *cartstore.Store
	flows          *checkout.Controller
	payments       *payment.Manager
	orders         *order.Orchestrator
	publishableKey string
	timeout        time.Duration
}

func NewCheckoutHandler(
	store *cartstore.Store,
	flows *checkout.Controller,
	payments *payment.Manager,
	orders *order.Orchestrator,
	publishableKey string,
	timeout time.Duration) *CheckoutHandler {

	return &CheckoutHandler{
		store:          store,
		flows:          flows,
		payments:       payments,
		orders:         orders,
		publishableKey: publishableKey,
		timeout:        timeout,
	}
}

type GoToStepRequestDTO struct {
	Step string `json:"step"`
}

type AddressesRequestDTO struct {
	Email           string          `json:"email"`
	ShippingAddress domain.Address  `json:"shipping_address"`
	BillingAddress  *domain.Address `json:"billing_address"`
	SameAsBilling   *bool           `json:"same_as_billing"`
}

type ShippingMethodRequestDTO struct {
	OptionID string `json:"option_id"`
}

type PaymentSessionRequestDTO struct {
	ProviderID string `json:"provider_id"`
}

type AuthorizationRequestDTO struct {
	ProviderID string `json:"provider_id"`
	// ProcessorError is the message the browser got from the processor, if
	// the confirmation failed there.
	ProcessorError string `json:"processor_error"`
}

type PaymentStateDTO struct {
	ProviderID string                 `json:"provider_id,omitempty"`
	Session    *domain.PaymentSession `json:"session,omitempty"`
	Submitting bool                   `json:"submitting"`
	Error      string                 `json:"error,omitempty"`
	Authorized bool                   `json:"authorized"`
}

type CheckoutResponse struct {
	checkout.Status
	Payment PaymentStateDTO `json:"payment"`
	Cart    *domain.Cart    `json:"cart"`
}

type PaymentSessionResponse struct {
	Session        *domain.PaymentSession `json:"session"`
	ClientSecret   string                 `json:"client_secret,omitempty"`
	PublishableKey string                 `json:"publishable_key"`
}

type AuthorizationResponse struct {
	Session *domain.PaymentSession `json:"session"`
	Step    domain.CheckoutStep    `json:"current_step"`
}

func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.present(cart))
}

func (h *CheckoutHandler) GoToStep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req GoToStepRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	step, err := domain.ParseCheckoutStep(req.Step)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_step", err.Error())
		return
	}

	cart, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	if err := h.flows.Flow(cart).GoTo(cart, step); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(cart))
}

func (h *CheckoutHandler) SetAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddressesRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ShippingAddress.IsEmpty() {
		respondError(w, http.StatusBadRequest, "invalid_address", "shipping_address.address_1 is required")
		return
	}

	sameAsBilling := req.SameAsBilling == nil || *req.SameAsBilling
	cart, err := h.store.SetAddresses(ctx, getSessionID(r.Context()), cartstore.AddressInput{
		Email:         req.Email,
		Shipping:      req.ShippingAddress,
		Billing:       req.BillingAddress,
		SameAsBilling: sameAsBilling,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(cart))
}

func (h *CheckoutHandler) ListShippingOptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	options, err := h.store.ListShippingOptions(ctx, getSessionID(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"shipping_options": options})
}

func (h *CheckoutHandler) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ShippingMethodRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OptionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_option_id", "option_id is required")
		return
	}

	cart, err := h.store.SetShippingMethod(ctx, getSessionID(r.Context()), req.OptionID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(cart))
}

func (h *CheckoutHandler) ListPaymentProviders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	providers, err := h.payments.ListProviders(ctx, cart.RegionID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"payment_providers": providers})
}

// InitiatePaymentSession retries with pauses between attempts, so it is
// bounded by the request context only.
func (h *CheckoutHandler) InitiatePaymentSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PaymentSessionRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProviderID == "" {
		respondError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id is required")
		return
	}

	cart, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	session, err := h.payments.InitiateSession(ctx, cart, req.ProviderID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PaymentSessionResponse{
		Session:        session,
		ClientSecret:   session.ClientSecret(),
		PublishableKey: h.publishableKey,
	})
}

func (h *CheckoutHandler) AuthorizePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AuthorizationRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, ok := h.cart(ctx, w)
	if !ok {
		return
	}
	providerID := req.ProviderID
	if providerID == "" {
		providerID = h.payments.State(cart.ID).SelectedProvider()
	}
	if providerID == "" {
		handleError(w, payment.ErrNoSession)
		return
	}

	session, err := h.payments.Authorize(ctx, cart, providerID, payment.ClientWidget{Failure: req.ProcessorError})
	if err != nil {
		handleError(w, err)
		return
	}

	updated := h.store.Retrieve(ctx, getSessionID(r.Context()), cart.ID)
	if updated == nil {
		updated = cart
	}
	respondJSON(w, http.StatusOK, AuthorizationResponse{
		Session: session,
		Step:    h.flows.Flow(updated).Current(updated),
	})
}

func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	redirect, err := h.orders.Place(ctx, getSessionID(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, redirect)
}

func (h *CheckoutHandler) cart(ctx context.Context, w http.ResponseWriter) (*domain.Cart, bool) {
	cart := h.store.Retrieve(ctx, getSessionID(ctx), "")
	if cart == nil {
		handleError(w, domain.ErrNoCart)
		return nil, false
	}
	return cart, true
}

func (h *CheckoutHandler) present(cart *domain.Cart) CheckoutResponse {
	st := h.payments.State(cart.ID)
	return CheckoutResponse{
		Status: h.flows.Flow(cart).Status(cart),
		Payment: PaymentStateDTO{
			ProviderID: st.SelectedProvider(),
			Session:    st.Session(),
			Submitting: st.Submitting(),
			Error:      st.Error(),
			Authorized: st.Authorized(),
		},
		Cart: cart,
	}
}
