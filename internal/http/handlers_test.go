package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cache"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cartstore"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/checkout"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/commerce/commercetest"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/lineitem"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/order"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/outbox"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/payment"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/repository"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/retry"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripe = "pp_stripe_stripe"

type testClient struct {
	t       *testing.T
	server  *httptest.Server
	client  *http.Client
	backend *commercetest.Backend
	ledger  *outbox.MemoryRepository
}

func setupServer(t *testing.T) *testClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	backend := commercetest.NewBackend()
	backend.ShippingOptions = []domain.ShippingOption{{ID: "so_standard", Name: "Standard", Amount: 495}}
	backend.Providers = []domain.PaymentProvider{{ID: stripe}}

	logger := zap.NewNop()
	policy := retry.Policy{Attempts: 3, Delay: 10 * time.Millisecond}
	store := cartstore.New(backend, cache.NewRedisCache(rdb), repository.NewMemoryRepository(), logger)
	items := lineitem.NewMutator(store, policy, logger)
	payments := payment.NewManager(store, policy, logger)
	flows := checkout.NewController()
	ledger := outbox.NewMemoryRepository()
	orders := order.NewOrchestrator(store, ledger, flows, logger, items, payments)

	router := NewRouter(
		NewCartHandler(store, items, 5*time.Second),
		NewCheckoutHandler(store, flows, payments, orders, "pk_test", 5*time.Second),
		RouterOptions{Logger: logger, RequestTimeout: 10 * time.Second, MaxRequestBodySize: 1 << 20},
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{
		t:       t,
		server:  server,
		client:  &http.Client{Jar: jar},
		backend: backend,
		ledger:  ledger,
	}
}

// call sends body as JSON and decodes the reply into out when given.
func (c *testClient) call(method, path string, body, out interface{}) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.server.URL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c *testClient) cartWithItem() CartResponse {
	c.t.Helper()
	var cart CartResponse
	code := c.call(http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{RegionID: "reg_eu", VariantID: "variant_1", Quantity: 2}, &cart)
	require.Equal(c.t, http.StatusCreated, code)
	require.Len(c.t, cart.Items, 1)
	return cart
}

func (c *testClient) readyForReview(cartID string) {
	c.t.Helper()
	require.Equal(c.t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/addresses", AddressesRequestDTO{
		Email:           "shopper@example.com",
		ShippingAddress: domain.Address{FirstName: "Ana", Address1: "Calle Mayor 1", City: "Madrid", CountryCode: "es"},
	}, nil))
	require.Equal(c.t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/shipping-method", ShippingMethodRequestDTO{OptionID: "so_standard"}, nil))
	require.Equal(c.t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/payment-session", PaymentSessionRequestDTO{ProviderID: stripe}, nil))
	c.backend.SetSessionStatus(cartID, stripe, domain.PaymentSessionAuthorized)
	require.Equal(c.t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/payment-authorization", AuthorizationRequestDTO{ProviderID: stripe}, nil))
}

func TestHealth(t *testing.T) {
	c := setupServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, c.call(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetCart_NoCartYet(t *testing.T) {
	c := setupServer(t)

	var cart CartResponse
	assert.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/cart", nil, &cart))
	assert.Nil(t, cart.Cart)
}

func TestSessionCookieIsIssuedOnce(t *testing.T) {
	c := setupServer(t)

	c.call(http.MethodGet, "/api/v1/cart", nil, nil)
	cookies := c.client.Jar.Cookies(mustURL(t, c.server.URL))
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)

	c.call(http.MethodGet, "/api/v1/cart", nil, nil)
	again := c.client.Jar.Cookies(mustURL(t, c.server.URL))
	assert.Equal(t, cookies[0].Value, again[0].Value)
}

func TestCartLifecycle(t *testing.T) {
	c := setupServer(t)
	cart := c.cartWithItem()
	itemID := cart.Items[0].ID
	assert.True(t, cart.Items[0].Selected)
	assert.Equal(t, int64(2000), cart.Totals.Total)
	assert.Equal(t, "20.00 EUR", cart.DisplayTotal)

	var updated CartResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPut, "/api/v1/cart/items/"+itemID, UpdateQuantityRequestDTO{Quantity: 3}, &updated))
	assert.Equal(t, 3, updated.Items[0].Quantity)
	assert.False(t, updated.Items[0].InFlight)
	assert.Equal(t, 3, c.backend.Cart(cart.Cart.ID).Items[0].Quantity)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, c.call(http.MethodPut, "/api/v1/cart/items/"+itemID, UpdateQuantityRequestDTO{Quantity: 0}, &errResp))
	assert.Equal(t, "invalid_quantity", errResp.Code)

	var deselected CartResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPut, "/api/v1/cart/items/"+itemID+"/selected", SelectItemRequestDTO{Selected: false}, &deselected))
	assert.False(t, deselected.Items[0].Selected)
	assert.Equal(t, int64(0), deselected.Totals.Total)

	var totalsResp map[string]int64
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/cart/totals", nil, &totalsResp))
	assert.Equal(t, int64(0), totalsResp["total"])

	var removed CartResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodDelete, "/api/v1/cart/items/"+itemID, nil, &removed))
	assert.Empty(t, removed.Items)
	assert.Empty(t, c.backend.Cart(cart.Cart.ID).Items)
}

func TestRemoveItem_AlreadyGoneIsNotAnError(t *testing.T) {
	c := setupServer(t)
	cart := c.cartWithItem()
	itemID := cart.Items[0].ID
	c.backend.Mutate(cart.Cart.ID, func(cart *domain.Cart) { cart.Items = nil })

	var removed CartResponse
	assert.Equal(t, http.StatusOK, c.call(http.MethodDelete, "/api/v1/cart/items/"+itemID, nil, &removed))
	assert.Empty(t, removed.Items)
}

func TestMutationsWithoutCart(t *testing.T) {
	c := setupServer(t)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, c.call(http.MethodPatch, "/api/v1/cart", UpdateCartRequestDTO{}, &errResp))
	assert.Equal(t, "no_cart", errResp.Code)

	assert.Equal(t, http.StatusNotFound, c.call(http.MethodPut, "/api/v1/cart/items/item_1", UpdateQuantityRequestDTO{Quantity: 1}, nil))
	assert.Equal(t, http.StatusNotFound, c.call(http.MethodGet, "/api/v1/checkout", nil, nil))
}

func TestInvalidJSON(t *testing.T) {
	c := setupServer(t)

	req, err := http.NewRequest(http.MethodPost, c.server.URL+"/api/v1/cart", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := c.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutStepsAreGated(t *testing.T) {
	c := setupServer(t)
	c.cartWithItem()

	var status CheckoutResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/checkout", nil, &status))
	assert.Equal(t, domain.StepAddress, status.Current)
	assert.False(t, status.Address)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusConflict, c.call(http.MethodPut, "/api/v1/checkout/step", GoToStepRequestDTO{Step: "payment"}, &errResp))
	assert.Equal(t, "step_locked", errResp.Code)

	assert.Equal(t, http.StatusBadRequest, c.call(http.MethodPut, "/api/v1/checkout/step", GoToStepRequestDTO{Step: "shipping"}, nil))
}

func TestCheckoutToOrder(t *testing.T) {
	c := setupServer(t)
	cart := c.cartWithItem()
	cartID := cart.Cart.ID

	var afterAddress CheckoutResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/addresses", AddressesRequestDTO{
		Email:           "shopper@example.com",
		ShippingAddress: domain.Address{Address1: "Calle Mayor 1", City: "Madrid", CountryCode: "es"},
	}, &afterAddress))
	assert.True(t, afterAddress.Address)
	assert.Equal(t, "Calle Mayor 1", afterAddress.Cart.BillingAddress.Address1, "billing copies shipping by default")
	require.Equal(t, http.StatusOK, c.call(http.MethodPut, "/api/v1/checkout/step", GoToStepRequestDTO{Step: "delivery"}, nil))

	var options map[string][]domain.ShippingOption
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/checkout/shipping-options", nil, &options))
	require.Len(t, options["shipping_options"], 1)
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/shipping-method", ShippingMethodRequestDTO{OptionID: "so_standard"}, nil))
	require.Equal(t, http.StatusOK, c.call(http.MethodPut, "/api/v1/checkout/step", GoToStepRequestDTO{Step: "payment"}, nil))

	var providers map[string][]domain.PaymentProvider
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/checkout/payment-providers", nil, &providers))
	assert.Equal(t, stripe, providers["payment_providers"][0].ID)

	var session PaymentSessionResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/payment-session", PaymentSessionRequestDTO{ProviderID: stripe}, &session))
	assert.NotEmpty(t, session.ClientSecret)
	assert.Equal(t, "pk_test", session.PublishableKey)

	var early ErrorResponse
	assert.Equal(t, http.StatusUnprocessableEntity, c.call(http.MethodPost, "/api/v1/checkout/complete", nil, &early))
	assert.Equal(t, []string{order.ProblemPayment}, early.Problems)

	c.backend.SetSessionStatus(cartID, stripe, domain.PaymentSessionAuthorized)
	var auth AuthorizationResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/payment-authorization", AuthorizationRequestDTO{ProviderID: stripe}, &auth))
	assert.Equal(t, domain.PaymentSessionAuthorized, auth.Session.Status)
	assert.Equal(t, domain.StepPayment, auth.Step)

	var review CheckoutResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPut, "/api/v1/checkout/step", GoToStepRequestDTO{Step: "review"}, &review))
	assert.Equal(t, domain.StepReview, review.Current)
	assert.True(t, review.Payment.Authorized)

	var redirect order.Redirect
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/complete", nil, &redirect))
	assert.Equal(t, "/order/confirmed/"+redirect.OrderID, redirect.Path)

	placed, err := c.ledger.GetPlacedOrder(context.Background(), cartID)
	require.NoError(t, err)
	assert.Equal(t, redirect.OrderID, placed.OrderID)

	var after CartResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/cart", nil, &after))
	assert.Nil(t, after.Cart, "the placed cart is no longer tracked")
}

func TestAuthorization_DeclineIsVerbatim(t *testing.T) {
	c := setupServer(t)
	c.cartWithItem()
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/payment-session", PaymentSessionRequestDTO{ProviderID: stripe}, nil))

	var errResp ErrorResponse
	code := c.call(http.MethodPost, "/api/v1/checkout/payment-authorization",
		AuthorizationRequestDTO{ProviderID: stripe, ProcessorError: "Your card has insufficient funds."}, &errResp)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "Your card has insufficient funds.", errResp.Error)

	var status CheckoutResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/checkout", nil, &status))
	assert.Equal(t, "Your card has insufficient funds.", status.Payment.Error)
}

func TestComplete_RefusedByBackend(t *testing.T) {
	c := setupServer(t)
	cart := c.cartWithItem()
	c.readyForReview(cart.Cart.ID)
	c.backend.Completion = func(cart *domain.Cart) *domain.CompletionResult {
		return &domain.CompletionResult{
			Type:  domain.CompletionCart,
			Cart:  cart,
			Error: &domain.CompletionError{Message: "Payment requires additional authentication."},
		}
	}

	var errResp ErrorResponse
	assert.Equal(t, http.StatusPaymentRequired, c.call(http.MethodPost, "/api/v1/checkout/complete", nil, &errResp))
	assert.Equal(t, "completion_failed", errResp.Code)
	assert.Equal(t, "Payment requires additional authentication.", errResp.Error)
}

func TestComplete_FailedCallKeepsBackendMessage(t *testing.T) {
	for _, code := range []codes.Code{codes.InvalidArgument, codes.Internal} {
		t.Run(code.String(), func(t *testing.T) {
			c := setupServer(t)
			cart := c.cartWithItem()
			c.readyForReview(cart.Cart.ID)
			c.backend.FailNext("CompleteCart", status.Error(code, "Your card was declined."))

			var errResp ErrorResponse
			assert.Equal(t, http.StatusPaymentRequired, c.call(http.MethodPost, "/api/v1/checkout/complete", nil, &errResp))
			assert.Equal(t, "completion_failed", errResp.Code)
			assert.Equal(t, "Your card was declined.", errResp.Error)
		})
	}
}

func TestPaymentSession_SwitchingProviderResetsPayment(t *testing.T) {
	c := setupServer(t)
	cart := c.cartWithItem()
	c.readyForReview(cart.Cart.ID)

	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/checkout/payment-session", PaymentSessionRequestDTO{ProviderID: "pp_system_default"}, nil))

	var state CheckoutResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodGet, "/api/v1/checkout", nil, &state))
	assert.False(t, state.Status.Payment)
	assert.False(t, state.Payment.Authorized)
	assert.Equal(t, "pp_system_default", state.Payment.ProviderID)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusUnprocessableEntity, c.call(http.MethodPost, "/api/v1/checkout/complete", nil, &errResp))
	assert.Equal(t, []string{order.ProblemPayment}, errResp.Problems)
	assert.Equal(t, 0, c.backend.Calls("CompleteCart"))
}

func TestPaymentSession_RejectionIsShownAsIs(t *testing.T) {
	c := setupServer(t)
	c.cartWithItem()
	c.backend.FailNext("InitiatePaymentSession", status.Error(codes.InvalidArgument, "Provider pp_klarna is not enabled for region reg_eu"))

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/api/v1/checkout/payment-session", PaymentSessionRequestDTO{ProviderID: "pp_klarna"}, &errResp))
	assert.Equal(t, "Provider pp_klarna is not enabled for region reg_eu", errResp.Error)
	assert.Equal(t, 1, c.backend.Calls("InitiatePaymentSession"))
}

func TestPaymentSession_InitializationExhausted(t *testing.T) {
	c := setupServer(t)
	c.cartWithItem()
	c.backend.FailNext("InitiatePaymentSession", commercetest.Unavailable(), commercetest.Unavailable(), commercetest.Unavailable())

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadGateway, c.call(http.MethodPost, "/api/v1/checkout/payment-session", PaymentSessionRequestDTO{ProviderID: stripe}, &errResp))
	assert.Equal(t, "payment_initialization_failed", errResp.Code)
}

func TestPromotions(t *testing.T) {
	c := setupServer(t)
	c.cartWithItem()

	var cart CartResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/v1/cart/promotions", PromotionsRequestDTO{Codes: []string{"WELCOME10"}}, &cart))
	assert.Equal(t, []string{"WELCOME10"}, cart.Cart.PromotionCodes())

	var removed CartResponse
	require.Equal(t, http.StatusOK, c.call(http.MethodDelete, "/api/v1/cart/promotions/WELCOME10", nil, &removed))
	assert.Empty(t, removed.Cart.PromotionCodes())

	assert.Equal(t, http.StatusBadRequest, c.call(http.MethodPost, "/api/v1/cart/promotions", PromotionsRequestDTO{}, nil))
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
