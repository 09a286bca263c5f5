package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cache"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cartstore"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/checkout"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/commerce/commercetest"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/outbox"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/repository"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type memLedger struct {
	mu        sync.Mutex
	orders    map[string]*domain.PlacedOrder
	recordErr error
}

func newLedger() *memLedger {
	return &memLedger{orders: make(map[string]*domain.PlacedOrder)}
}

func (l *memLedger) GetPlacedOrder(_ context.Context, cartID string) (*domain.PlacedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[cartID]
	if !ok {
		return nil, outbox.ErrPlacedOrderNotFound
	}
	return o, nil
}

func (l *memLedger) RecordPlacedOrder(_ context.Context, o *domain.PlacedOrder) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	if _, ok := l.orders[o.CartID]; ok {
		return outbox.ErrAlreadyPlaced
	}
	l.orders[o.CartID] = o
	return nil
}

type releaseRecorder struct {
	released []string
}

func (r *releaseRecorder) Release(cartID string) {
	r.released = append(r.released, cartID)
}

type fixture struct {
	orchestrator *Orchestrator
	backend      *commercetest.Backend
	store        *cartstore.Store
	ledger       *memLedger
	released     *releaseRecorder
}

func reviewedCart() *domain.Cart {
	return &domain.Cart{
		ID:              "cart_1",
		RegionID:        "reg_eu",
		Email:           "shopper@example.com",
		CurrencyCode:    "eur",
		Items:           []domain.LineItem{{ID: "item_1", VariantID: "variant_1", Quantity: 2, UnitPrice: 1000}},
		ShippingAddress: &domain.Address{Address1: "Calle Mayor 1", City: "Madrid", CountryCode: "es"},
		ShippingMethods: []domain.ShippingMethod{{ID: "sm_1", ShippingOptionID: "so_standard", Amount: 495}},
		ShippingTotal:   495,
		PaymentCollection: &domain.PaymentCollection{
			ID: "pay_col_cart_1",
			PaymentSessions: []domain.PaymentSession{
				{ID: "ps_1", ProviderID: "pp_stripe_stripe", Status: domain.PaymentSessionAuthorized},
			},
		},
	}
}

func setup(t *testing.T, cart *domain.Cart) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backend := commercetest.NewBackend()
	backend.Put(cart)

	refs := repository.NewMemoryRepository()
	require.NoError(t, refs.Save(context.Background(), &domain.CartRef{SessionID: "sess_1", CartID: cart.ID, RegionID: cart.RegionID}))

	store := cartstore.New(backend, cache.NewRedisCache(client), refs, zap.NewNop())
	ledger := newLedger()
	released := &releaseRecorder{}
	return &fixture{
		orchestrator: NewOrchestrator(store, ledger, checkout.NewController(), zap.NewNop(), released),
		backend:      backend,
		store:        store,
		ledger:       ledger,
		released:     released,
	}
}

func TestPlace_Success(t *testing.T) {
	f := setup(t, reviewedCart())
	ctx := context.Background()

	redirect, err := f.orchestrator.Place(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "order_01", redirect.OrderID)
	assert.Equal(t, "/order/confirmed/order_01", redirect.Path)

	placed, err := f.ledger.GetPlacedOrder(ctx, "cart_1")
	require.NoError(t, err)
	assert.Equal(t, "order_01", placed.OrderID)
	assert.Equal(t, "sess_1", placed.SessionID)
	assert.Equal(t, int64(2495), placed.Total)

	assert.Empty(t, f.store.TrackedCartID(ctx, "sess_1"), "tracked cart must be cleared")
	assert.Equal(t, []string{"cart_1"}, f.released.released)
}

func TestPlace_ValidationListsEveryProblem(t *testing.T) {
	cart := reviewedCart()
	cart.ShippingMethods = nil
	cart.PaymentCollection.PaymentSessions[0].Status = domain.PaymentSessionPending
	f := setup(t, cart)

	redirect, err := f.orchestrator.Place(context.Background(), "sess_1")

	assert.Nil(t, redirect)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{ProblemShippingMethod, ProblemPayment}, verr.Problems)
	assert.Equal(t, 0, f.backend.Calls("CompleteCart"))
	assert.Equal(t, "cart_1", f.store.TrackedCartID(context.Background(), "sess_1"))
}

func TestPlace_ZeroTotalNeedsNoPayment(t *testing.T) {
	cart := reviewedCart()
	cart.PaymentCollection = nil
	cart.GiftCardTotal = 5000
	f := setup(t, cart)

	redirect, err := f.orchestrator.Place(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.NotEmpty(t, redirect.OrderID)
}

func TestPlace_RefusedCompletionKeepsBackendMessage(t *testing.T) {
	f := setup(t, reviewedCart())
	f.backend.Completion = func(c *domain.Cart) *domain.CompletionResult {
		return &domain.CompletionResult{
			Type:  domain.CompletionCart,
			Cart:  c,
			Error: &domain.CompletionError{Message: "Your card was declined.", Name: "card_declined"},
		}
	}

	redirect, err := f.orchestrator.Place(context.Background(), "sess_1")

	assert.Nil(t, redirect)
	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Your card was declined.", err.Error())
	assert.Equal(t, "cart_1", cerr.Cart.ID)
	assert.Equal(t, "cart_1", f.store.TrackedCartID(context.Background(), "sess_1"))

	_, err = f.ledger.GetPlacedOrder(context.Background(), "cart_1")
	assert.ErrorIs(t, err, outbox.ErrPlacedOrderNotFound)
}

func TestPlace_AlreadyPlacedReturnsRecordedOrder(t *testing.T) {
	f := setup(t, reviewedCart())
	require.NoError(t, f.ledger.RecordPlacedOrder(context.Background(), &domain.PlacedOrder{CartID: "cart_1", OrderID: "order_77"}))

	redirect, err := f.orchestrator.Place(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "order_77", redirect.OrderID)
	assert.Equal(t, 0, f.backend.Calls("CompleteCart"))
	assert.Empty(t, f.store.TrackedCartID(context.Background(), "sess_1"))
}

func TestPlace_ConcurrentRecordIsTolerated(t *testing.T) {
	f := setup(t, reviewedCart())
	f.ledger.recordErr = outbox.ErrAlreadyPlaced

	redirect, err := f.orchestrator.Place(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "order_01", redirect.OrderID)
}

func TestPlace_RecordFailureStillRedirects(t *testing.T) {
	f := setup(t, reviewedCart())
	f.ledger.recordErr = errors.New("connection refused")

	redirect, err := f.orchestrator.Place(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "order_01", redirect.OrderID)
}

func TestPlace_FailedCompletionKeepsBackendMessage(t *testing.T) {
	tests := []struct {
		name string
		code codes.Code
	}{
		{name: "invalid argument", code: codes.InvalidArgument},
		{name: "internal", code: codes.Internal},
		{name: "unavailable", code: codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, reviewedCart())
			f.backend.FailNext("CompleteCart", status.Error(tt.code, "Your card was declined."))

			redirect, err := f.orchestrator.Place(context.Background(), "sess_1")

			assert.Nil(t, redirect)
			var cerr *CompletionError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, "Your card was declined.", err.Error())
			assert.Equal(t, tt.code, cerr.Code)
			assert.Equal(t, "cart_1", f.store.TrackedCartID(context.Background(), "sess_1"))

			_, err = f.ledger.GetPlacedOrder(context.Background(), "cart_1")
			assert.ErrorIs(t, err, outbox.ErrPlacedOrderNotFound)
		})
	}
}

func TestPlace_FailureWithoutBackendReplyIsNotACompletionError(t *testing.T) {
	f := setup(t, reviewedCart())
	f.backend.FailNext("CompleteCart", errors.New("connection reset by peer"))

	_, err := f.orchestrator.Place(context.Background(), "sess_1")
	require.Error(t, err)
	var cerr *CompletionError
	assert.False(t, errors.As(err, &cerr))
}

func TestPlace_RefusedWithoutMessageExplainsCartState(t *testing.T) {
	f := setup(t, reviewedCart())
	f.backend.Completion = func(c *domain.Cart) *domain.CompletionResult {
		c.PaymentCollection.PaymentSessions[0].Status = domain.PaymentSessionRequiresMore
		return &domain.CompletionResult{Type: domain.CompletionCart, Cart: c}
	}

	_, err := f.orchestrator.Place(context.Background(), "sess_1")

	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, codes.OK, cerr.Code)
	assert.Equal(t, "payment requires additional action", err.Error())
}

func TestPlace_SwitchedProviderBlocksPlacement(t *testing.T) {
	cart := reviewedCart()
	cart.PaymentCollection.PaymentSessions = append(cart.PaymentCollection.PaymentSessions,
		domain.PaymentSession{ID: "ps_2", ProviderID: "pp_system_default", Status: domain.PaymentSessionPending})
	f := setup(t, cart)

	_, err := f.orchestrator.Place(context.Background(), "sess_1")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{ProblemPayment}, verr.Problems)
	assert.Equal(t, 0, f.backend.Calls("CompleteCart"))
}

func TestPlace_NoCart(t *testing.T) {
	f := setup(t, reviewedCart())

	_, err := f.orchestrator.Place(context.Background(), "sess_unknown")
	assert.ErrorIs(t, err, domain.ErrNoCart)
}
