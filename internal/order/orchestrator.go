// Package order turns a reviewed cart into an order.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/checkout"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/commerce"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/logger"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/outbox"
	"go.uber.org/zap"
)

const (
	ProblemShippingMethod = "select a shipping method"
	ProblemPayment        = "payment has not been authorized"
)

type CartStore interface {
	TrackedCartID(ctx context.Context, sessionID string) string
	Refresh(ctx context.Context, cartID string) (*domain.Cart, error)
	Complete(ctx context.Context, cartID string) (*domain.CompletionResult, error)
	Forget(ctx context.Context, sessionID string)
}

// Ledger remembers which carts already became orders.
type Ledger interface {
	GetPlacedOrder(ctx context.Context, cartID string) (*domain.PlacedOrder, error)
	RecordPlacedOrder(ctx context.Context, order *domain.PlacedOrder) error
}

// Releaser drops per-cart state kept by a component.
type Releaser interface {
	Release(cartID string)
}

// Redirect is where the shopper goes after a placed order.
type Redirect struct {
	OrderID string `json:"order_id"`
	Path    string `json:"redirect"`
}

func confirmation(orderID string) *Redirect {
	return &Redirect{OrderID: orderID, Path: "/order/confirmed/" + orderID}
}

type Orchestrator struct {
	store     CartStore
	ledger    Ledger
	flows     *checkout.Controller
	releasers []Releaser
	logger    *zap.Logger
}

func NewOrchestrator(store CartStore, ledger Ledger, flows *checkout.Controller, logger *zap.Logger, releasers ...Releaser) *Orchestrator {
	return &Orchestrator{
		store:     store,
		ledger:    ledger,
		flows:     flows,
		releasers: releasers,
		logger:    logger,
	}
}

// Place completes the session's cart. A cart that was already placed yields
// the recorded order again instead of a second completion request.
func (o *Orchestrator) Place(ctx context.Context, sessionID string) (*Redirect, error) {
	log := logger.WithTrace(ctx, o.logger).With(zap.String("session_id", sessionID))

	cartID := o.store.TrackedCartID(ctx, sessionID)
	if cartID == "" {
		return nil, domain.ErrNoCart
	}

	placed, err := o.ledger.GetPlacedOrder(ctx, cartID)
	if err != nil && !errors.Is(err, outbox.ErrPlacedOrderNotFound) {
		return nil, fmt.Errorf("failed to check placed order: %w", err)
	}
	if placed != nil {
		log.Info("cart already placed", zap.String("cart_id", cartID), zap.String("order_id", placed.OrderID))
		o.finish(ctx, sessionID, cartID)
		return confirmation(placed.OrderID), nil
	}

	cart, err := o.store.Refresh(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart %s: %w", cartID, err)
	}
	if err := Validate(cart); err != nil {
		return nil, err
	}

	result, err := o.store.Complete(ctx, cartID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		msg, ok := commerce.Message(err)
		if !ok || msg == "" {
			return nil, fmt.Errorf("failed to complete cart %s: %w", cartID, err)
		}
		log.Warn("cart completion failed", zap.String("cart_id", cartID), zap.Error(err))
		return nil, &CompletionError{Message: msg, Code: commerce.Code(err), Cart: cart, Err: err}
	}
	if result.Type != domain.CompletionOrder || result.Order == nil {
		cerr := &CompletionError{Cart: result.Cart}
		if result.Error != nil {
			cerr.Message = result.Error.Message
			cerr.Name = result.Error.Name
		}
		if cerr.Message == "" {
			cerr.Message = refusalReason(result.Cart)
		}
		log.Warn("cart completion refused", zap.String("cart_id", cartID), zap.String("reason", cerr.Message))
		return nil, cerr
	}

	order := result.Order
	err = o.ledger.RecordPlacedOrder(ctx, &domain.PlacedOrder{
		CartID:    cartID,
		OrderID:   order.ID,
		SessionID: sessionID,
		Total:     order.Total,
		Currency:  order.CurrencyCode,
		PlacedAt:  time.Now().UTC(),
	})
	switch {
	case errors.Is(err, outbox.ErrAlreadyPlaced):
		log.Info("placed order recorded concurrently", zap.String("cart_id", cartID))
	case err != nil:
		// the order exists at the backend; a missing record only costs the event
		log.Error("failed to record placed order", zap.String("cart_id", cartID), zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := o.flows.Flow(cart).MarkComplete(cart); err != nil {
		log.Warn("checkout flow not marked complete", zap.Error(err))
	}
	o.finish(ctx, sessionID, cartID)

	log.Info("order placed", zap.String("cart_id", cartID), zap.String("order_id", order.ID))
	return confirmation(order.ID), nil
}

func (o *Orchestrator) finish(ctx context.Context, sessionID, cartID string) {
	o.store.Forget(ctx, sessionID)
	o.flows.Release(cartID)
	for _, r := range o.releasers {
		r.Release(cartID)
	}
}

// Validate re-checks the conditions for placing the order.
func Validate(cart *domain.Cart) error {
	var problems []string
	if !checkout.DeliveryComplete(cart) {
		problems = append(problems, ProblemShippingMethod)
	}
	if !checkout.PaymentComplete(cart) {
		problems = append(problems, ProblemPayment)
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
