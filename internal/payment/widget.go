package payment

import (
	"context"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
)

// ClientWidget is a payment form that runs in the shopper's browser. The
// browser confirms the payment with the processor SDK and reports the outcome;
// Submit hands that outcome to the authorization flow.
type ClientWidget struct {
	// Failure is the processor message the browser received, empty on success.
	Failure string
}

func (w ClientWidget) Submit(_ context.Context, session *domain.PaymentSession) error {
	if !session.HasPayload() {
		return ErrNoSession
	}
	if w.Failure != "" {
		return &ProcessorError{Message: w.Failure}
	}
	return nil
}

// WidgetFunc adapts a function to Widget.
type WidgetFunc func(ctx context.Context, session *domain.PaymentSession) error

func (f WidgetFunc) Submit(ctx context.Context, session *domain.PaymentSession) error {
	return f(ctx, session)
}
