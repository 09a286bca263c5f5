package order

import (
	"strings"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"google.golang.org/grpc/codes"
)

// ValidationError lists what still blocks placing the order. It is shown to
// the shopper as is and never retried.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "checkout incomplete: " + strings.Join(e.Problems, "; ")
}

// CompletionError is a completion the backend refused. Message is the
// backend's own text, e.g. the processor's decline reason.
//
// Code is codes.OK when the backend answered with the cart instead of an
// order, otherwise the class of the failed completion call.
type CompletionError struct {
	Message string
	Name    string
	Code    codes.Code
	Cart    *domain.Cart
	Err     error
}

func (e *CompletionError) Error() string {
	return e.Message
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// refusalReason explains a refused completion that came without a message,
// using what the returned cart shows.
func refusalReason(cart *domain.Cart) string {
	if s := cart.SelectedSession(); s != nil {
		switch s.Status {
		case domain.PaymentSessionRequiresMore:
			return "payment requires additional action"
		case domain.PaymentSessionError, domain.PaymentSessionCanceled:
			return "payment was not completed, choose a payment method again"
		case domain.PaymentSessionPending:
			return "payment has not been authorized yet"
		}
	}
	return "the order could not be placed"
}
