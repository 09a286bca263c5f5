package domain

import "errors"

var (
	// ErrNoCart is the NoCartError: a mutation was requested with no tracked cart.
	ErrNoCart          = errors.New("no cart is tracked for this session")
	ErrItemNotFound    = errors.New("line item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)
