package domain

import "time"

type Order struct {
	ID           string     `json:"id"`
	DisplayID    int64      `json:"display_id,omitempty"`
	CartID       string     `json:"cart_id,omitempty"`
	Email        string     `json:"email,omitempty"`
	CurrencyCode string     `json:"currency_code"`
	Total        int64      `json:"total"`
	Items        []LineItem `json:"items,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
}

type CompletionType string

const (
	CompletionOrder CompletionType = "order"
	CompletionCart  CompletionType = "cart"
)

type CompletionError struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
}

// CompletionResult is the discriminated reply of a cart completion request.
type CompletionResult struct {
	Type  CompletionType   `json:"type"`
	Order *Order           `json:"order,omitempty"`
	Cart  *Cart            `json:"cart,omitempty"`
	Error *CompletionError `json:"error,omitempty"`
}

// PlacedOrder records a successful completion so a repeated submit is idempotent.
type PlacedOrder struct {
	CartID    string
	OrderID   string
	SessionID string
	Total     int64
	Currency  string
	PlacedAt  time.Time
}
