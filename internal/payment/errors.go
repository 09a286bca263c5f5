package payment

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession      = errors.New("no payment session for the selected provider")
	errPayloadMissing = errors.New("payment session payload is not available yet")
)

// InitializationError is returned once every attempt to obtain a usable
// payment session has failed.
type InitializationError struct {
	ProviderID string
	Attempts   int
	Err        error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("payment session for %s could not be initialized after %d attempts: %v", e.ProviderID, e.Attempts, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// ProcessorError carries the payment processor's own message, unchanged.
type ProcessorError struct {
	Message string
}

func (e *ProcessorError) Error() string {
	return e.Message
}
