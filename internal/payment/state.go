package payment

import (
	"sync"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
)

// State is the payment readiness of one cart, shared by the provider
// selection, the payment form and the order summary. The manager is the only
// writer of the selection and session; the authorization flow is the only
// writer of the submitting flag and error.
type State struct {
	mu               sync.RWMutex
	selectedProvider string
	session          *domain.PaymentSession
	submitting       bool
	lastError        string
}

func (s *State) SelectedProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedProvider
}

func (s *State) Session() *domain.PaymentSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	session := *s.session
	return &session
}

func (s *State) Submitting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submitting
}

// Error is the last processor message shown to the user, if any.
func (s *State) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Authorized reports whether the selected session permits placing the order.
func (s *State) Authorized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil && s.session.Status == domain.PaymentSessionAuthorized
}

func (s *State) selectSession(providerID string, session *domain.PaymentSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedProvider = providerID
	s.session = session
}

func (s *State) clearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedProvider = ""
	s.session = nil
}

func (s *State) startSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = true
	s.lastError = ""
}

func (s *State) finishSubmit(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	s.lastError = message
}
