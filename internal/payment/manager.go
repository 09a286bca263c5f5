// Package payment obtains payment sessions for a cart and tracks whether the
// chosen provider has authorized the payment.
package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/commerce"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/logger"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/retry"
	"go.uber.org/zap"
)

// CartStore is what the manager needs from the cart store.
type CartStore interface {
	Refresh(ctx context.Context, cartID string) (*domain.Cart, error)
	InitiatePaymentSession(ctx context.Context, cart *domain.Cart, providerID string, data map[string]any) (*domain.PaymentCollection, error)
	ListPaymentProviders(ctx context.Context, regionID string) ([]domain.PaymentProvider, error)
}

// Widget is the processor's embedded payment form.
type Widget interface {
	// Submit confirms the payment for the session. A returned error carries
	// the processor's message for the user.
	Submit(ctx context.Context, session *domain.PaymentSession) error
}

type Manager struct {
	store  CartStore
	policy retry.Policy
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]*State // cartID -> state
}

func NewManager(store CartStore, policy retry.Policy, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		policy: policy,
		logger: logger,
		states: make(map[string]*State),
	}
}

// State returns the payment state of the cart.
func (m *Manager) State(cartID string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[cartID]
	if !ok {
		st = &State{}
		m.states[cartID] = st
	}
	return st
}

// Release forgets the cart's payment state.
func (m *Manager) Release(cartID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, cartID)
}

// InitiateSession makes sure the cart has a payment collection, selects the
// provider on it and refetches the cart until the session carries the
// processor payload. The whole sequence is retried under the policy.
func (m *Manager) InitiateSession(ctx context.Context, cart *domain.Cart, providerID string) (*domain.PaymentSession, error) {
	log := logger.WithTrace(ctx, m.logger).With(zap.String("cart_id", cart.ID), zap.String("provider_id", providerID))

	current := cart
	attempts := 0
	var session *domain.PaymentSession

	err := m.policy.Do(ctx, func(attempt int) error {
		attempts = attempt
		if _, err := m.store.InitiatePaymentSession(ctx, current, providerID, nil); err != nil {
			log.Warn("payment session selection failed", zap.Int("attempt", attempt), zap.Error(err))
			return retryable(err)
		}

		refreshed, err := m.store.Refresh(ctx, cart.ID)
		if err != nil {
			log.Warn("cart refetch after session selection failed", zap.Int("attempt", attempt), zap.Error(err))
			return retryable(err)
		}
		current = refreshed

		s := refreshed.ActiveSession(providerID)
		if !s.HasPayload() {
			log.Debug("payment session payload not ready", zap.Int("attempt", attempt))
			return errPayloadMissing
		}
		session = s
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if !commerce.IsTransient(err) {
			// e.g. the provider is not enabled for the region; shown as is
			log.Warn("payment session rejected", zap.Int("attempts", attempts), zap.Error(err))
			return nil, err
		}
		log.Error("payment session initialization failed", zap.Int("attempts", attempts), zap.Error(err))
		return nil, &InitializationError{ProviderID: providerID, Attempts: attempts, Err: err}
	}

	m.State(cart.ID).selectSession(providerID, session)
	log.Info("payment session ready", zap.String("session_id", session.ID))
	return session, nil
}

// Authorize submits the provider's payment form and reports the session
// status the backend holds afterwards. Sessions that ended in error or were
// canceled clear the selection so the user picks a provider again;
// requires_more keeps it for another round of client interaction.
func (m *Manager) Authorize(ctx context.Context, cart *domain.Cart, providerID string, widget Widget) (*domain.PaymentSession, error) {
	session := cart.ActiveSession(providerID)
	if session == nil {
		return nil, ErrNoSession
	}

	st := m.State(cart.ID)
	st.startSubmit()

	if err := widget.Submit(ctx, session); err != nil {
		st.finishSubmit(err.Error())
		if errors.Is(err, ErrNoSession) || ctx.Err() != nil {
			return nil, err
		}
		var perr *ProcessorError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, &ProcessorError{Message: err.Error()}
	}

	refreshed, err := m.store.Refresh(ctx, cart.ID)
	if err != nil {
		st.finishSubmit("")
		return nil, err
	}
	session = refreshed.ActiveSession(providerID)
	if session == nil {
		st.finishSubmit("")
		st.clearSelection()
		return nil, ErrNoSession
	}

	switch {
	case session.Status.NeedsReselection():
		st.clearSelection()
	default:
		st.selectSession(providerID, session)
	}
	st.finishSubmit("")

	logger.WithTrace(ctx, m.logger).Info("payment submitted",
		zap.String("cart_id", cart.ID),
		zap.String("provider_id", providerID),
		zap.Stringer("status", session.Status))
	return session, nil
}

// retryable stops the retry loop for failures the backend will keep refusing.
func retryable(err error) error {
	if !commerce.IsTransient(err) {
		return retry.Permanent(err)
	}
	return err
}

func (m *Manager) ListProviders(ctx context.Context, regionID string) ([]domain.PaymentProvider, error) {
	return m.store.ListPaymentProviders(ctx, regionID)
}
