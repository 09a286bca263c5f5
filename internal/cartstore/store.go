// Package cartstore keeps the per-session cart reference and reads and writes
// carts on the commerce backend, with a snapshot cache in front of reads.
package cartstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cache"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/commerce"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/logger"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backend is the slice of the commerce store API the storefront needs.
type Backend interface {
	RetrieveCart(ctx context.Context, cartID string) (*domain.Cart, error)
	CreateCart(ctx context.Context, regionID string) (*domain.Cart, error)
	UpdateCart(ctx context.Context, cartID string, update domain.CartUpdate) (*domain.Cart, error)
	AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*domain.Cart, error)
	UpdateLineItem(ctx context.Context, cartID, itemID string, quantity int) (*domain.Cart, error)
	DeleteLineItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error)
	AddShippingMethod(ctx context.Context, cartID, optionID string) (*domain.Cart, error)
	ListShippingOptions(ctx context.Context, cartID string) ([]domain.ShippingOption, error)
	ApplyPromotions(ctx context.Context, cartID string, promoCodes []string) (*domain.Cart, error)
	RemovePromotions(ctx context.Context, cartID string, promoCodes []string) (*domain.Cart, error)
	CreatePaymentCollection(ctx context.Context, cartID string) (*domain.PaymentCollection, error)
	InitiatePaymentSession(ctx context.Context, collectionID, providerID string, data map[string]any) (*domain.PaymentCollection, error)
	ListPaymentProviders(ctx context.Context, regionID string) ([]domain.PaymentProvider, error)
	CompleteCart(ctx context.Context, cartID string) (*domain.CompletionResult, error)
}

type Store struct {
	backend Backend
	cache   cache.CartCache
	refs    repository.CartRefRepository
	sfg     singleflight.Group // one backend fetch per cart id at a time
	logger  *zap.Logger
}

func New(backend Backend, cartCache cache.CartCache, refs repository.CartRefRepository, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		cache:   cartCache,
		refs:    refs,
		logger:  logger,
	}
}

// AddressInput is the address step submission.
type AddressInput struct {
	Email    string
	Shipping domain.Address
	Billing  *domain.Address
	// SameAsBilling makes the billing address a copy of the shipping address.
	SameAsBilling bool
}

// TrackedCartID returns the cart id the session works on, or "" if none.
func (s *Store) TrackedCartID(ctx context.Context, sessionID string) string {
	if sessionID == "" {
		return ""
	}
	ref, err := s.refs.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrRefNotFound) {
			s.log(ctx).Warn("cart reference lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return ""
	}
	return ref.CartID
}

// Retrieve returns the cart, or nil when there is none or it could not be
// fetched. An empty cartID means the session's tracked cart. Failures are
// logged, never returned.
func (s *Store) Retrieve(ctx context.Context, sessionID, cartID string) *domain.Cart {
	if cartID == "" {
		cartID = s.TrackedCartID(ctx, sessionID)
	}
	if cartID == "" {
		return nil
	}

	v, err, _ := s.sfg.Do(cartID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log(ctx).Warn("cache get error", zap.String("cart_id", cartID), zap.Error(err))
		}

		cart, err = s.backend.RetrieveCart(ctx, cartID)
		if err != nil {
			return nil, err
		}

		// written before returning so a later Invalidate cannot be overtaken
		if errSet := s.cache.Set(ctx, cart); errSet != nil {
			s.log(ctx).Warn("cache set error", zap.String("cart_id", cart.ID), zap.Error(errSet))
		}
		return cart, nil
	})
	if err != nil {
		if commerce.IsNotFound(err) && sessionID != "" {
			// the cart is gone on the backend, stop tracking it
			s.dropRef(ctx, sessionID)
		}
		s.log(ctx).Warn("cart retrieve failed", zap.String("cart_id", cartID), zap.Error(err))
		return nil
	}

	// snapshots are shared between singleflight callers and the cache writer
	return v.(*domain.Cart).Clone()
}

// Refresh fetches the cart from the backend bypassing the cache and stores
// the fresh snapshot. Unlike Retrieve it reports failures.
func (s *Store) Refresh(ctx context.Context, cartID string) (*domain.Cart, error) {
	cart, err := s.backend.RetrieveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if errSet := s.cache.Set(ctx, cart); errSet != nil {
		s.log(ctx).Warn("cache set error", zap.String("cart_id", cartID), zap.Error(errSet))
	}
	return cart.Clone(), nil
}

// GetOrCreate returns the session's cart in the given region, moving an
// existing cart to the region or starting a new cart when needed.
func (s *Store) GetOrCreate(ctx context.Context, sessionID, regionID string) (*domain.Cart, error) {
	cart := s.Retrieve(ctx, sessionID, "")
	if cart == nil {
		return s.create(ctx, sessionID, regionID)
	}
	if regionID == "" || cart.RegionID == regionID {
		return cart, nil
	}

	updated, err := s.backend.UpdateCart(ctx, cart.ID, domain.CartUpdate{RegionID: &regionID})
	if err != nil {
		s.log(ctx).Warn("cart region update failed, starting a new cart",
			zap.String("cart_id", cart.ID),
			zap.String("region_id", regionID),
			zap.Error(err))
		return s.create(ctx, sessionID, regionID)
	}
	s.Invalidate(cart.ID)
	if err := s.track(ctx, sessionID, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) create(ctx context.Context, sessionID, regionID string) (*domain.Cart, error) {
	cart, err := s.backend.CreateCart(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	if err := s.track(ctx, sessionID, cart); err != nil {
		return nil, err
	}
	s.log(ctx).Info("cart created", zap.String("cart_id", cart.ID), zap.String("region_id", regionID))
	return cart, nil
}

// Update applies a partial update to the tracked cart.
func (s *Store) Update(ctx context.Context, sessionID string, update domain.CartUpdate) (*domain.Cart, error) {
	cartID, err := s.requireCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cart, err := s.backend.UpdateCart(ctx, cartID, update)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cartID)
	if update.RegionID != nil {
		if err := s.track(ctx, sessionID, cart); err != nil {
			return nil, err
		}
	}
	return cart, nil
}

// AddItem adds a variant to the session's cart, creating the cart if needed.
func (s *Store) AddItem(ctx context.Context, sessionID, regionID, variantID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	cart, err := s.GetOrCreate(ctx, sessionID, regionID)
	if err != nil {
		return nil, err
	}
	updated, err := s.backend.AddLineItem(ctx, cart.ID, variantID, quantity)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cart.ID)
	return updated, nil
}

func (s *Store) UpdateLineItem(ctx context.Context, cartID, itemID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	cart, err := s.backend.UpdateLineItem(ctx, cartID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cartID)
	return cart, nil
}

func (s *Store) DeleteLineItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	cart, err := s.backend.DeleteLineItem(ctx, cartID, itemID)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cartID)
	return cart, nil
}

// SetAddresses stores the shipping and billing addresses and the contact email.
func (s *Store) SetAddresses(ctx context.Context, sessionID string, in AddressInput) (*domain.Cart, error) {
	cartID, err := s.requireCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	shipping := in.Shipping
	billing := shipping
	if !in.SameAsBilling && in.Billing != nil {
		billing = *in.Billing
	}
	update := domain.CartUpdate{
		ShippingAddress: &shipping,
		BillingAddress:  &billing,
	}
	if in.Email != "" {
		email := in.Email
		update.Email = &email
	}

	cart, err := s.backend.UpdateCart(ctx, cartID, update)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cartID)
	return cart, nil
}

func (s *Store) SetShippingMethod(ctx context.Context, sessionID, optionID string) (*domain.Cart, error) {
	cartID, err := s.requireCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cart, err := s.backend.AddShippingMethod(ctx, cartID, optionID)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cartID)
	return cart, nil
}

func (s *Store) ListShippingOptions(ctx context.Context, sessionID string) ([]domain.ShippingOption, error) {
	cartID, err := s.requireCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.backend.ListShippingOptions(ctx, cartID)
}

func (s *Store) ApplyPromotions(ctx context.Context, sessionID string, promoCodes []string) (*domain.Cart, error) {
	cartID, err := s.requireCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cart, err := s.backend.ApplyPromotions(ctx, cartID, promoCodes)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cartID)
	return cart, nil
}

func (s *Store) RemovePromotions(ctx context.Context, sessionID string, promoCodes []string) (*domain.Cart, error) {
	cartID, err := s.requireCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cart, err := s.backend.RemovePromotions(ctx, cartID, promoCodes)
	if err != nil {
		return nil, err
	}
	s.Invalidate(cartID)
	return cart, nil
}

// InitiatePaymentSession creates the cart's payment collection when missing
// and starts a session for the provider on it.
func (s *Store) InitiatePaymentSession(ctx context.Context, cart *domain.Cart, providerID string, data map[string]any) (*domain.PaymentCollection, error) {
	collectionID := ""
	if cart.PaymentCollection != nil {
		collectionID = cart.PaymentCollection.ID
	}
	if collectionID == "" {
		col, err := s.backend.CreatePaymentCollection(ctx, cart.ID)
		if err != nil {
			return nil, fmt.Errorf("create payment collection: %w", err)
		}
		collectionID = col.ID
	}

	col, err := s.backend.InitiatePaymentSession(ctx, collectionID, providerID, data)
	s.Invalidate(cart.ID)
	if err != nil {
		return nil, fmt.Errorf("initiate payment session: %w", err)
	}
	return col, nil
}

func (s *Store) ListPaymentProviders(ctx context.Context, regionID string) ([]domain.PaymentProvider, error) {
	return s.backend.ListPaymentProviders(ctx, regionID)
}

// Complete asks the backend to place the order for the cart.
func (s *Store) Complete(ctx context.Context, cartID string) (*domain.CompletionResult, error) {
	result, err := s.backend.CompleteCart(ctx, cartID)
	s.Invalidate(cartID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Forget stops tracking the session's cart, e.g. after the order was placed.
func (s *Store) Forget(ctx context.Context, sessionID string) {
	cartID := s.TrackedCartID(ctx, sessionID)
	s.dropRef(ctx, sessionID)
	if cartID != "" {
		s.Invalidate(cartID)
	}
}

// ForgetCart drops every session reference to the cart and its snapshot.
func (s *Store) ForgetCart(ctx context.Context, cartID string) (int64, error) {
	s.Invalidate(cartID)
	deleted, err := s.refs.DeleteByCartID(ctx, cartID)
	if err != nil {
		return 0, fmt.Errorf("forget cart %s: %w", cartID, err)
	}
	return deleted, nil
}

// Invalidate drops the cached snapshot of the cart.
func (s *Store) Invalidate(cartID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, cartID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("cart_id", cartID), zap.Error(err))
	}
}

func (s *Store) requireCart(ctx context.Context, sessionID string) (string, error) {
	cartID := s.TrackedCartID(ctx, sessionID)
	if cartID == "" {
		return "", domain.ErrNoCart
	}
	return cartID, nil
}

func (s *Store) track(ctx context.Context, sessionID string, cart *domain.Cart) error {
	if sessionID == "" {
		return nil
	}
	ref := &domain.CartRef{SessionID: sessionID, CartID: cart.ID, RegionID: cart.RegionID}
	if err := s.refs.Save(ctx, ref); err != nil {
		return fmt.Errorf("track cart %s: %w", cart.ID, err)
	}
	return nil
}

func (s *Store) dropRef(ctx context.Context, sessionID string) {
	if err := s.refs.Delete(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrRefNotFound) {
		s.log(ctx).Warn("cart reference delete failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Store) log(ctx context.Context) *zap.Logger {
	return logger.WithTrace(ctx, s.logger)
}
