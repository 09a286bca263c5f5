package cache

import (
	"context"
	"errors"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
)

// CartCache holds server-confirmed cart snapshots keyed by cart id.
type CartCache interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, cartID string) error
}

var ErrCacheMiss = errors.New("cache miss")
