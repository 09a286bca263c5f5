package repository

import (
	"context"
	"errors"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
)

var ErrRefNotFound = errors.New("cart reference not found")

// CartRefRepository persists which cart a storefront session is working on.
type CartRefRepository interface {
	Get(ctx context.Context, sessionID string) (*domain.CartRef, error)
	Save(ctx context.Context, ref *domain.CartRef) error
	Delete(ctx context.Context, sessionID string) error
	DeleteByCartID(ctx context.Context, cartID string) (int64, error)
}
