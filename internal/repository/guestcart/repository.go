// Package guestcart persists anonymous shoppers' carts on their behalf.
package guestcart

import (
	"context"

	"storefront-core/internal/domain"
)

// Repository stores one cart per guest id. Load returns an empty slice, not an
// error, for a guest that has never saved a cart.
type Repository interface {
	Load(ctx context.Context, guestID string) ([]domain.CartLine, error)
	Save(ctx context.Context, guestID string, lines []domain.CartLine) error
	Delete(ctx context.Context, guestID string) error
	Ping(ctx context.Context) error
}
