package order

import (
	"context"

	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
)

// CartPort is the slice of the cart service the submit flow needs.
type CartPort interface {
	Get(ctx context.Context, id string) (*domcart.Cart, error)
	RemoveSubmitted(ctx context.Context, id string, submitted map[dominv.ProductKey]int) (*domcart.Cart, error)
}
