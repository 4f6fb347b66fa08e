package order

import "context"

type Repository interface {
	// Create persists o and sets o.ID and o.CreatedAt. The error message is
	// shown to the customer as is.
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
}
