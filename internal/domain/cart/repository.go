package cart

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
	// Range visits every stored cart. Returning an error stops the walk.
	Range(ctx context.Context, fn func(*Cart) error) error
}
