package inventory

import "context"

// Repository is the read side of the backing store this service consumes.
type Repository interface {
	ListFinishedGoods(ctx context.Context, publicOnly bool) ([]Batch, error)
	ListRecipes(ctx context.Context) ([]Recipe, error)
}

// SnapshotSource is implemented by stores that can push full batch snapshots
// when stock changes. The returned unsubscribe stops delivery and releases
// whatever the subscription holds.
type SnapshotSource interface {
	SubscribeBatches(fn func([]Batch)) (unsubscribe func(), err error)
}
