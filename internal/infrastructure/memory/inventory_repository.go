package memory

import (
	"context"
	"errors"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
)

var ErrBatchNotFound = errors.New("memory: batch not found")

// InventoryRepository is an in-memory finished-goods store. It implements
// domain.Repository and pushes full snapshots to SubscribeBatches listeners
// after every write.
type InventoryRepository struct {
	mu      sync.RWMutex
	batches []domain.Batch
	recipes []domain.Recipe

	subMu  sync.Mutex
	subs   map[uint64]func([]domain.Batch)
	nextID uint64
}

func NewInventoryRepository(batches ...domain.Batch) *InventoryRepository {
	return &InventoryRepository{
		batches: append([]domain.Batch(nil), batches...),
		subs:    make(map[uint64]func([]domain.Batch)),
	}
}

func (r *InventoryRepository) ListFinishedGoods(ctx context.Context, publicOnly bool) ([]domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Batch, 0, len(r.batches))
	for _, b := range r.batches {
		if publicOnly && !b.Public {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *InventoryRepository) ListRecipes(ctx context.Context) ([]domain.Recipe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Recipe(nil), r.recipes...), nil
}

// PutBatch inserts b or replaces the batch with the same ID.
func (r *InventoryRepository) PutBatch(b domain.Batch) error {
	if b.Quantity < 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	replaced := false
	for i := range r.batches {
		if r.batches[i].ID == b.ID {
			r.batches[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		r.batches = append(r.batches, b)
	}
	snapshot := append([]domain.Batch(nil), r.batches...)
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// SetQuantity changes the stock of one batch, e.g. after an offline sale.
func (r *InventoryRepository) SetQuantity(batchID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	found := false
	for i := range r.batches {
		if r.batches[i].ID == batchID {
			r.batches[i].Quantity = quantity
			found = true
			break
		}
	}
	snapshot := append([]domain.Batch(nil), r.batches...)
	r.mu.Unlock()

	if !found {
		return ErrBatchNotFound
	}
	r.notify(snapshot)
	return nil
}

func (r *InventoryRepository) PutRecipe(rec domain.Recipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recipes {
		if r.recipes[i].Name == rec.Name {
			r.recipes[i] = rec
			return
		}
	}
	r.recipes = append(r.recipes, rec)
}

func (r *InventoryRepository) SubscribeBatches(fn func([]domain.Batch)) (func(), error) {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
		})
	}, nil
}

// notify delivers synchronously while holding subMu, so an unsubscribe that
// returned is never followed by a delivery.
func (r *InventoryRepository) notify(snapshot []domain.Batch) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, fn := range r.subs {
		fn(append([]domain.Batch(nil), snapshot...))
	}
}
