package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
)

type idGenerator interface {
	NewID() string
}

const maxIDAttempts = 3

type OrderRepository struct {
	mu        sync.RWMutex
	orders    map[string]*domain.Order
	ids       idGenerator
	createErr error
}

func NewOrderRepository(ids idGenerator) *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
		ids:    ids,
	}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("order repository: order is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}

	id := r.ids.NewID()
	for attempt := 1; ; attempt++ {
		if _, exists := r.orders[id]; !exists {
			break
		}
		if attempt == maxIDAttempts {
			return fmt.Errorf("order repository: no free order id after %d attempts", maxIDAttempts)
		}
		id = r.ids.NewID()
	}
	o.ID = id
	o.CreatedAt = time.Now().UTC()
	r.orders[id] = o.Clone()
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

// FailCreate makes every following Create return err; nil restores normal behaviour.
func (r *OrderRepository) FailCreate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

func (r *OrderRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
