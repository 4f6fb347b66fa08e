package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appinv "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
)

const cartService = "cart-service"

var (
	ErrNotFound        = domain.ErrNotFound
	ErrSoldOut         = domain.ErrSoldOut
	ErrProductNotFound = errors.New("cart: product not found")
)

// Catalog reads the live stock ceiling for a product.
type Catalog interface {
	Listing(key dominv.ProductKey) (dominv.Listing, bool)
}

type IDGenerator interface {
	NewID() string
}

// Service owns every cart. One mutex serialises all mutations, including
// reconciliation against a new catalog snapshot.
type Service struct {
	mu      sync.Mutex
	repo    domain.Repository
	catalog Catalog
	ids     IDGenerator

	log       observability.Logger
	mutations observability.Counter // cart_mutations_total{op,outcome}
}

func NewService(repo domain.Repository, catalog Catalog, ids IDGenerator, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		ids:       ids,
		log:       tel.Logger().With(observability.F("service", cartService)),
		mutations: tel.Metrics().Counter(observability.MCartMutations),
	}
}

func (s *Service) Create(ctx context.Context) (_ *domain.Cart, err error) {
	defer s.count("create", &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	c := domain.New(s.ids.NewID())
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c.Clone(), nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Cart, error) {
	return s.repo.Get(ctx, id)
}

// Add puts one more unit of key into the cart, bounded by the ceiling the
// catalog reports right now.
func (s *Service) Add(ctx context.Context, id string, key dominv.ProductKey) (_ *domain.Cart, err error) {
	defer s.count("add", &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.catalog.Listing(key)
	if !ok {
		return nil, ErrProductNotFound
	}
	return s.mutate(ctx, id, func(c *domain.Cart) error {
		return c.AddOrIncrement(listing)
	})
}

func (s *Service) Remove(ctx context.Context, id string, key dominv.ProductKey) (_ *domain.Cart, err error) {
	defer s.count("remove", &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, id, func(c *domain.Cart) error {
		c.Remove(key)
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, id string) (_ *domain.Cart, err error) {
	defer s.count("clear", &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, id, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
}

// RemoveSubmitted deducts the quantities of a stored order from the cart.
// Units added while the order was in flight stay in the cart.
func (s *Service) RemoveSubmitted(ctx context.Context, id string, submitted map[dominv.ProductKey]int) (_ *domain.Cart, err error) {
	defer s.count("remove_submitted", &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, id, func(c *domain.Cart) error {
		c.Deduct(submitted)
		return nil
	})
}

// Reconcile clamps every stored cart to listings and returns how many carts
// changed.
func (s *Service) Reconcile(ctx context.Context, listings []dominv.Listing) (_ int, err error) {
	defer s.count("reconcile", &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	index := dominv.Index(listings)
	changed := 0
	err = s.repo.Range(ctx, func(c *domain.Cart) error {
		if !c.ReconcileIndexed(index) {
			return nil
		}
		changed++
		if err := s.repo.Save(ctx, c); err != nil {
			return fmt.Errorf("cart: save %s: %w", c.ID, err)
		}
		return nil
	})
	return changed, err
}

// OnSnapshot is the catalog subscriber.
func (s *Service) OnSnapshot(snap appinv.Snapshot) {
	changed, err := s.Reconcile(context.Background(), snap.Listings)
	if err != nil {
		s.log.Warn("cart_reconcile_failed",
			observability.F("version", snap.Version),
			observability.F("error", err.Error()),
		)
		return
	}
	if changed > 0 {
		s.log.Info("carts_reconciled",
			observability.F("version", snap.Version),
			observability.F("changed", changed),
		)
	}
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}

func (s *Service) count(op string, errp *error) {
	outcome := "success"
	if *errp != nil {
		outcome = "error"
	}
	s.mutations.Add(1, observability.L("op", op), observability.L("outcome", outcome))
}
