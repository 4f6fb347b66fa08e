package memory

import (
	"context"
	"errors"
	"testing"

	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/id"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryRepository_ListAndPush(t *testing.T) {
	repo := NewInventoryRepository()
	ctx := context.Background()

	var pushed [][]dominv.Batch
	unsubscribe, err := repo.SubscribeBatches(func(b []dominv.Batch) { pushed = append(pushed, b) })
	require.NoError(t, err)

	require.NoError(t, repo.PutBatch(dominv.Batch{ID: "b-1", RecipeName: "Oyster", PackagingType: "500g", Quantity: 3, Public: true}))
	require.NoError(t, repo.PutBatch(dominv.Batch{ID: "b-2", RecipeName: "Enoki", PackagingType: "100g", Quantity: 2}))
	require.NoError(t, repo.SetQuantity("b-1", 1))

	all, err := repo.ListFinishedGoods(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	public, err := repo.ListFinishedGoods(ctx, true)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, 1, public[0].Quantity)

	require.Len(t, pushed, 3)
	assert.Equal(t, 1, pushed[2][0].Quantity)

	unsubscribe()
	require.NoError(t, repo.SetQuantity("b-1", 0))
	assert.Len(t, pushed, 3)
}

func TestInventoryRepository_Errors(t *testing.T) {
	repo := NewInventoryRepository()

	assert.ErrorIs(t, repo.PutBatch(dominv.Batch{ID: "b-1", Quantity: -1}), dominv.ErrInvalidQuantity)
	assert.ErrorIs(t, repo.SetQuantity("nope", 1), ErrBatchNotFound)
	assert.ErrorIs(t, repo.SetQuantity("nope", -1), dominv.ErrInvalidQuantity)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.ListFinishedGoods(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInventoryRepository_Recipes(t *testing.T) {
	repo := NewInventoryRepository()
	repo.PutRecipe(dominv.Recipe{Name: "Oyster", Notes: "v1"})
	repo.PutRecipe(dominv.Recipe{Name: "Oyster", Notes: "v2"})

	recipes, err := repo.ListRecipes(context.Background())
	require.NoError(t, err)
	require.Len(t, recipes, 1)
	assert.Equal(t, "v2", recipes[0].Notes)
}

func TestSeedInventory(t *testing.T) {
	repo := NewInventoryRepository()
	SeedInventory(repo)

	public, err := repo.ListFinishedGoods(context.Background(), true)
	require.NoError(t, err)
	listings := dominv.Aggregate(public)
	assert.Len(t, listings, 3)
	assert.Equal(t, 18, listings[0].Quantity)
}

func TestOrderRepository(t *testing.T) {
	repo := NewOrderRepository(id.NewShortGenerator())
	ctx := context.Background()

	o, err := domorder.New(domorder.Customer{Name: "Ana", Phone: "1"}, []domorder.Line{{
		RecipeName: "Oyster", PackagingType: "500g", Quantity: 1, UnitPrice: decimal.RequireFromString("15"),
	}})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, o))
	require.NotEmpty(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())

	got, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Total, got.Total)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domorder.ErrNotFound)

	repo.FailCreate(errors.New("Stock changed, please try again"))
	assert.EqualError(t, repo.Create(ctx, o.Clone()), "Stock changed, please try again")
	repo.FailCreate(nil)
	assert.Equal(t, 1, repo.Len())
}

type scriptedIDs struct {
	ids []string
	n   int
}

func (g *scriptedIDs) NewID() string {
	id := g.ids[g.n%len(g.ids)]
	g.n++
	return id
}

func TestOrderRepository_RedrawsTakenIDs(t *testing.T) {
	ids := &scriptedIDs{ids: []string{"A1", "A1", "B2"}}
	repo := NewOrderRepository(ids)
	ctx := context.Background()
	newOrder := func() *domorder.Order {
		o, err := domorder.New(domorder.Customer{Name: "Ana", Phone: "1"}, []domorder.Line{{
			RecipeName: "Oyster", PackagingType: "500g", Quantity: 1, UnitPrice: decimal.RequireFromString("15"),
		}})
		require.NoError(t, err)
		return o
	}

	first, second := newOrder(), newOrder()
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.Equal(t, "A1", first.ID)
	assert.Equal(t, "B2", second.ID)

	stuck := NewOrderRepository(&scriptedIDs{ids: []string{"A1"}})
	require.NoError(t, stuck.Create(ctx, newOrder()))
	assert.Error(t, stuck.Create(ctx, newOrder()))
	assert.Equal(t, 1, stuck.Len())
}

func TestCartRepository(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domcart.New("c-2")))
	require.NoError(t, repo.Save(ctx, domcart.New("c-1")))

	c, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	c.Lines = append(c.Lines, domcart.Line{Quantity: 1})

	stored, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, stored.Lines)

	var ids []string
	require.NoError(t, repo.Range(ctx, func(c *domcart.Cart) error {
		ids = append(ids, c.ID)
		return nil
	}))
	assert.Equal(t, []string{"c-1", "c-2"}, ids)

	require.NoError(t, repo.Delete(ctx, "c-1"))
	_, err = repo.Get(ctx, "c-1")
	assert.ErrorIs(t, err, domcart.ErrNotFound)
}
