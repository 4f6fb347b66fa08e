package cart

import (
	"context"
	"fmt"
	"sync"
	"testing"

	appinv "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	mu       sync.Mutex
	listings map[dominv.ProductKey]dominv.Listing
}

func (c *stubCatalog) Listing(key dominv.ProductKey) (dominv.Listing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[key]
	return l, ok
}

func (c *stubCatalog) put(l dominv.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[l.Key] = l
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("cart-%d", g.n)
}

var oyster = dominv.ProductKey{RecipeName: "Oyster", PackagingType: "500g"}

func listing(qty int) dominv.Listing {
	return dominv.Listing{
		Key:           oyster,
		RecipeName:    oyster.RecipeName,
		PackagingType: oyster.PackagingType,
		Quantity:      qty,
		SellingPrice:  decimal.RequireFromString("15.00"),
	}
}

func newTestService(t *testing.T, listings ...dominv.Listing) (*Service, *stubCatalog) {
	t.Helper()
	cat := &stubCatalog{listings: map[dominv.ProductKey]dominv.Listing{}}
	for _, l := range listings {
		cat.put(l)
	}
	return NewService(memory.NewCartRepository(), cat, &seqIDs{}, nil), cat
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cart-1", c.ID)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdd_UsesLiveCeiling(t *testing.T) {
	svc, cat := newTestService(t, listing(2))
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		c, err = svc.Add(ctx, c.ID, oyster)
		require.NoError(t, err)
	}
	line, _ := c.Line(oyster)
	assert.Equal(t, 2, line.Quantity)

	cat.put(listing(3))
	c, err = svc.Add(ctx, c.ID, oyster)
	require.NoError(t, err)
	line, _ = c.Line(oyster)
	assert.Equal(t, 3, line.Quantity)
}

func TestAdd_Errors(t *testing.T) {
	svc, cat := newTestService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	_, err = svc.Add(ctx, c.ID, oyster)
	assert.ErrorIs(t, err, ErrProductNotFound)

	cat.put(listing(0))
	_, err = svc.Add(ctx, c.ID, oyster)
	assert.ErrorIs(t, err, ErrSoldOut)

	cat.put(listing(5))
	_, err = svc.Add(ctx, "missing", oyster)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	svc, _ := newTestService(t, listing(5))
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Add(ctx, c.ID, oyster)
	require.NoError(t, err)

	c, err = svc.Remove(ctx, c.ID, oyster)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = svc.Add(ctx, c.ID, oyster)
	require.NoError(t, err)
	c, err = svc.Clear(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEmpty())
}

func TestReconcile_ClampsStoredCarts(t *testing.T) {
	svc, _ := newTestService(t, listing(5))
	ctx := context.Background()

	a, err := svc.Create(ctx)
	require.NoError(t, err)
	b, err := svc.Create(ctx)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = svc.Add(ctx, a.ID, oyster)
		require.NoError(t, err)
	}
	_, err = svc.Add(ctx, b.ID, oyster)
	require.NoError(t, err)

	changed, err := svc.Reconcile(ctx, []dominv.Listing{listing(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	a, err = svc.Get(ctx, a.ID)
	require.NoError(t, err)
	line, _ := a.Line(oyster)
	assert.Equal(t, 2, line.Quantity)

	b, err = svc.Get(ctx, b.ID)
	require.NoError(t, err)
	line, _ = b.Line(oyster)
	assert.Equal(t, 1, line.Quantity)
}

func TestOnSnapshot_ProductGoneKeepsZeroLine(t *testing.T) {
	svc, _ := newTestService(t, listing(5))
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Add(ctx, c.ID, oyster)
	require.NoError(t, err)

	svc.OnSnapshot(appinv.Snapshot{Version: 7, Listings: []dominv.Listing{}})

	c, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)
	line, ok := c.Line(oyster)
	require.True(t, ok)
	assert.Equal(t, 0, line.Quantity)
	assert.Empty(t, c.PurchasableLines())
}

func TestAdd_ConcurrentNeverExceedsCeiling(t *testing.T) {
	svc, _ := newTestService(t, listing(10))
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Add(ctx, c.ID, oyster)
		}()
	}
	wg.Wait()

	c, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)
	line, _ := c.Line(oyster)
	assert.Equal(t, 10, line.Quantity)
}

func TestRemoveSubmitted_KeepsLaterAdditions(t *testing.T) {
	svc, _ := newTestService(t, listing(10))
	ctx := context.Background()

	c, err := svc.Create(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = svc.Add(ctx, c.ID, oyster)
		require.NoError(t, err)
	}

	c, err = svc.RemoveSubmitted(ctx, c.ID, map[dominv.ProductKey]int{oyster: 2})
	require.NoError(t, err)
	line, ok := c.Line(oyster)
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)

	c, err = svc.RemoveSubmitted(ctx, c.ID, map[dominv.ProductKey]int{oyster: 1})
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = svc.RemoveSubmitted(ctx, "missing", map[dominv.ProductKey]int{oyster: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}
