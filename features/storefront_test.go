package features

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	appCart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	appInventory "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

type storefrontTestContext struct {
	inventory *memory.InventoryRepository
	orders    *memory.OrderRepository
	refresher *appInventory.Refresher
	carts     *appCart.Service
	submit    *appOrder.SubmitOrderUseCase

	cartID string
	result *appOrder.SubmitOrderResult
	err    error

	unsubscribe func()
}

func (c *storefrontTestContext) reset() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.inventory = memory.NewInventoryRepository()
	c.orders = memory.NewOrderRepository(id.NewShortGenerator())
	c.refresher = appInventory.NewRefresher(c.inventory, appInventory.Options{}, nil)
	c.carts = appCart.NewService(memory.NewCartRepository(), c.refresher, id.NewUUIDGenerator(), nil)
	c.unsubscribe = c.refresher.Subscribe(c.carts.OnSnapshot)
	c.submit = appOrder.NewSubmitOrderUseCase(c.orders, c.carts, nil, "", nil)
	c.cartID = ""
	c.result = nil
	c.err = nil
}

func (c *storefrontTestContext) finishedGoodsBatches(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return errors.New("expected a header row and at least one batch")
	}
	for _, row := range table.Rows[1:] {
		if len(row.Cells) != 5 {
			return fmt.Errorf("expected 5 cells, got %d", len(row.Cells))
		}
		qty, err := strconv.Atoi(row.Cells[3].Value)
		if err != nil {
			return err
		}
		price, err := decimal.NewFromString(row.Cells[4].Value)
		if err != nil {
			return err
		}
		if err := c.inventory.PutBatch(dominv.Batch{
			ID:            row.Cells[0].Value,
			RecipeName:    row.Cells[1].Value,
			PackagingType: row.Cells[2].Value,
			Quantity:      qty,
			SellingPrice:  price,
			Public:        true,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *storefrontTestContext) theCatalogRefreshes() error {
	_, err := c.refresher.Refresh(context.Background())
	return err
}

func (c *storefrontTestContext) theCatalogHasListings(n int) error {
	if got := len(c.refresher.Snapshot().Listings); got != n {
		return fmt.Errorf("expected %d listings, got %d", n, got)
	}
	return nil
}

func (c *storefrontTestContext) listingHasQuantity(recipe, packaging string, qty int) error {
	l, ok := c.refresher.Listing(dominv.ProductKey{RecipeName: recipe, PackagingType: packaging})
	if !ok {
		return fmt.Errorf("no listing for %s (%s)", recipe, packaging)
	}
	if l.Quantity != qty {
		return fmt.Errorf("expected quantity %d, got %d", qty, l.Quantity)
	}
	return nil
}

func (c *storefrontTestContext) aNewCart() error {
	cart, err := c.carts.Create(context.Background())
	if err != nil {
		return err
	}
	c.cartID = cart.ID
	return nil
}

func (c *storefrontTestContext) iAddToTheCartTimes(recipe, packaging string, times int) error {
	key := dominv.ProductKey{RecipeName: recipe, PackagingType: packaging}
	for i := 0; i < times; i++ {
		if _, err := c.carts.Add(context.Background(), c.cartID, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *storefrontTestContext) theCartHolds(qty int, recipe, packaging string) error {
	cart, err := c.carts.Get(context.Background(), c.cartID)
	if err != nil {
		return err
	}
	line, ok := cart.Line(dominv.ProductKey{RecipeName: recipe, PackagingType: packaging})
	if !ok {
		return fmt.Errorf("cart has no line for %s (%s)", recipe, packaging)
	}
	if line.Quantity != qty {
		return fmt.Errorf("expected %d in cart, got %d", qty, line.Quantity)
	}
	return nil
}

func (c *storefrontTestContext) batchDropsTo(batchID string, qty int) error {
	return c.inventory.SetQuantity(batchID, qty)
}

func (c *storefrontTestContext) iSubmitTheCartAs(name, phone string) error {
	c.result, c.err = c.submit.Execute(context.Background(), appOrder.SubmitOrderInput{
		CartID:   c.cartID,
		Customer: domorder.Customer{Name: name, Phone: phone},
	})
	return nil
}

func (c *storefrontTestContext) theSubmissionSucceeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success but got error: %v", c.err)
	}
	if c.result == nil {
		return errors.New("expected a result")
	}
	return nil
}

func (c *storefrontTestContext) theConfirmationMessageContains(s string) error {
	if c.result == nil {
		return errors.New("no confirmation")
	}
	if !strings.Contains(c.result.Confirmation.Message, s) {
		return fmt.Errorf("message %q does not contain %q", c.result.Confirmation.Message, s)
	}
	return nil
}

func (c *storefrontTestContext) theConfirmationMessageEndsWith(s string) error {
	if c.result == nil {
		return errors.New("no confirmation")
	}
	if !strings.HasSuffix(c.result.Confirmation.Message, s) {
		return fmt.Errorf("message %q does not end with %q", c.result.Confirmation.Message, s)
	}
	return nil
}

func (c *storefrontTestContext) theCartIsEmpty() error {
	cart, err := c.carts.Get(context.Background(), c.cartID)
	if err != nil {
		return err
	}
	if !cart.IsEmpty() {
		return fmt.Errorf("expected empty cart, got %d lines", len(cart.Lines))
	}
	return nil
}

func (c *storefrontTestContext) theSubmissionIsRejectedAsAnEmptyCart() error {
	if !errors.Is(c.err, appOrder.ErrEmptyCart) {
		return fmt.Errorf("expected ErrEmptyCart, got %v", c.err)
	}
	return nil
}

func (c *storefrontTestContext) theBackingStoreHoldsOrders(n int) error {
	if got := c.orders.Len(); got != n {
		return fmt.Errorf("expected %d orders, got %d", n, got)
	}
	return nil
}

func (c *storefrontTestContext) theBackingStoreRejectsOrdersWith(msg string) error {
	c.orders.FailCreate(errors.New(msg))
	return nil
}

func (c *storefrontTestContext) theSubmissionFailsWithMessage(msg string) error {
	var subErr *appOrder.SubmissionError
	if !errors.As(c.err, &subErr) {
		return fmt.Errorf("expected SubmissionError, got %v", c.err)
	}
	if subErr.Error() != msg {
		return fmt.Errorf("expected message %q, got %q", msg, subErr.Error())
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &storefrontTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^finished goods batches:$`, tc.finishedGoodsBatches)
	ctx.Step(`^a new cart$`, tc.aNewCart)
	ctx.Step(`^the backing store rejects orders with "([^"]*)"$`, tc.theBackingStoreRejectsOrdersWith)

	// When steps
	ctx.Step(`^the catalog refreshes$`, tc.theCatalogRefreshes)
	ctx.Step(`^I add "([^"]*)" "([^"]*)" to the cart (\d+) times$`, tc.iAddToTheCartTimes)
	ctx.Step(`^batch "([^"]*)" drops to (\d+) units$`, tc.batchDropsTo)
	ctx.Step(`^I submit the cart as "([^"]*)" with phone "([^"]*)"$`, tc.iSubmitTheCartAs)

	// Then steps
	ctx.Step(`^the catalog has (\d+) listings?$`, tc.theCatalogHasListings)
	ctx.Step(`^listing "([^"]*)" "([^"]*)" has quantity (\d+)$`, tc.listingHasQuantity)
	ctx.Step(`^the cart holds (\d+) of "([^"]*)" "([^"]*)"$`, tc.theCartHolds)
	ctx.Step(`^the submission succeeds$`, tc.theSubmissionSucceeds)
	ctx.Step(`^the confirmation message contains "([^"]*)"$`, tc.theConfirmationMessageContains)
	ctx.Step(`^the confirmation message ends with "([^"]*)"$`, tc.theConfirmationMessageEndsWith)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the submission is rejected as an empty cart$`, tc.theSubmissionIsRejectedAsAnEmptyCart)
	ctx.Step(`^the backing store holds (\d+) orders$`, tc.theBackingStoreHoldsOrders)
	ctx.Step(`^the submission fails with message "([^"]*)"$`, tc.theSubmissionFailsWithMessage)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"storefront.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
