package memory

import (
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// SeedInventory loads demo stock so a local run has something to sell.
// Oyster 250g is split over two batches to exercise aggregation.
func SeedInventory(r *InventoryRepository) {
	batches := []domain.Batch{
		{ID: "b-001", RecipeName: "Oyster Mushroom", PackagingType: "250g", Quantity: 12, SellingPrice: decimal.RequireFromString("8.50"), Public: true},
		{ID: "b-002", RecipeName: "Oyster Mushroom", PackagingType: "250g", Quantity: 6, SellingPrice: decimal.RequireFromString("8.50"), Public: true},
		{ID: "b-003", RecipeName: "Oyster Mushroom", PackagingType: "500g", Quantity: 5, SellingPrice: decimal.RequireFromString("15.00"), Public: true},
		{ID: "b-004", RecipeName: "Mushroom Chips", PackagingType: "Pouch", Quantity: 20, SellingPrice: decimal.RequireFromString("12.00"), Public: true},
		{ID: "b-005", RecipeName: "Mushroom Floss", PackagingType: "Jar", Quantity: 0, SellingPrice: decimal.RequireFromString("18.00"), Public: true},
		{ID: "b-006", RecipeName: "Grey Oyster Spawn", PackagingType: "Bag", Quantity: 40, SellingPrice: decimal.RequireFromString("4.00"), Public: false},
	}
	for _, b := range batches {
		_ = r.PutBatch(b)
	}
	r.PutRecipe(domain.Recipe{Name: "Oyster Mushroom", Notes: "Fresh grey oyster, harvested the morning of dispatch."})
	r.PutRecipe(domain.Recipe{Name: "Mushroom Chips", Notes: "Vacuum-fried oyster mushroom, lightly salted."})
}
