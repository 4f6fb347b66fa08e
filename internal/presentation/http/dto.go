package httppresentation

import (
	"time"

	appinv "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

type listingResponse struct {
	Key           string `json:"key"`
	RecipeName    string `json:"recipe_name"`
	PackagingType string `json:"packaging_type"`
	Quantity      int    `json:"quantity"`
	SellingPrice  string `json:"selling_price"`
	ImageURL      string `json:"image_url,omitempty"`
}

type catalogResponse struct {
	Version     uint64            `json:"version"`
	RefreshedAt *time.Time        `json:"refreshed_at,omitempty"`
	Stale       bool              `json:"stale"`
	LastError   string            `json:"last_error,omitempty"`
	Listings    []listingResponse `json:"listings"`
}

type recipeResponse struct {
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

type productDetailResponse struct {
	Listing listingResponse `json:"listing"`
	Recipe  *recipeResponse `json:"recipe,omitempty"`
}

type cartLineResponse struct {
	Key           string `json:"key"`
	RecipeName    string `json:"recipe_name"`
	PackagingType string `json:"packaging_type"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	Subtotal      string `json:"subtotal"`
	ImageURL      string `json:"image_url,omitempty"`
	Available     bool   `json:"available"`
}

type cartResponse struct {
	ID        string             `json:"id"`
	Lines     []cartLineResponse `json:"lines"`
	ItemCount int                `json:"item_count"`
	Total     string             `json:"total"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type productKeyRequest struct {
	RecipeName    string `json:"recipe_name"`
	PackagingType string `json:"packaging_type"`
}

type checkoutRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type checkoutResponse struct {
	OrderID     string `json:"order_id"`
	Total       string `json:"total"`
	Message     string `json:"message"`
	WhatsAppURL string `json:"whatsapp_url"`
}

type healthResponse struct {
	Status         string `json:"status"`
	CatalogVersion uint64 `json:"catalog_version"`
	CatalogStale   bool   `json:"catalog_stale"`
	RefresherUp    bool   `json:"refresher_running"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func toListingResponse(l dominv.Listing) listingResponse {
	return listingResponse{
		Key:           l.Key.String(),
		RecipeName:    l.RecipeName,
		PackagingType: l.PackagingType,
		Quantity:      l.Quantity,
		SellingPrice:  money(l.SellingPrice),
		ImageURL:      l.ImageURL,
	}
}

func toCatalogResponse(snap appinv.Snapshot, st appinv.Status) catalogResponse {
	out := catalogResponse{
		Version:   snap.Version,
		Stale:     st.Stale,
		LastError: st.LastError,
		Listings:  make([]listingResponse, 0, len(snap.Listings)),
	}
	if !snap.RefreshedAt.IsZero() {
		t := snap.RefreshedAt
		out.RefreshedAt = &t
	}
	for _, l := range snap.Listings {
		out.Listings = append(out.Listings, toListingResponse(l))
	}
	return out
}

func toProductDetailResponse(d appinv.ProductDetail) productDetailResponse {
	out := productDetailResponse{Listing: toListingResponse(d.Listing)}
	if d.Recipe != nil {
		out.Recipe = &recipeResponse{Name: d.Recipe.Name, Notes: d.Recipe.Notes}
	}
	return out
}

func toCartResponse(c *domcart.Cart) cartResponse {
	out := cartResponse{
		ID:        c.ID,
		Lines:     make([]cartLineResponse, 0, len(c.Lines)),
		ItemCount: c.ItemCount(),
		Total:     money(c.Total()),
		UpdatedAt: c.UpdatedAt,
	}
	for _, l := range c.Lines {
		out.Lines = append(out.Lines, cartLineResponse{
			Key:           l.Key().String(),
			RecipeName:    l.Listing.RecipeName,
			PackagingType: l.Listing.PackagingType,
			Quantity:      l.Quantity,
			UnitPrice:     money(l.Listing.SellingPrice),
			Subtotal:      money(l.Subtotal()),
			ImageURL:      l.Listing.ImageURL,
			Available:     l.Available(),
		})
	}
	return out
}

func toCheckoutResponse(res *appOrder.SubmitOrderResult) checkoutResponse {
	return checkoutResponse{
		OrderID:     res.Confirmation.OrderID,
		Total:       money(res.Confirmation.Total),
		Message:     res.Confirmation.Message,
		WhatsAppURL: res.Confirmation.URL,
	}
}
