package cart

import (
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("cart: not found")
	ErrInvalidQuantity = errors.New("cart: quantity must be zero or greater")
	ErrSoldOut         = errors.New("cart: product is sold out")
)

// Line is one product in a cart. Listing is the snapshot taken when the
// product was last added; Quantity never exceeds the latest known ceiling.
type Line struct {
	Listing  inventory.Listing
	Quantity int
}

func (l Line) Key() inventory.ProductKey { return l.Listing.Key }

// Subtotal is the snapshot price times the requested quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Listing.SellingPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Available reports whether the line can be checked out.
func (l Line) Available() bool { return l.Quantity > 0 }

type Cart struct {
	ID        string
	Lines     []Line
	UpdatedAt time.Time
}

func New(id string) *Cart {
	return &Cart{ID: id, UpdatedAt: time.Now().UTC()}
}

// AddOrIncrement adds one unit of the listing's product. An existing line
// grows by one up to listing.Quantity; at the ceiling it is left as is. A new
// line starts at one and needs at least one unit in stock. The line's
// snapshot is always replaced by listing.
func (c *Cart) AddOrIncrement(listing inventory.Listing) error {
	if listing.Quantity < 0 {
		return ErrInvalidQuantity
	}
	if i := c.index(listing.Key); i >= 0 {
		line := &c.Lines[i]
		line.Listing = listing
		line.Quantity = min(line.Quantity+1, listing.Quantity)
		c.touch()
		return nil
	}
	if listing.Quantity < 1 {
		return ErrSoldOut
	}
	c.Lines = append(c.Lines, Line{Listing: listing, Quantity: 1})
	c.touch()
	return nil
}

// Remove drops the line for key. It reports whether a line was removed.
func (c *Cart) Remove(key inventory.ProductKey) bool {
	i := c.index(key)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.touch()
	return true
}

// Reconcile clamps every line to the ceiling in listings. A product missing
// from listings is out of stock: its line is kept at zero and skipped at
// checkout. It reports whether any quantity changed.
func (c *Cart) Reconcile(listings []inventory.Listing) bool {
	return c.ReconcileIndexed(inventory.Index(listings))
}

// ReconcileIndexed is Reconcile over a pre-built index.
func (c *Cart) ReconcileIndexed(listings map[inventory.ProductKey]inventory.Listing) bool {
	changed := false
	for i := range c.Lines {
		line := &c.Lines[i]
		ceiling := 0
		if l, ok := listings[line.Key()]; ok {
			ceiling = max(l.Quantity, 0)
		}
		if line.Quantity > ceiling {
			line.Quantity = ceiling
			changed = true
		}
	}
	if changed {
		c.touch()
	}
	return changed
}

// Deduct takes ordered quantities off the cart. Each line whose key is in
// ordered loses that many units and is dropped once it reaches zero. Lines
// for other keys are left alone. It reports whether anything changed.
func (c *Cart) Deduct(ordered map[inventory.ProductKey]int) bool {
	changed := false
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		n, ok := ordered[line.Key()]
		if !ok {
			kept = append(kept, line)
			continue
		}
		changed = true
		if line.Quantity -= max(n, 0); line.Quantity > 0 {
			kept = append(kept, line)
		}
	}
	if !changed {
		return false
	}
	if len(kept) == 0 {
		kept = nil
	}
	c.Lines = kept
	c.touch()
	return true
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.touch()
}

// Total is recomputed from the lines on every call.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount is the number of units across all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Line(key inventory.ProductKey) (Line, bool) {
	if i := c.index(key); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

// PurchasableLines returns the lines with a positive quantity, in cart order.
func (c *Cart) PurchasableLines() []Line {
	out := make([]Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.Available() {
			out = append(out, l)
		}
	}
	return out
}

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]Line(nil), c.Lines...)
	return &clone
}

func (c *Cart) index(key inventory.ProductKey) int {
	for i, l := range c.Lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
