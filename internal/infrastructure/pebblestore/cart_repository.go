package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"
)

var keyPrefix = []byte("cart/")

// CartRepository keeps carts in a local Pebble database so they survive a
// restart. Values are JSON.
type CartRepository struct {
	db *pebble.DB
}

func NewCartRepository(dir string) (*CartRepository, error) {
	opts := &pebble.Options{
		MemTableSize: 16 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open: %w", err)
	}
	return &CartRepository{db: d}, nil
}

func (r *CartRepository) Close() error { return r.db.Close() }

type lineRecord struct {
	RecipeName    string          `json:"recipe_name"`
	PackagingType string          `json:"packaging_type"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	ImageURL      string          `json:"image_url,omitempty"`
	Available     int             `json:"available"`
	CartQuantity  int             `json:"cart_quantity"`
}

type cartRecord struct {
	ID        string       `json:"id"`
	Lines     []lineRecord `json:"lines"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func encodeCart(c *domain.Cart) ([]byte, error) {
	rec := cartRecord{ID: c.ID, UpdatedAt: c.UpdatedAt, Lines: make([]lineRecord, 0, len(c.Lines))}
	for _, l := range c.Lines {
		rec.Lines = append(rec.Lines, lineRecord{
			RecipeName:    l.Listing.RecipeName,
			PackagingType: l.Listing.PackagingType,
			SellingPrice:  l.Listing.SellingPrice,
			ImageURL:      l.Listing.ImageURL,
			Available:     l.Listing.Quantity,
			CartQuantity:  l.Quantity,
		})
	}
	return json.Marshal(rec)
}

func decodeCart(val []byte) (*domain.Cart, error) {
	var rec cartRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, err
	}
	c := &domain.Cart{ID: rec.ID, UpdatedAt: rec.UpdatedAt}
	for _, l := range rec.Lines {
		c.Lines = append(c.Lines, domain.Line{
			Listing: dominv.Listing{
				Key:           dominv.ProductKey{RecipeName: l.RecipeName, PackagingType: l.PackagingType},
				RecipeName:    l.RecipeName,
				PackagingType: l.PackagingType,
				Quantity:      l.Available,
				SellingPrice:  l.SellingPrice,
				ImageURL:      l.ImageURL,
			},
			Quantity: l.CartQuantity,
		})
	}
	return c, nil
}

func cartKey(id string) []byte {
	return append(append([]byte(nil), keyPrefix...), id...)
}

func (r *CartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, closer, err := r.db.Get(cartKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebblestore: get %s: %w", id, err)
	}
	defer closer.Close()

	c, err := decodeCart(v)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: decode %s: %w", id, err)
	}
	return c, nil
}

func (r *CartRepository) Save(ctx context.Context, c *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	b, err := encodeCart(c)
	if err != nil {
		return fmt.Errorf("pebblestore: encode %s: %w", c.ID, err)
	}
	if err := r.db.Set(cartKey(c.ID), b, pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: set %s: %w", c.ID, err)
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.db.Delete(cartKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: delete %s: %w", id, err)
	}
	return nil
}

// Range walks carts in key order. The iterator reads a consistent view, so
// fn may Save the cart it was handed.
func (r *CartRepository) Range(ctx context.Context, fn func(*domain.Cart) error) error {
	it, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: prefixEnd(keyPrefix),
	})
	if err != nil {
		return fmt.Errorf("pebblestore: iter: %w", err)
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v := append([]byte(nil), it.Value()...)
		c, err := decodeCart(v)
		if err != nil {
			return fmt.Errorf("pebblestore: decode %s: %w", it.Key(), err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return it.Error()
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
