package inventory

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("inventory: quantity must be zero or greater")
	ErrInvalidKey      = errors.New("inventory: product key requires recipe and packaging")
)

const (
	keySeparator = '|'
	keyEscape    = '\\'
)

var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// ProductKey identifies a purchasable product. Batches sharing a key are the
// same product regardless of their batch id.
type ProductKey struct {
	RecipeName    string
	PackagingType string
}

func NewProductKey(recipeName, packagingType string) (ProductKey, error) {
	k := ProductKey{RecipeName: strings.TrimSpace(recipeName), PackagingType: strings.TrimSpace(packagingType)}
	if k.RecipeName == "" || k.PackagingType == "" {
		return ProductKey{}, ErrInvalidKey
	}
	return k, nil
}

// ParseProductKey reverses ProductKey.String. A backslash escapes the next
// character, so names may contain the separator.
func ParseProductKey(s string) (ProductKey, error) {
	var parts [2]strings.Builder
	part := 0
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			parts[part].WriteRune(r)
			escaped = false
		case r == keyEscape:
			escaped = true
		case r == keySeparator:
			if part == 1 {
				return ProductKey{}, ErrInvalidKey
			}
			part = 1
		default:
			parts[part].WriteRune(r)
		}
	}
	if escaped || part != 1 {
		return ProductKey{}, ErrInvalidKey
	}
	return NewProductKey(parts[0].String(), parts[1].String())
}

// String joins recipe and packaging with '|', backslash-escaping '|' and
// backslash inside either name. Keys without those characters print as "recipe|packaging".
func (k ProductKey) String() string {
	return keyEscaper.Replace(k.RecipeName) + string(keySeparator) + keyEscaper.Replace(k.PackagingType)
}

// Batch is one production run of finished goods as reported by the backing store.
type Batch struct {
	ID            string
	RecipeName    string
	PackagingType string
	Quantity      int
	SellingPrice  decimal.Decimal
	ImageURL      string
	Public        bool
}

// Key is the batch's product key with surrounding whitespace trimmed from
// both names, matching what NewProductKey builds from customer input.
func (b Batch) Key() ProductKey {
	return ProductKey{RecipeName: strings.TrimSpace(b.RecipeName), PackagingType: strings.TrimSpace(b.PackagingType)}
}

// Listing is the customer-facing product: every in-stock batch of one key merged.
type Listing struct {
	Key           ProductKey
	RecipeName    string
	PackagingType string
	Quantity      int
	SellingPrice  decimal.Decimal
	ImageURL      string
}

func (l Listing) InStock() bool { return l.Quantity > 0 }

// Recipe enriches a product's detail view. Matched to listings by name only.
type Recipe struct {
	Name  string
	Notes string
}
