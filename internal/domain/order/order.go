package order

import (
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("order: not found")
	ErrNoLines          = errors.New("order: at least one line is required")
	ErrInvalidQuantity  = errors.New("order: quantity must be greater than zero")
	ErrCustomerName     = errors.New("order: customer name is required")
	ErrCustomerPhone    = errors.New("order: customer phone is required")
	ErrInvalidUnitPrice = errors.New("order: unit price must be zero or greater")
)

type Customer struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

// Normalize trims surrounding whitespace from every field.
func (c Customer) Normalize() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
	}
}

func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrCustomerName
	}
	if strings.TrimSpace(c.Phone) == "" {
		return ErrCustomerPhone
	}
	return nil
}

// Line freezes what the customer saw in the cart at submit time.
type Line struct {
	Key           inventory.ProductKey
	RecipeName    string
	PackagingType string
	Quantity      int
	UnitPrice     decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is created once by the backing store, which assigns ID and CreatedAt.
type Order struct {
	ID        string
	Customer  Customer
	Lines     []Line
	Total     decimal.Decimal
	CreatedAt time.Time
}

// New builds an unsaved order. ID and CreatedAt stay empty until the store sets them.
func New(customer Customer, lines []Line) (*Order, error) {
	customer = customer.Normalize()
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	total := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if l.UnitPrice.IsNegative() {
			return nil, ErrInvalidUnitPrice
		}
		total = total.Add(l.Subtotal())
	}
	return &Order{
		Customer: customer,
		Lines:    append([]Line(nil), lines...),
		Total:    total,
	}, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}
