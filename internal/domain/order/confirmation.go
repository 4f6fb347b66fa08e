package order

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	currencyPrefix = "RM"
	waBaseURL      = "https://wa.me/"
)

// Confirmation is what the customer sends over WhatsApp to arrange payment.
type Confirmation struct {
	OrderID string
	Total   decimal.Decimal
	Message string
	URL     string
}

// NewConfirmation renders the confirmation for a stored order. waNumber is
// the shop's WhatsApp number in international format without "+".
func NewConfirmation(o *Order, waNumber string) Confirmation {
	msg := FormatMessage(o.ID, o.Lines, o.Total, o.Customer.Name)
	return Confirmation{
		OrderID: o.ID,
		Total:   o.Total,
		Message: msg,
		URL:     WhatsAppURL(waNumber, msg),
	}
}

// FormatMessage renders:
//
//	Hi, I would like to confirm my order #<id>:
//	- <qty>x <recipe> (<packaging>)
//	*Total: RM <total>*
//
//	Name: <name>
func FormatMessage(orderID string, lines []Line, total decimal.Decimal, customerName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi, I would like to confirm my order #%s:\n", orderID)
	for _, l := range lines {
		fmt.Fprintf(&b, "- %dx %s (%s)\n", l.Quantity, l.RecipeName, l.PackagingType)
	}
	fmt.Fprintf(&b, "*Total: %s*\n\nName: %s", FormatMoney(total), customerName)
	return b.String()
}

// FormatMoney renders an amount as "RM 12.50".
func FormatMoney(amount decimal.Decimal) string {
	return currencyPrefix + " " + amount.StringFixed(2)
}

// WhatsAppURL builds a wa.me deep link with text pre-filled. Spaces become
// %20 and newlines the literal %0a.
func WhatsAppURL(number, message string) string {
	text := url.QueryEscape(message)
	text = strings.ReplaceAll(text, "+", "%20")
	text = strings.ReplaceAll(text, "%0A", "%0a")
	return waBaseURL + number + "?text=" + text
}
