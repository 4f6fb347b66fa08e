package order

import "time"

// OrderSubmittedEvent is emitted once the backing store accepted an order.
type OrderSubmittedEvent struct {
	OrderID         string
	CartID          string
	CustomerName    string
	CustomerPhone   string
	Lines           []Line
	Total           string
	ConfirmationURL string
	OccurredAt      time.Time
}

func (OrderSubmittedEvent) EventName() string { return "order.submitted" }

func NewOrderSubmittedEvent(o *Order, cartID string, c Confirmation) OrderSubmittedEvent {
	return OrderSubmittedEvent{
		OrderID:         o.ID,
		CartID:          cartID,
		CustomerName:    o.Customer.Name,
		CustomerPhone:   o.Customer.Phone,
		Lines:           append([]Line(nil), o.Lines...),
		Total:           o.Total.StringFixed(2),
		ConfirmationURL: c.URL,
		OccurredAt:      time.Now().UTC(),
	}
}
