package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "storefront.orders.submitted"
	peerKafka    = "kafka"
)

// messageWriter is the part of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type lineMessage struct {
	RecipeName    string `json:"recipe_name"`
	PackagingType string `json:"packaging_type"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
}

// OrderSubmittedMessage is the wire shape of a submitted order on the topic.
type OrderSubmittedMessage struct {
	OrderID         string        `json:"order_id"`
	CartID          string        `json:"cart_id"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	Lines           []lineMessage `json:"lines"`
	Total           string        `json:"total"`
	ConfirmationURL string        `json:"confirmation_url"`
	OccurredAt      time.Time     `json:"occurred_at"`
}

// Notifier relays order.submitted events to a Kafka topic, keyed by order id.
type Notifier struct {
	writer messageWriter
	topic  string

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

// NewNotifier dials brokers lazily. brokers is a comma-separated host:port list.
func NewNotifier(brokers, topic string, tel observability.Observability) *Notifier {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return newNotifier(w, topic, tel)
}

func newNotifier(w messageWriter, topic string, tel observability.Observability) *Notifier {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Notifier{
		writer:       w,
		topic:        topic,
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (n *Notifier) Notify(ctx context.Context, e domorder.OrderSubmittedEvent) error {
	msg := OrderSubmittedMessage{
		OrderID:         e.OrderID,
		CartID:          e.CartID,
		CustomerName:    e.CustomerName,
		CustomerPhone:   e.CustomerPhone,
		Lines:           make([]lineMessage, 0, len(e.Lines)),
		Total:           e.Total,
		ConfirmationURL: e.ConfirmationURL,
		OccurredAt:      e.OccurredAt,
	}
	for _, l := range e.Lines {
		msg.Lines = append(msg.Lines, lineMessage{
			RecipeName:    l.RecipeName,
			PackagingType: l.PackagingType,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice.StringFixed(2),
		})
	}
	b, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}

	start := time.Now()
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.EventName())},
		},
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	n.extCounter.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", n.topic),
		observability.L("outcome", outcome),
	)
	n.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", n.topic),
	)
	if err != nil {
		return fmt.Errorf("kafka: write %s: %w", n.topic, err)
	}
	return nil
}

func (n *Notifier) Close() error { return n.writer.Close() }

func splitBrokers(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
