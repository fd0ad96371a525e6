package event

import (
	"context"
	"log/slog"

	"github.com/condorshop/storefront/internal/domain"
	pkgkafka "github.com/condorshop/storefront/pkg/kafka"
)

// Kafka topics for storefront domain events.
const (
	TopicCartUpdated = "condorshop.storefront.cart.updated"
	TopicCartCleared = "condorshop.storefront.cart.cleared"
	TopicOrderPlaced = "condorshop.storefront.order.placed"
)

const (
	aggregateTypeCart  = "cart"
	aggregateTypeOrder = "order"
	source             = "storefront"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID  string            `json:"session_id"`
	Items      []domain.LineItem `json:"items"`
	ItemCount  int               `json:"item_count"`
	Subtotal   int64             `json:"subtotal"`
	GrandTotal int64             `json:"grand_total"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	SessionID string `json:"session_id"`
}

// OrderPlacedData is the payload for an order.placed event.
type OrderPlacedData struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
	Total     int64  `json:"total"`
}

// Producer publishes storefront domain events to Kafka. Publishing is best
// effort: a broker outage must never fail a cart operation, so failures are
// logged and swallowed.
type Producer struct {
	kafka     *pkgkafka.Producer
	sessionID string
	logger    *slog.Logger
}

// NewProducer creates an event producer bound to one shopper session.
func NewProducer(kafka *pkgkafka.Producer, sessionID string, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:     kafka,
		sessionID: sessionID,
		logger:    logger,
	}
}

// CartUpdated publishes a cart.updated event for the session.
func (p *Producer) CartUpdated(ctx context.Context, snapshot domain.Snapshot) {
	data := CartUpdatedData{
		SessionID:  p.sessionID,
		Items:      snapshot.Items,
		ItemCount:  snapshot.ItemCount(),
		Subtotal:   snapshot.Totals.Subtotal,
		GrandTotal: snapshot.Totals.GrandTotal,
	}
	p.publish(ctx, TopicCartUpdated, aggregateTypeCart, data)
}

// CartCleared publishes a cart.cleared event for the session.
func (p *Producer) CartCleared(ctx context.Context) {
	p.publish(ctx, TopicCartCleared, aggregateTypeCart, CartClearedData{SessionID: p.sessionID})
}

// OrderPlaced publishes an order.placed event after a confirmed checkout.
func (p *Producer) OrderPlaced(ctx context.Context, order domain.Order) {
	data := OrderPlacedData{
		SessionID: p.sessionID,
		OrderID:   order.ID,
		Total:     order.Total,
	}
	p.publish(ctx, TopicOrderPlaced, aggregateTypeOrder, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateType string, data any) {
	evt, err := pkgkafka.NewEvent(topic, p.sessionID, aggregateType, source, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to create event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		p.logger.WarnContext(ctx, "failed to publish event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}
