package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-backend/internal/model"
)

const (
	EventsExchange         = "storefront.events"
	OrderPlacedRoutingKey  = "order.placed.v1"
	orderPlacedEventType   = "OrderPlaced"
	orderPlacedEventSchema = 1
)

type OrderPlacedItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type OrderPlaced struct {
	EventType     string            `json:"eventType"`
	SchemaVersion int               `json:"schemaVersion"`
	OrderID       string            `json:"orderId"`
	UserID        string            `json:"userId"`
	Items         []OrderPlacedItem `json:"items"`
	TotalAmount   string            `json:"totalAmount"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

func NewOrderPlaced(o *model.Order, correlationID string) OrderPlaced {
	ev := OrderPlaced{
		EventType:     orderPlacedEventType,
		SchemaVersion: orderPlacedEventSchema,
		OrderID:       o.ID.Hex(),
		UserID:        o.UserID.Hex(),
		Items:         make([]OrderPlacedItem, 0, len(o.Items)),
		TotalAmount:   o.Total().StringFixed(2),
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, OrderPlacedItem{
			ProductID: it.ProductID.Hex(),
			Quantity:  it.Qty,
			Price:     it.Price,
		})
	}
	return ev
}

func (e OrderPlaced) Marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.EventType, err)
	}
	return body, nil
}

// Publisher delivers domain events. Implementations must not block the
// caller beyond the context deadline.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, o *model.Order, correlationID string) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishOrderPlaced(context.Context, *model.Order, string) error { return nil }
func (Nop) Close() error                                                 { return nil }
