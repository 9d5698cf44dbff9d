package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderPlaced    = "OrderPlaced"
	TypeOrderCompleted = "OrderCompleted"
	TypeOrderCancelled = "OrderCancelled"
	TypeSaleRecorded   = "SaleRecorded"
	TypeSaleVoided     = "SaleVoided"
	TypeStockAdjusted  = "StockAdjusted"
	TypeLowStock       = "LowStock"
	TypeBatchReceived  = "BatchReceived"
	TypeBatchDisposed  = "BatchDisposed"
)

// Event is the envelope written to the stock events topic. AggregateID is used
// as the message key so events of one order or product stay ordered.
type Event struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	Payload     any       `json:"payload"`
	Timestamp   time.Time `json:"timestamp"`
}

func New(eventType, aggregateID string, payload any) Event {
	return Event{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
}

// Publisher is called after the owning transaction has committed. Delivery
// failures never undo a committed stock change.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Event) error { return nil }

type StockLevelPayload struct {
	ProductID      string `json:"product_id"`
	CurrentStock   int    `json:"current_stock"`
	AllocatedStock int    `json:"allocated_stock"`
	ReorderLevel   int    `json:"reorder_level"`
	MovementType   string `json:"movement_type,omitempty"`
	QuantityChange int    `json:"quantity_change,omitempty"`
}

type OrderPayload struct {
	OrderID    string             `json:"order_id"`
	CustomerID string             `json:"customer_id"`
	Status     string             `json:"status"`
	Items      []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SalePayload struct {
	TransactionID string             `json:"transaction_id"`
	ReceiptNo     string             `json:"receipt_no"`
	Status        string             `json:"status"`
	TotalAmount   string             `json:"total_amount"`
	Items         []OrderItemPayload `json:"items"`
}

type BatchPayload struct {
	BatchID   string `json:"batch_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason,omitempty"`
}
