package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Inventory events
	EventStockAdjusted = "inventory.stock.adjusted"
	EventStockLow      = "inventory.stock.low"

	// Purchasing events
	EventBackorderCreated  = "purchasing.backorder.created"
	EventBackorderReminder = "purchasing.backorder.reminder"

	// Milling events
	EventMillingCompleted = "milling.completed"
)

// Exchange names
const (
	ExchangeInventoryEvents  = "inventory.events"
	ExchangePurchasingEvents = "purchasing.events"
)

// Event is the base event structure
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// StockAdjustedEvent is published when stock is manually adjusted
type StockAdjustedEvent struct {
	ProductID   string `json:"product_id"`
	LocationID  string `json:"location_id"`
	Delta       int    `json:"delta"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by"`
}

// StockLowEvent is published when a product's on-hand stock drops below its
// reorder point.
type StockLowEvent struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	StockOnHand  int    `json:"stock_on_hand"`
	ReorderPoint int    `json:"reorder_point"`
}

// BackorderCreatedEvent is published when a receipt leaves a shortfall
type BackorderCreatedEvent struct {
	BackorderID         string     `json:"backorder_id"`
	PurchaseOrderItemID string     `json:"purchase_order_item_id"`
	Quantity            int        `json:"quantity"`
	ExpectedDate        *time.Time `json:"expected_date,omitempty"`
}

// BackorderReminderEvent is consumed by the notifier to email/SMS the
// supplier about an outstanding backorder. Fire-and-forget: the core does
// not care whether delivery succeeds.
type BackorderReminderEvent struct {
	BackorderID     string `json:"backorder_id"`
	PurchaseOrderID string `json:"purchase_order_id"`
	SupplierID      string `json:"supplier_id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
}

// MillingCompletedEvent is published after a milling conversion
type MillingCompletedEvent struct {
	SourceProductID string `json:"source_product_id"`
	MilledProductID string `json:"milled_product_id"`
	InputQuantity   int    `json:"input_quantity"`
	OutputQuantity  int    `json:"output_quantity"`
}
