package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderUpdated   EventType = "order.updated"
	EventTypeOrderProcessed EventType = "order.processed"
	EventTypeOrderFailed    EventType = "order.failed"
	EventTypeOrderStuck     EventType = "order.stuck"

	// Stock события
	EventTypeStockChanged  EventType = "stock.changed"
	EventTypeLowStockAlert EventType = "stock.low"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicStockEvents     = "storefront.stock.events"
	TopicDeadLetterQueue = "storefront.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие жизненного цикла заказа
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// StockEvent представляет событие изменения стока партиции
type StockEvent struct {
	EventType EventType              `json:"event_type"`
	SKU       string                 `json:"sku"`
	Location  string                 `json:"location"`
	Channel   string                 `json:"channel"`
	Available int32                  `json:"available"`
	Reserved  int32                  `json:"reserved"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewStockEvent создает новое событие стока
func NewStockEvent(eventType EventType, sku, location, channel string, available, reserved int32) *StockEvent {
	return &StockEvent{
		EventType: eventType,
		SKU:       sku,
		Location:  location,
		Channel:   channel,
		Available: available,
		Reserved:  reserved,
		Timestamp: time.Now(),
	}
}
