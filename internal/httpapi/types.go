package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// --- Запросы ---

type createOrderItemRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Qty      int32  `json:"qty" validate:"required,gt=0"`
	Location string `json:"location" validate:"required"`
}

type createOrderRequest struct {
	CustomerID string                   `json:"customer_id" validate:"required"`
	Channel    string                   `json:"channel" validate:"required,oneof=online mobile in_store wholesale"`
	Items      []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Priority   int32                    `json:"priority" validate:"omitempty,gte=0"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type registerItemRequest struct {
	SKU           string `json:"sku" validate:"required"`
	Name          string `json:"name" validate:"required"`
	UnitCostMinor int64  `json:"unit_cost_minor" validate:"gte=0"`
	ReorderPoint  int32  `json:"reorder_point" validate:"gte=0"`
	ReorderQty    int32  `json:"reorder_qty" validate:"gte=0"`
}

type stockKeyRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Location string `json:"location" validate:"required"`
	Channel  string `json:"channel" validate:"required,oneof=online mobile in_store wholesale"`
}

type receiveStockRequest struct {
	stockKeyRequest
	Qty   int32  `json:"qty" validate:"required,gt=0"`
	Actor string `json:"actor" validate:"omitempty,max=100"`
}

type adjustStockRequest struct {
	stockKeyRequest
	Delta  int32  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
	Actor  string `json:"actor" validate:"omitempty,max=100"`
}

type transferStockRequest struct {
	SKU          string `json:"sku" validate:"required"`
	Qty          int32  `json:"qty" validate:"required,gt=0"`
	FromLocation string `json:"from_location" validate:"required"`
	ToLocation   string `json:"to_location" validate:"required,nefield=FromLocation"`
	Channel      string `json:"channel" validate:"required,oneof=online mobile in_store wholesale"`
	Actor        string `json:"actor" validate:"omitempty,max=100"`
}

type joinQueueRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	Discipline string `json:"discipline" validate:"required,oneof=fifo priority lottery"`
}

type dequeueRequest struct {
	Count int `json:"count" validate:"required,gt=0,lte=1000"`
}

type completeQueueRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

// --- Ответы ---

type orderItemResponse struct {
	ID         string `json:"id"`
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
	Location   string `json:"location"`
}

type statusChangeResponse struct {
	Status   string    `json:"status"`
	Note     string    `json:"note,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type orderResponse struct {
	ID               string                 `json:"id"`
	CustomerID       string                 `json:"customer_id"`
	Channel          string                 `json:"channel"`
	Status           string                 `json:"status"`
	AmountMinor      int64                  `json:"amount_minor"`
	Items            []orderItemResponse    `json:"items"`
	History          []statusChangeResponse `json:"history"`
	Priority         int32                  `json:"priority"`
	ProcessingTimeMs int64                  `json:"processing_time_ms,omitempty"`
	Version          int64                  `json:"version"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			Location:   item.Location,
		})
	}

	history := make([]statusChangeResponse, 0, len(order.History))
	for _, change := range order.History {
		history = append(history, statusChangeResponse{
			Status:   string(change.Status),
			Note:     change.Note,
			Occurred: change.Occurred,
		})
	}

	return orderResponse{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		Channel:          string(order.Channel),
		Status:           string(order.Status),
		AmountMinor:      order.AmountMinor,
		Items:            items,
		History:          history,
		Priority:         order.Priority,
		ProcessingTimeMs: order.ProcessingTime.Milliseconds(),
		Version:          order.Version,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

type stockLevelResponse struct {
	SKU             string    `json:"sku"`
	Location        string    `json:"location"`
	Channel         string    `json:"channel"`
	Available       int32     `json:"available"`
	Reserved        int32     `json:"reserved"`
	Total           int32     `json:"total"`
	LowStockAlerted bool      `json:"low_stock_alerted"`
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toStockLevelResponse(level domain.StockLevel) stockLevelResponse {
	return stockLevelResponse{
		SKU:             level.Key.SKU,
		Location:        level.Key.Location,
		Channel:         string(level.Key.Channel),
		Available:       level.Available,
		Reserved:        level.Reserved,
		Total:           level.Total(),
		LowStockAlerted: level.LowStockAlerted,
		Version:         level.Version,
		UpdatedAt:       level.UpdatedAt,
	}
}

type transactionResponse struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Qty      int32     `json:"qty"`
	OrderID  string    `json:"order_id,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	Note     string    `json:"note,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

func toTransactionResponses(txs []domain.InventoryTransaction) []transactionResponse {
	result := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		result = append(result, transactionResponse{
			ID:       tx.ID,
			Type:     string(tx.Type),
			Qty:      tx.Qty,
			OrderID:  tx.OrderID,
			Actor:    tx.Actor,
			Note:     tx.Note,
			Occurred: tx.Occurred,
		})
	}
	return result
}

type queueEntryResponse struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	CustomerID string    `json:"customer_id"`
	Discipline string    `json:"discipline"`
	Position   int       `json:"position"`
	Status     string    `json:"status"`
	JoinedAt   time.Time `json:"joined_at"`
}

func toQueueEntryResponse(entry domain.QueueEntry) queueEntryResponse {
	return queueEntryResponse{
		ID:         entry.ID,
		SKU:        entry.SKU,
		CustomerID: entry.CustomerID,
		Discipline: string(entry.Discipline),
		Position:   entry.Position,
		Status:     string(entry.Status),
		JoinedAt:   entry.JoinedAt,
	}
}
