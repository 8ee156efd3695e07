package domain

import "time"

// StockKey идентифицирует партицию стока: товар на конкретном складе и канале продаж.
type StockKey struct {
	SKU      string
	Location string
	Channel  SalesChannel
}

// StockLevel — кэшированное состояние партиции стока.
// Источником истины является журнал InventoryTransaction; поля Available и
// Reserved обязаны точно восстанавливаться его проигрыванием.
type StockLevel struct {
	Key       StockKey
	Available int32
	Reserved  int32
	// LowStockAlerted фиксирует, что по текущему эпизоду низкого остатка
	// уже отправлен алерт. Сбрасывается, когда остаток поднимается выше порога.
	LowStockAlerted bool
	Version         int64
	UpdatedAt       time.Time
}

// Total возвращает суммарный сток партиции. Инвариант available + reserved == total
// поддерживается конструктивно: total нигде не хранится отдельно.
func (l StockLevel) Total() int32 {
	return l.Available + l.Reserved
}

// InventoryItem хранит справочные атрибуты SKU, общие для всех партиций.
type InventoryItem struct {
	SKU           string
	Name          string
	UnitCostMinor int64
	// ReorderPoint — порог, при падении available до которого поднимается алерт.
	ReorderPoint int32
	// ReorderQty — рекомендуемый объём дозаказа при срабатывании порога.
	ReorderQty int32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TransactionType — тип движения стока в журнале.
type TransactionType string

const (
	// TxPurchase — приход стока от поставщика (увеличивает available).
	TxPurchase TransactionType = "purchase"
	// TxSale — продажа: резерв конвертирован в отгрузку (уменьшает reserved и total).
	TxSale TransactionType = "sale"
	// TxReservation — перенос qty из available в reserved под заказ.
	TxReservation TransactionType = "reservation"
	// TxRelease — возврат qty из reserved в available (компенсация).
	TxRelease TransactionType = "release"
	// TxReturn — возврат товара клиентом (увеличивает available).
	TxReturn TransactionType = "return"
	// TxAdjustment — ручная корректировка available (знак в Qty).
	TxAdjustment TransactionType = "adjustment"
	// TxTransferOut / TxTransferIn — парный перенос между складами.
	TxTransferOut TransactionType = "transfer_out"
	TxTransferIn  TransactionType = "transfer_in"
)

// InventoryTransaction — одна запись append-only журнала движений стока.
type InventoryTransaction struct {
	ID   string
	Key  StockKey
	Type TransactionType
	// Qty — модуль количества; для adjustment допускается знак.
	Qty int32
	// OrderID заполняется для движений, привязанных к заказу.
	OrderID  string
	Actor    string
	Note     string
	Occurred time.Time
}

// Apply накатывает транзакцию на уровень стока и возвращает результат.
// Используется и живым леджером, и проверкой сверки журнала.
func (t InventoryTransaction) Apply(level StockLevel) StockLevel {
	switch t.Type {
	case TxPurchase, TxReturn, TxTransferIn:
		level.Available += t.Qty
	case TxAdjustment:
		level.Available += t.Qty
	case TxTransferOut:
		level.Available -= t.Qty
	case TxReservation:
		level.Available -= t.Qty
		level.Reserved += t.Qty
	case TxRelease:
		level.Available += t.Qty
		level.Reserved -= t.Qty
	case TxSale:
		level.Reserved -= t.Qty
	}
	return level
}

// ReplayTransactions восстанавливает уровень стока партиции с нуля по журналу.
func ReplayTransactions(key StockKey, txs []InventoryTransaction) StockLevel {
	level := StockLevel{Key: key}
	for _, tx := range txs {
		if tx.Key != key {
			continue
		}
		level = tx.Apply(level)
	}
	return level
}

// Validate проверяет корректность ключевых полей транзакции.
func (t *InventoryTransaction) Validate() []error {
	var errs []error

	if t.Key.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if t.Key.Location == "" {
		errs = append(errs, ErrLocationRequired)
	}
	if t.Qty == 0 {
		errs = append(errs, ErrTxQtyInvalid)
	}
	if t.Qty < 0 && t.Type != TxAdjustment {
		errs = append(errs, ErrTxQtyInvalid)
	}

	return errs
}
