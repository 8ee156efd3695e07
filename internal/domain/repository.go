package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// ListByStatus возвращает заказы в указанном статусе; конвейер обработки
	// выбирает ими pending-заказы и ищет застрявшие.
	ListByStatus(status OrderStatus, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// InventoryRepository описывает хранилище стока и append-only журнала движений.
type InventoryRepository interface {
	// GetLevel возвращает уровень партиции или ErrStockNotFound.
	GetLevel(key StockKey) (StockLevel, error)
	// CreateLevel заводит новую партицию с нулевым стоком.
	CreateLevel(level StockLevel) error
	// GetItem возвращает справочные атрибуты SKU.
	GetItem(sku string) (InventoryItem, error)
	// UpsertItem сохраняет справочные атрибуты SKU.
	UpsertItem(item InventoryItem) error
	// Apply атомарно сохраняет изменённые уровни (с проверкой версий) и дописывает
	// транзакции журнала: либо всё, либо ничего. Так парные движения transfer
	// остаются неделимыми.
	Apply(levels []StockLevel, txs []InventoryTransaction) error
	// ListTransactions возвращает журнал партиции в порядке записи.
	ListTransactions(key StockKey) ([]InventoryTransaction, error)
	// OrderReservation возвращает невыкупленный остаток резерва заказа по партиции:
	// sum(reservation) - sum(release) - sum(sale).
	OrderReservation(orderID string, key StockKey) (int32, error)
}
