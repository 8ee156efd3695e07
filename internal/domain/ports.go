package domain

import "time"

// Product — снимок карточки товара из внешнего каталога.
type Product struct {
	SKU        string
	Name       string
	Category   string
	PriceMinor int64
}

// CatalogService описывает read-only доступ к каталогу товаров.
// Ядро не кэширует результат дольше одной транзакции.
type CatalogService interface {
	GetProduct(sku string) (Product, error)
}

// CustomerStore описывает внешний store клиентов и лояльности.
type CustomerStore interface {
	GetCustomer(id string) (Customer, error)
	// UpdateCustomer применяет обновление с учётом optimistic locking по Version.
	UpdateCustomer(customer Customer) error
}

// PaymentService описывает взаимодействие с платёжным провайдером.
type PaymentService interface {
	// Pay инициирует списание средств по заказу.
	Pay(orderID string, amountMinor int64) (PaymentStatus, error)
	// Refund инициирует возврат средств (для компенсаций/возвратов).
	Refund(orderID string, amountMinor int64) (PaymentStatus, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
