package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка неподдерживаемого канала продаж.
	ErrChannelInvalid = errors.New("sales channel is invalid")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка отсутствующего SKU в позиции заказа.
	ErrItemSKURequired = errors.New("item sku is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка статуса вне фиксированного набора.
	ErrStatusInvalid = errors.New("order status is invalid")
	// ErrInvalidTransition возвращается при недопустимой смене статуса заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrCustomerVersionConflict — конфликт версий записи клиента.
	ErrCustomerVersionConflict = errors.New("customer version conflict")

	// Ошибки журнала стока.
	ErrSKURequired      = errors.New("sku is required")
	ErrLocationRequired = errors.New("location is required")
	ErrTxQtyInvalid     = errors.New("transaction qty is invalid")
	// ErrStockNotFound возвращается для неизвестной партиции стока.
	ErrStockNotFound = errors.New("stock level not found")
	// ErrStockVersionConflict — конкурирующая запись обновила партицию между
	// чтением и записью; леджер повторяет операцию с нового снапшота.
	ErrStockVersionConflict = errors.New("stock level version conflict")
	// ErrInsufficientStock — доступного остатка не хватает на запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidReservationState — заказ не резервировал указанное количество,
	// поэтому release/commit невозможен.
	ErrInvalidReservationState = errors.New("reservation state does not match request")

	// ErrQueueDisciplineInvalid — дисциплина очереди вне поддерживаемого набора.
	ErrQueueDisciplineInvalid = errors.New("queue discipline is invalid")
	// ErrAlreadyQueued — у клиента уже есть активная запись в очереди по этому SKU.
	ErrAlreadyQueued = errors.New("customer already queued for sku")
	// ErrQueueEntryNotFound — активной записи в очереди нет.
	ErrQueueEntryNotFound = errors.New("queue entry not found")

	// ErrTransactionFailed — составная транзакция не выполнена после исчерпания
	// retry-попыток; частичных изменений не осталось.
	ErrTransactionFailed = errors.New("order transaction failed after retries")

	// ErrPaymentDeclined — платёж отклонён провайдером (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentIndeterminate — неопределённый статус платежа; требуется reconcile.
	ErrPaymentIndeterminate = errors.New("payment indeterminate state")
	// ErrPaymentTemporary — временная ошибка платёжного провайдера.
	ErrPaymentTemporary = errors.New("payment temporary error")

	// ErrProductNotFound — SKU отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-слоя.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency request hash mismatch")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// InsufficientStockError уточняет ErrInsufficientStock первым отказавшим SKU.
type InsufficientStockError struct {
	Key       StockKey
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s at %s/%s: requested %d, available %d",
		e.Key.SKU, e.Key.Location, e.Key.Channel, e.Requested, e.Available)
}

// Unwrap позволяет сопоставлять ошибку с ErrInsufficientStock через errors.Is.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsVersionConflict проверяет, является ли ошибка конфликтом оптимистичных версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) ||
		errors.Is(err, ErrStockVersionConflict) ||
		errors.Is(err, ErrCustomerVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к семейству "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrStockNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrQueueEntryNotFound)
}

// IsValidation проверяет, относится ли ошибка к отбраковке входных данных.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrCustomerRequired, ErrChannelInvalid, ErrItemsRequired, ErrAmountNegative,
		ErrItemSKURequired, ErrItemQtyInvalid, ErrItemPriceInvalid, ErrAmountMismatch,
		ErrStatusInvalid, ErrQueueDisciplineInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
