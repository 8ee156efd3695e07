package orchestrator

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// RetryConfig управляет повторами составной транзакции при optimistic-конфликтах.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig — три попытки с экспоненциальным backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        time.Second,
	}
}

// backoff возвращает паузу перед попыткой attempt (нумерация с нуля).
func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.BackoffMultiplier)
		if delay >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return delay
}

// StockLedger — операции леджера стока, нужные оркестратору.
type StockLedger interface {
	Level(key domain.StockKey) (domain.StockLevel, error)
	Reserve(key domain.StockKey, qty int32, orderID string) error
	Release(key domain.StockKey, qty int32, orderID string) error
	OrderReservation(orderID string, key domain.StockKey) (int32, error)
}

// ItemRequest — одна позиция запроса на создание заказа. Цена не принимается
// от клиента: она берётся из каталога в момент транзакции.
type ItemRequest struct {
	SKU      string
	Qty      int32
	Location string
}

// OrderRequest — входные данные составной транзакции создания заказа.
type OrderRequest struct {
	CustomerID string
	Channel    domain.SalesChannel
	Items      []ItemRequest
	// Priority задаёт порядок в конвейере; при нуле выводится из tier клиента.
	Priority int32
}

// Service — транзакционный оркестратор: оборачивает сток + заказ + лояльность
// в одну атомарную единицу с повторами и компенсирующим откатом.
type Service struct {
	orders    domain.OrderRepository
	ledger    StockLedger
	customers domain.CustomerStore
	catalog   domain.CatalogService
	outbox    domain.OutboxRepository
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
	retry     RetryConfig
	now       func() time.Time
}

// NewService создаёт оркестратор с конфигурацией повторов по умолчанию.
func NewService(
	orders domain.OrderRepository,
	ledger StockLedger,
	customers domain.CustomerStore,
	catalog domain.CatalogService,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orchestrator")
	}
	return &Service{
		orders:    orders,
		ledger:    ledger,
		customers: customers,
		catalog:   catalog,
		outbox:    outbox,
		logger:    logger,
		metrics:   metrics.NewOrderMetrics(),
		retry:     DefaultRetryConfig(),
		now:       time.Now,
	}
}

// NewServiceWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewServiceWithoutMetrics(
	orders domain.OrderRepository,
	ledger StockLedger,
	customers domain.CustomerStore,
	catalog domain.CatalogService,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	svc := NewService(orders, ledger, customers, catalog, outbox, logger)
	svc.metrics = nil
	return svc
}

// WithRetryConfig заменяет конфигурацию повторов.
func (s *Service) WithRetryConfig(cfg RetryConfig) *Service {
	s.retry = cfg
	return s
}

// ExecuteOrderTransaction выполняет составную транзакцию создания заказа:
// резерв стока по каждой позиции, запись заказа и начисление лояльности.
// Optimistic-конфликты повторяются с backoff; после исчерпания попыток
// возвращается ErrTransactionFailed. Ошибки вызывающей стороны (валидация,
// нехватка стока, неизвестный клиент) не повторяются.
func (s *Service) ExecuteOrderTransaction(req OrderRequest) (domain.Order, error) {
	if err := s.validateRequest(req); err != nil {
		if s.metrics != nil {
			s.metrics.RecordOrderFailed()
		}
		return domain.Order{}, err
	}

	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.retry.backoff(attempt - 1))
			s.logger.WithFields(log.Fields{
				"customer": req.CustomerID,
				"attempt":  attempt + 1,
			}).Warn("retrying order transaction after conflict")
		}

		order, err := s.attemptTransaction(req)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordOrderCreated()
			}
			s.emitOrderEvent(order, "OrderCreated", "")
			return order, nil
		}
		if !domain.IsVersionConflict(err) {
			if s.metrics != nil {
				s.metrics.RecordOrderFailed()
			}
			return domain.Order{}, err
		}
		lastErr = err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderFailed()
	}
	s.logger.WithError(lastErr).WithField("customer", req.CustomerID).
		Error("order transaction failed after retries")
	return domain.Order{}, domain.ErrTransactionFailed
}

// attemptTransaction — одна попытка составной транзакции. Любой сбой после
// частичного резерва компенсируется release всех уже удержанных позиций,
// поэтому сток никогда не остаётся зарезервированным наполовину.
func (s *Service) attemptTransaction(req OrderRequest) (domain.Order, error) {
	customer, err := s.customers.GetCustomer(req.CustomerID)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now().UTC()
	items, amount, err := s.priceItems(req, now)
	if err != nil {
		return domain.Order{}, err
	}

	// Предварительная проверка стока до каких-либо мутаций: при нехватке
	// транзакция отклоняется с первым отказавшим SKU.
	for _, item := range items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: req.Channel}
		level, err := s.ledger.Level(key)
		if err != nil {
			return domain.Order{}, err
		}
		if level.Available < item.Qty {
			return domain.Order{}, &domain.InsufficientStockError{
				Key: key, Requested: item.Qty, Available: level.Available,
			}
		}
	}

	orderID := uuid.NewString()
	reserved := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: req.Channel}
		if err := s.ledger.Reserve(key, item.Qty, orderID); err != nil {
			s.releaseItems(orderID, reserved, req.Channel)
			return domain.Order{}, err
		}
		reserved = append(reserved, item)
	}

	order := domain.Order{
		ID:          orderID,
		CustomerID:  req.CustomerID,
		Channel:     req.Channel,
		Status:      domain.OrderStatusPending,
		AmountMinor: amount,
		Items:       items,
		Priority:    s.priority(req, customer),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	order.History = append(order.History, domain.StatusChange{
		Status: domain.OrderStatusPending, Note: "order created", Occurred: now,
	})

	if err := s.orders.Create(order); err != nil {
		s.releaseItems(orderID, reserved, req.Channel)
		return domain.Order{}, err
	}

	if err := s.awardLoyalty(customer.ID, amount); err != nil {
		s.releaseItems(orderID, reserved, req.Channel)
		s.cancelOrder(orderID, "loyalty update failed")
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"customer": req.CustomerID,
		"amount":   amount,
		"items":    len(items),
	}).Info("order transaction committed")
	return order, nil
}

// RollbackOrder — компенсирующая транзакция: возвращает невыкупленный резерв
// каждой позиции обратно в available и отменяет заказ с указанием причины.
// Идемпотентна: повторный вызов для уже отменённого заказа — no-op.
func (s *Service) RollbackOrder(orderID, reason string) error {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return nil
	}

	for _, item := range order.Items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: order.Channel}
		remaining, err := s.ledger.OrderReservation(orderID, key)
		if err != nil {
			return err
		}
		if remaining <= 0 {
			continue
		}
		if err := s.ledger.Release(key, remaining, orderID); err != nil {
			return err
		}
	}

	if err := s.cancelOrder(orderID, reason); err != nil {
		return err
	}

	order, err = s.orders.Get(orderID)
	if err == nil {
		s.emitOrderEvent(order, "OrderFailed", reason)
	}
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"reason":   reason,
	}).Warn("order rolled back")
	return nil
}

func (s *Service) validateRequest(req OrderRequest) error {
	if req.CustomerID == "" {
		return domain.ErrCustomerRequired
	}
	if !req.Channel.Valid() {
		return domain.ErrChannelInvalid
	}
	if len(req.Items) == 0 {
		return domain.ErrItemsRequired
	}
	for _, item := range req.Items {
		if item.SKU == "" {
			return domain.ErrItemSKURequired
		}
		if item.Qty <= 0 {
			return domain.ErrItemQtyInvalid
		}
		if item.Location == "" {
			return domain.ErrLocationRequired
		}
	}
	return nil
}

// priceItems превращает запрос в позиции заказа с ценами из каталога.
func (s *Service) priceItems(req OrderRequest, now time.Time) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, 0, len(req.Items))
	var amount int64
	for _, item := range req.Items {
		product, err := s.catalog.GetProduct(item.SKU)
		if err != nil {
			return nil, 0, err
		}
		orderItem := domain.OrderItem{
			ID:         uuid.NewString(),
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: product.PriceMinor,
			Location:   item.Location,
			CreatedAt:  now,
		}
		amount += orderItem.SubtotalMinor()
		items = append(items, orderItem)
	}
	return items, amount, nil
}

// priority возвращает приоритет заказа: явный из запроса либо выведенный из tier.
func (s *Service) priority(req OrderRequest, customer domain.Customer) int32 {
	if req.Priority != 0 {
		return req.Priority
	}
	switch customer.Tier {
	case domain.TierGold:
		return 100
	case domain.TierSilver:
		return 50
	default:
		return 10
	}
}

// awardLoyalty начисляет баллы и пересчитывает tier. Конфликт версии записи
// клиента повторяется со свежим чтением: начисление применяется ровно один раз.
func (s *Service) awardLoyalty(customerID string, amountMinor int64) error {
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		customer, err := s.customers.GetCustomer(customerID)
		if err != nil {
			return err
		}
		customer.LoyaltyPoints += domain.LoyaltyPointsFor(amountMinor, customer.Tier)
		customer.TotalSpentMinor += amountMinor
		customer.Tier = domain.TierFor(customer.TotalSpentMinor)

		err = s.customers.UpdateCustomer(customer)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrCustomerVersionConflict) {
			return err
		}
	}
	return domain.ErrCustomerVersionConflict
}

// releaseItems возвращает уже удержанные позиции при сбое внутри попытки.
func (s *Service) releaseItems(orderID string, items []domain.OrderItem, channel domain.SalesChannel) {
	for _, item := range items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: channel}
		if err := s.ledger.Release(key, item.Qty, orderID); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"sku":      item.SKU,
			}).Error("compensating release failed")
		}
	}
}

// cancelOrder переводит заказ в cancelled с повтором на конфликте версий.
func (s *Service) cancelOrder(orderID, reason string) error {
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCancelled {
			return nil
		}
		if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
			return domain.ErrInvalidTransition
		}
		order.RecordStatus(domain.OrderStatusCancelled, reason, s.now().UTC())

		err = s.orders.Save(order)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordTransition(string(domain.OrderStatusCancelled))
			}
			return nil
		}
		if !errors.Is(err, domain.ErrOrderVersionConflict) {
			return err
		}
	}
	return domain.ErrOrderVersionConflict
}

func (s *Service) emitOrderEvent(order domain.Order, eventType, note string) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"channel":      string(order.Channel),
		"status":       string(order.Status),
		"amount_minor": order.AmountMinor,
		"note":         note,
		"ts":           s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("marshal order event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue order event failed")
	}
}
