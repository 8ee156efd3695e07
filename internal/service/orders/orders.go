package orders

import (
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// maxSaveAttempts ограничивает повторы при конфликте версий заказа.
const maxSaveAttempts = 3

// StockLedger — операции леджера, нужные машине статусов для побочных
// эффектов переходов.
type StockLedger interface {
	Release(key domain.StockKey, qty int32, orderID string) error
	CommitSale(key domain.StockKey, qty int32, orderID string) error
	Return(key domain.StockKey, qty int32, orderID string) error
	OrderReservation(orderID string, key domain.StockKey) (int32, error)
}

// Service — машина статусов заказа: единственный владелец поля status.
// Каждый допустимый переход сопровождается своим инвентарным эффектом,
// никто не пишет статус в обход Transition.
type Service struct {
	orders  domain.OrderRepository
	ledger  StockLedger
	payment domain.PaymentService
	outbox  domain.OutboxRepository
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewService создаёт машину статусов заказа.
func NewService(
	orders domain.OrderRepository,
	ledger StockLedger,
	payment domain.PaymentService,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orders")
	}
	return &Service{
		orders:  orders,
		ledger:  ledger,
		payment: payment,
		outbox:  outbox,
		logger:  logger,
		metrics: metrics.NewOrderMetrics(),
		now:     time.Now,
	}
}

// NewServiceWithoutMetrics создаёт машину статусов без метрик (для тестов).
func NewServiceWithoutMetrics(
	orders domain.OrderRepository,
	ledger StockLedger,
	payment domain.PaymentService,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	svc := NewService(orders, ledger, payment, outbox, logger)
	svc.metrics = nil
	return svc
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(orderID string) (domain.Order, error) {
	return s.orders.Get(orderID)
}

// ListByCustomer возвращает заказы клиента.
func (s *Service) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	return s.orders.ListByCustomer(customerID, limit)
}

// Transition переводит заказ в новый статус. Недопустимый переход
// отклоняется с ErrInvalidTransition до каких-либо мутаций; конфликт
// версий повторяется со свежим чтением. Инвентарные эффекты применяются
// после фиксации статуса, их сбой возвращается вызывающему.
func (s *Service) Transition(orderID string, to domain.OrderStatus, note string) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, domain.ErrStatusInvalid
	}

	var order domain.Order
	var from domain.OrderStatus
	for attempt := 0; ; attempt++ {
		var err error
		order, err = s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		from = order.Status
		if !domain.CanTransition(from, to) {
			return domain.Order{}, domain.ErrInvalidTransition
		}
		order.RecordStatus(to, note, s.now().UTC())

		err = s.orders.Save(order)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrOrderVersionConflict) || attempt+1 >= maxSaveAttempts {
			return domain.Order{}, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(to))
	}
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     from,
		"to":       to,
	}).Info("order transitioned")
	s.emitOrderUpdated(order, from, to, note)

	if err := s.applySideEffects(order, to); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"to":       to,
		}).Error("transition side effect failed")
		return order, err
	}
	return s.orders.Get(orderID)
}

// applySideEffects выполняет инвентарный и платёжный эффект перехода.
func (s *Service) applySideEffects(order domain.Order, to domain.OrderStatus) error {
	switch to {
	case domain.OrderStatusCancelled:
		return s.releaseRemaining(order)
	case domain.OrderStatusDelivered:
		return s.commitSale(order)
	case domain.OrderStatusReturned:
		return s.returnGoods(order)
	case domain.OrderStatusRefunded:
		return s.refund(order)
	default:
		return nil
	}
}

// releaseRemaining возвращает невыкупленный резерв каждой позиции в available.
func (s *Service) releaseRemaining(order domain.Order) error {
	for _, item := range order.Items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: order.Channel}
		remaining, err := s.ledger.OrderReservation(order.ID, key)
		if err != nil {
			return err
		}
		if remaining <= 0 {
			continue
		}
		if err := s.ledger.Release(key, remaining, order.ID); err != nil {
			return err
		}
	}
	return nil
}

// commitSale конвертирует резерв каждой позиции в продажу.
func (s *Service) commitSale(order domain.Order) error {
	for _, item := range order.Items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: order.Channel}
		if err := s.ledger.CommitSale(key, item.Qty, order.ID); err != nil {
			return err
		}
	}
	return nil
}

// returnGoods возвращает товар на склад. Для заказа, вернувшегося до
// доставки (shipped → returned), резерв ещё удерживается — его достаточно
// отпустить; после доставки продажа уже совершена и оформляется return.
func (s *Service) returnGoods(order domain.Order) error {
	for _, item := range order.Items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: order.Channel}
		remaining, err := s.ledger.OrderReservation(order.ID, key)
		if err != nil {
			return err
		}
		if remaining > 0 {
			if err := s.ledger.Release(key, remaining, order.ID); err != nil {
				return err
			}
			continue
		}
		if err := s.ledger.Return(key, item.Qty, order.ID); err != nil {
			return err
		}
	}
	return nil
}

// refund возвращает клиенту деньги через платёжного провайдера.
func (s *Service) refund(order domain.Order) error {
	if s.payment == nil {
		return nil
	}
	status, err := s.payment.Refund(order.ID, order.AmountMinor)
	if err != nil {
		return err
	}
	if status != domain.PaymentStatusRefunded {
		return domain.ErrPaymentIndeterminate
	}
	return nil
}

func (s *Service) emitOrderUpdated(order domain.Order, from, to domain.OrderStatus, note string) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":   order.ID,
		"old_status": string(from),
		"new_status": string(to),
		"note":       note,
		"ts":         s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("marshal order event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     "OrderUpdated",
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue order event failed")
	}
}
