package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	// maxApplyAttempts ограничивает повторы при конфликте версий партиции.
	maxApplyAttempts = 5
	applyRetryDelay  = 5 * time.Millisecond
)

// Service — леджер стока: единственный компонент, которому разрешено менять
// уровни партиций. Каждая мутация записывает ровно одну (для transfer — две)
// транзакцию журнала до того, как вернуть успех.
type Service struct {
	inv     domain.InventoryRepository
	outbox  domain.OutboxRepository
	logger  *log.Entry
	metrics *metrics.InventoryMetrics
}

// NewService создаёт леджер стока.
func NewService(inv domain.InventoryRepository, outbox domain.OutboxRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "ledger")
	}
	return &Service{
		inv:     inv,
		outbox:  outbox,
		logger:  logger,
		metrics: metrics.NewInventoryMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт леджер без метрик (для тестов).
func NewServiceWithoutMetrics(inv domain.InventoryRepository, outbox domain.OutboxRepository, logger *log.Entry) *Service {
	svc := NewService(inv, outbox, logger)
	svc.metrics = nil
	return svc
}

// RegisterItem сохраняет справочные атрибуты SKU (reorder point и прочее).
func (s *Service) RegisterItem(item domain.InventoryItem) error {
	if item.SKU == "" {
		return domain.ErrSKURequired
	}
	return s.inv.UpsertItem(item)
}

// Level возвращает текущий кэшированный уровень партиции.
func (s *Service) Level(key domain.StockKey) (domain.StockLevel, error) {
	return s.inv.GetLevel(key)
}

// Transactions возвращает журнал движений партиции.
func (s *Service) Transactions(key domain.StockKey) ([]domain.InventoryTransaction, error) {
	return s.inv.ListTransactions(key)
}

// OrderReservation возвращает невыкупленный резерв заказа по партиции.
// Компенсирующие операции выясняют через него, сколько ещё нужно вернуть.
func (s *Service) OrderReservation(orderID string, key domain.StockKey) (int32, error) {
	return s.inv.OrderReservation(orderID, key)
}

// Reconcile проигрывает журнал партиции с нуля и сверяет его с кэшем.
// Расхождение означает, что кто-то менял сток в обход леджера.
func (s *Service) Reconcile(key domain.StockKey) error {
	cached, err := s.inv.GetLevel(key)
	if err != nil {
		return err
	}
	txs, err := s.inv.ListTransactions(key)
	if err != nil {
		return err
	}
	replayed := domain.ReplayTransactions(key, txs)
	if replayed.Available != cached.Available || replayed.Reserved != cached.Reserved {
		return fmt.Errorf("ledger out of sync for %s/%s/%s: replayed a=%d r=%d, cached a=%d r=%d",
			key.SKU, key.Location, key.Channel,
			replayed.Available, replayed.Reserved, cached.Available, cached.Reserved)
	}
	return nil
}

// Reserve переносит qty из available в reserved под заказ.
// Единственный способ появления зарезервированного стока.
func (s *Service) Reserve(key domain.StockKey, qty int32, orderID string) error {
	if qty <= 0 {
		return domain.ErrTxQtyInvalid
	}
	err := s.mutate(key, func(level *domain.StockLevel) (*domain.InventoryTransaction, error) {
		if level.Available < qty {
			if s.metrics != nil {
				s.metrics.RecordInsufficientStock()
			}
			return nil, &domain.InsufficientStockError{Key: key, Requested: qty, Available: level.Available}
		}
		level.Available -= qty
		level.Reserved += qty
		return &domain.InventoryTransaction{
			Key: key, Type: domain.TxReservation, Qty: qty, OrderID: orderID,
		}, nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(domain.TxReservation))
	}
	return nil
}

// Release возвращает qty из reserved в available (компенсация резерва).
// Отклоняется, если заказ не резервировал столько по этой партиции.
func (s *Service) Release(key domain.StockKey, qty int32, orderID string) error {
	if qty <= 0 {
		return domain.ErrTxQtyInvalid
	}
	if err := s.checkReservation(key, qty, orderID); err != nil {
		return err
	}
	err := s.mutate(key, func(level *domain.StockLevel) (*domain.InventoryTransaction, error) {
		if level.Reserved < qty {
			return nil, domain.ErrInvalidReservationState
		}
		level.Available += qty
		level.Reserved -= qty
		return &domain.InventoryTransaction{
			Key: key, Type: domain.TxRelease, Qty: qty, OrderID: orderID,
		}, nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(domain.TxRelease))
	}
	return nil
}

// CommitSale конвертирует резерв в продажу: reserved и total уменьшаются
// насовсем. Вызывается при достижении заказом терминального успеха.
func (s *Service) CommitSale(key domain.StockKey, qty int32, orderID string) error {
	if qty <= 0 {
		return domain.ErrTxQtyInvalid
	}
	if err := s.checkReservation(key, qty, orderID); err != nil {
		return err
	}
	err := s.mutate(key, func(level *domain.StockLevel) (*domain.InventoryTransaction, error) {
		if level.Reserved < qty {
			return nil, domain.ErrInvalidReservationState
		}
		level.Reserved -= qty
		return &domain.InventoryTransaction{
			Key: key, Type: domain.TxSale, Qty: qty, OrderID: orderID,
		}, nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(domain.TxSale))
	}
	return nil
}

// ReceiveStock оформляет приход стока от поставщика; заводит партицию,
// если её ещё не было.
func (s *Service) ReceiveStock(key domain.StockKey, qty int32, actor string) error {
	if qty <= 0 {
		return domain.ErrTxQtyInvalid
	}
	if _, err := s.inv.GetLevel(key); errors.Is(err, domain.ErrStockNotFound) {
		if createErr := s.inv.CreateLevel(domain.StockLevel{Key: key}); createErr != nil {
			return createErr
		}
	} else if err != nil {
		return err
	}
	err := s.mutate(key, func(level *domain.StockLevel) (*domain.InventoryTransaction, error) {
		level.Available += qty
		return &domain.InventoryTransaction{
			Key: key, Type: domain.TxPurchase, Qty: qty, Actor: actor,
		}, nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(domain.TxPurchase))
	}
	return nil
}

// Return оформляет возврат товара клиентом: qty возвращается в available.
func (s *Service) Return(key domain.StockKey, qty int32, orderID string) error {
	if qty <= 0 {
		return domain.ErrTxQtyInvalid
	}
	err := s.mutate(key, func(level *domain.StockLevel) (*domain.InventoryTransaction, error) {
		level.Available += qty
		return &domain.InventoryTransaction{
			Key: key, Type: domain.TxReturn, Qty: qty, OrderID: orderID,
		}, nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(domain.TxReturn))
	}
	return nil
}

// Adjust применяет ручную корректировку available (знак в delta).
func (s *Service) Adjust(key domain.StockKey, delta int32, reason, actor string) error {
	if delta == 0 {
		return domain.ErrTxQtyInvalid
	}
	err := s.mutate(key, func(level *domain.StockLevel) (*domain.InventoryTransaction, error) {
		if level.Available+delta < 0 {
			return nil, &domain.InsufficientStockError{Key: key, Requested: -delta, Available: level.Available}
		}
		level.Available += delta
		return &domain.InventoryTransaction{
			Key: key, Type: domain.TxAdjustment, Qty: delta, Note: reason, Actor: actor,
		}, nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(domain.TxAdjustment))
	}
	return nil
}

// Transfer переносит qty между складами одной парой движений: либо обе
// записи журнала применяются, либо ни одной.
func (s *Service) Transfer(sku string, qty int32, fromLocation, toLocation string, channel domain.SalesChannel, actor string) error {
	if qty <= 0 {
		return domain.ErrTxQtyInvalid
	}
	if fromLocation == toLocation {
		return domain.ErrLocationRequired
	}

	fromKey := domain.StockKey{SKU: sku, Location: fromLocation, Channel: channel}
	toKey := domain.StockKey{SKU: sku, Location: toLocation, Channel: channel}

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		from, err := s.inv.GetLevel(fromKey)
		if err != nil {
			return err
		}
		to, err := s.inv.GetLevel(toKey)
		if errors.Is(err, domain.ErrStockNotFound) {
			if createErr := s.inv.CreateLevel(domain.StockLevel{Key: toKey}); createErr != nil {
				return createErr
			}
			to, err = s.inv.GetLevel(toKey)
		}
		if err != nil {
			return err
		}

		if from.Available < qty {
			return &domain.InsufficientStockError{Key: fromKey, Requested: qty, Available: from.Available}
		}
		wasAlerted := from.LowStockAlerted
		from.Available -= qty
		to.Available += qty
		s.latchLowStock(&from)
		s.unlatchLowStock(&to)

		err = s.inv.Apply(
			[]domain.StockLevel{from, to},
			[]domain.InventoryTransaction{
				{Key: fromKey, Type: domain.TxTransferOut, Qty: qty, Actor: actor},
				{Key: toKey, Type: domain.TxTransferIn, Qty: qty, Actor: actor},
			},
		)
		if domain.IsVersionConflict(err) {
			time.Sleep(applyRetryDelay)
			continue
		}
		if err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordTransaction(string(domain.TxTransferOut))
		}
		s.emitStockChanged(from)
		s.emitStockChanged(to)
		if from.LowStockAlerted && !wasAlerted {
			s.emitLowStock(from)
		}
		return nil
	}
	return domain.ErrStockVersionConflict
}

// mutate выполняет одну операцию над партицией с повтором на конфликте версий.
// fn мутирует уровень и возвращает транзакцию журнала.
func (s *Service) mutate(key domain.StockKey, fn func(level *domain.StockLevel) (*domain.InventoryTransaction, error)) error {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		level, err := s.inv.GetLevel(key)
		if err != nil {
			return err
		}

		before := level.Available
		wasAlerted := level.LowStockAlerted
		tx, err := fn(&level)
		if err != nil {
			return err
		}
		if level.Available < 0 || level.Reserved < 0 {
			return domain.ErrTxQtyInvalid
		}
		if level.Available < before {
			s.latchLowStock(&level)
		} else if level.Available > before {
			s.unlatchLowStock(&level)
		}

		err = s.inv.Apply([]domain.StockLevel{level}, []domain.InventoryTransaction{*tx})
		if domain.IsVersionConflict(err) {
			if s.metrics != nil {
				s.metrics.RecordConflictRetry()
			}
			time.Sleep(applyRetryDelay)
			continue
		}
		if err != nil {
			return err
		}

		s.emitStockChanged(level)
		if level.LowStockAlerted && !wasAlerted {
			s.emitLowStock(level)
		}
		return nil
	}
	return domain.ErrStockVersionConflict
}

// latchLowStock взводит защёлку алерта, если остаток упал до reorder point.
// Повторный алерт внутри одного эпизода не отправляется.
func (s *Service) latchLowStock(level *domain.StockLevel) {
	item, err := s.inv.GetItem(level.Key.SKU)
	if err != nil || item.ReorderPoint <= 0 {
		return
	}
	if level.Available <= item.ReorderPoint && !level.LowStockAlerted {
		level.LowStockAlerted = true
	}
}

// unlatchLowStock сбрасывает защёлку, когда остаток восстановился выше порога:
// следующее падение даст свежий алерт.
func (s *Service) unlatchLowStock(level *domain.StockLevel) {
	if !level.LowStockAlerted {
		return
	}
	item, err := s.inv.GetItem(level.Key.SKU)
	if err != nil {
		return
	}
	if level.Available > item.ReorderPoint {
		level.LowStockAlerted = false
	}
}

// emitLowStock публикует алерт низкого остатка. Вызывается ровно один раз
// за эпизод: защёлка взводится в той же атомарной записи, что и декремент.
func (s *Service) emitLowStock(level domain.StockLevel) {
	item, err := s.inv.GetItem(level.Key.SKU)
	if err != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordLowStockAlert()
	}
	s.logger.WithFields(log.Fields{
		"sku":       level.Key.SKU,
		"location":  level.Key.Location,
		"available": level.Available,
		"reorder":   item.ReorderQty,
	}).Warn("low stock alert")
	s.emitEvent(level.Key, "LowStockAlert", map[string]interface{}{
		"available":   level.Available,
		"reorder_qty": item.ReorderQty,
	})
}

func (s *Service) emitStockChanged(level domain.StockLevel) {
	s.emitEvent(level.Key, "StockChanged", map[string]interface{}{
		"available": level.Available,
		"reserved":  level.Reserved,
		"total":     level.Total(),
	})
}

func (s *Service) emitEvent(key domain.StockKey, eventType string, payload map[string]interface{}) {
	if s.outbox == nil {
		return
	}
	payload["sku"] = key.SKU
	payload["location"] = key.Location
	payload["channel"] = string(key.Channel)
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("sku", key.SKU).Error("marshal stock event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "inventory",
		AggregateID:   key.SKU,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sku":   key.SKU,
			"event": eventType,
		}).Error("enqueue stock event failed")
	}
}

// checkReservation сверяет запрошенное количество с журналом резервов заказа.
func (s *Service) checkReservation(key domain.StockKey, qty int32, orderID string) error {
	if orderID == "" {
		return domain.ErrInvalidReservationState
	}
	reserved, err := s.inv.OrderReservation(orderID, key)
	if err != nil {
		return err
	}
	if reserved < qty {
		return domain.ErrInvalidReservationState
	}
	return nil
}
