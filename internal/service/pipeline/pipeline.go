package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultInterval       = 30 * time.Second
	defaultBatchSize      = 50
	defaultConcurrency    = 8
	defaultStuckThreshold = 2 * time.Hour
)

// StateMachine — переходы статусов, которыми конвейер двигает заказ.
type StateMachine interface {
	Transition(orderID string, to domain.OrderStatus, note string) (domain.Order, error)
}

// Compensator откатывает заказ при сбое шага конвейера.
type Compensator interface {
	RollbackOrder(orderID, reason string) error
}

// ReservationReader — проверка, что резерв заказа ещё удерживается.
type ReservationReader interface {
	OrderReservation(orderID string, key domain.StockKey) (int32, error)
}

// StaleExpirer возвращает в очередь допуска просроченные слоты.
type StaleExpirer interface {
	ExpireStale() int
}

// Worker — конвейер обработки заказов: периодически забирает pending-заказы
// в порядке приоритета и проводит каждый через confirm → pay → fulfill →
// ship → deliver. Заказ в работе отмечается в in-flight set, чтобы два
// воркера не двигали его одновременно.
type Worker struct {
	orders       domain.OrderRepository
	machine      StateMachine
	compensator  Compensator
	payment      domain.PaymentService
	reservations ReservationReader
	queue        StaleExpirer
	outbox       domain.OutboxRepository
	logger       *log.Entry
	metrics      *metrics.OrderMetrics
	now          func() time.Time

	interval       time.Duration
	batchSize      int
	concurrency    int
	stuckThreshold time.Duration
	// channelLatency симулирует задержку комплектации по каналу продаж.
	channelLatency map[domain.SalesChannel]time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option настраивает конвейер обработки.
type Option func(*Worker)

// WithInterval задаёт период между тиками конвейера.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) { w.interval = interval }
}

// WithBatchSize ограничивает количество заказов за тик.
func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batchSize = n }
}

// WithConcurrency задаёт число параллельных воркеров внутри тика.
func WithConcurrency(n int) Option {
	return func(w *Worker) { w.concurrency = n }
}

// WithStuckThreshold задаёт порог, после которого заказ считается застрявшим.
func WithStuckThreshold(threshold time.Duration) Option {
	return func(w *Worker) { w.stuckThreshold = threshold }
}

// WithChannelLatency заменяет симулируемые задержки комплектации.
func WithChannelLatency(latency map[domain.SalesChannel]time.Duration) Option {
	return func(w *Worker) { w.channelLatency = latency }
}

// WithQueue подключает очередь допуска для возврата просроченных слотов.
func WithQueue(queue StaleExpirer) Option {
	return func(w *Worker) { w.queue = queue }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithoutMetrics отключает метрики (для тестов).
func WithoutMetrics() Option {
	return func(w *Worker) { w.metrics = nil }
}

// NewWorker создаёт конвейер обработки заказов.
func NewWorker(
	orders domain.OrderRepository,
	machine StateMachine,
	compensator Compensator,
	payment domain.PaymentService,
	reservations ReservationReader,
	outbox domain.OutboxRepository,
	logger *log.Entry,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = log.New().WithField("component", "pipeline")
	}
	w := &Worker{
		orders:         orders,
		machine:        machine,
		compensator:    compensator,
		payment:        payment,
		reservations:   reservations,
		outbox:         outbox,
		logger:         logger,
		metrics:        metrics.NewOrderMetrics(),
		now:            time.Now,
		interval:       defaultInterval,
		batchSize:      defaultBatchSize,
		concurrency:    defaultConcurrency,
		stuckThreshold: defaultStuckThreshold,
		channelLatency: map[domain.SalesChannel]time.Duration{
			domain.ChannelOnline:    50 * time.Millisecond,
			domain.ChannelMobile:    50 * time.Millisecond,
			domain.ChannelInStore:   10 * time.Millisecond,
			domain.ChannelWholesale: 200 * time.Millisecond,
		},
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run крутит конвейер до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	w.logger.WithField("interval", w.interval).Info("pipeline started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pipeline stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
			w.SweepStuck()
		}
	}
}

// Tick обрабатывает одну партию pending-заказов в порядке приоритета.
func (w *Worker) Tick(ctx context.Context) {
	pending, err := w.orders.ListByStatus(domain.OrderStatusPending, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Error("list pending orders failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, order := range pending {
		if ctx.Err() != nil {
			break
		}
		if !w.tryAcquire(order.ID) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(order domain.Order) {
			defer wg.Done()
			defer func() { <-sem }()
			defer w.release(order.ID)

			w.processOrder(order)
		}(order)
	}
	wg.Wait()
}

// processOrder проводит заказ через все стадии. Сбой любого шага приводит
// к компенсирующему откату: заказ отменяется с причиной, резерв возвращается.
func (w *Worker) processOrder(order domain.Order) {
	started := w.now()
	if w.metrics != nil {
		w.metrics.RecordInFlightStarted()
		defer w.metrics.RecordInFlightFinished()
	}

	if err := w.advance(order, domain.OrderStatusConfirmed, ""); err != nil {
		w.fail(order, "confirmation failed: "+err.Error())
		return
	}

	status, err := w.payment.Pay(order.ID, order.AmountMinor)
	if err != nil || !status.Settled() {
		note := "payment failed"
		if err != nil {
			note = "payment failed: " + err.Error()
		}
		w.fail(order, note)
		return
	}

	// Повторная сверка резерва после оплаты: если резерв утрачен,
	// деньги возвращаются и заказ откатывается.
	if err := w.revalidateReservation(order); err != nil {
		if _, refundErr := w.payment.Refund(order.ID, order.AmountMinor); refundErr != nil {
			w.logger.WithError(refundErr).WithField("order_id", order.ID).Error("refund after failed revalidation failed")
		}
		w.fail(order, "inventory revalidation failed: "+err.Error())
		return
	}

	if err := w.advance(order, domain.OrderStatusProcessing, ""); err != nil {
		w.fail(order, "processing step failed: "+err.Error())
		return
	}
	time.Sleep(w.channelLatency[order.Channel])

	if err := w.advance(order, domain.OrderStatusShipped, ""); err != nil {
		w.fail(order, "shipping step failed: "+err.Error())
		return
	}
	time.Sleep(w.channelLatency[order.Channel])

	if err := w.advance(order, domain.OrderStatusDelivered, ""); err != nil {
		w.fail(order, "delivery step failed: "+err.Error())
		return
	}

	if w.metrics != nil {
		w.metrics.RecordPipelineProcessed()
		w.metrics.RecordPipelineDuration(w.now().Sub(started))
	}
	w.emitPipelineEvent(order.ID, "OrderProcessed", "")
	w.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"duration": w.now().Sub(started),
	}).Info("order processed")
}

// SweepStuck находит заказы, застрявшие в confirmed/processing дольше порога.
// Застрявшие заказы не отменяются автоматически: они публикуются для
// операторского вмешательства. Заодно истекают просроченные слоты очереди.
func (w *Worker) SweepStuck() int {
	cutoff := w.now().Add(-w.stuckThreshold)
	stuck := 0
	for _, status := range []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusProcessing} {
		orders, err := w.orders.ListByStatus(status, 0)
		if err != nil {
			w.logger.WithError(err).WithField("status", status).Error("list orders for sweep failed")
			continue
		}
		for _, order := range orders {
			if order.UpdatedAt.After(cutoff) {
				continue
			}
			if w.isInFlight(order.ID) {
				continue
			}
			stuck++
			w.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"status":   order.Status,
				"stale":    w.now().Sub(order.UpdatedAt),
			}).Warn("stuck order detected")
			w.emitPipelineEvent(order.ID, "OrderStuck", string(order.Status))
		}
	}

	if w.metrics != nil {
		w.metrics.SetStuckOrders(stuck)
	}
	if w.queue != nil {
		if expired := w.queue.ExpireStale(); expired > 0 {
			w.logger.WithField("count", expired).Info("expired admission slots re-queued")
		}
	}
	return stuck
}

func (w *Worker) advance(order domain.Order, to domain.OrderStatus, note string) error {
	_, err := w.machine.Transition(order.ID, to, note)
	return err
}

// fail откатывает заказ с причиной и учитывает сбой в метриках.
func (w *Worker) fail(order domain.Order, reason string) {
	if w.metrics != nil {
		w.metrics.RecordPipelineFailed()
	}
	if err := w.compensator.RollbackOrder(order.ID, reason); err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"reason":   reason,
		}).Error("rollback after pipeline failure failed")
		return
	}
	w.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"reason":   reason,
	}).Warn("order failed in pipeline")
}

// revalidateReservation проверяет, что резерв каждой позиции ещё удерживается.
func (w *Worker) revalidateReservation(order domain.Order) error {
	if w.reservations == nil {
		return nil
	}
	for _, item := range order.Items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: order.Channel}
		remaining, err := w.reservations.OrderReservation(order.ID, key)
		if err != nil {
			return err
		}
		if remaining < item.Qty {
			return &domain.InsufficientStockError{Key: key, Requested: item.Qty, Available: remaining}
		}
	}
	return nil
}

func (w *Worker) tryAcquire(orderID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, busy := w.inFlight[orderID]; busy {
		return false
	}
	w.inFlight[orderID] = struct{}{}
	return true
}

func (w *Worker) release(orderID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, orderID)
}

func (w *Worker) isInFlight(orderID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, busy := w.inFlight[orderID]
	return busy
}

func (w *Worker) emitPipelineEvent(orderID, eventType, note string) {
	if w.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"order_id": orderID,
		"note":     note,
		"ts":       w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		w.logger.WithError(err).WithField("order_id", orderID).Error("marshal pipeline event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       payload,
	}
	if _, err := w.outbox.Enqueue(msg); err != nil {
		w.logger.WithError(err).WithField("order_id", orderID).Error("enqueue pipeline event failed")
	}
}
