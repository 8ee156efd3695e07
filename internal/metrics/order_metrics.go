package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики заказов, конвейера обработки и очереди допуска.
type OrderMetrics struct {
	// Счётчики заказов
	ordersCreated prometheus.Counter
	ordersFailed  prometheus.Counter
	transitions   *prometheus.CounterVec

	// Конвейер обработки
	pipelineProcessed prometheus.Counter
	pipelineFailed    prometheus.Counter
	pipelineDuration  prometheus.Histogram
	stuckOrders       prometheus.Gauge
	inFlightOrders    prometheus.Gauge

	// Очередь допуска
	queueJoins    *prometheus.CounterVec
	queueRejected prometheus.Counter
}

// NewOrderMetrics создаёт метрики заказов в default-реестре.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_failed_total",
			Help: "Total number of order creation attempts that failed",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"status"}),
		pipelineProcessed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_pipeline_processed_total",
			Help: "Total number of orders fully processed by the pipeline",
		}),
		pipelineFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_pipeline_failed_total",
			Help: "Total number of orders cancelled by the pipeline after a step failure",
		}),
		pipelineDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_pipeline_order_duration_seconds",
			Help:    "Duration of a single order pass through the pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stuckOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_pipeline_stuck_orders",
			Help: "Number of orders detected as stuck by the last sweep",
		}),
		inFlightOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_pipeline_in_flight_orders",
			Help: "Number of orders currently being advanced by pipeline workers",
		}),
		queueJoins: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_queue_joins_total",
			Help: "Total number of admission queue joins grouped by discipline",
		}, []string{"discipline"}),
		queueRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_queue_rejected_total",
			Help: "Total number of duplicate admission queue joins rejected",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderFailed увеличивает счётчик неудачных созданий заказа.
func (m *OrderMetrics) RecordOrderFailed() {
	m.ordersFailed.Inc()
}

// RecordTransition увеличивает счётчик переходов в указанный статус.
func (m *OrderMetrics) RecordTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// RecordPipelineProcessed увеличивает счётчик заказов, прошедших конвейер.
func (m *OrderMetrics) RecordPipelineProcessed() {
	m.pipelineProcessed.Inc()
}

// RecordPipelineFailed увеличивает счётчик заказов, отменённых конвейером.
func (m *OrderMetrics) RecordPipelineFailed() {
	m.pipelineFailed.Inc()
}

// RecordPipelineDuration записывает длительность прохода заказа через конвейер.
func (m *OrderMetrics) RecordPipelineDuration(duration time.Duration) {
	m.pipelineDuration.Observe(duration.Seconds())
}

// SetStuckOrders выставляет количество застрявших заказов по последнему обходу.
func (m *OrderMetrics) SetStuckOrders(count int) {
	m.stuckOrders.Set(float64(count))
}

// RecordInFlightStarted/Finished отслеживают заказы в работе у воркеров.
func (m *OrderMetrics) RecordInFlightStarted() {
	m.inFlightOrders.Inc()
}

func (m *OrderMetrics) RecordInFlightFinished() {
	m.inFlightOrders.Dec()
}

// RecordQueueJoin увеличивает счётчик join по дисциплине.
func (m *OrderMetrics) RecordQueueJoin(discipline string) {
	m.queueJoins.WithLabelValues(discipline).Inc()
}

// RecordQueueRejected увеличивает счётчик отклонённых повторных join.
func (m *OrderMetrics) RecordQueueRejected() {
	m.queueRejected.Inc()
}
