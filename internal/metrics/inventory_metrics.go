package metrics

import "github.com/prometheus/client_golang/prometheus"

// InventoryMetrics содержит метрики леджера стока.
type InventoryMetrics struct {
	transactions      *prometheus.CounterVec
	insufficientStock prometheus.Counter
	lowStockAlerts    prometheus.Counter
	conflictRetries   prometheus.Counter
}

// NewInventoryMetrics создаёт метрики леджера в default-реестре.
func NewInventoryMetrics() *InventoryMetrics {
	return newInventoryMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newInventoryMetricsWithRegisterer(registerer prometheus.Registerer) *InventoryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &InventoryMetrics{
		transactions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_inventory_transactions_total",
			Help: "Total number of inventory ledger transactions grouped by type",
		}, []string{"type"}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_inventory_insufficient_stock_total",
			Help: "Total number of reservation attempts rejected for insufficient stock",
		}),
		lowStockAlerts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_inventory_low_stock_alerts_total",
			Help: "Total number of low stock alerts raised",
		}),
		conflictRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_inventory_conflict_retries_total",
			Help: "Total number of optimistic conflict retries in the stock ledger",
		}),
	}
}

// RecordTransaction увеличивает счётчик транзакций журнала.
func (m *InventoryMetrics) RecordTransaction(txType string) {
	m.transactions.WithLabelValues(txType).Inc()
}

// RecordInsufficientStock увеличивает счётчик отказов по стоку.
func (m *InventoryMetrics) RecordInsufficientStock() {
	m.insufficientStock.Inc()
}

// RecordLowStockAlert увеличивает счётчик алертов низкого остатка.
func (m *InventoryMetrics) RecordLowStockAlert() {
	m.lowStockAlerts.Inc()
}

// RecordConflictRetry увеличивает счётчик повторов на конфликте версий.
func (m *InventoryMetrics) RecordConflictRetry() {
	m.conflictRetries.Inc()
}
