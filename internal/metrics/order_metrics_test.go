package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestOrderMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newOrderMetricsWithRegisterer(registry)

	m.RecordOrderCreated()
	m.RecordOrderCreated()
	m.RecordOrderFailed()
	m.RecordPipelineProcessed()
	m.RecordPipelineDuration(250 * time.Millisecond)

	if got := counterValue(t, m.ordersCreated); got != 2 {
		t.Fatalf("ordersCreated = %v, want 2", got)
	}
	if got := counterValue(t, m.ordersFailed); got != 1 {
		t.Fatalf("ordersFailed = %v, want 1", got)
	}
	if got := counterValue(t, m.pipelineProcessed); got != 1 {
		t.Fatalf("pipelineProcessed = %v, want 1", got)
	}
}

func TestOrderMetrics_InFlightGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newOrderMetricsWithRegisterer(registry)

	m.RecordInFlightStarted()
	m.RecordInFlightStarted()
	m.RecordInFlightFinished()

	if got := gaugeValue(t, m.inFlightOrders); got != 1 {
		t.Fatalf("inFlightOrders = %v, want 1", got)
	}

	m.SetStuckOrders(3)
	if got := gaugeValue(t, m.stuckOrders); got != 3 {
		t.Fatalf("stuckOrders = %v, want 3", got)
	}
}

func TestInventoryMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newInventoryMetricsWithRegisterer(registry)

	m.RecordInsufficientStock()
	m.RecordLowStockAlert()
	m.RecordConflictRetry()
	m.RecordTransaction("reservation")
	m.RecordTransaction("reservation")

	if got := counterValue(t, m.insufficientStock); got != 1 {
		t.Fatalf("insufficientStock = %v, want 1", got)
	}
	if got := counterValue(t, m.lowStockAlerts); got != 1 {
		t.Fatalf("lowStockAlerts = %v, want 1", got)
	}
	if got := counterValue(t, m.transactions.WithLabelValues("reservation")); got != 2 {
		t.Fatalf("transactions[reservation] = %v, want 2", got)
	}
}
