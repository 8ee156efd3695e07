package pipeline

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/orchestrator"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixture struct {
	worker  *Worker
	orch    *orchestrator.Service
	orders  domain.OrderRepository
	ledger  *ledger.Service
	payment *payment.MockService
}

var noLatency = map[domain.SalesChannel]time.Duration{}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	logger := log.New().WithField("test", t.Name())
	inv := memory.NewInventoryRepository()
	outbox := memory.NewOutboxRepository()
	repo := memory.NewOrderRepository()
	customers := memory.NewCustomerStore()
	customers.Seed(domain.Customer{ID: "alice"})
	stock := ledger.NewServiceWithoutMetrics(inv, outbox, logger)
	products := catalog.NewStaticCatalog(domain.Product{SKU: "widget", PriceMinor: 50_000})
	pay := payment.NewMockService()

	orch := orchestrator.NewServiceWithoutMetrics(repo, stock, customers, products, outbox, logger)
	machine := orders.NewServiceWithoutMetrics(repo, stock, pay, outbox, logger)

	opts = append([]Option{WithChannelLatency(noLatency), WithoutMetrics()}, opts...)
	worker := NewWorker(repo, machine, orch, pay, stock, outbox, logger, opts...)
	return &fixture{worker: worker, orch: orch, orders: repo, ledger: stock, payment: pay}
}

func (f *fixture) createOrder(t *testing.T, qty, stock int32) domain.Order {
	t.Helper()

	key := domain.StockKey{SKU: "widget", Location: "main", Channel: domain.ChannelOnline}
	if err := f.ledger.ReceiveStock(key, stock, "test"); err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	order, err := f.orch.ExecuteOrderTransaction(orchestrator.OrderRequest{
		CustomerID: "alice",
		Channel:    domain.ChannelOnline,
		Items:      []orchestrator.ItemRequest{{SKU: "widget", Qty: qty, Location: "main"}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (f *fixture) level(t *testing.T) domain.StockLevel {
	t.Helper()

	key := domain.StockKey{SKU: "widget", Location: "main", Channel: domain.ChannelOnline}
	level, err := f.ledger.Level(key)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	return level
}

func TestPipeline_TickAdvancesOrderToDelivered(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 2, 10)

	f.worker.Tick(context.Background())

	processed, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if processed.Status != domain.OrderStatusDelivered {
		t.Fatalf("status after tick = %s, want delivered", processed.Status)
	}
	if processed.ProcessingTime <= 0 {
		t.Fatal("processing time must be set at delivery")
	}
	if got := f.payment.Paid(order.ID); got != order.AmountMinor {
		t.Fatalf("paid = %d, want %d", got, order.AmountMinor)
	}

	// Резерв конвертирован в продажу.
	level := f.level(t)
	if level.Available != 8 || level.Reserved != 0 {
		t.Fatalf("level = a:%d r:%d, want a:8 r:0", level.Available, level.Reserved)
	}
}

func TestPipeline_PaymentFailureRollsBackOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 2, 10)

	f.payment.FailNext(domain.ErrPaymentDeclined)
	f.worker.Tick(context.Background())

	failed, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if failed.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", failed.Status)
	}
	last := failed.History[len(failed.History)-1]
	if last.Note == "" {
		t.Fatal("cancellation must carry a human-readable note")
	}

	// Резерв полностью возвращён в available.
	level := f.level(t)
	if level.Available != 10 || level.Reserved != 0 {
		t.Fatalf("level = a:%d r:%d, want a:10 r:0", level.Available, level.Reserved)
	}
}

func TestPipeline_HigherPriorityProcessedFirst(t *testing.T) {
	f := newFixture(t, WithBatchSize(1), WithConcurrency(1))

	key := domain.StockKey{SKU: "widget", Location: "main", Channel: domain.ChannelOnline}
	if err := f.ledger.ReceiveStock(key, 10, "test"); err != nil {
		t.Fatalf("receive stock: %v", err)
	}

	low, err := f.orch.ExecuteOrderTransaction(orchestrator.OrderRequest{
		CustomerID: "alice", Channel: domain.ChannelOnline, Priority: 1,
		Items: []orchestrator.ItemRequest{{SKU: "widget", Qty: 1, Location: "main"}},
	})
	if err != nil {
		t.Fatalf("create low: %v", err)
	}
	high, err := f.orch.ExecuteOrderTransaction(orchestrator.OrderRequest{
		CustomerID: "alice", Channel: domain.ChannelOnline, Priority: 100,
		Items: []orchestrator.ItemRequest{{SKU: "widget", Qty: 1, Location: "main"}},
	})
	if err != nil {
		t.Fatalf("create high: %v", err)
	}

	// Батч в один заказ: первым уходит приоритетный, младший ждёт.
	f.worker.Tick(context.Background())

	highOrder, err := f.orders.Get(high.ID)
	if err != nil {
		t.Fatalf("get high: %v", err)
	}
	lowOrder, err := f.orders.Get(low.ID)
	if err != nil {
		t.Fatalf("get low: %v", err)
	}
	if highOrder.Status != domain.OrderStatusDelivered {
		t.Fatalf("high priority status = %s, want delivered", highOrder.Status)
	}
	if lowOrder.Status != domain.OrderStatusPending {
		t.Fatalf("low priority status = %s, want still pending", lowOrder.Status)
	}
}

type countingExpirer struct{ calls int }

func (c *countingExpirer) ExpireStale() int {
	c.calls++
	return 0
}

func TestPipeline_SweepDetectsStuckOrders(t *testing.T) {
	current := time.Now().UTC()
	expirer := &countingExpirer{}
	f := newFixture(t,
		WithStuckThreshold(2*time.Hour),
		WithQueue(expirer),
		WithClock(func() time.Time { return current }),
	)
	order := f.createOrder(t, 1, 5)

	// Подтверждаем заказ и сдвигаем часы за порог застревания.
	machine := orders.NewServiceWithoutMetrics(f.orders, f.ledger, f.payment, nil, log.New().WithField("test", t.Name()))
	if _, err := machine.Transition(order.ID, domain.OrderStatusConfirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if stuck := f.worker.SweepStuck(); stuck != 0 {
		t.Fatalf("fresh order flagged as stuck: %d", stuck)
	}

	current = current.Add(3 * time.Hour)
	if stuck := f.worker.SweepStuck(); stuck != 1 {
		t.Fatalf("stuck = %d, want 1", stuck)
	}

	// Заказ не отменён: застрявшие только публикуются, а не дропаются.
	stuckOrder, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stuckOrder.Status != domain.OrderStatusConfirmed {
		t.Fatalf("stuck order status = %s, want confirmed", stuckOrder.Status)
	}

	if expirer.calls != 2 {
		t.Fatalf("queue expirer calls = %d, want 2", expirer.calls)
	}
}

func TestPipeline_RunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after context cancellation")
	}
}
