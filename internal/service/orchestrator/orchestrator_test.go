package orchestrator

import (
	"errors"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixture struct {
	svc       *Service
	orders    domain.OrderRepository
	ledger    *ledger.Service
	customers interface {
		domain.CustomerStore
		Seed(domain.Customer)
	}
	catalog *catalog.StaticCatalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := log.New().WithField("test", t.Name())
	inv := memory.NewInventoryRepository()
	outbox := memory.NewOutboxRepository()
	orders := memory.NewOrderRepository()
	customers := memory.NewCustomerStore()
	stock := ledger.NewServiceWithoutMetrics(inv, outbox, logger)
	products := catalog.NewStaticCatalog(
		domain.Product{SKU: "widget", Name: "Widget", PriceMinor: 50_000},
		domain.Product{SKU: "gadget", Name: "Gadget", PriceMinor: 30_000},
		domain.Product{SKU: "doohickey", Name: "Doohickey", PriceMinor: 20_000},
	)

	customers.Seed(domain.Customer{ID: "alice", TotalSpentMinor: 0})

	svc := NewServiceWithoutMetrics(orders, stock, customers, products, outbox, logger)
	return &fixture{svc: svc, orders: orders, ledger: stock, customers: customers, catalog: products}
}

func (f *fixture) seedStock(t *testing.T, sku string, qty int32) domain.StockKey {
	t.Helper()

	key := domain.StockKey{SKU: sku, Location: "main", Channel: domain.ChannelOnline}
	if err := f.ledger.ReceiveStock(key, qty, "test"); err != nil {
		t.Fatalf("seed stock %s: %v", sku, err)
	}
	return key
}

func onlineRequest(items ...ItemRequest) OrderRequest {
	return OrderRequest{CustomerID: "alice", Channel: domain.ChannelOnline, Items: items}
}

func TestOrchestrator_CreateOrderReservesStockAndAwardsLoyalty(t *testing.T) {
	f := newFixture(t)
	key := f.seedStock(t, "widget", 10)

	order, err := f.svc.ExecuteOrderTransaction(onlineRequest(
		ItemRequest{SKU: "widget", Qty: 2, Location: "main"},
	))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("order status = %s, want pending", order.Status)
	}
	if order.AmountMinor != 100_000 {
		t.Fatalf("amount = %d, want 100000 (catalog price * qty)", order.AmountMinor)
	}
	if len(order.History) != 1 || order.History[0].Status != domain.OrderStatusPending {
		t.Fatalf("history must start with the creation event, got %+v", order.History)
	}

	level, err := f.ledger.Level(key)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if level.Available != 8 || level.Reserved != 2 {
		t.Fatalf("level = a:%d r:%d, want a:8 r:2", level.Available, level.Reserved)
	}

	customer, err := f.customers.GetCustomer("alice")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	// 100000 / 10000 = 10 базовых баллов, bronze множитель 1.0.
	if customer.LoyaltyPoints != 10 {
		t.Fatalf("loyalty points = %d, want 10", customer.LoyaltyPoints)
	}
	if customer.TotalSpentMinor != 100_000 {
		t.Fatalf("total spent = %d, want 100000", customer.TotalSpentMinor)
	}
}

func TestOrchestrator_ValidationRejectedBeforeMutation(t *testing.T) {
	f := newFixture(t)
	key := f.seedStock(t, "widget", 5)

	cases := []struct {
		name string
		req  OrderRequest
		want error
	}{
		{"missing customer", OrderRequest{Channel: domain.ChannelOnline, Items: []ItemRequest{{SKU: "widget", Qty: 1, Location: "main"}}}, domain.ErrCustomerRequired},
		{"bad channel", OrderRequest{CustomerID: "alice", Channel: "fax", Items: []ItemRequest{{SKU: "widget", Qty: 1, Location: "main"}}}, domain.ErrChannelInvalid},
		{"no items", onlineRequest(), domain.ErrItemsRequired},
		{"zero qty", onlineRequest(ItemRequest{SKU: "widget", Qty: 0, Location: "main"}), domain.ErrItemQtyInvalid},
		{"unknown product", onlineRequest(ItemRequest{SKU: "nope", Qty: 1, Location: "main"}), domain.ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.ExecuteOrderTransaction(tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	level, err := f.ledger.Level(key)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if level.Available != 5 || level.Reserved != 0 {
		t.Fatalf("stock mutated by rejected requests: a:%d r:%d", level.Available, level.Reserved)
	}
}

func TestOrchestrator_ContendedStockExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.seedStock(t, "widget", 1)
	f.customers.Seed(domain.Customer{ID: "bob"})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, customer := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(idx int, customerID string) {
			defer wg.Done()
			_, results[idx] = f.svc.ExecuteOrderTransaction(OrderRequest{
				CustomerID: customerID,
				Channel:    domain.ChannelOnline,
				Items:      []ItemRequest{{SKU: "widget", Qty: 1, Location: "main"}},
			})
		}(i, customer)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("succeeded=%d insufficient=%d, want 1/1", succeeded, insufficient)
	}

	key := domain.StockKey{SKU: "widget", Location: "main", Channel: domain.ChannelOnline}
	level, err := f.ledger.Level(key)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if level.Available != 0 || level.Reserved != 1 {
		t.Fatalf("level = a:%d r:%d, want a:0 r:1", level.Available, level.Reserved)
	}
}

func TestOrchestrator_PartialReserveCompensated(t *testing.T) {
	f := newFixture(t)
	widgetKey := f.seedStock(t, "widget", 10)
	f.seedStock(t, "gadget", 1)

	// Вторая позиция не проходит по стоку: первая должна быть отпущена.
	_, err := f.svc.ExecuteOrderTransaction(onlineRequest(
		ItemRequest{SKU: "widget", Qty: 2, Location: "main"},
		ItemRequest{SKU: "gadget", Qty: 5, Location: "main"},
	))
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	level, err := f.ledger.Level(widgetKey)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if level.Available != 10 || level.Reserved != 0 {
		t.Fatalf("widget not fully compensated: a:%d r:%d", level.Available, level.Reserved)
	}
}

func TestOrchestrator_RollbackOrderRestoresAllItems(t *testing.T) {
	f := newFixture(t)
	keys := []domain.StockKey{
		f.seedStock(t, "widget", 5),
		f.seedStock(t, "gadget", 5),
		f.seedStock(t, "doohickey", 5),
	}

	order, err := f.svc.ExecuteOrderTransaction(onlineRequest(
		ItemRequest{SKU: "widget", Qty: 2, Location: "main"},
		ItemRequest{SKU: "gadget", Qty: 1, Location: "main"},
		ItemRequest{SKU: "doohickey", Qty: 3, Location: "main"},
	))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if err := f.svc.RollbackOrder(order.ID, "payment simulation failed"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	for _, key := range keys {
		level, err := f.ledger.Level(key)
		if err != nil {
			t.Fatalf("level %s: %v", key.SKU, err)
		}
		if level.Available != 5 || level.Reserved != 0 {
			t.Fatalf("%s not restored: a:%d r:%d, want a:5 r:0", key.SKU, level.Available, level.Reserved)
		}
	}

	rolled, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if rolled.Status != domain.OrderStatusCancelled {
		t.Fatalf("order status = %s, want cancelled", rolled.Status)
	}
	last := rolled.History[len(rolled.History)-1]
	if last.Note != "payment simulation failed" {
		t.Fatalf("cancellation note = %q", last.Note)
	}

	// Повторный откат уже отменённого заказа — no-op.
	if err := f.svc.RollbackOrder(order.ID, "again"); err != nil {
		t.Fatalf("second rollback: %v", err)
	}
}

// conflictLedger всегда отвечает конфликтом версий на Reserve.
type conflictLedger struct{}

func (conflictLedger) Level(key domain.StockKey) (domain.StockLevel, error) {
	return domain.StockLevel{Key: key, Available: 100}, nil
}
func (conflictLedger) Reserve(domain.StockKey, int32, string) error {
	return domain.ErrStockVersionConflict
}
func (conflictLedger) Release(domain.StockKey, int32, string) error { return nil }
func (conflictLedger) OrderReservation(string, domain.StockKey) (int32, error) {
	return 0, nil
}

func TestOrchestrator_RetriesExhaustedSurfaceTransactionFailed(t *testing.T) {
	logger := log.New().WithField("test", t.Name())
	orders := memory.NewOrderRepository()
	customers := memory.NewCustomerStore()
	customers.Seed(domain.Customer{ID: "alice"})
	products := catalog.NewStaticCatalog(domain.Product{SKU: "widget", PriceMinor: 10_000})

	svc := NewServiceWithoutMetrics(orders, conflictLedger{}, customers, products, memory.NewOutboxRepository(), logger).
		WithRetryConfig(RetryConfig{MaxAttempts: 3, InitialBackoff: 1, BackoffMultiplier: 1, MaxBackoff: 1})

	_, err := svc.ExecuteOrderTransaction(onlineRequest(ItemRequest{SKU: "widget", Qty: 1, Location: "main"}))
	if !errors.Is(err, domain.ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
}
