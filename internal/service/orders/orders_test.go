package orders

import (
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixture struct {
	svc     *Service
	orders  domain.OrderRepository
	ledger  *ledger.Service
	payment *payment.MockService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := log.New().WithField("test", t.Name())
	inv := memory.NewInventoryRepository()
	outbox := memory.NewOutboxRepository()
	repo := memory.NewOrderRepository()
	stock := ledger.NewServiceWithoutMetrics(inv, outbox, logger)
	pay := payment.NewMockService()

	svc := NewServiceWithoutMetrics(repo, stock, pay, outbox, logger)
	return &fixture{svc: svc, orders: repo, ledger: stock, payment: pay}
}

// seedOrder создаёт pending-заказ с уже удержанным резервом,
// как это делает оркестратор.
func (f *fixture) seedOrder(t *testing.T, id string, qty, stock int32) domain.Order {
	t.Helper()

	key := domain.StockKey{SKU: "widget", Location: "main", Channel: domain.ChannelOnline}
	if err := f.ledger.ReceiveStock(key, stock, "test"); err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	if err := f.ledger.Reserve(key, qty, id); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	now := time.Now().UTC().Add(-time.Hour)
	order := domain.Order{
		ID:          id,
		CustomerID:  "alice",
		Channel:     domain.ChannelOnline,
		Status:      domain.OrderStatusPending,
		AmountMinor: int64(qty) * 50_000,
		Items: []domain.OrderItem{
			{ID: "item-1", SKU: "widget", Qty: qty, PriceMinor: 50_000, Location: "main", CreatedAt: now},
		},
		History:   []domain.StatusChange{{Status: domain.OrderStatusPending, Note: "order created", Occurred: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.orders.Create(order); err != nil {
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

func TestOrders_FullLifecycleSetsProcessingTime(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1", 2, 10)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		if _, err := f.svc.Transition("order-1", status, ""); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	order, err := f.svc.Get("order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("status = %s, want delivered", order.Status)
	}
	if order.ProcessingTime <= 0 {
		t.Fatal("processing time must be set at delivery")
	}

	delivered := order.History[len(order.History)-1]
	if got := delivered.Occurred.Sub(order.CreatedAt); order.ProcessingTime != got {
		t.Fatalf("processing time = %v, want deliveredAt-createdAt = %v", order.ProcessingTime, got)
	}

	// История записала каждый переход, включая создание.
	if len(order.History) != 5 {
		t.Fatalf("history length = %d, want 5", len(order.History))
	}
	for i := 1; i < len(order.History); i++ {
		if order.History[i].Occurred.Before(order.History[i-1].Occurred) {
			t.Fatal("history must be monotonically increasing in time")
		}
	}

	// Доставка конвертировала резерв в продажу.
	level := f.level(t)
	if level.Available != 8 || level.Reserved != 0 {
		t.Fatalf("level after delivery = a:%d r:%d, want a:8 r:0", level.Available, level.Reserved)
	}
}

func TestOrders_DeliveredToCancelledRejected(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1", 1, 5)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		if _, err := f.svc.Transition("order-1", status, ""); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if _, err := f.svc.Transition("order-1", domain.OrderStatusCancelled, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestOrders_SkipConfirmedToDeliveredRejected(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1", 1, 5)

	if _, err := f.svc.Transition("order-1", domain.OrderStatusDelivered, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending→delivered, got %v", err)
	}
}

func TestOrders_CancelReleasesReservation(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1", 3, 10)

	if _, err := f.svc.Transition("order-1", domain.OrderStatusCancelled, "customer changed mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	level := f.level(t)
	if level.Available != 10 || level.Reserved != 0 {
		t.Fatalf("level after cancel = a:%d r:%d, want a:10 r:0", level.Available, level.Reserved)
	}

	order, err := f.svc.Get("order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	last := order.History[len(order.History)-1]
	if last.Note != "customer changed mind" {
		t.Fatalf("cancellation note = %q", last.Note)
	}
}

func TestOrders_ReturnAfterDeliveryRestocks(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1", 2, 10)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusReturned,
	} {
		if _, err := f.svc.Transition("order-1", status, ""); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	// Продажа совершена и отменена возвратом: товар снова в available.
	level := f.level(t)
	if level.Available != 10 || level.Reserved != 0 {
		t.Fatalf("level after return = a:%d r:%d, want a:10 r:0", level.Available, level.Reserved)
	}
}

func TestOrders_ReturnBeforeDeliveryReleasesReservation(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1", 2, 10)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusReturned,
	} {
		if _, err := f.svc.Transition("order-1", status, ""); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	level := f.level(t)
	if level.Available != 10 || level.Reserved != 0 {
		t.Fatalf("level after early return = a:%d r:%d, want a:10 r:0", level.Available, level.Reserved)
	}
}

func TestOrders_RefundCallsPaymentProvider(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1", 1, 5)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusRefunded,
	} {
		if _, err := f.svc.Transition("order-1", status, ""); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if got := f.payment.Refunded("order-1"); got != 50_000 {
		t.Fatalf("refunded = %d, want 50000", got)
	}

	// refunded терминален.
	if _, err := f.svc.Transition("order-1", domain.OrderStatusPending, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from refunded, got %v", err)
	}
}
