package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func newIntegrationOrder(customerID string, priority int32, createdAt time.Time) domain.Order {
	order := domain.Order{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		Channel:     domain.ChannelOnline,
		Status:      domain.OrderStatusPending,
		AmountMinor: 100_000,
		Items: []domain.OrderItem{
			{
				ID:         uuid.NewString(),
				SKU:        "widget",
				Qty:        2,
				PriceMinor: 50_000,
				Location:   "msk-1",
				CreatedAt:  createdAt,
			},
		},
		Priority:  priority,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	order.History = []domain.StatusChange{
		{Status: domain.OrderStatusPending, Note: "order created", Occurred: createdAt},
	}
	return order
}

func TestOrderRepository_Integration_CreateGetSave(t *testing.T) {
	store := openIntegrationStore(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Truncate(time.Microsecond)
	order := newIntegrationOrder("alice", 10, now)

	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := repo.Create(order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("duplicate create error = %v, want ErrOrderVersionConflict", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Channel != domain.ChannelOnline || got.Priority != 10 {
		t.Fatalf("unexpected order fields: channel=%s priority=%d", got.Channel, got.Priority)
	}
	if len(got.Items) != 1 || got.Items[0].Location != "msk-1" {
		t.Fatalf("unexpected order items: %+v", got.Items)
	}
	if len(got.History) != 1 || got.History[0].Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order history: %+v", got.History)
	}

	// Save с актуальной версией проходит и дописывает историю.
	got.RecordStatus(domain.OrderStatusConfirmed, "payment captured", now.Add(time.Minute))
	if err := repo.Save(got); err != nil {
		t.Fatalf("save order: %v", err)
	}

	// Повторный Save со старой версией отбивается конфликтом.
	if err := repo.Save(got); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("stale save error = %v, want ErrOrderVersionConflict", err)
	}

	fresh, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order after save: %v", err)
	}
	if fresh.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", fresh.Status)
	}
	if fresh.Version != got.Version+1 {
		t.Fatalf("version = %d, want %d", fresh.Version, got.Version+1)
	}
	if len(fresh.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(fresh.History))
	}
}

func TestOrderRepository_Integration_ListByStatusOrdering(t *testing.T) {
	store := openIntegrationStore(t)
	repo := NewOrderRepository(store)

	base := time.Now().UTC().Truncate(time.Microsecond)
	low := newIntegrationOrder("bob", 1, base)
	high := newIntegrationOrder("carol", 100, base.Add(time.Second))

	for _, order := range []domain.Order{low, high} {
		if err := repo.Create(order); err != nil {
			t.Fatalf("create order %s: %v", order.ID, err)
		}
	}

	pending, err := repo.ListByStatus(domain.OrderStatusPending, 10)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending count = %d, want 2", len(pending))
	}
	// Высокий приоритет раньше, несмотря на более позднее создание.
	if pending[0].ID != high.ID || pending[1].ID != low.ID {
		t.Fatalf("unexpected pipeline order: %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestOrderRepository_Integration_GetMissing(t *testing.T) {
	store := openIntegrationStore(t)
	repo := NewOrderRepository(store)

	if _, err := repo.Get("no-such-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("error = %v, want ErrOrderNotFound", err)
	}
}
