package domain

import (
	"errors"
	"testing"
	"time"
)

func validOrder(now time.Time) Order {
	return Order{
		ID:          "order-1",
		CustomerID:  "customer-1",
		Channel:     ChannelOnline,
		Status:      OrderStatusPending,
		AmountMinor: 300,
		Items: []OrderItem{
			{ID: "item-1", SKU: "sku-1", Qty: 2, PriceMinor: 100, Location: "main", CreatedAt: now},
			{ID: "item-2", SKU: "sku-2", Qty: 1, PriceMinor: 100, Location: "main", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestValidateInvariants_OK(t *testing.T) {
	order := validOrder(time.Now().UTC())
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateInvariants_AmountMismatch(t *testing.T) {
	order := validOrder(time.Now().UTC())
	order.AmountMinor = 299

	errs := order.ValidateInvariants()
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrAmountMismatch) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ErrAmountMismatch, got %v", errs)
	}
}

func TestValidateInvariants_BadItems(t *testing.T) {
	order := validOrder(time.Now().UTC())
	order.Items[0].Qty = 0
	order.Items[1].PriceMinor = -1

	errs := order.ValidateInvariants()
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}

	hasQty, hasPrice := false, false
	for _, err := range errs {
		if errors.Is(err, ErrItemQtyInvalid) {
			hasQty = true
		}
		if errors.Is(err, ErrItemPriceInvalid) {
			hasPrice = true
		}
	}
	if !hasQty || !hasPrice {
		t.Fatalf("expected qty and price errors, got %v", errs)
	}
}

func TestCanTransition_Table(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusReturned, true},
		{OrderStatusDelivered, OrderStatusRefunded, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusReturned, OrderStatusRefunded, true},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusPending, false},
		// Пропуск confirmed → delivered напрямую запрещён.
		{OrderStatusConfirmed, OrderStatusDelivered, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !OrderStatusCancelled.Terminal() {
		t.Fatal("cancelled must be terminal")
	}
	if !OrderStatusRefunded.Terminal() {
		t.Fatal("refunded must be terminal")
	}
	if OrderStatusReturned.Terminal() {
		t.Fatal("returned must allow refund")
	}
}

func TestRecordStatus_HistoryAndProcessingTime(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := validOrder(created)
	order.RecordStatus(OrderStatusPending, "order created", created)

	steps := []OrderStatus{
		OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
	}
	at := created
	for _, status := range steps {
		at = at.Add(time.Hour)
		order.RecordStatus(status, "", at)
	}

	if len(order.History) != 5 {
		t.Fatalf("expected 5 history entries, got %d", len(order.History))
	}
	for i := 1; i < len(order.History); i++ {
		if order.History[i].Occurred.Before(order.History[i-1].Occurred) {
			t.Fatal("history must be monotonically increasing in time")
		}
	}

	want := 4 * time.Hour
	if order.ProcessingTime != want {
		t.Fatalf("expected processing time %s, got %s", want, order.ProcessingTime)
	}
}
