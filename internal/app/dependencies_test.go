package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
)

func TestNewDependencies_MemoryMode(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer deps.Close()

	if deps.Store != nil {
		t.Error("expected nil Store in memory mode")
	}
	if deps.Orders == nil || deps.Inventory == nil || deps.Outbox == nil || deps.Customers == nil || deps.Idempotency == nil {
		t.Error("all repositories must be initialized")
	}
	if err := deps.HealthCheck(); err != nil {
		t.Errorf("health check in memory mode: %v", err)
	}
}

func TestSeedDemoData(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer deps.Close()

	logger := log.WithField("component", "app-test")
	ledgerSvc := ledger.NewServiceWithoutMetrics(deps.Inventory, deps.Outbox, logger)
	seedDemoData(deps, ledgerSvc, logger)

	customer, err := deps.Customers.GetCustomer("demo-gold")
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if customer.Tier != domain.TierGold {
		t.Errorf("expected gold tier, got %s", customer.Tier)
	}

	key := domain.StockKey{SKU: "drop-sneaker-42", Location: "msk-1", Channel: domain.ChannelOnline}
	level, err := ledgerSvc.Level(key)
	if err != nil {
		t.Fatalf("Level: %v", err)
	}
	if level.Available != 25 {
		t.Errorf("expected 25 available, got %d", level.Available)
	}
}

func TestInitKafka_NoBrokers(t *testing.T) {
	publishers := initKafka(nil, log.WithField("component", "app-test"))
	if publishers.producer != nil || publishers.outbox != nil || publishers.dlq != nil {
		t.Error("expected empty publishers without brokers")
	}
	publishers.close(log.WithField("component", "app-test"))
}
