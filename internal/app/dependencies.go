package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// CustomerDirectory — store клиентов с первичной загрузкой демо-данных.
type CustomerDirectory interface {
	domain.CustomerStore
	Seed(customer domain.Customer)
}

// Dependencies содержит все хранилища приложения. Выбор между Postgres и
// in-memory делается по наличию DSN в конфигурации.
type Dependencies struct {
	Orders      domain.OrderRepository
	Inventory   domain.InventoryRepository
	Outbox      domain.OutboxRepository
	Customers   CustomerDirectory
	Idempotency domain.IdempotencyRepository

	// Store не nil только в Postgres-режиме; нужен для health-чеков
	// и закрытия пула.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies создаёт и инициализирует хранилища приложения. С DSN
// открывается Postgres и накатываются миграции; без DSN всё живёт в памяти.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	if cfg.PostgresDSN == "" {
		logger.Info("postgres DSN is not set, using in-memory storage")
		return &Dependencies{
			Orders:      memory.NewOrderRepository(),
			Inventory:   memory.NewInventoryRepository(),
			Outbox:      memory.NewOutboxRepository(),
			Customers:   memory.NewCustomerStore(),
			Idempotency: memory.NewIdempotencyRepository(),
			Logger:      logger,
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("postgres storage initialized, migrations applied")

	return &Dependencies{
		Orders:      postgres.NewOrderRepository(store),
		Inventory:   postgres.NewInventoryRepository(store),
		Outbox:      postgres.NewOutboxRepository(store),
		Customers:   postgres.NewCustomerRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Store:       store,
		Logger:      logger,
	}, nil
}

// Close освобождает ресурсы хранилищ.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

// HealthCheck проверяет доступность постоянного хранилища. В in-memory
// режиме проверка всегда успешна.
func (d *Dependencies) HealthCheck() error {
	if d.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return d.Store.Ping(ctx)
}
