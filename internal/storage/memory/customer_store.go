package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// customerStoreInMemory — in-memory реализация CustomerStore.
type customerStoreInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Customer
}

// NewCustomerStore возвращает in-memory store клиентов.
func NewCustomerStore() *customerStoreInMemory {
	return &customerStoreInMemory{items: make(map[string]domain.Customer)}
}

// Seed добавляет или перезаписывает клиента; используется при инициализации и в тестах.
func (s *customerStoreInMemory) Seed(customer domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Tier == "" {
		customer.Tier = domain.TierFor(customer.TotalSpentMinor)
	}
	s.items[customer.ID] = customer
}

// GetCustomer возвращает клиента или ErrCustomerNotFound.
func (s *customerStoreInMemory) GetCustomer(id string) (domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.items[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

// UpdateCustomer применяет обновление с optimistic locking по версии.
func (s *customerStoreInMemory) UpdateCustomer(customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[customer.ID]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	if current.Version != customer.Version {
		return domain.ErrCustomerVersionConflict
	}
	customer.Version++
	customer.UpdatedAt = time.Now().UTC()
	s.items[customer.ID] = customer
	return nil
}

var _ domain.CustomerStore = (*customerStoreInMemory)(nil)
