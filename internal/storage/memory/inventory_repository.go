package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// inventoryRepositoryInMemory хранит уровни стока и append-only журнал движений.
// Один мьютекс на репозиторий делает Apply естественно атомарным.
type inventoryRepositoryInMemory struct {
	mu     sync.RWMutex
	levels map[domain.StockKey]domain.StockLevel
	items  map[string]domain.InventoryItem
	log    []domain.InventoryTransaction
}

// NewInventoryRepository возвращает in-memory реализацию InventoryRepository.
func NewInventoryRepository() domain.InventoryRepository {
	return &inventoryRepositoryInMemory{
		levels: make(map[domain.StockKey]domain.StockLevel),
		items:  make(map[string]domain.InventoryItem),
	}
}

// GetLevel возвращает уровень партиции или ErrStockNotFound.
func (r *inventoryRepositoryInMemory) GetLevel(key domain.StockKey) (domain.StockLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	level, ok := r.levels[key]
	if !ok {
		return domain.StockLevel{}, domain.ErrStockNotFound
	}
	return level, nil
}

// CreateLevel заводит новую партицию стока.
func (r *inventoryRepositoryInMemory) CreateLevel(level domain.StockLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.levels[level.Key]; exists {
		return domain.ErrStockVersionConflict
	}
	level.UpdatedAt = time.Now().UTC()
	r.levels[level.Key] = level
	return nil
}

// GetItem возвращает справочные атрибуты SKU.
func (r *inventoryRepositoryInMemory) GetItem(sku string) (domain.InventoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[sku]
	if !ok {
		return domain.InventoryItem{}, domain.ErrStockNotFound
	}
	return item, nil
}

// UpsertItem сохраняет справочные атрибуты SKU.
func (r *inventoryRepositoryInMemory) UpsertItem(item domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.items[item.SKU]; ok {
		item.CreatedAt = existing.CreatedAt
	} else if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	r.items[item.SKU] = item
	return nil
}

// Apply атомарно сохраняет уровни и дописывает журнал: сначала проверяются
// версии всех уровней, и только потом применяется вся пачка.
func (r *inventoryRepositoryInMemory) Apply(levels []domain.StockLevel, txs []domain.InventoryTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, level := range levels {
		current, ok := r.levels[level.Key]
		if !ok {
			return domain.ErrStockNotFound
		}
		if current.Version != level.Version {
			return domain.ErrStockVersionConflict
		}
	}

	now := time.Now().UTC()
	for _, level := range levels {
		level.Version++
		level.UpdatedAt = now
		r.levels[level.Key] = level
	}
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		if tx.Occurred.IsZero() {
			tx.Occurred = now
		}
		r.log = append(r.log, tx)
	}
	return nil
}

// ListTransactions возвращает журнал партиции в порядке записи.
func (r *inventoryRepositoryInMemory) ListTransactions(key domain.StockKey) ([]domain.InventoryTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryTransaction, 0)
	for _, tx := range r.log {
		if tx.Key == key {
			result = append(result, tx)
		}
	}
	return result, nil
}

// OrderReservation возвращает невыкупленный остаток резерва заказа по партиции.
func (r *inventoryRepositoryInMemory) OrderReservation(orderID string, key domain.StockKey) (int32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var qty int32
	for _, tx := range r.log {
		if tx.OrderID != orderID || tx.Key != key {
			continue
		}
		switch tx.Type {
		case domain.TxReservation:
			qty += tx.Qty
		case domain.TxRelease, domain.TxSale:
			qty -= tx.Qty
		}
	}
	return qty, nil
}

var _ domain.InventoryRepository = (*inventoryRepositoryInMemory)(nil)
