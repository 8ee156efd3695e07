package catalog

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StaticCatalog — in-memory каталог товаров. Боевой каталог живёт во внешнем
// сервисе; эта реализация закрывает локальные запуски и тесты.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewStaticCatalog создаёт каталог из переданных товаров.
func NewStaticCatalog(products ...domain.Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[string]domain.Product, len(products))}
	for _, product := range products {
		c.products[product.SKU] = product
	}
	return c
}

// Upsert добавляет или заменяет карточку товара.
func (c *StaticCatalog) Upsert(product domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.SKU] = product
}

// GetProduct возвращает карточку товара или ErrProductNotFound.
func (c *StaticCatalog) GetProduct(sku string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[sku]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

var _ domain.CatalogService = (*StaticCatalog)(nil)
