package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
)

// demoProducts — каталог для разработки и демо. Цены в минорных единицах.
func demoProducts() []domain.Product {
	return []domain.Product{
		{SKU: "drop-sneaker-42", Name: "Limited Drop Sneaker 42", Category: "footwear", PriceMinor: 1_499_000},
		{SKU: "drop-sneaker-43", Name: "Limited Drop Sneaker 43", Category: "footwear", PriceMinor: 1_499_000},
		{SKU: "flash-console", Name: "Flash Sale Console", Category: "electronics", PriceMinor: 4_999_000},
		{SKU: "collab-hoodie", Name: "Collab Hoodie", Category: "apparel", PriceMinor: 899_000},
	}
}

// seedDemoData наполняет in-memory хранилища стартовым стоком и клиентами,
// чтобы API было чем отвечать сразу после запуска.
func seedDemoData(deps *Dependencies, ledgerSvc *ledger.Service, logger *log.Entry) {
	now := time.Now().UTC()

	deps.Customers.Seed(domain.Customer{ID: "demo-bronze", SignedUpAt: now.AddDate(0, -2, 0)})
	deps.Customers.Seed(domain.Customer{ID: "demo-silver", TotalSpentMinor: 150_000, LoyaltyPoints: 15, SignedUpAt: now.AddDate(-1, 0, 0)})
	deps.Customers.Seed(domain.Customer{ID: "demo-gold", TotalSpentMinor: 900_000, LoyaltyPoints: 120, SignedUpAt: now.AddDate(-3, 0, 0)})

	items := []domain.InventoryItem{
		{SKU: "drop-sneaker-42", Name: "Limited Drop Sneaker 42", UnitCostMinor: 700_000, ReorderPoint: 5, ReorderQty: 50},
		{SKU: "drop-sneaker-43", Name: "Limited Drop Sneaker 43", UnitCostMinor: 700_000, ReorderPoint: 5, ReorderQty: 50},
		{SKU: "flash-console", Name: "Flash Sale Console", UnitCostMinor: 3_200_000, ReorderPoint: 3, ReorderQty: 20},
		{SKU: "collab-hoodie", Name: "Collab Hoodie", UnitCostMinor: 350_000, ReorderPoint: 10, ReorderQty: 100},
	}
	for _, item := range items {
		if err := ledgerSvc.RegisterItem(item); err != nil {
			logger.WithError(err).WithField("sku", item.SKU).Warn("failed to seed inventory item")
			continue
		}
		for _, channel := range []domain.SalesChannel{domain.ChannelOnline, domain.ChannelMobile} {
			key := domain.StockKey{SKU: item.SKU, Location: "msk-1", Channel: channel}
			if err := ledgerSvc.ReceiveStock(key, 25, "seed"); err != nil {
				logger.WithError(err).WithField("sku", item.SKU).Warn("failed to seed stock level")
			}
		}
	}

	logger.Info("demo data seeded")
}
