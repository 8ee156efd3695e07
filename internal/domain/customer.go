package domain

import "time"

// CustomerTier — уровень лояльности клиента.
type CustomerTier string

const (
	TierBronze CustomerTier = "bronze"
	TierSilver CustomerTier = "silver"
	TierGold   CustomerTier = "gold"
)

// Пороговые значения tier по суммарным тратам (в минимальных единицах)
// и множители начисления баллов.
const (
	// PointsBaseDivisorMinor — за каждые полные 100 единиц валюты заказа
	// начисляется один базовый балл.
	PointsBaseDivisorMinor = 10_000
	GoldThresholdMinor     = 500_000
	SilverThresholdMinor   = 100_000
)

// Multiplier возвращает множитель начисления баллов для tier.
func (t CustomerTier) Multiplier() float64 {
	switch t {
	case TierGold:
		return 2.0
	case TierSilver:
		return 1.5
	default:
		return 1.0
	}
}

// TierFor вычисляет tier по суммарным тратам клиента.
func TierFor(totalSpentMinor int64) CustomerTier {
	switch {
	case totalSpentMinor >= GoldThresholdMinor:
		return TierGold
	case totalSpentMinor >= SilverThresholdMinor:
		return TierSilver
	default:
		return TierBronze
	}
}

// LoyaltyPointsFor вычисляет баллы за заказ: floor(total/100) * множитель tier.
func LoyaltyPointsFor(amountMinor int64, tier CustomerTier) int64 {
	base := amountMinor / PointsBaseDivisorMinor
	return int64(float64(base) * tier.Multiplier())
}

// Customer — запись клиента в storefront.
type Customer struct {
	ID              string
	Tier            CustomerTier
	LoyaltyPoints   int64
	TotalSpentMinor int64
	// SignedUpAt используется при расчёте скора стажа в priority-очереди.
	SignedUpAt time.Time
	Version    int64
	UpdatedAt  time.Time
}
