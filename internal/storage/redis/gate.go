package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const gateKeyPrefix = "gate:stock:"

// takeScript атомарно списывает quota, если её хватает. Партиция без
// выставленной квоты не гейтится: отсутствие ключа — это 1, а не отказ.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// Gate — быстрый отсекатель перегрузки во время flash-sale: квота допуска
// по партиции живёт в Redis и списывается атомарным Lua-скриптом до того,
// как запрос дойдёт до леджера. Квота не заменяет леджер: сток остаётся
// за ним, gate лишь режет заведомо безнадёжные попытки на входе.
type Gate struct {
	client *redis.Client
}

// NewGate создаёт Redis-гейт допуска.
func NewGate(client *redis.Client) *Gate {
	return &Gate{client: client}
}

func gateKey(key domain.StockKey) string {
	return fmt.Sprintf("%s%s:%s:%s", gateKeyPrefix, key.SKU, key.Location, key.Channel)
}

// SetQuota выставляет квоту допуска партиции. Вызывается при открытии
// продажи и при пополнении стока.
func (g *Gate) SetQuota(ctx context.Context, key domain.StockKey, quota int32) error {
	return g.client.Set(ctx, gateKey(key), quota, 0).Err()
}

// Take атомарно списывает qty из квоты. false означает, что квота
// исчерпана и запрос должен уйти в очередь допуска.
func (g *Gate) Take(ctx context.Context, key domain.StockKey, qty int32) (bool, error) {
	result, err := takeScript.Run(ctx, g.client, []string{gateKey(key)}, qty).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// Restore возвращает qty в квоту (компенсация отклонённой попытки).
func (g *Gate) Restore(ctx context.Context, key domain.StockKey, qty int32) error {
	return g.client.IncrBy(ctx, gateKey(key), int64(qty)).Err()
}
