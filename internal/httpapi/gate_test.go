package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// stubGate хранит квоты в памяти и считает вызовы Restore.
type stubGate struct {
	mu       sync.Mutex
	quotas   map[domain.StockKey]int32
	restored map[domain.StockKey]int32
	takeErr  error
}

func newStubGate() *stubGate {
	return &stubGate{
		quotas:   make(map[domain.StockKey]int32),
		restored: make(map[domain.StockKey]int32),
	}
}

func (g *stubGate) SetQuota(_ context.Context, key domain.StockKey, quota int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotas[key] = quota
	return nil
}

func (g *stubGate) Take(_ context.Context, key domain.StockKey, qty int32) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.takeErr != nil {
		return false, g.takeErr
	}
	current, ok := g.quotas[key]
	if !ok {
		return true, nil
	}
	if current < qty {
		return false, nil
	}
	g.quotas[key] = current - qty
	return true, nil
}

func (g *stubGate) Restore(_ context.Context, key domain.StockKey, qty int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotas[key] += qty
	g.restored[key] += qty
	return nil
}

func (g *stubGate) quota(key domain.StockKey) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quotas[key]
}

func (g *stubGate) restoredQty(key domain.StockKey) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.restored[key]
}

func TestCreateOrder_QuotaExhausted(t *testing.T) {
	f := newServerFixture(t)
	gate := newStubGate()
	f.server.WithGate(gate)
	require.NoError(t, gate.SetQuota(context.Background(), testStockKey, 1))

	w := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), "quota_exhausted")

	// Сток не тронут: запрос отсечён до леджера.
	level, err := f.ledger.Level(testStockKey)
	require.NoError(t, err)
	require.Equal(t, int32(10), level.Available)
}

func TestCreateOrder_QuotaTakenAndRestoredOnFailure(t *testing.T) {
	f := newServerFixture(t)
	gate := newStubGate()
	f.server.WithGate(gate)
	require.NoError(t, gate.SetQuota(context.Background(), testStockKey, 20))

	// Успешный заказ списывает квоту без возврата.
	w := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, int32(18), gate.quota(testStockKey))

	// Заказ сверх доступного стока проходит gate, падает в леджере,
	// и списанная квота возвращается.
	w = f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(9), nil)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, int32(18), gate.quota(testStockKey))
	require.Equal(t, int32(9), gate.restoredQty(testStockKey))
}

func TestCreateOrder_GateFailureAdmitsRequest(t *testing.T) {
	f := newServerFixture(t)
	gate := newStubGate()
	gate.takeErr = errors.New("redis: connection refused")
	f.server.WithGate(gate)

	w := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestReceiveStock_SyncsQuota(t *testing.T) {
	f := newServerFixture(t)
	gate := newStubGate()
	f.server.WithGate(gate)

	body := map[string]any{
		"sku":      "widget",
		"location": "msk-1",
		"channel":  "online",
		"qty":      5,
		"actor":    "warehouse",
	}
	w := f.do(t, http.MethodPost, "/api/v1/inventory/receive", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, int32(15), gate.quota(testStockKey))
}
