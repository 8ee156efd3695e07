package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/orchestrator"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/queue"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var testStockKey = domain.StockKey{SKU: "widget", Location: "msk-1", Channel: domain.ChannelOnline}

type serverFixture struct {
	router *gin.Engine
	ledger *ledger.Service
	server *Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.WithField("component", "httpapi-test")

	inv := memory.NewInventoryRepository()
	outbox := memory.NewOutboxRepository()
	ledgerSvc := ledger.NewServiceWithoutMetrics(inv, outbox, logger)

	customers := memory.NewCustomerStore()
	customers.Seed(domain.Customer{
		ID:         "alice",
		SignedUpAt: time.Now().UTC().Add(-60 * 24 * time.Hour),
	})

	catalogSvc := catalog.NewStaticCatalog(
		domain.Product{SKU: "widget", Name: "Widget", Category: "gadgets", PriceMinor: 50_000},
	)

	orderRepo := memory.NewOrderRepository()
	orchestratorSvc := orchestrator.NewServiceWithoutMetrics(orderRepo, ledgerSvc, customers, catalogSvc, outbox, logger)
	ordersSvc := orders.NewServiceWithoutMetrics(orderRepo, ledgerSvc, payment.NewMockService(), outbox, logger)
	queueSvc := queue.NewServiceWithoutMetrics(queue.DefaultConfig(), customers, logger)

	server := NewServer(orchestratorSvc, ordersSvc, ledgerSvc, queueSvc, memory.NewIdempotencyRepository(), logger)

	require.NoError(t, ledgerSvc.RegisterItem(domain.InventoryItem{SKU: "widget", Name: "Widget", ReorderPoint: 2}))
	require.NoError(t, ledgerSvc.ReceiveStock(testStockKey, 10, "seed"))

	return &serverFixture{
		router: server.Router(),
		ledger: ledgerSvc,
		server: server,
	}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func createOrderBody(qty int32) gin.H {
	return gin.H{
		"customer_id": "alice",
		"channel":     "online",
		"items": []gin.H{
			{"sku": "widget", "qty": qty, "location": "msk-1"},
		},
	}
}

func TestCreateOrder_Success(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "pending", resp.Status)
	require.Equal(t, int64(100_000), resp.AmountMinor)
	require.Len(t, resp.History, 1)

	level, err := f.ledger.Level(testStockKey)
	require.NoError(t, err)
	require.Equal(t, int32(8), level.Available)
	require.Equal(t, int32(2), level.Reserved)
}

func TestCreateOrder_ValidationRejected(t *testing.T) {
	f := newServerFixture(t)

	body := createOrderBody(2)
	body["channel"] = "carrier-pigeon"

	w := f.do(t, http.MethodPost, "/api/v1/orders", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Сток не тронут.
	level, err := f.ledger.Level(testStockKey)
	require.NoError(t, err)
	require.Equal(t, int32(10), level.Available)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(50), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "insufficient_stock")
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	f := newServerFixture(t)

	headers := map[string]string{"Idempotency-Key": "idem-1"}

	first := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())

	// Второй запрос не резервировал сток повторно.
	level, err := f.ledger.Level(testStockKey)
	require.NoError(t, err)
	require.Equal(t, int32(2), level.Reserved)
}

func TestCreateOrder_IdempotencyHashMismatch(t *testing.T) {
	f := newServerFixture(t)

	headers := map[string]string{"Idempotency-Key": "idem-2"}

	first := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	// Тот же ключ с другим телом отбивается.
	second := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(3), headers)
	require.Equal(t, http.StatusUnprocessableEntity, second.Code)
}

func TestOrderTransitions(t *testing.T) {
	f := newServerFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(2), nil)
	require.Equal(t, http.StatusCreated, created.Code)

	var order orderResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &order))

	w := f.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/status", gin.H{"status": "confirmed", "note": "paid"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Недопустимый переход.
	w = f.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/status", gin.H{"status": "delivered"}, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	// Неизвестный статус.
	w = f.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/status", gin.H{"status": "teleported"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/orders/"+order.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	require.Equal(t, "confirmed", fetched.Status)
	require.Len(t, fetched.History, 2)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/orders/no-such-order", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	f := newServerFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(3), nil)
	require.Equal(t, http.StatusCreated, created.Code)

	var order orderResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &order))

	w := f.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", gin.H{"reason": "customer changed mind"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cancelled orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	require.Equal(t, "cancelled", cancelled.Status)

	level, err := f.ledger.Level(testStockKey)
	require.NoError(t, err)
	require.Equal(t, int32(10), level.Available)
	require.Equal(t, int32(0), level.Reserved)
}

func TestListCustomerOrders(t *testing.T) {
	f := newServerFixture(t)

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/api/v1/orders", createOrderBody(1), nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/customers/alice/orders?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []orderResponse `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 2)

	w = f.do(t, http.MethodGet, "/api/v1/customers/alice/orders?limit=oops", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInventoryEndpoints(t *testing.T) {
	f := newServerFixture(t)

	keyBody := gin.H{"sku": "widget", "location": "msk-1", "channel": "online"}

	w := f.do(t, http.MethodGet, "/api/v1/inventory/levels?sku=widget&location=msk-1&channel=online", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var level stockLevelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &level))
	require.Equal(t, int32(10), level.Available)
	require.Equal(t, int32(10), level.Total)

	// Приёмка стока на новый склад.
	receive := gin.H{"sku": "widget", "location": "spb-1", "channel": "online", "qty": 4, "actor": "supplier"}
	w = f.do(t, http.MethodPost, "/api/v1/inventory/receive", receive, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Корректировка с обязательной причиной.
	adjust := gin.H{"sku": "widget", "location": "msk-1", "channel": "online", "delta": -1, "reason": "damaged unit", "actor": "warehouse"}
	w = f.do(t, http.MethodPost, "/api/v1/inventory/adjust", adjust, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &level))
	require.Equal(t, int32(9), level.Available)

	// Перенос между складами.
	transfer := gin.H{"sku": "widget", "qty": 2, "from_location": "msk-1", "to_location": "spb-1", "channel": "online", "actor": "logistics"}
	w = f.do(t, http.MethodPost, "/api/v1/inventory/transfer", transfer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var transferResp struct {
		From stockLevelResponse `json:"from"`
		To   stockLevelResponse `json:"to"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transferResp))
	require.Equal(t, int32(7), transferResp.From.Available)
	require.Equal(t, int32(6), transferResp.To.Available)

	// Журнал и сверка.
	w = f.do(t, http.MethodGet, "/api/v1/inventory/transactions?sku=widget&location=msk-1&channel=online", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "transfer_out")

	w = f.do(t, http.MethodPost, "/api/v1/inventory/reconcile", keyBody, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"consistent":true`)

	// Неполный ключ стока.
	w = f.do(t, http.MethodGet, "/api/v1/inventory/levels?sku=widget", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueEndpoints(t *testing.T) {
	f := newServerFixture(t)

	join := gin.H{"customer_id": "alice", "discipline": "fifo"}

	w := f.do(t, http.MethodPost, "/api/v1/queue/widget/join", join, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var entry queueEntryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	require.Equal(t, 1, entry.Position)

	// Повторный join той же пары (customer, SKU) отбивается.
	w = f.do(t, http.MethodPost, "/api/v1/queue/widget/join", join, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/queue/widget/position/alice", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/queue/widget/depth", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"depth":1`)

	w = f.do(t, http.MethodPost, "/api/v1/queue/widget/dequeue", gin.H{"count": 1}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var granted struct {
		Granted []queueEntryResponse `json:"granted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &granted))
	require.Len(t, granted.Granted, 1)
	require.Equal(t, "processed", granted.Granted[0].Status)

	w = f.do(t, http.MethodPost, "/api/v1/queue/widget/complete", gin.H{"customer_id": "alice"}, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// После завершения слота можно встать в очередь снова.
	w = f.do(t, http.MethodPost, "/api/v1/queue/widget/join", join, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/queue/widget/customers/alice", nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/queue/widget/position/alice", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
