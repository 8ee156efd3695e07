package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/orchestrator"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/queue"
)

// AdmissionGate — быстрый квотный отсекатель перед леджером. Квота живёт
// во внешнем быстром хранилище и режет заведомо безнадёжные запросы
// до того, как они дойдут до стока.
type AdmissionGate interface {
	SetQuota(ctx context.Context, key domain.StockKey, quota int32) error
	Take(ctx context.Context, key domain.StockKey, qty int32) (bool, error)
	Restore(ctx context.Context, key domain.StockKey, qty int32) error
}

// Server связывает HTTP-слой с сервисами storefront.
type Server struct {
	orchestrator *orchestrator.Service
	orders       *orders.Service
	ledger       *ledger.Service
	queue        *queue.Service
	idempotency  domain.IdempotencyRepository
	gate         AdmissionGate
	logger       *log.Entry
	validate     *validatorv10.Validate
}

// NewServer создаёт HTTP-слой. idempotency может быть nil: тогда заголовок
// Idempotency-Key игнорируется и повторная защита не включается.
func NewServer(
	orchestratorSvc *orchestrator.Service,
	ordersSvc *orders.Service,
	ledgerSvc *ledger.Service,
	queueSvc *queue.Service,
	idempotency domain.IdempotencyRepository,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}

	return &Server{
		orchestrator: orchestratorSvc,
		orders:       ordersSvc,
		ledger:       ledgerSvc,
		queue:        queueSvc,
		idempotency:  idempotency,
		logger:       logger,
		validate:     newValidator(),
	}
}

// WithGate включает квотный отсекатель на создании заказа.
func (s *Server) WithGate(gate AdmissionGate) *Server {
	s.gate = gate
	return s
}

// Router собирает gin-роутер со всеми маршрутами API.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")

	api.POST("/orders", s.createOrder)
	api.GET("/orders/:id", s.getOrder)
	api.POST("/orders/:id/status", s.transitionOrder)
	api.POST("/orders/:id/cancel", s.cancelOrder)
	api.GET("/customers/:id/orders", s.listCustomerOrders)

	api.POST("/inventory/items", s.registerItem)
	api.POST("/inventory/receive", s.receiveStock)
	api.POST("/inventory/adjust", s.adjustStock)
	api.POST("/inventory/transfer", s.transferStock)
	api.GET("/inventory/levels", s.getStockLevel)
	api.GET("/inventory/transactions", s.listTransactions)
	api.POST("/inventory/reconcile", s.reconcileStock)

	api.POST("/queue/:sku/join", s.joinQueue)
	api.GET("/queue/:sku/position/:customer_id", s.queuePosition)
	api.DELETE("/queue/:sku/customers/:customer_id", s.leaveQueue)
	api.POST("/queue/:sku/dequeue", s.dequeueNext)
	api.POST("/queue/:sku/complete", s.completeQueue)
	api.GET("/queue/:sku/depth", s.queueDepth)

	return router
}
