package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type quotaTake struct {
	key domain.StockKey
	qty int32
}

// takeQuota списывает квоту допуска по каждой позиции заказа. false означает,
// что квота хотя бы одной партиции исчерпана; уже списанное возвращается.
// Недоступный gate не блокирует заказ: квота отсекает перегрузку, а не
// заменяет леджер, поэтому при ошибке Redis запрос проходит дальше.
func (s *Server) takeQuota(c *gin.Context, channel domain.SalesChannel, items []createOrderItemRequest) ([]quotaTake, bool) {
	if s.gate == nil {
		return nil, true
	}

	ctx := c.Request.Context()
	taken := make([]quotaTake, 0, len(items))
	for _, item := range items {
		key := domain.StockKey{SKU: item.SKU, Location: item.Location, Channel: channel}
		ok, err := s.gate.Take(ctx, key, item.Qty)
		if err != nil {
			s.logger.WithError(err).WithField("sku", item.SKU).Warn("admission gate unavailable, admitting request")
			continue
		}
		if !ok {
			s.restoreQuota(c, taken)
			return nil, false
		}
		taken = append(taken, quotaTake{key: key, qty: item.Qty})
	}
	return taken, true
}

// restoreQuota возвращает списанную квоту после отклонённого заказа.
func (s *Server) restoreQuota(c *gin.Context, taken []quotaTake) {
	if s.gate == nil || len(taken) == 0 {
		return
	}

	ctx := c.Request.Context()
	for _, t := range taken {
		if err := s.gate.Restore(ctx, t.key, t.qty); err != nil {
			s.logger.WithError(err).WithField("sku", t.key.SKU).Warn("failed to restore admission quota")
		}
	}
}

// syncQuota выравнивает квоту допуска с доступным стоком после пополнения.
func (s *Server) syncQuota(c *gin.Context, key domain.StockKey, available int32) {
	if s.gate == nil {
		return
	}

	if err := s.gate.SetQuota(c.Request.Context(), key, available); err != nil {
		s.logger.WithError(err).WithField("sku", key.SKU).Warn("failed to sync admission quota")
	}
}
