package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (s *Server) registerItem(c *gin.Context) {
	var req registerItemRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	err := s.ledger.RegisterItem(domain.InventoryItem{
		SKU:           req.SKU,
		Name:          req.Name,
		UnitCostMinor: req.UnitCostMinor,
		ReorderPoint:  req.ReorderPoint,
		ReorderQty:    req.ReorderQty,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sku": req.SKU})
}

func (s *Server) receiveStock(c *gin.Context) {
	var req receiveStockRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	key := req.stockKeyRequest.toKey()
	if err := s.ledger.ReceiveStock(key, req.Qty, req.Actor); err != nil {
		respondError(c, err)
		return
	}

	level, err := s.ledger.Level(key)
	if err != nil {
		respondError(c, err)
		return
	}
	s.syncQuota(c, key, level.Available)

	c.JSON(http.StatusOK, toStockLevelResponse(level))
}

func (s *Server) adjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	key := req.stockKeyRequest.toKey()
	if err := s.ledger.Adjust(key, req.Delta, req.Reason, req.Actor); err != nil {
		respondError(c, err)
		return
	}

	s.respondLevel(c, key)
}

func (s *Server) transferStock(c *gin.Context) {
	var req transferStockRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	channel := domain.SalesChannel(req.Channel)
	if err := s.ledger.Transfer(req.SKU, req.Qty, req.FromLocation, req.ToLocation, channel, req.Actor); err != nil {
		respondError(c, err)
		return
	}

	from, err := s.ledger.Level(domain.StockKey{SKU: req.SKU, Location: req.FromLocation, Channel: channel})
	if err != nil {
		respondError(c, err)
		return
	}
	to, err := s.ledger.Level(domain.StockKey{SKU: req.SKU, Location: req.ToLocation, Channel: channel})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from": toStockLevelResponse(from),
		"to":   toStockLevelResponse(to),
	})
}

func (s *Server) getStockLevel(c *gin.Context) {
	key, ok := stockKeyFromQuery(c)
	if !ok {
		return
	}

	level, err := s.ledger.Level(key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockLevelResponse(level))
}

func (s *Server) listTransactions(c *gin.Context) {
	key, ok := stockKeyFromQuery(c)
	if !ok {
		return
	}

	txs, err := s.ledger.Transactions(key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": toTransactionResponses(txs)})
}

func (s *Server) reconcileStock(c *gin.Context) {
	var req stockKeyRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	key := req.toKey()
	if err := s.ledger.Reconcile(key); err != nil {
		if domain.IsNotFound(err) {
			respondError(c, err)
			return
		}
		// Расхождение журнала и кэша уровня — не ошибка запроса, а факт дрейфа.
		c.JSON(http.StatusConflict, gin.H{"consistent": false, "msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"consistent": true})
}

func (s *Server) respondLevel(c *gin.Context, key domain.StockKey) {
	level, err := s.ledger.Level(key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStockLevelResponse(level))
}

func (r stockKeyRequest) toKey() domain.StockKey {
	return domain.StockKey{
		SKU:      r.SKU,
		Location: r.Location,
		Channel:  domain.SalesChannel(r.Channel),
	}
}

func stockKeyFromQuery(c *gin.Context) (domain.StockKey, bool) {
	key := domain.StockKey{
		SKU:      c.Query("sku"),
		Location: c.Query("location"),
		Channel:  domain.SalesChannel(c.Query("channel")),
	}
	if key.SKU == "" || key.Location == "" || !key.Channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_stock_key",
			"msg":   "sku, location and channel query parameters are required",
		})
		return domain.StockKey{}, false
	}
	return key, true
}
