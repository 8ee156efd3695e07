package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/orchestrator"
)

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	idempKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	useIdempotency := s.idempotency != nil && idempKey != ""
	if useIdempotency {
		if replayed := s.claimIdempotencyKey(c, idempKey, requestHash(req)); replayed {
			return
		}
	}

	items := make([]orchestrator.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orchestrator.ItemRequest{
			SKU:      item.SKU,
			Qty:      item.Qty,
			Location: item.Location,
		})
	}

	taken, admitted := s.takeQuota(c, domain.SalesChannel(req.Channel), req.Items)
	if !admitted {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "quota_exhausted", "msg": "admission quota exhausted, join the queue and retry"})
		if useIdempotency {
			payload, _ := json.Marshal(gin.H{"error": "quota_exhausted", "msg": "admission quota exhausted"})
			_ = s.idempotency.MarkFailed(idempKey, payload, http.StatusTooManyRequests)
		}
		return
	}

	order, err := s.orchestrator.ExecuteOrderTransaction(orchestrator.OrderRequest{
		CustomerID: req.CustomerID,
		Channel:    domain.SalesChannel(req.Channel),
		Items:      items,
		Priority:   req.Priority,
	})
	if err != nil {
		s.restoreQuota(c, taken)
		respondError(c, err)
		if useIdempotency {
			payload, _ := json.Marshal(gin.H{"error": "order_failed", "msg": err.Error()})
			_ = s.idempotency.MarkFailed(idempKey, payload, c.Writer.Status())
		}
		return
	}

	payload, merr := json.Marshal(toOrderResponse(order))
	if merr != nil {
		respondError(c, merr)
		return
	}
	if useIdempotency {
		_ = s.idempotency.MarkDone(idempKey, payload, http.StatusCreated)
	}

	c.Data(http.StatusCreated, "application/json", payload)
}

// claimIdempotencyKey пытается занять idempotency-key. true означает, что
// ответ уже записан (повтор запроса или конфликт) и handler должен выйти.
func (s *Server) claimIdempotencyKey(c *gin.Context, key, hash string) bool {
	_, err := s.idempotency.CreateProcessing(key, hash, time.Time{})
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		record, getErr := s.idempotency.Get(key)
		if getErr != nil {
			respondError(c, getErr)
			return true
		}

		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			// Повтор того же запроса получает сохранённый ответ.
			if len(record.ResponseBody) > 0 {
				c.Data(record.HTTPStatus, "application/json", record.ResponseBody)
			} else {
				c.Status(record.HTTPStatus)
			}
		default:
			c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress", "msg": "request with this idempotency key is still being processed"})
		}
		return true
	}

	respondError(c, err)
	return true
}

func requestHash(req createOrderRequest) string {
	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.orders.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) transitionOrder(c *gin.Context) {
	var req transitionRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	order, err := s.orders.Transition(c.Param("id"), domain.OrderStatus(req.Status), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) cancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "cancelled by request"
	}

	orderID := c.Param("id")
	if err := s.orchestrator.RollbackOrder(orderID, reason); err != nil {
		respondError(c, err)
		return
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) listCustomerOrders(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "msg": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	orders, err := s.orders.ListByCustomer(c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": result})
}
