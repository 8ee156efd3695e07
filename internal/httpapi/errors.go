package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// respondError переводит доменные ошибки в HTTP-статусы.
func respondError(c *gin.Context, err error) {
	var insufficientStock *domain.InsufficientStockError

	switch {
	case domain.IsValidation(err) || errors.Is(err, domain.ErrIdempotencyKeyRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "msg": err.Error()})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "msg": err.Error()})
	case errors.As(err, &insufficientStock):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "insufficient_stock",
			"msg":       err.Error(),
			"sku":       insufficientStock.Key.SKU,
			"requested": insufficientStock.Requested,
			"available": insufficientStock.Available,
		})
	case errors.Is(err, domain.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_stock", "msg": err.Error()})
	case errors.Is(err, domain.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": "already_queued", "msg": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "msg": err.Error()})
	case errors.Is(err, domain.ErrInvalidReservationState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_reservation_state", "msg": err.Error()})
	case domain.IsVersionConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": "version_conflict", "msg": err.Error()})
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_hash_mismatch", "msg": err.Error()})
	case errors.Is(err, domain.ErrTransactionFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transaction_failed", "msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "msg": err.Error()})
	}
}
