package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (s *Server) joinQueue(c *gin.Context) {
	var req joinQueueRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	entry, err := s.queue.Join(c.Param("sku"), req.CustomerID, domain.QueueDiscipline(req.Discipline))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toQueueEntryResponse(entry))
}

func (s *Server) queuePosition(c *gin.Context) {
	entry, err := s.queue.Position(c.Param("sku"), c.Param("customer_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQueueEntryResponse(entry))
}

func (s *Server) leaveQueue(c *gin.Context) {
	if err := s.queue.Leave(c.Param("sku"), c.Param("customer_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) dequeueNext(c *gin.Context) {
	var req dequeueRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	entries, err := s.queue.DequeueNext(c.Param("sku"), req.Count)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]queueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		result = append(result, toQueueEntryResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{"granted": result})
}

func (s *Server) completeQueue(c *gin.Context) {
	var req completeQueueRequest
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}

	if err := s.queue.Complete(c.Param("sku"), req.CustomerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) queueDepth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sku":   c.Param("sku"),
		"depth": s.queue.Depth(c.Param("sku")),
	})
}
