package queue

import (
	"github.com/gin-gonic/gin"

	"github.com/ayurflow/clinic-api/internal/handler"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/service/queue"
)

type Handler struct {
	service *queue.Service
}

func NewHandler(service *queue.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	q := r.Group("/queue")
	{
		q.POST("", h.AddToQueue)
		q.GET("/stats", h.GetStats)
		q.GET("/:type", h.GetQueue)
		q.POST("/:type/next", h.CallNext)
	}
}

func (h *Handler) AddToQueue(c *gin.Context) {
	var req model.AddToQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	entry, err := h.service.AddToQueue(c.Request.Context(), handler.SessionFrom(c), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondCreated(c, entry)
}

func (h *Handler) GetQueue(c *gin.Context) {
	entries, err := h.service.GetQueue(c.Request.Context(), handler.SessionFrom(c), model.QueueType(c.Param("type")))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, entries)
}

func (h *Handler) CallNext(c *gin.Context) {
	entry, err := h.service.CallNext(c.Request.Context(), handler.SessionFrom(c), model.QueueType(c.Param("type")))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if entry == nil {
		// Empty queue is a normal outcome, not an error.
		handler.RespondEmpty(c)
		return
	}
	handler.RespondOK(c, entry)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetQueueStats(c.Request.Context(), handler.SessionFrom(c), model.QueueType(c.Query("type")))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, stats)
}
