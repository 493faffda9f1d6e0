package audit

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/handler"
	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/internal/service/audit"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/httputil"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	a := r.Group("/audit")
	{
		a.GET("", h.List)
		a.GET("/stats", h.Aggregate)
	}
}

func (h *Handler) List(c *gin.Context) {
	sess := handler.SessionFrom(c)
	if err := h.service.Authorize(c.Request.Context(), sess, model.PermAuditRead, "audit", uuid.Nil); err != nil {
		handler.RespondError(c, err)
		return
	}

	filters := make(map[string]interface{})
	if v := c.Query("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			handler.RespondError(c, apperrors.NewValidation("user_id", "invalid user ID"))
			return
		}
		filters["user_id"] = id
	}
	if v := c.Query("resource"); v != "" {
		filters["resource"] = v
	}
	if v := c.Query("action"); v != "" {
		filters["action"] = v
	}
	if v := c.Query("result"); v != "" {
		filters["result"] = v
	}

	page := httputil.ParsePageRequest(c)
	entries, total, err := h.service.List(c.Request.Context(), filters, page.PageSize, page.Offset())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, gin.H{
		"entries":    entries,
		"pagination": httputil.NewPagination(page, int(total)),
	})
}

func (h *Handler) Aggregate(c *gin.Context) {
	sess := handler.SessionFrom(c)
	if err := h.service.Authorize(c.Request.Context(), sess, model.PermAuditRead, "audit", uuid.Nil); err != nil {
		handler.RespondError(c, err)
		return
	}

	to := time.Now()
	from := to.AddDate(0, 0, -7)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			handler.RespondError(c, apperrors.NewValidation("from", "must be RFC3339"))
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			handler.RespondError(c, apperrors.NewValidation("to", "must be RFC3339"))
			return
		}
		to = t
	}

	agg, err := h.service.Aggregate(c.Request.Context(), from, to)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.RespondOK(c, agg)
}
