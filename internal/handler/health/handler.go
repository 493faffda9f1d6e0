package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/ayurflow/clinic-api/internal/sync"
	"github.com/ayurflow/clinic-api/pkg/messaging"
)

type Handler struct {
	db      *sqlx.DB
	broker  messaging.Broker
	channel *sync.Channel
}

func NewHandler(db *sqlx.DB, broker messaging.Broker, channel *sync.Channel) *Handler {
	return &Handler{db: db, broker: broker, channel: channel}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Live)
	r.GET("/health/ready", h.Ready)
}

func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready reports dependency health. A degraded sync channel keeps the service
// ready; clients just see staler data until the next resync.
func (h *Handler) Ready(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{
		"sync": h.channel.State().String(),
	}
	healthy := true

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}
	checks["database_latency_ms"] = time.Since(start).Milliseconds()

	if err := h.broker.Healthy(ctx); err != nil {
		checks["broker"] = err.Error()
		healthy = false
	} else {
		checks["broker"] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "checks": checks})
}
