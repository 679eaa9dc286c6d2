package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"autostock/internal/service"
)

const readyTimeout = 2 * time.Second

// Pinger is satisfied by *db.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness. DB is nil when state lives on
// the local filesystem. Readiness also lists markets whose state store is
// degraded; those markets still run sells, so they do not fail the probe.
type HealthHandler struct {
	DB       Pinger
	Registry *service.Registry
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Tags health
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	body := gin.H{"status": "ready", "storage": "file"}
	if h.Registry != nil {
		degraded := []string{}
		for _, st := range h.Registry.Statuses(c.Request.Context()) {
			if !st.BuysEnabled {
				degraded = append(degraded, st.Market)
			}
		}
		body["buys_disabled"] = degraded
	}
	if h.DB != nil {
		body["storage"] = "db"
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			body["status"] = "db_unreachable"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}
