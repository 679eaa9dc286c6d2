package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autostock/internal/models"
	"autostock/internal/repository"
	"autostock/internal/service"
)

type MarketHandler struct {
	Registry *service.Registry
	Logger   *zap.Logger
}

func (h *MarketHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/markets")
	g.GET("", h.list)
	g.GET("/:market/status", h.status)
	g.POST("/:market/cycles/:direction", h.runCycle)
	g.GET("/:market/orders", h.orders)
	g.GET("/:market/orders/history", h.orderHistory)
	g.GET("/:market/cooldowns", h.cooldowns)
	g.DELETE("/:market/cooldowns/:symbol", h.unblock)
}

func (h *MarketHandler) market(c *gin.Context) (*service.MarketService, bool) {
	if h.Registry == nil {
		Error(c, http.StatusServiceUnavailable, "registry unavailable", nil)
		return nil, false
	}
	svc, err := h.Registry.Get(strings.ToLower(c.Param("market")))
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return nil, false
	}
	return svc, true
}

// @Summary List markets with status
// @Tags markets
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/v1/markets [get]
func (h *MarketHandler) list(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusServiceUnavailable, "registry unavailable", nil)
		return
	}
	Ok(c, h.Registry.Statuses(c.Request.Context()), map[string]any{"markets": h.Registry.Markets()})
}

// @Summary Market status
// @Tags markets
// @Security BearerAuth
// @Param market path string true "market id (kr, us)"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/markets/{market}/status [get]
func (h *MarketHandler) status(c *gin.Context) {
	svc, ok := h.market(c)
	if !ok {
		return
	}
	Ok(c, svc.Status(c.Request.Context()), nil)
}

// @Summary Run a trading cycle now
// @Tags markets
// @Security BearerAuth
// @Param market path string true "market id"
// @Param direction path string true "buy or sell"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/v1/markets/{market}/cycles/{direction} [post]
func (h *MarketHandler) runCycle(c *gin.Context) {
	svc, ok := h.market(c)
	if !ok {
		return
	}
	dir, ok := models.ParseDirection(strings.ToLower(c.Param("direction")))
	if !ok {
		Error(c, http.StatusBadRequest, "direction must be buy or sell", nil)
		return
	}
	res, err := svc.RunCycle(c.Request.Context(), dir)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("manual cycle failed", zap.String("market", svc.Market), zap.String("direction", string(dir)), zap.Error(err))
		}
		Error(c, statusFor(err), err.Error(), map[string]any{"result": res})
		return
	}
	Ok(c, res, nil)
}

// @Summary Orders currently monitored
// @Tags orders
// @Security BearerAuth
// @Param market path string true "market id"
// @Success 200 {object} apiResponse
// @Router /api/v1/markets/{market}/orders [get]
func (h *MarketHandler) orders(c *gin.Context) {
	svc, ok := h.market(c)
	if !ok {
		return
	}
	Ok(c, svc.OrderSummary(), nil)
}

// @Summary Journaled terminal orders
// @Tags orders
// @Security BearerAuth
// @Param market path string true "market id"
// @Param symbol query string false "symbol"
// @Param status query string false "terminal state"
// @Param since query string false "RFC 3339 time or date"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/markets/{market}/orders/history [get]
func (h *MarketHandler) orderHistory(c *gin.Context) {
	svc, ok := h.market(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := svc.OrderHistory(c.Request.Context(), repository.ListOrdersParams{
		Symbol: strings.TrimSpace(c.Query("symbol")),
		Status: strings.TrimSpace(c.Query("status")),
		Since:  timeQuery(c, "since"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, len(items)))
}

// @Summary Active stop-loss cooldowns
// @Tags cooldowns
// @Security BearerAuth
// @Param market path string true "market id"
// @Success 200 {object} apiResponse
// @Router /api/v1/markets/{market}/cooldowns [get]
func (h *MarketHandler) cooldowns(c *gin.Context) {
	svc, ok := h.market(c)
	if !ok {
		return
	}
	blocks := svc.Cooldowns()
	Ok(c, blocks, map[string]any{"count": len(blocks)})
}

// @Summary Lift a cooldown by hand
// @Tags cooldowns
// @Security BearerAuth
// @Param market path string true "market id"
// @Param symbol path string true "symbol"
// @Param reason query string false "audit reason"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/markets/{market}/cooldowns/{symbol} [delete]
func (h *MarketHandler) unblock(c *gin.Context) {
	svc, ok := h.market(c)
	if !ok {
		return
	}
	symbol := strings.TrimSpace(c.Param("symbol"))
	reason := strings.TrimSpace(c.Query("reason"))
	if reason == "" {
		reason = "manual"
	}
	removed, err := svc.Unblock(c.Request.Context(), symbol, reason)
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	if !removed {
		Error(c, http.StatusNotFound, "symbol not in cooldown", nil)
		return
	}
	Ok(c, gin.H{"symbol": symbol, "removed": true, "reason": reason}, nil)
}
