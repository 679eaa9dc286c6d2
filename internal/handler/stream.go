package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"autostock/internal/service"
)

const writeTimeout = 5 * time.Second

// StreamHandler pushes every market's status over a websocket at a fixed
// interval until the client goes away.
type StreamHandler struct {
	Registry *service.Registry
	Interval time.Duration
	Logger   *zap.Logger
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stream/status", h.stream)
}

type statusFrame struct {
	At      time.Time        `json:"at"`
	Markets []service.Status `json:"markets"`
}

// @Summary Stream market status over a websocket
// @Tags markets
// @Security BearerAuth
// @Router /api/v1/stream/status [get]
func (h *StreamHandler) stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	ctx := conn.CloseRead(c.Request.Context())
	interval := h.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.push(ctx, conn); err != nil {
			if h.Logger != nil && !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
				h.Logger.Debug("status stream closed", zap.Error(err))
			}
			return
		}
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}

func (h *StreamHandler) push(ctx context.Context, conn *websocket.Conn) error {
	frame := statusFrame{At: time.Now().UTC(), Markets: []service.Status{}}
	if h.Registry != nil {
		frame.Markets = h.Registry.Statuses(ctx)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, frame)
}
