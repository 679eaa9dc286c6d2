package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# autostock admin API

## Auth

All /api/* routes require an HS256 Bearer token when server.auth_secret is set.
Health, metrics and docs endpoints are public.

## Routes

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
- GET /api/v1/markets
- GET /api/v1/markets/{market}/status
- POST /api/v1/markets/{market}/cycles/{buy|sell}
- GET /api/v1/markets/{market}/orders
- GET /api/v1/markets/{market}/orders/history
- GET /api/v1/markets/{market}/cooldowns
- DELETE /api/v1/markets/{market}/cooldowns/{symbol}?reason=...
- GET /api/v1/stream/status (websocket)
`)
	})
}
