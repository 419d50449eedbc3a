package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterDocs serves a plain markdown API index. The interactive
// swagger UI lives under /swagger.
func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# OMS Trading Service

Multi-tenant order management backend: instrument registry, order
lifecycle, execution recording, position ledger and daily P&L snapshots.

## Auth

All /api/* routes require a Bearer token carrying tenant claims.
Health endpoints, /metrics, /swagger and this page are public.

## Routes

- GET  /healthz
- GET  /readyz
- GET  /metrics
- GET  /swagger/index.html
- POST /api/v1/orders
- GET  /api/v1/orders
- POST /api/v1/orders/bulk
- POST /api/v1/orders/bulk-cancel
- GET  /api/v1/orders/:id
- PATCH /api/v1/orders/:id
- POST /api/v1/orders/:id/cancel
- POST /api/v1/orders/:id/events
- POST /api/v1/executions
- GET  /api/v1/executions
- GET  /api/v1/executions/:id
- GET  /api/v1/positions
- GET  /api/v1/positions/summary
- GET  /api/v1/positions/:id
- POST /api/v1/positions/:id/mark
- GET  /api/v1/pnl/snapshots
- POST /api/v1/pnl/snapshots
- GET  /api/v1/pnl/snapshots/:id
- GET  /api/v1/pnl/summary
- POST /api/v1/instruments
- GET  /api/v1/instruments
- GET  /api/v1/instruments/:id
- PATCH /api/v1/instruments/:id
- PUT  /api/v1/instruments/quotes/:symbol
- POST /api/v1/connections
- GET  /api/v1/connections
- GET  /api/v1/connections/:id
- PUT  /api/v1/connections/:id/status
- POST /api/v1/accounts
- GET  /api/v1/accounts
- GET  /api/v1/accounts/:id
- GET  /api/v1/accounts/:id/positions
- GET  /api/v1/audit-logs

Bulk endpoints accept an X-Idempotency-Key header; replays return the
recorded per-item outcomes.
`)
	})
}
