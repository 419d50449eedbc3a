package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/repository"
)

type AuditHandler struct {
	Repo repository.Repository
}

func (h *AuditHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/audit-logs")
	g.GET("", h.list)
}

func (h *AuditHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	scope := requestScope(c)
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	var action *string
	if v := strings.TrimSpace(c.Query("action")); v != "" {
		action = &v
	}
	var resourceType *string
	if v := strings.TrimSpace(c.Query("resource_type")); v != "" {
		resourceType = &v
	}
	var resourceID *uint64
	if v := strings.TrimSpace(c.Query("resource_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			resourceID = &id
		}
	}
	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			t := ts.UTC()
			since = &t
		}
	}
	params := repository.ListAuditLogsParams{
		Limit:        limit,
		Offset:       offset,
		TenantID:     scope.TenantID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Since:        since,
		OrderBy:      "created_at",
		Asc:          boolPtr(false),
	}
	items, err := h.Repo.ListAuditLogs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountAuditLogs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
