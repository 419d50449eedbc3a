package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/repository"
	"github.com/dunmininu/oms-trading/internal/service"
)

type ExecutionHandler struct {
	Repo       repository.Repository
	Executions *service.ExecutionService
}

func (h *ExecutionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/executions")
	g.POST("", h.record)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

func (h *ExecutionHandler) record(c *gin.Context) {
	if h.Executions == nil {
		Error(c, http.StatusServiceUnavailable, "execution service unavailable", nil)
		return
	}
	var in service.RecordExecutionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Executions.Create(c.Request.Context(), requestScope(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *ExecutionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	scope := requestScope(c)
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var orderID *uint64
	if v := strings.TrimSpace(c.Query("order_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			orderID = &id
		}
	}
	var accountID *uint64
	if v := strings.TrimSpace(c.Query("account_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			accountID = &id
		}
	}
	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			t := ts.UTC()
			since = &t
		}
	}
	var until *time.Time
	if raw := strings.TrimSpace(c.Query("until")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			t := ts.UTC()
			until = &t
		}
	}
	params := repository.ListExecutionsParams{
		Limit:     limit,
		Offset:    offset,
		TenantID:  scope.TenantID,
		OrderID:   orderID,
		AccountID: accountID,
		Since:     since,
		Until:     until,
		OrderBy:   "executed_at",
		Asc:       boolPtr(false),
	}
	items, err := h.Repo.ListExecutions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountExecutions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *ExecutionHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetExecutionByID(c.Request.Context(), requestScope(c).TenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "execution not found", nil)
		return
	}
	Ok(c, item, nil)
}
