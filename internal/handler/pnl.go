package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/repository"
	"github.com/dunmininu/oms-trading/internal/service"
)

type PnLHandler struct {
	Repo repository.Repository
	PnL  *service.PnLService
}

func (h *PnLHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/pnl")
	g.GET("/snapshots", h.listSnapshots)
	g.POST("/snapshots", h.createSnapshot)
	g.GET("/snapshots/:id", h.getSnapshot)
	g.GET("/summary", h.summary)
}

func (h *PnLHandler) listSnapshots(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	scope := requestScope(c)
	limit := intQuery(c, "limit", 90)
	offset := intQuery(c, "offset", 0)
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
		} else if ts, err := time.Parse("2006-01-02", raw); err == nil {
			t := ts.UTC()
			since = &t
		}
	}
	var until *time.Time
	if raw := strings.TrimSpace(c.Query("until")); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			t := ts.UTC()
			until = &t
		} else if ts, err := time.Parse("2006-01-02", raw); err == nil {
			t := ts.UTC()
			until = &t
		}
	}
	params := repository.ListPnLSnapshotsParams{
		Limit:     limit,
		Offset:    offset,
		TenantID:  scope.TenantID,
		AccountID: accountID,
		Since:     since,
		Until:     until,
		OrderBy:   "snapshot_date",
		Asc:       boolPtr(false),
	}
	items, err := h.Repo.ListPnLSnapshots(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountPnLSnapshots(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *PnLHandler) getSnapshot(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetPnLSnapshotByID(c.Request.Context(), requestScope(c).TenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "snapshot not found", nil)
		return
	}
	Ok(c, item, nil)
}

type snapshotRequest struct {
	AccountID *uint64 `json:"account_id"`
	Date      string  `json:"date"`
}

func (h *PnLHandler) createSnapshot(c *gin.Context) {
	if h.PnL == nil {
		Error(c, http.StatusServiceUnavailable, "pnl service unavailable", nil)
		return
	}
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	var date time.Time
	if raw := strings.TrimSpace(req.Date); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid date: "+raw, nil)
			return
		}
		date = parsed
	}
	items, err := h.PnL.CreateSnapshot(c.Request.Context(), requestScope(c), req.AccountID, date)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *PnLHandler) summary(c *gin.Context) {
	if h.PnL == nil {
		Error(c, http.StatusServiceUnavailable, "pnl service unavailable", nil)
		return
	}
	var accountID *uint64
	if v := strings.TrimSpace(c.Query("account_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			accountID = &id
		}
	}
	days := intQuery(c, "days", 30)
	out, err := h.PnL.Summary(c.Request.Context(), requestScope(c), accountID, days)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, out, nil)
}
