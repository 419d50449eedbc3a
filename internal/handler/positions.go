package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dunmininu/oms-trading/internal/repository"
	"github.com/dunmininu/oms-trading/internal/service"
)

type PositionHandler struct {
	Repo      repository.Repository
	Positions *service.PositionService
}

func (h *PositionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/positions")
	g.GET("", h.list)
	g.GET("/summary", h.summary)
	g.GET("/:id", h.get)
	g.POST("/:id/mark", h.mark)
}

func (h *PositionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	scope := requestScope(c)
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(strings.TrimSpace(c.Query("order_by")), map[string]string{
		"unrealized_pnl": "unrealized_pnl",
		"realized_pnl":   "realized_pnl",
		"market_value":   "market_value",
		"opened_at":      "opened_at",
		"updated_at":     "updated_at",
	})
	if orderBy == "" {
		orderBy = "updated_at"
	}
	order := strings.ToLower(strings.TrimSpace(c.Query("order")))
	asc := false
	if order == "asc" {
		asc = true
	}
	var accountID *uint64
	if v := strings.TrimSpace(c.Query("account_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			accountID = &id
		}
	}
	var instrumentID *uint64
	if v := strings.TrimSpace(c.Query("instrument_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			instrumentID = &id
		}
	}
	params := repository.ListPositionsParams{
		Limit:        limit,
		Offset:       offset,
		TenantID:     scope.TenantID,
		AccountID:    accountID,
		InstrumentID: instrumentID,
		OpenOnly:     boolQueryDefault(c, "open_only", false),
		OrderBy:      orderBy,
		Asc:          boolPtr(asc),
	}
	items, err := h.Repo.ListPositions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountPositions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *PositionHandler) summary(c *gin.Context) {
	if h.Positions == nil {
		Error(c, http.StatusServiceUnavailable, "position service unavailable", nil)
		return
	}
	var accountID *uint64
	if v := strings.TrimSpace(c.Query("account_id")); v != "" {
		if id := parseUint64(v); id > 0 {
			accountID = &id
		}
	}
	out, err := h.Positions.Summary(c.Request.Context(), requestScope(c), accountID)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, out, nil)
}

func (h *PositionHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetPositionByID(c.Request.Context(), requestScope(c).TenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "position not found", nil)
		return
	}
	Ok(c, item, nil)
}

type markRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (h *PositionHandler) mark(c *gin.Context) {
	if h.Positions == nil {
		Error(c, http.StatusServiceUnavailable, "position service unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Positions.UpdateMarketValue(c.Request.Context(), requestScope(c), id, req.Price)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func boolPtr(v bool) *bool { return &v }
