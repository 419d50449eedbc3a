package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
	"github.com/dunmininu/oms-trading/internal/service"
)

type OrderHandler struct {
	Repo   repository.Repository
	Orders *service.OrderService
}

func (h *OrderHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.POST("/bulk", h.createBulk)
	g.POST("/bulk-cancel", h.cancelBulk)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/events", h.applyEvent)
}

func (h *OrderHandler) create(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	var in service.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Orders.Create(c.Request.Context(), requestScope(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	scope := requestScope(c)
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var state *string
	if v := strings.TrimSpace(c.Query("state")); v != "" {
		state = &v
	}
	var side *string
	if v := strings.TrimSpace(c.Query("side")); v != "" {
		side = &v
	}
	var orderType *string
	if v := strings.TrimSpace(c.Query("type")); v != "" {
		orderType = &v
	}
	var symbol *string
	if v := strings.TrimSpace(c.Query("symbol")); v != "" {
		symbol = &v
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
	orderBy := parseOrder(strings.TrimSpace(c.Query("order_by")), map[string]string{
		"created_at": "created_at",
		"updated_at": "updated_at",
		"quantity":   "quantity",
		"state":      "state",
	})
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToLower(strings.TrimSpace(c.Query("order")))
	asc := false
	if order == "asc" {
		asc = true
	}
	params := repository.ListOrdersParams{
		Limit:        limit,
		Offset:       offset,
		TenantID:     scope.TenantID,
		AccountID:    accountID,
		InstrumentID: instrumentID,
		Symbol:       symbol,
		State:        state,
		Side:         side,
		OrderType:    orderType,
		ActiveOnly:   boolQueryDefault(c, "active_only", false),
		Since:        since,
		Until:        until,
		OrderBy:      orderBy,
		Asc:          boolPtr(asc),
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// get resolves the path segment as a numeric id first and falls back to
// client_order_id, so both /orders/42 and /orders/acme_1a2b3c4d work.
func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	tenantID := requestScope(c).TenantID
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var item *models.Order
	var err error
	if id := parseUint64(raw); id > 0 {
		item, err = h.Repo.GetOrderByID(c.Request.Context(), tenantID, id)
	} else {
		item, err = h.Repo.GetOrderByClientOrderID(c.Request.Context(), tenantID, raw)
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *OrderHandler) update(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var in service.UpdateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Orders.Update(c.Request.Context(), requestScope(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *OrderHandler) cancel(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Orders.Cancel(c.Request.Context(), requestScope(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *OrderHandler) applyEvent(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var ev service.StateEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Orders.ApplyStateEvent(c.Request.Context(), requestScope(c), id, ev)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

type bulkCreateRequest struct {
	IdempotencyKey string                     `json:"idempotency_key"`
	Items          []service.CreateOrderInput `json:"items"`
}

func (h *OrderHandler) createBulk(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	key := strings.TrimSpace(c.GetHeader("X-Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	out, err := h.Orders.CreateBulk(c.Request.Context(), requestScope(c), key, req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, out, nil)
}

type bulkCancelRequest struct {
	IdempotencyKey string   `json:"idempotency_key"`
	OrderIDs       []uint64 `json:"order_ids"`
}

func (h *OrderHandler) cancelBulk(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	var req bulkCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	key := strings.TrimSpace(c.GetHeader("X-Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	out, err := h.Orders.CancelBulk(c.Request.Context(), requestScope(c), key, req.OrderIDs)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, out, nil)
}

func parseUint64(v string) uint64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var out uint64
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if ch < '0' || ch > '9' {
			return 0
		}
		out = out*10 + uint64(ch-'0')
	}
	return out
}

func uint64QueryParam(c *gin.Context, key string) uint64 {
	val := strings.TrimSpace(c.Param(key))
	if val == "" {
		return 0
	}
	return parseUint64(val)
}
