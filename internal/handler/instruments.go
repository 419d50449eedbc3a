package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/repository"
	"github.com/dunmininu/oms-trading/internal/service"
)

type InstrumentHandler struct {
	Repo        repository.Repository
	Instruments *service.InstrumentService
}

func (h *InstrumentHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/instruments")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.PUT("/quotes/:symbol", h.putQuote)
}

func (h *InstrumentHandler) create(c *gin.Context) {
	if h.Instruments == nil {
		Error(c, http.StatusServiceUnavailable, "instrument service unavailable", nil)
		return
	}
	var in service.CreateInstrumentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Instruments.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *InstrumentHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var symbol *string
	if v := strings.TrimSpace(c.Query("symbol")); v != "" {
		symbol = &v
	}
	var instrumentType *string
	if v := strings.TrimSpace(c.Query("type")); v != "" {
		instrumentType = &v
	}
	var exchange *string
	if v := strings.TrimSpace(c.Query("exchange")); v != "" {
		exchange = &v
	}
	var search *string
	if v := strings.TrimSpace(c.Query("search")); v != "" {
		search = &v
	}
	orderBy := parseOrder(strings.TrimSpace(c.Query("order_by")), map[string]string{
		"symbol":        "symbol",
		"created_at":    "created_at",
		"updated_at":    "updated_at",
		"last_quote_at": "last_quote_at",
	})
	if orderBy == "" {
		orderBy = "symbol"
	}
	order := strings.ToLower(strings.TrimSpace(c.Query("order")))
	asc := order != "desc"
	params := repository.ListInstrumentsParams{
		Limit:          limit,
		Offset:         offset,
		Symbol:         symbol,
		InstrumentType: instrumentType,
		Exchange:       exchange,
		Active:         boolQueryPtr(c, "active"),
		Tradable:       boolQueryPtr(c, "tradable"),
		Search:         search,
		OrderBy:        orderBy,
		Asc:            boolPtr(asc),
	}
	items, err := h.Repo.ListInstruments(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountInstruments(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *InstrumentHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetInstrumentByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "instrument not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *InstrumentHandler) update(c *gin.Context) {
	if h.Instruments == nil {
		Error(c, http.StatusServiceUnavailable, "instrument service unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var in service.UpdateInstrumentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Instruments.Update(c.Request.Context(), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *InstrumentHandler) putQuote(c *gin.Context) {
	if h.Instruments == nil {
		Error(c, http.StatusServiceUnavailable, "instrument service unavailable", nil)
		return
	}
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		Error(c, http.StatusBadRequest, "invalid symbol", nil)
		return
	}
	var q service.QuoteInput
	if err := c.ShouldBindJSON(&q); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	item, err := h.Instruments.UpdateQuote(c.Request.Context(), symbol, q)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func boolQueryDefault(c *gin.Context, key string, def bool) bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

func boolQueryPtr(c *gin.Context, key string) *bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return &b
		}
	}
	return nil
}

func parseOrder(value string, allow map[string]string) string {
	key := strings.TrimSpace(strings.ToLower(value))
	if key == "" {
		return ""
	}
	if mapped, ok := allow[key]; ok {
		return mapped
	}
	return ""
}

func paginationMeta(limit, offset int, total int64) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	hasNext := int64(offset+limit) < total
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": hasNext,
	}
}
