package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// AccountHandler serves broker connections and the accounts under them.
// These are plain registry rows; no service layer sits in between.
type AccountHandler struct {
	Repo repository.Repository
}

func (h *AccountHandler) Register(r *gin.Engine) {
	conns := r.Group("/api/v1/connections")
	conns.POST("", h.createConnection)
	conns.GET("", h.listConnections)
	conns.GET("/:id", h.getConnection)
	conns.PUT("/:id/status", h.putConnectionStatus)

	accts := r.Group("/api/v1/accounts")
	accts.POST("", h.createAccount)
	accts.GET("", h.listAccounts)
	accts.GET("/:id", h.getAccount)
	accts.GET("/:id/positions", h.getAccountPositions)
}

type createConnectionRequest struct {
	Name       string `json:"name"`
	BrokerName string `json:"broker_name"`
}

func (h *AccountHandler) createConnection(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	name := strings.TrimSpace(req.Name)
	broker := strings.TrimSpace(req.BrokerName)
	if name == "" || broker == "" {
		Error(c, http.StatusBadRequest, "name and broker_name are required", nil)
		return
	}
	item := &models.BrokerConnection{
		TenantID:   requestScope(c).TenantID,
		Name:       name,
		BrokerName: broker,
		Status:     models.ConnectionStatusDisconnected,
	}
	if err := h.Repo.InsertBrokerConnection(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *AccountHandler) listConnections(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListBrokerConnections(c.Request.Context(), requestScope(c).TenantID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *AccountHandler) getConnection(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetBrokerConnectionByID(c.Request.Context(), requestScope(c).TenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "connection not found", nil)
		return
	}
	Ok(c, item, nil)
}

type connectionStatusRequest struct {
	Status    string `json:"status"`
	LastError string `json:"last_error"`
}

var validConnectionStatuses = map[string]struct{}{
	models.ConnectionStatusConnected:    {},
	models.ConnectionStatusDisconnected: {},
	models.ConnectionStatusConnecting:   {},
	models.ConnectionStatusError:        {},
}

func (h *AccountHandler) putConnectionStatus(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req connectionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if _, ok := validConnectionStatuses[status]; !ok {
		Error(c, http.StatusBadRequest, "unknown status: "+req.Status, nil)
		return
	}
	tenantID := requestScope(c).TenantID
	item, err := h.Repo.GetBrokerConnectionByID(c.Request.Context(), tenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "connection not found", nil)
		return
	}
	if err := h.Repo.UpdateBrokerConnectionStatus(c.Request.Context(), tenantID, id, status, strings.TrimSpace(req.LastError), time.Now().UTC()); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	next, _ := h.Repo.GetBrokerConnectionByID(c.Request.Context(), tenantID, id)
	Ok(c, next, nil)
}

type createAccountRequest struct {
	BrokerConnectionID uint64 `json:"broker_connection_id"`
	AccountNumber      string `json:"account_number"`
	AccountName        string `json:"account_name"`
	AccountType        string `json:"account_type"`
	Currency           string `json:"currency"`
}

var validAccountTypes = map[string]struct{}{
	models.AccountTypeCash:   {},
	models.AccountTypeMargin: {},
	models.AccountTypePaper:  {},
	models.AccountTypeIRA:    {},
}

func (h *AccountHandler) createAccount(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	number := strings.TrimSpace(req.AccountNumber)
	if number == "" {
		Error(c, http.StatusBadRequest, "account_number is required", nil)
		return
	}
	acctType := strings.ToUpper(strings.TrimSpace(req.AccountType))
	if acctType == "" {
		acctType = models.AccountTypeCash
	}
	if _, ok := validAccountTypes[acctType]; !ok {
		Error(c, http.StatusBadRequest, "unknown account_type: "+req.AccountType, nil)
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	tenantID := requestScope(c).TenantID
	if req.BrokerConnectionID > 0 {
		conn, err := h.Repo.GetBrokerConnectionByID(c.Request.Context(), tenantID, req.BrokerConnectionID)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if conn == nil {
			Error(c, http.StatusNotFound, "connection not found", nil)
			return
		}
	}
	item := &models.BrokerAccount{
		TenantID:           tenantID,
		BrokerConnectionID: req.BrokerConnectionID,
		AccountNumber:      number,
		AccountName:        strings.TrimSpace(req.AccountName),
		AccountType:        acctType,
		Status:             models.AccountStatusActive,
		Currency:           currency,
		IsActive:           true,
	}
	if err := h.Repo.InsertBrokerAccount(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *AccountHandler) listAccounts(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var status *string
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status = &v
	}
	params := repository.ListBrokerAccountsParams{
		Limit:    limit,
		Offset:   offset,
		TenantID: requestScope(c).TenantID,
		Status:   status,
		Active:   boolQueryPtr(c, "active"),
		OrderBy:  "created_at",
		Asc:      boolPtr(false),
	}
	items, err := h.Repo.ListBrokerAccounts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountBrokerAccounts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *AccountHandler) getAccount(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetBrokerAccountByID(c.Request.Context(), requestScope(c).TenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "account not found", nil)
		return
	}
	Ok(c, item, nil)
}

// getAccountPositions lists the account's open positions. Flat rows stay
// out; full history is under /positions without the open_only filter.
func (h *AccountHandler) getAccountPositions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64QueryParam(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	tenantID := requestScope(c).TenantID
	acct, err := h.Repo.GetBrokerAccountByID(c.Request.Context(), tenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if acct == nil {
		Error(c, http.StatusNotFound, "account not found", nil)
		return
	}
	items, err := h.Repo.ListOpenPositionsByAccount(c.Request.Context(), tenantID, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
