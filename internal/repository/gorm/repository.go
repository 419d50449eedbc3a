package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Tenants ----------------------------------------------------------------

func (s *Store) InsertTenant(ctx context.Context, item *models.Tenant) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetTenantByID(ctx context.Context, id uint64) (*models.Tenant, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Tenant
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	subdomain = strings.TrimSpace(strings.ToLower(subdomain))
	if subdomain == "" {
		return nil, nil
	}
	var item models.Tenant
	err := s.db.WithContext(ctx).First(&item, "subdomain = ?", subdomain).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Tenant
	if err := s.db.WithContext(ctx).Order("subdomain asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Broker connections -----------------------------------------------------

func (s *Store) InsertBrokerConnection(ctx context.Context, item *models.BrokerConnection) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetBrokerConnectionByID(ctx context.Context, tenantID, id uint64) (*models.BrokerConnection, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.BrokerConnection
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListBrokerConnections(ctx context.Context, tenantID uint64) ([]models.BrokerConnection, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.BrokerConnection
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateBrokerConnectionStatus(ctx context.Context, tenantID, id uint64, status, lastError string, at time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	updates := map[string]any{
		"status":     status,
		"last_error": lastError,
		"updated_at": at,
	}
	switch status {
	case models.ConnectionStatusConnected:
		updates["last_connected_at"] = at
	case models.ConnectionStatusDisconnected, models.ConnectionStatusError:
		updates["last_disconnected_at"] = at
	}
	return s.db.WithContext(ctx).
		Model(&models.BrokerConnection{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates).Error
}

// --- Broker accounts --------------------------------------------------------

func (s *Store) InsertBrokerAccount(ctx context.Context, item *models.BrokerAccount) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetBrokerAccountByID(ctx context.Context, tenantID, id uint64) (*models.BrokerAccount, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.BrokerAccount
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListBrokerAccounts(ctx context.Context, params repository.ListBrokerAccountsParams) ([]models.BrokerAccount, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.accountQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.BrokerAccount
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountBrokerAccounts(ctx context.Context, params repository.ListBrokerAccountsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.accountQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) accountQuery(ctx context.Context, params repository.ListBrokerAccountsParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.BrokerAccount{}).
		Where("tenant_id = ?", params.TenantID)
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Active != nil {
		query = query.Where("is_active = ?", *params.Active)
	}
	return query
}

func (s *Store) ListActiveBrokerAccountIDs(ctx context.Context, tenantID uint64) ([]uint64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []uint64
	if err := s.db.WithContext(ctx).
		Model(&models.BrokerAccount{}).
		Where("tenant_id = ?", tenantID).
		Where("is_active = ?", true).
		Where("status = ?", models.AccountStatusActive).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// --- Instruments ------------------------------------------------------------

func (s *Store) InsertInstrument(ctx context.Context, item *models.Instrument) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) SaveInstrument(ctx context.Context, item *models.Instrument) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Save(item).Error)
}

func (s *Store) GetInstrumentByID(ctx context.Context, id uint64) (*models.Instrument, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Instrument
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" {
		return nil, nil
	}
	var item models.Instrument
	err := s.db.WithContext(ctx).First(&item, "symbol = ?", symbol).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListInstruments(ctx context.Context, params repository.ListInstrumentsParams) ([]models.Instrument, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.instrumentQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "symbol")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Instrument
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountInstruments(ctx context.Context, params repository.ListInstrumentsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.instrumentQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) instrumentQuery(ctx context.Context, params repository.ListInstrumentsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Instrument{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
	}
	if params.InstrumentType != nil && strings.TrimSpace(*params.InstrumentType) != "" {
		query = query.Where("instrument_type = ?", strings.ToUpper(strings.TrimSpace(*params.InstrumentType)))
	}
	if params.Exchange != nil && strings.TrimSpace(*params.Exchange) != "" {
		query = query.Where("exchange = ?", strings.TrimSpace(*params.Exchange))
	}
	if params.Active != nil {
		query = query.Where("is_active = ?", *params.Active)
	}
	if params.Tradable != nil {
		query = query.Where("is_tradable = ?", *params.Tradable)
	}
	if params.Search != nil && strings.TrimSpace(*params.Search) != "" {
		needle := "%" + strings.TrimSpace(*params.Search) + "%"
		query = query.Where("symbol ILIKE ? OR name ILIKE ?", needle, needle)
	}
	return query
}

func (s *Store) ListInstrumentsByIDs(ctx context.Context, ids []uint64) ([]models.Instrument, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.Instrument
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTradableSymbols(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 500)
	var symbols []string
	if err := s.db.WithContext(ctx).
		Model(&models.Instrument{}).
		Where("is_active = ?", true).
		Where("is_tradable = ?", true).
		Order("symbol asc").
		Limit(limit).
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

func (s *Store) UpdateInstrumentQuote(ctx context.Context, symbol string, quote repository.QuoteUpdate) error {
	if s == nil || s.db == nil {
		return nil
	}
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" {
		return nil
	}
	at := quote.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := map[string]any{
		"last_quote_at": at,
		"updated_at":    at,
	}
	if quote.Last != nil {
		updates["last_price"] = *quote.Last
	}
	if quote.Bid != nil {
		updates["bid_price"] = *quote.Bid
	}
	if quote.Ask != nil {
		updates["ask_price"] = *quote.Ask
	}
	if quote.Volume != nil {
		updates["volume"] = *quote.Volume
	}
	return s.db.WithContext(ctx).
		Model(&models.Instrument{}).
		Where("symbol = ?", symbol).
		Updates(updates).Error
}

// --- Orders -----------------------------------------------------------------

func (s *Store) InsertOrderTx(ctx context.Context, tx *gorm.DB, item *models.Order) error {
	if tx == nil || item == nil {
		return nil
	}
	return translateError(tx.WithContext(ctx).Create(item).Error)
}

func (s *Store) SaveOrderTx(ctx context.Context, tx *gorm.DB, item *models.Order) error {
	if tx == nil || item == nil {
		return nil
	}
	return translateError(tx.WithContext(ctx).Save(item).Error)
}

func (s *Store) GetOrderByID(ctx context.Context, tenantID, id uint64) (*models.Order, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Order
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetOrderByClientOrderID(ctx context.Context, tenantID uint64, clientOrderID string) (*models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	clientOrderID = strings.TrimSpace(clientOrderID)
	if clientOrderID == "" {
		return nil, nil
	}
	var item models.Order
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&item, "client_order_id = ?", clientOrderID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetOrderForUpdateTx locks the order row until the surrounding
// transaction commits.
func (s *Store) GetOrderForUpdateTx(ctx context.Context, tx *gorm.DB, tenantID, id uint64) (*models.Order, error) {
	if tx == nil || id == 0 {
		return nil, nil
	}
	var item models.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.orderQuery(ctx, params)
	query = applyOrder(query, prefixedOrderColumn(params.OrderBy, params.Symbol != nil), params.Asc, orderFallbackColumn(params.Symbol != nil))
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Order
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.orderQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) orderQuery(ctx context.Context, params repository.ListOrdersParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("orders.tenant_id = ?", params.TenantID)
	if params.AccountID != nil && *params.AccountID > 0 {
		query = query.Where("orders.broker_account_id = ?", *params.AccountID)
	}
	if params.InstrumentID != nil && *params.InstrumentID > 0 {
		query = query.Where("orders.instrument_id = ?", *params.InstrumentID)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.
			Joins("JOIN instruments ON instruments.id = orders.instrument_id").
			Where("instruments.symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
	}
	if params.State != nil && strings.TrimSpace(*params.State) != "" {
		query = query.Where("orders.state = ?", strings.ToUpper(strings.TrimSpace(*params.State)))
	}
	if params.ActiveOnly {
		query = query.Where("orders.state IN ?", []string{
			models.OrderStateNew, models.OrderStatePendingSubmit, models.OrderStateSubmitted,
			models.OrderStatePendingCancel, models.OrderStatePendingReplace,
		})
	}
	if params.Side != nil && strings.TrimSpace(*params.Side) != "" {
		query = query.Where("orders.side = ?", strings.ToUpper(strings.TrimSpace(*params.Side)))
	}
	if params.OrderType != nil && strings.TrimSpace(*params.OrderType) != "" {
		query = query.Where("orders.order_type = ?", strings.ToUpper(strings.TrimSpace(*params.OrderType)))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("orders.created_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("orders.created_at <= ?", *params.Until)
	}
	return query
}

// --- Executions -------------------------------------------------------------

func (s *Store) InsertExecutionTx(ctx context.Context, tx *gorm.DB, item *models.Execution) error {
	if tx == nil || item == nil {
		return nil
	}
	return translateError(tx.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetExecutionByID(ctx context.Context, tenantID, id uint64) (*models.Execution, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Execution
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListExecutions(ctx context.Context, params repository.ListExecutionsParams) ([]models.Execution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.executionQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "executed_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Execution
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountExecutions(ctx context.Context, params repository.ListExecutionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.executionQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) executionQuery(ctx context.Context, params repository.ListExecutionsParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.Execution{}).
		Where("executions.tenant_id = ?", params.TenantID)
	if params.OrderID != nil && *params.OrderID > 0 {
		query = query.Where("executions.order_id = ?", *params.OrderID)
	}
	if params.AccountID != nil && *params.AccountID > 0 {
		query = query.
			Joins("JOIN orders ON orders.id = executions.order_id").
			Where("orders.broker_account_id = ?", *params.AccountID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("executions.executed_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("executions.executed_at <= ?", *params.Until)
	}
	return query
}

func (s *Store) SumExecutionsForOrderTx(ctx context.Context, tx *gorm.DB, orderID uint64) (repository.ExecutionTotals, error) {
	var out repository.ExecutionTotals
	if tx == nil || orderID == 0 {
		return out, nil
	}
	row := struct {
		Quantity   decimal.Decimal
		Notional   decimal.Decimal
		Commission decimal.Decimal
	}{}
	err := tx.WithContext(ctx).
		Model(&models.Execution{}).
		Select(`
			COALESCE(SUM(quantity), 0) AS quantity,
			COALESCE(SUM(quantity * price), 0) AS notional,
			COALESCE(SUM(commission), 0) AS commission
		`).
		Where("order_id = ?", orderID).
		Scan(&row).Error
	if err != nil {
		return out, err
	}
	out.Quantity = row.Quantity
	out.Notional = row.Notional
	out.Commission = row.Commission
	return out, nil
}

func (s *Store) SumCommissionForAccount(ctx context.Context, tenantID, accountID uint64, until time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil || accountID == 0 {
		return decimal.Zero, nil
	}
	row := struct {
		Commission decimal.Decimal
	}{}
	query := s.db.WithContext(ctx).
		Model(&models.Execution{}).
		Select("COALESCE(SUM(executions.commission), 0) AS commission").
		Joins("JOIN orders ON orders.id = executions.order_id").
		Where("executions.tenant_id = ?", tenantID).
		Where("orders.broker_account_id = ?", accountID)
	if !until.IsZero() {
		query = query.Where("executions.executed_at < ?", until)
	}
	if err := query.Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Commission, nil
}

// --- Positions --------------------------------------------------------------

func (s *Store) GetPositionByID(ctx context.Context, tenantID, id uint64) (*models.Position, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetPositionForUpdateTx locks the position row for the ledger's
// read-modify-write. Absent rows return nil so the caller can create one.
func (s *Store) GetPositionForUpdateTx(ctx context.Context, tx *gorm.DB, tenantID, accountID, instrumentID uint64) (*models.Position, error) {
	if tx == nil {
		return nil, nil
	}
	var item models.Position
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		Where("broker_account_id = ?", accountID).
		Where("instrument_id = ?", instrumentID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (s *Store) SavePositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error {
	if tx == nil || item == nil {
		return nil
	}
	return translateError(tx.WithContext(ctx).Save(item).Error)
}

func (s *Store) SavePosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Save(item).Error)
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.positionQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "updated_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Position
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.positionQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) positionQuery(ctx context.Context, params repository.ListPositionsParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.Position{}).
		Where("tenant_id = ?", params.TenantID)
	if params.AccountID != nil && *params.AccountID > 0 {
		query = query.Where("broker_account_id = ?", *params.AccountID)
	}
	if params.InstrumentID != nil && *params.InstrumentID > 0 {
		query = query.Where("instrument_id = ?", *params.InstrumentID)
	}
	if params.OpenOnly {
		query = query.Where("quantity <> 0")
	}
	return query
}

func (s *Store) ListOpenPositions(ctx context.Context, limit int) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 500)
	var items []models.Position
	if err := s.db.WithContext(ctx).
		Where("quantity <> 0").
		Order("id asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenPositionsByAccount(ctx context.Context, tenantID, accountID uint64) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("broker_account_id = ?", accountID).
		Where("quantity <> 0").
		Order("instrument_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) PositionsSummary(ctx context.Context, tenantID uint64, accountID *uint64) (repository.PositionsSummary, error) {
	var out repository.PositionsSummary
	if s == nil || s.db == nil {
		return out, nil
	}
	row := struct {
		TotalPositions     int64
		LongPositions      int64
		ShortPositions     int64
		TotalMarketValue   decimal.Decimal
		TotalCostBasis     decimal.Decimal
		TotalUnrealizedPnL decimal.Decimal `gorm:"column:total_unrealized_pnl"`
		TotalRealizedPnL   decimal.Decimal `gorm:"column:total_realized_pnl"`
	}{}
	query := s.db.WithContext(ctx).
		Model(&models.Position{}).
		Select(`
			COUNT(*) AS total_positions,
			COUNT(*) FILTER (WHERE quantity > 0) AS long_positions,
			COUNT(*) FILTER (WHERE quantity < 0) AS short_positions,
			COALESCE(SUM(market_value), 0) AS total_market_value,
			COALESCE(SUM(ABS(quantity) * average_cost), 0) AS total_cost_basis,
			COALESCE(SUM(unrealized_pnl), 0) AS total_unrealized_pnl,
			COALESCE(SUM(realized_pnl), 0) AS total_realized_pnl
		`).
		Where("tenant_id = ?", tenantID).
		Where("quantity <> 0")
	if accountID != nil && *accountID > 0 {
		query = query.Where("broker_account_id = ?", *accountID)
	}
	if err := query.Scan(&row).Error; err != nil {
		return out, err
	}
	out.TotalPositions = row.TotalPositions
	out.LongPositions = row.LongPositions
	out.ShortPositions = row.ShortPositions
	out.TotalMarketValue = row.TotalMarketValue
	out.TotalCostBasis = row.TotalCostBasis
	out.TotalUnrealizedPnL = row.TotalUnrealizedPnL
	out.TotalRealizedPnL = row.TotalRealizedPnL
	return out, nil
}

// --- P&L snapshots ----------------------------------------------------------

func (s *Store) UpsertPnLSnapshot(ctx context.Context, item *models.PnLSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "broker_account_id"},
			{Name: "snapshot_date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_unrealized_pnl",
			"total_realized_pnl",
			"total_commission",
			"total_positions",
			"long_positions",
			"short_positions",
			"total_market_value",
			"total_cost_basis",
			"positions",
			"metadata",
			"updated_at",
		}),
	}).Create(item).Error)
}

func (s *Store) GetPnLSnapshotByID(ctx context.Context, tenantID, id uint64) (*models.PnLSnapshot, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.PnLSnapshot
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&item, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPnLSnapshots(ctx context.Context, params repository.ListPnLSnapshotsParams) ([]models.PnLSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.snapshotQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "snapshot_date")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.PnLSnapshot
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPnLSnapshots(ctx context.Context, params repository.ListPnLSnapshotsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.snapshotQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) snapshotQuery(ctx context.Context, params repository.ListPnLSnapshotsParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.PnLSnapshot{}).
		Where("tenant_id = ?", params.TenantID)
	if params.AccountID != nil && *params.AccountID > 0 {
		query = query.Where("broker_account_id = ?", *params.AccountID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("snapshot_date >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("snapshot_date <= ?", *params.Until)
	}
	return query
}

// --- Idempotency records ----------------------------------------------------

func (s *Store) GetIdempotencyRecord(ctx context.Context, tenantID uint64, key string, itemIndex int) (*models.IdempotencyRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.IdempotencyRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("idempotency_key = ?", key).
		Where("item_index = ?", itemIndex).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !item.ExpiresAt.IsZero() && item.ExpiresAt.Before(time.Now().UTC()) {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) InsertIdempotencyRecord(ctx context.Context, item *models.IdempotencyRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) DeleteExpiredIdempotencyRecords(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}

// --- Audit log --------------------------------------------------------------

func (s *Store) InsertAuditLog(ctx context.Context, item *models.AuditLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) ListAuditLogs(ctx context.Context, params repository.ListAuditLogsParams) ([]models.AuditLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.auditQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.AuditLog
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAuditLogs(ctx context.Context, params repository.ListAuditLogsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.auditQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) auditQuery(ctx context.Context, params repository.ListAuditLogsParams) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("tenant_id = ?", params.TenantID)
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(*params.Action))
	}
	if params.ResourceType != nil && strings.TrimSpace(*params.ResourceType) != "" {
		query = query.Where("resource_type = ?", strings.TrimSpace(*params.ResourceType))
	}
	if params.ResourceID != nil && *params.ResourceID > 0 {
		query = query.Where("resource_id = ?", *params.ResourceID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

// --- helpers ----------------------------------------------------------------

// translateError converts postgres contention and constraint failures
// into typed errors so callers can retry or report them precisely.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return apperr.Wrap(apperr.KindConflict, err, "duplicate key: "+pgErr.ConstraintName)
	case pgerrcode.DeadlockDetected, pgerrcode.SerializationFailure, pgerrcode.LockNotAvailable:
		return apperr.Wrap(apperr.KindConflict, err, "row contention, retry the request")
	}
	return err
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func prefixedOrderColumn(orderBy string, joined bool) string {
	column := strings.TrimSpace(orderBy)
	if column == "" || !joined || strings.Contains(column, ".") {
		return column
	}
	return "orders." + column
}

func orderFallbackColumn(joined bool) string {
	if joined {
		return "orders.created_at"
	}
	return "created_at"
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
