package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dunmininu/oms-trading/internal/models"
)

// Repository is the single persistence boundary. Methods with a Tx
// suffix run against a caller-owned transaction handle obtained through
// InTx; everything else manages its own connection.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Tenants
	InsertTenant(ctx context.Context, item *models.Tenant) error
	GetTenantByID(ctx context.Context, id uint64) (*models.Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)

	// Broker connections (status bookkeeping only)
	InsertBrokerConnection(ctx context.Context, item *models.BrokerConnection) error
	GetBrokerConnectionByID(ctx context.Context, tenantID, id uint64) (*models.BrokerConnection, error)
	ListBrokerConnections(ctx context.Context, tenantID uint64) ([]models.BrokerConnection, error)
	UpdateBrokerConnectionStatus(ctx context.Context, tenantID, id uint64, status, lastError string, at time.Time) error

	// Broker accounts
	InsertBrokerAccount(ctx context.Context, item *models.BrokerAccount) error
	GetBrokerAccountByID(ctx context.Context, tenantID, id uint64) (*models.BrokerAccount, error)
	ListBrokerAccounts(ctx context.Context, params ListBrokerAccountsParams) ([]models.BrokerAccount, error)
	CountBrokerAccounts(ctx context.Context, params ListBrokerAccountsParams) (int64, error)
	ListActiveBrokerAccountIDs(ctx context.Context, tenantID uint64) ([]uint64, error)

	// Instruments
	InsertInstrument(ctx context.Context, item *models.Instrument) error
	SaveInstrument(ctx context.Context, item *models.Instrument) error
	GetInstrumentByID(ctx context.Context, id uint64) (*models.Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	ListInstruments(ctx context.Context, params ListInstrumentsParams) ([]models.Instrument, error)
	CountInstruments(ctx context.Context, params ListInstrumentsParams) (int64, error)
	ListInstrumentsByIDs(ctx context.Context, ids []uint64) ([]models.Instrument, error)
	ListTradableSymbols(ctx context.Context, limit int) ([]string, error)
	UpdateInstrumentQuote(ctx context.Context, symbol string, quote QuoteUpdate) error

	// Orders
	InsertOrderTx(ctx context.Context, tx *gorm.DB, item *models.Order) error
	SaveOrderTx(ctx context.Context, tx *gorm.DB, item *models.Order) error
	GetOrderByID(ctx context.Context, tenantID, id uint64) (*models.Order, error)
	GetOrderByClientOrderID(ctx context.Context, tenantID uint64, clientOrderID string) (*models.Order, error)
	GetOrderForUpdateTx(ctx context.Context, tx *gorm.DB, tenantID, id uint64) (*models.Order, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
	CountOrders(ctx context.Context, params ListOrdersParams) (int64, error)

	// Executions
	InsertExecutionTx(ctx context.Context, tx *gorm.DB, item *models.Execution) error
	GetExecutionByID(ctx context.Context, tenantID, id uint64) (*models.Execution, error)
	ListExecutions(ctx context.Context, params ListExecutionsParams) ([]models.Execution, error)
	CountExecutions(ctx context.Context, params ListExecutionsParams) (int64, error)
	SumExecutionsForOrderTx(ctx context.Context, tx *gorm.DB, orderID uint64) (ExecutionTotals, error)
	SumCommissionForAccount(ctx context.Context, tenantID, accountID uint64, until time.Time) (decimal.Decimal, error)

	// Positions
	GetPositionByID(ctx context.Context, tenantID, id uint64) (*models.Position, error)
	GetPositionForUpdateTx(ctx context.Context, tx *gorm.DB, tenantID, accountID, instrumentID uint64) (*models.Position, error)
	SavePositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error
	SavePosition(ctx context.Context, item *models.Position) error
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	CountPositions(ctx context.Context, params ListPositionsParams) (int64, error)
	ListOpenPositions(ctx context.Context, limit int) ([]models.Position, error)
	ListOpenPositionsByAccount(ctx context.Context, tenantID, accountID uint64) ([]models.Position, error)
	PositionsSummary(ctx context.Context, tenantID uint64, accountID *uint64) (PositionsSummary, error)

	// P&L snapshots
	UpsertPnLSnapshot(ctx context.Context, item *models.PnLSnapshot) error
	GetPnLSnapshotByID(ctx context.Context, tenantID, id uint64) (*models.PnLSnapshot, error)
	ListPnLSnapshots(ctx context.Context, params ListPnLSnapshotsParams) ([]models.PnLSnapshot, error)
	CountPnLSnapshots(ctx context.Context, params ListPnLSnapshotsParams) (int64, error)

	// Idempotency records
	GetIdempotencyRecord(ctx context.Context, tenantID uint64, key string, itemIndex int) (*models.IdempotencyRecord, error)
	InsertIdempotencyRecord(ctx context.Context, item *models.IdempotencyRecord) error
	DeleteExpiredIdempotencyRecords(ctx context.Context, before time.Time) (int64, error)

	// Audit log
	InsertAuditLog(ctx context.Context, item *models.AuditLog) error
	ListAuditLogs(ctx context.Context, params ListAuditLogsParams) ([]models.AuditLog, error)
	CountAuditLogs(ctx context.Context, params ListAuditLogsParams) (int64, error)
}

// QuoteUpdate carries the market-data fields written onto an instrument.
// Nil fields are left untouched.
type QuoteUpdate struct {
	Last   *decimal.Decimal
	Bid    *decimal.Decimal
	Ask    *decimal.Decimal
	Volume *decimal.Decimal
	At     time.Time
}

// ExecutionTotals are per-order aggregates over the executions table.
type ExecutionTotals struct {
	Quantity   decimal.Decimal
	Notional   decimal.Decimal
	Commission decimal.Decimal
}

type PositionsSummary struct {
	TotalPositions     int64
	LongPositions      int64
	ShortPositions     int64
	TotalMarketValue   decimal.Decimal
	TotalCostBasis     decimal.Decimal
	TotalUnrealizedPnL decimal.Decimal
	TotalRealizedPnL   decimal.Decimal
}

type ListBrokerAccountsParams struct {
	Limit    int
	Offset   int
	TenantID uint64
	Status   *string
	Active   *bool
	OrderBy  string
	Asc      *bool
}

type ListInstrumentsParams struct {
	Limit          int
	Offset         int
	Symbol         *string
	InstrumentType *string
	Exchange       *string
	Active         *bool
	Tradable       *bool
	Search         *string
	OrderBy        string
	Asc            *bool
}

type ListOrdersParams struct {
	Limit        int
	Offset       int
	TenantID     uint64
	AccountID    *uint64
	InstrumentID *uint64
	Symbol       *string
	State        *string
	Side         *string
	OrderType    *string
	ActiveOnly   bool
	Since        *time.Time
	Until        *time.Time
	OrderBy      string
	Asc          *bool
}

type ListExecutionsParams struct {
	Limit     int
	Offset    int
	TenantID  uint64
	OrderID   *uint64
	AccountID *uint64
	Since     *time.Time
	Until     *time.Time
	OrderBy   string
	Asc       *bool
}

type ListPositionsParams struct {
	Limit        int
	Offset       int
	TenantID     uint64
	AccountID    *uint64
	InstrumentID *uint64
	OpenOnly     bool
	OrderBy      string
	Asc          *bool
}

type ListPnLSnapshotsParams struct {
	Limit     int
	Offset    int
	TenantID  uint64
	AccountID *uint64
	Since     *time.Time
	Until     *time.Time
	OrderBy   string
	Asc       *bool
}

type ListAuditLogsParams struct {
	Limit        int
	Offset       int
	TenantID     uint64
	Action       *string
	ResourceType *string
	ResourceID   *uint64
	Since        *time.Time
	OrderBy      string
	Asc          *bool
}
