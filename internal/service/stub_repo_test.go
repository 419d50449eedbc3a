package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// stubRepo is a test-only in-memory implementation of
// repository.Repository. Tx methods ignore the handle; InTx hands the
// callback a nil *gorm.DB so service transaction bodies run inline.
type stubRepo struct {
	seq uint64

	tenants             map[uint64]models.Tenant
	accounts            map[uint64]models.BrokerAccount
	instrumentsByID     map[uint64]models.Instrument
	instrumentsBySymbol map[string]models.Instrument
	orders              map[uint64]models.Order
	executions          []models.Execution
	positions           map[string]models.Position
	snapshots           map[string]models.PnLSnapshot
	idem                map[string]models.IdempotencyRecord
	audits              []models.AuditLog
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		tenants:             map[uint64]models.Tenant{},
		accounts:            map[uint64]models.BrokerAccount{},
		instrumentsByID:     map[uint64]models.Instrument{},
		instrumentsBySymbol: map[string]models.Instrument{},
		orders:              map[uint64]models.Order{},
		positions:           map[string]models.Position{},
		snapshots:           map[string]models.PnLSnapshot{},
		idem:                map[string]models.IdempotencyRecord{},
	}
}

func (s *stubRepo) nextID() uint64 {
	s.seq++
	return s.seq
}

func positionKey(tenantID, accountID, instrumentID uint64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, accountID, instrumentID)
}

func idemKey(tenantID uint64, key string, itemIndex int) string {
	return fmt.Sprintf("%d:%s:%d", tenantID, key, itemIndex)
}

func snapshotKey(tenantID, accountID uint64, date time.Time) string {
	return fmt.Sprintf("%d:%d:%s", tenantID, accountID, date.Format("2006-01-02"))
}

func (s *stubRepo) addInstrument(item models.Instrument) models.Instrument {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.instrumentsByID[item.ID] = item
	s.instrumentsBySymbol[item.Symbol] = item
	return item
}

func (s *stubRepo) addAccount(item models.BrokerAccount) models.BrokerAccount {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.accounts[item.ID] = item
	return item
}

func (s *stubRepo) addOrder(item models.Order) models.Order {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.orders[item.ID] = item
	return item
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) InsertTenant(ctx context.Context, item *models.Tenant) error {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.tenants[item.ID] = *item
	return nil
}
func (s *stubRepo) GetTenantByID(ctx context.Context, id uint64) (*models.Tenant, error) {
	if t, ok := s.tenants[id]; ok {
		out := t
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	for _, t := range s.tenants {
		if t.Subdomain == subdomain {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	out := make([]models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) InsertBrokerConnection(ctx context.Context, item *models.BrokerConnection) error {
	return nil
}
func (s *stubRepo) GetBrokerConnectionByID(ctx context.Context, tenantID, id uint64) (*models.BrokerConnection, error) {
	return nil, nil
}
func (s *stubRepo) ListBrokerConnections(ctx context.Context, tenantID uint64) ([]models.BrokerConnection, error) {
	return nil, nil
}
func (s *stubRepo) UpdateBrokerConnectionStatus(ctx context.Context, tenantID, id uint64, status, lastError string, at time.Time) error {
	return nil
}

func (s *stubRepo) InsertBrokerAccount(ctx context.Context, item *models.BrokerAccount) error {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.accounts[item.ID] = *item
	return nil
}
func (s *stubRepo) GetBrokerAccountByID(ctx context.Context, tenantID, id uint64) (*models.BrokerAccount, error) {
	if a, ok := s.accounts[id]; ok && a.TenantID == tenantID {
		out := a
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) ListBrokerAccounts(ctx context.Context, params repository.ListBrokerAccountsParams) ([]models.BrokerAccount, error) {
	return nil, nil
}
func (s *stubRepo) CountBrokerAccounts(ctx context.Context, params repository.ListBrokerAccountsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListActiveBrokerAccountIDs(ctx context.Context, tenantID uint64) ([]uint64, error) {
	var out []uint64
	for _, a := range s.accounts {
		if a.TenantID == tenantID && a.IsActive && a.Status == models.AccountStatusActive {
			out = append(out, a.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *stubRepo) InsertInstrument(ctx context.Context, item *models.Instrument) error {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.instrumentsByID[item.ID] = *item
	s.instrumentsBySymbol[item.Symbol] = *item
	return nil
}
func (s *stubRepo) SaveInstrument(ctx context.Context, item *models.Instrument) error {
	s.instrumentsByID[item.ID] = *item
	s.instrumentsBySymbol[item.Symbol] = *item
	return nil
}
func (s *stubRepo) GetInstrumentByID(ctx context.Context, id uint64) (*models.Instrument, error) {
	if i, ok := s.instrumentsByID[id]; ok {
		out := i
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	if i, ok := s.instrumentsBySymbol[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		out := i
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) ListInstruments(ctx context.Context, params repository.ListInstrumentsParams) ([]models.Instrument, error) {
	return nil, nil
}
func (s *stubRepo) CountInstruments(ctx context.Context, params repository.ListInstrumentsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListInstrumentsByIDs(ctx context.Context, ids []uint64) ([]models.Instrument, error) {
	out := make([]models.Instrument, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.instrumentsByID[id]; ok {
			out = append(out, i)
		}
	}
	return out, nil
}
func (s *stubRepo) ListTradableSymbols(ctx context.Context, limit int) ([]string, error) {
	var out []string
	for sym, i := range s.instrumentsBySymbol {
		if i.IsActive && i.IsTradable {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (s *stubRepo) UpdateInstrumentQuote(ctx context.Context, symbol string, quote repository.QuoteUpdate) error {
	item, ok := s.instrumentsBySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil
	}
	if quote.Last != nil {
		item.LastPrice = quote.Last
	}
	if quote.Bid != nil {
		item.BidPrice = quote.Bid
	}
	if quote.Ask != nil {
		item.AskPrice = quote.Ask
	}
	if quote.Volume != nil {
		item.Volume = quote.Volume
	}
	at := quote.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	item.LastQuoteAt = &at
	s.instrumentsByID[item.ID] = item
	s.instrumentsBySymbol[item.Symbol] = item
	return nil
}

func (s *stubRepo) InsertOrderTx(ctx context.Context, tx *gorm.DB, item *models.Order) error {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.orders[item.ID] = *item
	return nil
}
func (s *stubRepo) SaveOrderTx(ctx context.Context, tx *gorm.DB, item *models.Order) error {
	s.orders[item.ID] = *item
	return nil
}
func (s *stubRepo) GetOrderByID(ctx context.Context, tenantID, id uint64) (*models.Order, error) {
	if o, ok := s.orders[id]; ok && o.TenantID == tenantID {
		out := o
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) GetOrderByClientOrderID(ctx context.Context, tenantID uint64, clientOrderID string) (*models.Order, error) {
	for _, o := range s.orders {
		if o.TenantID == tenantID && o.ClientOrderID == clientOrderID {
			out := o
			return &out, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) GetOrderForUpdateTx(ctx context.Context, tx *gorm.DB, tenantID, id uint64) (*models.Order, error) {
	return s.GetOrderByID(ctx, tenantID, id)
}
func (s *stubRepo) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	return nil, nil
}
func (s *stubRepo) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertExecutionTx(ctx context.Context, tx *gorm.DB, item *models.Execution) error {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.executions = append(s.executions, *item)
	return nil
}
func (s *stubRepo) GetExecutionByID(ctx context.Context, tenantID, id uint64) (*models.Execution, error) {
	for _, e := range s.executions {
		if e.ID == id && e.TenantID == tenantID {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) ListExecutions(ctx context.Context, params repository.ListExecutionsParams) ([]models.Execution, error) {
	return nil, nil
}
func (s *stubRepo) CountExecutions(ctx context.Context, params repository.ListExecutionsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) SumExecutionsForOrderTx(ctx context.Context, tx *gorm.DB, orderID uint64) (repository.ExecutionTotals, error) {
	out := repository.ExecutionTotals{
		Quantity:   decimal.Zero,
		Notional:   decimal.Zero,
		Commission: decimal.Zero,
	}
	for _, e := range s.executions {
		if e.OrderID != orderID {
			continue
		}
		out.Quantity = out.Quantity.Add(e.Quantity)
		out.Notional = out.Notional.Add(e.Quantity.Mul(e.Price))
		out.Commission = out.Commission.Add(e.Commission)
	}
	return out, nil
}
func (s *stubRepo) SumCommissionForAccount(ctx context.Context, tenantID, accountID uint64, until time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range s.executions {
		if e.TenantID != tenantID {
			continue
		}
		o, ok := s.orders[e.OrderID]
		if !ok || o.BrokerAccountID != accountID {
			continue
		}
		if !e.ExecutedAt.Before(until) {
			continue
		}
		total = total.Add(e.Commission)
	}
	return total, nil
}

func (s *stubRepo) GetPositionByID(ctx context.Context, tenantID, id uint64) (*models.Position, error) {
	for _, p := range s.positions {
		if p.ID == id && p.TenantID == tenantID {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) GetPositionForUpdateTx(ctx context.Context, tx *gorm.DB, tenantID, accountID, instrumentID uint64) (*models.Position, error) {
	if p, ok := s.positions[positionKey(tenantID, accountID, instrumentID)]; ok {
		out := p
		return &out, nil
	}
	return nil, nil
}
func (s *stubRepo) SavePositionTx(ctx context.Context, tx *gorm.DB, item *models.Position) error {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.positions[positionKey(item.TenantID, item.BrokerAccountID, item.InstrumentID)] = *item
	return nil
}
func (s *stubRepo) SavePosition(ctx context.Context, item *models.Position) error {
	return s.SavePositionTx(ctx, nil, item)
}
func (s *stubRepo) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.positions {
		if p.TenantID != params.TenantID {
			continue
		}
		if params.AccountID != nil && p.BrokerAccountID != *params.AccountID {
			continue
		}
		if params.OpenOnly && p.Quantity.IsZero() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out, nil
}
func (s *stubRepo) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	items, _ := s.ListPositions(ctx, params)
	return int64(len(items)), nil
}
func (s *stubRepo) ListOpenPositions(ctx context.Context, limit int) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.positions {
		if !p.Quantity.IsZero() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (s *stubRepo) ListOpenPositionsByAccount(ctx context.Context, tenantID, accountID uint64) ([]models.Position, error) {
	acct := accountID
	return s.ListPositions(ctx, repository.ListPositionsParams{
		TenantID:  tenantID,
		AccountID: &acct,
		OpenOnly:  true,
	})
}
func (s *stubRepo) PositionsSummary(ctx context.Context, tenantID uint64, accountID *uint64) (repository.PositionsSummary, error) {
	out := repository.PositionsSummary{
		TotalMarketValue:   decimal.Zero,
		TotalCostBasis:     decimal.Zero,
		TotalUnrealizedPnL: decimal.Zero,
		TotalRealizedPnL:   decimal.Zero,
	}
	for _, p := range s.positions {
		if p.TenantID != tenantID {
			continue
		}
		if accountID != nil && p.BrokerAccountID != *accountID {
			continue
		}
		if p.Quantity.IsZero() {
			continue
		}
		out.TotalPositions++
		if p.Quantity.IsPositive() {
			out.LongPositions++
		} else {
			out.ShortPositions++
		}
		if p.MarketValue != nil {
			out.TotalMarketValue = out.TotalMarketValue.Add(*p.MarketValue)
		}
		out.TotalCostBasis = out.TotalCostBasis.Add(p.Quantity.Abs().Mul(p.AverageCost))
		out.TotalUnrealizedPnL = out.TotalUnrealizedPnL.Add(p.UnrealizedPnL)
		out.TotalRealizedPnL = out.TotalRealizedPnL.Add(p.RealizedPnL)
	}
	return out, nil
}

func (s *stubRepo) UpsertPnLSnapshot(ctx context.Context, item *models.PnLSnapshot) error {
	key := snapshotKey(item.TenantID, item.BrokerAccountID, item.SnapshotDate)
	if existing, ok := s.snapshots[key]; ok {
		item.ID = existing.ID
	} else if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.snapshots[key] = *item
	return nil
}
func (s *stubRepo) GetPnLSnapshotByID(ctx context.Context, tenantID, id uint64) (*models.PnLSnapshot, error) {
	for _, snap := range s.snapshots {
		if snap.ID == id && snap.TenantID == tenantID {
			out := snap
			return &out, nil
		}
	}
	return nil, nil
}
func (s *stubRepo) ListPnLSnapshots(ctx context.Context, params repository.ListPnLSnapshotsParams) ([]models.PnLSnapshot, error) {
	var out []models.PnLSnapshot
	for _, snap := range s.snapshots {
		if snap.TenantID != params.TenantID {
			continue
		}
		if params.AccountID != nil && snap.BrokerAccountID != *params.AccountID {
			continue
		}
		if params.Since != nil && snap.SnapshotDate.Before(*params.Since) {
			continue
		}
		if params.Until != nil && snap.SnapshotDate.After(*params.Until) {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.Before(out[j].SnapshotDate) })
	return out, nil
}
func (s *stubRepo) CountPnLSnapshots(ctx context.Context, params repository.ListPnLSnapshotsParams) (int64, error) {
	items, _ := s.ListPnLSnapshots(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) GetIdempotencyRecord(ctx context.Context, tenantID uint64, key string, itemIndex int) (*models.IdempotencyRecord, error) {
	rec, ok := s.idem[idemKey(tenantID, key, itemIndex)]
	if !ok {
		return nil, nil
	}
	if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(time.Now().UTC()) {
		return nil, nil
	}
	out := rec
	return &out, nil
}
func (s *stubRepo) InsertIdempotencyRecord(ctx context.Context, item *models.IdempotencyRecord) error {
	key := idemKey(item.TenantID, item.IdempotencyKey, item.ItemIndex)
	if _, ok := s.idem[key]; ok {
		return apperr.Conflictf("duplicate idempotency record")
	}
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.idem[key] = *item
	return nil
}
func (s *stubRepo) DeleteExpiredIdempotencyRecords(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for key, rec := range s.idem {
		if rec.ExpiresAt.Before(before) {
			delete(s.idem, key)
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) InsertAuditLog(ctx context.Context, item *models.AuditLog) error {
	if item.ID == 0 {
		item.ID = s.nextID()
	}
	s.audits = append(s.audits, *item)
	return nil
}
func (s *stubRepo) ListAuditLogs(ctx context.Context, params repository.ListAuditLogsParams) ([]models.AuditLog, error) {
	return nil, nil
}
func (s *stubRepo) CountAuditLogs(ctx context.Context, params repository.ListAuditLogsParams) (int64, error) {
	return 0, nil
}

var _ repository.Repository = (*stubRepo)(nil)
