package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/audit"
	"github.com/dunmininu/oms-trading/internal/metrics"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// PnLService builds daily per-account P&L snapshots. Re-running a day
// overwrites that day's row, never duplicates it.
type PnLService struct {
	Repo   repository.Repository
	Audit  audit.Recorder
	Logger *zap.Logger
}

type PnLSummary struct {
	Days          int                  `json:"days"`
	RealizedPnL   decimal.Decimal      `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal      `json:"unrealized_pnl"`
	Commission    decimal.Decimal      `json:"commission"`
	NetPnL        decimal.Decimal      `json:"net_pnl"`
	Snapshots     []models.PnLSnapshot `json:"snapshots"`
}

func snapshotDay(date time.Time) time.Time {
	if date.IsZero() {
		date = time.Now().UTC()
	}
	date = date.UTC()
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateSnapshot upserts snapshots for the given date. A nil accountID
// targets every active account of the tenant.
func (s *PnLService) CreateSnapshot(ctx context.Context, scope Scope, accountID *uint64, date time.Time) ([]models.PnLSnapshot, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	day := snapshotDay(date)

	var accounts []uint64
	if accountID != nil && *accountID > 0 {
		acct, err := s.Repo.GetBrokerAccountByID(ctx, scope.TenantID, *accountID)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, apperr.NotFound("broker account", *accountID)
		}
		accounts = []uint64{acct.ID}
	} else {
		ids, err := s.Repo.ListActiveBrokerAccountIDs(ctx, scope.TenantID)
		if err != nil {
			return nil, err
		}
		accounts = ids
	}

	out := make([]models.PnLSnapshot, 0, len(accounts))
	for _, acct := range accounts {
		snap, err := s.buildSnapshot(ctx, scope.TenantID, acct, day)
		if err != nil {
			return nil, err
		}
		if err := s.Repo.UpsertPnLSnapshot(ctx, snap); err != nil {
			return nil, err
		}
		metrics.PnLSnapshots.Inc()
		out = append(out, *snap)
	}

	if s.Audit != nil && len(out) > 0 {
		s.Audit.Record(ctx, audit.Event{
			TenantID:     scope.TenantID,
			UserID:       scope.UserID,
			Action:       audit.ActionPnLSnapshot,
			ResourceType: "pnl_snapshot",
			Metadata: map[string]any{
				"date":     day.Format("2006-01-02"),
				"accounts": len(out),
			},
		})
	}
	return out, nil
}

func (s *PnLService) buildSnapshot(ctx context.Context, tenantID, accountID uint64, day time.Time) (*models.PnLSnapshot, error) {
	// Realized P&L lives on flat positions too, so pull every row for the
	// account, not just open ones.
	acctID := accountID
	positions, err := s.Repo.ListPositions(ctx, repository.ListPositionsParams{
		Limit:     500,
		TenantID:  tenantID,
		AccountID: &acctID,
		OrderBy:   "instrument_id",
		Asc:       boolPtr(true),
	})
	if err != nil {
		return nil, err
	}

	totalUnrealized := decimal.Zero
	totalRealized := decimal.Zero
	totalMarketValue := decimal.Zero
	totalCostBasis := decimal.Zero
	longCount := 0
	shortCount := 0
	open := make([]models.Position, 0, len(positions))
	for _, pos := range positions {
		totalRealized = totalRealized.Add(pos.RealizedPnL)
		if pos.IsFlat() {
			continue
		}
		open = append(open, pos)
		totalUnrealized = totalUnrealized.Add(pos.UnrealizedPnL)
		if pos.MarketValue != nil {
			totalMarketValue = totalMarketValue.Add(*pos.MarketValue)
		}
		totalCostBasis = totalCostBasis.Add(pos.CostBasis())
		if pos.IsLong() {
			longCount++
		} else {
			shortCount++
		}
	}

	symbolByInstrument := map[uint64]string{}
	if len(open) > 0 {
		ids := make([]uint64, 0, len(open))
		for _, pos := range open {
			ids = append(ids, pos.InstrumentID)
		}
		instruments, err := s.Repo.ListInstrumentsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, inst := range instruments {
			symbolByInstrument[inst.ID] = inst.Symbol
		}
	}

	breakdown := make([]models.PositionBreakdown, 0, len(open))
	for _, pos := range open {
		entry := models.PositionBreakdown{
			InstrumentSymbol: symbolByInstrument[pos.InstrumentID],
			Quantity:         pos.Quantity,
			AverageCost:      pos.AverageCost,
			UnrealizedPnL:    pos.UnrealizedPnL,
			RealizedPnL:      pos.RealizedPnL,
		}
		if pos.MarketPrice != nil {
			entry.MarketPrice = *pos.MarketPrice
		}
		if pos.MarketValue != nil {
			entry.MarketValue = *pos.MarketValue
		}
		breakdown = append(breakdown, entry)
	}

	commission, err := s.Repo.SumCommissionForAccount(ctx, tenantID, accountID, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	positionsJSON, _ := json.Marshal(breakdown)
	now := time.Now().UTC()
	return &models.PnLSnapshot{
		TenantID:           tenantID,
		BrokerAccountID:    accountID,
		SnapshotDate:       day,
		TotalUnrealizedPnL: totalUnrealized,
		TotalRealizedPnL:   totalRealized,
		TotalCommission:    commission,
		TotalPositions:     len(open),
		LongPositions:      longCount,
		ShortPositions:     shortCount,
		TotalMarketValue:   totalMarketValue,
		TotalCostBasis:     totalCostBasis,
		Positions:          datatypes.JSON(positionsJSON),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// SnapshotAll runs the daily snapshot for every active tenant. Cron entry
// point; per-tenant failures are logged and do not stop the sweep.
func (s *PnLService) SnapshotAll(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	tenants, err := s.Repo.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		if !tenant.IsActive {
			continue
		}
		if _, err := s.CreateSnapshot(ctx, Scope{TenantID: tenant.ID}, nil, time.Time{}); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("tenant snapshot failed",
					zap.Uint64("tenant_id", tenant.ID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// Summary aggregates the freshest snapshot per account inside the window
// and returns the full series alongside.
func (s *PnLService) Summary(ctx context.Context, scope Scope, accountID *uint64, days int) (*PnLSummary, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if days <= 0 {
		days = 30
	}
	since := snapshotDay(time.Time{}).AddDate(0, 0, -days)
	snapshots, err := s.Repo.ListPnLSnapshots(ctx, repository.ListPnLSnapshotsParams{
		Limit:     500,
		TenantID:  scope.TenantID,
		AccountID: accountID,
		Since:     &since,
		OrderBy:   "snapshot_date",
		Asc:       boolPtr(true),
	})
	if err != nil {
		return nil, err
	}

	latest := map[uint64]models.PnLSnapshot{}
	for _, snap := range snapshots {
		latest[snap.BrokerAccountID] = snap
	}

	out := &PnLSummary{Days: days, Snapshots: snapshots}
	out.RealizedPnL = decimal.Zero
	out.UnrealizedPnL = decimal.Zero
	out.Commission = decimal.Zero
	out.NetPnL = decimal.Zero
	for _, snap := range latest {
		out.RealizedPnL = out.RealizedPnL.Add(snap.TotalRealizedPnL)
		out.UnrealizedPnL = out.UnrealizedPnL.Add(snap.TotalUnrealizedPnL)
		out.Commission = out.Commission.Add(snap.TotalCommission)
		out.NetPnL = out.NetPnL.Add(snap.NetPnL())
	}
	return out, nil
}

func boolPtr(v bool) *bool { return &v }
