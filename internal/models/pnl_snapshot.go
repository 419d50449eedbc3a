package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PnLSnapshot is the daily close-of-book aggregate per account. One row
// per (tenant, account, date); rebuilding a day replaces the row.
type PnLSnapshot struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID        uint64 `gorm:"not null;uniqueIndex:idx_pnl_snapshots_scope,priority:1"`
	BrokerAccountID uint64 `gorm:"not null;uniqueIndex:idx_pnl_snapshots_scope,priority:2"`

	SnapshotDate time.Time `gorm:"type:date;not null;uniqueIndex:idx_pnl_snapshots_scope,priority:3;index"`

	TotalUnrealizedPnL decimal.Decimal `gorm:"column:total_unrealized_pnl;type:numeric(30,10);not null;default:0"`
	TotalRealizedPnL   decimal.Decimal `gorm:"column:total_realized_pnl;type:numeric(30,10);not null;default:0"`
	TotalCommission    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	TotalPositions int `gorm:"not null;default:0"`
	LongPositions  int `gorm:"not null;default:0"`
	ShortPositions int `gorm:"not null;default:0"`

	TotalMarketValue decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TotalCostBasis   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	Positions datatypes.JSON `gorm:"type:jsonb"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PnLSnapshot) TableName() string {
	return "pnl_snapshots"
}

// NetPnL is realized + unrealized - commission.
func (s *PnLSnapshot) NetPnL() decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return s.TotalRealizedPnL.Add(s.TotalUnrealizedPnL).Sub(s.TotalCommission)
}

// PositionBreakdown is one entry of the per-instrument JSON stored on a
// snapshot.
type PositionBreakdown struct {
	InstrumentSymbol string          `json:"instrument_symbol"`
	Quantity         decimal.Decimal `json:"quantity"`
	AverageCost      decimal.Decimal `json:"average_cost"`
	MarketPrice      decimal.Decimal `json:"market_price"`
	MarketValue      decimal.Decimal `json:"market_value"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
}
