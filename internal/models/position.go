package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Position is the single row per (tenant, account, instrument). Quantity
// is signed: positive long, negative short, zero flat.
type Position struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID        uint64 `gorm:"not null;uniqueIndex:idx_positions_scope,priority:1"`
	BrokerAccountID uint64 `gorm:"not null;uniqueIndex:idx_positions_scope,priority:2"`
	InstrumentID    uint64 `gorm:"not null;uniqueIndex:idx_positions_scope,priority:3;index"`

	Quantity    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AverageCost decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	MarketPrice   *decimal.Decimal `gorm:"type:numeric(20,10)"`
	MarketValue   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	UnrealizedPnL decimal.Decimal  `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0"`
	RealizedPnL   decimal.Decimal  `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	LastUpdated time.Time `gorm:"type:timestamptz;not null"`

	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) IsLong() bool {
	return p != nil && p.Quantity.IsPositive()
}

func (p *Position) IsShort() bool {
	return p != nil && p.Quantity.IsNegative()
}

func (p *Position) IsFlat() bool {
	return p == nil || p.Quantity.IsZero()
}

// MarkToMarket stores the price and recomputes market value and
// unrealized P&L. A flat position always carries zero for both.
func (p *Position) MarkToMarket(price decimal.Decimal, at time.Time) {
	if p == nil {
		return
	}
	p.MarketPrice = &price
	if p.Quantity.IsZero() {
		zero := decimal.Zero
		p.MarketValue = &zero
		p.UnrealizedPnL = decimal.Zero
	} else {
		mv := p.Quantity.Mul(price)
		p.MarketValue = &mv
		p.UnrealizedPnL = price.Sub(p.AverageCost).Mul(p.Quantity)
	}
	p.LastUpdated = at
}

// CostBasis is |quantity| * average_cost.
func (p *Position) CostBasis() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Quantity.Abs().Mul(p.AverageCost)
}
