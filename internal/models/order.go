package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Order struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID        uint64 `gorm:"not null;index:idx_orders_tenant_state,priority:1"`
	UserID          string `gorm:"type:varchar(64);index"`
	BrokerAccountID uint64 `gorm:"not null;index"`
	InstrumentID    uint64 `gorm:"not null;index"`

	ClientOrderID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	BrokerOrderID string `gorm:"type:varchar(100);index"`

	OrderType string `gorm:"type:varchar(25);not null"`
	Side      string `gorm:"type:varchar(15);not null"`

	Quantity        decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	Price           *decimal.Decimal `gorm:"type:numeric(20,10)"`
	StopPrice       *decimal.Decimal `gorm:"type:numeric(20,10)"`
	TrailingPercent *decimal.Decimal `gorm:"type:numeric(10,4)"`

	TimeInForce string `gorm:"type:varchar(10);not null;default:'DAY'"`
	State       string `gorm:"type:varchar(25);not null;default:'NEW';index:idx_orders_tenant_state,priority:2"`

	StrategyRunID *string `gorm:"type:varchar(64);index"`

	FilledQuantity decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0"`
	AveragePrice   *decimal.Decimal `gorm:"type:numeric(20,10)"`
	Commission     decimal.Decimal  `gorm:"type:numeric(20,10);not null;default:0"`

	RejectReason string `gorm:"type:text"`
	RejectCode   string `gorm:"type:varchar(50)"`

	RiskCheckPassed       *bool
	ComplianceCheckPassed *bool

	SubmittedAt *time.Time `gorm:"type:timestamptz"`
	FilledAt    *time.Time `gorm:"type:timestamptz"`
	CancelledAt *time.Time `gorm:"type:timestamptz"`

	Notes    string         `gorm:"type:text"`
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) IsActive() bool {
	if o == nil {
		return false
	}
	return OrderStateActive(o.State)
}

func (o *Order) IsTerminal() bool {
	if o == nil {
		return false
	}
	return OrderStateTerminal(o.State)
}

// RemainingQuantity is the unfilled remainder; never negative.
func (o *Order) RemainingQuantity() decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	rem := o.Quantity.Sub(o.FilledQuantity)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// SideSign maps the order side to the signed direction applied to
// position quantity: buys add, sells subtract.
func (o *Order) SideSign() int {
	if o == nil {
		return 0
	}
	return SideSign(o.Side)
}

func SideSign(side string) int {
	switch side {
	case SideBuy, SideBuyToCover:
		return 1
	case SideSell, SideSellShort:
		return -1
	default:
		return 0
	}
}
