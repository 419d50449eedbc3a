package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	LiquidityMaker = "MAKER"
	LiquidityTaker = "TAKER"
)

// Execution is an append-only fill record. Rows are never updated or
// deleted once written.
type Execution struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID uint64 `gorm:"not null;index"`
	OrderID  uint64 `gorm:"not null;index"`

	ExecutionID       string `gorm:"type:varchar(64);not null;uniqueIndex"`
	BrokerExecutionID string `gorm:"type:varchar(100);index"`

	Quantity   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price      decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Commission decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	Currency   string          `gorm:"type:varchar(10);not null;default:'USD'"`

	ExecutedAt time.Time `gorm:"type:timestamptz;not null;index"`
	Exchange   string    `gorm:"type:varchar(20)"`
	Liquidity  string    `gorm:"type:varchar(10)"`

	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Execution) TableName() string {
	return "executions"
}

// Notional is quantity * price in the execution currency.
func (e *Execution) Notional() decimal.Decimal {
	if e == nil {
		return decimal.Zero
	}
	return e.Quantity.Mul(e.Price)
}
