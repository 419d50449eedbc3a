package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/dunmininu/oms-trading/internal/apperr"
)

const (
	InstrumentTypeStock      = "STOCK"
	InstrumentTypeOption     = "OPTION"
	InstrumentTypeFuture     = "FUTURE"
	InstrumentTypeForex      = "FOREX"
	InstrumentTypeBond       = "BOND"
	InstrumentTypeETF        = "ETF"
	InstrumentTypeMutualFund = "MUTUAL_FUND"
	InstrumentTypeCrypto     = "CRYPTO"
	InstrumentTypeOther      = "OTHER"

	OptionTypeCall = "CALL"
	OptionTypePut  = "PUT"
)

// Instrument is shared reference data. It is not tenant-scoped: tenants
// trade against one registry.
type Instrument struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Symbol         string `gorm:"type:varchar(32);not null;uniqueIndex"`
	Name           string `gorm:"type:varchar(255);not null"`
	InstrumentType string `gorm:"type:varchar(20);not null;index"`
	Exchange       string `gorm:"type:varchar(20);not null"`
	Currency       string `gorm:"type:varchar(10);not null;default:'USD'"`

	Multiplier decimal.Decimal `gorm:"type:numeric(20,10);not null;default:1"`

	StrikePrice    *decimal.Decimal `gorm:"type:numeric(20,10)"`
	ExpirationDate *time.Time       `gorm:"type:date"`
	OptionType     string           `gorm:"type:varchar(4)"`

	MinTickSize  decimal.Decimal  `gorm:"type:numeric(20,10);not null;default:0.01"`
	MinOrderSize decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:1"`
	MaxOrderSize *decimal.Decimal `gorm:"type:numeric(30,10)"`

	LastPrice   *decimal.Decimal `gorm:"type:numeric(20,10)"`
	BidPrice    *decimal.Decimal `gorm:"type:numeric(20,10)"`
	AskPrice    *decimal.Decimal `gorm:"type:numeric(20,10)"`
	Volume      *decimal.Decimal `gorm:"type:numeric(30,10)"`
	LastQuoteAt *time.Time       `gorm:"type:timestamptz"`

	IsActive   bool `gorm:"not null;default:true;index"`
	IsTradable bool `gorm:"not null;default:true"`

	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Instrument) TableName() string {
	return "instruments"
}

// Validate checks the option-field rule: strike, expiration, and option
// type travel together and only on OPTION instruments.
func (i *Instrument) Validate() error {
	if i == nil {
		return apperr.Validationf("instrument is nil")
	}
	if i.Symbol == "" {
		return apperr.Validationf("symbol is required")
	}
	if i.InstrumentType == InstrumentTypeOption {
		if i.StrikePrice == nil || i.ExpirationDate == nil || i.OptionType == "" {
			return apperr.Validationf("option instruments require strike_price, expiration_date and option_type")
		}
		if i.OptionType != OptionTypeCall && i.OptionType != OptionTypePut {
			return apperr.Validationf("option_type must be CALL or PUT, got %s", i.OptionType)
		}
		return nil
	}
	if i.StrikePrice != nil || i.ExpirationDate != nil || i.OptionType != "" {
		return apperr.Validationf("option fields are only valid for OPTION instruments")
	}
	return nil
}
