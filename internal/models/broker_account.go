package models

import (
	"time"
)

const (
	AccountTypeCash   = "CASH"
	AccountTypeMargin = "MARGIN"
	AccountTypePaper  = "PAPER"
	AccountTypeIRA    = "IRA"

	AccountStatusActive    = "ACTIVE"
	AccountStatusSuspended = "SUSPENDED"
	AccountStatusClosed    = "CLOSED"
)

type BrokerAccount struct {
	ID                 uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID           uint64 `gorm:"not null;index"`
	BrokerConnectionID uint64 `gorm:"not null;index"`

	AccountNumber string `gorm:"type:varchar(50);not null;index"`
	AccountName   string `gorm:"type:varchar(100);not null"`
	AccountType   string `gorm:"type:varchar(20);not null;default:'CASH'"`
	Status        string `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	Currency      string `gorm:"type:varchar(10);not null;default:'USD'"`
	IsActive      bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BrokerAccount) TableName() string {
	return "broker_accounts"
}
