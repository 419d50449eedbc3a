package models

import (
	"time"
)

type Tenant struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(100);not null"`
	Subdomain string `gorm:"type:varchar(63);not null;uniqueIndex"`
	IsActive  bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Tenant) TableName() string {
	return "tenants"
}
