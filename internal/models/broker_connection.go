package models

import (
	"time"
)

const (
	ConnectionStatusConnected    = "CONNECTED"
	ConnectionStatusDisconnected = "DISCONNECTED"
	ConnectionStatusConnecting   = "CONNECTING"
	ConnectionStatusError        = "ERROR"
)

// BrokerConnection tracks the link to an upstream broker. Only status
// bookkeeping lives here; the wire protocol is owned by external adapters.
type BrokerConnection struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID uint64 `gorm:"not null;index"`

	Name       string `gorm:"type:varchar(100);not null"`
	BrokerName string `gorm:"type:varchar(50);not null"`
	Status     string `gorm:"type:varchar(20);not null;default:'DISCONNECTED'"`
	LastError  string `gorm:"type:text"`

	LastConnectedAt    *time.Time `gorm:"type:timestamptz"`
	LastDisconnectedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BrokerConnection) TableName() string {
	return "broker_connections"
}
