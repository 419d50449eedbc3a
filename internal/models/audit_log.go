package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is the append-only event record behind the audit sink. One
// row per order create/update/cancel and per execution.
type AuditLog struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID uint64 `gorm:"not null;index:idx_audit_tenant_created,priority:1"`
	UserID   string `gorm:"type:varchar(64);index"`

	Action       string `gorm:"type:varchar(50);not null;index"`
	ResourceType string `gorm:"type:varchar(30);not null"`
	ResourceID   uint64 `gorm:"index"`

	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index:idx_audit_tenant_created,priority:2"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
