package models

import (
	"time"
)

const (
	IdempotencyOutcomeAccepted = "accepted"
	IdempotencyOutcomeRejected = "rejected"
)

// IdempotencyRecord pins the outcome of one bulk-request item so a retry
// replays the recorded result instead of reprocessing it.
type IdempotencyRecord struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	TenantID uint64 `gorm:"not null;uniqueIndex:idx_idem_scope,priority:1"`

	IdempotencyKey string `gorm:"type:varchar(128);not null;uniqueIndex:idx_idem_scope,priority:2"`
	ItemIndex      int    `gorm:"not null;uniqueIndex:idx_idem_scope,priority:3"`

	ResourceType string `gorm:"type:varchar(30);not null"`
	ResourceID   uint64 `gorm:"index"`
	Outcome      string `gorm:"type:varchar(10);not null"`
	Message      string `gorm:"type:text"`

	ExpiresAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
