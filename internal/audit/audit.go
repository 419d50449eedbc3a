// Package audit writes a trail of state-changing calls. Recording is
// best-effort: a failed audit write is logged and never fails the
// operation that triggered it.
package audit

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

const (
	ActionOrderCreate     = "order.create"
	ActionOrderUpdate     = "order.update"
	ActionOrderCancel     = "order.cancel"
	ActionOrderStateEvent = "order.state_event"
	ActionOrderBulkCreate = "order.bulk_create"
	ActionOrderBulkCancel = "order.bulk_cancel"
	ActionExecutionRecord = "execution.record"
	ActionPnLSnapshot     = "pnl.snapshot"
)

type Event struct {
	TenantID     uint64
	UserID       string
	Action       string
	ResourceType string
	ResourceID   uint64
	Metadata     map[string]any
}

type Recorder interface {
	Record(ctx context.Context, ev Event)
}

type DBRecorder struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (r *DBRecorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.Repo == nil || ev.Action == "" {
		return
	}
	item := &models.AuditLog{
		TenantID:     ev.TenantID,
		UserID:       ev.UserID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
	}
	if len(ev.Metadata) > 0 {
		if b, err := json.Marshal(ev.Metadata); err == nil {
			item.Metadata = datatypes.JSON(b)
		}
	}
	if err := r.Repo.InsertAuditLog(ctx, item); err != nil && r.Logger != nil {
		r.Logger.Warn("audit write failed",
			zap.String("action", ev.Action),
			zap.Uint64("tenant_id", ev.TenantID),
			zap.Error(err))
	}
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}

var (
	_ Recorder = (*DBRecorder)(nil)
	_ Recorder = NopRecorder{}
)
