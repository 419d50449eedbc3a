// Package idempotency deduplicates bulk order submissions. A client that
// retries a bulk request with the same key gets the recorded outcome per
// item instead of a second set of orders.
package idempotency

import (
	"context"
	"time"

	"github.com/dunmininu/oms-trading/internal/apperr"
	"github.com/dunmininu/oms-trading/internal/models"
	"github.com/dunmininu/oms-trading/internal/repository"
)

// Outcome is what a prior attempt produced for one bulk item.
type Outcome struct {
	Status       string
	ResourceType string
	ResourceID   uint64
	Message      string
}

func (o Outcome) Accepted() bool {
	return o.Status == models.IdempotencyOutcomeAccepted
}

// Store records per-item outcomes keyed by (tenant, key, item index).
// First write wins; later writes for the same key are ignored.
type Store interface {
	Lookup(ctx context.Context, tenantID uint64, key string, itemIndex int) (*Outcome, error)
	Record(ctx context.Context, tenantID uint64, key string, itemIndex int, out Outcome) error
}

// TableStore keeps outcomes in the idempotency_records table. The unique
// index on (tenant_id, idempotency_key, item_index) enforces first-write-wins
// across concurrent retries.
type TableStore struct {
	Repo repository.Repository
	TTL  time.Duration
}

func (s *TableStore) Lookup(ctx context.Context, tenantID uint64, key string, itemIndex int) (*Outcome, error) {
	if s == nil || s.Repo == nil || key == "" {
		return nil, nil
	}
	rec, err := s.Repo.GetIdempotencyRecord(ctx, tenantID, key, itemIndex)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &Outcome{
		Status:       rec.Outcome,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Message:      rec.Message,
	}, nil
}

func (s *TableStore) Record(ctx context.Context, tenantID uint64, key string, itemIndex int, out Outcome) error {
	if s == nil || s.Repo == nil || key == "" {
		return nil
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	err := s.Repo.InsertIdempotencyRecord(ctx, &models.IdempotencyRecord{
		TenantID:       tenantID,
		IdempotencyKey: key,
		ItemIndex:      itemIndex,
		ResourceType:   out.ResourceType,
		ResourceID:     out.ResourceID,
		Outcome:        out.Status,
		Message:        out.Message,
		ExpiresAt:      time.Now().UTC().Add(ttl),
	})
	if apperr.IsConflict(err) {
		// A concurrent retry recorded the same item first.
		return nil
	}
	return err
}

var _ Store = (*TableStore)(nil)
