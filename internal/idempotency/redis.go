package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps outcomes in redis with a TTL. SETNX gives the same
// first-write-wins behavior as the table's unique index.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func redisKey(tenantID uint64, key string, itemIndex int) string {
	return fmt.Sprintf("idem:%d:%s:%d", tenantID, key, itemIndex)
}

func (s *RedisStore) Lookup(ctx context.Context, tenantID uint64, key string, itemIndex int) (*Outcome, error) {
	if s == nil || s.Client == nil || key == "" {
		return nil, nil
	}
	b, err := s.Client.Get(ctx, redisKey(tenantID, key, itemIndex)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out Outcome
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *RedisStore) Record(ctx context.Context, tenantID uint64, key string, itemIndex int, out Outcome) error {
	if s == nil || s.Client == nil || key == "" {
		return nil
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return s.Client.SetNX(ctx, redisKey(tenantID, key, itemIndex), b, ttl).Err()
}

var _ Store = (*RedisStore)(nil)
