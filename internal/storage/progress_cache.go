package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/screening-orchestrator/internal/models"
)

// ProgressCache caches the bulk-operation read model for dashboard polling.
// The engine invalidates an operation's entry on every counter or status
// change, so a cached entry is never older than the last transition plus
// the TTL.
type ProgressCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewProgressCache creates a new progress cache
func NewProgressCache(cache *RedisCache, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &ProgressCache{cache: cache, ttl: ttl}
}

func progressKey(bulkOperationID string) string {
	return fmt.Sprintf("bulkop:progress:%s", bulkOperationID)
}

// Get retrieves a cached progress read model. A nil result with nil error
// means a cache miss.
func (p *ProgressCache) Get(ctx context.Context, bulkOperationID string) (*models.BulkOperationProgress, error) {
	raw, err := p.cache.Get(ctx, progressKey(bulkOperationID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress cache: %w", err)
	}

	var progress models.BulkOperationProgress
	if err := json.Unmarshal([]byte(raw), &progress); err != nil {
		return nil, fmt.Errorf("failed to decode cached progress: %w", err)
	}

	return &progress, nil
}

// Put stores a progress read model
func (p *ProgressCache) Put(ctx context.Context, bulkOperationID string, progress *models.BulkOperationProgress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	return p.cache.Set(ctx, progressKey(bulkOperationID), raw, p.ttl)
}

// Invalidate drops an operation's cached progress
func (p *ProgressCache) Invalidate(ctx context.Context, bulkOperationID string) error {
	return p.cache.Del(ctx, progressKey(bulkOperationID))
}
