// Package recent keeps a bounded feed of the latest alert triggers in a
// Redis list. One component owns the feed, eviction is count-based
// (LPUSH + LTRIM), and readers go through the query interface rather than
// shared in-process state.
package recent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"buildwatch/internal/model"
)

const (
	// Key is the Redis list holding the feed, newest first.
	Key = "recent:triggers"
	// DefaultCapacity is how many triggers the feed retains.
	DefaultCapacity = 100
)

// Feed is the bounded recent-trigger buffer.
type Feed struct {
	redis    *redis.Client
	capacity int
}

// New creates a feed with the default capacity.
func New(redisClient *redis.Client) *Feed {
	return &Feed{redis: redisClient, capacity: DefaultCapacity}
}

// SetCapacity overrides the retention bound.
func (f *Feed) SetCapacity(capacity int) {
	if capacity > 0 {
		f.capacity = capacity
	}
}

// Push appends a trigger to the head of the feed and evicts past the
// capacity bound. Push is best-effort: feed failures are logged, never
// propagated into the alerting path.
func (f *Feed) Push(ctx context.Context, t *model.AlertTrigger) {
	data, err := json.Marshal(t)
	if err != nil {
		slog.Error("Failed to marshal trigger for recent feed", "trigger_id", t.ID, "error", err)
		return
	}

	pipe := f.redis.TxPipeline()
	pipe.LPush(ctx, Key, data)
	pipe.LTrim(ctx, Key, 0, int64(f.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to push trigger to recent feed", "trigger_id", t.ID, "error", err)
	}
}

// List returns up to limit triggers, newest first.
func (f *Feed) List(ctx context.Context, limit int) ([]model.AlertTrigger, error) {
	if limit <= 0 || limit > f.capacity {
		limit = f.capacity
	}

	entries, err := f.redis.LRange(ctx, Key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent feed: %w", err)
	}

	triggers := make([]model.AlertTrigger, 0, len(entries))
	for _, entry := range entries {
		var t model.AlertTrigger
		if err := json.Unmarshal([]byte(entry), &t); err != nil {
			slog.Warn("Skipping malformed recent feed entry", "error", err)
			continue
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}
