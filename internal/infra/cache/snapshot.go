package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mindcamp/mindcamp/internal/domain"
)

const (
	// snapshotKeyPrefix namespaces snapshot keys.
	snapshotKeyPrefix = "mindcamp:snapshot:"
	// DefaultSnapshotTTL bounds how long a snapshot survives without a write.
	DefaultSnapshotTTL = 24 * time.Hour
)

var _ domain.SnapshotCache = (*SnapshotCache)(nil)

// SnapshotCache stores persisted snapshots as JSON in Redis.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a cache. ttl <= 0 uses DefaultSnapshotTTL.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(userID string) string {
	return fmt.Sprintf("%s%s", snapshotKeyPrefix, userID)
}

// Get returns the cached snapshot; a miss is (zero, false, nil).
func (c *SnapshotCache) Get(ctx context.Context, userID string) (domain.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// Set stores s under its user id.
func (c *SnapshotCache) Set(ctx context.Context, s domain.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(s.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the user's cached snapshot.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, snapshotKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
