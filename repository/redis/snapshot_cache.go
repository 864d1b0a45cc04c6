package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

// DefaultSnapshotTTL bounds how long a cached floor snapshot lives without a mutation.
const DefaultSnapshotTTL = time.Hour

// SnapshotKey is the Redis key holding a floor's latest snapshot.
func SnapshotKey(floorID int64) string {
	return fmt.Sprintf("floorplan:floor:%d:latest", floorID)
}

type snapshotCache struct {
	client *redislib.Client
	key    string
	ttl    time.Duration
}

// NewSnapshotCache creates a Redis-backed single-slot cache for one floor.
func NewSnapshotCache(client *redislib.Client, floorID int64, ttl time.Duration) repository.SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &snapshotCache{
		client: client,
		key:    SnapshotKey(floorID),
		ttl:    ttl,
	}
}

func (c *snapshotCache) Get(ctx context.Context) (*domain.FloorSnapshot, error) {
	result, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}

	var snapshot domain.FloorSnapshot
	if err := json.Unmarshal(result, &snapshot); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *snapshotCache) Put(ctx context.Context, snapshot *domain.FloorSnapshot) error {
	if snapshot == nil {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, c.ttl).Err()
}

func (c *snapshotCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
