package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

// SnapshotCache is an in-process TTL cache holding one floor snapshot.
type SnapshotCache struct {
	mu      sync.Mutex
	value   *domain.FloorSnapshot
	expires time.Time
	ttl     time.Duration
	now     func() time.Time
}

var _ repository.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SnapshotCache{ttl: ttl, now: time.Now}
}

func (c *SnapshotCache) Get(ctx context.Context) (*domain.FloorSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil {
		return nil, domain.ErrCacheMiss
	}
	if !c.now().Before(c.expires) {
		c.value = nil
		return nil, domain.ErrCacheMiss
	}
	return c.value.Clone(), nil
}

func (c *SnapshotCache) Put(ctx context.Context, snapshot *domain.FloorSnapshot) error {
	if snapshot == nil {
		return domain.ErrInvalidPayload
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = snapshot.Clone()
	c.expires = c.now().Add(c.ttl)
	return nil
}

func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	return nil
}
