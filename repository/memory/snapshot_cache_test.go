package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/floorplan/domain"
)

func TestSnapshotCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewSnapshotCache(time.Minute)
	c.now = func() time.Time { return now }

	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.Put(ctx, &domain.FloorSnapshot{ID: 1, CurrentVersion: 2}))
	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CurrentVersion)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSnapshotCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshotCache(time.Minute)
	require.NoError(t, c.Put(ctx, &domain.FloorSnapshot{Rooms: []domain.RoomView{{ID: "r1", Name: "Atlas"}}}))

	got, err := c.Get(ctx)
	require.NoError(t, err)
	got.Rooms[0].Name = "Mutated"

	again, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Atlas", again.Rooms[0].Name)

	require.NoError(t, c.Invalidate(ctx))
	_, err = c.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}
