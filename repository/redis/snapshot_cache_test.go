package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

func setupCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, repository.SnapshotCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewSnapshotCache(client, 7, ttl)
}

func sampleSnapshot() *domain.FloorSnapshot {
	return &domain.FloorSnapshot{
		ID:             7,
		Name:           "Main Floor",
		CurrentVersion: 12,
		Rooms: []domain.RoomView{
			{ID: "room-1", Name: "Atlas", Type: "meeting", Capacity: 4, Status: domain.RoomBooked,
				Bookings: []domain.ActiveBooking{{ID: "b1", UserID: "ann", Participants: 3}}},
		},
	}
}

func TestSnapshotCacheMiss(t *testing.T) {
	_, cache := setupCache(t, time.Minute)

	_, err := cache.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSnapshotCachePutAndGet(t *testing.T) {
	mr, cache := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, sampleSnapshot()))
	assert.True(t, mr.Exists(SnapshotKey(7)))
	assert.Equal(t, time.Minute, mr.TTL(SnapshotKey(7)))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.CurrentVersion)
	require.Len(t, got.Rooms, 1)
	assert.Equal(t, domain.RoomBooked, got.Rooms[0].Status)
	assert.Equal(t, "ann", got.Rooms[0].Bookings[0].UserID)

	mr.FastForward(time.Minute + time.Second)
	_, err = cache.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSnapshotCacheDefaultTTL(t *testing.T) {
	mr, cache := setupCache(t, 0)

	require.NoError(t, cache.Put(context.Background(), sampleSnapshot()))
	assert.Equal(t, DefaultSnapshotTTL, mr.TTL(SnapshotKey(7)))
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	mr, cache := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, sampleSnapshot()))
	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists(SnapshotKey(7)))

	_, err := cache.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, cache.Invalidate(ctx))
}

func TestSnapshotCacheCorruptValue(t *testing.T) {
	mr, cache := setupCache(t, time.Minute)
	require.NoError(t, mr.Set(SnapshotKey(7), "{not json"))

	_, err := cache.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCacheMiss)
	assert.Contains(t, err.Error(), "decode cached snapshot")
}

func TestSnapshotCachePutNil(t *testing.T) {
	_, cache := setupCache(t, time.Minute)
	assert.ErrorIs(t, cache.Put(context.Background(), nil), domain.ErrInvalidPayload)
}

func TestSnapshotCacheUnreachable(t *testing.T) {
	mr, cache := setupCache(t, time.Minute)
	mr.Close()

	_, err := cache.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCacheMiss)
}
