package floor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
	"github.com/fastygo/floorplan/repository/memory"
)

var (
	superAdmin = domain.Actor{UserID: "sa", Role: domain.RoleSuperAdmin}
	admin      = domain.Actor{UserID: "ad", Role: domain.RoleAdmin}
)

// recordingCache wraps the memory cache and counts calls. Failing turns every
// call into an error; onPut runs after a successful Put.
type recordingCache struct {
	mu          sync.Mutex
	inner       *memory.SnapshotCache
	failing     bool
	gets        int
	puts        int
	invalidates int
	onPut       func()
}

func newRecordingCache() *recordingCache {
	return &recordingCache{inner: memory.NewSnapshotCache(time.Hour)}
}

func (c *recordingCache) Get(ctx context.Context) (*domain.FloorSnapshot, error) {
	c.mu.Lock()
	c.gets++
	failing := c.failing
	c.mu.Unlock()
	if failing {
		return nil, errors.New("redis: connection refused")
	}
	return c.inner.Get(ctx)
}

func (c *recordingCache) Put(ctx context.Context, s *domain.FloorSnapshot) error {
	c.mu.Lock()
	c.puts++
	failing, hook := c.failing, c.onPut
	c.mu.Unlock()
	if failing {
		return errors.New("redis: connection refused")
	}
	if err := c.inner.Put(ctx, s); err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (c *recordingCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.invalidates++
	failing := c.failing
	c.mu.Unlock()
	if failing {
		return errors.New("redis: connection refused")
	}
	return c.inner.Invalidate(ctx)
}

func setup(t *testing.T) (*UseCase, *memory.Store, *recordingCache) {
	t.Helper()
	store := memory.NewStore(1)
	cache := newRecordingCache()
	uc := New(store, store.Users(), cache, zap.NewNop())
	_, err := uc.Bootstrap(context.Background(), "Main")
	require.NoError(t, err)
	return uc, store, cache
}

func addRoom(t *testing.T, uc *UseCase, actor domain.Actor, name string) (*domain.Room, int64) {
	t.Helper()
	room := &domain.Room{Name: name, Type: "meeting", Capacity: 4, Status: domain.RoomActive}
	version, err := uc.Mutate(context.Background(), "room.create", actor, func(ctx context.Context, tx repository.FloorTx) error {
		return tx.CreateRoom(ctx, room)
	})
	require.NoError(t, err)
	return room, version
}

func TestLiveIsCacheAside(t *testing.T) {
	uc, _, cache := setup(t)
	ctx := context.Background()

	first, err := uc.Live(ctx)
	require.NoError(t, err)
	second, err := uc.Live(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.CurrentVersion, second.CurrentVersion)
	assert.Equal(t, 1, cache.puts, "second read is a hit")
	assert.Equal(t, 2, cache.gets)
}

func TestMutateInvalidatesAfterCommit(t *testing.T) {
	uc, _, cache := setup(t)
	ctx := context.Background()

	_, err := uc.Live(ctx)
	require.NoError(t, err)

	_, version := addRoom(t, uc, superAdmin, "Atlas")
	assert.Equal(t, 1, cache.invalidates)

	snap, err := uc.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, snap.CurrentVersion)
	assert.Len(t, snap.Rooms, 1)
}

func TestFailedMutationDoesNotInvalidate(t *testing.T) {
	uc, _, cache := setup(t)

	_, err := uc.Mutate(context.Background(), "room.update", superAdmin, func(ctx context.Context, tx repository.FloorTx) error {
		return domain.ErrRoomOccupied
	})
	require.ErrorIs(t, err, domain.ErrRoomOccupied)
	assert.Equal(t, 0, cache.invalidates)
}

func TestCacheFailuresFailOpen(t *testing.T) {
	uc, _, cache := setup(t)
	cache.failing = true
	ctx := context.Background()

	_, version := addRoom(t, uc, superAdmin, "Atlas")

	snap, err := uc.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, snap.CurrentVersion)
	assert.Len(t, snap.Rooms, 1)
}

func TestPopulateEvictsWhenVersionMovedMeanwhile(t *testing.T) {
	uc, store, cache := setup(t)
	ctx := context.Background()

	var once sync.Once
	cache.onPut = func() {
		once.Do(func() {
			_, err := store.Mutate(ctx, superAdmin, func(ctx context.Context, tx repository.FloorTx) error {
				return tx.CreateRoom(ctx, &domain.Room{Name: "Late", Type: "t", Capacity: 1, Status: domain.RoomActive})
			})
			require.NoError(t, err)
		})
	}

	stale, err := uc.Live(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale.Rooms)
	assert.Equal(t, 1, cache.invalidates, "stale populate is evicted")

	fresh, err := uc.Live(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh.Rooms, 1)
}

func TestViewFollowsWatermark(t *testing.T) {
	uc, _, _ := setup(t)
	ctx := context.Background()

	// Unknown users and watermark 0 read live.
	view, err := uc.View(ctx, "employee")
	require.NoError(t, err)
	assert.True(t, view.IsLive)

	_, v2 := addRoom(t, uc, admin, "Atlas")
	view, err = uc.View(ctx, admin.UserID)
	require.NoError(t, err)
	assert.True(t, view.IsLive, "own mutation moves the watermark to current")
	assert.Equal(t, v2, view.UserVersion)

	_, v3 := addRoom(t, uc, superAdmin, "Borealis")
	view, err = uc.View(ctx, admin.UserID)
	require.NoError(t, err)
	assert.False(t, view.IsLive)
	assert.Equal(t, v3, view.CurrentVersion)
	assert.Equal(t, v2, view.UserVersion)
	assert.Len(t, view.Data.Rooms, 1, "admin still sees the floor as of their watermark")

	synced, err := uc.Sync(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, v3, synced.UserVersion)
	assert.Len(t, synced.Data.Rooms, 2)

	view, err = uc.View(ctx, admin.UserID)
	require.NoError(t, err)
	assert.True(t, view.IsLive)
}

func TestViewFallsBackWhenHistoryMissing(t *testing.T) {
	uc, store, _ := setup(t)
	ctx := context.Background()
	addRoom(t, uc, superAdmin, "Atlas")

	_, err := store.Users().CreateIfAbsent(ctx, &domain.User{ID: "old", Role: domain.RoleAdmin, LastSyncedVersion: 42})
	require.NoError(t, err)

	view, err := uc.View(ctx, "old")
	require.NoError(t, err)
	assert.False(t, view.IsLive)
	assert.Len(t, view.Data.Rooms, 1)
	assert.Equal(t, int64(42), view.UserVersion)
}

func TestSyncCreatesUnknownUser(t *testing.T) {
	uc, store, _ := setup(t)
	ctx := context.Background()

	view, err := uc.Sync(ctx, domain.Actor{UserID: "fresh", Role: domain.RoleAdmin})
	require.NoError(t, err)

	user, err := store.Users().GetByID(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, view.CurrentVersion, user.LastSyncedVersion)
}
