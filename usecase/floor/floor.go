// Package floor couples the floor store with the snapshot cache: mutations go
// through Mutate so the cache is invalidated after every commit, and reads go
// cache-aside against the store.
package floor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/internal/metrics"
	"github.com/fastygo/floorplan/repository"
)

const cacheOpTimeout = 2 * time.Second

type UseCase struct {
	store  repository.FloorStore
	users  repository.UserRepository
	cache  repository.SnapshotCache
	logger *zap.Logger
}

func New(store repository.FloorStore, users repository.UserRepository, cache repository.SnapshotCache, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		store:  store,
		users:  users,
		cache:  cache,
		logger: logger,
	}
}

// Bootstrap creates the floor if it does not exist yet.
func (uc *UseCase) Bootstrap(ctx context.Context, name string) (*domain.Floor, error) {
	floor, err := uc.store.EnsureFloor(ctx, name)
	if err != nil {
		return nil, err
	}
	metrics.FloorVersion.Set(float64(floor.CurrentVersion))
	uc.logger.Info("floor ready", zap.Int64("floor_id", floor.ID), zap.Int64("version", floor.CurrentVersion))
	return floor, nil
}

// Mutate runs fn through the store's archive, mutate and bump transaction and
// invalidates the cache once the transaction has committed.
func (uc *UseCase) Mutate(ctx context.Context, operation string, actor domain.Actor, fn repository.MutateFunc) (int64, error) {
	version, err := uc.store.Mutate(ctx, actor, fn)
	metrics.MutationsTotal.WithLabelValues(operation, metrics.Outcome(err)).Inc()
	if err != nil {
		return 0, err
	}
	uc.invalidate(ctx)
	metrics.FloorVersion.Set(float64(version))
	uc.logger.Info("floor mutated",
		zap.String("operation", operation),
		zap.String("actor", actor.UserID),
		zap.Int64("version", version))
	return version, nil
}

// Live returns the current snapshot, served from the cache when possible.
func (uc *UseCase) Live(ctx context.Context) (*domain.FloorSnapshot, error) {
	if snapshot, ok := uc.cached(ctx); ok {
		return snapshot, nil
	}
	snapshot, err := uc.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	uc.populate(ctx, snapshot)
	return snapshot, nil
}

// Fresh reads the current snapshot from the store, bypassing the cache.
func (uc *UseCase) Fresh(ctx context.Context) (*domain.FloorSnapshot, error) {
	return uc.store.Read(ctx)
}

// View returns the floor as the user should see it: live when their watermark
// is zero or current, otherwise the archived version they are watermarked at.
func (uc *UseCase) View(ctx context.Context, userID string) (*domain.FloorView, error) {
	current, err := uc.store.Version(ctx)
	if err != nil {
		return nil, err
	}

	user, err := uc.users.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	var userVersion int64
	if user != nil {
		userVersion = user.LastSyncedVersion
	}

	if user.SeesLive(current) {
		snapshot, err := uc.Live(ctx)
		if err != nil {
			return nil, err
		}
		return &domain.FloorView{Data: snapshot, IsLive: true, CurrentVersion: current, UserVersion: userVersion}, nil
	}

	entry, err := uc.store.SnapshotAt(ctx, userVersion)
	switch {
	case err == nil:
		return &domain.FloorView{Data: &entry.Data, IsLive: false, CurrentVersion: current, UserVersion: userVersion}, nil
	case errors.Is(err, domain.ErrHistoryNotFound):
		snapshot, err := uc.store.Read(ctx)
		if err != nil {
			return nil, err
		}
		return &domain.FloorView{Data: snapshot, IsLive: false, CurrentVersion: current, UserVersion: userVersion}, nil
	default:
		return nil, err
	}
}

// Sync moves the actor's watermark to the current version and refreshes the cache.
func (uc *UseCase) Sync(ctx context.Context, actor domain.Actor) (*domain.FloorView, error) {
	snapshot, err := uc.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	version := snapshot.CurrentVersion

	if err := uc.users.SetWatermark(ctx, actor.UserID, version); err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		if _, err := uc.users.CreateIfAbsent(ctx, &domain.User{ID: actor.UserID, Role: actor.Role, LastSyncedVersion: version}); err != nil {
			return nil, err
		}
	}

	uc.populate(ctx, snapshot)
	return &domain.FloorView{Data: snapshot, IsLive: true, CurrentVersion: version, UserVersion: version}, nil
}

func (uc *UseCase) Version(ctx context.Context) (int64, error) {
	return uc.store.Version(ctx)
}

func (uc *UseCase) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return uc.store.History(ctx, limit)
}

func (uc *UseCase) SnapshotAt(ctx context.Context, version int64) (*domain.HistoryEntry, error) {
	return uc.store.SnapshotAt(ctx, version)
}

// RoomUsage lists bookable rooms with the user's past booking counts, straight from the store.
func (uc *UseCase) RoomUsage(ctx context.Context, userID string) ([]domain.RoomUsage, error) {
	return uc.store.RoomUsage(ctx, userID)
}

func (uc *UseCase) cached(ctx context.Context) (*domain.FloorSnapshot, bool) {
	if uc.cache == nil {
		return nil, false
	}
	cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	snapshot, err := uc.cache.Get(cctx)
	switch {
	case err == nil:
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return snapshot, true
	case errors.Is(err, domain.ErrCacheMiss):
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	default:
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		uc.logger.Warn("snapshot cache read failed, reading store", zap.Error(err))
	}
	return nil, false
}

// populate stores snapshot and evicts it again if a mutation committed while
// the snapshot was being read, so a slow reader cannot pin stale data.
func (uc *UseCase) populate(ctx context.Context, snapshot *domain.FloorSnapshot) {
	if uc.cache == nil || snapshot == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	if err := uc.cache.Put(cctx, snapshot); err != nil {
		uc.logger.Warn("snapshot cache write failed", zap.Error(err))
		return
	}
	current, err := uc.store.Version(ctx)
	if err == nil && current != snapshot.CurrentVersion {
		uc.invalidate(ctx)
	}
}

func (uc *UseCase) invalidate(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	// The mutation has committed; the eviction must run even if the caller gave up.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := uc.cache.Invalidate(cctx); err != nil {
		uc.logger.Warn("snapshot cache invalidation failed", zap.Error(err))
	}
}
