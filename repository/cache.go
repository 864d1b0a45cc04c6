package repository

import (
	"context"

	"github.com/fastygo/floorplan/domain"
)

// SnapshotCache is the single-slot cache of the latest floor snapshot.
// Get returns domain.ErrCacheMiss when nothing is cached.
type SnapshotCache interface {
	Get(ctx context.Context) (*domain.FloorSnapshot, error)
	Put(ctx context.Context, snapshot *domain.FloorSnapshot) error
	Invalidate(ctx context.Context) error
}
