package repository

import (
	"context"

	"github.com/fastygo/floorplan/domain"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// CreateIfAbsent inserts user unless a row with the same id exists and
	// returns the stored row either way.
	CreateIfAbsent(ctx context.Context, user *domain.User) (*domain.User, error)
	SetWatermark(ctx context.Context, id string, version int64) error
}
