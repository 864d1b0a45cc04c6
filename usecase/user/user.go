package user

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

// VersionSource reports the floor's current version.
type VersionSource interface {
	Version(ctx context.Context) (int64, error)
}

type UseCase struct {
	users  repository.UserRepository
	floor  VersionSource
	logger *zap.Logger
}

func New(users repository.UserRepository, floor VersionSource, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:  users,
		floor:  floor,
		logger: logger,
	}
}

// Enroll registers the actor on first login. Privileged roles start watermarked
// at the current version; everyone else starts at 0 and always reads live data.
// Enrolling an existing user returns it unchanged.
func (uc *UseCase) Enroll(ctx context.Context, actor domain.Actor, name string) (*domain.User, error) {
	if actor.UserID == "" || !actor.Role.Valid() {
		return nil, domain.ErrInvalidPayload
	}

	var watermark int64
	if actor.Role.Privileged() {
		current, err := uc.floor.Version(ctx)
		if err != nil {
			return nil, err
		}
		watermark = current
	}

	user, err := uc.users.CreateIfAbsent(ctx, &domain.User{
		ID:                actor.UserID,
		Name:              name,
		Role:              actor.Role,
		LastSyncedVersion: watermark,
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Debug("user enrolled", zap.String("user_id", user.ID), zap.Int64("watermark", user.LastSyncedVersion))
	return user, nil
}

func (uc *UseCase) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return uc.users.GetByID(ctx, userID)
}
