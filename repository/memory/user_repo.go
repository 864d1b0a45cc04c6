package memory

import (
	"context"

	"github.com/fastygo/floorplan/domain"
)

type userRepository struct {
	store *Store
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := r.store.lock(ctx); err != nil {
		return nil, err
	}
	defer r.store.unlock()
	user, ok := r.store.cur.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (r *userRepository) CreateIfAbsent(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrInvalidPayload
	}
	if err := r.store.lock(ctx); err != nil {
		return nil, err
	}
	defer r.store.unlock()
	if existing, ok := r.store.cur.users[user.ID]; ok {
		return &existing, nil
	}
	created := *user
	created.CreatedAt = r.store.now()
	created.UpdatedAt = created.CreatedAt
	r.store.cur.users[user.ID] = created
	return &created, nil
}

func (r *userRepository) SetWatermark(ctx context.Context, id string, version int64) error {
	if err := r.store.lock(ctx); err != nil {
		return err
	}
	defer r.store.unlock()
	user, ok := r.store.cur.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.LastSyncedVersion = version
	user.UpdatedAt = r.store.now()
	r.store.cur.users[id] = user
	return nil
}
