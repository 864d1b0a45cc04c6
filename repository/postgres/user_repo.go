package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

type userRepository struct {
	pool querier
}

// NewUserRepository instantiates a Postgres-backed user repository.
func NewUserRepository(pool DB) repository.UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
		SELECT id, name, role, last_synced_version, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) CreateIfAbsent(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrInvalidPayload
	}

	const insert = `
	INSERT INTO users (id, name, role, last_synced_version)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, insert, user.ID, user.Name, string(user.Role), user.LastSyncedVersion); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, user.ID)
}

func (r *userRepository) SetWatermark(ctx context.Context, id string, version int64) error {
	const query = `UPDATE users SET last_synced_version = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row scanner) (*domain.User, error) {
	var user domain.User
	var role string
	if err := row.Scan(&user.ID, &user.Name, &role, &user.LastSyncedVersion, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}
