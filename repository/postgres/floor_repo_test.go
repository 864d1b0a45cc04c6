package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

var (
	floorCols   = []string{"id", "name", "current_version", "created_at"}
	roomCols    = []string{"id", "floor_id", "name", "type", "capacity", "status", "created_at", "updated_at"}
	bookingCols = []string{"id", "room_id", "user_id", "start_time", "participants"}
	historyCols = []string{"id", "floor_id", "version", "data", "archived_at", "updated_by_id"}

	admin = domain.Actor{UserID: "ann", Role: domain.RoleAdmin}
)

func newStoreWithMock(t *testing.T) (repository.FloorStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewFloorStore(mock, 1, TxConfig{MaxWait: 10 * time.Second, Timeout: 20 * time.Second}), mock
}

// expectLockedAndArchived queues the statements every mutation runs before fn:
// lock timeout, floor row lock, snapshot read and archive of version.
func expectLockedAndArchived(mock pgxmock.PgxPoolIface, version int64, now time.Time) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
		WithArgs("10000ms").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`FROM floors WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(floorCols).AddRow(int64(1), "Main Floor", version, now))
	mock.ExpectQuery(`FROM rooms\s+WHERE floor_id = \$1\s+ORDER BY created_at, id`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(roomCols).
			AddRow("room-1", int64(1), "Atlas", "meeting", 4, "ACTIVE", now, now))
	mock.ExpectQuery(`FROM bookings b\s+JOIN rooms r`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(bookingCols))
	mock.ExpectExec(`INSERT INTO floor_history`).
		WithArgs(pgxmock.AnyArg(), int64(1), version, pgxmock.AnyArg(), "ann").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestMutateArchivesThenBumpsAndWatermarks(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now()

	expectLockedAndArchived(mock, 3, now)
	mock.ExpectQuery(`UPDATE rooms\s+SET name = \$3`).
		WithArgs("room-1", int64(1), "Borealis", "meeting", 4, "ACTIVE").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectQuery(`UPDATE floors SET current_version = current_version \+ 1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"current_version"}).AddRow(int64(4)))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("ann", "ADMIN", int64(4)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	version, err := store.Mutate(context.Background(), admin, func(ctx context.Context, tx repository.FloorTx) error {
		assert.Equal(t, int64(3), tx.Floor().CurrentVersion)
		room := &domain.Room{ID: "room-1", Name: "Borealis", Type: "meeting", Capacity: 4, Status: domain.RoomActive}
		return tx.UpdateRoom(ctx, room)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateMapsDuplicateBookingToUnavailable(t *testing.T) {
	store, mock := newStoreWithMock(t)

	expectLockedAndArchived(mock, 5, time.Now())
	mock.ExpectQuery(`INSERT INTO bookings`).
		WithArgs("b1", "room-1", "ann", 2, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	version, err := store.Mutate(context.Background(), admin, func(ctx context.Context, tx repository.FloorTx) error {
		return tx.CreateBooking(ctx, &domain.Booking{ID: "b1", RoomID: "room-1", UserID: "ann", Participants: 2})
	})
	require.ErrorIs(t, err, domain.ErrRoomUnavailable)
	assert.Zero(t, version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateMissingRoom(t *testing.T) {
	store, mock := newStoreWithMock(t)

	expectLockedAndArchived(mock, 5, time.Now())
	mock.ExpectQuery(`FROM rooms\s+WHERE id = \$1 AND floor_id = \$2\s+FOR UPDATE`).
		WithArgs("gone", int64(1)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Mutate(context.Background(), admin, func(ctx context.Context, tx repository.FloorTx) error {
		_, err := tx.Room(ctx, "gone")
		return err
	})
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateDeleteOfMissingRoom(t *testing.T) {
	store, mock := newStoreWithMock(t)

	expectLockedAndArchived(mock, 5, time.Now())
	mock.ExpectExec(`DELETE FROM rooms WHERE id = \$1 AND floor_id = \$2`).
		WithArgs("gone", int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	_, err := store.Mutate(context.Background(), admin, func(ctx context.Context, tx repository.FloorTx) error {
		return tx.DeleteRoom(ctx, "gone")
	})
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateStopsBeforeArchiveWhenLockFails(t *testing.T) {
	store, mock := newStoreWithMock(t)
	called := false

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
		WithArgs("10000ms").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`FROM floors WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	_, err := store.Mutate(context.Background(), admin, func(ctx context.Context, tx repository.FloorTx) error {
		called = true
		return nil
	})
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "55P03", pgErr.Code)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateMissingFloor(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SELECT set_config\('lock_timeout', \$1, true\)`).
		WithArgs("10000ms").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`FROM floors WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Mutate(context.Background(), admin, func(context.Context, repository.FloorTx) error { return nil })
	require.ErrorIs(t, err, domain.ErrFloorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateRequiresActor(t *testing.T) {
	store, mock := newStoreWithMock(t)

	_, err := store.Mutate(context.Background(), domain.Actor{}, func(context.Context, repository.FloorTx) error { return nil })
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotAtAndHistory(t *testing.T) {
	store, mock := newStoreWithMock(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`FROM floor_history\s+WHERE floor_id = \$1 AND version = \$2`).
		WithArgs(int64(1), int64(9)).
		WillReturnError(pgx.ErrNoRows)
	_, err := store.SnapshotAt(ctx, 9)
	require.ErrorIs(t, err, domain.ErrHistoryNotFound)

	data := []byte(`{"id":1,"name":"Main Floor","current_version":2,"rooms":[{"id":"room-1","name":"Atlas","type":"meeting","capacity":4,"status":"ACTIVE","bookings":[]}]}`)
	mock.ExpectQuery(`FROM floor_history\s+WHERE floor_id = \$1\s+ORDER BY version DESC`).
		WithArgs(int64(1), 100).
		WillReturnRows(pgxmock.NewRows(historyCols).
			AddRow("h2", int64(1), int64(2), data, now, "ann").
			AddRow("h1", int64(1), int64(1), []byte(`{"id":1,"current_version":1,"rooms":[]}`), now, "bob"))

	entries, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].Version)
	assert.Equal(t, "Atlas", entries[0].Data.Rooms[0].Name)
	assert.Equal(t, "bob", entries[1].UpdatedByID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryMappings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo := NewUserRepository(mock)
	ctx := context.Background()

	mock.ExpectQuery(`FROM users\s+WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	mock.ExpectExec(`UPDATE users SET last_synced_version = \$2`).
		WithArgs("ghost", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, repo.SetWatermark(ctx, "ghost", 7), domain.ErrUserNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
