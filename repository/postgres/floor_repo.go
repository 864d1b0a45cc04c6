package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

// TxConfig bounds how long a mutation waits for the floor lock and how long it may run.
type TxConfig struct {
	MaxWait time.Duration
	Timeout time.Duration
}

type floorStore struct {
	pool    DB
	floorID int64
	cfg     TxConfig
}

// NewFloorStore creates a Postgres-backed FloorStore scoped to a single floor.
func NewFloorStore(pool DB, floorID int64, cfg TxConfig) repository.FloorStore {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &floorStore{pool: pool, floorID: floorID, cfg: cfg}
}

func (s *floorStore) EnsureFloor(ctx context.Context, name string) (*domain.Floor, error) {
	const insert = `
	INSERT INTO floors (id, name, current_version)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insert, s.floorID, name, domain.InitialVersion); err != nil {
		return nil, fmt.Errorf("bootstrap floor: %w", err)
	}
	return getFloor(ctx, s.pool, s.floorID, false)
}

func (s *floorStore) Mutate(ctx context.Context, actor domain.Actor, fn repository.MutateFunc) (int64, error) {
	if fn == nil || actor.UserID == "" {
		return 0, domain.ErrInvalidPayload
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var newVersion int64
	err := withTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		lockTimeout := fmt.Sprintf("%dms", s.cfg.MaxWait.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeout); err != nil {
			return err
		}

		// Row lock on the floor serialises every mutation of this floor.
		floor, err := getFloor(ctx, tx, s.floorID, true)
		if err != nil {
			return err
		}

		snapshot, err := readSnapshot(ctx, tx, floor)
		if err != nil {
			return err
		}
		if err := archive(ctx, tx, snapshot, actor.UserID); err != nil {
			return err
		}

		if err := fn(ctx, &floorTx{tx: tx, floor: *floor}); err != nil {
			return err
		}

		const bump = `UPDATE floors SET current_version = current_version + 1 WHERE id = $1 RETURNING current_version`
		if err := tx.QueryRow(ctx, bump, s.floorID).Scan(&newVersion); err != nil {
			return err
		}

		return upsertWatermark(ctx, tx, actor, newVersion)
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *floorStore) Read(ctx context.Context) (*domain.FloorSnapshot, error) {
	var snapshot *domain.FloorSnapshot
	err := withTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		floor, err := getFloor(ctx, tx, s.floorID, false)
		if err != nil {
			return err
		}
		snapshot, err = readSnapshot(ctx, tx, floor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *floorStore) Version(ctx context.Context) (int64, error) {
	floor, err := getFloor(ctx, s.pool, s.floorID, false)
	if err != nil {
		return 0, err
	}
	return floor.CurrentVersion, nil
}

func (s *floorStore) SnapshotAt(ctx context.Context, version int64) (*domain.HistoryEntry, error) {
	return snapshotAt(ctx, s.pool, s.floorID, version)
}

func (s *floorStore) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	const query = `
	SELECT id, floor_id, version, data, archived_at, updated_by_id
	FROM floor_history
	WHERE floor_id = $1
	ORDER BY version DESC
	LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, s.floorID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *floorStore) RoomUsage(ctx context.Context, userID string) ([]domain.RoomUsage, error) {
	const query = `
	SELECT r.id, r.floor_id, r.name, r.type, r.capacity, r.status, r.created_at, r.updated_at,
		COUNT(b.id) FILTER (WHERE b.user_id = $2 AND b.end_time IS NOT NULL)
	FROM rooms r
	LEFT JOIN bookings b ON b.room_id = r.id
	WHERE r.floor_id = $1 AND r.status = $3
	GROUP BY r.id
	ORDER BY r.created_at, r.id
	`
	rows, err := s.pool.Query(ctx, query, s.floorID, userID, domain.RoomActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []domain.RoomUsage
	for rows.Next() {
		var u domain.RoomUsage
		var status string
		if err := rows.Scan(
			&u.Room.ID,
			&u.Room.FloorID,
			&u.Room.Name,
			&u.Room.Type,
			&u.Room.Capacity,
			&status,
			&u.Room.CreatedAt,
			&u.Room.UpdatedAt,
			&u.PastBookingsCount,
		); err != nil {
			return nil, err
		}
		u.Room.Status = domain.RoomStatus(status)
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// floorTx implements repository.FloorTx on top of a running pgx transaction.
type floorTx struct {
	tx    pgx.Tx
	floor domain.Floor
}

func (t *floorTx) Floor() domain.Floor {
	return t.floor
}

func (t *floorTx) Room(ctx context.Context, id string) (*domain.Room, error) {
	const query = `
	SELECT id, floor_id, name, type, capacity, status, created_at, updated_at
	FROM rooms
	WHERE id = $1 AND floor_id = $2
	FOR UPDATE
	`
	return scanRoom(t.tx.QueryRow(ctx, query, id, t.floor.ID))
}

func (t *floorTx) CreateRoom(ctx context.Context, room *domain.Room) error {
	if room == nil {
		return domain.ErrInvalidPayload
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.FloorID = t.floor.ID

	const query = `
	INSERT INTO rooms (id, floor_id, name, type, capacity, status)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at, updated_at
	`
	return t.tx.QueryRow(ctx, query,
		room.ID,
		room.FloorID,
		room.Name,
		room.Type,
		room.Capacity,
		string(room.Status),
	).Scan(&room.CreatedAt, &room.UpdatedAt)
}

func (t *floorTx) UpdateRoom(ctx context.Context, room *domain.Room) error {
	if room == nil {
		return domain.ErrInvalidPayload
	}
	const query = `
	UPDATE rooms
	SET name = $3,
		type = $4,
		capacity = $5,
		status = $6,
		updated_at = NOW()
	WHERE id = $1 AND floor_id = $2
	RETURNING updated_at
	`
	if err := t.tx.QueryRow(ctx, query,
		room.ID,
		t.floor.ID,
		room.Name,
		room.Type,
		room.Capacity,
		string(room.Status),
	).Scan(&room.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		return err
	}
	return nil
}

func (t *floorTx) DeleteRoom(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1 AND floor_id = $2`, id, t.floor.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (t *floorTx) ActiveBooking(ctx context.Context, roomID string) (*domain.Booking, error) {
	const query = `
	SELECT id, room_id, user_id, participants, start_time, end_time
	FROM bookings
	WHERE room_id = $1 AND end_time IS NULL
	FOR UPDATE
	`
	var b domain.Booking
	if err := t.tx.QueryRow(ctx, query, roomID).Scan(
		&b.ID,
		&b.RoomID,
		&b.UserID,
		&b.Participants,
		&b.StartTime,
		&b.EndTime,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoActiveBooking
		}
		return nil, err
	}
	return &b, nil
}

func (t *floorTx) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	if booking == nil {
		return domain.ErrInvalidPayload
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	const query = `
	INSERT INTO bookings (id, room_id, user_id, participants, start_time)
	VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
	RETURNING start_time
	`
	if err := t.tx.QueryRow(ctx, query,
		booking.ID,
		booking.RoomID,
		booking.UserID,
		booking.Participants,
		nullTime(booking.StartTime),
	).Scan(&booking.StartTime); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrRoomUnavailable
		}
		return err
	}
	return nil
}

func (t *floorTx) CloseBooking(ctx context.Context, bookingID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bookings SET end_time = $2 WHERE id = $1 AND end_time IS NULL`, bookingID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoActiveBooking
	}
	return nil
}

func (t *floorTx) SnapshotAt(ctx context.Context, version int64) (*domain.HistoryEntry, error) {
	return snapshotAt(ctx, t.tx, t.floor.ID, version)
}

func getFloor(ctx context.Context, q querier, floorID int64, forUpdate bool) (*domain.Floor, error) {
	query := `SELECT id, name, current_version, created_at FROM floors WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var floor domain.Floor
	if err := q.QueryRow(ctx, query, floorID).Scan(&floor.ID, &floor.Name, &floor.CurrentVersion, &floor.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFloorNotFound
		}
		return nil, err
	}
	return &floor, nil
}

func readSnapshot(ctx context.Context, q querier, floor *domain.Floor) (*domain.FloorSnapshot, error) {
	const roomsQuery = `
	SELECT id, floor_id, name, type, capacity, status, created_at, updated_at
	FROM rooms
	WHERE floor_id = $1
	ORDER BY created_at, id
	`
	rows, err := q.Query(ctx, roomsQuery, floor.ID)
	if err != nil {
		return nil, err
	}
	snapshot := &domain.FloorSnapshot{
		ID:             floor.ID,
		Name:           floor.Name,
		CurrentVersion: floor.CurrentVersion,
		Rooms:          []domain.RoomView{},
	}
	index := make(map[string]int)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[room.ID] = len(snapshot.Rooms)
		snapshot.Rooms = append(snapshot.Rooms, domain.RoomView{
			ID:       room.ID,
			Name:     room.Name,
			Type:     room.Type,
			Capacity: room.Capacity,
			Status:   room.Status,
			Bookings: []domain.ActiveBooking{},
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const bookingsQuery = `
	SELECT b.id, b.room_id, b.user_id, b.start_time, b.participants
	FROM bookings b
	JOIN rooms r ON r.id = b.room_id
	WHERE r.floor_id = $1 AND b.end_time IS NULL
	`
	brows, err := q.Query(ctx, bookingsQuery, floor.ID)
	if err != nil {
		return nil, err
	}
	defer brows.Close()
	for brows.Next() {
		var (
			b      domain.ActiveBooking
			roomID string
		)
		if err := brows.Scan(&b.ID, &roomID, &b.UserID, &b.StartTime, &b.Participants); err != nil {
			return nil, err
		}
		if i, ok := index[roomID]; ok {
			snapshot.Rooms[i].Bookings = append(snapshot.Rooms[i].Bookings, b)
		}
	}
	return snapshot, brows.Err()
}

func archive(ctx context.Context, q querier, snapshot *domain.FloorSnapshot, updatedBy string) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	const query = `
	INSERT INTO floor_history (id, floor_id, version, data, updated_by_id)
	VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.Exec(ctx, query, uuid.NewString(), snapshot.ID, snapshot.CurrentVersion, data, updatedBy); err != nil {
		return fmt.Errorf("archive floor version %d: %w", snapshot.CurrentVersion, err)
	}
	return nil
}

func snapshotAt(ctx context.Context, q querier, floorID, version int64) (*domain.HistoryEntry, error) {
	const query = `
	SELECT id, floor_id, version, data, archived_at, updated_by_id
	FROM floor_history
	WHERE floor_id = $1 AND version = $2
	`
	return scanHistory(q.QueryRow(ctx, query, floorID, version))
}

func upsertWatermark(ctx context.Context, q querier, actor domain.Actor, version int64) error {
	const query = `
	INSERT INTO users (id, role, last_synced_version)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE
	SET last_synced_version = EXCLUDED.last_synced_version,
		updated_at = NOW()
	`
	_, err := q.Exec(ctx, query, actor.UserID, string(actor.Role), version)
	return err
}

func scanRoom(row scanner) (*domain.Room, error) {
	var room domain.Room
	var status string
	if err := row.Scan(
		&room.ID,
		&room.FloorID,
		&room.Name,
		&room.Type,
		&room.Capacity,
		&status,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	room.Status = domain.RoomStatus(status)
	return &room, nil
}

func scanHistory(row scanner) (*domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	var data []byte
	if err := row.Scan(
		&entry.ID,
		&entry.FloorID,
		&entry.Version,
		&data,
		&entry.ArchivedAt,
		&entry.UpdatedByID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHistoryNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &entry.Data); err != nil {
		return nil, fmt.Errorf("decode history version %d: %w", entry.Version, err)
	}
	return &entry, nil
}
