// Package memory holds in-process implementations of the storage ports. They
// back the memory storage driver and the use case tests.
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

type state struct {
	floor    *domain.Floor
	rooms    map[string]domain.Room
	order    []string
	bookings map[string]domain.Booking
	history  []domain.HistoryEntry
	users    map[string]domain.User
}

func (s *state) clone() *state {
	cp := &state{
		rooms:    make(map[string]domain.Room, len(s.rooms)),
		order:    append([]string(nil), s.order...),
		bookings: make(map[string]domain.Booking, len(s.bookings)),
		history:  s.history[:len(s.history):len(s.history)],
		users:    make(map[string]domain.User, len(s.users)),
	}
	if s.floor != nil {
		f := *s.floor
		cp.floor = &f
	}
	for k, v := range s.rooms {
		cp.rooms[k] = v
	}
	for k, v := range s.bookings {
		if v.EndTime != nil {
			end := *v.EndTime
			v.EndTime = &end
		}
		cp.bookings[k] = v
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	return cp
}

func (s *state) snapshot() *domain.FloorSnapshot {
	snap := &domain.FloorSnapshot{
		ID:             s.floor.ID,
		Name:           s.floor.Name,
		CurrentVersion: s.floor.CurrentVersion,
		Rooms:          make([]domain.RoomView, 0, len(s.order)),
	}
	for _, id := range s.order {
		room := s.rooms[id]
		view := domain.RoomView{
			ID:       room.ID,
			Name:     room.Name,
			Type:     room.Type,
			Capacity: room.Capacity,
			Status:   room.Status,
			Bookings: []domain.ActiveBooking{},
		}
		for _, b := range s.sortedBookings() {
			if b.RoomID == id && b.IsActive() {
				view.Bookings = append(view.Bookings, domain.ActiveBooking{
					ID:           b.ID,
					UserID:       b.UserID,
					StartTime:    b.StartTime,
					Participants: b.Participants,
				})
			}
		}
		snap.Rooms = append(snap.Rooms, view)
	}
	return snap
}

func (s *state) sortedBookings() []domain.Booking {
	out := make([]domain.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Store is an in-memory FloorStore. Mutations run against a copy of the state
// that replaces the live state only when every step succeeds.
type Store struct {
	floorID int64
	sem     chan struct{}
	cur     *state
	now     func() time.Time
}

var _ repository.FloorStore = (*Store)(nil)

// NewStore creates an empty store for a single floor.
func NewStore(floorID int64) *Store {
	return &Store{
		floorID: floorID,
		sem:     make(chan struct{}, 1),
		cur: &state{
			rooms:    make(map[string]domain.Room),
			bookings: make(map[string]domain.Booking),
			users:    make(map[string]domain.User),
		},
		now: time.Now,
	}
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() {
	<-s.sem
}

func (s *Store) EnsureFloor(ctx context.Context, name string) (*domain.Floor, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	if s.cur.floor == nil {
		s.cur.floor = &domain.Floor{
			ID:             s.floorID,
			Name:           name,
			CurrentVersion: domain.InitialVersion,
			CreatedAt:      s.now(),
		}
	}
	f := *s.cur.floor
	return &f, nil
}

func (s *Store) Mutate(ctx context.Context, actor domain.Actor, fn repository.MutateFunc) (int64, error) {
	if fn == nil || actor.UserID == "" {
		return 0, domain.ErrInvalidPayload
	}
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	if s.cur.floor == nil {
		return 0, domain.ErrFloorNotFound
	}

	next := s.cur.clone()
	next.history = append(next.history, domain.HistoryEntry{
		ID:          uuid.NewString(),
		FloorID:     next.floor.ID,
		Version:     next.floor.CurrentVersion,
		Data:        *next.snapshot(),
		ArchivedAt:  s.now(),
		UpdatedByID: actor.UserID,
	})

	tx := &floorTx{st: next, floor: *next.floor, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	next.floor.CurrentVersion++
	user, ok := next.users[actor.UserID]
	if !ok {
		user = domain.User{ID: actor.UserID, Role: actor.Role, CreatedAt: s.now()}
	}
	user.LastSyncedVersion = next.floor.CurrentVersion
	user.UpdatedAt = s.now()
	next.users[actor.UserID] = user

	s.cur = next
	return next.floor.CurrentVersion, nil
}

func (s *Store) Read(ctx context.Context) (*domain.FloorSnapshot, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	if s.cur.floor == nil {
		return nil, domain.ErrFloorNotFound
	}
	return s.cur.snapshot(), nil
}

func (s *Store) Version(ctx context.Context) (int64, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()
	if s.cur.floor == nil {
		return 0, domain.ErrFloorNotFound
	}
	return s.cur.floor.CurrentVersion, nil
}

func (s *Store) SnapshotAt(ctx context.Context, version int64) (*domain.HistoryEntry, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	return historyAt(s.cur, version)
}

func (s *Store) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	out := make([]domain.HistoryEntry, 0, limit)
	for i := len(s.cur.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.cur.history[i])
	}
	return out, nil
}

func (s *Store) RoomUsage(ctx context.Context, userID string) ([]domain.RoomUsage, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	var usage []domain.RoomUsage
	for _, id := range s.cur.order {
		room := s.cur.rooms[id]
		if room.Status != domain.RoomActive {
			continue
		}
		u := domain.RoomUsage{Room: room}
		for _, b := range s.cur.bookings {
			if b.RoomID == id && b.UserID == userID && !b.IsActive() {
				u.PastBookingsCount++
			}
		}
		usage = append(usage, u)
	}
	return usage, nil
}

// Users returns a UserRepository sharing this store's state, so watermarks
// written by Mutate are visible to it.
func (s *Store) Users() repository.UserRepository {
	return &userRepository{store: s}
}

func historyAt(st *state, version int64) (*domain.HistoryEntry, error) {
	for i := range st.history {
		if st.history[i].Version == version {
			entry := st.history[i]
			entry.Data = *entry.Data.Clone()
			return &entry, nil
		}
	}
	return nil, domain.ErrHistoryNotFound
}

type floorTx struct {
	st    *state
	floor domain.Floor
	now   func() time.Time
}

func (t *floorTx) Floor() domain.Floor {
	return t.floor
}

func (t *floorTx) Room(ctx context.Context, id string) (*domain.Room, error) {
	room, ok := t.st.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return &room, nil
}

func (t *floorTx) CreateRoom(ctx context.Context, room *domain.Room) error {
	if room == nil {
		return domain.ErrInvalidPayload
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if _, exists := t.st.rooms[room.ID]; exists {
		return domain.NewError(domain.ErrCodeConflict, "room already exists")
	}
	room.FloorID = t.floor.ID
	room.CreatedAt = t.now()
	room.UpdatedAt = room.CreatedAt
	t.st.rooms[room.ID] = *room
	t.st.order = append(t.st.order, room.ID)
	return nil
}

func (t *floorTx) UpdateRoom(ctx context.Context, room *domain.Room) error {
	if room == nil {
		return domain.ErrInvalidPayload
	}
	if _, ok := t.st.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	room.UpdatedAt = t.now()
	t.st.rooms[room.ID] = *room
	return nil
}

func (t *floorTx) DeleteRoom(ctx context.Context, id string) error {
	if _, ok := t.st.rooms[id]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(t.st.rooms, id)
	for i, rid := range t.st.order {
		if rid == id {
			t.st.order = append(t.st.order[:i:i], t.st.order[i+1:]...)
			break
		}
	}
	for bid, b := range t.st.bookings {
		if b.RoomID == id {
			delete(t.st.bookings, bid)
		}
	}
	return nil
}

func (t *floorTx) ActiveBooking(ctx context.Context, roomID string) (*domain.Booking, error) {
	for _, b := range t.st.bookings {
		if b.RoomID == roomID && b.IsActive() {
			cp := b
			return &cp, nil
		}
	}
	return nil, domain.ErrNoActiveBooking
}

func (t *floorTx) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	if booking == nil {
		return domain.ErrInvalidPayload
	}
	if _, err := t.ActiveBooking(ctx, booking.RoomID); err == nil {
		return domain.ErrRoomUnavailable
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.StartTime.IsZero() {
		booking.StartTime = t.now()
	}
	t.st.bookings[booking.ID] = *booking
	return nil
}

func (t *floorTx) CloseBooking(ctx context.Context, bookingID string, at time.Time) error {
	b, ok := t.st.bookings[bookingID]
	if !ok || !b.IsActive() {
		return domain.ErrNoActiveBooking
	}
	end := at
	b.EndTime = &end
	t.st.bookings[bookingID] = b
	return nil
}

func (t *floorTx) SnapshotAt(ctx context.Context, version int64) (*domain.HistoryEntry, error) {
	return historyAt(t.st, version)
}
