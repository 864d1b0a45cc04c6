package domain

import "time"

// Floor is the singleton aggregate root every room and booking belongs to.
type Floor struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CurrentVersion int64     `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// InitialVersion is the version a freshly bootstrapped floor starts at.
const InitialVersion int64 = 1

// FloorSnapshot is a full point-in-time copy of all rooms with their active bookings.
// The same shape is archived in history and held in the cache.
type FloorSnapshot struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	CurrentVersion int64      `json:"current_version"`
	Rooms          []RoomView `json:"rooms"`
}

// Room returns the room with the given id, if present in the snapshot.
func (s *FloorSnapshot) Room(id string) (*RoomView, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Rooms {
		if s.Rooms[i].ID == id {
			return &s.Rooms[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers cannot mutate shared cache entries.
func (s *FloorSnapshot) Clone() *FloorSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Rooms = make([]RoomView, len(s.Rooms))
	for i, r := range s.Rooms {
		cp.Rooms[i] = r
		cp.Rooms[i].Bookings = append([]ActiveBooking(nil), r.Bookings...)
	}
	return &cp
}

// HistoryEntry is an immutable archived snapshot. Version is the floor version
// the data represents, i.e. the version before the mutation that archived it.
type HistoryEntry struct {
	ID          string        `json:"id"`
	FloorID     int64         `json:"floor_id"`
	Version     int64         `json:"version"`
	Data        FloorSnapshot `json:"data"`
	ArchivedAt  time.Time     `json:"archived_at"`
	UpdatedByID string        `json:"updated_by_id"`
}

// FloorView is what a dashboard reader receives: either the live floor or the
// historical version the reader is watermarked at.
type FloorView struct {
	Data           *FloorSnapshot `json:"data"`
	IsLive         bool           `json:"is_live"`
	CurrentVersion int64          `json:"current_version"`
	UserVersion    int64          `json:"user_version"`
}
