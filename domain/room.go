package domain

import "time"

// RoomStatus is the state of a room in its lifecycle.
type RoomStatus string

const (
	RoomActive           RoomStatus = "ACTIVE"
	RoomBooked           RoomStatus = "BOOKED"
	RoomUnderMaintenance RoomStatus = "UNDER_MAINTENANCE"
)

// Valid reports whether s is a known status.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomActive, RoomBooked, RoomUnderMaintenance:
		return true
	}
	return false
}

// Room is a bookable space on the floor. Status is kept consistent with the
// room's active booking inside the same transaction.
type Room struct {
	ID        string     `json:"id"`
	FloorID   int64      `json:"floor_id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Capacity  int        `json:"capacity"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r *Room) IsBooked() bool {
	return r != nil && r.Status == RoomBooked
}

// RoomView is the room shape stored in snapshots.
type RoomView struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Capacity int             `json:"capacity"`
	Status   RoomStatus      `json:"status"`
	Bookings []ActiveBooking `json:"bookings"`
}

// Room field names used in updates and conflict payloads.
const (
	FieldName     = "name"
	FieldType     = "type"
	FieldCapacity = "capacity"
	FieldStatus   = "status"
)

// RoomUpdate is a partial update; nil fields are left untouched.
type RoomUpdate struct {
	Name     *string     `json:"name,omitempty"`
	Type     *string     `json:"type,omitempty"`
	Capacity *int        `json:"capacity,omitempty"`
	Status   *RoomStatus `json:"status,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u RoomUpdate) IsEmpty() bool {
	return u.Name == nil && u.Type == nil && u.Capacity == nil && u.Status == nil
}

// Values returns the fields the update sets, keyed by field name.
func (u RoomUpdate) Values() map[string]interface{} {
	out := make(map[string]interface{}, 4)
	if u.Name != nil {
		out[FieldName] = *u.Name
	}
	if u.Type != nil {
		out[FieldType] = *u.Type
	}
	if u.Capacity != nil {
		out[FieldCapacity] = *u.Capacity
	}
	if u.Status != nil {
		out[FieldStatus] = *u.Status
	}
	return out
}

// Apply writes the update onto room.
func (u RoomUpdate) Apply(room *Room) {
	if room == nil {
		return
	}
	if u.Name != nil {
		room.Name = *u.Name
	}
	if u.Type != nil {
		room.Type = *u.Type
	}
	if u.Capacity != nil {
		room.Capacity = *u.Capacity
	}
	if u.Status != nil {
		room.Status = *u.Status
	}
}

// FieldValue returns the value a room holds for a conflict-checked field.
// Only the flat room fields are diffable.
func (r *Room) FieldValue(field string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	switch field {
	case FieldName:
		return r.Name, true
	case FieldType:
		return r.Type, true
	case FieldCapacity:
		return r.Capacity, true
	case FieldStatus:
		return r.Status, true
	}
	return nil, false
}

// FieldValue mirrors Room.FieldValue for archived rooms.
func (v *RoomView) FieldValue(field string) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	switch field {
	case FieldName:
		return v.Name, true
	case FieldType:
		return v.Type, true
	case FieldCapacity:
		return v.Capacity, true
	case FieldStatus:
		return v.Status, true
	}
	return nil, false
}

// RoomUsage is an active room together with how often a given user booked it before.
type RoomUsage struct {
	Room              Room
	PastBookingsCount int
}

// Recommendation is a scored candidate room.
type Recommendation struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	Capacity          int        `json:"capacity"`
	Status            RoomStatus `json:"status"`
	CapacityScore     int        `json:"capacity_score"`
	HistoryScore      int        `json:"history_score"`
	TotalScore        int        `json:"total_score"`
	PastBookingsCount int        `json:"past_bookings_count"`
}
