package domain

import "time"

// Booking is a reservation of a room. A nil EndTime means the booking is active.
type Booking struct {
	ID           string     `json:"id"`
	RoomID       string     `json:"room_id"`
	UserID       string     `json:"user_id"`
	Participants int        `json:"participants"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

func (b *Booking) IsActive() bool {
	return b != nil && b.EndTime == nil
}

// ActiveBooking is the booking shape embedded in snapshots.
type ActiveBooking struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	StartTime    time.Time `json:"start_time"`
	Participants int       `json:"participants"`
}

// BookingResult is returned by book and free.
type BookingResult struct {
	Booking         *Booking `json:"booking,omitempty"`
	NewFloorVersion int64    `json:"new_floor_version"`
}
