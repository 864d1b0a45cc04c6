package repository

import (
	"context"
	"time"

	"github.com/fastygo/floorplan/domain"
)

// FloorTx exposes the reads and writes available inside a floor mutation.
// Every read observes the state of the running transaction.
type FloorTx interface {
	// Floor returns the locked floor row as it was before the mutation.
	Floor() domain.Floor
	Room(ctx context.Context, id string) (*domain.Room, error)
	CreateRoom(ctx context.Context, room *domain.Room) error
	UpdateRoom(ctx context.Context, room *domain.Room) error
	// DeleteRoom removes the room and cascades to its bookings.
	DeleteRoom(ctx context.Context, id string) error
	ActiveBooking(ctx context.Context, roomID string) (*domain.Booking, error)
	CreateBooking(ctx context.Context, booking *domain.Booking) error
	CloseBooking(ctx context.Context, bookingID string, at time.Time) error
	SnapshotAt(ctx context.Context, version int64) (*domain.HistoryEntry, error)
}

// MutateFunc performs one or more room/booking writes inside a floor mutation.
type MutateFunc func(ctx context.Context, tx FloorTx) error

// FloorStore is the authoritative floor state plus its version ledger.
type FloorStore interface {
	// EnsureFloor creates the floor at the initial version if it is absent.
	EnsureFloor(ctx context.Context, name string) (*domain.Floor, error)
	// Mutate archives the pre-mutation snapshot, runs fn, bumps the version by one
	// and moves the actor's watermark to the new version, all in one transaction.
	// It returns the new version. Nothing is written when any step fails.
	Mutate(ctx context.Context, actor domain.Actor, fn MutateFunc) (int64, error)
	// Read returns the current full snapshot straight from the store.
	Read(ctx context.Context) (*domain.FloorSnapshot, error)
	Version(ctx context.Context) (int64, error)
	SnapshotAt(ctx context.Context, version int64) (*domain.HistoryEntry, error)
	History(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	// RoomUsage lists ACTIVE rooms in creation order with the number of closed
	// bookings userID made in each.
	RoomUsage(ctx context.Context, userID string) ([]domain.RoomUsage, error)
}
