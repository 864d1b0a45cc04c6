// Package room is the room lifecycle engine: creation, tiered updates with
// conflict detection, and deletion. Every write is a single floor mutation.
package room

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

// Mutator runs a closure inside the floor's archive, mutate and bump transaction.
type Mutator interface {
	Mutate(ctx context.Context, operation string, actor domain.Actor, fn repository.MutateFunc) (int64, error)
}

// CreateInput describes a new room.
type CreateInput struct {
	Name     string
	Type     string
	Capacity int
}

// Result is a written room and the floor version that write produced.
type Result struct {
	Room            *domain.Room `json:"room,omitempty"`
	NewFloorVersion int64        `json:"new_floor_version"`
}

type UseCase struct {
	floor  Mutator
	logger *zap.Logger
}

func New(floor Mutator, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		floor:  floor,
		logger: logger,
	}
}

// Create adds an ACTIVE room. Only unrestricted writers may create rooms.
func (uc *UseCase) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*Result, error) {
	if !actor.Role.Unrestricted() {
		return nil, domain.ErrPrivilegedOnly
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.TrimSpace(in.Type)
	if in.Name == "" || in.Type == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "please provide name, type, and capacity")
	}
	if in.Capacity <= 0 {
		return nil, domain.ErrInvalidCapacity
	}

	room := &domain.Room{
		Name:     in.Name,
		Type:     in.Type,
		Capacity: in.Capacity,
		Status:   domain.RoomActive,
	}
	version, err := uc.floor.Mutate(ctx, "room.create", actor, func(ctx context.Context, tx repository.FloorTx) error {
		return tx.CreateRoom(ctx, room)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Room: room, NewFloorVersion: version}, nil
}

// Update applies in to the room under the write policy of the actor's tier.
func (uc *UseCase) Update(ctx context.Context, actor domain.Actor, roomID string, in UpdateInput) (*Result, error) {
	policy, err := PolicyFor(actor.Role)
	if err != nil {
		return nil, err
	}
	in.Updates = trimUpdate(in.Updates)
	if err := policy.Validate(in); err != nil {
		return nil, err
	}

	var updated *domain.Room
	version, err := uc.floor.Mutate(ctx, "room.update", actor, func(ctx context.Context, tx repository.FloorTx) error {
		room, err := loadLive(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if err := policy.Check(ctx, tx, room, in); err != nil {
			return err
		}

		// A forced status change on an occupied room ends its booking so the
		// status never disagrees with the booking table.
		if room.IsBooked() && in.Updates.Status != nil && *in.Updates.Status != domain.RoomBooked {
			booking, err := tx.ActiveBooking(ctx, room.ID)
			if err != nil && !errors.Is(err, domain.ErrNoActiveBooking) {
				return err
			}
			if booking != nil {
				if err := tx.CloseBooking(ctx, booking.ID, time.Now()); err != nil {
					return err
				}
			}
		}

		in.Updates.Apply(room)
		if err := tx.UpdateRoom(ctx, room); err != nil {
			return err
		}
		updated = room
		return nil
	})
	if err != nil {
		uc.logRejection("room update rejected", actor, roomID, err)
		return nil, err
	}
	return &Result{Room: updated, NewFloorVersion: version}, nil
}

// Delete removes a room and its bookings. A room missing from the current
// version yields a gone error carrying that version.
func (uc *UseCase) Delete(ctx context.Context, actor domain.Actor, roomID string, force bool) (*Result, error) {
	if !actor.Role.Unrestricted() {
		return nil, domain.ErrPrivilegedOnly
	}
	version, err := uc.floor.Mutate(ctx, "room.delete", actor, func(ctx context.Context, tx repository.FloorTx) error {
		room, err := loadLive(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.IsBooked() && !force {
			return domain.ErrRoomOccupied.WithDetails(domain.OccupiedDetails{
				RoomID:         room.ID,
				IsBooked:       true,
				CurrentVersion: tx.Floor().CurrentVersion,
			})
		}
		return tx.DeleteRoom(ctx, room.ID)
	})
	if err != nil {
		uc.logRejection("room delete rejected", actor, roomID, err)
		return nil, err
	}
	return &Result{NewFloorVersion: version}, nil
}

// loadLive reads the room inside the transaction, translating absence into gone.
func loadLive(ctx context.Context, tx repository.FloorTx, roomID string) (*domain.Room, error) {
	room, err := tx.Room(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil, domain.ErrRoomGone.WithDetails(domain.GoneDetails{
			RoomID:         roomID,
			RoomDeleted:    true,
			CurrentVersion: tx.Floor().CurrentVersion,
		})
	}
	return room, err
}

func trimUpdate(u domain.RoomUpdate) domain.RoomUpdate {
	if u.Name != nil {
		v := strings.TrimSpace(*u.Name)
		u.Name = &v
	}
	if u.Type != nil {
		v := strings.TrimSpace(*u.Type)
		u.Type = &v
	}
	return u
}

func (uc *UseCase) logRejection(msg string, actor domain.Actor, roomID string, err error) {
	if dErr, ok := domain.AsError(err); ok {
		uc.logger.Info(msg,
			zap.String("room_id", roomID),
			zap.String("actor", actor.UserID),
			zap.String("code", string(dErr.Code)),
			zap.String("reason", dErr.Reason))
		return
	}
	uc.logger.Error(msg, zap.String("room_id", roomID), zap.Error(err))
}
