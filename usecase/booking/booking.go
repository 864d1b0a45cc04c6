package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

// Floor is the part of the floor use case bookings depend on.
type Floor interface {
	Mutate(ctx context.Context, operation string, actor domain.Actor, fn repository.MutateFunc) (int64, error)
	RoomUsage(ctx context.Context, userID string) ([]domain.RoomUsage, error)
}

type UseCase struct {
	floor  Floor
	logger *zap.Logger
}

func New(floor Floor, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		floor:  floor,
		logger: logger,
	}
}

// Book opens a booking on an ACTIVE room. The status is re-read inside the
// transaction, so of two racing bookings only one can succeed.
func (uc *UseCase) Book(ctx context.Context, actor domain.Actor, roomID string, participants int) (*domain.BookingResult, error) {
	if roomID == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "room id is required")
	}
	if participants <= 0 {
		return nil, domain.ErrInvalidParticipants
	}

	var booking *domain.Booking
	version, err := uc.floor.Mutate(ctx, "booking.book", actor, func(ctx context.Context, tx repository.FloorTx) error {
		room, err := tx.Room(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Status != domain.RoomActive {
			return domain.ErrRoomUnavailable.WithDetails(domain.OccupiedDetails{
				RoomID:         room.ID,
				IsBooked:       room.IsBooked(),
				CurrentVersion: tx.Floor().CurrentVersion,
			})
		}

		room.Status = domain.RoomBooked
		if err := tx.UpdateRoom(ctx, room); err != nil {
			return err
		}
		booking = &domain.Booking{
			RoomID:       room.ID,
			UserID:       actor.UserID,
			Participants: participants,
			StartTime:    time.Now(),
		}
		return tx.CreateBooking(ctx, booking)
	})
	if err != nil {
		uc.logger.Info("booking rejected", zap.String("room_id", roomID), zap.String("user_id", actor.UserID), zap.Error(err))
		return nil, err
	}
	return &domain.BookingResult{Booking: booking, NewFloorVersion: version}, nil
}

// Free closes the room's active booking. Only the booking's owner or an
// unrestricted actor may free a room.
func (uc *UseCase) Free(ctx context.Context, actor domain.Actor, roomID string) (*domain.BookingResult, error) {
	if roomID == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "room id is required")
	}

	var closed *domain.Booking
	version, err := uc.floor.Mutate(ctx, "booking.free", actor, func(ctx context.Context, tx repository.FloorTx) error {
		booking, err := tx.ActiveBooking(ctx, roomID)
		if err != nil {
			return err
		}
		if booking.UserID != actor.UserID && !actor.Role.Unrestricted() {
			return domain.ErrNotBookingOwner
		}

		end := time.Now()
		if err := tx.CloseBooking(ctx, booking.ID, end); err != nil {
			return err
		}
		booking.EndTime = &end

		room, err := tx.Room(ctx, roomID)
		if err != nil {
			return err
		}
		room.Status = domain.RoomActive
		if err := tx.UpdateRoom(ctx, room); err != nil {
			return err
		}
		closed = booking
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNoActiveBooking) {
			uc.logger.Info("free rejected", zap.String("room_id", roomID), zap.String("user_id", actor.UserID), zap.Error(err))
		}
		return nil, err
	}
	return &domain.BookingResult{Booking: closed, NewFloorVersion: version}, nil
}
