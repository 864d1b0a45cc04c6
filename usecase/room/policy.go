package room

import (
	"context"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/repository"
)

// UpdateInput is a room update together with the writer's view of the floor.
type UpdateInput struct {
	Updates domain.RoomUpdate
	// Force lets unrestricted writers edit occupied rooms.
	Force bool
	// LastSeenVersion is the floor version a restricted writer last observed.
	LastSeenVersion int64
}

// WritePolicy is the per-tier capability set applied to room updates.
type WritePolicy interface {
	// Validate rejects updates the tier may never issue. It runs before any transaction opens.
	Validate(in UpdateInput) error
	// Check decides, inside the transaction, whether the update may be applied to room.
	Check(ctx context.Context, tx repository.FloorTx, room *domain.Room, in UpdateInput) error
}

// PolicyFor selects the write policy for a role.
func PolicyFor(role domain.Role) (WritePolicy, error) {
	switch {
	case role.Unrestricted():
		return unrestrictedPolicy{}, nil
	case role.Restricted():
		return restrictedPolicy{}, nil
	default:
		return nil, domain.ErrNoWriteAuthority
	}
}

// unrestrictedPolicy may edit every field and override occupancy.
type unrestrictedPolicy struct{}

func (unrestrictedPolicy) Validate(in UpdateInput) error {
	u := in.Updates
	if u.IsEmpty() {
		return domain.ErrEmptyUpdate
	}
	if u.Status != nil {
		if *u.Status == domain.RoomBooked {
			return domain.ErrBookedStatusWrite
		}
		if !u.Status.Valid() {
			return domain.NewError(domain.ErrCodeInvalid, "unknown room status")
		}
	}
	if u.Capacity != nil && *u.Capacity <= 0 {
		return domain.ErrInvalidCapacity
	}
	return validateText(u)
}

func (unrestrictedPolicy) Check(ctx context.Context, tx repository.FloorTx, room *domain.Room, in UpdateInput) error {
	if !room.IsBooked() || in.Force {
		return nil
	}
	if s := in.Updates.Status; s != nil && *s != domain.RoomBooked {
		return domain.ErrOccupiedStatus
	}
	return domain.ErrRoomOccupied.WithDetails(domain.OccupiedDetails{
		RoomID:         room.ID,
		IsBooked:       true,
		CurrentVersion: tx.Floor().CurrentVersion,
	})
}

// restrictedPolicy edits name and type only and must prove its view is not stale.
type restrictedPolicy struct{}

func (restrictedPolicy) Validate(in UpdateInput) error {
	u := in.Updates
	if u.IsEmpty() {
		return domain.ErrEmptyUpdate
	}
	if u.Capacity != nil || u.Status != nil {
		return domain.ErrRestrictedField
	}
	if in.LastSeenVersion <= 0 {
		return domain.ErrLastSeenRequired
	}
	return validateText(u)
}

func (restrictedPolicy) Check(ctx context.Context, tx repository.FloorTx, room *domain.Room, in UpdateInput) error {
	if room.IsBooked() {
		return domain.ErrRestrictedOccupied
	}

	current := tx.Floor().CurrentVersion
	if in.LastSeenVersion == current {
		return nil
	}

	var original *domain.RoomView
	entry, err := tx.SnapshotAt(ctx, in.LastSeenVersion)
	switch {
	case err == nil:
		original, _ = entry.Data.Room(room.ID)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
	default:
		return err
	}

	server, client := DiffFields(room, original, in.Updates)
	if len(server) == 0 {
		return nil
	}
	serverRoom := *room
	return domain.ErrFieldConflict.WithDetails(domain.FieldConflict{
		ServerFields:   server,
		ClientFields:   client,
		ServerRoom:     &serverRoom,
		CurrentVersion: current,
	})
}

// DiffFields compares, for every field the update sets, the room's current value
// with the value the writer last saw (original) and the value the writer wants.
// A field conflicts only when someone else changed it since the writer looked
// and the writer is not setting it to that same value. A nil original means the
// writer never saw the room, so every differing field conflicts.
func DiffFields(current *domain.Room, original *domain.RoomView, update domain.RoomUpdate) (server, client map[string]interface{}) {
	server = make(map[string]interface{})
	client = make(map[string]interface{})
	for field, intended := range update.Values() {
		serverValue, _ := current.FieldValue(field)
		originalValue, seen := original.FieldValue(field)
		if seen && serverValue == originalValue {
			continue
		}
		if serverValue == intended {
			continue
		}
		server[field] = serverValue
		client[field] = intended
	}
	return server, client
}

func validateText(u domain.RoomUpdate) error {
	if u.Name != nil && *u.Name == "" {
		return domain.NewError(domain.ErrCodeInvalid, "name must be a non-empty string")
	}
	if u.Type != nil && *u.Type == "" {
		return domain.NewError(domain.ErrCodeInvalid, "type must be a non-empty string")
	}
	return nil
}
