package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/internal/infrastructure/buffer"
	"github.com/fastygo/floorplan/pkg/floorclient"
)

// API is the subset of the floor client the offline protocol drives.
type API interface {
	CreateRoom(ctx context.Context, req transport.CreateRoomRequest) (*floorclient.RoomResult, error)
	UpdateRoom(ctx context.Context, roomID string, req transport.UpdateRoomRequest) (*floorclient.RoomResult, error)
	DeleteRoom(ctx context.Context, roomID string, force bool) (*floorclient.RoomResult, error)
	Book(ctx context.Context, roomID string, participants int) (*domain.BookingResult, error)
	Free(ctx context.Context, roomID string) (*domain.BookingResult, error)
	Sync(ctx context.Context) (*domain.FloorView, error)
	Role() domain.Role
}

// Outcome is what a successfully executed action produced.
type Outcome struct {
	RoomID          string `json:"room_id,omitempty"`
	NewFloorVersion int64  `json:"new_floor_version"`
}

type CommandHandler func(ctx context.Context, action buffer.Action) (Outcome, error)

// Dispatcher routes actions to the handler registered for their operation.
// Direct sends and replays go through the same handlers.
type Dispatcher struct {
	handlers map[string]CommandHandler
	mu       sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]CommandHandler)}
}

func (d *Dispatcher) RegisterCommand(operation string, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[operation] = handler
}

func (d *Dispatcher) Execute(ctx context.Context, action buffer.Action) (Outcome, error) {
	d.mu.RLock()
	handler, ok := d.handlers[action.Operation]
	d.mu.RUnlock()
	if !ok {
		return Outcome{}, domain.NewError(domain.ErrCodeInvalid, fmt.Sprintf("command handler %s not registered", action.Operation))
	}
	return handler(ctx, action)
}

// DeletePayload is the queued body of a room deletion.
type DeletePayload struct {
	Force bool `json:"force"`
}

// NewAPIDispatcher registers a handler per queueable operation against api.
func NewAPIDispatcher(api API) *Dispatcher {
	d := NewDispatcher()

	d.RegisterCommand(buffer.OperationCreateRoom, func(ctx context.Context, a buffer.Action) (Outcome, error) {
		var req transport.CreateRoomRequest
		if err := decodePayload(a, &req); err != nil {
			return Outcome{}, err
		}
		res, err := api.CreateRoom(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		out := Outcome{NewFloorVersion: res.NewFloorVersion}
		if res.Room != nil {
			out.RoomID = res.Room.ID
		}
		return out, nil
	})

	d.RegisterCommand(buffer.OperationUpdateRoom, func(ctx context.Context, a buffer.Action) (Outcome, error) {
		var req transport.UpdateRoomRequest
		if err := decodePayload(a, &req); err != nil {
			return Outcome{}, err
		}
		res, err := api.UpdateRoom(ctx, a.RoomID, req)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{RoomID: a.RoomID, NewFloorVersion: res.NewFloorVersion}, nil
	})

	d.RegisterCommand(buffer.OperationDeleteRoom, func(ctx context.Context, a buffer.Action) (Outcome, error) {
		var req DeletePayload
		if err := decodePayload(a, &req); err != nil {
			return Outcome{}, err
		}
		res, err := api.DeleteRoom(ctx, a.RoomID, req.Force)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{RoomID: a.RoomID, NewFloorVersion: res.NewFloorVersion}, nil
	})

	d.RegisterCommand(buffer.OperationBook, func(ctx context.Context, a buffer.Action) (Outcome, error) {
		var req transport.BookRequest
		if err := decodePayload(a, &req); err != nil {
			return Outcome{}, err
		}
		res, err := api.Book(ctx, a.RoomID, req.Participants)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{RoomID: a.RoomID, NewFloorVersion: res.NewFloorVersion}, nil
	})

	d.RegisterCommand(buffer.OperationFree, func(ctx context.Context, a buffer.Action) (Outcome, error) {
		res, err := api.Free(ctx, a.RoomID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{RoomID: a.RoomID, NewFloorVersion: res.NewFloorVersion}, nil
	})

	return d
}

func decodePayload(a buffer.Action, dst interface{}) error {
	if err := json.Unmarshal(a.Payload, dst); err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "corrupt queued payload", err)
	}
	return nil
}
