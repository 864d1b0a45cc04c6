package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/internal/infrastructure/buffer"
	"github.com/fastygo/floorplan/pkg/floorclient"
)

// Connectivity abstracts the connection monitor functionality.
type Connectivity interface {
	IsOnline() bool
}

// ErrQueued is matched by QueuedError: the call was stored for later replay.
var ErrQueued = errors.New("queued until the server is reachable")

// ErrPlaceholderDropped means the queued create behind a local:<ref> room id
// was rejected, so there is no room to act on.
var ErrPlaceholderDropped = domain.NewError(domain.ErrCodeGone, "the queued room this action referred to was never created")

// QueuedError reports a pending action. LocalRef is set for queued creates;
// later calls may target the new room as "local:<LocalRef>".
type QueuedError struct {
	ActionID string
	LocalRef string
}

func (e *QueuedError) Error() string {
	if e.LocalRef != "" {
		return fmt.Sprintf("%s: action %s (room %s%s)", ErrQueued, e.ActionID, buffer.LocalRefPrefix, e.LocalRef)
	}
	return fmt.Sprintf("%s: action %s", ErrQueued, e.ActionID)
}

func (e *QueuedError) Is(target error) bool {
	return target == ErrQueued
}

// Gateway is the single path for mutating calls on the client. While the
// server is unreachable, or older actions are still queued, calls are appended
// to the queue instead of sent, so the server always sees them in order.
type Gateway struct {
	store      *buffer.Store
	dispatcher *Dispatcher
	monitor    Connectivity
	onQueued   func()
	logger     *zap.Logger
}

func NewGateway(store *buffer.Store, dispatcher *Dispatcher, monitor Connectivity, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		store:      store,
		dispatcher: dispatcher,
		monitor:    monitor,
		logger:     logger,
	}
}

// OnQueued registers fn to run after an action is queued while the server
// looks reachable, so a replay can pick it up without waiting for the schedule.
func (g *Gateway) OnQueued(fn func()) {
	g.onQueued = fn
}

// CreateRoom creates a room. localRef names the room for later queued calls;
// one is generated when empty.
func (g *Gateway) CreateRoom(ctx context.Context, req transport.CreateRoomRequest, localRef string) (Outcome, error) {
	if localRef == "" {
		localRef = uuid.NewString()[:8]
	}
	return g.submit(ctx, buffer.OperationCreateRoom, "", localRef, req)
}

func (g *Gateway) UpdateRoom(ctx context.Context, roomID string, req transport.UpdateRoomRequest) (Outcome, error) {
	return g.submit(ctx, buffer.OperationUpdateRoom, roomID, "", req)
}

func (g *Gateway) DeleteRoom(ctx context.Context, roomID string, force bool) (Outcome, error) {
	return g.submit(ctx, buffer.OperationDeleteRoom, roomID, "", DeletePayload{Force: force})
}

func (g *Gateway) Book(ctx context.Context, roomID string, participants int) (Outcome, error) {
	return g.submit(ctx, buffer.OperationBook, roomID, "", transport.BookRequest{Participants: participants})
}

func (g *Gateway) Free(ctx context.Context, roomID string) (Outcome, error) {
	return g.submit(ctx, buffer.OperationFree, roomID, "", struct{}{})
}

func (g *Gateway) submit(ctx context.Context, operation, roomID, localRef string, payload interface{}) (Outcome, error) {
	if g.store == nil || g.dispatcher == nil {
		return Outcome{}, fmt.Errorf("gateway not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, err
	}
	action := buffer.Action{
		Operation: operation,
		RoomID:    roomID,
		LocalRef:  localRef,
		Payload:   body,
	}

	pending, err := g.store.Size()
	if err != nil {
		return Outcome{}, err
	}
	online := g.monitor == nil || g.monitor.IsOnline()

	if online && pending == 0 {
		out, err := g.send(ctx, action)
		if err == nil || !floorclient.IsTransient(err) {
			return out, err
		}
		g.logger.Warn("immediate send failed, queueing", zap.String("operation", operation), zap.Error(err))
	}

	stored, err := g.store.Append(action)
	if err != nil {
		return Outcome{}, err
	}
	g.logger.Info("action queued",
		zap.String("action_id", stored.ID),
		zap.String("operation", operation),
		zap.String("room_id", roomID),
		zap.Int("pending", pending+1))
	if online && g.onQueued != nil {
		g.onQueued()
	}
	return Outcome{}, &QueuedError{ActionID: stored.ID, LocalRef: localRef}
}

func (g *Gateway) send(ctx context.Context, action buffer.Action) (Outcome, error) {
	resolved, err := resolveRoom(g.store, action)
	if err != nil {
		return Outcome{}, err
	}
	out, err := g.dispatcher.Execute(ctx, resolved)
	if err != nil {
		return Outcome{}, err
	}
	if err := recordOutcome(g.store, resolved, out); err != nil {
		g.logger.Warn("failed to record outcome locally", zap.Error(err))
	}
	return out, nil
}

// resolveRoom rewrites a local:<ref> room id to the id the server assigned.
func resolveRoom(store *buffer.Store, action buffer.Action) (buffer.Action, error) {
	ref, ok := action.TargetsLocalRef()
	if !ok {
		return action, nil
	}
	binding, found, err := store.Ref(ref)
	if err != nil {
		return action, err
	}
	if !found || binding.Dropped || binding.RoomID == "" {
		return action, ErrPlaceholderDropped
	}
	action.RoomID = binding.RoomID
	return action, nil
}

// recordOutcome advances the local watermark and binds placeholders.
func recordOutcome(store *buffer.Store, action buffer.Action, out Outcome) error {
	if action.LocalRef != "" && out.RoomID != "" {
		if err := store.BindRef(action.LocalRef, buffer.RefBinding{RoomID: out.RoomID}); err != nil {
			return err
		}
	}
	if out.NewFloorVersion > 0 {
		return store.SetWatermark(out.NewFloorVersion)
	}
	return nil
}
