package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/internal/infrastructure/buffer"
	"github.com/fastygo/floorplan/pkg/floorclient"
)

type apiCall struct {
	op     string
	roomID string
	req    interface{}
}

// fakeAPI answers like the server would, except for errors scripted per operation.
type fakeAPI struct {
	mu       sync.Mutex
	role     domain.Role
	calls    []apiCall
	failures map[string][]error
	rooms    int
	version  int64
}

func newFakeAPI(role domain.Role) *fakeAPI {
	return &fakeAPI{role: role, failures: make(map[string][]error), version: domain.InitialVersion}
}

func (f *fakeAPI) fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeAPI) record(op, roomID string, req interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{op: op, roomID: roomID, req: req})
	if queued := f.failures[op]; len(queued) > 0 {
		f.failures[op] = queued[1:]
		return queued[0]
	}
	f.version++
	return nil
}

func (f *fakeAPI) callsFor(op string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) current() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *fakeAPI) CreateRoom(ctx context.Context, req transport.CreateRoomRequest) (*floorclient.RoomResult, error) {
	if err := f.record(buffer.OperationCreateRoom, "", req); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms++
	return &floorclient.RoomResult{
		Room:            &domain.Room{ID: fmt.Sprintf("room-%d", f.rooms), Name: req.Name},
		NewFloorVersion: f.version,
	}, nil
}

func (f *fakeAPI) UpdateRoom(ctx context.Context, roomID string, req transport.UpdateRoomRequest) (*floorclient.RoomResult, error) {
	if err := f.record(buffer.OperationUpdateRoom, roomID, req); err != nil {
		return nil, err
	}
	return &floorclient.RoomResult{NewFloorVersion: f.current()}, nil
}

func (f *fakeAPI) DeleteRoom(ctx context.Context, roomID string, force bool) (*floorclient.RoomResult, error) {
	if err := f.record(buffer.OperationDeleteRoom, roomID, force); err != nil {
		return nil, err
	}
	return &floorclient.RoomResult{NewFloorVersion: f.current()}, nil
}

func (f *fakeAPI) Book(ctx context.Context, roomID string, participants int) (*domain.BookingResult, error) {
	if err := f.record(buffer.OperationBook, roomID, participants); err != nil {
		return nil, err
	}
	return &domain.BookingResult{NewFloorVersion: f.current()}, nil
}

func (f *fakeAPI) Free(ctx context.Context, roomID string) (*domain.BookingResult, error) {
	if err := f.record(buffer.OperationFree, roomID, nil); err != nil {
		return nil, err
	}
	return &domain.BookingResult{NewFloorVersion: f.current()}, nil
}

func (f *fakeAPI) Sync(ctx context.Context) (*domain.FloorView, error) {
	v := f.current()
	return &domain.FloorView{IsLive: true, CurrentVersion: v, UserVersion: v}, nil
}

func (f *fakeAPI) Role() domain.Role {
	return f.role
}

type switchableLink struct {
	online atomic.Bool
}

func (l *switchableLink) IsOnline() bool {
	return l.online.Load()
}

type harness struct {
	api      *fakeAPI
	link     *switchableLink
	store    *buffer.Store
	gateway  *Gateway
	replayer *Replayer
}

func newHarness(t *testing.T, role domain.Role, online bool) *harness {
	t.Helper()
	store, err := buffer.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	api := newFakeAPI(role)
	link := &switchableLink{}
	link.online.Store(online)
	dispatcher := NewAPIDispatcher(api)

	return &harness{
		api:      api,
		link:     link,
		store:    store,
		gateway:  NewGateway(store, dispatcher, link, zap.NewNop()),
		replayer: NewReplayer(store, dispatcher, api, link, zap.NewNop(), ReplayerConfig{Interval: time.Minute}),
	}
}

func (h *harness) queued(t *testing.T) []buffer.Action {
	t.Helper()
	actions, err := h.store.List()
	require.NoError(t, err)
	return actions
}

func (h *harness) watermark(t *testing.T) int64 {
	t.Helper()
	v, err := h.store.Watermark()
	require.NoError(t, err)
	return v
}

func unavailable() error {
	return fmt.Errorf("%w: connection refused", floorclient.ErrUnavailable)
}
