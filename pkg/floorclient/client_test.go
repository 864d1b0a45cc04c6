package floorclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, UserID: "ann", Role: domain.RoleAdmin}, zap.NewNop())
}

func writeEnvelope(w http.ResponseWriter, status int, env transport.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func TestSendsIdentityAndDecodesData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ann", r.Header.Get("X-User-ID"))
		assert.Equal(t, "ADMIN", r.Header.Get("X-User-Role"))
		assert.Equal(t, "/api/v1/rooms/r1/book", r.URL.Path)

		var req transport.BookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Participants)

		writeEnvelope(w, http.StatusCreated, transport.NewSuccess(domain.BookingResult{
			Booking:         &domain.Booking{ID: "b1", RoomID: "r1", UserID: "ann", Participants: 3},
			NewFloorVersion: 12,
		}, nil))
	})

	res, err := c.Book(context.Background(), "r1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.NewFloorVersion)
	assert.Equal(t, "b1", res.Booking.ID)
	assert.Equal(t, domain.RoleAdmin, c.Role())
}

func TestFieldConflictRoundTrip(t *testing.T) {
	serverErr := domain.ErrFieldConflict.WithDetails(&domain.FieldConflict{
		ServerFields:   map[string]interface{}{"name": "Borealis"},
		ClientFields:   map[string]interface{}{"name": "Cygnus"},
		CurrentVersion: 9,
	})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict,
			transport.NewError(string(serverErr.Code), serverErr.Message, serverErr.Details).WithReason(serverErr.Reason))
	})

	_, err := c.UpdateRoom(context.Background(), "r1", transport.UpdateRoomRequest{LastSeenVersion: 4})
	require.ErrorIs(t, err, domain.ErrFieldConflict)
	assert.False(t, IsTransient(err))

	dErr, ok := domain.AsError(err)
	require.True(t, ok)
	details, ok := dErr.Details.(*domain.FieldConflict)
	require.True(t, ok)
	assert.Equal(t, int64(9), details.CurrentVersion)
	assert.Equal(t, []string{"name"}, details.Fields())
}

func TestOccupiedAndGoneDetails(t *testing.T) {
	var next transport.Envelope
	var status int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, status, next)
	})

	status = http.StatusConflict
	next = transport.NewError(string(domain.ErrCodeConflict), domain.ErrRoomOccupied.Message,
		domain.OccupiedDetails{RoomID: "r1", IsBooked: true, CurrentVersion: 3}).WithReason(domain.ReasonOccupied)
	_, err := c.DeleteRoom(context.Background(), "r1", false)
	require.ErrorIs(t, err, domain.ErrRoomOccupied)
	dErr, _ := domain.AsError(err)
	assert.Equal(t, int64(3), dErr.Details.(*domain.OccupiedDetails).CurrentVersion)

	status = http.StatusGone
	next = transport.NewError(string(domain.ErrCodeGone), domain.ErrRoomGone.Message,
		domain.GoneDetails{RoomID: "r1", RoomDeleted: true, CurrentVersion: 4}).WithReason(domain.ReasonDeleted)
	_, err = c.UpdateRoom(context.Background(), "r1", transport.UpdateRoomRequest{})
	require.ErrorIs(t, err, domain.ErrRoomGone)
	dErr, _ = domain.AsError(err)
	assert.True(t, dErr.Details.(*domain.GoneDetails).RoomDeleted)

	status = http.StatusForbidden
	next = transport.NewError(string(domain.ErrCodeForbidden), domain.ErrNotBookingOwner.Message, nil)
	_, err = c.Free(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrNotBookingOwner)
}

func TestServerFailuresAreTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusServiceUnavailable, transport.NewError("UNAVAILABLE", "dependencies unhealthy", nil))
	})
	err := c.Health(context.Background())
	assert.True(t, IsTransient(err))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})
	_, err = c.Live(context.Background())
	assert.True(t, IsTransient(err))
}

func TestUnreachableServerIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Token: "t", Role: domain.RoleEmployee}, zap.NewNop())
	_, err := c.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestPlainTextRejectionsBecomeDomainErrors(t *testing.T) {
	var status int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(http.StatusText(status)))
	})

	status = http.StatusNotFound
	_, err := c.Free(context.Background(), "x/bad")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	dErr, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeNotFound, dErr.Code)
	assert.Equal(t, "Not Found", dErr.Message)

	status = http.StatusMethodNotAllowed
	_, err = c.DeleteRoom(context.Background(), "r1", false)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	status = http.StatusRequestEntityTooLarge
	_, err = c.CreateRoom(context.Background(), transport.CreateRoomRequest{Name: "Atlas"})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestRetryableStatusesAreTransient(t *testing.T) {
	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, status, transport.NewError("RATE_LIMITED", "slow down", nil))
		})
		_, err := c.Book(context.Background(), "r1", 2)
		assert.True(t, IsTransient(err), "status %d", status)
		_, isDomain := domain.AsError(err)
		assert.False(t, isDomain, "status %d", status)

		c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, err = c.Free(context.Background(), "r1")
		assert.True(t, IsTransient(err), "status %d", status)
	}
}
