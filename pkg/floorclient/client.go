// Package floorclient is the HTTP client for the floor plan API. Server
// rejections come back as *domain.Error values carrying the same code, reason
// and details the server produced; unreachable servers and retryable statuses
// wrap ErrUnavailable.
package floorclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
)

// ErrUnavailable marks failures worth retrying later: the server could not be
// reached, or answered 408, 429 or a 5xx status.
var ErrUnavailable = errors.New("floor server unavailable")

// IsTransient reports whether err should keep an action queued.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

type Config struct {
	BaseURL string
	// Token is sent as a bearer token. Without it the identity headers are sent
	// directly, which only works against a server running without JWT_SECRET.
	Token   string
	UserID  string
	Role    domain.Role
	Timeout time.Duration
}

// RoomResult mirrors the server's room write response.
type RoomResult struct {
	Room            *domain.Room `json:"room,omitempty"`
	NewFloorVersion int64        `json:"new_floor_version"`
}

type Client struct {
	http   *resty.Client
	role   domain.Role
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	} else {
		httpClient.SetHeader("X-User-ID", cfg.UserID)
		httpClient.SetHeader("X-User-Role", string(cfg.Role))
	}

	return &Client{
		http:   httpClient,
		role:   cfg.Role,
		logger: logger,
	}
}

// Role is the authority tier requests are sent with.
func (c *Client) Role() domain.Role {
	return c.role
}

// Health succeeds when the server and its required dependencies are up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

func (c *Client) Enroll(ctx context.Context, name string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/enroll", transport.EnrollRequest{Name: name}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Dashboard returns the floor as of the caller's watermark.
func (c *Client) Dashboard(ctx context.Context) (*domain.FloorView, error) {
	var view domain.FloorView
	if err := c.do(ctx, http.MethodGet, "/api/v1/floor", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) Live(ctx context.Context) (*domain.FloorSnapshot, error) {
	var snapshot domain.FloorSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/floor/live", nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Sync moves the caller's watermark to the current version.
func (c *Client) Sync(ctx context.Context) (*domain.FloorView, error) {
	var view domain.FloorView
	if err := c.do(ctx, http.MethodPost, "/api/v1/floor/sync", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	path := "/api/v1/floor/history?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Recommendations(ctx context.Context, capacity int) ([]domain.Recommendation, error) {
	var recs []domain.Recommendation
	path := "/api/v1/recommendations?capacity=" + strconv.Itoa(capacity)
	if err := c.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) CreateRoom(ctx context.Context, req transport.CreateRoomRequest) (*RoomResult, error) {
	var result RoomResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateRoom(ctx context.Context, roomID string, req transport.UpdateRoomRequest) (*RoomResult, error) {
	var result RoomResult
	if err := c.do(ctx, http.MethodPut, "/api/v1/rooms/"+roomID, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomID string, force bool) (*RoomResult, error) {
	var result RoomResult
	path := "/api/v1/rooms/" + roomID
	if force {
		path += "?force=true"
	}
	if err := c.do(ctx, http.MethodDelete, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Book(ctx context.Context, roomID string, participants int) (*domain.BookingResult, error) {
	var result domain.BookingResult
	req := transport.BookRequest{Participants: participants}
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms/"+roomID+"/book", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Free(ctx context.Context, roomID string) (*domain.BookingResult, error) {
	var result domain.BookingResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms/"+roomID+"/free", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("floor api unreachable", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var env transport.RawEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		// Router 404/405s and proxy pages carry no envelope; the status alone decides.
		if resp.IsError() {
			return decodeError(resp.StatusCode(), transport.RawEnvelope{})
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	if resp.IsError() {
		return decodeError(resp.StatusCode(), env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

// decodeError rebuilds the server's domain error from an error envelope.
func decodeError(status int, env transport.RawEnvelope) error {
	var message string
	if len(env.Error) > 0 {
		if err := json.Unmarshal(env.Error, &message); err != nil {
			message = string(env.Error)
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}

	if retryableStatus(status) {
		return fmt.Errorf("%w: %s (status %d)", ErrUnavailable, message, status)
	}

	code := domain.ErrorCode(env.Code)
	if code == "" {
		code = codeForStatus(status)
	}
	dErr := &domain.Error{Code: code, Reason: env.Reason, Message: message}
	if len(env.Meta) == 0 || string(env.Meta) == "null" {
		return dErr
	}

	switch {
	case code == domain.ErrCodeConflict && env.Reason == domain.ReasonFields:
		var details domain.FieldConflict
		if err := json.Unmarshal(env.Meta, &details); err == nil {
			dErr.Details = &details
		}
	case code == domain.ErrCodeConflict:
		var details domain.OccupiedDetails
		if err := json.Unmarshal(env.Meta, &details); err == nil {
			dErr.Details = &details
		}
	case code == domain.ErrCodeGone:
		var details domain.GoneDetails
		if err := json.Unmarshal(env.Meta, &details); err == nil {
			dErr.Details = &details
		}
	default:
		dErr.Details = env.Meta
	}
	return dErr
}

// retryableStatus reports statuses that say "not now" rather than "never".
func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= http.StatusInternalServerError
}

func codeForStatus(status int) domain.ErrorCode {
	switch status {
	case http.StatusConflict:
		return domain.ErrCodeConflict
	case http.StatusGone:
		return domain.ErrCodeGone
	case http.StatusForbidden:
		return domain.ErrCodeForbidden
	case http.StatusUnauthorized:
		return domain.ErrCodeUnauthorized
	case http.StatusNotFound:
		return domain.ErrCodeNotFound
	default:
		return domain.ErrCodeInvalid
	}
}
