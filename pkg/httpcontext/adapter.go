package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/floorplan/domain"
	appLogger "github.com/fastygo/floorplan/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"
	KeyActor      Key = "actor"
)

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout: timeout,
	}
}

// Attach creates a context with timeout derived from the adapter and enriches
// it with request metadata and the caller's identity.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := getRequestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set("X-Request-ID", reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}
	if actor, ok := ActorFromRequest(ctx); ok {
		stdCtx = WithActor(stdCtx, actor)
		stdCtx = appLogger.ContextWithCaller(stdCtx, actor.UserID, string(actor.Role))
	}

	return stdCtx, cancel
}

// ActorFromRequest reads the identity headers set by the auth middleware.
func ActorFromRequest(ctx *fasthttp.RequestCtx) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	userID := strings.TrimSpace(string(ctx.Request.Header.Peek("X-User-ID")))
	if userID == "" {
		return domain.Actor{}, false
	}
	role := domain.Role(strings.ToUpper(strings.TrimSpace(string(ctx.Request.Header.Peek("X-User-Role")))))
	return domain.Actor{UserID: userID, Role: role}, true
}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, KeyActor, actor)
}

// Actor returns the caller attached by Attach.
func Actor(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	actor, ok := ctx.Value(KeyActor).(domain.Actor)
	return actor, ok
}

func getRequestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if header := string(ctx.Request.Header.Peek("X-Request-ID")); strings.TrimSpace(header) != "" {
		return header
	}
	return uuid.NewString()
}
