package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/pkg/httpcontext"
	appLogger "github.com/fastygo/floorplan/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	stdCtx, cancel := context.WithCancel(context.Background())
	if actor, ok := httpcontext.ActorFromRequest(ctx); ok {
		stdCtx = httpcontext.WithActor(stdCtx, actor)
	}
	return stdCtx, cancel
}

// actor returns the authenticated caller or responds 401.
func (h baseHandler) actor(ctx *fasthttp.RequestCtx, stdCtx context.Context) (domain.Actor, bool) {
	actor, ok := httpcontext.Actor(stdCtx)
	if !ok || actor.UserID == "" {
		h.respondError(ctx, stdCtx, domain.ErrUnauthorized)
		return domain.Actor{}, false
	}
	return actor, true
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

// respondError writes the error envelope. Conflict and gone errors carry their
// details in meta so clients can render a resolution prompt.
func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	envelope := transport.NewError(code, err.Error(), nil)
	if dErr, ok := domain.AsError(err); ok {
		envelope = transport.NewError(code, dErr.Message, dErr.Details).WithReason(dErr.Reason)
	}
	if status >= http.StatusInternalServerError {
		appLogger.FromContext(stdCtx, h.logger).Error("request failed",
			zap.ByteString("path", ctx.Path()),
			zap.Error(err))
		envelope.Error = "internal server error"
	}
	h.respondJSON(ctx, status, envelope)
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	case domain.IsDomainError(err, domain.ErrCodeGone):
		return http.StatusGone, string(domain.ErrCodeGone)
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	if v, ok := ctx.UserValue(name).(string); ok {
		return v
	}
	return ""
}

// queryInt parses an optional integer query argument.
func queryInt(ctx *fasthttp.RequestCtx, name string, fallback int) (int, error) {
	raw := string(ctx.QueryArgs().Peek(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.WrapError(domain.ErrCodeInvalid, name+" must be an integer", err)
	}
	return v, nil
}
