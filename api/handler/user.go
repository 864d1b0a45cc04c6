package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/pkg/httpcontext"
	userUC "github.com/fastygo/floorplan/usecase/user"
)

type UserHandler struct {
	baseHandler
	uc *userUC.UseCase
}

func NewUserHandler(uc *userUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Register the caller on first login
// @Tags users
// @Router /api/v1/users/enroll [post]
func (h *UserHandler) Enroll(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	var req transport.EnrollRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := transport.Decode(body, &req); err != nil {
			h.respondError(ctx, stdCtx, err)
			return
		}
	}

	user, err := h.uc.Enroll(stdCtx, actor, req.Name)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user)
}

// @Summary Caller's profile and watermark
// @Tags users
// @Router /api/v1/users/me [get]
func (h *UserHandler) Profile(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	user, err := h.uc.Profile(stdCtx, actor.UserID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user)
}
