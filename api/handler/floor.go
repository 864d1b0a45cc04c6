package handler

import (
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/pkg/httpcontext"
	floorUC "github.com/fastygo/floorplan/usecase/floor"
)

type FloorHandler struct {
	baseHandler
	uc *floorUC.UseCase
}

func NewFloorHandler(uc *floorUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *FloorHandler {
	return &FloorHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Floor as seen by the caller (live, or the snapshot at their watermark)
// @Tags floor
// @Router /api/v1/floor [get]
func (h *FloorHandler) Dashboard(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	view, err := h.uc.View(stdCtx, actor.UserID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, view)
}

// @Summary Live floor snapshot
// @Tags floor
// @Router /api/v1/floor/live [get]
func (h *FloorHandler) Live(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	if _, ok := h.actor(ctx, stdCtx); !ok {
		return
	}

	snapshot, err := h.uc.Live(stdCtx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, snapshot)
}

// @Summary Move the caller's watermark to the current version
// @Tags floor
// @Router /api/v1/floor/sync [post]
func (h *FloorHandler) Sync(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	view, err := h.uc.Sync(stdCtx, actor)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, view)
}

// @Summary Archived floor versions, newest first
// @Tags floor
// @Router /api/v1/floor/history [get]
func (h *FloorHandler) History(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}
	if !actor.Role.Privileged() {
		h.respondError(ctx, stdCtx, domain.ErrPrivilegedOnly)
		return
	}

	limit, err := queryInt(ctx, "limit", 20)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	entries, err := h.uc.History(stdCtx, limit)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, entries)
}

// @Summary Archived floor snapshot at a version
// @Tags floor
// @Router /api/v1/floor/history/{version} [get]
func (h *FloorHandler) Snapshot(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}
	if !actor.Role.Privileged() {
		h.respondError(ctx, stdCtx, domain.ErrPrivilegedOnly)
		return
	}

	version, err := strconv.ParseInt(pathParam(ctx, "version"), 10, 64)
	if err != nil || version <= 0 {
		h.respondError(ctx, stdCtx, domain.NewError(domain.ErrCodeInvalid, "version must be a positive integer"))
		return
	}
	entry, err := h.uc.SnapshotAt(stdCtx, version)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, entry)
}
