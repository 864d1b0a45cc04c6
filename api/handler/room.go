package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/pkg/httpcontext"
	roomUC "github.com/fastygo/floorplan/usecase/room"
)

type RoomHandler struct {
	baseHandler
	uc *roomUC.UseCase
}

func NewRoomHandler(uc *roomUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Create a room
// @Tags rooms
// @Accept json
// @Router /api/v1/rooms [post]
func (h *RoomHandler) Create(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	var req transport.CreateRoomRequest
	if err := transport.Decode(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	result, err := h.uc.Create(stdCtx, actor, roomUC.CreateInput{
		Name:     req.Name,
		Type:     req.Type,
		Capacity: req.Capacity,
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, result)
}

// @Summary Update a room
// @Tags rooms
// @Accept json
// @Router /api/v1/rooms/{id} [put]
func (h *RoomHandler) Update(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	var req transport.UpdateRoomRequest
	if err := transport.Decode(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	result, err := h.uc.Update(stdCtx, actor, pathParam(ctx, "id"), roomUC.UpdateInput{
		Updates:         req.Updates,
		Force:           req.Force,
		LastSeenVersion: req.LastSeenVersion,
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}

// @Summary Delete a room
// @Tags rooms
// @Router /api/v1/rooms/{id} [delete]
func (h *RoomHandler) Delete(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	force := ctx.QueryArgs().GetBool("force")
	result, err := h.uc.Delete(stdCtx, actor, pathParam(ctx, "id"), force)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}
