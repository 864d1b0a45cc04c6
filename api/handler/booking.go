package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/pkg/httpcontext"
	bookingUC "github.com/fastygo/floorplan/usecase/booking"
)

type BookingHandler struct {
	baseHandler
	uc *bookingUC.UseCase
}

func NewBookingHandler(uc *bookingUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Book a room
// @Tags bookings
// @Accept json
// @Router /api/v1/rooms/{id}/book [post]
func (h *BookingHandler) Book(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	var req transport.BookRequest
	if err := transport.Decode(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	result, err := h.uc.Book(stdCtx, actor, pathParam(ctx, "id"), req.Participants)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, result)
}

// @Summary Free a booked room
// @Tags bookings
// @Router /api/v1/rooms/{id}/free [post]
func (h *BookingHandler) Free(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	result, err := h.uc.Free(stdCtx, actor, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}

// @Summary Ranked room suggestions for the caller
// @Tags bookings
// @Router /api/v1/recommendations [get]
func (h *BookingHandler) Recommendations(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	actor, ok := h.actor(ctx, stdCtx)
	if !ok {
		return
	}

	capacity, err := queryInt(ctx, "capacity", 1)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	recs, err := h.uc.Recommendations(stdCtx, actor.UserID, capacity)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, recs)
}
