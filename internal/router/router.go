package router

import (
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"github.com/valyala/fasthttp/pprofhandler"

	apiHandler "github.com/fastygo/floorplan/api/handler"
)

type Handlers struct {
	Floor   *apiHandler.FloorHandler
	Room    *apiHandler.RoomHandler
	Booking *apiHandler.BookingHandler
	User    *apiHandler.UserHandler
	Health  *apiHandler.HealthHandler
}

// Options toggles the operational endpoints.
type Options struct {
	EnableMetrics bool
	EnablePprof   bool
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler, opts Options) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	r.GET("/api/v1/health", handlers.Health.Check)

	if opts.EnableMetrics {
		r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	}
	if opts.EnablePprof {
		r.GET("/debug/pprof/{profile:*}", pprofhandler.PprofHandler)
	}

	r.POST("/api/v1/users/enroll", authMiddleware(handlers.User.Enroll))
	r.GET("/api/v1/users/me", authMiddleware(handlers.User.Profile))

	r.GET("/api/v1/floor", authMiddleware(handlers.Floor.Dashboard))
	r.GET("/api/v1/floor/live", authMiddleware(handlers.Floor.Live))
	r.POST("/api/v1/floor/sync", authMiddleware(handlers.Floor.Sync))
	r.GET("/api/v1/floor/history", authMiddleware(handlers.Floor.History))
	r.GET("/api/v1/floor/history/{version}", authMiddleware(handlers.Floor.Snapshot))

	r.POST("/api/v1/rooms", authMiddleware(handlers.Room.Create))
	r.PUT("/api/v1/rooms/{id}", authMiddleware(handlers.Room.Update))
	r.DELETE("/api/v1/rooms/{id}", authMiddleware(handlers.Room.Delete))
	r.POST("/api/v1/rooms/{id}/book", authMiddleware(handlers.Booking.Book))
	r.POST("/api/v1/rooms/{id}/free", authMiddleware(handlers.Booking.Free))

	r.GET("/api/v1/recommendations", authMiddleware(handlers.Booking.Recommendations))

	return r
}
