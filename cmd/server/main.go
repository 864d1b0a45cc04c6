package main

import (
	"context"
	"log"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/floorplan/api/handler"
	"github.com/fastygo/floorplan/internal/config"
	"github.com/fastygo/floorplan/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/floorplan/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/floorplan/internal/infrastructure/redis"
	"github.com/fastygo/floorplan/internal/middleware"
	"github.com/fastygo/floorplan/internal/router"
	"github.com/fastygo/floorplan/internal/services/lifecycle"
	"github.com/fastygo/floorplan/pkg/httpcontext"
	"github.com/fastygo/floorplan/pkg/logger"
	"github.com/fastygo/floorplan/repository"
	"github.com/fastygo/floorplan/repository/memory"
	"github.com/fastygo/floorplan/repository/postgres"
	redisRepo "github.com/fastygo/floorplan/repository/redis"
	bookingUC "github.com/fastygo/floorplan/usecase/booking"
	floorUC "github.com/fastygo/floorplan/usecase/floor"
	roomUC "github.com/fastygo/floorplan/usecase/room"
	userUC "github.com/fastygo/floorplan/usecase/user"
)

type storage struct {
	floors repository.FloorStore
	users  repository.UserRepository
	cache  repository.SnapshotCache
	probes []monitor.Probe
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	appCtx, cancel := manager.WithSignals(context.Background())
	defer cancel()

	store, err := openStorage(appCtx, cfg, manager, zapLogger)
	if err != nil {
		zapLogger.Fatal("storage setup failed", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	mon := monitor.New(cfg.Storage.MonitorInterval, zapLogger, store.probes...)
	mon.Start()
	manager.RegisterStop("monitor", mon.Stop)

	floorUseCase := floorUC.New(store.floors, store.users, store.cache, zapLogger)
	if _, err := floorUseCase.Bootstrap(appCtx, cfg.Floor.Name); err != nil {
		zapLogger.Fatal("floor bootstrap failed", zap.Error(err))
	}
	roomUseCase := roomUC.New(floorUseCase, zapLogger)
	bookingUseCase := bookingUC.New(floorUseCase, zapLogger)
	userUseCase := userUC.New(store.users, floorUseCase, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Floor:   apiHandler.NewFloorHandler(floorUseCase, ctxAdapter, zapLogger),
		Room:    apiHandler.NewRoomHandler(roomUseCase, ctxAdapter, zapLogger),
		Booking: apiHandler.NewBookingHandler(bookingUseCase, ctxAdapter, zapLogger),
		User:    apiHandler.NewUserHandler(userUseCase, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.Identity(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	r := router.New(handlers, authMiddleware, router.Options{
		EnableMetrics: cfg.HTTP.EnableMetrics,
		EnablePprof:   cfg.HTTP.EnablePprof,
	})

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", cfg.Storage.Driver),
			zap.Int64("floor_id", cfg.Floor.ID))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

// openStorage wires the floor store, user repository and snapshot cache for
// the configured driver and registers their shutdown hooks.
func openStorage(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, zapLogger *zap.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		zapLogger.Warn("using in-memory storage, state is lost on restart")
		mem := memory.NewStore(cfg.Floor.ID)
		return &storage{
			floors: mem,
			users:  mem.Users(),
			cache:  memory.NewSnapshotCache(cfg.Floor.CacheTTL),
		}, nil
	}

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		return nil, err
	}

	pool, err := pgInfra.NewPool(ctx, cfg, zapLogger)
	if err != nil {
		return nil, err
	}
	manager.RegisterStop("postgres", func() { pgInfra.Close(pool, zapLogger) })

	redisClient, err := redisInfra.NewClient(ctx, cfg.Redis, zapLogger)
	if err != nil {
		return nil, err
	}
	manager.RegisterCloser("redis", redisClient)

	return &storage{
		floors: postgres.NewFloorStore(pool, cfg.Floor.ID, postgres.TxConfig{
			MaxWait: cfg.Floor.TxMaxWait,
			Timeout: cfg.Floor.TxTimeout,
		}),
		users:  postgres.NewUserRepository(pool),
		cache:  redisRepo.NewSnapshotCache(redisClient, cfg.Floor.ID, cfg.Floor.CacheTTL),
		probes: []monitor.Probe{monitor.PostgresProbe(pool), monitor.RedisProbe(redisClient)},
	}, nil
}
