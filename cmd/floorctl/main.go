package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/internal/config"
	"github.com/fastygo/floorplan/internal/infrastructure/buffer"
	"github.com/fastygo/floorplan/internal/infrastructure/monitor"
	"github.com/fastygo/floorplan/internal/middleware"
	"github.com/fastygo/floorplan/internal/services"
	"github.com/fastygo/floorplan/internal/services/lifecycle"
	"github.com/fastygo/floorplan/pkg/floorclient"
	"github.com/fastygo/floorplan/pkg/logger"
)

// app holds the client runtime shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *buffer.Store
	client   *floorclient.Client
	monitor  *monitor.Monitor
	gateway  *services.Gateway
	replayer *services.Replayer
	manager  *lifecycle.Manager
}

var (
	rt app

	userID   string
	role     string
	server   string
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "floorctl",
		Short:         "Work with the floor plan from the command line, online or offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return rt.close(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id (defaults to FLOORCTL_USER_ID)")
	rootCmd.PersistentFlags().StringVar(&role, "role", "", "role: SUPER_ADMIN, ADMIN or EMPLOYEE (defaults to FLOORCTL_ROLE)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server base URL (defaults to FLOORCTL_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describeError(err))
		os.Exit(1)
	}
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if userID != "" {
		cfg.Client.UserID = userID
	}
	if role != "" {
		cfg.Client.Role = role
	}
	if server != "" {
		cfg.Client.ServerURL = server
	}
	if cfg.Client.UserID == "" {
		return fmt.Errorf("a user id is required (--user or FLOORCTL_USER_ID)")
	}
	clientRole := domain.Role(cfg.Client.Role)
	if !clientRole.Valid() {
		return fmt.Errorf("unknown role %q", cfg.Client.Role)
	}

	zapLogger, err := logger.New(logger.Config{Level: logLevel, Encoding: "console", Output: os.Stderr})
	if err != nil {
		return err
	}

	token := cfg.Client.Token
	if token == "" && cfg.JWT.Secret != "" {
		token, err = middleware.IssueToken(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.Client.UserID, string(clientRole))
		if err != nil {
			return err
		}
	}

	store, err := buffer.Open(cfg.Client.QueuePath)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}

	client := floorclient.New(floorclient.Config{
		BaseURL: cfg.Client.ServerURL,
		Token:   token,
		UserID:  cfg.Client.UserID,
		Role:    clientRole,
		Timeout: cfg.Client.RequestTimeout,
	}, zapLogger)

	mon := monitor.New(cfg.Client.MonitorInterval, zapLogger, monitor.Probe{
		Name:     "server",
		Required: true,
		Timeout:  cfg.Client.RequestTimeout,
		Check:    client.Health,
	}).WithQueueSize(store.Size)
	mon.Refresh(ctx)

	dispatcher := services.NewAPIDispatcher(client)
	replayer := services.NewReplayer(store, dispatcher, client, mon, zapLogger, services.ReplayerConfig{
		Interval: cfg.Client.ReplayInterval,
		Pacing:   cfg.Client.ReplayPacing,
	})
	replayer.OnConflict(func(_ context.Context, c services.Conflict) {
		printConflict(c)
	})

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.RegisterCloser("queue", store)
	manager.RegisterStop("monitor", mon.Stop)
	manager.Register("replayer", func(ctx context.Context) error {
		replayer.Stop(ctx)
		return nil
	})

	gateway := services.NewGateway(store, dispatcher, mon, zapLogger)
	gateway.OnQueued(replayer.Trigger)

	*a = app{
		cfg:      cfg,
		logger:   zapLogger,
		store:    store,
		client:   client,
		monitor:  mon,
		gateway:  gateway,
		replayer: replayer,
		manager:  manager,
	}
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.manager == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.manager.Shutdown(ctx)
	_ = a.logger.Sync()
	return err
}
