package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/internal/infrastructure/buffer"
	"github.com/fastygo/floorplan/internal/metrics"
	"github.com/fastygo/floorplan/pkg/floorclient"
)

// Resolution is the user's answer to a surfaced conflict.
type Resolution string

const (
	AcceptServer   Resolution = "accept"
	ForceOverwrite Resolution = "force"
)

// Conflict is a queued action the server rejected with a conflict.
type Conflict struct {
	Action buffer.Action
	Err    *domain.Error
}

// CurrentVersion is the floor version the server reported with the conflict.
func (c *Conflict) CurrentVersion() int64 {
	if c == nil || c.Err == nil {
		return 0
	}
	switch d := c.Err.Details.(type) {
	case *domain.FieldConflict:
		return d.CurrentVersion
	case domain.FieldConflict:
		return d.CurrentVersion
	case *domain.OccupiedDetails:
		return d.CurrentVersion
	case domain.OccupiedDetails:
		return d.CurrentVersion
	}
	return 0
}

type ConflictHandler func(ctx context.Context, conflict Conflict)

// ReplayerConfig controls how frequently the queue is replayed.
type ReplayerConfig struct {
	Interval time.Duration
	Pacing   time.Duration
}

// ReplayReport summarises one replay pass.
type ReplayReport struct {
	Replayed  int
	Dropped   int
	Remaining int
	Skipped   bool
	Conflict  *Conflict
	// Transient is set when the pass stopped because the server was unreachable.
	Transient error
}

// Replayer sends queued actions to the server strictly in enqueue order.
// Only one pass runs at a time.
type Replayer struct {
	store      *buffer.Store
	dispatcher *Dispatcher
	api        API
	monitor    Connectivity
	onConflict ConflictHandler
	logger     *zap.Logger
	cron       *cron.Cron
	cfg        ReplayerConfig

	running  sync.Mutex
	stateMu  sync.Mutex
	conflict *Conflict
	triggers sync.WaitGroup
}

func NewReplayer(
	store *buffer.Store,
	dispatcher *Dispatcher,
	api API,
	monitor Connectivity,
	logger *zap.Logger,
	cfg ReplayerConfig,
) *Replayer {
	if cfg.Interval < time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Replayer{
		store:      store,
		dispatcher: dispatcher,
		api:        api,
		monitor:    monitor,
		logger:     logger,
		cfg:        cfg,
		cron:       cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if _, err := r.Replay(ctx); err != nil {
			r.logger.Error("scheduled replay failed", zap.Error(err))
		}
	})

	return r
}

// OnConflict registers the callback that surfaces conflicts to the user.
func (r *Replayer) OnConflict(fn ConflictHandler) {
	r.onConflict = fn
}

// Start launches the cron scheduler.
func (r *Replayer) Start() {
	if r == nil || r.cron == nil {
		return
	}
	r.cron.Start()
	r.logger.Info("replayer started", zap.Duration("interval", r.cfg.Interval))
}

// Stop gracefully stops the scheduler and waits for triggered passes.
func (r *Replayer) Stop(ctx context.Context) {
	if r == nil || r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		r.triggers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	r.logger.Info("replayer stopped")
}

// Trigger starts a pass in the background. Used on offline to online transitions.
func (r *Replayer) Trigger() {
	r.triggers.Add(1)
	go func() {
		defer r.triggers.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
		defer cancel()
		if _, err := r.Replay(ctx); err != nil {
			r.logger.Error("triggered replay failed", zap.Error(err))
		}
	}()
}

// PendingConflict returns the conflict that stopped the last pass, if any.
func (r *Replayer) PendingConflict() *Conflict {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.conflict == nil {
		return nil
	}
	c := *r.conflict
	return &c
}

// Replay sends queued actions until the queue is empty, a conflict surfaces
// or the server becomes unreachable.
func (r *Replayer) Replay(ctx context.Context) (ReplayReport, error) {
	var report ReplayReport
	if r == nil || r.store == nil {
		return report, nil
	}
	if !r.running.TryLock() {
		report.Skipped = true
		return report, nil
	}
	defer r.running.Unlock()

	if r.monitor != nil && !r.monitor.IsOnline() {
		r.logger.Debug("skipping replay (offline)")
		report.Skipped = true
		report.Remaining, _ = r.store.Size()
		return report, nil
	}

	actions, err := r.store.List()
	if err != nil {
		return report, err
	}

	for i, action := range actions {
		if i > 0 && r.cfg.Pacing > 0 {
			select {
			case <-ctx.Done():
				report.Remaining = len(actions) - i
				return report, ctx.Err()
			case <-time.After(r.cfg.Pacing):
			}
		}

		stop, err := r.replayOne(ctx, action, &report)
		if err != nil {
			report.Remaining = len(actions) - i
			return report, err
		}
		if stop {
			report.Remaining = len(actions) - i
			return report, nil
		}
	}

	r.clearConflict()
	return report, nil
}

// replayOne applies the outcome rules for a single action and reports whether
// the pass must stop.
func (r *Replayer) replayOne(ctx context.Context, action buffer.Action, report *ReplayReport) (bool, error) {
	log := r.logger.With(
		zap.String("action_id", action.ID),
		zap.String("operation", action.Operation),
		zap.String("room_id", action.RoomID))

	resolved, err := resolveRoom(r.store, action)
	if err == nil {
		var out Outcome
		out, err = r.dispatcher.Execute(ctx, resolved)
		if err == nil {
			if err := r.store.Remove(action.ID); err != nil {
				return true, err
			}
			if err := recordOutcome(r.store, resolved, out); err != nil {
				log.Warn("failed to record outcome locally", zap.Error(err))
			}
			metrics.ReplayActionsTotal.WithLabelValues("success").Inc()
			report.Replayed++
			log.Info("action replayed", zap.Int64("version", out.NewFloorVersion))
			return false, nil
		}
	}

	switch {
	case floorclient.IsTransient(err):
		action.Attempts++
		if rerr := r.store.Replace(action); rerr != nil {
			log.Warn("failed to record attempt", zap.Error(rerr))
		}
		metrics.ReplayActionsTotal.WithLabelValues("transient").Inc()
		report.Transient = err
		log.Warn("replay paused, server unreachable", zap.Error(err))
		return true, nil

	case domain.IsDomainError(err, domain.ErrCodeConflict):
		dErr, _ := domain.AsError(err)
		action.Attempts++
		if rerr := r.store.Replace(action); rerr != nil {
			log.Warn("failed to record attempt", zap.Error(rerr))
		}
		conflict := Conflict{Action: action, Err: dErr}
		r.stateMu.Lock()
		r.conflict = &conflict
		r.stateMu.Unlock()
		metrics.ReplayActionsTotal.WithLabelValues("conflict").Inc()
		report.Conflict = &conflict
		log.Info("replay stopped on conflict", zap.String("reason", dErr.Reason))
		if r.onConflict != nil {
			r.onConflict(ctx, conflict)
		}
		return true, nil

	case isRejection(err):
		if rerr := r.drop(action); rerr != nil {
			return true, rerr
		}
		metrics.ReplayActionsTotal.WithLabelValues("dropped").Inc()
		report.Dropped++
		log.Warn("queued action rejected, dropped", zap.Error(err))
		return false, nil

	default:
		// Local storage failure: keep the action and stop.
		return true, err
	}
}

// Resolve settles the conflict surfaced for actionID and, on success, resumes replay.
func (r *Replayer) Resolve(ctx context.Context, actionID string, resolution Resolution) (ReplayReport, error) {
	action, err := r.store.Get(actionID)
	if err != nil {
		return ReplayReport{}, err
	}

	switch resolution {
	case AcceptServer:
		view, err := r.api.Sync(ctx)
		if err != nil {
			return ReplayReport{}, err
		}
		if view != nil {
			if err := r.store.SetWatermark(view.CurrentVersion); err != nil {
				return ReplayReport{}, err
			}
		}
		if err := r.drop(action); err != nil {
			return ReplayReport{}, err
		}
		r.logger.Info("conflict resolved, server state accepted", zap.String("action_id", actionID))

	case ForceOverwrite:
		conflict := r.PendingConflict()
		if conflict == nil || conflict.Action.ID != actionID {
			return ReplayReport{}, domain.NewError(domain.ErrCodeInvalid, "no conflict recorded for this action, replay first")
		}
		forced, err := forceAction(action, r.api.Role(), conflict.CurrentVersion())
		if err != nil {
			return ReplayReport{}, err
		}
		if err := r.store.Replace(forced); err != nil {
			return ReplayReport{}, err
		}
		r.logger.Info("conflict resolved, overwriting", zap.String("action_id", actionID))

	default:
		return ReplayReport{}, domain.NewError(domain.ErrCodeInvalid, fmt.Sprintf("unknown resolution %q", resolution))
	}

	r.clearConflict()
	return r.Replay(ctx)
}

// forceAction rewrites a conflicted action so the server accepts it. Unrestricted
// writers set force; restricted writers resubmit claiming the conflict's version
// as last seen, which makes the server skip the field diff.
func forceAction(action buffer.Action, role domain.Role, currentVersion int64) (buffer.Action, error) {
	if !role.Privileged() {
		return action, domain.ErrNoWriteAuthority
	}

	switch action.Operation {
	case buffer.OperationUpdateRoom:
		var req transport.UpdateRoomRequest
		if err := decodePayload(action, &req); err != nil {
			return action, err
		}
		if role.Unrestricted() {
			req.Force = true
		} else {
			if currentVersion <= 0 {
				return action, domain.NewError(domain.ErrCodeInvalid, "conflict carries no version to resubmit against")
			}
			req.LastSeenVersion = currentVersion
		}
		return withPayload(action, req)

	case buffer.OperationDeleteRoom:
		if !role.Unrestricted() {
			return action, domain.ErrPrivilegedOnly
		}
		return withPayload(action, DeletePayload{Force: true})

	default:
		return action, domain.NewError(domain.ErrCodeInvalid, fmt.Sprintf("%s conflicts cannot be overridden", action.Operation))
	}
}

func withPayload(action buffer.Action, payload interface{}) (buffer.Action, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return action, err
	}
	action.Payload = body
	return action, nil
}

// drop removes an action for good. A dropped create takes its placeholder with it.
func (r *Replayer) drop(action buffer.Action) error {
	if err := r.store.Remove(action.ID); err != nil {
		return err
	}
	if action.Operation == buffer.OperationCreateRoom && action.LocalRef != "" {
		return r.store.BindRef(action.LocalRef, buffer.RefBinding{Dropped: true})
	}
	return nil
}

func (r *Replayer) clearConflict() {
	r.stateMu.Lock()
	r.conflict = nil
	r.stateMu.Unlock()
}

// isRejection reports whether the server (or placeholder resolution) refused
// the action for a reason replaying will not fix.
func isRejection(err error) bool {
	var dErr *domain.Error
	return errors.As(err, &dErr)
}
