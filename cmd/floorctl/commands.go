package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fastygo/floorplan/api/transport"
	"github.com/fastygo/floorplan/domain"
	"github.com/fastygo/floorplan/internal/services"
	"github.com/fastygo/floorplan/pkg/floorclient"
)

var (
	enrollCmd = &cobra.Command{
		Use:   "enroll [name]",
		Short: "Register with the server (run once per user)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			user, err := rt.client.Enroll(cmd.Context(), name)
			if err != nil {
				return err
			}
			if err := rt.store.SetWatermark(user.LastSyncedVersion); err != nil {
				return err
			}
			return printJSON(user)
		},
	}

	dashboardCmd = &cobra.Command{
		Use:   "dashboard",
		Short: "Show the floor as of your last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := rt.client.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			if !view.IsLive {
				fmt.Fprintf(os.Stderr, "showing version %d, current is %d (run `floorctl sync` to catch up)\n",
					view.UserVersion, view.CurrentVersion)
			}
			return printJSON(view)
		},
	}

	liveCmd = &cobra.Command{
		Use:   "live",
		Short: "Show the live floor",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := rt.client.Live(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(snapshot)
		},
	}

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Accept the server's current floor as your baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := rt.client.Sync(cmd.Context())
			if err != nil {
				return err
			}
			if err := rt.store.SetWatermark(view.CurrentVersion); err != nil {
				return err
			}
			return printJSON(view)
		},
	}

	historyLimit int
	historyCmd   = &cobra.Command{
		Use:   "history",
		Short: "List archived floor versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := rt.client.History(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}

	recommendCapacity int
	recommendCmd      = &cobra.Command{
		Use:   "recommend",
		Short: "Suggest rooms for a group size",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := rt.client.Recommendations(cmd.Context(), recommendCapacity)
			if err != nil {
				return err
			}
			return printJSON(recs)
		},
	}

	createReq transport.CreateRoomRequest
	createRef string
	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(rt.gateway.CreateRoom(cmd.Context(), createReq, createRef))
		},
	}

	updateName     string
	updateType     string
	updateCapacity int
	updateStatus   string
	updateForce    bool
	updateLastSeen int64
	updateCmd      = &cobra.Command{
		Use:   "update <room-id>",
		Short: "Update a room's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u domain.RoomUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.Name = &updateName
			}
			if flags.Changed("type") {
				u.Type = &updateType
			}
			if flags.Changed("capacity") {
				u.Capacity = &updateCapacity
			}
			if flags.Changed("status") {
				s := domain.RoomStatus(updateStatus)
				u.Status = &s
			}

			lastSeen := updateLastSeen
			if !flags.Changed("last-seen") {
				watermark, err := rt.store.Watermark()
				if err != nil {
					return err
				}
				lastSeen = watermark
			}
			return report(rt.gateway.UpdateRoom(cmd.Context(), args[0], transport.UpdateRoomRequest{
				Updates:         u,
				Force:           updateForce,
				LastSeenVersion: lastSeen,
			}))
		},
	}

	deleteForce bool
	deleteCmd   = &cobra.Command{
		Use:   "delete <room-id>",
		Short: "Delete a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(rt.gateway.DeleteRoom(cmd.Context(), args[0], deleteForce))
		},
	}

	bookParticipants int
	bookCmd          = &cobra.Command{
		Use:   "book <room-id>",
		Short: "Book a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(rt.gateway.Book(cmd.Context(), args[0], bookParticipants))
		},
	}

	freeCmd = &cobra.Command{
		Use:   "free <room-id>",
		Short: "Free a room you booked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(rt.gateway.Free(cmd.Context(), args[0]))
		},
	}

	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "List actions waiting to be sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := rt.store.List()
			if err != nil {
				return err
			}
			watermark, err := rt.store.Watermark()
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"online":    rt.monitor.IsOnline(),
				"watermark": watermark,
				"pending":   actions,
			})
		},
	}

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Send queued actions now",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := rt.replayer.Replay(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(result)
		},
	}

	resolveCmd = &cobra.Command{
		Use:       "resolve <action-id> accept|force",
		Short:     "Settle a conflict: accept the server's state or overwrite it",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(services.AcceptServer), string(services.ForceOverwrite)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Force needs the conflict in memory; a fresh process has to hit it first.
			if services.Resolution(args[1]) == services.ForceOverwrite && rt.replayer.PendingConflict() == nil {
				if _, err := rt.replayer.Replay(ctx); err != nil {
					return err
				}
			}
			result, err := rt.replayer.Resolve(ctx, args[0], services.Resolution(args[1]))
			if err != nil {
				return err
			}
			return printReport(result)
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Stay running: replay on reconnect and on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt.monitor.OnChange(func(online bool) {
				if online {
					rt.replayer.Trigger()
				} else {
					fmt.Fprintln(os.Stderr, "server unreachable, actions will be queued")
				}
			})
			rt.monitor.Start()
			rt.replayer.Start()
			if rt.monitor.IsOnline() {
				rt.replayer.Trigger()
			}

			ctx, cancel := rt.manager.WithSignals(cmd.Context())
			defer cancel()
			<-ctx.Done()
			return nil
		},
	}
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of versions")
	recommendCmd.Flags().IntVar(&recommendCapacity, "capacity", 1, "required capacity")

	createCmd.Flags().StringVar(&createReq.Name, "name", "", "room name")
	createCmd.Flags().StringVar(&createReq.Type, "type", "", "room type")
	createCmd.Flags().IntVar(&createReq.Capacity, "capacity", 0, "room capacity")
	createCmd.Flags().StringVar(&createRef, "ref", "", "local name for the room while the create is queued")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("type")
	_ = createCmd.MarkFlagRequired("capacity")

	updateCmd.Flags().StringVar(&updateName, "name", "", "new name")
	updateCmd.Flags().StringVar(&updateType, "type", "", "new type")
	updateCmd.Flags().IntVar(&updateCapacity, "capacity", 0, "new capacity")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "new status (ACTIVE or UNDER_MAINTENANCE)")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "override occupancy (super admins)")
	updateCmd.Flags().Int64Var(&updateLastSeen, "last-seen", 0, "floor version the edit is based on (defaults to the local watermark)")

	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "delete even if occupied")
	bookCmd.Flags().IntVar(&bookParticipants, "participants", 1, "number of participants")

	rootCmd.AddCommand(
		enrollCmd,
		dashboardCmd,
		liveCmd,
		syncCmd,
		historyCmd,
		recommendCmd,
		createCmd,
		updateCmd,
		deleteCmd,
		bookCmd,
		freeCmd,
		queueCmd,
		replayCmd,
		resolveCmd,
		watchCmd,
	)
}

func report(out services.Outcome, err error) error {
	var queued *services.QueuedError
	if errors.As(err, &queued) {
		fmt.Fprintf(os.Stderr, "pending: %s\n", queued.Error())
		return printJSON(map[string]string{"status": "pending", "action_id": queued.ActionID, "local_ref": queued.LocalRef})
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printReport(r services.ReplayReport) error {
	out := map[string]interface{}{
		"replayed":  r.Replayed,
		"dropped":   r.Dropped,
		"remaining": r.Remaining,
		"skipped":   r.Skipped,
	}
	if r.Transient != nil {
		out["paused"] = r.Transient.Error()
	}
	if r.Conflict != nil {
		out["conflict_action_id"] = r.Conflict.Action.ID
	}
	return printJSON(out)
}

func printConflict(c services.Conflict) {
	fmt.Fprintf(os.Stderr, "conflict on %s (action %s): %s\n", c.Action.Operation, c.Action.ID, c.Err.Message)
	if fc, ok := c.Err.Details.(*domain.FieldConflict); ok {
		for _, field := range fc.Fields() {
			fmt.Fprintf(os.Stderr, "  %s: server=%v yours=%v\n", field, fc.ServerFields[field], fc.ClientFields[field])
		}
	}
	fmt.Fprintf(os.Stderr, "resolve with: floorctl resolve %s accept|force\n", c.Action.ID)
}

func describeError(err error) string {
	if floorclient.IsTransient(err) {
		return "server unreachable: " + err.Error()
	}
	if dErr, ok := domain.AsError(err); ok {
		if dErr.Reason != "" {
			return fmt.Sprintf("%s (%s): %s", dErr.Code, dErr.Reason, dErr.Message)
		}
		return fmt.Sprintf("%s: %s", dErr.Code, dErr.Message)
	}
	return err.Error()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
