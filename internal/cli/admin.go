package cli

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mindcamp/mindcamp/internal/app/clock"
	"github.com/mindcamp/mindcamp/internal/daemon"
	"github.com/mindcamp/mindcamp/internal/domain"
)

func init() {
	adminResetCmd.Flags().BoolVar(&adminYes, "yes", false, "Confirm the reset")
	adminGraceCmd.Flags().IntVar(&adminTokens, "tokens", domain.MaxGraceTokens, "Grace tokens remaining (0-2)")
	adminGraceCmd.Flags().StringVar(&adminLastReset, "last-reset", "", "Last refill time (RFC 3339 or YYYY-MM-DD; empty = never)")
	adminAuditCmd.Flags().IntVarP(&adminLimit, "limit", "n", 20, "Number of events to show")

	adminCmd.AddCommand(adminSimulateCmd, adminResetCmd, adminGraceCmd, adminAuditCmd)
	rootCmd.AddCommand(adminCmd)
}

var (
	adminYes       bool
	adminTokens    int
	adminLastReset string
	adminLimit     int
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator tools for testing mechanics (local database only)",
}

var adminSimulateCmd = &cobra.Command{
	Use:   "simulate <days>",
	Short: "Replace the user's history with a streak of <days> ending today",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := requireUser()
		if err != nil {
			return err
		}
		days, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid days %q", args[0])
		}
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		snap, err := d.Engagement.SimulateStreak(ctx, target, days)
		auditCLI(ctx, d, "simulate-streak", target, map[string]string{"streak": args[0]}, err)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: streak %d, rank %s\n", target, snap.StreakCount, snap.CurrentRank)
		return nil
	},
}

var adminResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the user's history and start them fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := requireUser()
		if err != nil {
			return err
		}
		if !adminYes {
			return fmt.Errorf("refusing to reset %s without --yes", target)
		}
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		_, err = d.Engagement.ResetUser(ctx, target)
		auditCLI(ctx, d, "reset-user", target, nil, err)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s reset\n", target)
		return nil
	},
}

var adminGraceCmd = &cobra.Command{
	Use:   "grace",
	Short: "Set the user's grace balance and last refill time",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := requireUser()
		if err != nil {
			return err
		}
		var lastReset time.Time
		if adminLastReset != "" {
			t, ok := clock.ParseOverride(adminLastReset)
			if !ok {
				return fmt.Errorf("invalid --last-reset %q", adminLastReset)
			}
			lastReset = t
		}
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		snap, err := d.Engagement.SetGraceState(ctx, target, adminTokens, lastReset)
		auditCLI(ctx, d, "grace", target, map[string]string{"tokens": strconv.Itoa(adminTokens)}, err)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d grace token(s)\n", target, snap.GraceTokensRemaining)
		return nil
	},
}

var adminAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent admin debug actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.DB.ListDebugActions(ctx, adminLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No debug actions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tACTOR\tTARGET\tOUTCOME")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ev.CreatedAt.Format("2006-01-02 15:04:05"),
				ev.Action,
				ev.ActorUserID,
				ev.TargetUserID,
				ev.Metadata["outcome"],
			)
		}
		return w.Flush()
	},
}

// auditCLI records an operator action in the same table the HTTP debug
// surface writes to. Failures only warn.
func auditCLI(ctx context.Context, d *daemon.Daemon, action, target string, meta map[string]string, actionErr error) {
	if meta == nil {
		meta = map[string]string{}
	}
	meta["outcome"] = "ok"
	if actionErr != nil {
		meta["outcome"] = "error"
	}
	actor := "cli"
	if u, err := user.Current(); err == nil {
		actor = "cli:" + u.Username
	}
	ev := domain.DebugAuditEvent{
		ID:           uuid.NewString(),
		Action:       action,
		ActorUserID:  actor,
		TargetUserID: target,
		Method:       "CLI",
		Path:         "mindcamp admin",
		Metadata:     meta,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := d.DB.RecordDebugAction(ctx, ev); err != nil {
		fmt.Fprintln(os.Stderr, "warning: audit write failed:", err)
	}
}
