// Package cli implements the mindcamp command-line interface using Cobra.
// Commands other than serve operate on the local database directly.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindcamp/mindcamp/internal/app/clock"
	"github.com/mindcamp/mindcamp/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "mindcamp",
	Short: "mindcamp: streaks, grace days and ranks for a daily writing habit",
	Long: `mindcamp tracks qualifying writing days, derives the current and longest
streak, manages the two monthly grace tokens and resolves the user's rank.

Run 'mindcamp serve' for the HTTP API or use the subcommands against the
local database in $MINDCAMP_HOME.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagUser string
	flagAt   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", os.Getenv("MINDCAMP_USER"), "User ID (default $MINDCAMP_USER)")
	rootCmd.PersistentFlags().StringVar(&flagAt, "at", "", "Act as if today were this date (YYYY-MM-DD or RFC 3339)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openLocal builds a daemon for a one-shot command. The returned context
// carries the --at override; the local operator is trusted like an admin.
func openLocal(cmd *cobra.Command) (*daemon.Daemon, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if flagAt != "" {
		if _, ok := clock.ParseOverride(flagAt); !ok {
			return nil, nil, fmt.Errorf("invalid --at value %q", flagAt)
		}
		ctx = clock.WithOverride(ctx, flagAt, true)
	}
	d, err := daemon.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	return d, ctx, nil
}

func requireUser() (string, error) {
	if flagUser == "" {
		return "", fmt.Errorf("no user: pass --user or set MINDCAMP_USER")
	}
	return flagUser, nil
}
