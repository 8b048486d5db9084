package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mindcamp/mindcamp/internal/app/engagement"
	"github.com/mindcamp/mindcamp/internal/app/export"
	"github.com/mindcamp/mindcamp/internal/domain"
)

func init() {
	progressCmd.Flags().BoolVar(&progressJSON, "json", false, "Print the progress view as JSON")
	recordCmd.Flags().IntVarP(&recordWords, "words", "w", 0, "Word count of the entry")
	recordCmd.Flags().StringVarP(&recordDate, "date", "d", "", "Entry date (default today)")
	_ = recordCmd.MarkFlagRequired("words")
	graceCmd.Flags().StringVarP(&graceDate, "date", "d", "", "Day to cover (default yesterday)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "json, csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default mindcamp-<user>-<date>.<format>)")

	rootCmd.AddCommand(progressCmd, recordCmd, graceCmd, ranksCmd, exportCmd)
}

var (
	progressJSON bool
	recordWords  int
	recordDate   string
	graceDate    string
	exportFormat string
	exportOut    string
)

// ─── progress ───────────────────────────────────────────────────────────────

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show streak, rank and grace tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		view, err := d.Engagement.GetProgress(ctx, user)
		if err != nil {
			return err
		}
		if progressJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderProgress(view))
		return nil
	},
}

// ─── record ─────────────────────────────────────────────────────────────────

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record an entry's word count",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		day := domain.Day(recordDate)
		if day.IsZero() {
			day = domain.DayOf(d.Engagement.Now(ctx))
		}
		res, err := d.Engagement.RecordQualifyingEntry(ctx, user, day, recordWords)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case !res.Qualifying:
			fmt.Fprintf(out, "Entry below %d words; streak unchanged.\n", d.Engagement.Config().MinWords)
		case res.FirstOfDay:
			fmt.Fprintf(out, "Recorded %s. Streak: %d (%s)\n", day, res.Snapshot.StreakCount, res.Snapshot.CurrentRank)
		default:
			fmt.Fprintf(out, "%s already counted. Streak: %d\n", day, res.Snapshot.StreakCount)
		}
		return nil
	},
}

// ─── grace ──────────────────────────────────────────────────────────────────

var graceCmd = &cobra.Command{
	Use:   "grace",
	Short: "Spend a grace token to cover a missed day",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		var day *domain.Day
		if graceDate != "" {
			v := domain.Day(graceDate)
			day = &v
		}
		snap, err := d.Engagement.SpendGrace(ctx, user, day)
		if domain.IsIdempotentConflict(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "That day is already covered by a grace token.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Grace token spent. Streak: %d, tokens left: %d\n",
			snap.StreakCount, snap.GraceTokensRemaining)
		return nil
	},
}

// ─── ranks ──────────────────────────────────────────────────────────────────

var ranksCmd = &cobra.Command{
	Use:   "ranks",
	Short: "List the rank ladder",
	RunE: func(cmd *cobra.Command, args []string) error {
		var current domain.Rank
		if flagUser != "" {
			d, ctx, err := openLocal(cmd)
			if err != nil {
				return err
			}
			defer d.Close()
			snap, err := d.Engagement.Snapshot(ctx, flagUser)
			if err != nil {
				return err
			}
			current = snap.CurrentRank
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderRanks(engagement.Ranks(), current))
		return nil
	},
}

// ─── export ─────────────────────────────────────────────────────────────────

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export activity history (dates and levels only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		d, ctx, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		view, err := d.Engagement.GetProgress(ctx, user)
		if err != nil {
			return err
		}
		now := d.Engagement.Now(ctx)
		path := exportOut
		if path == "" {
			path = format.Filename(user, now)
		}

		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := export.Write(f, format, export.Build(view, now)); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}
