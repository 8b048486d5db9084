package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mindcamp/mindcamp/internal/app/engagement"
	"github.com/mindcamp/mindcamp/internal/domain"
)

// run executes the root command against a temporary MINDCAMP_HOME.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func newHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("MINDCAMP_HOME", home)
	return home
}

// ═══════════════════════════════════════════════════════════════════════════
// Rendering
// ═══════════════════════════════════════════════════════════════════════════

func TestRenderHeatStrip(t *testing.T) {
	today := domain.Day("2025-03-15")
	activity := map[domain.Day]int{
		"2025-03-15": domain.ActivityQualifying,
		"2025-03-14": domain.ActivityGrace,
	}
	got := renderHeatStrip(activity, today, 3)
	want := emptyCell + graceCell + qualifyingCell
	if got != want {
		t.Errorf("renderHeatStrip() = %q, want %q", got, want)
	}
	if renderHeatStrip(activity, "", 3) != "" {
		t.Error("zero today should render nothing")
	}
}

func TestRenderProgress(t *testing.T) {
	v := domain.ProgressView{
		Snapshot: domain.Snapshot{
			UserID:               "u1",
			StreakCount:          15,
			LongestStreak:        20,
			CurrentRank:          domain.RankRegular,
			GraceTokensRemaining: 1,
		},
		NextRank:   engagement.NextRank(15),
		ProgramDay: 30,
		Today:      "2025-03-15",
	}
	out := renderProgress(v)
	for _, want := range []string{"u1", "day 30", "Regular", "Veteran in 16 day(s)", "1/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("progress card missing %q:\n%s", want, out)
		}
	}

	v.NextRank = nil
	if !strings.Contains(renderProgress(v), "top rank reached") {
		t.Error("expected top-rank message without a next rank")
	}
}

func TestRenderRanks(t *testing.T) {
	out := renderRanks(engagement.Ranks(), domain.RankVeteran)
	if !strings.Contains(out, "▸ ") || !strings.Contains(out, "64+ day streak") {
		t.Errorf("unexpected ranks output:\n%s", out)
	}
	if strings.Count(out, "▸") != 1 {
		t.Error("exactly one rank should be marked")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Commands
// ═══════════════════════════════════════════════════════════════════════════

func TestCommands_RecordGraceProgress(t *testing.T) {
	newHome(t)

	for _, d := range []string{"2025-03-12", "2025-03-13"} {
		if out, err := run(t, "--user", "u1", "--at", "2025-03-15", "record", "--words", "50", "--date", d); err != nil {
			t.Fatalf("record %s: %v\n%s", d, err, out)
		}
	}
	out, err := run(t, "--user", "u1", "--at", "2025-03-15", "grace")
	if err != nil {
		t.Fatalf("grace: %v", err)
	}
	if !strings.Contains(out, "Streak: 3") || !strings.Contains(out, "tokens left: 1") {
		t.Errorf("grace output = %q", out)
	}

	out, err = run(t, "--user", "u1", "--at", "2025-03-15", "grace", "--date", "2025-03-14")
	if err != nil || !strings.Contains(out, "already covered") {
		t.Errorf("repeat grace = %q, %v", out, err)
	}

	out, err = run(t, "--user", "u1", "--at", "2025-03-15", "progress", "--json")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	var view domain.ProgressView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("progress JSON: %v\n%s", err, out)
	}
	if view.StreakCount != 3 || view.TotalCompletedDays != 2 || view.Today != "2025-03-15" {
		t.Errorf("view = %+v", view.Snapshot)
	}
}

func TestCommands_RequireUser(t *testing.T) {
	newHome(t)
	t.Setenv("MINDCAMP_USER", "")
	flagUser = ""
	if _, err := run(t, "progress"); err == nil || !strings.Contains(err.Error(), "no user") {
		t.Errorf("err = %v, want missing user", err)
	}
}

func TestCommands_AdminAndExport(t *testing.T) {
	home := newHome(t)

	if _, err := run(t, "--user", "u2", "--at", "2025-03-15", "admin", "simulate", "31"); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if _, err := run(t, "--user", "u2", "admin", "reset"); err == nil {
		t.Error("reset without --yes should fail")
	}

	outFile := filepath.Join(home, "u2.xlsx")
	if _, err := run(t, "--user", "u2", "--at", "2025-03-15", "export", "-f", "xlsx", "-o", outFile); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := excelize.OpenFile(outFile)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rank, _ := f.GetCellValue("Summary", "B7")
	if rank != string(domain.RankVeteran) {
		t.Errorf("exported rank = %q, want veteran", rank)
	}

	out, err := run(t, "admin", "audit")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !strings.Contains(out, "simulate-streak") || !strings.Contains(out, "u2") {
		t.Errorf("audit output = %q", out)
	}
}

func TestCommands_Init(t *testing.T) {
	home := newHome(t)
	if _, err := run(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "config.toml")); err != nil {
		t.Errorf("config.toml not written: %v", err)
	}
}
