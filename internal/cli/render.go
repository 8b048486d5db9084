package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mindcamp/mindcamp/internal/app/engagement"
	"github.com/mindcamp/mindcamp/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	cardStyle  = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))

	qualifyingCell = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Render("■")
	graceCell      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Render("■")
	emptyCell      = lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A")).Render("□")
)

// heatStripDays is how many days `mindcamp progress` draws.
const heatStripDays = 28

func row(label string, value interface{}) string {
	return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
}

// renderProgress draws the progress card.
func renderProgress(v domain.ProgressView) string {
	next := mutedStyle.Render("top rank reached")
	if v.NextRank != nil {
		next = fmt.Sprintf("%s in %d day(s)", v.NextRank.Label, v.NextRank.DaysNeeded)
	}
	label := string(v.CurrentRank)
	if t, ok := engagement.TierOf(v.CurrentRank); ok {
		label = t.Label
	}

	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s · day %d", v.UserID, v.ProgramDay)),
		"",
		row("Current streak", v.StreakCount),
		row("Longest streak", v.LongestStreak),
		row("Completed days", v.TotalCompletedDays),
		row("Rank", label),
		row("Next rank", next),
		row("Grace tokens", fmt.Sprintf("%d/%d", v.GraceTokensRemaining, domain.MaxGraceTokens)),
		"",
		renderHeatStrip(v.ActivityMap, v.Today, heatStripDays),
		mutedStyle.Render(fmt.Sprintf("%s qualifying  %s grace  (last %d days)", qualifyingCell, graceCell, heatStripDays)),
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

// renderHeatStrip draws n days ending today, oldest first.
func renderHeatStrip(activity map[domain.Day]int, today domain.Day, n int) string {
	if today.IsZero() || n <= 0 {
		return ""
	}
	var b strings.Builder
	for i := n - 1; i >= 0; i-- {
		switch activity[today.AddDays(-i)] {
		case domain.ActivityQualifying:
			b.WriteString(qualifyingCell)
		case domain.ActivityGrace:
			b.WriteString(graceCell)
		default:
			b.WriteString(emptyCell)
		}
	}
	return b.String()
}

// renderRanks draws the rank ladder, marking current when set.
func renderRanks(tiers []domain.RankTier, current domain.Rank) string {
	lines := make([]string, 0, len(tiers)+1)
	lines = append(lines, titleStyle.Render("Ranks"))
	for _, t := range tiers {
		marker := "  "
		if t.Rank == current {
			marker = "▸ "
		}
		lines = append(lines, marker+labelStyle.Render(t.Label)+mutedStyle.Render(fmt.Sprintf("%d+ day streak", t.MinStreak)))
	}
	return strings.Join(lines, "\n")
}
