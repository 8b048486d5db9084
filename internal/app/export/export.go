// Package export renders a user's progress and activity history as JSON,
// CSV or an XLSX workbook. Only dates, levels and counters are exported;
// entry content never reaches this layer.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mindcamp/mindcamp/internal/domain"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts json, csv or xlsx (case-insensitive). Empty means json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename returns a download name for userID's export.
func (f Format) Filename(userID string, at time.Time) string {
	return fmt.Sprintf("mindcamp-%s-%s.%s", userID, at.UTC().Format("20060102"), f)
}

// ─── Report ─────────────────────────────────────────────────────────────────

// DayRow is one day of the activity history.
type DayRow struct {
	Date  domain.Day `json:"date"`
	Level int        `json:"level"`
	Kind  string     `json:"kind"`
}

// Report is the export document.
type Report struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Progress    domain.Snapshot      `json:"progress"`
	NextRank    *domain.NextRankInfo `json:"next_rank,omitempty"`
	ProgramDay  int                  `json:"program_day"`
	Entries     int                  `json:"total_entries"`
	Days        []DayRow             `json:"days"`
}

// Build turns a progress view into a report with days in ascending order.
func Build(view domain.ProgressView, generatedAt time.Time) Report {
	days := make([]DayRow, 0, len(view.ActivityMap))
	for d, lvl := range view.ActivityMap {
		if lvl == domain.ActivityNone {
			continue
		}
		days = append(days, DayRow{Date: d, Level: lvl, Kind: kind(lvl)})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	return Report{
		GeneratedAt: generatedAt.UTC(),
		Progress:    view.Snapshot,
		NextRank:    view.NextRank,
		ProgramDay:  view.ProgramDay,
		Entries:     view.TotalEntries,
		Days:        days,
	}
}

func kind(level int) string {
	switch level {
	case domain.ActivityQualifying:
		return "entry"
	case domain.ActivityGrace:
		return "grace"
	default:
		return "none"
	}
}

// Write encodes r to w in format f.
func Write(w io.Writer, f Format, r Report) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatXLSX:
		return WriteXLSX(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV writes one row per active day.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "level", "kind"}); err != nil {
		return err
	}
	for _, d := range r.Days {
		if err := cw.Write([]string{string(d.Date), strconv.Itoa(d.Level), d.Kind}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ─── XLSX ───────────────────────────────────────────────────────────────────

const (
	summarySheet  = "Summary"
	activitySheet = "Activity"
)

// WriteXLSX writes a two-sheet workbook: a summary and the activity history.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(activitySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	next := "-"
	if r.NextRank != nil {
		next = fmt.Sprintf("%s (%d days)", r.NextRank.Label, r.NextRank.DaysNeeded)
	}
	lastReset := ""
	if !r.Progress.LastGraceResetAt.IsZero() {
		lastReset = r.Progress.LastGraceResetAt.Format(time.RFC3339)
	}
	summary := [][2]any{
		{"User", r.Progress.UserID},
		{"Generated", r.GeneratedAt.Format(time.RFC3339)},
		{"Current streak", r.Progress.StreakCount},
		{"Longest streak", r.Progress.LongestStreak},
		{"Completed days", r.Progress.TotalCompletedDays},
		{"Total entries", r.Entries},
		{"Rank", string(r.Progress.CurrentRank)},
		{"Next rank", next},
		{"Grace tokens", r.Progress.GraceTokensRemaining},
		{"Last grace refill", lastReset},
		{"Program start", string(r.Progress.ProgramStartDate)},
		{"Program day", r.ProgramDay},
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row[0], row[1]); err != nil {
			return err
		}
	}

	if err := setRow(f, activitySheet, 1, "Date", "Level", "Kind"); err != nil {
		return err
	}
	for i, d := range r.Days {
		if err := setRow(f, activitySheet, i+2, string(d.Date), d.Level, d.Kind); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(summarySheet, "A", "B", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(activitySheet, "A", "C", 14); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
