package engagement

import "github.com/mindcamp/mindcamp/internal/domain"

// BuildActivityMap renders the heatmap for the lookback window ending at
// today. Grace days are laid down first and qualifying days on top, so a day
// that is both shows as qualifying. Days outside the window are omitted.
func BuildActivityMap(qualifying, grace domain.DaySet, today domain.Day, lookbackDays int) map[domain.Day]int {
	out := make(map[domain.Day]int)
	if lookbackDays <= 0 || today.IsZero() {
		return out
	}
	oldest := today.AddDays(-(lookbackDays - 1))
	inWindow := func(d domain.Day) bool { return !d.Before(oldest) && !d.After(today) }

	for d := range grace {
		if inWindow(d) {
			out[d] = domain.ActivityGrace
		}
	}
	for d := range qualifying {
		if inWindow(d) {
			out[d] = domain.ActivityQualifying
		}
	}
	return out
}

// ProgramDay is "day N of the program", counted from the first qualifying day.
// Zero when the user has no qualifying day yet.
func ProgramDay(start, today domain.Day) int {
	if start.IsZero() || today.IsZero() || today.Before(start) {
		return 0
	}
	return domain.DaysBetween(start, today) + 1
}
