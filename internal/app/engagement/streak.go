// Package engagement implements the mindcamp streak & rank mechanics:
// the qualifying-day index, streak calculator, rank resolver, grace ledger
// and the progress aggregator every mutation path goes through.
package engagement

import "github.com/mindcamp/mindcamp/internal/domain"

// CurrentStreak counts consecutive days in days ending at today.
// If today is absent the walk starts at yesterday instead (soft tolerance):
// a day that isn't over yet does not break the streak. When neither today
// nor yesterday is present the result is 0.
func CurrentStreak(days domain.DaySet, today domain.Day) int {
	if len(days) == 0 || today.IsZero() {
		return 0
	}
	cursor := today
	if !days.Has(cursor) {
		cursor = cursor.AddDays(-1)
	}
	n := 0
	for days.Has(cursor) {
		n++
		cursor = cursor.AddDays(-1)
	}
	return n
}

// LongestStreak returns the longest run of consecutive calendar days in days.
func LongestStreak(days domain.DaySet) int {
	sorted := days.Sorted()
	if len(sorted) == 0 {
		return 0
	}
	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if domain.DaysBetween(sorted[i-1], sorted[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
