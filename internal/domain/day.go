package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayLayout is the wire and storage format of a calendar day.
const DayLayout = "2006-01-02"

// Day is a UTC calendar day formatted as YYYY-MM-DD.
// Time-of-day is always discarded; two Days are equal iff their strings are.
type Day string

// DayOf returns the UTC calendar day containing t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(DayLayout))
}

// ParseDay accepts "YYYY-MM-DD" or a full RFC 3339 timestamp.
// Timestamps are reduced to their UTC calendar day.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDay)
	}
	if t, err := time.Parse(DayLayout, s); err == nil {
		return DayOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DayOf(t), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDay, s)
}

// Time returns UTC midnight of the day. The zero Day yields the zero time.
func (d Day) Time() time.Time {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays shifts the day by n calendar days (n may be negative).
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool { return d < o }

// After reports whether d is strictly later than o.
func (d Day) After(o Day) bool { return d > o }

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d == "" }

func (d Day) String() string { return string(d) }

// DaysBetween returns the number of calendar days from a to b (b - a).
// UTC has no DST, so every day is exactly 24h.
func DaysBetween(a, b Day) int {
	return int(b.Time().Sub(a.Time()) / (24 * time.Hour))
}

// ─── DaySet ─────────────────────────────────────────────────────────────────

// DaySet is a set of calendar days. Inserting the same day twice is a no-op,
// which is what keeps several entries on one date from inflating a streak.
type DaySet map[Day]struct{}

// NewDaySet builds a set from the given days.
func NewDaySet(days ...Day) DaySet {
	s := make(DaySet, len(days))
	for _, d := range days {
		s.Add(d)
	}
	return s
}

// Add inserts d. Zero days are ignored.
func (s DaySet) Add(d Day) {
	if d.IsZero() {
		return
	}
	s[d] = struct{}{}
}

// Has reports membership.
func (s DaySet) Has(d Day) bool {
	_, ok := s[d]
	return ok
}

// Len returns the number of distinct days.
func (s DaySet) Len() int { return len(s) }

// Union returns a new set holding every day of s and o.
func (s DaySet) Union(o DaySet) DaySet {
	out := make(DaySet, len(s)+len(o))
	for d := range s {
		out[d] = struct{}{}
	}
	for d := range o {
		out[d] = struct{}{}
	}
	return out
}

// Sorted returns the days in ascending order.
func (s DaySet) Sorted() []Day {
	out := make([]Day, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
