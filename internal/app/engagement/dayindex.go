package engagement

import (
	"context"
	"fmt"

	"github.com/mindcamp/mindcamp/internal/domain"
)

// DayIndex reads a user's qualifying and grace-covered days as sets.
// Storage already collapses same-day entries to one qualifying day.
type DayIndex struct {
	store domain.ProgressStore
}

// NewDayIndex creates a day index over store.
func NewDayIndex(store domain.ProgressStore) *DayIndex {
	return &DayIndex{store: store}
}

// QualifyingDates returns every day with at least one qualifying entry.
func (x *DayIndex) QualifyingDates(ctx context.Context, userID string) (domain.DaySet, error) {
	days, err := x.store.QualifyingDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("qualifying days: %w", err)
	}
	return domain.NewDaySet(days...), nil
}

// GraceDates returns every day covered by a spent grace token.
func (x *DayIndex) GraceDates(ctx context.Context, userID string) (domain.DaySet, error) {
	days, err := x.store.GraceDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("grace days: %w", err)
	}
	return domain.NewDaySet(days...), nil
}

// MergedStreakDates is the union used for streak continuity only.
// Completed-day totals must use QualifyingDates.
func (x *DayIndex) MergedStreakDates(ctx context.Context, userID string) (domain.DaySet, error) {
	q, g, err := x.both(ctx, userID)
	if err != nil {
		return nil, err
	}
	return q.Union(g), nil
}

func (x *DayIndex) both(ctx context.Context, userID string) (qualifying, grace domain.DaySet, err error) {
	if qualifying, err = x.QualifyingDates(ctx, userID); err != nil {
		return nil, nil, err
	}
	if grace, err = x.GraceDates(ctx, userID); err != nil {
		return nil, nil, err
	}
	return qualifying, grace, nil
}
