package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mindcamp/mindcamp/internal/app/clock"
	"github.com/mindcamp/mindcamp/internal/domain"
	"github.com/mindcamp/mindcamp/internal/infra/metrics"
)

// RefillDue reports whether a monthly refill is owed: last is unset, or now
// falls in a strictly later UTC (year, month) than last.
func RefillDue(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	ly, lm, _ := last.UTC().Date()
	ny, nm, _ := now.UTC().Date()
	return ny > ly || (ny == ly && nm > lm)
}

// GraceLedger owns the per-user grace token balance.
// Tokens refill to MaxGraceTokens once per UTC calendar month and never stack.
type GraceLedger struct {
	store domain.ProgressStore
	clock clock.Clock
	locks *keyedMutex
	log   *logrus.Entry

	// afterSpend runs under the user lock after a successful spend.
	afterSpend func(ctx context.Context, userID string) (domain.Snapshot, error)
	// onRefill runs after a refill is persisted.
	onRefill func(ctx context.Context, userID string)
}

func newGraceLedger(store domain.ProgressStore, clk clock.Clock, locks *keyedMutex) *GraceLedger {
	return &GraceLedger{
		store: store,
		clock: clk,
		locks: locks,
		log:   logrus.WithField("component", "grace"),
	}
}

// Remaining returns the user's balance, applying a due refill first.
func (l *GraceLedger) Remaining(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, domain.ErrInvalidUser
	}
	unlock := l.locks.Lock(userID)
	defer unlock()

	snap, err := l.store.EnsureSnapshot(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if _, err := l.refillLocked(ctx, &snap, l.clock.Now(ctx)); err != nil {
		return 0, err
	}
	return snap.GraceTokensRemaining, nil
}

// MonthlyRefillIfDue sets the balance to MaxGraceTokens when a new UTC month
// has started since the last refill. Returns whether a refill happened.
func (l *GraceLedger) MonthlyRefillIfDue(ctx context.Context, userID string, now time.Time) (bool, error) {
	if userID == "" {
		return false, domain.ErrInvalidUser
	}
	unlock := l.locks.Lock(userID)
	defer unlock()

	snap, err := l.store.EnsureSnapshot(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	return l.refillLocked(ctx, &snap, now)
}

// Spend covers day with a grace token. It fails with ErrAlreadyQualifying,
// ErrAlreadyGraced or ErrGraceExhausted; duplicate calls for the same day
// after a success all return ErrAlreadyGraced without touching the balance.
func (l *GraceLedger) Spend(ctx context.Context, userID string, day domain.Day) error {
	_, err := l.spend(ctx, userID, &day)
	return err
}

// spend resolves a nil day to yesterday and returns the recomputed snapshot.
func (l *GraceLedger) spend(ctx context.Context, userID string, day *domain.Day) (domain.Snapshot, error) {
	if userID == "" {
		return domain.Snapshot{}, domain.ErrInvalidUser
	}
	now := l.clock.Now(ctx)
	today := domain.DayOf(now)

	target := today.AddDays(-1)
	if day != nil && !day.IsZero() {
		parsed, err := domain.ParseDay(string(*day))
		if err != nil {
			metrics.GraceSpends.WithLabelValues("invalid").Inc()
			return domain.Snapshot{}, err
		}
		target = parsed
	}
	if !target.Before(today) {
		metrics.GraceSpends.WithLabelValues("invalid").Inc()
		return domain.Snapshot{}, fmt.Errorf("%w: %s is not before %s", domain.ErrInvalidGraceDay, target, today)
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	snap, err := l.store.EnsureSnapshot(ctx, userID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if _, err := l.refillLocked(ctx, &snap, now); err != nil {
		return domain.Snapshot{}, err
	}

	remaining, err := l.store.SpendGrace(ctx, domain.GraceDay{
		ID:        uuid.New().String(),
		UserID:    userID,
		Day:       target,
		CreatedAt: now.Truncate(time.Second),
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyQualifying):
		metrics.GraceSpends.WithLabelValues("already_qualifying").Inc()
		return domain.Snapshot{}, err
	case errors.Is(err, domain.ErrAlreadyGraced):
		metrics.GraceSpends.WithLabelValues("already_graced").Inc()
		return domain.Snapshot{}, err
	case errors.Is(err, domain.ErrGraceExhausted):
		metrics.GraceSpends.WithLabelValues("exhausted").Inc()
		return domain.Snapshot{}, err
	case err != nil:
		return domain.Snapshot{}, fmt.Errorf("spend grace: %w", err)
	}

	metrics.GraceSpends.WithLabelValues("spent").Inc()
	l.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"day":       target,
		"remaining": remaining,
	}).Info("grace token spent")

	if l.afterSpend == nil {
		snap.GraceTokensRemaining = remaining
		return snap, nil
	}
	return l.afterSpend(ctx, userID)
}

// refillLocked applies a due refill to snap and persists it.
// Caller holds the user lock.
func (l *GraceLedger) refillLocked(ctx context.Context, snap *domain.Snapshot, now time.Time) (bool, error) {
	if !RefillDue(snap.LastGraceResetAt, now) {
		return false, nil
	}
	at := now.UTC().Truncate(time.Second)
	if err := l.store.SetGraceState(ctx, snap.UserID, domain.MaxGraceTokens, at); err != nil {
		return false, fmt.Errorf("refill grace: %w", err)
	}
	snap.GraceTokensRemaining = domain.MaxGraceTokens
	snap.LastGraceResetAt = at
	if l.onRefill != nil {
		l.onRefill(ctx, snap.UserID)
	}

	metrics.GraceRefills.Inc()
	l.log.WithFields(logrus.Fields{
		"user_id": snap.UserID,
		"month":   at.Format("2006-01"),
	}).Debug("monthly grace refill")
	return true, nil
}
