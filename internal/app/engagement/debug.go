package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/mindcamp/mindcamp/internal/domain"
)

// MaxSimulatedStreak bounds SimulateStreak so a typo can't write years of rows.
const MaxSimulatedStreak = 400

// simulatedWordCount is the word count given to generated entries.
const simulatedWordCount = 120

// ─── Admin Tools ────────────────────────────────────────────────────────────
// These mutate stored history directly and are only reachable through the
// guarded debug surface. They still go through the shared recompute.

// SimulateStreak replaces the user's history with days consecutive
// qualifying days ending today, then recomputes.
func (s *Service) SimulateStreak(ctx context.Context, userID string, days int) (domain.Snapshot, error) {
	if userID == "" {
		return domain.Snapshot{}, domain.ErrInvalidUser
	}
	if days < 0 || days > MaxSimulatedStreak {
		return domain.Snapshot{}, fmt.Errorf("%w: %d (max %d)", domain.ErrInvalidStreak, days, MaxSimulatedStreak)
	}
	now := s.clock.Now(ctx)
	today := domain.DayOf(now)
	words := max(simulatedWordCount, s.cfg.MinWords)

	entries := make([]domain.Entry, 0, days)
	for i := days - 1; i >= 0; i-- {
		entries = append(entries, domain.Entry{
			UserID:     userID,
			Day:        today.AddDays(-i),
			WordCount:  words,
			RecordedAt: now.Truncate(time.Second),
		})
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	if _, err := s.store.EnsureSnapshot(ctx, userID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if err := s.store.ReplaceEntries(ctx, userID, entries); err != nil {
		return domain.Snapshot{}, fmt.Errorf("replace entries: %w", err)
	}
	c, err := s.recomputeLocked(ctx, userID, "debug")
	return c.snap, err
}

// ResetUser wipes the user's history and snapshot. The following recompute
// starts them fresh with a full grace balance.
func (s *Service) ResetUser(ctx context.Context, userID string) (domain.Snapshot, error) {
	if userID == "" {
		return domain.Snapshot{}, domain.ErrInvalidUser
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.store.ResetUser(ctx, userID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("reset user: %w", err)
	}
	s.invalidate(ctx, userID)

	c, err := s.recomputeLocked(ctx, userID, "debug")
	return c.snap, err
}

// SetGraceState overwrites the grace balance and last refill time without
// recomputing, so the next read exercises the refill rule against it.
func (s *Service) SetGraceState(ctx context.Context, userID string, tokens int, lastReset time.Time) (domain.Snapshot, error) {
	if userID == "" {
		return domain.Snapshot{}, domain.ErrInvalidUser
	}
	if tokens < 0 || tokens > domain.MaxGraceTokens {
		return domain.Snapshot{}, fmt.Errorf("%w: %d", domain.ErrInvalidTokens, tokens)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	if _, err := s.store.EnsureSnapshot(ctx, userID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if !lastReset.IsZero() {
		lastReset = lastReset.UTC().Truncate(time.Second)
	}
	if err := s.store.SetGraceState(ctx, userID, tokens, lastReset); err != nil {
		return domain.Snapshot{}, fmt.Errorf("set grace state: %w", err)
	}
	s.invalidate(ctx, userID)

	snap, _, err := s.store.LoadSnapshot(ctx, userID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("snapshot cache invalidate failed")
	}
}
