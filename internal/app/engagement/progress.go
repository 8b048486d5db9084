package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mindcamp/mindcamp/internal/app/clock"
	"github.com/mindcamp/mindcamp/internal/domain"
	"github.com/mindcamp/mindcamp/internal/infra/metrics"
)

// Config holds the mechanics knobs.
type Config struct {
	MinWords     int // an entry qualifies when WordCount >= MinWords
	LookbackDays int // activity map window
}

// DefaultConfig returns the production mechanics settings.
func DefaultConfig() Config {
	return Config{MinWords: 1, LookbackDays: 365}
}

// Service is the progress aggregator. Every path that can change a user's
// progress (entry ingestion, grace spend, admin tools, plain reads) funnels
// into the same recompute.
type Service struct {
	store  domain.ProgressStore
	clock  clock.Clock
	cache  domain.SnapshotCache // optional
	cfg    Config
	index  *DayIndex
	ledger *GraceLedger
	locks  *keyedMutex
	log    *logrus.Entry
}

// NewService wires the aggregator. cache may be nil.
func NewService(store domain.ProgressStore, clk clock.Clock, cache domain.SnapshotCache, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	locks := newKeyedMutex()
	s := &Service{
		store: store,
		clock: clk,
		cache: cache,
		cfg:   cfg,
		index: NewDayIndex(store),
		locks: locks,
		log:   logrus.WithField("component", "engagement"),
	}
	s.ledger = newGraceLedger(store, clk, locks)
	s.ledger.afterSpend = func(ctx context.Context, userID string) (domain.Snapshot, error) {
		c, err := s.recomputeLocked(ctx, userID, "grace")
		return c.snap, err
	}
	s.ledger.onRefill = s.invalidate
	return s
}

// Ledger exposes the grace ledger sharing this service's locks.
func (s *Service) Ledger() *GraceLedger { return s.ledger }

// Index exposes the qualifying-day index.
func (s *Service) Index() *DayIndex { return s.index }

// Config returns the effective mechanics settings.
func (s *Service) Config() Config { return s.cfg }

// Now returns the service clock's current instant for ctx.
func (s *Service) Now(ctx context.Context) time.Time { return s.clock.Now(ctx) }

// ─── Recompute ──────────────────────────────────────────────────────────────

// computed carries the inputs of a recompute alongside its result so read
// paths don't load the day sets twice.
type computed struct {
	snap       domain.Snapshot
	qualifying domain.DaySet
	grace      domain.DaySet
	today      domain.Day
}

// Recompute derives and persists the user's snapshot from stored days.
// With no new input it returns identical snapshots on every call.
func (s *Service) Recompute(ctx context.Context, userID string) (domain.Snapshot, error) {
	if userID == "" {
		return domain.Snapshot{}, domain.ErrInvalidUser
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	c, err := s.recomputeLocked(ctx, userID, "explicit")
	return c.snap, err
}

// recomputeLocked runs with the user lock held. Nothing is written unless
// every derived field was computed from the same inputs.
func (s *Service) recomputeLocked(ctx context.Context, userID, trigger string) (computed, error) {
	start := time.Now()
	now := s.clock.Now(ctx)
	today := domain.DayOf(now)

	snap, err := s.store.EnsureSnapshot(ctx, userID)
	if err != nil {
		return computed{}, fmt.Errorf("load snapshot: %w", err)
	}
	if _, err := s.ledger.refillLocked(ctx, &snap, now); err != nil {
		return computed{}, err
	}

	qualifying, grace, err := s.index.both(ctx, userID)
	if err != nil {
		return computed{}, err
	}
	merged := qualifying.Union(grace)

	next := snap
	next.StreakCount = CurrentStreak(merged, today)
	next.LongestStreak = max(snap.LongestStreak, LongestStreak(merged))
	next.TotalCompletedDays = qualifying.Len()
	next.CurrentRank = RankFor(next.StreakCount)
	next.ProgramStartDate, next.LastEntryDate = "", ""
	if days := qualifying.Sorted(); len(days) > 0 {
		next.ProgramStartDate = days[0]
		next.LastEntryDate = days[len(days)-1]
	}

	saved, err := s.store.SaveSnapshot(ctx, next)
	if err != nil {
		return computed{}, fmt.Errorf("save snapshot: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, saved); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("snapshot cache set failed")
		}
	}

	metrics.RecomputesTotal.WithLabelValues(trigger).Inc()
	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	metrics.RankReached.WithLabelValues(string(saved.CurrentRank)).Inc()

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"trigger": trigger,
		"streak":  saved.StreakCount,
		"rank":    saved.CurrentRank,
	}).Debug("progress recomputed")

	return computed{snap: saved, qualifying: qualifying, grace: grace, today: today}, nil
}

// ─── Progress Read ──────────────────────────────────────────────────────────

// GetProgress recomputes and returns the full progress view. Opening the app
// in a new month applies the monthly refill here.
func (s *Service) GetProgress(ctx context.Context, userID string) (domain.ProgressView, error) {
	if userID == "" {
		return domain.ProgressView{}, domain.ErrInvalidUser
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	c, err := s.recomputeLocked(ctx, userID, "read")
	if err != nil {
		return domain.ProgressView{}, err
	}
	entries, err := s.store.EntryCount(ctx, userID)
	if err != nil {
		return domain.ProgressView{}, fmt.Errorf("entry count: %w", err)
	}

	return domain.ProgressView{
		Snapshot:     c.snap,
		NextRank:     NextRank(c.snap.StreakCount),
		ActivityMap:  BuildActivityMap(c.qualifying, c.grace, c.today, s.cfg.LookbackDays),
		ProgramDay:   ProgramDay(c.snap.ProgramStartDate, c.today),
		TotalEntries: entries,
		Today:        c.today,
	}, nil
}

// Snapshot returns the last persisted snapshot without recomputing.
// The cache is consulted first; a user never seen returns a fresh snapshot.
func (s *Service) Snapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	if userID == "" {
		return domain.Snapshot{}, domain.ErrInvalidUser
	}
	if s.cache != nil {
		snap, ok, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			metrics.SnapshotCacheLookups.WithLabelValues("error").Inc()
			s.log.WithError(err).WithField("user_id", userID).Warn("snapshot cache get failed")
		case ok:
			metrics.SnapshotCacheLookups.WithLabelValues("hit").Inc()
			return snap, nil
		default:
			metrics.SnapshotCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	snap, found, err := s.store.LoadSnapshot(ctx, userID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return domain.NewSnapshot(userID), nil
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("snapshot cache set failed")
		}
	}
	return snap, nil
}

// ─── Entry Ingestion ────────────────────────────────────────────────────────

// EntryInput is one entry as reported by the entry-storage collaborator.
// Only the date and word count cross into the engine.
type EntryInput struct {
	Day       domain.Day
	WordCount int
}

// RecordResult describes what an ingestion call did.
type RecordResult struct {
	Qualifying bool            `json:"qualifying"`
	FirstOfDay bool            `json:"first_of_day"`
	Recomputed bool            `json:"recomputed"`
	Snapshot   domain.Snapshot `json:"snapshot"`
}

// RecordQualifyingEntry appends an entry when it meets MinWords and
// recomputes only when it is the first qualifying entry of its day.
func (s *Service) RecordQualifyingEntry(ctx context.Context, userID string, day domain.Day, wordCount int) (RecordResult, error) {
	return s.SyncEntries(ctx, userID, []EntryInput{{Day: day, WordCount: wordCount}})
}

// SyncEntries ingests a batch. Every entry is validated before anything is
// written; at most one recompute runs for the whole batch.
func (s *Service) SyncEntries(ctx context.Context, userID string, entries []EntryInput) (RecordResult, error) {
	if userID == "" {
		return RecordResult{}, domain.ErrInvalidUser
	}
	now := s.clock.Now(ctx)
	// One day of slack for clients ahead of UTC.
	latest := domain.DayOf(now).AddDays(1)
	normalized := make([]EntryInput, len(entries))
	for i, e := range entries {
		day, err := s.validateEntry(e, latest)
		if err != nil {
			return RecordResult{}, err
		}
		normalized[i] = EntryInput{Day: day, WordCount: e.WordCount}
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	var res RecordResult
	for _, e := range normalized {
		if e.WordCount < s.cfg.MinWords {
			metrics.EntriesRecorded.WithLabelValues("below_minimum").Inc()
			continue
		}
		res.Qualifying = true
		first, err := s.store.AppendEntry(ctx, domain.Entry{
			UserID:     userID,
			Day:        e.Day,
			WordCount:  e.WordCount,
			RecordedAt: now.Truncate(time.Second),
		})
		if err != nil {
			return RecordResult{}, fmt.Errorf("append entry: %w", err)
		}
		if first {
			res.FirstOfDay = true
			metrics.EntriesRecorded.WithLabelValues("first_of_day").Inc()
		} else {
			metrics.EntriesRecorded.WithLabelValues("same_day").Inc()
		}
	}

	if res.FirstOfDay {
		c, err := s.recomputeLocked(ctx, userID, "entry")
		if err != nil {
			return RecordResult{}, err
		}
		res.Recomputed = true
		res.Snapshot = c.snap
		return res, nil
	}

	snap, found, err := s.store.LoadSnapshot(ctx, userID)
	if err != nil {
		return RecordResult{}, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		snap = domain.NewSnapshot(userID)
	}
	res.Snapshot = snap
	return res, nil
}

// validateEntry returns the entry's normalized day.
func (s *Service) validateEntry(e EntryInput, latest domain.Day) (domain.Day, error) {
	if e.Day.IsZero() {
		return "", fmt.Errorf("%w: missing date", domain.ErrInvalidDay)
	}
	day, err := domain.ParseDay(string(e.Day))
	if err != nil {
		return "", err
	}
	if e.WordCount < 0 {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidWordCount, e.WordCount)
	}
	if day.After(latest) {
		return "", fmt.Errorf("%w: %s", domain.ErrFutureEntry, day)
	}
	return day, nil
}

// ─── Grace ──────────────────────────────────────────────────────────────────

// SpendGrace spends one token on day (yesterday when nil) and returns the
// recomputed snapshot.
func (s *Service) SpendGrace(ctx context.Context, userID string, day *domain.Day) (domain.Snapshot, error) {
	return s.ledger.spend(ctx, userID, day)
}
