package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ProgressStore persists snapshots, qualifying days and grace days.
// Implemented by infra/sqlite.DB.
type ProgressStore interface {
	// EnsureSnapshot returns the user's snapshot, creating a fresh one if absent.
	EnsureSnapshot(ctx context.Context, userID string) (Snapshot, error)

	// LoadSnapshot returns the persisted snapshot and whether it exists.
	LoadSnapshot(ctx context.Context, userID string) (Snapshot, bool, error)

	// SaveSnapshot writes the derived fields of s in a single UPSERT and
	// returns the row as persisted. longest_streak and total_completed_days
	// are never lowered by the write; grace fields are left untouched.
	SaveSnapshot(ctx context.Context, s Snapshot) (Snapshot, error)

	// SetGraceState overwrites the grace balance and the last refill time.
	SetGraceState(ctx context.Context, userID string, tokens int, lastReset time.Time) error

	// AppendEntry stores a qualifying entry and reports whether it is the
	// first qualifying entry for (user, day).
	AppendEntry(ctx context.Context, e Entry) (firstOfDay bool, err error)

	// QualifyingDays lists every distinct qualifying day of the user.
	QualifyingDays(ctx context.Context, userID string) ([]Day, error)

	// GraceDays lists every grace-covered day of the user.
	GraceDays(ctx context.Context, userID string) ([]Day, error)

	// EntryCount returns the number of stored entries (not days).
	EntryCount(ctx context.Context, userID string) (int, error)

	// SpendGrace atomically checks the day and balance, inserts g and
	// decrements the balance. Returns ErrAlreadyQualifying, ErrAlreadyGraced
	// or ErrGraceExhausted, in that order of precedence.
	SpendGrace(ctx context.Context, g GraceDay) (remaining int, err error)

	// ReplaceEntries drops the user's entries and grace days, clears the
	// derived snapshot fields (grace balance kept) and inserts entries.
	ReplaceEntries(ctx context.Context, userID string, entries []Entry) error

	// ResetUser deletes entries, grace days and the snapshot of a user.
	ResetUser(ctx context.Context, userID string) error
}

// SnapshotCache holds the last persisted snapshot for cheap reads.
// A cache miss is (zero, false, nil).
type SnapshotCache interface {
	Get(ctx context.Context, userID string) (Snapshot, bool, error)
	Set(ctx context.Context, s Snapshot) error
	Invalidate(ctx context.Context, userID string) error
}

// AuditSink records admin debug actions.
type AuditSink interface {
	RecordDebugAction(ctx context.Context, ev DebugAuditEvent) error
}
