// Package domain holds the pure types of the mindcamp streak & rank engine.
// The engine turns a user's qualifying journal days and grace usage into a
// streak, a longest streak, a completed-day count, a rank and a grace balance.
// Nothing in this package touches storage, HTTP or the system clock.
package domain

import "time"

// MaxGraceTokens is the grace balance after a monthly refill.
const MaxGraceTokens = 2

// ─── Rank Types ─────────────────────────────────────────────────────────────

// Rank is one of six ordered tiers, a pure function of the current streak.
type Rank string

const (
	RankGuest     Rank = "guest"
	RankMember    Rank = "member"
	RankRegular   Rank = "regular"
	RankVeteran   Rank = "veteran"
	RankFinalWeek Rank = "finalweek"
	RankMaster    Rank = "master"
)

// RankTier is one row of the rank table.
type RankTier struct {
	Rank      Rank   `json:"rank"`
	Label     string `json:"label"`
	MinStreak int    `json:"min_streak"` // inclusive lower bound
}

// NextRankInfo tells the UI how far the next tier is.
type NextRankInfo struct {
	Rank       Rank   `json:"rank"`
	Label      string `json:"next_rank"`
	DaysNeeded int    `json:"days_needed"`
}

// ─── Progress Snapshot ──────────────────────────────────────────────────────

// Snapshot is the persisted per-user progress record.
// Only the progress aggregator writes the derived fields; grace fields are
// written by the aggregator (monthly refill) and the grace ledger (spend).
type Snapshot struct {
	UserID               string    `json:"user_id"`
	StreakCount          int       `json:"streak_count"`
	LongestStreak        int       `json:"longest_streak"`      // ratchet, never decreases
	TotalCompletedDays   int       `json:"total_completed_days"` // distinct qualifying days, grace excluded
	CurrentRank          Rank      `json:"current_rank"`
	GraceTokensRemaining int       `json:"grace_tokens_remaining"`
	LastGraceResetAt     time.Time `json:"last_grace_reset_at,omitempty"` // zero = never refilled
	LastEntryDate        Day       `json:"last_entry_date,omitempty"`
	ProgramStartDate     Day       `json:"program_start_date,omitempty"`
}

// NewSnapshot returns the state of a user the engine has never seen.
func NewSnapshot(userID string) Snapshot {
	return Snapshot{UserID: userID, CurrentRank: RankGuest}
}

// ─── Activity ───────────────────────────────────────────────────────────────

// Activity levels used by the heatmap view.
const (
	ActivityNone       = 0
	ActivityGrace      = 2
	ActivityQualifying = 3
)

// ProgressView is what a progress read returns to UI and insight collaborators.
type ProgressView struct {
	Snapshot
	NextRank     *NextRankInfo `json:"next_rank_info"`
	ActivityMap  map[Day]int   `json:"activity_map"`
	ProgramDay   int           `json:"program_day"`
	TotalEntries int           `json:"total_entries"`
	Today        Day           `json:"today"`
}

// ─── Records ────────────────────────────────────────────────────────────────

// Entry is a qualifying journal entry as seen by the engine: a date and a
// word count. Entry content never crosses into this layer.
type Entry struct {
	UserID     string    `json:"user_id"`
	Day        Day       `json:"date"`
	WordCount  int       `json:"word_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

// GraceDay marks a past day as covered by a spent grace token. Immutable.
type GraceDay struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Day       Day       `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// ─── Debug Audit ────────────────────────────────────────────────────────────

// DebugAuditEvent records one use of an admin debug tool.
type DebugAuditEvent struct {
	ID           string            `json:"id"`
	Action       string            `json:"action"`
	ActorUserID  string            `json:"actor_user_id"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	IP           string            `json:"ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
