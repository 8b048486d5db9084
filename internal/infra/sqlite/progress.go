package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mindcamp/mindcamp/internal/domain"
)

var _ domain.ProgressStore = (*DB)(nil)

// progressRow mirrors the progress table.
type progressRow struct {
	UserID             string        `db:"user_id"`
	StreakCount        int           `db:"streak_count"`
	LongestStreak      int           `db:"longest_streak"`
	TotalCompletedDays int           `db:"total_completed_days"`
	CurrentRank        string        `db:"current_rank"`
	GraceTokens        int           `db:"grace_tokens"`
	LastGraceReset     sql.NullInt64 `db:"last_grace_reset"`
	LastEntryDate      string        `db:"last_entry_date"`
	ProgramStartDate   string        `db:"program_start_date"`
}

func (r progressRow) snapshot() domain.Snapshot {
	return domain.Snapshot{
		UserID:               r.UserID,
		StreakCount:          r.StreakCount,
		LongestStreak:        r.LongestStreak,
		TotalCompletedDays:   r.TotalCompletedDays,
		CurrentRank:          domain.Rank(r.CurrentRank),
		GraceTokensRemaining: r.GraceTokens,
		LastGraceResetAt:     fromNullableUnix(r.LastGraceReset),
		LastEntryDate:        domain.Day(r.LastEntryDate),
		ProgramStartDate:     domain.Day(r.ProgramStartDate),
	}
}

const selectProgress = `SELECT user_id, streak_count, longest_streak, total_completed_days,
	current_rank, grace_tokens, last_grace_reset, last_entry_date, program_start_date
	FROM progress WHERE user_id = ?`

// ─── Snapshot Repository ────────────────────────────────────────────────────

// EnsureSnapshot returns the user's snapshot, inserting a fresh row if absent.
func (d *DB) EnsureSnapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO progress (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`, userID,
	); err != nil {
		return domain.Snapshot{}, err
	}
	var row progressRow
	if err := d.db.GetContext(ctx, &row, selectProgress, userID); err != nil {
		return domain.Snapshot{}, err
	}
	return row.snapshot(), nil
}

// LoadSnapshot returns the persisted snapshot and whether it exists.
func (d *DB) LoadSnapshot(ctx context.Context, userID string) (domain.Snapshot, bool, error) {
	var row progressRow
	err := d.db.GetContext(ctx, &row, selectProgress, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return row.snapshot(), true, nil
}

// SaveSnapshot upserts the derived fields and reads the row back in the same
// transaction. The ratchet columns only ever move up.
func (d *DB) SaveSnapshot(ctx context.Context, s domain.Snapshot) (domain.Snapshot, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO progress (user_id, streak_count, longest_streak, total_completed_days,
			current_rank, last_entry_date, program_start_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			streak_count=excluded.streak_count,
			longest_streak=MAX(progress.longest_streak, excluded.longest_streak),
			total_completed_days=MAX(progress.total_completed_days, excluded.total_completed_days),
			current_rank=excluded.current_rank,
			last_entry_date=excluded.last_entry_date,
			program_start_date=excluded.program_start_date`,
		s.UserID, s.StreakCount, s.LongestStreak, s.TotalCompletedDays,
		string(s.CurrentRank), string(s.LastEntryDate), string(s.ProgramStartDate),
	)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("upsert progress: %w", err)
	}

	var row progressRow
	if err := tx.GetContext(ctx, &row, selectProgress, s.UserID); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return row.snapshot(), nil
}

// SetGraceState overwrites the grace balance and the last refill time.
func (d *DB) SetGraceState(ctx context.Context, userID string, tokens int, lastReset time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO progress (user_id, grace_tokens, last_grace_reset) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			grace_tokens=excluded.grace_tokens,
			last_grace_reset=excluded.last_grace_reset`,
		userID, tokens, nullableUnix(lastReset),
	)
	return err
}

// ─── Entries & Qualifying Days ──────────────────────────────────────────────

// AppendEntry logs the entry and marks its day as qualifying. firstOfDay is
// true only for the call that created the qualifying_days row.
func (d *DB) AppendEntry(ctx context.Context, e domain.Entry) (bool, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer rollback(tx)

	first, err := appendEntryTx(ctx, tx, e)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return first, nil
}

func appendEntryTx(ctx context.Context, tx *sqlx.Tx, e domain.Entry) (bool, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (user_id, day, word_count, recorded_at) VALUES (?, ?, ?, ?)`,
		e.UserID, string(e.Day), e.WordCount, e.RecordedAt.Unix(),
	); err != nil {
		return false, fmt.Errorf("insert entry: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO qualifying_days (user_id, day, first_entry_at) VALUES (?, ?, ?)`,
		e.UserID, string(e.Day), e.RecordedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert qualifying day: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// QualifyingDays lists the user's qualifying days in ascending order.
func (d *DB) QualifyingDays(ctx context.Context, userID string) ([]domain.Day, error) {
	return d.days(ctx, `SELECT day FROM qualifying_days WHERE user_id = ? ORDER BY day`, userID)
}

// GraceDays lists the user's grace-covered days in ascending order.
func (d *DB) GraceDays(ctx context.Context, userID string) ([]domain.Day, error) {
	return d.days(ctx, `SELECT day FROM grace_days WHERE user_id = ? ORDER BY day`, userID)
}

func (d *DB) days(ctx context.Context, query, userID string) ([]domain.Day, error) {
	var raw []string
	if err := d.db.SelectContext(ctx, &raw, query, userID); err != nil {
		return nil, err
	}
	out := make([]domain.Day, len(raw))
	for i, s := range raw {
		out[i] = domain.Day(s)
	}
	return out, nil
}

// EntryCount returns the number of entries recorded for the user.
func (d *DB) EntryCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := d.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM entries WHERE user_id = ?`, userID)
	return n, err
}

// ─── Grace Ledger ───────────────────────────────────────────────────────────

// SpendGrace checks and spends in one transaction. A failed check rolls back
// so the balance is never touched by a rejected spend.
func (d *DB) SpendGrace(ctx context.Context, g domain.GraceDay) (int, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer rollback(tx)

	var n int
	if err := tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM qualifying_days WHERE user_id = ? AND day = ?`, g.UserID, string(g.Day),
	); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, domain.ErrAlreadyQualifying
	}

	if err := tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM grace_days WHERE user_id = ? AND day = ?`, g.UserID, string(g.Day),
	); err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, domain.ErrAlreadyGraced
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE progress SET grace_tokens = grace_tokens - 1 WHERE user_id = ? AND grace_tokens > 0`,
		g.UserID,
	)
	if err != nil {
		return 0, fmt.Errorf("decrement grace: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, domain.ErrGraceExhausted
	}

	res, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO grace_days (id, user_id, day, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.UserID, string(g.Day), g.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert grace day: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, domain.ErrAlreadyGraced
	}

	var remaining int
	if err := tx.GetContext(ctx, &remaining,
		`SELECT grace_tokens FROM progress WHERE user_id = ?`, g.UserID,
	); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}

// ─── Admin ──────────────────────────────────────────────────────────────────

// ReplaceEntries swaps the user's history for entries and zeroes the derived
// snapshot fields so the ratchets restart from the new history.
func (d *DB) ReplaceEntries(ctx context.Context, userID string, entries []domain.Entry) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if err := deleteHistoryTx(ctx, tx, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE progress SET streak_count=0, longest_streak=0, total_completed_days=0,
			current_rank='guest', last_entry_date='', program_start_date=''
		 WHERE user_id = ?`, userID,
	); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	for _, e := range entries {
		e.UserID = userID
		if _, err := appendEntryTx(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ResetUser removes every row belonging to the user.
func (d *DB) ResetUser(ctx context.Context, userID string) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if err := deleteHistoryTx(ctx, tx, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progress WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return tx.Commit()
}

func deleteHistoryTx(ctx context.Context, tx *sqlx.Tx, userID string) error {
	for _, table := range []string{"entries", "qualifying_days", "grace_days"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
