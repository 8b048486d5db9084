package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindcamp/mindcamp/internal/domain"
)

var _ domain.AuditSink = (*DB)(nil)

type auditRow struct {
	ID           string `db:"id"`
	Action       string `db:"action"`
	ActorUserID  string `db:"actor_user_id"`
	TargetUserID string `db:"target_user_id"`
	IP           string `db:"ip"`
	UserAgent    string `db:"user_agent"`
	Method       string `db:"method"`
	Path         string `db:"path"`
	Metadata     string `db:"metadata"`
	CreatedAt    int64  `db:"created_at"`
}

// ─── Debug Audit Log ────────────────────────────────────────────────────────

// RecordDebugAction appends an audit row.
func (d *DB) RecordDebugAction(ctx context.Context, ev domain.DebugAuditEvent) error {
	meta := []byte("{}")
	if len(ev.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(ev.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO debug_audit_logs (id, action, actor_user_id, target_user_id, ip, user_agent, method, path, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Action, ev.ActorUserID, ev.TargetUserID, ev.IP, ev.UserAgent,
		ev.Method, ev.Path, string(meta), ev.CreatedAt.Unix(),
	)
	return err
}

// ListDebugActions returns the most recent audit rows, newest first.
func (d *DB) ListDebugActions(ctx context.Context, limit int) ([]domain.DebugAuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []auditRow
	if err := d.db.SelectContext(ctx, &rows,
		`SELECT id, action, actor_user_id, target_user_id, ip, user_agent, method, path, metadata, created_at
		 FROM debug_audit_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	); err != nil {
		return nil, err
	}

	out := make([]domain.DebugAuditEvent, 0, len(rows))
	for _, r := range rows {
		ev := domain.DebugAuditEvent{
			ID:           r.ID,
			Action:       r.Action,
			ActorUserID:  r.ActorUserID,
			TargetUserID: r.TargetUserID,
			IP:           r.IP,
			UserAgent:    r.UserAgent,
			Method:       r.Method,
			Path:         r.Path,
			CreatedAt:    time.Unix(r.CreatedAt, 0).UTC(),
		}
		if r.Metadata != "" && r.Metadata != "{}" {
			if err := json.Unmarshal([]byte(r.Metadata), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}
