package api

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mindcamp/mindcamp/internal/app/engagement"
	"github.com/mindcamp/mindcamp/internal/domain"
	"github.com/mindcamp/mindcamp/internal/infra/metrics"
)

// ─── Debug Guard ────────────────────────────────────────────────────────────

// RateLimiter is a fixed-window limiter. Both cache.MemoryLimiter and
// cache.RedisLimiter satisfy it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// DebugConfig controls the admin debug surface.
type DebugConfig struct {
	Enabled        bool
	AllowHeavy     bool // permits actions that rewrite a whole history
	RequireConfirm bool
	ConfirmToken   string
	RateLimit      int // per actor and action; <= 0 disables limiting
	RateWindow     time.Duration
	AuditToLog     bool
}

// DefaultDebugConfig returns a disabled surface with production-safe knobs.
func DefaultDebugConfig() DebugConfig {
	return DebugConfig{
		RequireConfirm: true,
		ConfirmToken:   "CONFIRM",
		RateLimit:      5,
		RateWindow:     time.Minute,
		AuditToLog:     true,
	}
}

// DebugGuard gates every /api/debug action: enabled, authenticated, admin,
// heavy allowed, confirmed, then rate limited. Allowed actions are audited.
type DebugGuard struct {
	cfg     DebugConfig
	limiter RateLimiter
	audit   domain.AuditSink // optional
	log     *logrus.Entry
}

// NewDebugGuard creates a guard. audit may be nil.
func NewDebugGuard(cfg DebugConfig, limiter RateLimiter, audit domain.AuditSink) *DebugGuard {
	if cfg.ConfirmToken == "" {
		cfg.ConfirmToken = "CONFIRM"
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &DebugGuard{
		cfg:     cfg,
		limiter: limiter,
		audit:   audit,
		log:     logrus.WithField("component", "debug"),
	}
}

// debugAction describes what a debug route asks of the guard.
type debugAction struct {
	name            string
	heavy           bool
	requiresConfirm bool
}

var (
	actionSimulateStreak = debugAction{name: "simulate-streak", heavy: true, requiresConfirm: true}
	actionResetUser      = debugAction{name: "reset-user", requiresConfirm: true}
	actionGrace          = debugAction{name: "grace"}
)

// enforce writes the rejection and returns false when the request may not
// proceed. confirm is the raw "confirm" field of the request body.
func (g *DebugGuard) enforce(w http.ResponseWriter, r *http.Request, act debugAction, confirm json.RawMessage) bool {
	deny := func(status int, typ, msg string) bool {
		metrics.DebugActions.WithLabelValues(act.name, "denied").Inc()
		writeTypedError(w, status, typ, msg)
		return false
	}

	if !g.cfg.Enabled {
		return deny(http.StatusNotFound, "not_found", "Not found")
	}
	id := IdentityFrom(r.Context())
	if id.UserID == "" {
		return deny(http.StatusUnauthorized, "unauthorized", "Unauthorized")
	}
	if !id.Admin {
		return deny(http.StatusForbidden, "forbidden", "Forbidden")
	}
	if act.heavy && !g.cfg.AllowHeavy {
		return deny(http.StatusNotFound, "not_found", "Not found")
	}
	if act.requiresConfirm && g.cfg.RequireConfirm && !confirmed(confirm, g.cfg.ConfirmToken) {
		return deny(http.StatusBadRequest, "confirmation_required", "Confirmation required")
	}

	if g.cfg.RateLimit <= 0 || g.limiter == nil {
		return true
	}
	ok, retry, err := g.limiter.Allow(r.Context(), id.UserID+":"+act.name, g.cfg.RateLimit, g.cfg.RateWindow)
	if err != nil {
		// A guard that cannot count does not let requests through.
		g.log.WithError(err).WithField("action", act.name).Error("rate limiter unavailable")
		metrics.DebugActions.WithLabelValues(act.name, "error").Inc()
		writeTypedError(w, http.StatusServiceUnavailable, "unavailable", "rate limiter unavailable")
		return false
	}
	if !ok {
		secs := int(math.Ceil(retry.Seconds()))
		if secs < 1 {
			secs = 1
		}
		metrics.DebugActions.WithLabelValues(act.name, "rate_limited").Inc()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Too many requests",
				"type":    "rate_limited",
			},
			"retryAfterSeconds": secs,
		})
		return false
	}
	return true
}

// confirmed accepts true or a string equal to token.
func confirmed(raw json.RawMessage, token string) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s) == token
	}
	return false
}

// record audits a completed action. Audit failures never fail the action.
func (g *DebugGuard) record(r *http.Request, act debugAction, target string, meta map[string]string, outcome string) {
	metrics.DebugActions.WithLabelValues(act.name, outcome).Inc()

	id := IdentityFrom(r.Context())
	if meta == nil {
		meta = map[string]string{}
	}
	meta["outcome"] = outcome
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		meta["request_id"] = rid
	}
	ev := domain.DebugAuditEvent{
		ID:           uuid.NewString(),
		Action:       act.name,
		ActorUserID:  id.UserID,
		TargetUserID: target,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
		Method:       r.Method,
		Path:         r.URL.Path,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}

	if g.cfg.AuditToLog {
		g.log.WithFields(logrus.Fields{
			"action":         ev.Action,
			"actor_user_id":  ev.ActorUserID,
			"target_user_id": ev.TargetUserID,
			"ip":             ev.IP,
			"path":           ev.Path,
			"outcome":        outcome,
		}).Info("debug action")
	}
	if g.audit != nil {
		if err := g.audit.RecordDebugAction(r.Context(), ev); err != nil {
			g.log.WithError(err).WithField("action", ev.Action).Warn("audit write failed")
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop; RealIP has usually
// already folded it into RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ─── Debug Handlers ─────────────────────────────────────────────────────────

type debugRequest struct {
	UserID  string          `json:"userId,omitempty"`
	Confirm json.RawMessage `json:"confirm,omitempty"`

	// simulate-streak
	Streak *int `json:"streak,omitempty"`

	// grace
	Tokens           *int       `json:"tokens,omitempty"`
	LastGraceResetAt *time.Time `json:"lastGraceResetAt,omitempty"`
}

// target returns the user the action applies to: the body's userId or the
// acting admin.
func (d debugRequest) target(r *http.Request) string {
	if u := strings.TrimSpace(d.UserID); u != "" {
		return u
	}
	return IdentityFrom(r.Context()).UserID
}

// decodeDebug reads the body before the guard runs since the confirmation
// travels in it. A decode error is reported only once the guard has passed.
func decodeDebug(r *http.Request) (debugRequest, error) {
	var req debugRequest
	err := decodeJSON(r, &req)
	return req, err
}

// admit runs the guard and then rejects an unreadable body.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, act debugAction) (debugRequest, bool) {
	req, err := decodeDebug(r)
	if !s.debug.enforce(w, r, act, req.Confirm) {
		return req, false
	}
	if err != nil {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return req, false
	}
	return req, true
}

func (s *Server) handleDebugSimulateStreak(w http.ResponseWriter, r *http.Request) {
	req, ok := s.admit(w, r, actionSimulateStreak)
	if !ok {
		return
	}
	if req.Streak == nil {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", "streak is required")
		return
	}
	target := req.target(r)
	meta := map[string]string{"streak": strconv.Itoa(*req.Streak)}

	snap, err := s.svc.SimulateStreak(r.Context(), target, *req.Streak)
	if err != nil {
		s.debug.record(r, actionSimulateStreak, target, meta, "error")
		s.writeDomainError(w, r, err)
		return
	}
	s.debug.record(r, actionSimulateStreak, target, meta, "ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"streak":         *req.Streak,
		"expectedRank":   engagement.RankFor(*req.Streak),
		"entriesCreated": *req.Streak,
		"progress":       snap,
	})
}

func (s *Server) handleDebugResetUser(w http.ResponseWriter, r *http.Request) {
	req, ok := s.admit(w, r, actionResetUser)
	if !ok {
		return
	}
	target := req.target(r)

	snap, err := s.svc.ResetUser(r.Context(), target)
	if err != nil {
		s.debug.record(r, actionResetUser, target, nil, "error")
		s.writeDomainError(w, r, err)
		return
	}
	s.debug.record(r, actionResetUser, target, nil, "ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"progress": snap,
	})
}

func (s *Server) handleDebugGrace(w http.ResponseWriter, r *http.Request) {
	req, ok := s.admit(w, r, actionGrace)
	if !ok {
		return
	}
	if req.Tokens == nil {
		writeTypedError(w, http.StatusBadRequest, "invalid_request", "tokens is required")
		return
	}
	target := req.target(r)
	var lastReset time.Time
	if req.LastGraceResetAt != nil {
		lastReset = req.LastGraceResetAt.UTC()
	}
	meta := map[string]string{"tokens": strconv.Itoa(*req.Tokens)}
	if !lastReset.IsZero() {
		meta["last_grace_reset_at"] = lastReset.Format(time.RFC3339)
	}

	snap, err := s.svc.SetGraceState(r.Context(), target, *req.Tokens, lastReset)
	if err != nil {
		s.debug.record(r, actionGrace, target, meta, "error")
		s.writeDomainError(w, r, err)
		return
	}
	s.debug.record(r, actionGrace, target, meta, "ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"progress": snap,
	})
}
