// Package clock provides the single source of "now" for streak mechanics.
// No mechanics code reads the system time directly; it asks a Clock, so tests
// and admins can move across day boundaries and month rollovers at will.
package clock

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Clock returns the current instant, always in UTC.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// ─── System Clock ───────────────────────────────────────────────────────────

// System reads the wall clock.
type System struct{}

// Now returns wall-clock UTC time.
func (System) Now(context.Context) time.Time { return time.Now().UTC() }

// ─── Fixed Clock ────────────────────────────────────────────────────────────

// Fixed is a settable clock for tests and CLI simulations.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a clock stopped at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t.UTC()}
}

// Now returns the stored instant.
func (f *Fixed) Now(context.Context) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// ─── Virtual Date Override ──────────────────────────────────────────────────

type overrideKey struct{}

type override struct {
	at    time.Time
	admin bool
}

// WithOverride attaches a virtual date to ctx. raw may be RFC 3339 or a bare
// YYYY-MM-DD. Unparseable or empty values leave ctx untouched, so a malformed
// override silently falls back to real time.
func WithOverride(ctx context.Context, raw string, admin bool) context.Context {
	t, ok := ParseOverride(raw)
	if !ok {
		return ctx
	}
	return context.WithValue(ctx, overrideKey{}, override{at: t, admin: admin})
}

// ParseOverride parses a virtual date value.
func ParseOverride(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Provider honours a request-scoped override only for administrators or when
// the deployment allows virtual time (non-production).
type Provider struct {
	Base         Clock
	AllowVirtual bool
}

// NewProvider wraps base. A nil base means the system clock.
func NewProvider(base Clock, allowVirtual bool) *Provider {
	if base == nil {
		base = System{}
	}
	return &Provider{Base: base, AllowVirtual: allowVirtual}
}

// Now returns the override carried by ctx when permitted, else Base.Now.
func (p *Provider) Now(ctx context.Context) time.Time {
	if o, ok := ctx.Value(overrideKey{}).(override); ok && (o.admin || p.AllowVirtual) {
		return o.at
	}
	return p.Base.Now(ctx).UTC()
}

// Virtual reports whether Now would return an override for ctx.
func (p *Provider) Virtual(ctx context.Context) bool {
	o, ok := ctx.Value(overrideKey{}).(override)
	return ok && (o.admin || p.AllowVirtual)
}
