package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewWithConfig_Local(t *testing.T) {
	cfg := DefaultConfig()
	d, err := NewWithConfig(context.Background(), cfg, t.TempDir())
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	if d.Redis != nil {
		t.Error("Redis should be nil without redis.addr")
	}

	req := httptest.NewRequest("GET", "/api/progress", nil)
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	d.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/progress = %d: %s", w.Code, w.Body.String())
	}

	// Debug tools stay unmounted unless enabled.
	req = httptest.NewRequest("POST", "/api/debug/reset-user", strings.NewReader(`{"confirm":true}`))
	req.Header.Set("X-User-ID", "admin")
	req.Header.Set("X-User-Role", "admin")
	w = httptest.NewRecorder()
	d.Server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("debug route = %d, want 404", w.Code)
	}
}

func TestNewWithConfig_RedisAndDebug(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := DefaultConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Debug.Enabled = true
	cfg.Debug.RateLimit = 1

	d, err := NewWithConfig(context.Background(), cfg, t.TempDir())
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()
	if d.Redis == nil {
		t.Fatal("Redis client not wired")
	}

	h := d.Server.Handler()
	call := func() int {
		req := httptest.NewRequest("POST", "/api/debug/grace", strings.NewReader(`{"tokens":1}`))
		req.Header.Set("X-User-ID", "admin")
		req.Header.Set("X-User-Role", "admin")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}
	if got := call(); got != http.StatusOK {
		t.Fatalf("first debug call = %d, want 200", got)
	}
	if got := call(); got != http.StatusTooManyRequests {
		t.Errorf("second debug call = %d, want 429 from the redis limiter", got)
	}

	// A progress read fills the snapshot cache.
	req := httptest.NewRequest("GET", "/api/progress", nil)
	req.Header.Set("X-User-ID", "u1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !mr.Exists("mindcamp:snapshot:u1") {
		t.Error("expected snapshot cached in redis")
	}

	d.Health.RunOnce(context.Background())
	if !d.Health.IsHealthy() {
		t.Errorf("health = %+v", d.Health.Statuses())
	}
}

func TestNewWithConfig_RedisUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewWithConfig(ctx, cfg, t.TempDir()); err == nil {
		t.Fatal("expected an error for unreachable redis")
	}
}
