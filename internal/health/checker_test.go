package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/mindcamp/mindcamp/internal/infra/sqlite"
)

func newTestDB(t *testing.T) (*sqlite.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dir
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	db, dir := newTestDB(t)

	c := NewChecker(db, dir, nil)
	if len(c.checks) != 2 {
		t.Errorf("checks = %d, want 2", len(c.checks))
	}
}

func TestChecker_RunOnceHealthy(t *testing.T) {
	db, dir := newTestDB(t)

	c := NewChecker(db, dir, nil)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() = false, want true")
	}
}

func TestChecker_DataDirMissing(t *testing.T) {
	db, dir := newTestDB(t)

	gone := filepath.Join(dir, "gone")
	c := NewChecker(db, gone, nil)
	c.RunOnce(context.Background())

	if c.IsHealthy() {
		t.Error("IsHealthy() should be false for a missing data dir")
	}

	// The failed check recreates the directory; the next run passes.
	if info, err := os.Stat(gone); err != nil || !info.IsDir() {
		t.Fatalf("data dir not recreated: %v", err)
	}
	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Errorf("IsHealthy() = false after recovery: %+v", c.Statuses())
	}
}

func TestChecker_DataDirIsFile(t *testing.T) {
	db, dir := newTestDB(t)
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	c := NewChecker(db, file, nil)
	c.RunOnce(context.Background())
	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("IsHealthy() should stay false when data dir is a file")
	}
}

func TestChecker_Redis(t *testing.T) {
	db, dir := newTestDB(t)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewChecker(db, dir, client)
	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Fatalf("expected healthy with redis up: %+v", c.Statuses())
	}

	mr.Close()
	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("expected unhealthy after redis went away")
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	db, dir := newTestDB(t)
	c := NewChecker(db, dir, nil)
	c.RunOnce(context.Background())

	s := c.Statuses()
	s[0].Healthy = false
	if !c.Statuses()[0].Healthy {
		t.Error("Statuses() must return a copy")
	}
}
