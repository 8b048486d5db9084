package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/mindcamp/mindcamp/internal/domain"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

// ─── Connect ────────────────────────────────────────────────────────────────

func TestConnect(t *testing.T) {
	_, mr := setupTestRedis(t)

	client, err := Connect(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

// ─── Snapshot Cache ─────────────────────────────────────────────────────────

func TestSnapshotCache_MissSetGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewSnapshotCache(client, 0)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "u1"); err != nil || ok {
		t.Fatalf("Get() on empty cache = (%v, %v), want miss", ok, err)
	}

	want := domain.Snapshot{
		UserID:               "u1",
		StreakCount:          5,
		LongestStreak:        9,
		TotalCompletedDays:   12,
		CurrentRank:          domain.RankMember,
		GraceTokensRemaining: 1,
		LastGraceResetAt:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		LastEntryDate:        "2025-03-10",
		ProgramStartDate:     "2025-02-20",
	}
	if err := c.Set(ctx, want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("Get() = (%v, %v), want hit", ok, err)
	}
	if !got.LastGraceResetAt.Equal(want.LastGraceResetAt) {
		t.Errorf("LastGraceResetAt = %v, want %v", got.LastGraceResetAt, want.LastGraceResetAt)
	}
	got.LastGraceResetAt = want.LastGraceResetAt
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestSnapshotCache_TTLAndInvalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	c.Set(ctx, domain.Snapshot{UserID: "u1"})
	if ttl := mr.TTL(snapshotKey("u1")); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	if err := c.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "u1"); ok {
		t.Error("snapshot should be gone after Invalidate")
	}

	c.Set(ctx, domain.Snapshot{UserID: "u2"})
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "u2"); ok {
		t.Error("snapshot should expire after TTL")
	}
}

func TestSnapshotCache_CorruptValue(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewSnapshotCache(client, 0)

	mr.Set(snapshotKey("u1"), "{not json")
	if _, _, err := c.Get(context.Background(), "u1"); err == nil {
		t.Error("expected error for corrupt cache value")
	}
}

// ─── Rate Limiting ──────────────────────────────────────────────────────────

func TestRedisLimiter_Window(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedisLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "admin:reset-user", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("hit %d: Allow() = (%v, %v), want allowed", i, ok, err)
		}
	}
	ok, retry, err := l.Allow(ctx, "admin:reset-user", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if ok {
		t.Fatal("4th hit should be limited")
	}
	if retry <= 0 || retry > time.Minute {
		t.Errorf("retryAfter = %v, want within (0, 1m]", retry)
	}

	if ok, _, _ := l.Allow(ctx, "admin:simulate-streak", 3, time.Minute); !ok {
		t.Error("different key should have its own window")
	}

	mr.FastForward(61 * time.Second)
	if ok, _, _ := l.Allow(ctx, "admin:reset-user", 3, time.Minute); !ok {
		t.Error("window should reset after expiry")
	}
}

func TestMemoryLimiter_Window(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, _ := l.Allow(ctx, "k", 2, time.Minute); !ok {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	ok, retry, _ := l.Allow(ctx, "k", 2, time.Minute)
	if ok {
		t.Fatal("3rd hit should be limited")
	}
	if retry != time.Minute {
		t.Errorf("retryAfter = %v, want 1m", retry)
	}

	now = now.Add(30 * time.Second)
	if _, retry, _ := l.Allow(ctx, "k", 2, time.Minute); retry != 30*time.Second {
		t.Errorf("retryAfter = %v, want 30s", retry)
	}

	now = now.Add(31 * time.Second)
	if ok, _, _ := l.Allow(ctx, "k", 2, time.Minute); !ok {
		t.Error("new window should allow")
	}
}

func TestMemoryLimiter_Independent(t *testing.T) {
	a := NewMemoryLimiter(nil)
	b := NewMemoryLimiter(nil)
	ctx := context.Background()

	a.Allow(ctx, "k", 1, time.Minute)
	if ok, _, _ := a.Allow(ctx, "k", 1, time.Minute); ok {
		t.Error("a should be limited")
	}
	if ok, _, _ := b.Allow(ctx, "k", 1, time.Minute); !ok {
		t.Error("limiters must not share state")
	}
}
