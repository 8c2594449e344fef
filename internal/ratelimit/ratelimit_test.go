package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestMemoryFixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	m := newMemory(func() time.Time { return clock })
	defer m.Close()

	for want := 1; want <= 3; want++ {
		d := m.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
		if !d.Allowed || d.Count != want || d.Remaining() != 3-want {
			t.Fatalf("hit %d: unexpected decision %+v", want, d)
		}
	}
	denied := m.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
	if denied.Allowed {
		t.Fatal("expected fourth hit to be refused")
	}
	if got := denied.RetryAfter(clock.Add(30 * time.Second)); got != 30 {
		t.Fatalf("expected retry after 30s, got %d", got)
	}
	if d := m.Allow(ctx, "ip:5.6.7.8", 3, time.Minute); !d.Allowed {
		t.Fatal("expected a separate budget per key")
	}

	clock = clock.Add(time.Minute)
	if d := m.Allow(ctx, "ip:1.2.3.4", 3, time.Minute); !d.Allowed || d.Count != 1 {
		t.Fatalf("expected a fresh window at the boundary, got %+v", d)
	}
	if removed := m.purge(clock.Add(time.Hour)); removed != 2 || m.Len() != 0 {
		t.Fatalf("expected both counters purged, removed %d, left %d", removed, m.Len())
	}
}

func TestMemoryWithoutLimitAlwaysAllows(t *testing.T) {
	m := newMemory(time.Now)
	defer m.Close()
	for range 5 {
		if d := m.Allow(context.Background(), "k", 0, time.Minute); !d.Allowed {
			t.Fatal("expected a zero limit to disable metering")
		}
	}
	if m.Len() != 0 {
		t.Fatalf("expected no counters for unmetered calls, got %d", m.Len())
	}
}

func TestDecisionRetryAfterRoundsUp(t *testing.T) {
	now := time.Unix(1000, 0)
	cases := map[time.Duration]int{
		-time.Second:            1,
		0:                       1,
		100 * time.Millisecond:  1,
		1500 * time.Millisecond: 2,
		59 * time.Second:        59,
	}
	for wait, want := range cases {
		d := Decision{ResetAt: now.Add(wait)}
		if got := d.RetryAfter(now); got != want {
			t.Fatalf("wait %v: expected %d, got %d", wait, want, got)
		}
	}
	if got := (Decision{}).RetryAfter(now); got != 1 {
		t.Fatalf("expected 1 for an unknown reset, got %d", got)
	}
}

func TestRedisSharedWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	defer r.Close()

	if d := r.Allow(ctx, "user:u1", 2, time.Minute); !d.Allowed || d.Count != 1 {
		t.Fatalf("unexpected first decision %+v", d)
	}
	if d := r.Allow(ctx, "user:u1", 2, time.Minute); !d.Allowed || d.Remaining() != 0 {
		t.Fatalf("unexpected second decision %+v", d)
	}
	if d := r.Allow(ctx, "user:u1", 2, time.Minute); d.Allowed || d.Count != 3 {
		t.Fatalf("expected third hit to be refused, got %+v", d)
	}
	if ttl := mr.TTL("gamebackend:ratelimit:user:u1"); ttl != time.Minute {
		t.Fatalf("expected a one minute window, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if d := r.Allow(ctx, "user:u1", 2, time.Minute); !d.Allowed || d.Count != 1 {
		t.Fatalf("expected the window to reset after expiry, got %+v", d)
	}
}

func TestRedisRepairsMissingExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	defer r.Close()

	// A counter left behind without a TTL must not stay forever.
	if err := mr.Set("gamebackend:ratelimit:ip:9.9.9.9", "7"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	d := r.Allow(context.Background(), "ip:9.9.9.9", 5, 30*time.Second)
	if d.Allowed || d.Count != 8 {
		t.Fatalf("expected the stale counter to be honored, got %+v", d)
	}
	if ttl := mr.TTL("gamebackend:ratelimit:ip:9.9.9.9"); ttl != 30*time.Second {
		t.Fatalf("expected expiry to be set, got %v", ttl)
	}
}

func TestRedisFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), nil)
	defer r.Close()

	mr.Close()
	if d := r.Allow(context.Background(), "ip:1.1.1.1", 1, time.Minute); !d.Allowed {
		t.Fatal("expected requests through while redis is down")
	}
}
