package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/ratelimit"
)

func TestRateMetricKey(t *testing.T) {
	cases := map[string]string{
		"ip:1.2.3.4": "ip",
		"user:abc":   "user",
		"":           "unknown",
		"plain":      "plain",
	}
	for in, want := range cases {
		if got := rateMetricKey(in); got != want {
			t.Fatalf("rateMetricKey(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestSetRateHeaders(t *testing.T) {
	reset := time.Unix(1_700_000_060, 0)
	rec := httptest.NewRecorder()
	setRateHeaders(rec.Header(), ratelimit.Decision{Allowed: true, Count: 4, Limit: 10, ResetAt: reset})

	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Fatalf("expected limit 10, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "6" {
		t.Fatalf("expected 6 remaining, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "1700000060" {
		t.Fatalf("unexpected reset %q", got)
	}

	rec = httptest.NewRecorder()
	setRateHeaders(rec.Header(), ratelimit.Decision{Allowed: true})
	if len(rec.Header()) != 0 {
		t.Fatalf("expected no headers without a limit, got %v", rec.Header())
	}
}

type recordingLimiter struct {
	keys  []string
	allow bool
}

func (l *recordingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) ratelimit.Decision {
	l.keys = append(l.keys, key)
	return ratelimit.Decision{Allowed: l.allow, Count: limit, Limit: limit, ResetAt: time.Now().Add(90 * time.Second)}
}

func (l *recordingLimiter) Close() error { return nil }

func TestWithRateLimitScopesKeysByRoute(t *testing.T) {
	limiter := &recordingLimiter{}
	router := NewRouter(Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Limiter: limiter})
	defer router.Close()

	called := false
	handler := router.withRateLimit("auth_login", 3, time.Minute, func(*http.Request) string { return "" }, func(http.ResponseWriter, *http.Request) {
		called = true
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	rec := httptest.NewRecorder()
	handler(rec, req)

	if called {
		t.Fatal("expected a refused request to skip the handler")
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "auth_login|ip:198.51.100.4" {
		t.Fatalf("expected an ip key scoped to the route, got %v", limiter.keys)
	}
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}
	if got := rec.Header().Get("Retry-After"); got != "90" && got != "89" {
		t.Fatalf("expected Retry-After near 90s, got %q", got)
	}

	limiter.allow = true
	rec = httptest.NewRecorder()
	handler(rec, req)
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected an allowed request to reach the handler, got %d", rec.Code)
	}
}
