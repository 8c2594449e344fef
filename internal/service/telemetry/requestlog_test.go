package telemetry

import (
	"testing"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
)

func fill(l *requestLog, n int) {
	for i := 0; i < n; i++ {
		l.append(domain.CaptureEvent{Method: "GET", Path: "/v1/config"})
	}
}

func TestRequestLogRetainsNewestInOrder(t *testing.T) {
	l := newRequestLog(500, 100)
	fill(l, 600)

	if l.len() != 500 {
		t.Fatalf("expected 500 retained, got %d", l.len())
	}
	all := l.query(1)
	if len(all) != 500 {
		t.Fatalf("expected 500 events for a stale cursor, got %d", len(all))
	}
	if all[0].ID != 101 || all[len(all)-1].ID != 600 {
		t.Fatalf("expected ids 101..600, got %d..%d", all[0].ID, all[len(all)-1].ID)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID != all[i-1].ID+1 {
			t.Fatalf("ids not ascending at %d: %d after %d", i, all[i].ID, all[i-1].ID)
		}
	}
}

func TestRequestLogRecentLimit(t *testing.T) {
	l := newRequestLog(500, 100)
	if got := l.query(0); len(got) != 0 {
		t.Fatalf("expected empty log, got %d", len(got))
	}

	fill(l, 40)
	if got := l.query(0); len(got) != 40 {
		t.Fatalf("expected 40 events, got %d", len(got))
	}

	fill(l, 200)
	recent := l.query(0)
	if len(recent) != 100 {
		t.Fatalf("expected 100 events, got %d", len(recent))
	}
	if recent[0].ID != 141 || recent[99].ID != 240 {
		t.Fatalf("expected newest 100 (141..240), got %d..%d", recent[0].ID, recent[99].ID)
	}
}

func TestRequestLogSinceCursor(t *testing.T) {
	l := newRequestLog(10, 5)
	fill(l, 25)

	got := l.query(20)
	if len(got) != 5 || got[0].ID != 21 || got[4].ID != 25 {
		t.Fatalf("unexpected result for since=20: %+v", got)
	}
	if got := l.query(25); len(got) != 0 {
		t.Fatalf("expected nothing newer than the last id, got %d", len(got))
	}
	if got := l.query(99); len(got) != 0 {
		t.Fatalf("expected nothing for a future cursor, got %d", len(got))
	}
	if got := l.query(3); len(got) != 10 || got[0].ID != 16 {
		t.Fatalf("expected all retained for an evicted cursor, got %d starting %d", len(got), got[0].ID)
	}
	if got := l.query(-4); len(got) != 5 || got[0].ID != 21 {
		t.Fatalf("expected negative cursor to behave like zero, got %+v", got)
	}
}
