package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
)

const (
	// DefaultWindowMinutes is used whenever a requested window is absent or unsupported.
	DefaultWindowMinutes = 5

	defaultRetention = time.Hour
	currentSpanMS    = 10_000
)

// bucketSeconds maps each supported window (minutes) to its bucket width.
var bucketSeconds = map[int]int{1: 1, 5: 5, 15: 15, 60: 60}

// NormalizeWindow returns w when it is a supported window and the default otherwise.
func NormalizeWindow(w int) int {
	if _, ok := bucketSeconds[w]; ok {
		return w
	}
	return DefaultWindowMinutes
}

// ValidWindow reports whether w is one of the supported windows.
func ValidWindow(w int) bool {
	_, ok := bucketSeconds[w]
	return ok
}

// rpsHistory keeps per-second request counts over the retention horizon.
// Entries are strictly increasing by second.
type rpsHistory struct {
	mu          sync.RWMutex
	entries     []domain.RPSHistoryEntry
	retentionMS int64
}

func newRPSHistory(retention time.Duration) *rpsHistory {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &rpsHistory{retentionMS: retention.Milliseconds()}
}

func (h *rpsHistory) record(ts int64) {
	second := floorTo(ts, 1000)
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.entries); n > 0 && second <= h.entries[n-1].Second {
		// Same second, or the clock stepped backwards.
		h.entries[n-1].Count++
		return
	}
	h.entries = append(h.entries, domain.RPSHistoryEntry{Second: second, Count: 1})
	cutoff := ts - h.retentionMS
	drop := 0
	for drop < len(h.entries) && h.entries[drop].Second < cutoff {
		drop++
	}
	if drop > 0 {
		h.entries = append(h.entries[:0], h.entries[drop:]...)
	}
}

func (h *rpsHistory) query(window int, now int64) domain.RPSSnapshot {
	window = NormalizeWindow(window)
	bucketSec := bucketSeconds[window]
	bucketMS := int64(bucketSec) * 1000
	cutoff := now - int64(window)*60_000

	startBucket := floorTo(cutoff, bucketMS)
	endBucket := floorTo(now, bucketMS)
	n := int((endBucket-startBucket)/bucketMS) + 1
	counts := make([]int64, n)

	var total, recent int64
	h.mu.RLock()
	for _, e := range h.entries {
		if e.Second < cutoff {
			continue
		}
		total += e.Count
		if e.Second >= now-currentSpanMS {
			recent += e.Count
		}
		b := floorTo(e.Second, bucketMS)
		if b >= startBucket && b <= endBucket {
			counts[(b-startBucket)/bucketMS] += e.Count
		}
	}
	h.mu.RUnlock()

	data := make([]domain.RPSPoint, n)
	peak := 0.0
	for i, c := range counts {
		rps := float64(c) / float64(bucketSec)
		data[i] = domain.RPSPoint{Timestamp: startBucket + int64(i)*bucketMS, RPS: rps}
		peak = math.Max(peak, rps)
	}

	return domain.RPSSnapshot{
		Data: data,
		Stats: domain.RPSStats{
			Current: round2(float64(recent) / (currentSpanMS / 1000)),
			Average: round2(float64(total) / float64(window*60)),
			Peak:    round2(peak),
			Total:   total,
		},
		BucketSeconds: bucketSec,
		WindowMinutes: window,
	}
}

func (h *rpsHistory) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// floorTo rounds v down to a multiple of step, also for negative v.
func floorTo(v, step int64) int64 {
	q := v / step
	if v%step != 0 && v < 0 {
		q--
	}
	return q * step
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
