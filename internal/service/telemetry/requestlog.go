package telemetry

import (
	"sync"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
)

const (
	defaultLogCapacity = 500
	defaultRecentLimit = 100
)

// requestLog is a fixed-capacity ring of captured requests. Ids are assigned
// on append and are contiguous, so the slot holding a given id can be derived
// from the oldest retained id.
type requestLog struct {
	mu     sync.RWMutex
	slots  []domain.CaptureEvent
	head   int // index of the oldest entry
	size   int
	nextID int64
	recent int
}

func newRequestLog(capacity, recent int) *requestLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	if recent <= 0 {
		recent = defaultRecentLimit
	}
	if recent > capacity {
		recent = capacity
	}
	return &requestLog{slots: make([]domain.CaptureEvent, capacity), recent: recent}
}

// append stores ev with the next id, overwriting the oldest entry when full.
func (l *requestLog) append(ev domain.CaptureEvent) domain.CaptureEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	ev.ID = l.nextID
	capacity := len(l.slots)
	if l.size < capacity {
		l.slots[(l.head+l.size)%capacity] = ev
		l.size++
	} else {
		l.slots[l.head] = ev
		l.head = (l.head + 1) % capacity
	}
	return ev
}

// query returns retained events with id > sinceID in ascending order. A
// non-positive cursor returns the most recent entries up to the recent limit.
func (l *requestLog) query(sinceID int64) []domain.CaptureEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.size == 0 {
		return []domain.CaptureEvent{}
	}
	var skip int
	if sinceID <= 0 {
		skip = l.size - min(l.recent, l.size)
	} else {
		oldest := l.nextID - int64(l.size) + 1
		switch {
		case sinceID >= l.nextID:
			return []domain.CaptureEvent{}
		case sinceID >= oldest:
			skip = int(sinceID - oldest + 1)
		}
	}
	out := make([]domain.CaptureEvent, 0, l.size-skip)
	capacity := len(l.slots)
	for i := skip; i < l.size; i++ {
		out = append(out, l.slots[(l.head+i)%capacity])
	}
	return out
}

func (l *requestLog) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
