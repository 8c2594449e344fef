package ratelimit

import (
	"context"
	"sync"
	"time"
)

const janitorInterval = 5 * time.Minute

type counter struct {
	hits    int
	resetAt time.Time
}

// Memory keeps counters in process. It suits a single API replica.
type Memory struct {
	mu       sync.Mutex
	counters map[string]*counter
	clock    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory returns a Memory limiter with a background janitor that drops
// expired counters. Close stops the janitor.
func NewMemory() *Memory {
	m := newMemory(time.Now)
	go m.janitor(janitorInterval)
	return m
}

func newMemory(clock func() time.Time) *Memory {
	return &Memory{
		counters: make(map[string]*counter),
		clock:    clock,
		stop:     make(chan struct{}),
	}
}

// Allow records a hit for key and reports whether it fits in limit.
func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return unlimited(limit)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[key]
	if c == nil || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		m.counters[key] = c
	}
	if c.hits < limit {
		c.hits++
		return Decision{Allowed: true, Count: c.hits, Limit: limit, ResetAt: c.resetAt}
	}
	return Decision{Allowed: false, Count: c.hits, Limit: limit, ResetAt: c.resetAt}
}

// Len reports how many counters are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// Close stops the janitor. It is safe to call more than once.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.purge(m.clock())
		}
	}
}

func (m *Memory) purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, c := range m.counters {
		if !now.Before(c.resetAt) {
			delete(m.counters, key)
			removed++
		}
	}
	return removed
}
