package ws

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hoxsec/Godot-GameBackendAPI/pkg/metrics"
)

// CloseUnauthorized is the close code sent when a stream handshake presents
// no valid admin token. Clients must not reconnect after receiving it.
const CloseUnauthorized = 4001

var (
	// ErrClosed is returned when sending to a subscriber whose transport is gone.
	ErrClosed = errors.New("ws: subscriber closed")
	// ErrBacklog is returned when a subscriber's outbound queue is full. The
	// message is dropped and the subscriber stays registered.
	ErrBacklog = errors.New("ws: subscriber backlog full")
)

// Subscriber abstracts a streaming client. Send and Ping must not block.
type Subscriber interface {
	Send([]byte) error
	Ping() error
	Close()
}

type subscriberState struct {
	window int
	alive  bool
}

// Hub is the registry of connected stream subscribers and their window
// preferences.
type Hub struct {
	mu      sync.RWMutex
	clients map[Subscriber]*subscriberState
	logger  *slog.Logger

	subscribers prometheus.Gauge
	dropped     prometheus.Counter
	evicted     *prometheus.CounterVec
}

// NewHub creates an empty Hub. reg may be nil.
func NewHub(logger *slog.Logger, reg prometheus.Registerer) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[Subscriber]*subscriberState),
		logger:  logger.With("component", "stream_hub"),
		subscribers: metrics.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gamebackend",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Connected dashboard stream subscribers",
		})),
		dropped: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamebackend",
			Subsystem: "stream",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a subscriber queue was full",
		})),
		evicted: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamebackend",
			Subsystem: "stream",
			Name:      "evicted_subscribers_total",
			Help:      "Subscribers removed by the hub",
		}, []string{"reason"})),
	}
}

// Register adds a subscriber with the given window preference.
func (h *Hub) Register(sub Subscriber, window int) {
	h.mu.Lock()
	h.clients[sub] = &subscriberState{window: window, alive: true}
	n := len(h.clients)
	h.mu.Unlock()
	h.subscribers.Set(float64(n))
	h.logger.Info("stream subscriber connected", "subscribers", n)
}

// Unregister removes a subscriber. It reports whether the subscriber was present.
func (h *Hub) Unregister(sub Subscriber) bool {
	h.mu.Lock()
	_, ok := h.clients[sub]
	delete(h.clients, sub)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.subscribers.Set(float64(n))
		h.logger.Info("stream subscriber disconnected", "subscribers", n)
	}
	return ok
}

// SetWindow updates the stored window preference of a registered subscriber.
func (h *Hub) SetWindow(sub Subscriber, window int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.clients[sub]
	if ok {
		st.window = window
	}
	return ok
}

// Window returns the window preference of a subscriber.
func (h *Hub) Window(sub Subscriber) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.clients[sub]
	if !ok {
		return 0, false
	}
	return st.window, true
}

// MarkAlive records a liveness response (pong) from a subscriber.
func (h *Hub) MarkAlive(sub Subscriber) {
	h.mu.Lock()
	if st, ok := h.clients[sub]; ok {
		st.alive = true
	}
	h.mu.Unlock()
}

// Len reports the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload to every registered subscriber regardless of window.
func (h *Hub) Broadcast(payload []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.clients))
	for sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	return h.SendTo(subs, payload)
}

// Groups returns registered subscribers keyed by window preference.
func (h *Hub) Groups() map[int][]Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	groups := make(map[int][]Subscriber)
	for sub, st := range h.clients {
		groups[st.window] = append(groups[st.window], sub)
	}
	return groups
}

// SendTo delivers payload to subs and returns how many accepted it. A full
// queue drops the message; any other failure evicts the subscriber.
func (h *Hub) SendTo(subs []Subscriber, payload []byte) int {
	delivered := 0
	var failed []Subscriber
	for _, sub := range subs {
		err := sub.Send(payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrBacklog):
			h.dropped.Inc()
		default:
			failed = append(failed, sub)
		}
	}
	for _, sub := range failed {
		h.evict(sub, "send_failed")
	}
	return delivered
}

// Heartbeat runs one liveness sweep. Subscribers that did not answer the
// previous ping are closed and removed; the rest are pinged again. It returns
// the number of subscribers removed.
func (h *Hub) Heartbeat() int {
	var dead, pending []Subscriber
	h.mu.Lock()
	for sub, st := range h.clients {
		if !st.alive {
			dead = append(dead, sub)
			delete(h.clients, sub)
			continue
		}
		st.alive = false
		pending = append(pending, sub)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.subscribers.Set(float64(n))
	for _, sub := range dead {
		h.evicted.WithLabelValues("heartbeat").Inc()
		sub.Close()
	}
	if len(dead) > 0 {
		h.logger.Info("stream subscribers timed out", "removed", len(dead), "subscribers", n)
	}
	for _, sub := range pending {
		if err := sub.Ping(); err != nil {
			h.evict(sub, "ping_failed")
		}
	}
	return len(dead)
}

// CloseAll closes and removes every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.clients))
	for sub := range h.clients {
		subs = append(subs, sub)
	}
	h.clients = make(map[Subscriber]*subscriberState)
	h.mu.Unlock()
	h.subscribers.Set(0)
	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) evict(sub Subscriber, reason string) {
	if h.Unregister(sub) {
		h.evicted.WithLabelValues(reason).Inc()
		h.logger.Warn("stream subscriber evicted", "reason", reason)
	}
	sub.Close()
}
