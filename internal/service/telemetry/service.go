package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/ws"
)

const (
	defaultBroadcastInterval = time.Second
	defaultHeartbeatInterval = 30 * time.Second

	MessageRequest   = "request"
	MessageRPS       = "rps"
	MessageSetWindow = "setWindow"
)

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	LogCapacity       int
	RecentLimit       int
	Retention         time.Duration
	BroadcastInterval time.Duration
	HeartbeatInterval time.Duration
	Registerer        prometheus.Registerer
}

// Service owns the live request log, the RPS history and the fan-out of both
// to stream subscribers.
type Service struct {
	log     *requestLog
	rps     *rpsHistory
	hub     *ws.Hub
	logger  *slog.Logger
	metrics serviceMetrics
	now     func() time.Time

	broadcastInterval time.Duration
	heartbeatInterval time.Duration

	// captureMu serialises id assignment, history updates and broadcast
	// enqueue so that id order matches broadcast order.
	captureMu sync.Mutex
	once      sync.Once
}

// envelope is the wire shape of every pushed message.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type controlMessage struct {
	Type   string `json:"type"`
	Window any    `json:"window"`
}

// NewService constructs a Service. hub may be nil, in which case a private hub
// is created.
func NewService(hub *ws.Hub, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = ws.NewHub(logger, opts.Registerer)
	}
	logger = logger.With("component", "telemetry")
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = defaultBroadcastInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	log := newRequestLog(opts.LogCapacity, opts.RecentLimit)
	return &Service{
		log:               log,
		rps:               newRPSHistory(opts.Retention),
		hub:               hub,
		logger:            logger,
		metrics:           newServiceMetrics(opts.Registerer, log),
		now:               time.Now,
		broadcastInterval: opts.BroadcastInterval,
		heartbeatInterval: opts.HeartbeatInterval,
	}
}

// Hub exposes the subscriber registry.
func (s *Service) Hub() *ws.Hub { return s.hub }

// Record stamps ev with the capture time and the next id, stores it and
// pushes it to every subscriber. The stored event is returned.
func (s *Service) Record(ev domain.CaptureEvent) domain.CaptureEvent {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	ev.Timestamp = s.now().UnixMilli()
	ev = s.log.append(ev)
	s.rps.record(ev.Timestamp)
	s.metrics.captured.Inc()
	if s.hub.Len() > 0 {
		if payload, ok := s.marshal(MessageRequest, ev); ok {
			s.hub.Broadcast(payload)
		}
	}
	return ev
}

// Recent returns captured events newer than sinceID, or the most recent
// entries when sinceID is not positive.
func (s *Service) Recent(sinceID int64) []domain.CaptureEvent {
	return s.log.query(sinceID)
}

// RPS computes a snapshot for the given window in minutes.
func (s *Service) RPS(window int) domain.RPSSnapshot {
	s.metrics.snapshots.WithLabelValues("poll").Inc()
	return s.rps.query(window, s.now().UnixMilli())
}

// Subscribe registers sub at the default window and pushes an initial snapshot.
func (s *Service) Subscribe(sub ws.Subscriber) {
	s.SubscribeWindow(sub, DefaultWindowMinutes)
}

// SubscribeWindow registers sub at window (normalised) and pushes an initial snapshot.
func (s *Service) SubscribeWindow(sub ws.Subscriber, window int) {
	window = NormalizeWindow(window)
	s.hub.Register(sub, window)
	s.sendSnapshot(sub, window, "subscribe")
}

// Unsubscribe removes sub from the registry.
func (s *Service) Unsubscribe(sub ws.Subscriber) {
	s.hub.Unregister(sub)
}

// HandleControl applies an inbound control message from sub. Malformed
// messages and unknown types are ignored.
func (s *Service) HandleControl(sub ws.Subscriber, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("ignoring malformed control message", "error", err)
		return
	}
	if msg.Type != MessageSetWindow {
		s.logger.Debug("ignoring control message", "type", msg.Type)
		return
	}
	window := DefaultWindowMinutes
	if f, ok := msg.Window.(float64); ok && f == float64(int(f)) && ValidWindow(int(f)) {
		window = int(f)
	}
	if !s.hub.SetWindow(sub, window) {
		return
	}
	s.sendSnapshot(sub, window, "set_window")
}

// Run drives periodic RPS pushes and liveness sweeps until ctx is cancelled,
// then closes every subscriber.
func (s *Service) Run(ctx context.Context) {
	s.once.Do(func() {
		s.logger.Info("telemetry service started", "broadcast_interval", s.broadcastInterval, "heartbeat_interval", s.heartbeatInterval)
	})
	broadcast := time.NewTicker(s.broadcastInterval)
	defer broadcast.Stop()
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.hub.CloseAll()
			s.logger.Info("telemetry service stopped")
			return
		case <-broadcast.C:
			s.broadcastRPS()
		case <-heartbeat.C:
			s.hub.Heartbeat()
		}
	}
}

// broadcastRPS pushes one snapshot per distinct subscriber window and returns
// the number of snapshots computed.
func (s *Service) broadcastRPS() int {
	groups := s.hub.Groups()
	if len(groups) == 0 {
		return 0
	}
	now := s.now().UnixMilli()
	for window, subs := range groups {
		snapshot := s.rps.query(window, now)
		s.metrics.snapshots.WithLabelValues("broadcast").Inc()
		payload, ok := s.marshal(MessageRPS, snapshot)
		if !ok {
			continue
		}
		s.hub.SendTo(subs, payload)
	}
	return len(groups)
}

func (s *Service) sendSnapshot(sub ws.Subscriber, window int, trigger string) {
	snapshot := s.rps.query(window, s.now().UnixMilli())
	s.metrics.snapshots.WithLabelValues(trigger).Inc()
	if payload, ok := s.marshal(MessageRPS, snapshot); ok {
		s.hub.SendTo([]ws.Subscriber{sub}, payload)
	}
}

func (s *Service) marshal(kind string, data any) ([]byte, bool) {
	payload, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		s.logger.Warn("failed to marshal stream message", "type", kind, "error", err)
		return nil, false
	}
	return payload, true
}
