package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hoxsec/Godot-GameBackendAPI/pkg/metrics"
)

type serviceMetrics struct {
	captured  prometheus.Counter
	snapshots *prometheus.CounterVec
	retained  prometheus.GaugeFunc
}

func newServiceMetrics(reg prometheus.Registerer, log *requestLog) serviceMetrics {
	return serviceMetrics{
		captured: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamebackend",
			Subsystem: "telemetry",
			Name:      "captured_requests_total",
			Help:      "Requests recorded into the live request log",
		})),
		snapshots: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamebackend",
			Subsystem: "telemetry",
			Name:      "rps_snapshots_total",
			Help:      "RPS snapshots computed, by trigger",
		}, []string{"trigger"})),
		retained: metrics.Register(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gamebackend",
			Subsystem: "telemetry",
			Name:      "retained_requests",
			Help:      "Requests currently held in the live request log",
		}, func() float64 { return float64(log.len()) })),
	}
}
