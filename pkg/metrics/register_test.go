package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterReturnsExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := prometheus.CounterOpts{Name: "things_total", Help: "things"}

	first := Register(reg, prometheus.NewCounter(opts))
	second := Register(reg, prometheus.NewCounter(opts))
	if first != second {
		t.Fatal("expected second registration to return the existing counter")
	}
	second.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("unexpected gathered metrics %v", families)
	}
}

func TestRegisterNilRegistry(t *testing.T) {
	c := prometheus.NewGauge(prometheus.GaugeOpts{Name: "g", Help: "g"})
	if got := Register[prometheus.Gauge](nil, c); got != c {
		t.Fatal("expected collector to be returned unchanged")
	}
}
