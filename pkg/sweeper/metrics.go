package sweeper

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	Sweeps        prometheus.Counter
	SweepDuration prometheus.Histogram
	Dropped       prometheus.Counter
	Outbox        prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "sweeper"

	return metrics{
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "sweeps_total",
			Help:      "Number of completed sweeps.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Real time spent in one sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "outbox_dropped_total",
			Help:      "Number of deliveries evicted from a full outbox.",
		}),
		Outbox: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "outbox",
			Help:      "Number of deliveries held in the outbox.",
		}),
	}
}

func (s *Sweeper) Metrics() (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(s.metrics))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}
