package clock

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	Mutations   *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
	Enabled     prometheus.Gauge
	ScaleFactor prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "clock"

	return metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "mutations_total",
			Help:      "Number of applied virtual clock mutations by operation.",
		}, []string{"op"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "Number of ignored virtual clock mutations by operation.",
		}, []string{"op"}),
		Enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "enabled",
			Help:      "1 while virtual time overrides real time.",
		}),
		ScaleFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "scale_factor",
			Help:      "Current time dilation factor.",
		}),
	}
}

func (c *VirtualClock) Metrics() (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(c.metrics))
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
