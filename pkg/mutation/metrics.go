package mutation

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	Executions prometheus.Counter
	Failures   prometheus.Counter
	Records    prometheus.Counter
	Rules      prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "mutation"

	return metrics{
		Executions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "rule_executions_total",
			Help:      "Number of successful mutation rule executions.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "rule_failures_total",
			Help:      "Number of failed mutation rule executions.",
		}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "records_mutated_total",
			Help:      "Number of records updated by mutation rules.",
		}),
		Rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "rules",
			Help:      "Number of registered mutation rules.",
		}),
	}
}

func (m *Manager) Metrics() (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(m.metrics))
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
