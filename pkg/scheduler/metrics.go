package scheduler

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	Scheduled prometheus.Counter
	Delivered prometheus.Counter
	Cancelled prometheus.Counter
	Pending   prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "scheduler"

	return metrics{
		Scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "scheduled_total",
			Help:      "Number of responses scheduled.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "delivered_total",
			Help:      "Number of responses returned as due.",
		}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "cancelled_total",
			Help:      "Number of responses cancelled before becoming due.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timewarp",
			Subsystem: subsystem,
			Name:      "pending",
			Help:      "Number of responses waiting in the queue.",
		}),
	}
}

func (s *Scheduler) Metrics() (cs []prometheus.Collector) {
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
