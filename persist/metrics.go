package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cycles         prometheus.Counter
	dropped        prometheus.Counter
	suppressed     prometheus.Counter
	localFailures  prometheus.Counter
	remoteFailures prometheus.Counter
	loads          *prometheus.CounterVec
}

// newMetrics registers on reg; a nil reg leaves the counters unregistered
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "sync",
			Name:      name,
			Help:      help,
		})
	}
	return &metrics{
		cycles:         counter("cycles_total", "Number of completed write cycles"),
		dropped:        counter("dropped_total", "Number of debounce firings skipped because a cycle was in flight"),
		suppressed:     counter("suppressed_total", "Number of debounce firings skipped because a load was in progress"),
		localFailures:  counter("local_failures_total", "Number of failed local cache writes"),
		remoteFailures: counter("remote_failures_total", "Number of failed remote conversation writes"),
		loads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "sync",
			Name:      "loads_total",
			Help:      "Number of loads by the source that won",
		}, []string{"source"}),
	}
}
