package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records guest calls. A nil *Metrics records nothing.
type Metrics struct {
	calls     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	instances *prometheus.GaugeVec
}

// Call outcomes.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomeTrap  = "trap"
)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmlens",
			Subsystem: "host",
			Name:      "calls_total",
			Help:      "Guest entry point calls by outcome",
		}, []string{"module", "entry", "outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wasmlens",
			Subsystem: "host",
			Name:      "call_duration_seconds",
			Help:      "Guest entry point call latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"module", "entry"}),

		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wasmlens",
			Subsystem: "host",
			Name:      "instances",
			Help:      "Live lens instances",
		}, []string{"module"}),
	}

	for _, c := range []prometheus.Collector{m.calls, m.duration, m.instances} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(module, entry, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(module, entry, outcome).Inc()
	m.duration.WithLabelValues(module, entry).Observe(elapsed.Seconds())
}

func (m *Metrics) instanceOpened(module string) {
	if m == nil {
		return
	}
	m.instances.WithLabelValues(module).Inc()
}

func (m *Metrics) instanceClosed(module string) {
	if m == nil {
		return
	}
	m.instances.WithLabelValues(module).Dec()
}
