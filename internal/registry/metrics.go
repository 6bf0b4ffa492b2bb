package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xtxerr/atlas/internal/collection"
	"github.com/xtxerr/atlas/internal/errors"
)

// Metrics records registry activity. A nil *Metrics records nothing.
type Metrics struct {
	builds      *prometheus.CounterVec
	duration    prometheus.Histogram
	collections prometheus.Gauge
	instruments *prometheus.GaugeVec
	steps       *prometheus.GaugeVec
}

// NewMetrics creates the registry metrics and registers them with reg.
// It panics if they are already registered there.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlas",
			Name:      "builds_total",
			Help:      "Collection builds by outcome (ok or the error kind).",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "atlas",
			Name:      "build_duration_seconds",
			Help:      "Wall time of collection builds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		collections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "atlas",
			Name:      "collections",
			Help:      "Registered collections.",
		}),
		instruments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "atlas",
			Name:      "collection_instruments",
			Help:      "Instruments per registered collection.",
		}, []string{"collection"}),
		steps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "atlas",
			Name:      "collection_timeline_steps",
			Help:      "Timeline length per registered collection.",
		}, []string{"collection"}),
	}

	reg.MustRegister(m.builds, m.duration, m.collections, m.instruments, m.steps)
	return m
}

func (m *Metrics) observeBuild(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(errors.Kind(err)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) setCollection(c *collection.Collection) {
	if m == nil {
		return
	}
	m.instruments.WithLabelValues(c.Name()).Set(float64(c.NumInstruments()))
	m.steps.WithLabelValues(c.Name()).Set(float64(c.Len()))
}

func (m *Metrics) removeCollection(name string) {
	if m == nil {
		return
	}
	m.instruments.DeleteLabelValues(name)
	m.steps.DeleteLabelValues(name)
}

func (m *Metrics) setCount(n int) {
	if m == nil {
		return
	}
	m.collections.Set(float64(n))
}
