package replan

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "replan"

// Metrics holds prometheus collectors for stream evaluation.
// A nil *Metrics records nothing.
type Metrics struct {
	// StreamCalls counts stream invocations. Labels: stream.
	StreamCalls *prometheus.CounterVec

	// StreamResults counts pulls by outcome. Labels: stream, outcome (value, retry, done).
	StreamResults *prometheus.CounterVec

	// AttemptFailures counts rejected inner attempts. Labels: stream, reason.
	AttemptFailures *prometheus.CounterVec

	// CollisionCache counts cache lookups. Labels: result (hit, miss).
	CollisionCache *prometheus.CounterVec

	// CertifyDuration measures one inner certifier run. Labels: stream.
	CertifyDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_calls_total",
			Help:      "Stream invocations by name.",
		}, []string{"stream"}),
		StreamResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_results_total",
			Help:      "Stream pulls by outcome.",
		}, []string{"stream", "outcome"}),
		AttemptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attempt_failures_total",
			Help:      "Inner certifier rejections by reason.",
		}, []string{"stream", "reason"}),
		CollisionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "collision_cache_total",
			Help:      "Collision cache lookups by result.",
		}, []string{"result"}),
		CertifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "certify_duration_seconds",
			Help:      "Duration of one inner certifier run.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"stream"}),
	}
	for _, c := range []prometheus.Collector{m.StreamCalls, m.StreamResults, m.AttemptFailures, m.CollisionCache, m.CertifyDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) call(stream string) {
	if m == nil {
		return
	}
	m.StreamCalls.WithLabelValues(stream).Inc()
}

func (m *Metrics) result(stream string, outcome Outcome) {
	if m == nil {
		return
	}
	m.StreamResults.WithLabelValues(stream, outcome.String()).Inc()
}

func (m *Metrics) failure(stream, reason string) {
	if m == nil {
		return
	}
	m.AttemptFailures.WithLabelValues(stream, reason).Inc()
}

func (m *Metrics) certified(stream string, d time.Duration) {
	if m == nil {
		return
	}
	m.CertifyDuration.WithLabelValues(stream).Observe(d.Seconds())
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CollisionCache.WithLabelValues("hit").Inc()
		return
	}
	m.CollisionCache.WithLabelValues("miss").Inc()
}
