package bhmm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the sampler.  A nil *Metrics
// disables them.
type Metrics struct {
	sweeps        prometheus.Counter     // Gibbs sweeps executed
	samples       prometheus.Counter     // Posterior samples collected
	fits          *prometheus.CounterVec // Fits by outcome
	acceptance    prometheus.Gauge       // Inner chain acceptance rate of the last sweep
	sweepDuration prometheus.Histogram   // Duration of a Gibbs sweep
}

// NewMetrics creates the sampler metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {

	m := &Metrics{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bhmm",
			Subsystem: "sampler",
			Name:      "sweeps_total",
			Help:      "Total number of Gibbs sweeps",
		}),

		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bhmm",
			Subsystem: "sampler",
			Name:      "samples_total",
			Help:      "Total number of collected posterior samples",
		}),

		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bhmm",
			Subsystem: "sampler",
			Name:      "fits_total",
			Help:      "Total number of fits by outcome",
		}, []string{"outcome"}),

		acceptance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bhmm",
			Subsystem: "tmatrix",
			Name:      "acceptance_rate",
			Help:      "Acceptance rate of the transition matrix chain in the last sweep",
		}),

		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bhmm",
			Subsystem: "sampler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a Gibbs sweep",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.sweeps, m.samples, m.fits, m.acceptance, m.sweepDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) recordSweep(start time.Time, acceptance float64) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.acceptance.Set(acceptance)
	m.sweepDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordSample() {
	if m == nil {
		return
	}
	m.samples.Inc()
}

func (m *Metrics) recordFit(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fits.WithLabelValues(outcome).Inc()
}
