package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors describing runner activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	trials     *prometheus.CounterVec
	verdicts   *prometheus.CounterVec
	earlyStops prometheus.Counter
	inFlight   prometheus.Gauge
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m, err := NewWithRegisterer(reg)
	if err != nil {
		// a fresh registry cannot hold duplicates
		panic(err)
	}
	m.registry = reg
	return m
}

// NewWithRegisterer creates collectors registered on reg. Collectors already
// present on reg are reused.
func NewWithRegisterer(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forgerun",
			Subsystem: "fuzz",
			Name:      "trials_total",
			Help:      "Fuzz trials consumed by the orchestrator, by outcome.",
		}, []string{"status"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forgerun",
			Name:      "test_verdicts_total",
			Help:      "Test verdicts, by kind (single|fuzzing) and status.",
		}, []string{"kind", "status"}),
		earlyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forgerun",
			Subsystem: "fuzz",
			Name:      "early_stops_total",
			Help:      "Fuzz tests whose sweep stopped at the first failing trial.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forgerun",
			Subsystem: "fuzz",
			Name:      "trials_in_flight",
			Help:      "Trials spawned and not yet finished.",
		}),
	}

	register := func(c prometheus.Collector) (prometheus.Collector, error) {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return already.ExistingCollector, nil
			}
			return nil, err
		}
		return c, nil
	}

	c, err := register(m.trials)
	if err != nil {
		return nil, fmt.Errorf("register trials: %w", err)
	}
	m.trials = c.(*prometheus.CounterVec)
	if c, err = register(m.verdicts); err != nil {
		return nil, fmt.Errorf("register verdicts: %w", err)
	}
	m.verdicts = c.(*prometheus.CounterVec)
	if c, err = register(m.earlyStops); err != nil {
		return nil, fmt.Errorf("register early stops: %w", err)
	}
	m.earlyStops = c.(prometheus.Counter)
	if c, err = register(m.inFlight); err != nil {
		return nil, fmt.Errorf("register in-flight: %w", err)
	}
	m.inFlight = c.(prometheus.Gauge)
	return m, nil
}

// TrialStarted marks a trial as in flight.
func (m *Metrics) TrialStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// TrialFinished records a finished trial with its outcome label.
func (m *Metrics) TrialFinished(status string) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.trials.WithLabelValues(status).Inc()
}

// EarlyStop records a sweep cut short by a failing trial.
func (m *Metrics) EarlyStop() {
	if m == nil {
		return
	}
	m.earlyStops.Inc()
}

// Verdict records a test verdict.
func (m *Metrics) Verdict(kind, status string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(kind, status).Inc()
}

// WriteTextfile writes a snapshot in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if m.registry == nil {
		return fmt.Errorf("metrics were not created with a private registry")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %q: %w", path, err)
	}
	return nil
}
