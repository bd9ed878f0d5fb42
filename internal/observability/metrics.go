package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the "outcome" label of conjunction_runs_total.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid_config"
	OutcomeCanceled = "canceled"
)

// EngineCollector bundles Prometheus metrics for conjunction detection runs.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Runs           *prometheus.CounterVec
	Steps          prometheus.Counter
	AABBCollisions prometheus.Counter
	Conjunctions   prometheus.Counter
	RunDuration    prometheus.Histogram
	StepDuration   prometheus.Histogram
	Objects        prometheus.Gauge
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conjunction_runs_total",
		Help: "Total number of conjunction detection runs, labeled by outcome.",
	}, []string{"outcome"}), "conjunction_runs_total")
	if err != nil {
		return nil, err
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conjunction_steps_total",
		Help: "Total number of conjunction detection steps processed.",
	}), "conjunction_steps_total")
	if err != nil {
		return nil, err
	}

	collisions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conjunction_aabb_collisions_total",
		Help: "Total number of broad-phase AABB collisions surviving the object type filter.",
	}), "conjunction_aabb_collisions_total")
	if err != nil {
		return nil, err
	}

	conjunctions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conjunction_events_total",
		Help: "Total number of conjunctions reported by the narrow phase.",
	}), "conjunction_events_total")
	if err != nil {
		return nil, err
	}

	runDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conjunction_run_duration_seconds",
		Help:    "Wall-clock duration of complete conjunction detection runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}), "conjunction_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	stepDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conjunction_step_duration_seconds",
		Help:    "Duration of a single conjunction detection step (AABBs through narrow phase).",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "conjunction_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	objects, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conjunction_objects",
		Help: "Number of objects screened by the most recent run.",
	}), "conjunction_objects")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:       gatherer,
		Runs:           runs,
		Steps:          steps,
		AABBCollisions: collisions,
		Conjunctions:   conjunctions,
		RunDuration:    runDuration,
		StepDuration:   stepDuration,
		Objects:        objects,
	}, nil
}

// ObserveStep records the outcome of one conjunction detection step.
func (c *EngineCollector) ObserveStep(d time.Duration, collisions, conjunctions int) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.StepDuration.Observe(d.Seconds())
	c.AABBCollisions.Add(float64(collisions))
	c.Conjunctions.Add(float64(conjunctions))
}

// ObserveRun records a finished run. Durations are only observed for
// successful runs.
func (c *EngineCollector) ObserveRun(d time.Duration, outcome string, objects int) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
	if outcome != OutcomeOK {
		return
	}
	c.RunDuration.Observe(d.Seconds())
	c.Objects.Set(float64(objects))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
