package perf

import (
	"fmt"
	"net/http"
	"time"

	"github.com/encodeous/satmesh/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector turns the event stream and clock steps into Prometheus metrics.
// It is an event sink, so it can be handed straight to a simulation.
type Collector struct {
	gatherer prometheus.Gatherer

	Events       *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	RouteChanges *prometheus.CounterVec
	StepDuration prometheus.Histogram
	SimTime      prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice reuses the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satmesh_events_total",
		Help: "Observability events emitted by satellites, labeled by kind.",
	}, []string{"kind"}), "satmesh_events_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satmesh_messages_dropped_total",
		Help: "Data messages dropped, labeled by reason.",
	}, []string{"reason"}), "satmesh_messages_dropped_total")
	if err != nil {
		return nil, err
	}
	changes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satmesh_route_changes_total",
		Help: "Routing table changes, labeled by satellite.",
	}, []string{"node"}), "satmesh_route_changes_total")
	if err != nil {
		return nil, err
	}
	step, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satmesh_step_duration_seconds",
		Help:    "Wall clock time taken by one simulation step.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}), "satmesh_step_duration_seconds")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satmesh_sim_time_seconds",
		Help: "Current virtual time as a unix timestamp.",
	}), "satmesh_sim_time_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:     gatherer,
		Events:       events,
		Dropped:      dropped,
		RouteChanges: changes,
		StepDuration: step,
		SimTime:      simTime,
	}, nil
}

func (c *Collector) Emit(ev state.Event) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(ev.Kind.String()).Inc()
	switch ev.Kind {
	case state.MessageDropped:
		c.Dropped.WithLabelValues(string(ev.Reason)).Inc()
		DroppedPerSecond.Add(1)
	case state.RouteChanged:
		c.RouteChanges.WithLabelValues(string(ev.NodeId)).Inc()
		RouteChangesPerSecond.Add(1)
	}
}

// ObserveStep records one clock step.
func (c *Collector) ObserveStep(elapsed time.Duration, simTime time.Time) {
	if c == nil {
		return
	}
	c.StepDuration.Observe(elapsed.Seconds())
	c.SimTime.Set(float64(simTime.Unix()))
	StepLatency.Add(float64(elapsed.Milliseconds()))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
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

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
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
