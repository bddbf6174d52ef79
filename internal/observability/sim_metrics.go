package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimCollector exposes simulation-loop Prometheus metrics.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal    prometheus.Counter
	TickDuration  prometheus.Histogram
	FlocksLive    prometheus.Gauge
	AgentsByState *prometheus.GaugeVec
	MoveCommands  *prometheus.CounterVec
	MotionEvents  *prometheus.CounterVec
}

// NewSimCollector registers simulation metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flock_sim_ticks_total",
		Help: "Number of simulation ticks executed.",
	}), "flock_sim_ticks_total")
	if err != nil {
		return nil, err
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flock_sim_tick_duration_seconds",
		Help:    "Wall-clock time spent integrating one simulation tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.033},
	}), "flock_sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	flocks, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flock_sim_flocks_live",
		Help: "Current number of live flocks.",
	}), "flock_sim_flocks_live")
	if err != nil {
		return nil, err
	}

	byState, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flock_sim_agents",
		Help: "Commanded agents by arrival state.",
	}, []string{"state"}), "flock_sim_agents")
	if err != nil {
		return nil, err
	}

	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flock_sim_move_commands_total",
		Help: "Move commands received, labeled by result.",
	}, []string{"result"}), "flock_sim_move_commands_total")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flock_sim_motion_events_total",
		Help: "Motion notifications emitted, labeled by event.",
	}, []string{"event"}), "flock_sim_motion_events_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:      gathererFor(reg),
		TicksTotal:    ticks,
		TickDuration:  tickDuration,
		FlocksLive:    flocks,
		AgentsByState: byState,
		MoveCommands:  commands,
		MotionEvents:  events,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes the collector's registry over HTTP.
func (c *SimCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveTick records one tick: its duration, the live flock count and the
// number of agents in each arrival state.
func (c *SimCollector) ObserveTick(d time.Duration, flocks int, agentsByState map[string]int) {
	if c == nil {
		return
	}
	if c.TicksTotal != nil {
		c.TicksTotal.Inc()
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(d.Seconds())
	}
	if c.FlocksLive != nil {
		c.FlocksLive.Set(float64(flocks))
	}
	if c.AgentsByState != nil {
		for state, n := range agentsByState {
			c.AgentsByState.WithLabelValues(state).Set(float64(n))
		}
	}
}

// ObserveCommand counts a move command with the given result label.
func (c *SimCollector) ObserveCommand(result string) {
	if c == nil || c.MoveCommands == nil {
		return
	}
	c.MoveCommands.WithLabelValues(result).Inc()
}

// ObserveMotionEvent counts a motion notification.
func (c *SimCollector) ObserveMotionEvent(event string) {
	if c == nil || c.MotionEvents == nil {
		return
	}
	c.MotionEvents.WithLabelValues(event).Inc()
}
