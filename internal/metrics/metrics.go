package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Collector panel metrics. All methods are safe on a nil receiver.
type Collector struct {
	gatherer prometheus.Gatherer

	BackendRequests  *prometheus.CounterVec
	ValveCommands    *prometheus.CounterVec
	OfflineHits      prometheus.Counter
	SimulationActive prometheus.Gauge
	SimulationRuns   prometheus.Counter
	GraphSaves       *prometheus.CounterVec
}

// NewCollector registers panel metrics against reg (default registerer when nil).
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	backend, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valve_panel_backend_requests_total",
		Help: "Requests sent to the device registry backend, by operation and result.",
	}, []string{"op", "result"}), "valve_panel_backend_requests_total")
	if err != nil {
		return nil, err
	}

	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valve_panel_valve_commands_total",
		Help: "Valve commands issued, by phase (activate, restore, zone) and result.",
	}, []string{"phase", "result"}), "valve_panel_valve_commands_total")
	if err != nil {
		return nil, err
	}

	offline, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "valve_panel_offline_cache_hits_total",
		Help: "Backend reads served from the offline cache after a network failure.",
	}), "valve_panel_offline_cache_hits_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "valve_panel_simulation_active",
		Help: "1 while a flow simulation is running.",
	}), "valve_panel_simulation_active")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "valve_panel_simulation_runs_total",
		Help: "Flow simulations started.",
	}), "valve_panel_simulation_runs_total")
	if err != nil {
		return nil, err
	}

	saves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "valve_panel_graph_saves_total",
		Help: "Graph save attempts by result.",
	}, []string{"result"}), "valve_panel_graph_saves_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		BackendRequests:  backend,
		ValveCommands:    commands,
		OfflineHits:      offline,
		SimulationActive: active,
		SimulationRuns:   runs,
		GraphSaves:       saves,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveBackend(op string, err error) {
	if c == nil || c.BackendRequests == nil {
		return
	}
	c.BackendRequests.WithLabelValues(op, result(err)).Inc()
}

func (c *Collector) ObserveCommand(phase string, err error) {
	if c == nil || c.ValveCommands == nil {
		return
	}
	c.ValveCommands.WithLabelValues(phase, result(err)).Inc()
}

func (c *Collector) IncOfflineHits() {
	if c == nil || c.OfflineHits == nil {
		return
	}
	c.OfflineHits.Inc()
}

func (c *Collector) SetSimulationActive(active bool) {
	if c == nil || c.SimulationActive == nil {
		return
	}
	if active {
		c.SimulationActive.Set(1)
		return
	}
	c.SimulationActive.Set(0)
}

func (c *Collector) IncSimulationRuns() {
	if c == nil || c.SimulationRuns == nil {
		return
	}
	c.SimulationRuns.Inc()
}

func (c *Collector) ObserveGraphSave(err error) {
	if c == nil || c.GraphSaves == nil {
		return
	}
	c.GraphSaves.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
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
