// Package panel holds the operator session: the current graph, its zone cache,
// the flow list and the simulation/poll tasks, plus graph save/load.
package panel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/backend"
	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/flow"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
	"github.com/CerneaMihnea/smart-valve-control/internal/metrics"
	"github.com/CerneaMihnea/smart-valve-control/internal/poller"
	"github.com/CerneaMihnea/smart-valve-control/internal/repository"
	"github.com/CerneaMihnea/smart-valve-control/internal/simulation"
	"github.com/CerneaMihnea/smart-valve-control/internal/zone"

	"go.uber.org/zap"
)

// Backend the device registry endpoints the session uses
type Backend interface {
	ZonesDevices(ctx context.Context) (map[string]domain.ZoneDevices, error)
	DevicesConfig(ctx context.Context) (domain.DeviceConfigs, error)
	GetStatus(ctx context.Context, deviceID string) (domain.DeviceStatus, error)
	SetCommand(ctx context.Context, deviceID, command string) error
	SaveGraph(ctx context.Context, doc backend.Document) error
	LoadGraph(ctx context.Context) (backend.Document, error)
	SaveFlow(ctx context.Context, f domain.Flow) error
	GetFlows(ctx context.Context) ([]domain.Flow, error)
}

type Options struct {
	NodeSize    graph.Size
	ZonePadding float64
	Now         func() time.Time
}

// Session application state. Fields are guarded by mu; backend calls run without it.
type Session struct {
	backend   Backend
	clusterer *zone.Clusterer
	builder   *flow.Builder
	seq       *simulation.Sequencer
	poller    *poller.Poller
	metrics   *metrics.Collector
	logger    *zap.Logger
	nodeSize  graph.Size
	now       func() time.Time

	mu           sync.Mutex
	graph        *graph.Graph
	configs      domain.DeviceConfigs
	flows        []domain.Flow
	snapshot     zone.Snapshot
	dirty        bool
	moveGen      uint64
	zonesVisible bool
	viewport     string
	nameIndex    map[string]domain.NodeID
}

func NewSession(b Backend, seq *simulation.Sequencer, p *poller.Poller, m *metrics.Collector, logger *zap.Logger, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NodeSize.Width <= 0 || opts.NodeSize.Height <= 0 {
		opts.NodeSize = graph.Size{Width: 160, Height: 60}
	}
	s := &Session{
		backend:   b,
		clusterer: zone.NewClusterer(opts.ZonePadding),
		builder:   flow.NewBuilder(b, logger),
		seq:       seq,
		poller:    p,
		metrics:   m,
		logger:    logger,
		nodeSize:  opts.NodeSize,
		now:       opts.Now,
	}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.graph = graph.New()
	s.configs = domain.DeviceConfigs{}
	s.flows = []domain.Flow{}
	s.snapshot = zone.Snapshot{}
	s.dirty = false
	s.zonesVisible = true
	s.viewport = ""
	s.nameIndex = map[string]domain.NodeID{}
}

// Reset drops all session state and cancels status polling. A running simulation is not touched.
func (s *Session) Reset() {
	s.poller.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Close 释放后台任务
func (s *Session) Close() {
	s.poller.Stop()
}

// GraphView current graph for display
type GraphView struct {
	Nodes    []graph.Node             `json:"nodes"`
	Edges    []graph.Edge             `json:"edges"`
	Viewport string                   `json:"viewport"`
	Dirty    bool                     `json:"zones_dirty"`
	Index    map[string]domain.NodeID `json:"device_nodes"`
}

func (s *Session) Graph() GraphView {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := make(map[string]domain.NodeID, len(s.nameIndex))
	for k, v := range s.nameIndex {
		index[k] = v
	}
	return GraphView{
		Nodes:    s.graph.Nodes(),
		Edges:    s.graph.Edges(),
		Viewport: s.viewport,
		Dirty:    s.dirty,
		Index:    index,
	}
}

// Export current graph in the widget shape
func (s *Session) Export() graph.Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.FromInternal(s.graph)
}

// AddNode places deviceID on the canvas with a freshly rendered label, then recomputes zones.
func (s *Session) AddNode(deviceID string, x, y float64) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	html := graph.RenderLabel(deviceID, s.configs[deviceID], s.now())
	id, err := s.graph.AddNode(deviceID, x, y, s.nodeSize, html)
	if err != nil {
		return graph.Node{}, err
	}
	s.nameIndex[deviceID] = id
	s.snapshot = s.clusterer.Compute(s.graph, s.configs)
	n, _ := s.graph.Node(id)
	return n, nil
}

// MoveNode records a node move and marks zones dirty.
func (s *Session) MoveNode(id domain.NodeID, x, y, width, height float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.graph.MoveNode(id, x, y, width, height); err != nil {
		return err
	}
	s.markDirtyLocked()
	return nil
}

func (s *Session) RemoveNode(id domain.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.graph.Node(id)
	if !ok {
		return domain.NewValidationError("node not found: " + id.String())
	}
	s.graph.RemoveNode(id)
	delete(s.nameIndex, n.Name)
	s.markDirtyLocked()
	return nil
}

func (s *Session) Connect(from, to domain.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Connect(from, to)
}

// Disconnect returns the number of connections removed.
func (s *Session) Disconnect(from, to domain.NodeID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Disconnect(from, to)
}

// SetViewport stores the canvas transform verbatim.
func (s *Session) SetViewport(transform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = transform
}

func (s *Session) markDirtyLocked() {
	s.dirty = true
	s.moveGen++
}

// ZonesView overlays derived from the current snapshot
type ZonesView struct {
	Visible  bool           `json:"visible"`
	Dirty    bool           `json:"dirty"`
	Overlays []zone.Overlay `json:"overlays"`
}

func (s *Session) Zones() ZonesView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zonesViewLocked()
}

func (s *Session) zonesViewLocked() ZonesView {
	return ZonesView{
		Visible:  s.zonesVisible,
		Dirty:    s.dirty,
		Overlays: s.clusterer.Overlays(s.snapshot),
	}
}

// ResetZones recomputes the snapshot from the current layout. The dirty flag is left to Save.
func (s *Session) ResetZones() ZonesView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = s.clusterer.Compute(s.graph, s.configs)
	return s.zonesViewLocked()
}

// SetZonesVisible only affects display; geometry is unchanged.
func (s *Session) SetZonesVisible(visible bool) ZonesView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zonesVisible = visible
	return s.zonesViewLocked()
}

// Flows stored flow list, in stored order
func (s *Session) Flows() []domain.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Flow(nil), s.flows...)
}

// CreateFlow derives the flow from the current graph and appends it to the backend list.
func (s *Session) CreateFlow(ctx context.Context, req flow.BuildRequest) (domain.Flow, error) {
	s.mu.Lock()
	g := s.graph.Clone()
	s.mu.Unlock()

	f, err := s.builder.Save(ctx, g, req)
	if err != nil {
		return domain.Flow{}, err
	}

	s.mu.Lock()
	s.flows = append(s.flows, f)
	s.mu.Unlock()
	return f, nil
}

// ReloadFlows replaces the local flow list with the backend's.
func (s *Session) ReloadFlows(ctx context.Context) error {
	flows, err := s.backend.GetFlows(ctx)
	if err != nil {
		return fmt.Errorf("load flows: %w", err)
	}
	s.mu.Lock()
	s.flows = flows
	s.mu.Unlock()
	return nil
}

// Edges canonical edge list of the current graph
func (s *Session) Edges() []flow.CanonicalEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	edges := flow.ListCanonicalEdges(s.graph)
	if edges == nil {
		edges = []flow.CanonicalEdge{}
	}
	return edges
}

// EdgeFlows the flow a selected edge resolves to (first match), plus how many flows contain it.
type EdgeFlows struct {
	Flow    flow.ResolvedFlow `json:"flow"`
	Matches int               `json:"matches"`
}

// ResolveEdge ok is false when no flow contains from -> to.
func (s *Session) ResolveEdge(from, to domain.NodeID) (EdgeFlows, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := flow.Resolve(s.flows, from, to)
	if !ok {
		return EdgeFlows{}, false
	}
	return EdgeFlows{
		Flow:    flow.Decorate(f, s.graph),
		Matches: len(flow.ResolveAll(s.flows, from, to)),
	}, true
}

// Highlight first flow named name
func (s *Session) Highlight(name string) (flow.Highlight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flows {
		if f.Name == name {
			return flow.HighlightFor(f, s.graph), true
		}
	}
	return flow.Highlight{}, false
}

// StartSimulation resolves the selected edge to a flow and starts it.
func (s *Session) StartSimulation(ctx context.Context, from, to domain.NodeID) (simulation.Snapshot, error) {
	ef, ok := s.ResolveEdge(from, to)
	if !ok {
		s.logger.Info("No flow for selected edge", zap.String("from", from.String()), zap.String("to", to.String()))
		return simulation.Snapshot{}, flow.ErrNoFlow
	}
	return s.seq.Start(ctx, ef.Flow)
}

// StopSimulation restores the valves, then re-reads devices, flows and graph.
// A failed reload is logged; the stop itself succeeded.
func (s *Session) StopSimulation(ctx context.Context) (simulation.StopResult, error) {
	res, err := s.seq.Stop(ctx)
	if err != nil {
		return simulation.StopResult{}, err
	}
	if err := s.Load(ctx); err != nil {
		s.logger.Warn("Reload after simulation stop failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
	return res, nil
}

func (s *Session) Simulation() simulation.Snapshot {
	return s.seq.Snapshot()
}

func (s *Session) SimulationRuns(ctx context.Context, limit int) ([]repository.SimulationRun, error) {
	return s.seq.Runs(ctx, limit)
}

// SelectDevice replaces the status poll task.
func (s *Session) SelectDevice(deviceID string) {
	s.poller.Select(deviceID)
}

func (s *Session) Status() (poller.Reading, bool) {
	return s.poller.Latest()
}
