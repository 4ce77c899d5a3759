package panel

import (
	"context"
	"fmt"

	"github.com/CerneaMihnea/smart-valve-control/internal/backend"
	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
	"github.com/CerneaMihnea/smart-valve-control/internal/zone"

	"go.uber.org/zap"
)

// Save persists graph, zones and viewport as one document. A pending zone update is
// computed first. The dirty flag is cleared only if no node moved while saving.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.dirty {
		s.snapshot = s.clusterer.Compute(s.graph, s.configs)
	}
	gen := s.moveGen
	doc := backend.Document{
		Export:   graph.FromInternal(s.graph),
		Zones:    cloneSnapshot(s.snapshot),
		Viewport: &backend.Viewport{Transform: s.viewport},
	}
	s.mu.Unlock()

	err := s.backend.SaveGraph(ctx, doc)
	s.metrics.ObserveGraphSave(err)
	if err != nil {
		s.logger.Error("Save graph failed", zap.Error(err))
		return fmt.Errorf("save graph: %w", err)
	}

	s.mu.Lock()
	if s.moveGen == gen {
		s.dirty = false
	}
	s.mu.Unlock()

	s.logger.Info("Graph saved",
		zap.Int("nodes", len(doc.Drawflow[graph.HomeModule].Data)),
		zap.Int("zones", len(doc.Zones)),
	)
	return nil
}

// Load fetches device configs, the saved document and the flow list. A missing document
// or one without a graph section yields an empty canvas. Zone overlays come from the
// stored snapshot until the next recomputation.
func (s *Session) Load(ctx context.Context) error {
	cfgs := s.loadConfigs(ctx)

	doc, err := s.backend.LoadGraph(ctx)
	if err != nil {
		s.logger.Error("Load graph failed", zap.Error(err))
		return fmt.Errorf("load graph: %w", err)
	}

	flows, ferr := s.backend.GetFlows(ctx)
	if ferr != nil {
		s.logger.Warn("Load flows failed, keeping current list", zap.Error(ferr))
	}

	g := graph.New()
	snap := zone.Snapshot{}
	viewport := ""
	if doc.HasGraph() {
		g = graph.ToInternal(doc.Export, s.nodeSize)
		graph.RefreshLabels(g, cfgs, s.now())
		if doc.Zones != nil {
			snap = doc.Zones
		}
		if doc.Viewport != nil {
			viewport = doc.Viewport.Transform
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = cfgs
	s.graph = g
	s.nameIndex = g.NameIndex()
	s.snapshot = snap
	s.viewport = viewport
	s.dirty = false
	if ferr == nil {
		s.flows = flows
	}

	s.logger.Info("Graph loaded",
		zap.Int("nodes", g.Len()),
		zap.Int("edges", len(g.Edges())),
		zap.Int("zones", len(snap)),
		zap.Int("flows", len(s.flows)),
	)
	return nil
}

// loadConfigs falls back to /zones-devices (zone membership only) and finally to the
// configs already held.
func (s *Session) loadConfigs(ctx context.Context) domain.DeviceConfigs {
	cfgs, err := s.backend.DevicesConfig(ctx)
	if err == nil {
		return cfgs
	}
	s.logger.Warn("Load device configs failed", zap.Error(err))

	zones, zerr := s.backend.ZonesDevices(ctx)
	if zerr == nil {
		return zone.ConfigsFromZones(zones)
	}
	s.logger.Warn("Load zones failed", zap.Error(zerr))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs
}

func cloneSnapshot(snap zone.Snapshot) zone.Snapshot {
	out := make(zone.Snapshot, len(snap))
	for name, grp := range snap {
		out[name] = zone.Group{Color: grp.Color, Nodes: append([]zone.Box(nil), grp.Nodes...)}
	}
	return out
}
