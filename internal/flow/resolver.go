package flow

import (
	"errors"
	"sort"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
)

// ErrNoFlow no stored flow contains the selected edge
var ErrNoFlow = errors.New("no flow contains this edge")

// CanonicalEdge named connection shown in the edge picker
type CanonicalEdge struct {
	FromID   domain.NodeID `json:"fromId"`
	FromName string        `json:"fromName"`
	ToID     domain.NodeID `json:"toId"`
	ToName   string        `json:"toName"`
}

// Valve flow member with its device id resolved from the graph
type Valve struct {
	NodeID   domain.NodeID `json:"nodeId"`
	DeviceID string        `json:"deviceId"`
}

// ResolvedFlow flow decorated with device names, ready for simulation
type ResolvedFlow struct {
	Name   string          `json:"name"`
	Color  string          `json:"color"`
	Valves []Valve         `json:"valves"`
	Edges  []CanonicalEdge `json:"edges"`
}

// DeviceIDs valve device ids in flow order.
func (r ResolvedFlow) DeviceIDs() []string {
	ids := make([]string, len(r.Valves))
	for i, v := range r.Valves {
		ids[i] = v.DeviceID
	}
	return ids
}

// Highlight nodes and edges of a flow that are present in the current graph
type Highlight struct {
	Flow  string            `json:"flow"`
	Color string            `json:"color"`
	Nodes []domain.NodeID   `json:"nodes"`
	Edges []domain.FlowEdge `json:"edges"`
}

// ListCanonicalEdges one entry per (from, to) pair, sorted by (fromName, toName).
// Connections to nodes not in the graph are skipped.
func ListCanonicalEdges(g *graph.Graph) []CanonicalEdge {
	seen := map[domain.FlowEdge]struct{}{}
	var out []CanonicalEdge
	for _, n := range g.Nodes() {
		for _, e := range g.Outgoing(n.ID) {
			to, ok := g.Node(e.Target)
			if !ok {
				continue
			}
			key := domain.FlowEdge{From: n.ID, To: to.ID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, CanonicalEdge{FromID: n.ID, FromName: n.Name, ToID: to.ID, ToName: to.Name})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FromName != b.FromName {
			return a.FromName < b.FromName
		}
		if a.ToName != b.ToName {
			return a.ToName < b.ToName
		}
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		return a.ToID < b.ToID
	})
	return out
}

// Resolve first flow, in stored order, whose edges contain from -> to.
// ok is false when no flow matches; that is a normal outcome.
func Resolve(flows []domain.Flow, from, to domain.NodeID) (domain.Flow, bool) {
	from, to = domain.NormalizeNodeID(string(from)), domain.NormalizeNodeID(string(to))
	for _, f := range flows {
		if f.HasEdge(from, to) {
			return f, true
		}
	}
	return domain.Flow{}, false
}

// ResolveAll every flow containing from -> to, in stored order.
func ResolveAll(flows []domain.Flow, from, to domain.NodeID) []domain.Flow {
	from, to = domain.NormalizeNodeID(string(from)), domain.NormalizeNodeID(string(to))
	var out []domain.Flow
	for _, f := range flows {
		if f.HasEdge(from, to) {
			out = append(out, f)
		}
	}
	return out
}

// Decorate maps node ids to device names; ids missing from the graph keep the id as name.
func Decorate(f domain.Flow, g *graph.Graph) ResolvedFlow {
	name := func(id domain.NodeID) string {
		if n, ok := g.Node(id); ok {
			return n.Name
		}
		return id.String()
	}

	r := ResolvedFlow{
		Name:   f.Name,
		Color:  f.Color,
		Valves: make([]Valve, len(f.Valves)),
		Edges:  make([]CanonicalEdge, len(f.Edges)),
	}
	for i, id := range f.Valves {
		r.Valves[i] = Valve{NodeID: id, DeviceID: name(id)}
	}
	for i, e := range f.Edges {
		r.Edges[i] = CanonicalEdge{FromID: e.From, FromName: name(e.From), ToID: e.To, ToName: name(e.To)}
	}
	return r
}

// HighlightFor nodes and edges of f that still exist in g.
func HighlightFor(f domain.Flow, g *graph.Graph) Highlight {
	h := Highlight{Flow: f.Name, Color: f.Color, Nodes: []domain.NodeID{}, Edges: []domain.FlowEdge{}}
	for _, id := range f.Valves {
		if _, ok := g.Node(id); ok {
			h.Nodes = append(h.Nodes, id)
		}
	}
	present := map[domain.FlowEdge]struct{}{}
	for _, e := range g.Edges() {
		present[domain.FlowEdge{From: e.Source, To: e.Target}] = struct{}{}
	}
	for _, e := range f.Edges {
		if _, ok := present[e]; ok {
			h.Edges = append(h.Edges, e)
		}
	}
	return h
}
