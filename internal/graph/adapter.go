package graph

import (
	"encoding/json"
	"sort"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
)

// HomeModule the only diagram module the panel uses
const HomeModule = "Home"

// Export diagram widget export/import shape: {"drawflow":{"Home":{"data":{...}}}}
type Export struct {
	Drawflow map[string]Module `json:"drawflow"`
}

type Module struct {
	Data map[string]ExportNode `json:"data"`
}

type ExportNode struct {
	ID       domain.NodeID   `json:"id"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data,omitempty"`
	Class    string          `json:"class"`
	HTML     string          `json:"html"`
	TypeNode json.RawMessage `json:"typenode,omitempty"`
	Inputs   map[string]Port `json:"inputs"`
	Outputs  map[string]Port `json:"outputs"`
	PosX     float64         `json:"pos_x"`
	PosY     float64         `json:"pos_y"`
	// width/height are not part of the widget export; kept so geometry survives a round-trip
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

type Port struct {
	Connections []Connection `json:"connections"`
}

// Connection on an output port Output names the target input; on an input port Input names the source output.
type Connection struct {
	Node   domain.NodeID `json:"node"`
	Output string        `json:"output,omitempty"`
	Input  string        `json:"input,omitempty"`
}

// HasGraph reports whether the export carries a Home module.
func (e Export) HasGraph() bool {
	if e.Drawflow == nil {
		return false
	}
	_, ok := e.Drawflow[HomeModule]
	return ok
}

// ToInternal converts a widget export into a Graph. Ids are kept as exported (never reassigned).
// Connections pointing at nodes missing from the export are dropped.
func ToInternal(e Export, size Size) *Graph {
	g := New()
	if !e.HasGraph() {
		return g
	}
	data := e.Drawflow[HomeModule].Data

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessID(domain.NormalizeNodeID(keys[i]), domain.NormalizeNodeID(keys[j]))
	})

	for _, k := range keys {
		en := data[k]
		id := en.ID
		if id == "" {
			id = domain.NormalizeNodeID(k)
		}
		n := Node{
			ID:       id,
			Name:     en.Name,
			X:        en.PosX,
			Y:        en.PosY,
			Width:    en.Width,
			Height:   en.Height,
			Class:    en.Class,
			HTML:     en.HTML,
			Data:     en.Data,
			TypeNode: en.TypeNode,
			Inputs:   sortedPorts(en.Inputs),
			Outputs:  sortedPorts(en.Outputs),
		}
		if n.Width <= 0 {
			n.Width = size.Width
		}
		if n.Height <= 0 {
			n.Height = size.Height
		}
		g.insert(n)
	}

	for _, k := range keys {
		en := data[k]
		src := en.ID
		if src == "" {
			src = domain.NormalizeNodeID(k)
		}
		for _, port := range sortedPorts(en.Outputs) {
			for _, c := range en.Outputs[port].Connections {
				if g.index(c.Node) < 0 {
					continue
				}
				g.edges = append(g.edges, Edge{
					Source:     src,
					Target:     c.Node,
					SourcePort: port,
					TargetPort: c.Output,
				})
			}
		}
	}
	return g
}

// FromInternal rebuilds the widget import shape; inputs are derived from the edge list.
func FromInternal(g *Graph) Export {
	data := make(map[string]ExportNode, len(g.nodes))
	for _, n := range g.nodes {
		en := ExportNode{
			ID:       n.ID,
			Name:     n.Name,
			Data:     n.Data,
			Class:    n.Class,
			HTML:     n.HTML,
			TypeNode: n.TypeNode,
			Inputs:   make(map[string]Port, len(n.Inputs)),
			Outputs:  make(map[string]Port, len(n.Outputs)),
			PosX:     n.X,
			PosY:     n.Y,
			Width:    n.Width,
			Height:   n.Height,
		}
		if len(en.Data) == 0 {
			en.Data = json.RawMessage(`{}`)
		}
		for _, p := range n.Inputs {
			en.Inputs[p] = Port{Connections: []Connection{}}
		}
		for _, p := range n.Outputs {
			en.Outputs[p] = Port{Connections: []Connection{}}
		}
		data[n.ID.String()] = en
	}

	for _, e := range g.edges {
		sp := orDefault(e.SourcePort, defaultOutputPort)
		tp := orDefault(e.TargetPort, defaultInputPort)

		src := data[e.Source.String()]
		out := src.Outputs[sp]
		out.Connections = append(out.Connections, Connection{Node: e.Target, Output: tp})
		src.Outputs[sp] = out
		data[e.Source.String()] = src

		dst := data[e.Target.String()]
		in := dst.Inputs[tp]
		in.Connections = append(in.Connections, Connection{Node: e.Source, Input: sp})
		dst.Inputs[tp] = in
		data[e.Target.String()] = dst
	}

	return Export{Drawflow: map[string]Module{HomeModule: {Data: data}}}
}

func sortedPorts(ports map[string]Port) []string {
	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
