package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
)

const (
	defaultInputPort  = "input_1"
	defaultOutputPort = "output_1"
)

// Size default rendered node size, used when the export carries no geometry
type Size struct {
	Width  float64
	Height float64
}

// Node positioned device on the canvas. Name is the device_id.
type Node struct {
	ID       domain.NodeID   `json:"id"`
	Name     string          `json:"name"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Width    float64         `json:"width"`
	Height   float64         `json:"height"`
	Class    string          `json:"class"`
	HTML     string          `json:"html"`
	Data     json.RawMessage `json:"data,omitempty"`
	TypeNode json.RawMessage `json:"typenode,omitempty"`
	Inputs   []string        `json:"inputs"`
	Outputs  []string        `json:"outputs"`
}

// Edge directed connection source -> target
type Edge struct {
	Source     domain.NodeID `json:"source"`
	Target     domain.NodeID `json:"target"`
	SourcePort string        `json:"source_port"`
	TargetPort string        `json:"target_port"`
}

// Graph nodes kept sorted by id; edges may contain duplicate (source, target) pairs.
type Graph struct {
	nodes []Node
	edges []Edge
}

func New() *Graph { return &Graph{} }

// Nodes returns a copy sorted by id.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns a copy in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Node(id domain.NodeID) (Node, bool) {
	if i := g.index(id); i >= 0 {
		return g.nodes[i], true
	}
	return Node{}, false
}

func (g *Graph) NodeByName(name string) (Node, bool) {
	for _, n := range g.nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// NameIndex device name -> node id
func (g *Graph) NameIndex() map[string]domain.NodeID {
	idx := make(map[string]domain.NodeID, len(g.nodes))
	for _, n := range g.nodes {
		idx[n.Name] = n.ID
	}
	return idx
}

// Outgoing edges whose source is id, in insertion order.
func (g *Graph) Outgoing(id domain.NodeID) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// AddNode places a new node and returns its id (max numeric id + 1).
func (g *Graph) AddNode(name string, x, y float64, size Size, html string) (domain.NodeID, error) {
	if name == "" {
		return "", domain.NewValidationError("device_id is required")
	}
	if _, dup := g.NodeByName(name); dup {
		return "", domain.NewValidationError("device already on graph: " + name)
	}
	id := g.nextID()
	g.insert(Node{
		ID:      id,
		Name:    name,
		X:       x,
		Y:       y,
		Width:   size.Width,
		Height:  size.Height,
		Class:   name,
		HTML:    html,
		Data:    json.RawMessage(`{}`),
		Inputs:  []string{defaultInputPort},
		Outputs: []string{defaultOutputPort},
	})
	return id, nil
}

// MoveNode sets canvas position; a non-positive width or height keeps the current size.
func (g *Graph) MoveNode(id domain.NodeID, x, y, width, height float64) error {
	i := g.index(id)
	if i < 0 {
		return domain.NewValidationError("node not found: " + id.String())
	}
	g.nodes[i].X = x
	g.nodes[i].Y = y
	if width > 0 {
		g.nodes[i].Width = width
	}
	if height > 0 {
		g.nodes[i].Height = height
	}
	return nil
}

// SetHTML replaces the rendered label content of a node.
func (g *Graph) SetHTML(id domain.NodeID, html string) {
	if i := g.index(id); i >= 0 {
		g.nodes[i].HTML = html
	}
}

// RemoveNode drops the node and every edge touching it.
func (g *Graph) RemoveNode(id domain.NodeID) bool {
	i := g.index(id)
	if i < 0 {
		return false
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	return true
}

// Connect appends source -> target. Duplicate pairs are allowed.
func (g *Graph) Connect(source, target domain.NodeID) error {
	if g.index(source) < 0 {
		return domain.NewValidationError("node not found: " + source.String())
	}
	if g.index(target) < 0 {
		return domain.NewValidationError("node not found: " + target.String())
	}
	g.edges = append(g.edges, Edge{
		Source:     source,
		Target:     target,
		SourcePort: firstOr(g.nodes[g.index(source)].Outputs, defaultOutputPort),
		TargetPort: firstOr(g.nodes[g.index(target)].Inputs, defaultInputPort),
	})
	return nil
}

// Disconnect removes every source -> target edge and returns how many were removed.
func (g *Graph) Disconnect(source, target domain.NodeID) int {
	removed := 0
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Source == source && e.Target == target {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	return removed
}

// Clone deep-copies nodes and edges.
func (g *Graph) Clone() *Graph {
	c := &Graph{nodes: make([]Node, len(g.nodes)), edges: make([]Edge, len(g.edges))}
	copy(c.edges, g.edges)
	for i, n := range g.nodes {
		n.Inputs = append([]string(nil), n.Inputs...)
		n.Outputs = append([]string(nil), n.Outputs...)
		c.nodes[i] = n
	}
	return c
}

func (g *Graph) insert(n Node) {
	i := sort.Search(len(g.nodes), func(i int) bool { return !lessID(g.nodes[i].ID, n.ID) })
	g.nodes = append(g.nodes, Node{})
	copy(g.nodes[i+1:], g.nodes[i:])
	g.nodes[i] = n
}

func (g *Graph) index(id domain.NodeID) int {
	for i := range g.nodes {
		if g.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *Graph) nextID() domain.NodeID {
	max := int64(0)
	for _, n := range g.nodes {
		if v, err := strconv.ParseInt(string(n.ID), 10, 64); err == nil && v > max {
			max = v
		}
	}
	return domain.NodeID(fmt.Sprintf("%d", max+1))
}

// lessID orders numeric ids numerically, then everything else lexically.
func lessID(a, b domain.NodeID) bool {
	ai, aerr := strconv.ParseInt(string(a), 10, 64)
	bi, berr := strconv.ParseInt(string(b), 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

func firstOr(ports []string, def string) string {
	if len(ports) > 0 {
		return ports[0]
	}
	return def
}
