// Package zone groups graph nodes by their device zone and derives the
// bounding overlay drawn behind each group.
package zone

import (
	"math"
	"sort"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
)

// DefaultPadding added on every side of a zone's bounding box
const DefaultPadding = 20.0

// Box node geometry captured in a zone snapshot
type Box struct {
	ID     domain.NodeID `json:"id"`
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
	Width  float64       `json:"width"`
	Height float64       `json:"height"`
}

// Group zone color plus the boxes of its nodes
type Group struct {
	Color string `json:"color"`
	Nodes []Box  `json:"nodes"`
}

// Snapshot zone name -> group; persisted with the graph as a cache for fast reload.
type Snapshot map[string]Group

// Overlay rectangle drawn for one zone
type Overlay struct {
	Zone   string  `json:"zone"`
	Color  string  `json:"color"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Clusterer struct {
	Padding float64
}

func NewClusterer(padding float64) *Clusterer {
	return &Clusterer{Padding: padding}
}

// Compute groups every node by its device zone. Nodes whose device declares no zone,
// or is missing from cfgs, fall into domain.NoZone. The group color comes from the
// first node (by id) of the zone.
func (c *Clusterer) Compute(g *graph.Graph, cfgs domain.DeviceConfigs) Snapshot {
	snap := Snapshot{}
	for _, n := range g.Nodes() {
		cfg := cfgs[n.Name]
		name := cfg.ZoneName()
		grp, ok := snap[name]
		if !ok {
			grp = Group{Color: cfg.Color()}
		}
		grp.Nodes = append(grp.Nodes, Box{ID: n.ID, X: n.X, Y: n.Y, Width: n.Width, Height: n.Height})
		snap[name] = grp
	}
	return snap
}

// Overlays derives one padded rectangle per zone with at least one node, sorted by zone name.
func (c *Clusterer) Overlays(snap Snapshot) []Overlay {
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Overlay, 0, len(names))
	for _, name := range names {
		grp := snap[name]
		if len(grp.Nodes) == 0 {
			continue
		}
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, b := range grp.Nodes {
			minX = math.Min(minX, b.X)
			minY = math.Min(minY, b.Y)
			maxX = math.Max(maxX, b.X+b.Width)
			maxY = math.Max(maxY, b.Y+b.Height)
		}
		p := c.Padding
		out = append(out, Overlay{
			Zone:   name,
			Color:  grp.Color,
			Left:   minX - p,
			Top:    minY - p,
			Width:  (maxX - minX) + 2*p,
			Height: (maxY - minY) + 2*p,
		})
	}
	return out
}

// ConfigsFromZones turns a /zones-devices payload into per-device configs.
func ConfigsFromZones(zones map[string]domain.ZoneDevices) domain.DeviceConfigs {
	cfgs := domain.DeviceConfigs{}
	for name, z := range zones {
		for _, dev := range z.Devices {
			cfgs[dev] = domain.DeviceConfig{DeviceID: dev, Zone: name, ZoneColor: z.Color}
		}
	}
	return cfgs
}
