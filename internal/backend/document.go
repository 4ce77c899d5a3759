package backend

import (
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
	"github.com/CerneaMihnea/smart-valve-control/internal/zone"
)

// Viewport canvas pan/zoom, stored verbatim (e.g. "matrix(1, 0, 0, 1, 0, 0)")
type Viewport struct {
	Transform string `json:"transform"`
}

// Document body of /save-graph and /load-graph: the widget export plus zones and viewport.
type Document struct {
	graph.Export
	Zones    zone.Snapshot `json:"zones,omitempty"`
	Viewport *Viewport     `json:"viewport,omitempty"`
}
