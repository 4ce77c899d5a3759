package domain

// DefaultFlowName used when a flow is saved with a blank name.
const DefaultFlowName = "Unnamed flow"

// FlowEdge directed connection stored in a flow
type FlowEdge struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// Flow named subset of valves plus the edges among them. Immutable once saved.
type Flow struct {
	Name   string     `json:"name"`
	Color  string     `json:"color"`
	Valves []NodeID   `json:"valves"`
	Edges  []FlowEdge `json:"edges"`
}

// HasEdge reports whether the flow stores from->to.
func (f Flow) HasEdge(from, to NodeID) bool {
	for _, e := range f.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}
