package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"

	"go.uber.org/zap"
)

// Saver persists a newly defined flow (POST /save-flows)
type Saver interface {
	SaveFlow(ctx context.Context, f domain.Flow) error
}

// BuildRequest operator input for a new flow. Valves are node ids in selection order.
type BuildRequest struct {
	Name   string          `json:"name"`
	Color  string          `json:"color"`
	Valves []domain.NodeID `json:"valves"`
}

type Builder struct {
	saver  Saver
	logger *zap.Logger
}

func NewBuilder(saver Saver, logger *zap.Logger) *Builder {
	return &Builder{saver: saver, logger: logger}
}

// DeriveEdges edges whose source is in the selection, visiting nodes by id and each node's
// outgoing edges in stored order. Each (from, to) pair appears once. A single-valve selection
// therefore yields exactly that valve's outgoing edges.
func DeriveEdges(g *graph.Graph, selection []domain.NodeID) []domain.FlowEdge {
	selected := make(map[domain.NodeID]struct{}, len(selection))
	for _, id := range selection {
		selected[id] = struct{}{}
	}

	seen := map[domain.FlowEdge]struct{}{}
	var edges []domain.FlowEdge
	for _, n := range g.Nodes() {
		if _, ok := selected[n.ID]; !ok {
			continue
		}
		for _, e := range g.Outgoing(n.ID) {
			fe := domain.FlowEdge{From: e.Source, To: e.Target}
			if _, dup := seen[fe]; dup {
				continue
			}
			seen[fe] = struct{}{}
			edges = append(edges, fe)
		}
	}
	return edges
}

// Build validates the selection and derives the flow without persisting it.
func Build(g *graph.Graph, req BuildRequest) (domain.Flow, error) {
	valves := uniqueSelection(req.Valves)
	if len(valves) == 0 {
		return domain.Flow{}, domain.NewValidationError("no valve selected")
	}

	edges := DeriveEdges(g, valves)
	if len(edges) == 0 {
		return domain.Flow{}, domain.NewValidationError("no valid edges for this selection")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = domain.DefaultFlowName
	}
	return domain.Flow{
		Name:   name,
		Color:  req.Color,
		Valves: valves,
		Edges:  edges,
	}, nil
}

// Save builds the flow and appends it to the backend flow list. Existing flows over the
// same valves are not checked.
func (b *Builder) Save(ctx context.Context, g *graph.Graph, req BuildRequest) (domain.Flow, error) {
	f, err := Build(g, req)
	if err != nil {
		return domain.Flow{}, err
	}
	if err := b.saver.SaveFlow(ctx, f); err != nil {
		b.logger.Error("SaveFlow failed", zap.String("flow", f.Name), zap.Error(err))
		return domain.Flow{}, fmt.Errorf("save flow %q: %w", f.Name, err)
	}
	b.logger.Info("Flow saved",
		zap.String("flow", f.Name),
		zap.Int("valves", len(f.Valves)),
		zap.Int("edges", len(f.Edges)),
	)
	return f, nil
}

func uniqueSelection(ids []domain.NodeID) []domain.NodeID {
	seen := make(map[domain.NodeID]struct{}, len(ids))
	out := make([]domain.NodeID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
