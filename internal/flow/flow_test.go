package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/graph"
)

type fakeSaver struct {
	saved []domain.Flow
	err   error
}

func (f *fakeSaver) SaveFlow(_ context.Context, fl domain.Flow) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, fl)
	return nil
}

// V1(1) -> V2(2), V1 -> V3(3), V2 -> V3, V3 -> V1, plus a duplicate V1 -> V2
func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	size := graph.Size{Width: 40, Height: 40}
	for _, name := range []string{"V1", "V2", "V3"} {
		_, err := g.AddNode(name, 0, 0, size, "")
		require.NoError(t, err)
	}
	require.NoError(t, g.Connect("1", "2"))
	require.NoError(t, g.Connect("1", "3"))
	require.NoError(t, g.Connect("2", "3"))
	require.NoError(t, g.Connect("3", "1"))
	require.NoError(t, g.Connect("1", "2"))
	return g
}

func TestDeriveEdges_SingleValveTakesOutgoingOnly(t *testing.T) {
	g := sampleGraph(t)

	edges := DeriveEdges(g, []domain.NodeID{"1"})

	assert.Equal(t, []domain.FlowEdge{{From: "1", To: "2"}, {From: "1", To: "3"}}, edges)
}

func TestDeriveEdges_MultiValveUsesSourceInSelection(t *testing.T) {
	g := sampleGraph(t)

	edges := DeriveEdges(g, []domain.NodeID{"2", "3"})

	assert.Equal(t, []domain.FlowEdge{{From: "2", To: "3"}, {From: "3", To: "1"}}, edges)
	assert.Equal(t, edges, DeriveEdges(g, []domain.NodeID{"2", "3"}), "derivation is idempotent")
}

func TestBuild_Validation(t *testing.T) {
	g := sampleGraph(t)

	_, err := Build(g, BuildRequest{})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, "no valve selected", err.Error())

	lonely := graph.New()
	_, _ = lonely.AddNode("V9", 0, 0, graph.Size{}, "")
	_, err = Build(lonely, BuildRequest{Valves: []domain.NodeID{"1"}})
	require.Error(t, err)
	assert.Equal(t, "no valid edges for this selection", err.Error())
}

func TestBuilder_Save_DefaultName(t *testing.T) {
	g := sampleGraph(t)
	saver := &fakeSaver{}
	b := NewBuilder(saver, zap.NewNop())

	f, err := b.Save(context.Background(), g, BuildRequest{Name: "  ", Color: "#0000ff", Valves: []domain.NodeID{"1", "1"}})
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultFlowName, f.Name)
	assert.Equal(t, []domain.NodeID{"1"}, f.Valves)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, f, saver.saved[0])

	_, err = b.Save(context.Background(), g, BuildRequest{Name: "again", Valves: []domain.NodeID{"1"}})
	require.NoError(t, err)
	assert.Len(t, saver.saved, 2, "flows over the same valves are not deduplicated")
}

func TestBuilder_Save_BackendFailure(t *testing.T) {
	saver := &fakeSaver{err: errors.New("boom")}
	b := NewBuilder(saver, zap.NewNop())

	_, err := b.Save(context.Background(), sampleGraph(t), BuildRequest{Valves: []domain.NodeID{"1"}})
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err))
}

func TestListCanonicalEdges_DedupAndSort(t *testing.T) {
	g := sampleGraph(t)

	edges := ListCanonicalEdges(g)

	assert.Equal(t, []CanonicalEdge{
		{FromID: "1", FromName: "V1", ToID: "2", ToName: "V2"},
		{FromID: "1", FromName: "V1", ToID: "3", ToName: "V3"},
		{FromID: "2", FromName: "V2", ToID: "3", ToName: "V3"},
		{FromID: "3", FromName: "V3", ToID: "1", ToName: "V1"},
	}, edges)
}

func TestResolve(t *testing.T) {
	flows := []domain.Flow{
		{Name: "first", Edges: []domain.FlowEdge{{From: "1", To: "2"}}},
		{Name: "second", Edges: []domain.FlowEdge{{From: "1", To: "2"}, {From: "2", To: "3"}}},
	}

	f, ok := Resolve(flows, "1", "2")
	require.True(t, ok)
	assert.Equal(t, "first", f.Name)

	again, ok := Resolve(flows, "1", "2")
	require.True(t, ok)
	assert.Equal(t, f, again)

	_, ok = Resolve(flows, "2", "1")
	assert.False(t, ok)

	f, ok = Resolve(flows, " 2", "3.0")
	require.True(t, ok)
	assert.Equal(t, "second", f.Name)

	assert.Len(t, ResolveAll(flows, "1", "2"), 2)
	assert.Empty(t, ResolveAll(nil, "1", "2"))
}

func TestDecorate_MapsDeviceNames(t *testing.T) {
	g := sampleGraph(t)
	f := domain.Flow{Name: "f", Valves: []domain.NodeID{"1", "7"}, Edges: []domain.FlowEdge{{From: "1", To: "7"}}}

	r := Decorate(f, g)

	assert.Equal(t, []string{"V1", "7"}, r.DeviceIDs())
	assert.Equal(t, CanonicalEdge{FromID: "1", FromName: "V1", ToID: "7", ToName: "7"}, r.Edges[0])
}

func TestHighlightFor_OnlyPresentElements(t *testing.T) {
	g := sampleGraph(t)
	f := domain.Flow{Name: "f", Color: "#f00", Valves: []domain.NodeID{"1", "8"},
		Edges: []domain.FlowEdge{{From: "1", To: "2"}, {From: "2", To: "1"}}}

	h := HighlightFor(f, g)

	assert.Equal(t, []domain.NodeID{"1"}, h.Nodes)
	assert.Equal(t, []domain.FlowEdge{{From: "1", To: "2"}}, h.Edges)
}
