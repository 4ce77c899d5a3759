package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
)

var testSize = Size{Width: 40, Height: 40}

const sampleExport = `{
  "drawflow": {
    "Home": {
      "data": {
        "1": {"id": 1, "name": "V1", "data": {}, "class": "V1", "html": "<b>V1</b>", "typenode": false,
              "inputs": {"input_1": {"connections": []}},
              "outputs": {"output_1": {"connections": [{"node": "2", "output": "input_1"}, {"node": "3", "output": "input_1"}]}},
              "pos_x": 10, "pos_y": 20},
        "2": {"id": 2, "name": "V2", "data": {}, "class": "V2", "html": "", "typenode": false,
              "inputs": {"input_1": {"connections": [{"node": "1", "input": "output_1"}]}},
              "outputs": {"output_1": {"connections": [{"node": "99", "output": "input_1"}]}},
              "pos_x": 100, "pos_y": 0},
        "3": {"id": "3", "name": "V3", "data": {}, "class": "V3", "html": "", "typenode": false,
              "inputs": {"input_1": {"connections": [{"node": 1, "input": "output_1"}]}},
              "outputs": {"output_1": {"connections": []}},
              "pos_x": 200, "pos_y": 50}
      }
    }
  }
}`

func decodeExport(t *testing.T, raw string) Export {
	t.Helper()
	var e Export
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func TestToInternal(t *testing.T) {
	t.Run("empty export returns empty graph", func(t *testing.T) {
		g := ToInternal(Export{}, testSize)
		assert.Equal(t, 0, g.Len())
		assert.Empty(t, g.Edges())
	})

	t.Run("nodes keep exported ids and geometry defaults", func(t *testing.T) {
		g := ToInternal(decodeExport(t, sampleExport), testSize)

		nodes := g.Nodes()
		require.Len(t, nodes, 3)
		assert.Equal(t, domain.NodeID("1"), nodes[0].ID)
		assert.Equal(t, "V1", nodes[0].Name)
		assert.Equal(t, 10.0, nodes[0].X)
		assert.Equal(t, 20.0, nodes[0].Y)
		assert.Equal(t, 40.0, nodes[0].Width)
		assert.Equal(t, domain.NodeID("3"), nodes[2].ID)
	})

	t.Run("dangling connections are dropped", func(t *testing.T) {
		g := ToInternal(decodeExport(t, sampleExport), testSize)

		edges := g.Edges()
		require.Len(t, edges, 2)
		assert.Equal(t, Edge{Source: "1", Target: "2", SourcePort: "output_1", TargetPort: "input_1"}, edges[0])
		assert.Equal(t, Edge{Source: "1", Target: "3", SourcePort: "output_1", TargetPort: "input_1"}, edges[1])
		assert.Empty(t, g.Outgoing("2"))
	})
}

func TestRoundTrip(t *testing.T) {
	g := ToInternal(decodeExport(t, sampleExport), testSize)

	raw, err := json.Marshal(FromInternal(g))
	require.NoError(t, err)

	back := ToInternal(decodeExport(t, string(raw)), Size{Width: 1, Height: 1})

	assert.Equal(t, g.Nodes(), back.Nodes())
	assert.ElementsMatch(t, g.Edges(), back.Edges())

	exp := FromInternal(back)
	in := exp.Drawflow[HomeModule].Data["3"].Inputs["input_1"].Connections
	require.Len(t, in, 1)
	assert.Equal(t, domain.NodeID("1"), in[0].Node)
	assert.Equal(t, "output_1", in[0].Input)
}

func TestGraphMutations(t *testing.T) {
	g := New()

	id1, err := g.AddNode("V1", 0, 0, testSize, "")
	require.NoError(t, err)
	id2, err := g.AddNode("V2", 100, 0, testSize, "")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeID("1"), id1)
	assert.Equal(t, domain.NodeID("2"), id2)

	_, err = g.AddNode("V1", 5, 5, testSize, "")
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, g.Connect(id1, id2))
	require.NoError(t, g.Connect(id1, id2))
	assert.Len(t, g.Outgoing(id1), 2, "duplicate edges are tolerated")
	assert.True(t, domain.IsValidation(g.Connect(id1, "42")))

	require.NoError(t, g.MoveNode(id2, 150, 30, 0, 0))
	n, ok := g.Node(id2)
	require.True(t, ok)
	assert.Equal(t, 150.0, n.X)
	assert.Equal(t, 40.0, n.Width)
	assert.True(t, domain.IsValidation(g.MoveNode("9", 0, 0, 0, 0)))

	assert.Equal(t, 2, g.Disconnect(id1, id2))
	require.NoError(t, g.Connect(id2, id1))
	assert.True(t, g.RemoveNode(id1))
	assert.Empty(t, g.Edges())
	assert.False(t, g.RemoveNode(id1))

	id3, err := g.AddNode("V3", 0, 0, testSize, "")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeID("3"), id3)
	assert.Equal(t, map[string]domain.NodeID{"V2": "2", "V3": "3"}, g.NameIndex())
}

func TestClone_IsIndependent(t *testing.T) {
	g := New()
	id, _ := g.AddNode("V1", 0, 0, testSize, "")
	c := g.Clone()
	require.NoError(t, c.MoveNode(id, 50, 50, 0, 0))

	n, _ := g.Node(id)
	assert.Equal(t, 0.0, n.X)
}

func TestNextMaintenance(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	yes, no := true, false

	cases := []struct {
		name string
		cfg  domain.DeviceConfig
		want string
	}{
		{"missing frequency", domain.DeviceConfig{MaintenanceTime: "12:00"}, "N/A"},
		{"disabled", domain.DeviceConfig{MaintenanceFrequency: "daily", MaintenanceTime: "12:00", MaintenanceEnabled: &no}, "Inactive"},
		{"daily from now", domain.DeviceConfig{MaintenanceFrequency: "daily", MaintenanceTime: "06:30", MaintenanceEnabled: &yes}, "11/03/2025 06:30"},
		{"weekly from last", domain.DeviceConfig{MaintenanceFrequency: "Weekly", MaintenanceTime: "12:00", LastMaintenance: "2025-03-01"}, "08/03/2025 12:00"},
		{"monthly from backend date", domain.DeviceConfig{MaintenanceFrequency: "monthly", MaintenanceTime: "07:05", LastMaintenanceDate: "2025-01-31"}, "03/03/2025 07:05"},
		{"unknown frequency", domain.DeviceConfig{MaintenanceFrequency: "hourly", MaintenanceTime: "12:00"}, "N/A"},
		{"bad date", domain.DeviceConfig{MaintenanceFrequency: "daily", MaintenanceTime: "12:00", LastMaintenance: "yesterday"}, "N/A"},
		{"bad clock", domain.DeviceConfig{MaintenanceFrequency: "daily", MaintenanceTime: "noon"}, "N/A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextMaintenance(tc.cfg, now))
		})
	}
}

func TestRefreshLabels(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	open := 40.0
	cfgs := domain.DeviceConfigs{
		"V1": {DeviceID: "V1", Status: &domain.DeviceStatus{OpenPercent: &open}, MaintenanceFrequency: "daily", MaintenanceTime: "12:00"},
	}
	g := New()
	id1, _ := g.AddNode("V1", 0, 0, testSize, "")
	id2, _ := g.AddNode("V2", 0, 0, testSize, "")

	RefreshLabels(g, cfgs, now)

	n1, _ := g.Node(id1)
	assert.Contains(t, n1.HTML, "Opening: 40% | Next maintenance: 11/03/2025 12:00")
	assert.Contains(t, n1.HTML, ">V1</div>")
	n2, _ := g.Node(id2)
	assert.Contains(t, n2.HTML, "Opening: 0% | Next maintenance: N/A")
}
