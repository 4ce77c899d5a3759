package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeID_AcceptsNumbersAndStrings(t *testing.T) {
	var e struct {
		From NodeID `json:"from"`
		To   NodeID `json:"to"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"from": 1, "to": "2"}`), &e))
	assert.Equal(t, NodeID("1"), e.From)
	assert.Equal(t, NodeID("2"), e.To)

	require.NoError(t, json.Unmarshal([]byte(`{"from": 3.0, "to": " 04 "}`), &e))
	assert.Equal(t, NodeID("3"), e.From)
	assert.Equal(t, NodeID("4"), e.To)

	out, err := json.Marshal(FlowEdge{From: "7", To: "8"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"7","to":"8"}`, string(out))
}

func TestDeviceConfigs_KeepsDeviceID(t *testing.T) {
	var cfgs DeviceConfigs
	raw := `{"V1":{"zone":"Garden","zone_color":"#00ff00","status":{"status_open_percent":40}},
	         "V2":{"zone":"","last_maintenance_date":"2025-01-01"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &cfgs))

	require.Len(t, cfgs, 2)
	assert.Equal(t, "V1", cfgs["V1"].DeviceID)
	assert.Equal(t, "Garden", cfgs["V1"].ZoneName())
	require.NotNil(t, cfgs["V1"].OpenPercent())
	assert.Equal(t, 40.0, *cfgs["V1"].OpenPercent())

	assert.Equal(t, NoZone, cfgs["V2"].ZoneName())
	assert.Equal(t, DefaultZoneColor, cfgs["V2"].Color())
	assert.Equal(t, "2025-01-01", cfgs["V2"].LastMaintenanceAt())
	assert.Nil(t, cfgs["V2"].OpenPercent())
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "percent_40", PercentCommand(40))
	assert.Equal(t, "percent_12.5", PercentCommand(12.5))

	p, ok := ParsePercent("percent_75")
	assert.True(t, ok)
	assert.Equal(t, 75.0, p)
	_, ok = ParsePercent("maintenance")
	assert.False(t, ok)

	assert.NoError(t, ValidateCommand("percent_0"))
	assert.NoError(t, ValidateCommand("percent_100"))
	assert.NoError(t, ValidateCommand("maintenance"))
	assert.True(t, IsValidation(ValidateCommand("percent_101")))
	assert.True(t, IsValidation(ValidateCommand("percent_x")))
	assert.True(t, IsValidation(ValidateCommand("")))
}

func TestFlow_HasEdge(t *testing.T) {
	f := Flow{Edges: []FlowEdge{{From: "1", To: "2"}}}
	assert.True(t, f.HasEdge("1", "2"))
	assert.False(t, f.HasEdge("2", "1"))
}
