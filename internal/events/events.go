// Package events publishes simulation lifecycle events.
package events

import (
	"context"
	"time"
)

type Kind string

const (
	SimulationStarted Kind = "simulation.started"
	SimulationStopped Kind = "simulation.stopped"
)

// Event one simulation lifecycle transition
type Event struct {
	Kind   Kind      `json:"kind"`
	RunID  string    `json:"run_id"`
	Flow   string    `json:"flow"`
	Valves []string  `json:"valves"`
	Failed int       `json:"failed_commands"`
	At     time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Nop drops every event (MQTT disabled).
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}
