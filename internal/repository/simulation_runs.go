package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrRunNotFound stop recorded for an unknown run id
var ErrRunNotFound = errors.New("simulation run not found")

// CommandRecord one valve command issued during a run
type CommandRecord struct {
	DeviceID string    `json:"device_id"`
	Command  string    `json:"command"`
	Phase    string    `json:"phase"` // activate | restore
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// SimulationRun history entry of one start/stop cycle
type SimulationRun struct {
	RunID     string          `json:"run_id"`
	Flow      string          `json:"flow"`
	Valves    []string        `json:"valves"`
	Commands  []CommandRecord `json:"commands"`
	StartedAt time.Time       `json:"started_at"`
	StoppedAt *time.Time      `json:"stopped_at,omitempty"`
}

// SimulationRuns run history store
type SimulationRuns interface {
	RecordStart(ctx context.Context, run SimulationRun) error
	// RecordStop closes the run and replaces its command log.
	RecordStop(ctx context.Context, runID string, stoppedAt time.Time, commands []CommandRecord) error
	// List newest first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]SimulationRun, error)
}

// MemorySimulationRuns used when DB_ENABLED=false
type MemorySimulationRuns struct {
	mu   sync.RWMutex
	runs []SimulationRun
}

func NewMemorySimulationRuns() *MemorySimulationRuns {
	return &MemorySimulationRuns{}
}

func (m *MemorySimulationRuns) RecordStart(_ context.Context, run SimulationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Valves = append([]string(nil), run.Valves...)
	run.Commands = append([]CommandRecord(nil), run.Commands...)
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemorySimulationRuns) RecordStop(_ context.Context, runID string, stoppedAt time.Time, commands []CommandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].RunID != runID {
			continue
		}
		at := stoppedAt
		m.runs[i].StoppedAt = &at
		m.runs[i].Commands = append([]CommandRecord(nil), commands...)
		return nil
	}
	return ErrRunNotFound
}

func (m *MemorySimulationRuns) List(_ context.Context, limit int) ([]SimulationRun, error) {
	m.mu.RLock()
	out := make([]SimulationRun, len(m.runs))
	copy(out, m.runs)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
