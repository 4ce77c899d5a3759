// Package simulation drives a flow's valves closed and restores them afterwards.
package simulation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CerneaMihnea/smart-valve-control/internal/domain"
	"github.com/CerneaMihnea/smart-valve-control/internal/events"
	"github.com/CerneaMihnea/smart-valve-control/internal/flow"
	"github.com/CerneaMihnea/smart-valve-control/internal/metrics"
	"github.com/CerneaMihnea/smart-valve-control/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	Idle     State = "idle"
	Starting State = "starting"
	Running  State = "running"
	Stopping State = "stopping"
)

const (
	PhaseActivate = "activate"
	PhaseRestore  = "restore"
)

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("no simulation running")
	// ErrStopped start was interrupted by stop; restore has been issued.
	ErrStopped = errors.New("simulation stopped while starting")
)

// Backend status reads and valve commands
type Backend interface {
	GetStatus(ctx context.Context, deviceID string) (domain.DeviceStatus, error)
	SetCommand(ctx context.Context, deviceID, command string) error
}

// Snapshot read-only view of the session
type Snapshot struct {
	State          State             `json:"state"`
	RunID          string            `json:"run_id,omitempty"`
	Flow           string            `json:"flow,omitempty"`
	Valves         []string          `json:"valves,omitempty"`
	RestoreTokens  map[string]string `json:"restore_tokens,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	FailedCommands int               `json:"failed_commands"`
}

// StopResult command log of a finished run
type StopResult struct {
	RunID    string                     `json:"run_id"`
	Flow     string                     `json:"flow"`
	Commands []repository.CommandRecord `json:"commands"`
	Failed   int                        `json:"failed_commands"`
}

type session struct {
	runID     string
	flow      string
	valves    []string
	tokens    map[string]string
	commands  []repository.CommandRecord
	failed    int
	startedAt time.Time
}

// Sequencer single process-wide simulation session.
// Idle -> Starting -> Running -> Stopping -> Idle; concurrent Start is rejected.
type Sequencer struct {
	backend Backend
	runs    repository.SimulationRuns
	events  events.Publisher
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	mu            sync.Mutex
	state         State
	sess          *session
	cancelStart   context.CancelFunc
	startDone     chan struct{}
	stopRequested bool
}

func NewSequencer(backend Backend, runs repository.SimulationRuns, pub events.Publisher, m *metrics.Collector, logger *zap.Logger) *Sequencer {
	if runs == nil {
		runs = repository.NewMemorySimulationRuns()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Sequencer{
		backend: backend,
		runs:    runs,
		events:  pub,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		state:   Idle,
	}
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Sequencer) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state}
	if s.sess == nil {
		return snap
	}
	started := s.sess.startedAt
	snap.RunID = s.sess.runID
	snap.Flow = s.sess.flow
	snap.Valves = append([]string(nil), s.sess.valves...)
	snap.StartedAt = &started
	snap.FailedCommands = s.sess.failed
	snap.RestoreTokens = make(map[string]string, len(s.sess.tokens))
	for k, v := range s.sess.tokens {
		snap.RestoreTokens[k] = v
	}
	return snap
}

// Start captures every valve's openness as its restore token, then closes the valves one
// by one in flow order. A failed status read leaves the valve without a token; a failed
// command is logged and the sequence continues.
func (s *Sequencer) Start(ctx context.Context, f flow.ResolvedFlow) (Snapshot, error) {
	valves := f.DeviceIDs()
	if len(valves) == 0 {
		return Snapshot{}, domain.NewValidationError("flow has no valves")
	}

	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("Simulation start rejected", zap.String("flow", f.Name), zap.String("state", string(state)))
		return Snapshot{}, ErrAlreadyRunning
	}
	// 请求上下文结束不影响已开始的序列，只有 Stop 能中断
	base := context.WithoutCancel(ctx)
	startCtx, cancel := context.WithCancel(base)
	sess := &session{
		runID:     s.newID(),
		flow:      f.Name,
		valves:    valves,
		tokens:    map[string]string{},
		startedAt: s.now(),
	}
	done := make(chan struct{})
	s.state = Starting
	s.sess = sess
	s.cancelStart = cancel
	s.startDone = done
	s.stopRequested = false
	s.mu.Unlock()

	defer close(done)
	defer cancel()

	s.metrics.IncSimulationRuns()
	s.metrics.SetSimulationActive(true)
	if err := s.runs.RecordStart(base, repository.SimulationRun{
		RunID:     sess.runID,
		Flow:      sess.flow,
		Valves:    sess.valves,
		StartedAt: sess.startedAt,
	}); err != nil {
		s.logger.Warn("Record simulation start failed", zap.String("run_id", sess.runID), zap.Error(err))
	}

	s.logger.Info("Simulation starting",
		zap.String("run_id", sess.runID),
		zap.String("flow", sess.flow),
		zap.Strings("valves", valves),
	)

	// status reads always complete so a stop during start restores real values
	for _, v := range valves {
		token, ok := s.captureToken(base, v)
		if !ok {
			continue
		}
		s.mu.Lock()
		sess.tokens[v] = token
		s.mu.Unlock()
	}

	for _, v := range valves {
		if startCtx.Err() != nil {
			break
		}
		s.issue(base, sess, v, domain.CloseCommand, PhaseActivate)
	}

	s.mu.Lock()
	if startCtx.Err() != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger.Info("Simulation start interrupted by stop", zap.String("run_id", sess.runID))
		return snap, ErrStopped
	}
	s.state = Running
	s.cancelStart = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(base, events.SimulationStarted, sess, snap.FailedCommands)
	return snap, nil
}

// Stop restores every valve of the session, in flow order: the captured token when
// present, else percent_100. Called while Starting it cancels the remaining activate
// commands and waits for Start to return first.
func (s *Sequencer) Stop(ctx context.Context) (StopResult, error) {
	base := context.WithoutCancel(ctx)

	s.mu.Lock()
	switch s.state {
	case Idle, Stopping:
		s.mu.Unlock()
		return StopResult{}, ErrNotRunning
	case Starting:
		if s.stopRequested {
			s.mu.Unlock()
			return StopResult{}, ErrNotRunning
		}
		s.stopRequested = true
		cancel, done := s.cancelStart, s.startDone
		s.mu.Unlock()
		cancel()
		<-done
		s.mu.Lock()
	case Running:
		s.stopRequested = true
	}
	s.state = Stopping
	sess := s.sess
	tokens := make(map[string]string, len(sess.tokens))
	for k, v := range sess.tokens {
		tokens[k] = v
	}
	s.mu.Unlock()

	for _, v := range sess.valves {
		cmd, ok := tokens[v]
		if !ok {
			cmd = domain.DefaultRestoreCommand
		}
		s.issue(base, sess, v, cmd, PhaseRestore)
	}

	s.mu.Lock()
	result := StopResult{
		RunID:    sess.runID,
		Flow:     sess.flow,
		Commands: append([]repository.CommandRecord(nil), sess.commands...),
		Failed:   sess.failed,
	}
	s.mu.Unlock()

	if err := s.runs.RecordStop(base, sess.runID, s.now(), result.Commands); err != nil {
		s.logger.Warn("Record simulation stop failed", zap.String("run_id", sess.runID), zap.Error(err))
	}
	s.publish(base, events.SimulationStopped, sess, result.Failed)
	s.metrics.SetSimulationActive(false)

	s.mu.Lock()
	s.state = Idle
	s.sess = nil
	s.cancelStart = nil
	s.startDone = nil
	s.stopRequested = false
	s.mu.Unlock()

	s.logger.Info("Simulation stopped",
		zap.String("run_id", result.RunID),
		zap.String("flow", result.Flow),
		zap.Int("failed_commands", result.Failed),
	)
	return result, nil
}

// Runs run history, newest first.
func (s *Sequencer) Runs(ctx context.Context, limit int) ([]repository.SimulationRun, error) {
	return s.runs.List(ctx, limit)
}

func (s *Sequencer) captureToken(ctx context.Context, deviceID string) (string, bool) {
	st, err := s.backend.GetStatus(ctx, deviceID)
	if err != nil {
		s.logger.Warn("Status read failed, valve will fail open on stop",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return "", false
	}
	if st.OpenPercent == nil {
		return "", false
	}
	return domain.PercentCommand(*st.OpenPercent), true
}

func (s *Sequencer) issue(ctx context.Context, sess *session, deviceID, command, phase string) {
	err := s.backend.SetCommand(ctx, deviceID, command)
	s.metrics.ObserveCommand(phase, err)

	rec := repository.CommandRecord{DeviceID: deviceID, Command: command, Phase: phase, At: s.now()}
	if err != nil {
		rec.Error = err.Error()
		s.logger.Error("Valve command failed",
			zap.String("run_id", sess.runID),
			zap.String("device_id", deviceID),
			zap.String("command", command),
			zap.String("phase", phase),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	sess.commands = append(sess.commands, rec)
	if err != nil {
		sess.failed++
	}
	s.mu.Unlock()
}

func (s *Sequencer) publish(ctx context.Context, kind events.Kind, sess *session, failed int) {
	e := events.Event{
		Kind:   kind,
		RunID:  sess.runID,
		Flow:   sess.flow,
		Valves: sess.valves,
		Failed: failed,
		At:     s.now(),
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("Simulation event not published", zap.String("run_id", sess.runID), zap.Error(err))
	}
}
