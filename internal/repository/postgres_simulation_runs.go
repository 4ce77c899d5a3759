package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const createSimulationRunsTable = `
	CREATE TABLE IF NOT EXISTS simulation_runs (
		run_id     UUID PRIMARY KEY,
		flow_name  TEXT NOT NULL,
		valves     TEXT[] NOT NULL DEFAULT '{}',
		commands   JSONB NOT NULL DEFAULT '[]',
		started_at TIMESTAMPTZ NOT NULL,
		stopped_at TIMESTAMPTZ
	)`

// PostgresSimulationRuns simulation_runs 表
type PostgresSimulationRuns struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresSimulationRuns(db *sql.DB, logger *zap.Logger) *PostgresSimulationRuns {
	return &PostgresSimulationRuns{db: db, logger: logger}
}

// EnsureSchema creates simulation_runs if missing.
func (r *PostgresSimulationRuns) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSimulationRunsTable); err != nil {
		return fmt.Errorf("create simulation_runs: %w", err)
	}
	return nil
}

func (r *PostgresSimulationRuns) RecordStart(ctx context.Context, run SimulationRun) error {
	commands, err := marshalCommands(run.Commands)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO simulation_runs (run_id, flow_name, valves, commands, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, run.RunID, run.Flow, pq.Array(run.Valves), commands, run.StartedAt); err != nil {
		r.logger.Error("Failed to insert simulation run", zap.String("run_id", run.RunID), zap.Error(err))
		return fmt.Errorf("insert simulation run: %w", err)
	}
	return nil
}

func (r *PostgresSimulationRuns) RecordStop(ctx context.Context, runID string, stoppedAt time.Time, commands []CommandRecord) error {
	payload, err := marshalCommands(commands)
	if err != nil {
		return err
	}
	query := `
		UPDATE simulation_runs
		SET stopped_at = $2, commands = $3
		WHERE run_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, runID, stoppedAt, payload)
	if err != nil {
		r.logger.Error("Failed to update simulation run", zap.String("run_id", runID), zap.Error(err))
		return fmt.Errorf("update simulation run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update simulation run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *PostgresSimulationRuns) List(ctx context.Context, limit int) ([]SimulationRun, error) {
	query := `
		SELECT run_id, flow_name, valves, commands, started_at, stopped_at
		FROM simulation_runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query simulation runs: %w", err)
	}
	defer rows.Close()

	runs := []SimulationRun{}
	for rows.Next() {
		var (
			run       SimulationRun
			commands  []byte
			stoppedAt sql.NullTime
		)
		if err := rows.Scan(&run.RunID, &run.Flow, pq.Array(&run.Valves), &commands, &run.StartedAt, &stoppedAt); err != nil {
			return nil, fmt.Errorf("scan simulation run: %w", err)
		}
		if len(commands) > 0 {
			if err := json.Unmarshal(commands, &run.Commands); err != nil {
				r.logger.Warn("Invalid commands payload", zap.String("run_id", run.RunID), zap.Error(err))
			}
		}
		if stoppedAt.Valid {
			t := stoppedAt.Time
			run.StoppedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulation runs: %w", err)
	}
	return runs, nil
}

func marshalCommands(commands []CommandRecord) ([]byte, error) {
	if commands == nil {
		commands = []CommandRecord{}
	}
	b, err := json.Marshal(commands)
	if err != nil {
		return nil, fmt.Errorf("marshal commands: %w", err)
	}
	return b, nil
}
