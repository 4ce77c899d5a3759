package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresSimulationRuns) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresSimulationRuns(db, zap.NewNop())
	return db, mock, repo
}

func TestPostgresSimulationRuns_RecordStart(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	started := time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO simulation_runs`).
		WithArgs("run-1", "Back garden", sqlmock.AnyArg(), []byte(`[]`), started).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordStart(context.Background(), SimulationRun{
		RunID:     "run-1",
		Flow:      "Back garden",
		Valves:    []string{"V1", "V2"},
		StartedAt: started,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSimulationRuns_RecordStop_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE simulation_runs`).
		WithArgs("missing", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordStop(context.Background(), "missing", time.Now(), nil)

	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSimulationRuns_List(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	started := time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)
	stopped := started.Add(5 * time.Minute)
	rows := sqlmock.NewRows([]string{"run_id", "flow_name", "valves", "commands", "started_at", "stopped_at"}).
		AddRow("run-2", "f2", []byte(`{V3}`), []byte(`[]`), started.Add(time.Hour), nil).
		AddRow("run-1", "f1", []byte(`{V1,V2}`), []byte(`[{"device_id":"V1","command":"percent_0","phase":"activate","at":"2024-06-01T07:30:00Z"}]`), started, stopped)

	mock.ExpectQuery(`SELECT run_id, flow_name, valves`).
		WithArgs(10).
		WillReturnRows(rows)

	runs, err := repo.List(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Nil(t, runs[0].StoppedAt)
	assert.Equal(t, []string{"V1", "V2"}, runs[1].Valves)
	require.Len(t, runs[1].Commands, 1)
	assert.Equal(t, "percent_0", runs[1].Commands[0].Command)
	require.NotNil(t, runs[1].StoppedAt)
	assert.True(t, stopped.Equal(*runs[1].StoppedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSimulationRuns_QueryError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT run_id`).WillReturnError(errors.New("connection reset"))

	_, err := repo.List(context.Background(), 0)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemorySimulationRuns(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySimulationRuns()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordStart(ctx, SimulationRun{RunID: "a", Flow: "f", StartedAt: t0}))
	require.NoError(t, repo.RecordStart(ctx, SimulationRun{RunID: "b", Flow: "f", StartedAt: t0.Add(time.Minute)}))
	require.NoError(t, repo.RecordStop(ctx, "a", t0.Add(2*time.Minute), []CommandRecord{{DeviceID: "V1", Command: "percent_100", Phase: "restore"}}))
	assert.ErrorIs(t, repo.RecordStop(ctx, "zzz", t0, nil), ErrRunNotFound)

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].RunID)
	require.NotNil(t, runs[1].StoppedAt)
	assert.Len(t, runs[1].Commands, 1)

	runs, err = repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
