package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/btmgen/internal/types"
)

// DefaultRunLimit caps ListRuns when no positive limit is given.
const DefaultRunLimit = 20

// RunStore persists generation runs and their output files.
type RunStore struct {
	q *Queries
}

// NewRunStore loads the named queries against an already migrated database.
func NewRunStore(db *sqlx.DB) (*RunStore, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &RunStore{q: q}, nil
}

// runRow mirrors the runs table.
type runRow struct {
	RunID        string         `db:"run_id"`
	StartedAt    string         `db:"started_at"`
	FinishedAt   sql.NullString `db:"finished_at"`
	Status       string         `db:"status"`
	SrcDirs      string         `db:"src_dirs"`
	OutputDir    string         `db:"output_dir"`
	Shards       int            `db:"shards"`
	FilesScanned int            `db:"files_scanned"`
	FilesSkipped int            `db:"files_skipped"`
	Events       int            `db:"events"`
	Rules        int            `db:"rules"`
	Error        string         `db:"error"`
}

type runFileRow struct {
	RunID    string `db:"run_id"`
	Shard    int    `db:"shard"`
	Rotation int    `db:"rotation"`
	Path     string `db:"path"`
	Bytes    int64  `db:"bytes"`
}

// CreateRun inserts run in the running state.
func (s *RunStore) CreateRun(ctx context.Context, run *types.Run) error {
	dirs, err := json.Marshal(run.SrcDirs)
	if err != nil {
		return fmt.Errorf("failed to encode source dirs: %w", err)
	}
	status := run.Status
	if status == "" {
		status = types.RunRunning
	}
	_, err = s.q.Exec(ctx, "create-run",
		string(run.ID),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		string(status),
		string(dirs),
		run.OutputDir,
		run.Shards,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final status and counters of run.
func (s *RunStore) FinishRun(ctx context.Context, run *types.Run) error {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.q.Exec(ctx, "finish-run",
		finished.UTC().Format(time.RFC3339Nano),
		string(run.Status),
		run.FilesScanned,
		run.FilesSkipped,
		run.Events,
		run.Rules,
		run.Error,
		string(run.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, run.ID)
	}
	return nil
}

// AddRunFile records one output file of a run.
func (s *RunStore) AddRunFile(ctx context.Context, f types.RunFile) error {
	_, err := s.q.Exec(ctx, "add-run-file", string(f.RunID), f.Shard, f.Rotation, f.Path, f.Bytes)
	if err != nil {
		return fmt.Errorf("failed to record file %s: %w", f.Path, err)
	}
	return nil
}

// GetRun returns one run or types.ErrRunNotFound.
func (s *RunStore) GetRun(ctx context.Context, id types.RunID) (*types.Run, error) {
	var row runRow
	if err := s.q.Get(ctx, "get-run", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return row.toRun()
}

// ListRuns returns the most recent runs first. UUIDv7 IDs sort by start time.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	var rows []runRow
	if err := s.q.Select(ctx, "list-runs", &rows, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]types.Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// ListRunFiles returns the files of one run ordered by shard and rotation.
func (s *RunStore) ListRunFiles(ctx context.Context, id types.RunID) ([]types.RunFile, error) {
	var rows []runFileRow
	if err := s.q.Select(ctx, "list-run-files", &rows, string(id)); err != nil {
		return nil, fmt.Errorf("failed to list files of run %s: %w", id, err)
	}
	files := make([]types.RunFile, len(rows))
	for i, r := range rows {
		files[i] = types.RunFile{RunID: types.RunID(r.RunID), Shard: r.Shard, Rotation: r.Rotation, Path: r.Path, Bytes: r.Bytes}
	}
	return files, nil
}

func (r runRow) toRun() (*types.Run, error) {
	started, err := time.Parse(time.RFC3339Nano, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at for run %s: %w", r.RunID, err)
	}
	run := &types.Run{
		ID:           types.RunID(r.RunID),
		StartedAt:    started,
		Status:       types.RunStatus(r.Status),
		OutputDir:    r.OutputDir,
		Shards:       r.Shards,
		FilesScanned: r.FilesScanned,
		FilesSkipped: r.FilesSkipped,
		Events:       r.Events,
		Rules:        r.Rules,
		Error:        r.Error,
	}
	if r.FinishedAt.Valid {
		finished, err := time.Parse(time.RFC3339Nano, r.FinishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid finished_at for run %s: %w", r.RunID, err)
		}
		run.FinishedAt = finished
	}
	if err := json.Unmarshal([]byte(r.SrcDirs), &run.SrcDirs); err != nil {
		return nil, fmt.Errorf("invalid src_dirs for run %s: %w", r.RunID, err)
	}
	return run, nil
}
