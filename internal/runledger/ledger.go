package runledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const runColumns = "id, name, fuel_type, work_dir, status, error, started_at, finished_at"

// BeginRun records a new running assembly attempt.
func (s *Store) BeginRun(ctx context.Context, name, fuelType, workDir string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Name:      name,
		FuelType:  fuelType,
		WorkDir:   workDir,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	err := s.execWithRetry(ctx,
		"INSERT INTO runs (id, name, fuel_type, work_dir, status, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		run.ID, run.Name, run.FuelType, run.WorkDir, string(run.Status),
		run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run terminal: failed with the error text when
// runErr is non-nil, completed otherwise.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error) error {
	status := RunCompleted
	var errText any
	if runErr != nil {
		status = RunFailed
		errText = runErr.Error()
	}
	err := s.execWithRetry(ctx,
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		string(status), errText, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun fetches one run by id, nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recent run for a working directory, nil
// when the directory has never been assembled.
func (s *Store) LatestRun(ctx context.Context, workDir string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM runs WHERE work_dir = ? ORDER BY started_at DESC, rowid DESC LIMIT 1",
		workDir)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// Runs lists runs for a working directory, newest first.
func (s *Store) Runs(ctx context.Context, workDir string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM runs WHERE work_dir = ? ORDER BY started_at DESC, rowid DESC LIMIT ?",
		workDir, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SeedPoints registers every grid point as pending before workers start.
func (s *Store) SeedPoints(ctx context.Context, runID string, originLibs []string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for idx, origin := range originLibs {
		if err := s.execWithRetry(ctx,
			"INSERT INTO points (run_id, idx, origin_lib, status, updated_at) VALUES (?, ?, ?, ?, ?)",
			runID, idx, origin, string(PointPending), now); err != nil {
			return fmt.Errorf("seed point %d: %w", idx, err)
		}
	}
	return nil
}

// MarkPointStage moves a point into a pipeline stage.
func (s *Store) MarkPointStage(ctx context.Context, runID string, idx int, stage string) error {
	err := s.execWithRetry(ctx,
		"UPDATE points SET status = ?, stage = ?, updated_at = ? WHERE run_id = ? AND idx = ?",
		string(PointRunning), stage, time.Now().UTC().Format(time.RFC3339Nano), runID, idx)
	if err != nil {
		return fmt.Errorf("mark point %d stage %s: %w", idx, stage, err)
	}
	return nil
}

// CompletePoint records the converted library for a finished point.
func (s *Store) CompletePoint(ctx context.Context, runID string, idx int, lib string) error {
	err := s.execWithRetry(ctx,
		"UPDATE points SET status = ?, stage = '', lib = ?, error = NULL, updated_at = ? WHERE run_id = ? AND idx = ?",
		string(PointCompleted), lib, time.Now().UTC().Format(time.RFC3339Nano), runID, idx)
	if err != nil {
		return fmt.Errorf("complete point %d: %w", idx, err)
	}
	return nil
}

// FailPoint records a terminal failure with the stage it happened in.
func (s *Store) FailPoint(ctx context.Context, runID string, idx int, stage string, cause error) error {
	var errText any
	if cause != nil {
		errText = cause.Error()
	}
	err := s.execWithRetry(ctx,
		"UPDATE points SET status = ?, stage = ?, error = ?, updated_at = ? WHERE run_id = ? AND idx = ?",
		string(PointFailed), stage, errText, time.Now().UTC().Format(time.RFC3339Nano), runID, idx)
	if err != nil {
		return fmt.Errorf("fail point %d: %w", idx, err)
	}
	return nil
}

// SkipPoint marks a point that never started because the run was
// cancelled first.
func (s *Store) SkipPoint(ctx context.Context, runID string, idx int) error {
	err := s.execWithRetry(ctx,
		"UPDATE points SET status = ?, updated_at = ? WHERE run_id = ? AND idx = ? AND status = ?",
		string(PointSkipped), time.Now().UTC().Format(time.RFC3339Nano), runID, idx, string(PointPending))
	if err != nil {
		return fmt.Errorf("skip point %d: %w", idx, err)
	}
	return nil
}

// PointsForRun lists a run's points ordered by grid index.
func (s *Store) PointsForRun(ctx context.Context, runID string) ([]*Point, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT run_id, idx, origin_lib, lib, status, stage, error, updated_at FROM points WHERE run_id = ? ORDER BY idx",
		runID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	defer rows.Close()

	var points []*Point
	for rows.Next() {
		point, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		status     string
		errText    sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Name, &run.FuelType, &run.WorkDir, &status, &errText, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.Error = errText.String
	run.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTimestamp(finishedAt.String)
	}
	return &run, nil
}

func scanPoint(row rowScanner) (*Point, error) {
	var (
		point     Point
		status    string
		errText   sql.NullString
		updatedAt string
	)
	if err := row.Scan(&point.RunID, &point.Index, &point.OriginLib, &point.Lib, &status, &point.Stage, &errText, &updatedAt); err != nil {
		return nil, err
	}
	point.Status = PointStatus(status)
	point.Error = errText.String
	point.UpdatedAt = parseTimestamp(updatedAt)
	return &point, nil
}

func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
