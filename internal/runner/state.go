package runner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/maintrack/internal/database"
)

// JobRun is the persisted record of a job's most recent invocation.
type JobRun struct {
	Job          string          `json:"job"`
	Trigger      string          `json:"trigger"`
	LastRunAt    *time.Time      `json:"last_run_at,omitempty"`
	LastDuration time.Duration   `json:"last_duration_ms"`
	LastSummary  json.RawMessage `json:"last_summary"`
	LastError    string          `json:"last_error,omitempty"`
	RunCount     int             `json:"run_count"`
	FailureCount int             `json:"failure_count"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MarshalJSON reports the duration in milliseconds to match the column.
func (r JobRun) MarshalJSON() ([]byte, error) {
	type alias JobRun
	return json.Marshal(struct {
		alias
		LastDuration int64 `json:"last_duration_ms"`
	}{alias: alias(r), LastDuration: r.LastDuration.Milliseconds()})
}

type StateStore struct {
	db *database.DB
}

func NewStateStore(db *database.DB) *StateStore {
	return &StateStore{db: db}
}

// Record upserts the outcome of one run of job. A nil summary is stored as
// an empty object; runErr increments the failure counter.
func (s *StateStore) Record(ctx context.Context, job, trigger string, at time.Time, duration time.Duration, summary any, runErr error) error {
	raw := []byte("{}")
	if summary != nil {
		var err error
		if raw, err = json.Marshal(summary); err != nil {
			return fmt.Errorf("encoding job summary: %w", err)
		}
	}

	var lastError string
	failed := 0
	if runErr != nil {
		lastError = runErr.Error()
		failed = 1
	}

	query := `
		INSERT INTO job_runs (job, trigger_source, last_run_at, last_duration_ms, last_summary,
			last_error, run_count, failure_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(job) DO UPDATE SET
			trigger_source = excluded.trigger_source,
			last_run_at = excluded.last_run_at,
			last_duration_ms = excluded.last_duration_ms,
			last_summary = excluded.last_summary,
			last_error = excluded.last_error,
			run_count = job_runs.run_count + 1,
			failure_count = job_runs.failure_count + excluded.failure_count,
			updated_at = excluded.updated_at
	`

	ts := database.FormatTime(at)
	_, err := s.db.ExecContext(ctx, query,
		job,
		trigger,
		ts,
		duration.Milliseconds(),
		string(raw),
		lastError,
		failed,
		ts,
	)
	if err != nil {
		return fmt.Errorf("saving job run: %w", err)
	}

	return nil
}

// Get returns the record of job, or nil when it has never run.
func (s *StateStore) Get(ctx context.Context, job string) (*JobRun, error) {
	query := `SELECT ` + jobRunColumns + ` FROM job_runs WHERE job = ?`

	run, err := scanJobRun(s.db.QueryRowContext(ctx, query, job))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job run: %w", err)
	}

	return run, nil
}

// List returns every recorded job ordered by name.
func (s *StateStore) List(ctx context.Context) ([]*JobRun, error) {
	query := `SELECT ` + jobRunColumns + ` FROM job_runs ORDER BY job`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying job runs: %w", err)
	}
	defer rows.Close()

	var runs []*JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job runs: %w", err)
	}

	return runs, nil
}

const jobRunColumns = `job, trigger_source, last_run_at, last_duration_ms, last_summary,
	last_error, run_count, failure_count, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJobRun(row scanner) (*JobRun, error) {
	var run JobRun
	var lastRun sql.NullString
	var durationMS int64
	var summary, updatedAt string

	err := row.Scan(
		&run.Job,
		&run.Trigger,
		&lastRun,
		&durationMS,
		&summary,
		&run.LastError,
		&run.RunCount,
		&run.FailureCount,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.LastDuration = time.Duration(durationMS) * time.Millisecond
	run.LastSummary = json.RawMessage(summary)

	if run.LastRunAt, err = database.ParseNullTime(lastRun); err != nil {
		return nil, fmt.Errorf("parsing last_run_at: %w", err)
	}
	if run.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &run, nil
}
