// Package performance aggregates per-operator inspection activity over a
// rolling window and classifies each operator.
package performance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/maintrack/internal/database"
)

var ErrNotFound = errors.New("operator performance not found")

// Status is an operator's performance classification.
type Status string

const (
	StatusActive   Status = "active"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusInactive Status = "inactive"
)

// Snapshot is one operator's metrics for a window.
type Snapshot struct {
	OperatorID     string     `json:"operator_id"`
	WindowDays     int        `json:"window_days"`
	Assigned       int        `json:"assigned"`
	Completed      int        `json:"completed"`
	Expired        int        `json:"expired"`
	Results        int        `json:"results"`
	Passed         int        `json:"passed"`
	CompletionRate float64    `json:"completion_rate"`
	PassRate       float64    `json:"pass_rate"`
	PenaltyPoints  int        `json:"penalty_points"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	Status         Status     `json:"status"`
	ComputedAt     time.Time  `json:"computed_at"`
}

// finalize derives the rates from the counts.
func (s *Snapshot) finalize() {
	s.CompletionRate = 1
	if closed := s.Completed + s.Expired; closed > 0 {
		s.CompletionRate = float64(s.Completed) / float64(closed)
	}
	s.PassRate = 1
	if s.Results > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Results)
	}
}

func (s *Snapshot) touch(ts sql.NullString) error {
	t, err := database.ParseNullTime(ts)
	if err != nil {
		return err
	}
	if t != nil && (s.LastActivityAt == nil || t.After(*s.LastActivityAt)) {
		s.LastActivityAt = t
	}
	return nil
}

type Store struct {
	q database.Querier
}

func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

func (s *Store) WithTx(tx *database.Tx) *Store {
	return &Store{q: tx}
}

// Collect gathers the raw counts of every operator active in [from, to] and
// of every operator with a stored snapshot.
func (s *Store) Collect(ctx context.Context, from, to time.Time) (map[string]*Snapshot, error) {
	snaps := make(map[string]*Snapshot)
	get := func(id string) *Snapshot {
		snap, ok := snaps[id]
		if !ok {
			snap = &Snapshot{OperatorID: id}
			snaps[id] = snap
		}
		return snap
	}

	lo, hi := database.FormatTime(from), database.FormatTime(to)

	known, err := s.q.QueryContext(ctx, `SELECT operator_id FROM operator_performance`)
	if err != nil {
		return nil, fmt.Errorf("querying known operators: %w", err)
	}
	err = eachRow(known, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		get(id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading known operators: %w", err)
	}

	assigned, err := s.q.QueryContext(ctx, `
		SELECT assigned_to, COUNT(*)
		FROM inspections
		WHERE is_template = 0 AND assigned_to != '' AND created_at >= ? AND created_at <= ?
		GROUP BY assigned_to
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	err = eachRow(assigned, func(rows *sql.Rows) error {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		get(id).Assigned = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading assignments: %w", err)
	}

	completed, err := s.q.QueryContext(ctx, `
		SELECT completed_by, COUNT(*), MAX(completed_at)
		FROM inspections
		WHERE is_template = 0 AND status = 'completed' AND completed_by != ''
		  AND completed_at >= ? AND completed_at <= ?
		GROUP BY completed_by
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("querying completions: %w", err)
	}
	err = eachRow(completed, func(rows *sql.Rows) error {
		var id string
		var n int
		var last sql.NullString
		if err := rows.Scan(&id, &n, &last); err != nil {
			return err
		}
		snap := get(id)
		snap.Completed = n
		return snap.touch(last)
	})
	if err != nil {
		return nil, fmt.Errorf("reading completions: %w", err)
	}

	expired, err := s.q.QueryContext(ctx, `
		SELECT assigned_to, COUNT(*), COALESCE(SUM(performance_penalty), 0)
		FROM inspections
		WHERE is_template = 0 AND status = 'expired' AND assigned_to != ''
		  AND expired_at >= ? AND expired_at <= ?
		GROUP BY assigned_to
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("querying expirations: %w", err)
	}
	err = eachRow(expired, func(rows *sql.Rows) error {
		var id string
		var n, penalty int
		if err := rows.Scan(&id, &n, &penalty); err != nil {
			return err
		}
		snap := get(id)
		snap.Expired = n
		snap.PenaltyPoints = penalty
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading expirations: %w", err)
	}

	results, err := s.q.QueryContext(ctx, `
		SELECT recorded_by, COUNT(*), COALESCE(SUM(passed), 0), MAX(recorded_at)
		FROM results
		WHERE recorded_by != '' AND recorded_at >= ? AND recorded_at <= ?
		GROUP BY recorded_by
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	err = eachRow(results, func(rows *sql.Rows) error {
		var id string
		var n, passed int
		var last sql.NullString
		if err := rows.Scan(&id, &n, &passed, &last); err != nil {
			return err
		}
		snap := get(id)
		snap.Results = n
		snap.Passed = passed
		return snap.touch(last)
	})
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}

	for _, snap := range snaps {
		snap.finalize()
	}

	return snaps, nil
}

func eachRow(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Upsert stores snap, replacing the operator's previous snapshot.
func (s *Store) Upsert(ctx context.Context, snap *Snapshot) error {
	query := `
		INSERT INTO operator_performance (operator_id, window_days, assigned_count, completed_count,
			expired_count, results_count, passed_count, completion_rate, pass_rate, penalty_points,
			last_activity_at, status, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(operator_id) DO UPDATE SET
			window_days = excluded.window_days,
			assigned_count = excluded.assigned_count,
			completed_count = excluded.completed_count,
			expired_count = excluded.expired_count,
			results_count = excluded.results_count,
			passed_count = excluded.passed_count,
			completion_rate = excluded.completion_rate,
			pass_rate = excluded.pass_rate,
			penalty_points = excluded.penalty_points,
			last_activity_at = COALESCE(excluded.last_activity_at, operator_performance.last_activity_at),
			status = excluded.status,
			computed_at = excluded.computed_at
	`

	_, err := s.q.ExecContext(ctx, query,
		snap.OperatorID,
		snap.WindowDays,
		snap.Assigned,
		snap.Completed,
		snap.Expired,
		snap.Results,
		snap.Passed,
		snap.CompletionRate,
		snap.PassRate,
		snap.PenaltyPoints,
		database.NullTime(snap.LastActivityAt),
		string(snap.Status),
		database.FormatTime(snap.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("saving operator performance: %w", database.ClassifyError(err))
	}

	return nil
}

const snapshotColumns = `operator_id, window_days, assigned_count, completed_count, expired_count,
	results_count, passed_count, completion_rate, pass_rate, penalty_points, last_activity_at,
	status, computed_at`

// Get returns the stored snapshot of one operator.
func (s *Store) Get(ctx context.Context, operatorID string) (*Snapshot, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM operator_performance WHERE operator_id = ?`, operatorID)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting operator performance: %w", err)
	}
	return snap, nil
}

// List returns stored snapshots, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status) ([]*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM operator_performance`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY operator_id ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying operator performance: %w", err)
	}

	var snaps []*Snapshot
	err = eachRow(rows, func(rows *sql.Rows) error {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return err
		}
		snaps = append(snaps, snap)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading operator performance: %w", err)
	}

	return snaps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var snap Snapshot
	var status, computedAt string
	var lastActivity sql.NullString

	err := row.Scan(
		&snap.OperatorID,
		&snap.WindowDays,
		&snap.Assigned,
		&snap.Completed,
		&snap.Expired,
		&snap.Results,
		&snap.Passed,
		&snap.CompletionRate,
		&snap.PassRate,
		&snap.PenaltyPoints,
		&lastActivity,
		&status,
		&computedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.Status = Status(status)
	if snap.LastActivityAt, err = database.ParseNullTime(lastActivity); err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	if snap.ComputedAt, err = database.ParseTime(computedAt); err != nil {
		return nil, fmt.Errorf("parsing computed_at: %w", err)
	}

	return &snap, nil
}
