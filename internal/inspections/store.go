package inspections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/maintrack/internal/database"
)

var (
	ErrNotFound     = errors.New("inspection not found")
	ErrNotActive    = errors.New("inspection is not active")
	ErrTaskMismatch = errors.New("task does not belong to inspection")
)

const templateColumns = `id, name, description, status, frequency, recurrence_interval,
	start_date, end_date, schedule_next_due_date, schedule_last_created_at,
	expiry_hours, assigned_to, created_at, updated_at`

const instanceColumns = `id, name, description, parent_template_id, unique_constraint, status,
	assigned_to, completed_by, completed_at, expiry_date, is_expired, expired_at,
	performance_penalty, created_at, updated_at`

const taskColumns = `id, inspection_id, position, name, description, type, target,
	expected_value, min_value, max_value, created_at`

// Store reads and writes templates, instances, tasks and results. It runs on
// either the database handle or a transaction.
type Store struct {
	q database.Querier
}

func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// WithTx returns a Store whose statements run inside tx.
func (s *Store) WithTx(tx *database.Tx) *Store {
	return &Store{q: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

// CreateTemplate inserts a template and its tasks.
func (s *Store) CreateTemplate(ctx context.Context, t *Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = TemplateActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	query := `
		INSERT INTO inspections (id, is_template, name, description, status, frequency, recurrence_interval,
			start_date, end_date, schedule_next_due_date, schedule_last_created_at,
			expiry_hours, assigned_to, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Description,
		t.Status,
		string(t.Frequency),
		t.Interval,
		database.NullTime(t.StartDate),
		database.NullTime(t.EndDate),
		database.NullTime(t.NextDueDate),
		database.NullTime(t.LastCreatedAt),
		t.ExpiryHours,
		t.AssignedTo,
		database.FormatTime(t.CreatedAt),
		database.FormatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting template: %w", database.ClassifyError(err))
	}

	if err := s.insertTasks(ctx, t.ID, t.Tasks, t.CreatedAt); err != nil {
		return err
	}

	return nil
}

// UpdateTemplate rewrites a template's definition and schedule. Tasks are not
// touched; see ReplaceTasks.
func (s *Store) UpdateTemplate(ctx context.Context, t *Template, now time.Time) error {
	t.UpdatedAt = now

	query := `
		UPDATE inspections
		SET name = ?, description = ?, status = ?, frequency = ?, recurrence_interval = ?,
			start_date = ?, end_date = ?, schedule_next_due_date = ?,
			expiry_hours = ?, assigned_to = ?, updated_at = ?
		WHERE id = ? AND is_template = 1
	`

	res, err := s.q.ExecContext(ctx, query,
		t.Name,
		t.Description,
		t.Status,
		string(t.Frequency),
		t.Interval,
		database.NullTime(t.StartDate),
		database.NullTime(t.EndDate),
		database.NullTime(t.NextDueDate),
		t.ExpiryHours,
		t.AssignedTo,
		database.FormatTime(now),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating template: %w", database.ClassifyError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating template: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// GetTemplate returns a template without its tasks.
func (s *Store) GetTemplate(ctx context.Context, id string) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM inspections WHERE id = ? AND is_template = 1`

	t, err := scanTemplate(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting template: %w", err)
	}

	return t, nil
}

// ListTemplates returns every template ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM inspections WHERE is_template = 1 ORDER BY name ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	defer rows.Close()

	return scanTemplates(rows)
}

// ListDueTemplates returns active templates whose next due date lies in
// (after, until], earliest first.
func (s *Store) ListDueTemplates(ctx context.Context, after, until time.Time, limit int) ([]*Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM inspections
		WHERE is_template = 1
		  AND status = ?
		  AND schedule_next_due_date IS NOT NULL
		  AND schedule_next_due_date > ?
		  AND schedule_next_due_date <= ?
		ORDER BY schedule_next_due_date ASC, id ASC
		LIMIT ?
	`

	rows, err := s.q.QueryContext(ctx, query,
		TemplateActive,
		database.FormatTime(after),
		database.FormatTime(until),
		sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying due templates: %w", err)
	}
	defer rows.Close()

	return scanTemplates(rows)
}

// ListStaleTemplates returns active templates whose next due date is at or
// before now, i.e. occurrences the generator can no longer pre-create.
func (s *Store) ListStaleTemplates(ctx context.Context, now time.Time, limit int) ([]*Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM inspections
		WHERE is_template = 1
		  AND status = ?
		  AND schedule_next_due_date IS NOT NULL
		  AND schedule_next_due_date <= ?
		ORDER BY schedule_next_due_date ASC, id ASC
		LIMIT ?
	`

	rows, err := s.q.QueryContext(ctx, query, TemplateActive, database.FormatTime(now), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying stale templates: %w", err)
	}
	defer rows.Close()

	return scanTemplates(rows)
}

// UpdateSchedule stores a template's next due date. A nil lastCreated keeps
// the existing schedule_last_created_at.
func (s *Store) UpdateSchedule(ctx context.Context, templateID string, next, lastCreated *time.Time, now time.Time) error {
	query := `
		UPDATE inspections
		SET schedule_next_due_date = ?,
			schedule_last_created_at = COALESCE(?, schedule_last_created_at),
			updated_at = ?
		WHERE id = ? AND is_template = 1
	`

	res, err := s.q.ExecContext(ctx, query,
		database.NullTime(next),
		database.NullTime(lastCreated),
		database.FormatTime(now),
		templateID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", database.ClassifyError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// CreateInstance inserts an instance. A duplicate unique_constraint surfaces
// as a *database.ConstraintError.
func (s *Store) CreateInstance(ctx context.Context, inst *Instance) error {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.Status == "" {
		inst.Status = StatusActive
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = inst.CreatedAt
	}

	query := `
		INSERT INTO inspections (id, is_template, name, description, status, parent_template_id,
			unique_constraint, assigned_to, expiry_date, created_at, updated_at)
		VALUES (?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		inst.ID,
		inst.Name,
		inst.Description,
		string(inst.Status),
		inst.ParentTemplateID,
		inst.UniqueConstraint,
		inst.AssignedTo,
		database.NullTime(inst.ExpiryDate),
		database.FormatTime(inst.CreatedAt),
		database.FormatTime(inst.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting instance: %w", database.ClassifyError(err))
	}

	return nil
}

// GetInstance returns an instance by id.
func (s *Store) GetInstance(ctx context.Context, id string) (*Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM inspections WHERE id = ? AND is_template = 0`

	inst, err := scanInstance(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting instance: %w", err)
	}

	return inst, nil
}

// ListInstancesByTemplate returns a template's instances, newest occurrence first.
func (s *Store) ListInstancesByTemplate(ctx context.Context, templateID string, limit int) ([]*Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM inspections
		WHERE is_template = 0 AND parent_template_id = ?
		ORDER BY name DESC, created_at DESC
		LIMIT ?
	`

	rows, err := s.q.QueryContext(ctx, query, templateID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

// InstanceExistsByName reports whether the template already has an instance
// with the given name.
func (s *Store) InstanceExistsByName(ctx context.Context, templateID, name string) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM inspections WHERE is_template = 0 AND parent_template_id = ? AND name = ? LIMIT 1`,
		templateID, name,
	)
}

// InstanceCreatedBetween reports whether the template has an instance whose
// created_at lies in [from, to].
func (s *Store) InstanceCreatedBetween(ctx context.Context, templateID string, from, to time.Time) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM inspections
		 WHERE is_template = 0 AND parent_template_id = ? AND created_at >= ? AND created_at <= ?
		 LIMIT 1`,
		templateID, database.FormatTime(from), database.FormatTime(to),
	)
}

// InstanceExistsByUniqueConstraint reports whether any instance carries key.
func (s *Store) InstanceExistsByUniqueConstraint(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx,
		`SELECT 1 FROM inspections WHERE unique_constraint = ? LIMIT 1`,
		key,
	)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return true, nil
}

// ListExpirable returns active instances whose expiry date is at or before now.
func (s *Store) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM inspections
		WHERE is_template = 0
		  AND status = ?
		  AND expiry_date IS NOT NULL
		  AND expiry_date <= ?
		ORDER BY expiry_date ASC, id ASC
		LIMIT ?
	`

	rows, err := s.q.QueryContext(ctx, query, string(StatusActive), database.FormatTime(now), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying expirable instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

// ListCompletable returns active instances where every task has at least one
// result. Instances without tasks are included only when includeEmpty is set.
func (s *Store) ListCompletable(ctx context.Context, includeEmpty bool, limit int) ([]*Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM inspections i
		WHERE i.is_template = 0
		  AND i.status = ?
		  AND NOT EXISTS (
			SELECT 1 FROM tasks t
			WHERE t.inspection_id = i.id
			  AND NOT EXISTS (SELECT 1 FROM results r WHERE r.task_id = t.id)
		  )
		  AND (? = 1 OR EXISTS (SELECT 1 FROM tasks t WHERE t.inspection_id = i.id))
		ORDER BY i.created_at ASC, i.id ASC
		LIMIT ?
	`

	empty := 0
	if includeEmpty {
		empty = 1
	}

	rows, err := s.q.QueryContext(ctx, query, string(StatusActive), empty, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying completable instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

// MarkExpired moves an active instance to expired. It reports false when the
// instance was no longer active.
func (s *Store) MarkExpired(ctx context.Context, id string, penalty int, now time.Time) (bool, error) {
	query := `
		UPDATE inspections
		SET status = ?, is_expired = 1, expired_at = ?, performance_penalty = ?, updated_at = ?
		WHERE id = ? AND is_template = 0 AND status = ?
	`

	ts := database.FormatTime(now)
	return s.transition(ctx, query, string(StatusExpired), ts, penalty, ts, id, string(StatusActive))
}

// MarkCompleted moves an active instance to completed. It reports false when
// the instance was no longer active.
func (s *Store) MarkCompleted(ctx context.Context, id, completedBy string, now time.Time) (bool, error) {
	query := `
		UPDATE inspections
		SET status = ?, completed_by = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND is_template = 0 AND status = ?
	`

	ts := database.FormatTime(now)
	return s.transition(ctx, query, string(StatusCompleted), completedBy, ts, ts, id, string(StatusActive))
}

func (s *Store) transition(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating status: %w", database.ClassifyError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating status: %w", err)
	}
	return n > 0, nil
}

// ListTasks returns the tasks of a template or instance in order.
func (s *Store) ListTasks(ctx context.Context, inspectionID string) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE inspection_id = ? ORDER BY position ASC, id ASC`

	rows, err := s.q.QueryContext(ctx, query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		var taskType, createdAt string
		var minValue, maxValue sql.NullFloat64

		err := rows.Scan(
			&task.ID,
			&task.InspectionID,
			&task.Position,
			&task.Name,
			&task.Description,
			&taskType,
			&task.Target,
			&task.ExpectedValue,
			&minValue,
			&maxValue,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}

		task.Type = TaskType(taskType)
		if minValue.Valid {
			task.MinValue = &minValue.Float64
		}
		if maxValue.Valid {
			task.MaxValue = &maxValue.Float64
		}
		if task.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}

	return tasks, nil
}

// CopyTasks deep-copies every task of one inspection onto another and returns
// how many were copied. The copies get fresh ids.
func (s *Store) CopyTasks(ctx context.Context, fromID, toID string, now time.Time) (int, error) {
	tasks, err := s.ListTasks(ctx, fromID)
	if err != nil {
		return 0, err
	}

	for i := range tasks {
		tasks[i].ID = ""
	}

	if err := s.insertTasks(ctx, toID, tasks, now); err != nil {
		return 0, err
	}

	return len(tasks), nil
}

// ReplaceTasks swaps an inspection's task list for tasks.
func (s *Store) ReplaceTasks(ctx context.Context, inspectionID string, tasks []Task, now time.Time) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE inspection_id = ?`, inspectionID); err != nil {
		return fmt.Errorf("deleting tasks: %w", err)
	}
	return s.insertTasks(ctx, inspectionID, tasks, now)
}

func (s *Store) insertTasks(ctx context.Context, inspectionID string, tasks []Task, now time.Time) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range tasks {
		task := &tasks[i]
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		task.InspectionID = inspectionID
		task.Position = i
		task.CreatedAt = now

		_, err := s.q.ExecContext(ctx, query,
			task.ID,
			task.InspectionID,
			task.Position,
			task.Name,
			task.Description,
			string(task.Type),
			task.Target,
			task.ExpectedValue,
			nullFloat(task.MinValue),
			nullFloat(task.MaxValue),
			database.FormatTime(task.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting task %q: %w", task.Name, database.ClassifyError(err))
		}
	}

	return nil
}

// RecordResult stores an operator's answer for one task of an active instance.
func (s *Store) RecordResult(ctx context.Context, r *Result) error {
	var status, owner string
	err := s.q.QueryRowContext(ctx,
		`SELECT status FROM inspections WHERE id = ? AND is_template = 0`,
		r.InspectionID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking instance: %w", err)
	}
	if Status(status) != StatusActive {
		return ErrNotActive
	}

	err = s.q.QueryRowContext(ctx, `SELECT inspection_id FROM tasks WHERE id = ?`, r.TaskID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != r.InspectionID) {
		return ErrTaskMismatch
	}
	if err != nil {
		return fmt.Errorf("checking task: %w", err)
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO results (id, inspection_id, task_id, value, passed, recorded_by, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.InspectionID,
		r.TaskID,
		r.Value,
		r.Passed,
		r.RecordedBy,
		database.FormatTime(r.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting result: %w", database.ClassifyError(err))
	}

	return nil
}

// ListResults returns the results recorded against an instance, oldest first.
func (s *Store) ListResults(ctx context.Context, inspectionID string) ([]Result, error) {
	query := `
		SELECT id, inspection_id, task_id, value, passed, recorded_by, recorded_at
		FROM results
		WHERE inspection_id = ?
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := s.q.QueryContext(ctx, query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var recordedAt string

		if err := rows.Scan(&r.ID, &r.InspectionID, &r.TaskID, &r.Value, &r.Passed, &r.RecordedBy, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		if r.RecordedAt, err = database.ParseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}

		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}

	return results, nil
}

func scanTemplate(row scanner) (*Template, error) {
	var t Template
	var frequency sql.NullString
	var interval sql.NullInt64
	var startDate, endDate, nextDue, lastCreated sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.Status,
		&frequency,
		&interval,
		&startDate,
		&endDate,
		&nextDue,
		&lastCreated,
		&t.ExpiryHours,
		&t.AssignedTo,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Frequency = Frequency(frequency.String)
	t.Interval = int(interval.Int64)

	for _, f := range []struct {
		name string
		src  sql.NullString
		dst  **time.Time
	}{
		{"start_date", startDate, &t.StartDate},
		{"end_date", endDate, &t.EndDate},
		{"schedule_next_due_date", nextDue, &t.NextDueDate},
		{"schedule_last_created_at", lastCreated, &t.LastCreatedAt},
	} {
		parsed, err := database.ParseNullTime(f.src)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.name, err)
		}
		*f.dst = parsed
	}

	if t.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &t, nil
}

func scanTemplates(rows *sql.Rows) ([]*Template, error) {
	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating template rows: %w", err)
	}
	return templates, nil
}

func scanInstance(row scanner) (*Instance, error) {
	var inst Instance
	var status string
	var parent, unique sql.NullString
	var completedAt, expiryDate, expiredAt sql.NullString
	var isExpired int
	var createdAt, updatedAt string

	err := row.Scan(
		&inst.ID,
		&inst.Name,
		&inst.Description,
		&parent,
		&unique,
		&status,
		&inst.AssignedTo,
		&inst.CompletedBy,
		&completedAt,
		&expiryDate,
		&isExpired,
		&expiredAt,
		&inst.PerformancePenalty,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Status = Status(status)
	inst.ParentTemplateID = parent.String
	inst.UniqueConstraint = unique.String
	inst.IsExpired = isExpired == 1

	if inst.CompletedAt, err = database.ParseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	if inst.ExpiryDate, err = database.ParseNullTime(expiryDate); err != nil {
		return nil, fmt.Errorf("parsing expiry_date: %w", err)
	}
	if inst.ExpiredAt, err = database.ParseNullTime(expiredAt); err != nil {
		return nil, fmt.Errorf("parsing expired_at: %w", err)
	}
	if inst.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if inst.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &inst, nil
}

func scanInstances(rows *sql.Rows) ([]*Instance, error) {
	var instances []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning instance row: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instance rows: %w", err)
	}
	return instances, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// sqlLimit maps "no limit" (<= 0) onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
