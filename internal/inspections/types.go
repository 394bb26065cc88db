// Package inspections persists inspection templates, the instances generated
// from them, their task checklists and the results operators record.
package inspections

import (
	"fmt"
	"time"
)

// Frequency is the unit of a template's recurrence.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
	FrequencyMinute  Frequency = "minute"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly, FrequencyMinute:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
)

// Template statuses. Templates do not take part in the instance state machine.
const (
	TemplateActive = "active"
	TemplatePaused = "paused"
)

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s Status) bool {
	switch s {
	case StatusExpired, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether an instance may move from one status to another.
// Only active instances move, and only to a terminal state.
func CanTransition(from, to Status) bool {
	return from == StatusActive && IsTerminal(to)
}

// TaskType is the kind of answer a task expects.
type TaskType string

const (
	TaskYesNo   TaskType = "yes_no"
	TaskNumeric TaskType = "numeric"
)

// Template is an inspection definition carrying a recurrence.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`

	Frequency Frequency  `json:"frequency"`
	Interval  int        `json:"interval"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	NextDueDate   *time.Time `json:"next_due_date,omitempty"` // nil once the recurrence is exhausted
	LastCreatedAt *time.Time `json:"last_created_at,omitempty"`

	ExpiryHours int    `json:"expiry_hours,omitempty"` // 0 means use the configured default
	AssignedTo  string `json:"assigned_to,omitempty"`  // operator copied onto each instance

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tasks []Task `json:"tasks,omitempty"`
}

// Instance is one materialized run of a template.
type Instance struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	ParentTemplateID string `json:"parent_template_id"`
	UniqueConstraint string `json:"unique_constraint"`
	Status           Status `json:"status"`

	AssignedTo  string     `json:"assigned_to,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ExpiryDate         *time.Time `json:"expiry_date,omitempty"`
	IsExpired          bool       `json:"is_expired"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
	PerformancePenalty int        `json:"performance_penalty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is one checklist entry owned by a template or an instance.
type Task struct {
	ID            string    `json:"id"`
	InspectionID  string    `json:"inspection_id"`
	Position      int       `json:"position"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Type          TaskType  `json:"type"`
	Target        string    `json:"target,omitempty"`
	ExpectedValue string    `json:"expected_value,omitempty"`
	MinValue      *float64  `json:"min_value,omitempty"`
	MaxValue      *float64  `json:"max_value,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the fields the schema cannot.
func (t Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Type != TaskYesNo && t.Type != TaskNumeric {
		return fmt.Errorf("task %q: unknown type %q", t.Name, t.Type)
	}
	if t.MinValue != nil && t.MaxValue != nil && *t.MinValue > *t.MaxValue {
		return fmt.Errorf("task %q: min_value exceeds max_value", t.Name)
	}
	return nil
}

// Result is a value recorded by an operator against an instance task.
type Result struct {
	ID           string    `json:"id"`
	InspectionID string    `json:"inspection_id"`
	TaskID       string    `json:"task_id"`
	Value        string    `json:"value"`
	Passed       bool      `json:"passed"`
	RecordedBy   string    `json:"recorded_by"`
	RecordedAt   time.Time `json:"recorded_at"`
}
