// Package catalog loads inspection templates from YAML files and keeps the
// database in step with them.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/watzon/maintrack/internal/inspections"
)

var ErrInvalidDefinition = errors.New("invalid template definition")

// File is the top-level document of a catalog file.
type File struct {
	Templates []Definition `yaml:"templates"`
}

// Definition declares one template.
type Definition struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Status      string           `yaml:"status"`
	Frequency   string           `yaml:"frequency"`
	Interval    int              `yaml:"interval"`
	StartDate   Date             `yaml:"start_date"`
	EndDate     Date             `yaml:"end_date"`
	ExpiryHours int              `yaml:"expiry_hours"`
	AssignedTo  string           `yaml:"assigned_to"`
	Tasks       []TaskDefinition `yaml:"tasks"`

	// Source is the file the definition was read from.
	Source string `yaml:"-"`
}

type TaskDefinition struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Type          string   `yaml:"type"`
	Target        string   `yaml:"target"`
	ExpectedValue string   `yaml:"expected_value"`
	MinValue      *float64 `yaml:"min_value"`
	MaxValue      *float64 `yaml:"max_value"`
}

// Date accepts either a calendar date or an RFC3339 timestamp. Dates are
// read as midnight UTC.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly, "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, node.Value); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("line %d: cannot parse %q as a date", node.Line, node.Value)
}

func (d Date) ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) ([]Definition, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Templates))
	for i := range file.Templates {
		def := &file.Templates[i]
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidDefinition, def.ID)
		}
		seen[def.ID] = true
	}

	return file.Templates, nil
}

// Validate checks a definition before it reaches the database.
func (d *Definition) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: template %q: %s", ErrInvalidDefinition, d.ID, fmt.Sprintf(format, args...))
	}

	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if d.Name == "" {
		return fail("name is required")
	}
	switch d.Status {
	case "", inspections.TemplateActive, inspections.TemplatePaused:
	default:
		return fail("unknown status %q", d.Status)
	}
	if !inspections.Frequency(d.Frequency).Valid() {
		return fail("unknown frequency %q", d.Frequency)
	}
	if d.Interval < 1 {
		return fail("interval must be at least 1")
	}
	if d.StartDate.IsZero() {
		return fail("start_date is required")
	}
	if !d.EndDate.IsZero() && d.EndDate.Before(d.StartDate.Time) {
		return fail("end_date is before start_date")
	}
	if d.ExpiryHours < 0 {
		return fail("expiry_hours must be non-negative")
	}
	for i, task := range d.Tasks {
		if err := task.task(i, nil).Validate(); err != nil {
			return fail("%v", err)
		}
	}

	return nil
}

// Template converts d, sanitising free text with policy.
func (d *Definition) Template(policy *bluemonday.Policy) *inspections.Template {
	status := d.Status
	if status == "" {
		status = inspections.TemplateActive
	}

	t := &inspections.Template{
		ID:          d.ID,
		Name:        d.Name,
		Description: policy.Sanitize(d.Description),
		Status:      status,
		Frequency:   inspections.Frequency(d.Frequency),
		Interval:    d.Interval,
		StartDate:   d.StartDate.ptr(),
		EndDate:     d.EndDate.ptr(),
		ExpiryHours: d.ExpiryHours,
		AssignedTo:  d.AssignedTo,
	}
	for i, task := range d.Tasks {
		t.Tasks = append(t.Tasks, task.task(i, policy))
	}

	return t
}

func (td TaskDefinition) task(position int, policy *bluemonday.Policy) inspections.Task {
	description := td.Description
	if policy != nil {
		description = policy.Sanitize(description)
	}
	return inspections.Task{
		Position:      position,
		Name:          td.Name,
		Description:   description,
		Type:          inspections.TaskType(td.Type),
		Target:        td.Target,
		ExpectedValue: td.ExpectedValue,
		MinValue:      td.MinValue,
		MaxValue:      td.MaxValue,
	}
}
