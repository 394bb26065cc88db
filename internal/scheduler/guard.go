package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/watzon/maintrack/internal/inspections"
)

// Signal names the check that recognised an occurrence as already generated.
type Signal string

const (
	SignalNone             Signal = ""
	SignalName             Signal = "name"
	SignalTimeWindow       Signal = "time_window"
	SignalLastCreated      Signal = "last_created"
	SignalUniqueConstraint Signal = "unique_constraint"

	// SignalUniqueIndex is reported when the insert itself hit the unique
	// index after every check passed.
	SignalUniqueIndex Signal = "unique_index"
)

// Lookup is the read-only view of the instance store the guard needs.
type Lookup interface {
	InstanceExistsByName(ctx context.Context, templateID, name string) (bool, error)
	InstanceCreatedBetween(ctx context.Context, templateID string, from, to time.Time) (bool, error)
	InstanceExistsByUniqueConstraint(ctx context.Context, key string) (bool, error)
}

// Occurrence is one due date of one template.
type Occurrence struct {
	Template    *inspections.Template
	Due         time.Time
	Key         string
	Fingerprint string
}

// NewOccurrence builds the occurrence of t due at due.
func NewOccurrence(t *inspections.Template, due time.Time) Occurrence {
	key := OccurrenceKey(t.Frequency, due)
	return Occurrence{
		Template:    t,
		Due:         due,
		Key:         key,
		Fingerprint: Fingerprint(t.ID, key),
	}
}

type duplicateCheck struct {
	signal Signal
	match  func(ctx context.Context, l Lookup, o Occurrence) (bool, error)
}

// duplicateChecks run in order; the first positive one wins.
var duplicateChecks = []duplicateCheck{
	{SignalName, nameMatch},
	{SignalTimeWindow, timeWindowMatch},
	{SignalLastCreated, lastCreatedMatch},
	{SignalUniqueConstraint, uniqueConstraintMatch},
}

// CheckDuplicate reports which signal, if any, shows that o was already
// generated. SignalNone means the occurrence is new.
func CheckDuplicate(ctx context.Context, l Lookup, o Occurrence) (Signal, error) {
	for _, c := range duplicateChecks {
		ok, err := c.match(ctx, l, o)
		if err != nil {
			return SignalNone, fmt.Errorf("%s check: %w", c.signal, err)
		}
		if ok {
			return c.signal, nil
		}
	}
	return SignalNone, nil
}

func nameMatch(ctx context.Context, l Lookup, o Occurrence) (bool, error) {
	return l.InstanceExistsByName(ctx, o.Template.ID, o.Key)
}

func timeWindowMatch(ctx context.Context, l Lookup, o Occurrence) (bool, error) {
	tol := windowTolerance(o.Template)
	return l.InstanceCreatedBetween(ctx, o.Template.ID, o.Due.Add(-tol), o.Due.Add(tol))
}

func lastCreatedMatch(_ context.Context, _ Lookup, o Occurrence) (bool, error) {
	last := o.Template.LastCreatedAt
	return last != nil && !last.Before(o.Due), nil
}

func uniqueConstraintMatch(ctx context.Context, l Lookup, o Occurrence) (bool, error) {
	return l.InstanceExistsByUniqueConstraint(ctx, o.Fingerprint)
}

// windowTolerance is one day. Sub-daily templates narrow it to half their
// period so neighbouring occurrences stay distinct.
func windowTolerance(t *inspections.Template) time.Duration {
	const day = 24 * time.Hour
	if p := period(t); p < day {
		return p / 2
	}
	return day
}
