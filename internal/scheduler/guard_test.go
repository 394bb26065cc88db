package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watzon/maintrack/internal/inspections"
)

type fakeLookup struct {
	names       map[string]bool
	createdAt   []time.Time
	fingerprint map[string]bool
	err         error
	calls       []string
}

func (f *fakeLookup) InstanceExistsByName(_ context.Context, _ string, name string) (bool, error) {
	f.calls = append(f.calls, "name")
	return f.names[name], f.err
}

func (f *fakeLookup) InstanceCreatedBetween(_ context.Context, _ string, from, to time.Time) (bool, error) {
	f.calls = append(f.calls, "time_window")
	for _, c := range f.createdAt {
		if !c.Before(from) && !c.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLookup) InstanceExistsByUniqueConstraint(_ context.Context, key string) (bool, error) {
	f.calls = append(f.calls, "unique_constraint")
	return f.fingerprint[key], nil
}

func weeklyTemplate() *inspections.Template {
	tpl := recurring(inspections.FrequencyWeekly, 1, date(2024, 1, 8))
	tpl.NextDueDate = ptr(date(2024, 1, 8))
	return tpl
}

func TestCheckDuplicate_NoSignal(t *testing.T) {
	l := &fakeLookup{}
	occ := NewOccurrence(weeklyTemplate(), date(2024, 1, 8))

	signal, err := CheckDuplicate(context.Background(), l, occ)
	require.NoError(t, err)
	require.Equal(t, SignalNone, signal)
	require.Equal(t, []string{"name", "time_window", "unique_constraint"}, l.calls)
}

func TestCheckDuplicate_Signals(t *testing.T) {
	due := date(2024, 1, 8)
	tpl := weeklyTemplate()
	fp := Fingerprint(tpl.ID, "2024-01-08")

	tests := []struct {
		name     string
		lookup   *fakeLookup
		template func() *inspections.Template
		want     Signal
	}{
		{
			name:   "name match",
			lookup: &fakeLookup{names: map[string]bool{"2024-01-08": true}},
			want:   SignalName,
		},
		{
			name:   "created a day before due",
			lookup: &fakeLookup{createdAt: []time.Time{due.Add(-24 * time.Hour)}},
			want:   SignalTimeWindow,
		},
		{
			name:   "created a day after due",
			lookup: &fakeLookup{createdAt: []time.Time{due.Add(24 * time.Hour)}},
			want:   SignalTimeWindow,
		},
		{
			name:   "created outside the window",
			lookup: &fakeLookup{createdAt: []time.Time{due.Add(-25 * time.Hour)}},
			want:   SignalNone,
		},
		{
			name:   "last created at due",
			lookup: &fakeLookup{},
			template: func() *inspections.Template {
				tpl := weeklyTemplate()
				tpl.LastCreatedAt = ptr(due)
				return tpl
			},
			want: SignalLastCreated,
		},
		{
			name:   "last created before due",
			lookup: &fakeLookup{},
			template: func() *inspections.Template {
				tpl := weeklyTemplate()
				tpl.LastCreatedAt = ptr(due.Add(-time.Second))
				return tpl
			},
			want: SignalNone,
		},
		{
			name:   "fingerprint match",
			lookup: &fakeLookup{fingerprint: map[string]bool{fp: true}},
			want:   SignalUniqueConstraint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := tpl
			if tt.template != nil {
				tpl = tt.template()
			}
			signal, err := CheckDuplicate(context.Background(), tt.lookup, NewOccurrence(tpl, due))
			require.NoError(t, err)
			require.Equal(t, tt.want, signal)
		})
	}
}

func TestCheckDuplicate_ShortCircuits(t *testing.T) {
	due := date(2024, 1, 8)
	l := &fakeLookup{
		names:     map[string]bool{"2024-01-08": true},
		createdAt: []time.Time{due},
	}

	signal, err := CheckDuplicate(context.Background(), l, NewOccurrence(weeklyTemplate(), due))
	require.NoError(t, err)
	require.Equal(t, SignalName, signal)
	require.Equal(t, []string{"name"}, l.calls)
}

func TestCheckDuplicate_LookupError(t *testing.T) {
	boom := errors.New("database is locked")
	l := &fakeLookup{err: boom}

	_, err := CheckDuplicate(context.Background(), l, NewOccurrence(weeklyTemplate(), date(2024, 1, 8)))
	require.ErrorIs(t, err, boom)
}

func TestWindowTolerance(t *testing.T) {
	require.Equal(t, 24*time.Hour, windowTolerance(recurring(inspections.FrequencyDaily, 1, date(2024, 1, 1))))
	require.Equal(t, 24*time.Hour, windowTolerance(recurring(inspections.FrequencyWeekly, 1, date(2024, 1, 1))))
	require.Equal(t, 30*time.Minute, windowTolerance(recurring(inspections.FrequencyMinute, 60, date(2024, 1, 1))))
	require.Equal(t, 24*time.Hour, windowTolerance(recurring(inspections.FrequencyMinute, 60*72, date(2024, 1, 1))))
	require.Equal(t, 24*time.Hour, windowTolerance(recurring(inspections.FrequencyMinute, 60*36, date(2024, 1, 1))))
}

func TestCheckDuplicate_DailyTemplateUsesFullDay(t *testing.T) {
	due := date(2024, 1, 8)
	tpl := recurring(inspections.FrequencyDaily, 1, due)
	tpl.NextDueDate = ptr(due)

	l := &fakeLookup{createdAt: []time.Time{due.Add(-18 * time.Hour)}}

	signal, err := CheckDuplicate(context.Background(), l, NewOccurrence(tpl, due))
	require.NoError(t, err)
	require.Equal(t, SignalTimeWindow, signal)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("tpl-1", "2024-01-08")
	require.Len(t, a, 64)
	require.Equal(t, a, Fingerprint("tpl-1", "2024-01-08"))
	require.NotEqual(t, a, Fingerprint("tpl-1", "2024-01-15"))
	require.NotEqual(t, a, Fingerprint("tpl-2", "2024-01-08"))

	// length prefixes keep field boundaries unambiguous
	require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}
