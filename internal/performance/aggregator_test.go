package performance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/inspections"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := config.Default().Database
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(&cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
	})

	return db
}

type fixture struct {
	db    *database.DB
	store *inspections.Store
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	store := inspections.NewStore(db)

	start := now.Add(-90 * 24 * time.Hour)
	require.NoError(t, store.CreateTemplate(context.Background(), &inspections.Template{
		ID:        "tpl",
		Name:      "Scaffold",
		Frequency: inspections.FrequencyDaily,
		Interval:  1,
		StartDate: &start,
		CreatedAt: start,
		Tasks: []inspections.Task{
			{Name: "Guard rails", Type: inspections.TaskYesNo},
			{Name: "Base plates", Type: inspections.TaskYesNo},
		},
	}))

	return &fixture{db: db, store: store}
}

func (f *fixture) instance(t *testing.T, name, operator string, at time.Time) (*inspections.Instance, []inspections.Task) {
	t.Helper()
	ctx := context.Background()

	inst := &inspections.Instance{
		Name:             name,
		ParentTemplateID: "tpl",
		UniqueConstraint: "fp-" + name,
		AssignedTo:       operator,
		CreatedAt:        at,
	}
	require.NoError(t, f.store.CreateInstance(ctx, inst))

	_, err := f.store.CopyTasks(ctx, "tpl", inst.ID, at)
	require.NoError(t, err)

	tasks, err := f.store.ListTasks(ctx, inst.ID)
	require.NoError(t, err)

	return inst, tasks
}

// answer records one result per task using the given outcomes.
func (f *fixture) answer(t *testing.T, inst *inspections.Instance, tasks []inspections.Task, operator string, at time.Time, passed ...bool) {
	t.Helper()
	for i, ok := range passed {
		require.NoError(t, f.store.RecordResult(context.Background(), &inspections.Result{
			InspectionID: inst.ID,
			TaskID:       tasks[i].ID,
			Value:        "yes",
			Passed:       ok,
			RecordedBy:   operator,
			RecordedAt:   at,
		}))
	}
}

func (f *fixture) complete(t *testing.T, inst *inspections.Instance, operator string, at time.Time) {
	t.Helper()
	ok, err := f.store.MarkCompleted(context.Background(), inst.ID, operator, at)
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) expire(t *testing.T, inst *inspections.Instance, penalty int, at time.Time) {
	t.Helper()
	ok, err := f.store.MarkExpired(context.Background(), inst.ID, penalty, at)
	require.NoError(t, err)
	require.True(t, ok)
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// seed builds three operators inside the window and one outside it.
func (f *fixture) seed(t *testing.T) {
	a1, tasks := f.instance(t, "a1", "op-a", now.Add(-days(5)))
	f.answer(t, a1, tasks, "op-a", now.Add(-days(5)+time.Hour), true, true)
	f.complete(t, a1, "op-a", now.Add(-days(5)+2*time.Hour))

	a2, tasks := f.instance(t, "a2", "op-a", now.Add(-days(4)))
	f.answer(t, a2, tasks, "op-a", now.Add(-days(4)+time.Hour), true, false)
	f.complete(t, a2, "op-a", now.Add(-days(4)+2*time.Hour))

	a3, _ := f.instance(t, "a3", "op-a", now.Add(-days(3)))
	f.expire(t, a3, 25, now.Add(-days(2)))

	b1, _ := f.instance(t, "b1", "op-b", now.Add(-days(3)))
	f.expire(t, b1, 50, now.Add(-days(1)))

	c1, tasks := f.instance(t, "c1", "op-c", now.Add(-days(2)))
	f.answer(t, c1, tasks, "op-c", now.Add(-days(2)+time.Hour), true, true)
	f.complete(t, c1, "op-c", now.Add(-days(2)+2*time.Hour))

	d1, tasks := f.instance(t, "d1", "op-d", now.Add(-days(60)))
	f.answer(t, d1, tasks, "op-d", now.Add(-days(60)), true, true)
	f.complete(t, d1, "op-d", now.Add(-days(59)))
}

func newAggregator(t *testing.T, db *database.DB, clk clock.Clock) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(db, clk, &config.Default().Performance)
	require.NoError(t, err)
	return agg
}

func TestAggregator_RunOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	result, err := newAggregator(t, f.db, clock.Fake(now)).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.Operators)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, map[Status]int{
		StatusWarning:  1,
		StatusInactive: 1,
		StatusActive:   1,
	}, result.ByStatus)

	store := NewStore(f.db)

	a, err := store.Get(ctx, "op-a")
	require.NoError(t, err)
	require.Equal(t, 30, a.WindowDays)
	require.Equal(t, 3, a.Assigned)
	require.Equal(t, 2, a.Completed)
	require.Equal(t, 1, a.Expired)
	require.Equal(t, 4, a.Results)
	require.Equal(t, 3, a.Passed)
	require.Equal(t, 25, a.PenaltyPoints)
	require.InDelta(t, 2.0/3.0, a.CompletionRate, 1e-9)
	require.InDelta(t, 0.75, a.PassRate, 1e-9)
	require.NotNil(t, a.LastActivityAt)
	require.True(t, a.LastActivityAt.Equal(now.Add(-days(4)+2*time.Hour)))
	require.Equal(t, StatusWarning, a.Status)
	require.True(t, a.ComputedAt.Equal(now))

	b, err := store.Get(ctx, "op-b")
	require.NoError(t, err)
	require.Equal(t, 50, b.PenaltyPoints)
	require.Equal(t, 0.0, b.CompletionRate)
	require.Equal(t, StatusInactive, b.Status)
	require.Nil(t, b.LastActivityAt)

	c, err := store.Get(ctx, "op-c")
	require.NoError(t, err)
	require.Equal(t, 1.0, c.CompletionRate)
	require.Equal(t, 1.0, c.PassRate)
	require.Equal(t, StatusActive, c.Status)

	_, err = store.Get(ctx, "op-d")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAggregator_StoredOperatorsDecayToInactive(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	clk := clock.Fake(now)
	agg := newAggregator(t, f.db, clk)

	_, err := agg.RunOnce(ctx)
	require.NoError(t, err)

	clk.Advance(days(40))
	result, err := agg.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.Operators)
	require.Equal(t, 3, result.ByStatus[StatusInactive])

	a, err := NewStore(f.db).Get(ctx, "op-a")
	require.NoError(t, err)
	require.Equal(t, 0, a.Assigned)
	require.Equal(t, 0, a.PenaltyPoints)
	require.Equal(t, StatusInactive, a.Status)
	require.NotNil(t, a.LastActivityAt, "last activity survives an empty window")
}

func TestAggregator_ListByStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	_, err := newAggregator(t, f.db, clock.Fake(now)).RunOnce(ctx)
	require.NoError(t, err)

	all, err := NewStore(f.db).List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "op-a", all[0].OperatorID)

	warning, err := NewStore(f.db).List(ctx, StatusWarning)
	require.NoError(t, err)
	require.Len(t, warning, 1)
	require.Equal(t, "op-a", warning[0].OperatorID)
}

func TestAggregator_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	_, err := f.db.ExecContext(ctx, `
		CREATE TRIGGER fail_op_b BEFORE INSERT ON operator_performance
		WHEN NEW.operator_id = 'op-b'
		BEGIN
			SELECT RAISE(ABORT, 'boom');
		END
	`)
	require.NoError(t, err)

	result, err := newAggregator(t, f.db, clock.Fake(now)).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Operators)
	require.Equal(t, 1, result.Failed)

	_, err = NewStore(f.db).Get(ctx, "op-b")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = NewStore(f.db).Get(ctx, "op-c")
	require.NoError(t, err)
}

func TestNewAggregator_InvalidRule(t *testing.T) {
	db := setupTestDB(t)
	cfg := config.Default().Performance
	cfg.Rules.Warning = "pass_rate <"

	_, err := NewAggregator(db, clock.Fake(now), &cfg)
	require.ErrorIs(t, err, ErrInvalidRuleExpr)
}
