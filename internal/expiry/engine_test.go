package expiry

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

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

type fixture struct {
	db    *database.DB
	store *inspections.Store
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	store := inspections.NewStore(db)

	require.NoError(t, store.CreateTemplate(context.Background(), &inspections.Template{
		ID:        "tpl",
		Name:      "Crane",
		Frequency: inspections.FrequencyDaily,
		Interval:  1,
		StartDate: ptr(now),
		CreatedAt: now.Add(-48 * time.Hour),
		Tasks: []inspections.Task{
			{Name: "Hook latch", Type: inspections.TaskYesNo},
			{Name: "Load test", Type: inspections.TaskNumeric},
		},
	}))

	return &fixture{db: db, store: store}
}

func (f *fixture) instance(t *testing.T, name string, expiry *time.Time, withTasks bool) *inspections.Instance {
	t.Helper()
	ctx := context.Background()

	inst := &inspections.Instance{
		Name:             name,
		ParentTemplateID: "tpl",
		UniqueConstraint: "fp-" + name,
		AssignedTo:       "op-" + name,
		ExpiryDate:       expiry,
		CreatedAt:        now.Add(-72 * time.Hour),
	}
	require.NoError(t, f.store.CreateInstance(ctx, inst))

	if withTasks {
		_, err := f.store.CopyTasks(ctx, "tpl", inst.ID, now.Add(-72*time.Hour))
		require.NoError(t, err)
	}
	return inst
}

func (f *fixture) answerAll(t *testing.T, inst *inspections.Instance) {
	t.Helper()
	ctx := context.Background()

	tasks, err := f.store.ListTasks(ctx, inst.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		require.NoError(t, f.store.RecordResult(ctx, &inspections.Result{
			InspectionID: inst.ID,
			TaskID:       task.ID,
			Value:        "yes",
			Passed:       true,
			RecordedBy:   inst.AssignedTo,
			RecordedAt:   now.Add(-time.Hour),
		}))
	}
}

func TestEngine_ExpiresNinetyMinutesOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inst := f.instance(t, "late", ptr(now.Add(-90*time.Minute)), true)

	res, err := NewEngine(f.db, clock.Fake(now), Options{}).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)

	got, err := f.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, inspections.StatusExpired, got.Status)
	require.True(t, got.IsExpired)
	require.Equal(t, 10, got.PerformancePenalty)
	require.True(t, got.ExpiredAt.Equal(now))
}

func TestEngine_PenaltyPerInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		overdue time.Duration
		want    int
	}{
		"on-time":   {0, 5},
		"one-hour":  {time.Hour, 5},
		"four-hour": {4*time.Hour + time.Minute, 25},
		"two-days":  {48 * time.Hour, 50},
	}

	ids := map[string]string{}
	for name, c := range cases {
		ids[name] = f.instance(t, name, ptr(now.Add(-c.overdue)), true).ID
	}

	res, err := NewEngine(f.db, clock.Fake(now), Options{}).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, len(cases), res.Expired)

	for name, c := range cases {
		got, err := f.store.GetInstance(ctx, ids[name])
		require.NoError(t, err)
		require.Equal(t, c.want, got.PerformancePenalty, name)
	}
}

func TestEngine_FutureExpiryUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	future := f.instance(t, "future", ptr(now.Add(time.Second)), true)
	noExpiry := f.instance(t, "open", nil, true)

	res, err := NewEngine(f.db, clock.Fake(now), Options{}).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{}, *res)

	for _, id := range []string{future.ID, noExpiry.ID} {
		got, err := f.store.GetInstance(ctx, id)
		require.NoError(t, err)
		require.Equal(t, inspections.StatusActive, got.Status)
		require.Zero(t, got.PerformancePenalty)
	}
}

func TestEngine_CompletionScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := f.instance(t, "done", ptr(now.Add(time.Hour)), true)
	f.answerAll(t, done)

	partial := f.instance(t, "partial", ptr(now.Add(time.Hour)), true)
	tasks, err := f.store.ListTasks(ctx, partial.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.RecordResult(ctx, &inspections.Result{InspectionID: partial.ID, TaskID: tasks[0].ID, RecordedAt: now}))

	empty := f.instance(t, "empty", ptr(now.Add(time.Hour)), false)

	res, err := NewEngine(f.db, clock.Fake(now), Options{}).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Completed)
	require.Equal(t, 0, res.Expired)

	got, err := f.store.GetInstance(ctx, done.ID)
	require.NoError(t, err)
	require.Equal(t, inspections.StatusCompleted, got.Status)
	require.Equal(t, "op-done", got.CompletedBy)

	for _, id := range []string{partial.ID, empty.ID} {
		got, err := f.store.GetInstance(ctx, id)
		require.NoError(t, err)
		require.Equal(t, inspections.StatusActive, got.Status)
	}
}

func TestEngine_CompleteEmptyOption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty := f.instance(t, "empty", ptr(now.Add(time.Hour)), false)

	res, err := NewEngine(f.db, clock.Fake(now), Options{CompleteEmpty: true}).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Completed)

	got, err := f.store.GetInstance(ctx, empty.ID)
	require.NoError(t, err)
	require.Equal(t, inspections.StatusCompleted, got.Status)
}

func TestEngine_ExpireRunsBeforeCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inst := f.instance(t, "both", ptr(now.Add(-time.Minute)), true)
	f.answerAll(t, inst)

	res, err := NewEngine(f.db, clock.Fake(now), Options{}).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)
	require.Equal(t, 0, res.Completed)

	got, err := f.store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, inspections.StatusExpired, got.Status)
}

func TestEngine_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.instance(t, "late", ptr(now.Add(-2*time.Hour)), true)
	done := f.instance(t, "done", ptr(now.Add(time.Hour)), true)
	f.answerAll(t, done)

	clk := clock.Fake(now)
	engine := NewEngine(f.db, clk, Options{})

	res, err := engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Expired: 1, Completed: 1}, *res)

	clk.Advance(48 * time.Hour)
	res, err = engine.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{}, *res, "closed instances are never revisited")

	got, err := f.store.GetInstance(ctx, done.ID)
	require.NoError(t, err)
	require.Equal(t, inspections.StatusCompleted, got.Status)
}

func TestEngine_FailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	broken := f.instance(t, "broken", ptr(now.Add(-time.Hour)), true)
	fine := f.instance(t, "fine", ptr(now.Add(-time.Hour)), true)

	_, err := f.db.ExecContext(ctx, `
		CREATE TRIGGER fail_expire
		BEFORE UPDATE OF status ON inspections
		WHEN NEW.id = '`+broken.ID+`'
		BEGIN
			SELECT RAISE(ABORT, 'injected failure');
		END
	`)
	require.NoError(t, err)

	res, err := NewEngine(f.db, clock.Fake(now), Options{}).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)
	require.Equal(t, 1, res.Failed)

	got, err := f.store.GetInstance(ctx, broken.ID)
	require.NoError(t, err)
	require.Equal(t, inspections.StatusActive, got.Status)
	require.False(t, got.IsExpired)
	require.Zero(t, got.PerformancePenalty)

	got, err = f.store.GetInstance(ctx, fine.ID)
	require.NoError(t, err)
	require.Equal(t, inspections.StatusExpired, got.Status)
}
