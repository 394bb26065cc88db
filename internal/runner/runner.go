// Package runner invokes the maintenance jobs on cron schedules or on demand
// and records every run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/expiry"
	"github.com/watzon/maintrack/internal/metrics"
	"github.com/watzon/maintrack/internal/performance"
	"github.com/watzon/maintrack/internal/requestctx"
	"github.com/watzon/maintrack/internal/scheduler"
)

// Job names.
const (
	JobGenerate    = "generate"
	JobExpire      = "expire"
	JobPerformance = "performance"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job already running")
)

// JobFunc performs one run and returns a JSON-encodable summary.
type JobFunc func(ctx context.Context) (any, error)

type job struct {
	name string
	spec string
	fn   JobFunc
	mu   sync.Mutex
}

// Runner owns the registered jobs and their cron schedule.
type Runner struct {
	state *StateStore
	clock clock.Clock
	jobs  map[string]*job
	order []string

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New(db *database.DB, clk clock.Clock) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		state:  NewStateStore(db),
		clock:  clk,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// FromConfig builds a runner with the generate, expire and performance jobs.
func FromConfig(db *database.DB, clk clock.Clock, cfg *config.Config) (*Runner, error) {
	generator := scheduler.NewGenerator(db, clk, scheduler.ConfigFrom(&cfg.Scheduler))
	engine := expiry.NewEngine(db, clk, expiry.Options{
		CompleteEmpty: cfg.Scheduler.CompleteEmpty,
		BatchLimit:    cfg.Scheduler.BatchLimit,
	})
	aggregator, err := performance.NewAggregator(db, clk, &cfg.Performance)
	if err != nil {
		return nil, fmt.Errorf("creating performance aggregator: %w", err)
	}

	r := New(db, clk)
	r.Register(JobGenerate, cfg.Scheduler.GenerateSpec, summarize(generator.RunOnce))
	r.Register(JobExpire, cfg.Scheduler.ExpireSpec, summarize(engine.RunOnce))
	r.Register(JobPerformance, cfg.Scheduler.PerformanceSpec, summarize(aggregator.RunOnce))

	return r, nil
}

// summarize drops the typed nil a failed run returns so it is not recorded
// as a JSON null.
func summarize[T any](fn func(context.Context) (*T, error)) JobFunc {
	return func(ctx context.Context) (any, error) {
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// Register adds a job. Registering a name twice replaces the earlier job.
func (r *Runner) Register(name, spec string, fn JobFunc) {
	if _, ok := r.jobs[name]; !ok {
		r.order = append(r.order, name)
	}
	r.jobs[name] = &job{name: name, spec: spec, fn: fn}
}

// Jobs returns the registered job names in registration order.
func (r *Runner) Jobs() []string {
	return append([]string(nil), r.order...)
}

// Spec returns the cron spec of a job.
func (r *Runner) Spec(name string) string {
	if j, ok := r.jobs[name]; ok {
		return j.spec
	}
	return ""
}

func (r *Runner) State() *StateStore {
	return r.state
}

// Run invokes a job once, records it in job_runs, and returns its summary.
// The trigger source is read from ctx. A job never runs concurrently with
// itself; an overlapping call fails with ErrJobRunning.
func (r *Runner) Run(ctx context.Context, name string) (any, error) {
	j, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !j.mu.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer j.mu.Unlock()

	trigger := requestctx.Trigger(ctx)
	startedAt := r.clock.Now()
	start := time.Now()

	summary, err := j.fn(ctx)
	duration := time.Since(start)

	metrics.RecordJobRun(name, trigger, err, duration)
	if recErr := r.state.Record(ctx, name, trigger, startedAt, duration, summary, err); recErr != nil {
		log.Error().
			Err(recErr).
			Str("job", name).
			Msg("Failed to record job run")
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("job", name).
			Str("trigger", trigger).
			Dur("duration", duration).
			Msg("Job failed")
		return nil, err
	}

	log.Debug().
		Str("job", name).
		Str("trigger", trigger).
		Dur("duration", duration).
		Interface("summary", summary).
		Msg("Job finished")

	return summary, nil
}

// Start schedules every registered job.
func (r *Runner) Start() error {
	logger := cronLogger{}
	r.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, name := range r.order {
		if _, err := r.cron.AddFunc(r.jobs[name].spec, func() {
			ctx := requestctx.WithTrigger(r.ctx, requestctx.TriggerCron)
			if _, err := r.Run(ctx, name); errors.Is(err, ErrJobRunning) {
				log.Debug().Str("job", name).Msg("Skipping job still running from another trigger")
			}
		}); err != nil {
			return fmt.Errorf("scheduling %s job: %w", name, err)
		}
	}

	r.cron.Start()

	log.Info().
		Strs("jobs", r.order).
		Msg("Job runner started")

	return nil
}

// Stop cancels in-flight cron runs and waits for them to return.
func (r *Runner) Stop() {
	r.cancel()
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	log.Info().Msg("Job runner stopped")
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Trace().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
