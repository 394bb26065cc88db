package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/inspections"
	"github.com/watzon/maintrack/internal/metrics"
)

// GeneratorConfig holds the knobs of the instance generator.
type GeneratorConfig struct {
	// Lookahead bounds how far ahead instances are created. Defaults to
	// PreCreationWindow.
	Lookahead time.Duration

	// DefaultExpiry is added to the due date of templates without
	// expiry_hours.
	DefaultExpiry time.Duration

	// RollForwardMissed advances stale due dates before selection.
	RollForwardMissed bool

	// BatchLimit caps templates per pass (0 = unlimited).
	BatchLimit int
}

// ConfigFrom maps the scheduler section of the application config.
func ConfigFrom(cfg *config.SchedulerConfig) GeneratorConfig {
	return GeneratorConfig{
		Lookahead:         cfg.Lookahead,
		DefaultExpiry:     cfg.DefaultExpiry,
		RollForwardMissed: cfg.RollForwardMissed,
		BatchLimit:        cfg.BatchLimit,
	}
}

// GenerateResult summarises one generator run.
type GenerateResult struct {
	Created       int `json:"created"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	RolledForward int `json:"rolled_forward"`
	Exhausted     int `json:"exhausted"`
}

// Generator materializes instances from due templates.
type Generator struct {
	db    *database.DB
	store *inspections.Store
	clock clock.Clock
	cfg   GeneratorConfig
}

func NewGenerator(db *database.DB, clk clock.Clock, cfg GeneratorConfig) *Generator {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = PreCreationWindow
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = config.DefaultExpiry
	}
	return &Generator{
		db:    db,
		store: inspections.NewStore(db),
		clock: clk,
		cfg:   cfg,
	}
}

type generateOutcome struct {
	instanceID string
	signal     Signal
	next       *time.Time
}

// RunOnce creates at most one instance per template whose next due date lies
// in (now, now+lookahead]. Each template is its own unit of work; a failure
// rolls back that template only and is counted, never returned.
func (g *Generator) RunOnce(ctx context.Context) (*GenerateResult, error) {
	now := g.clock.Now().UTC()
	result := &GenerateResult{}

	if g.cfg.RollForwardMissed {
		rolled, failed, err := g.rollForward(ctx, now)
		if err != nil {
			return nil, err
		}
		result.RolledForward = rolled
		result.Failed += failed
	}

	templates, err := g.store.ListDueTemplates(ctx, now, now.Add(g.cfg.Lookahead), g.cfg.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("selecting due templates: %w", err)
	}

	for _, t := range templates {
		due := *t.NextDueDate

		out, err := g.generate(ctx, t, now)
		if err != nil {
			result.Failed++
			metrics.RecordEntityFailure("generate")
			log.Error().
				Err(err).
				Str("template_id", t.ID).
				Time("due_date", due).
				Msg("Failed to generate instance")
			continue
		}

		if out.signal != SignalNone {
			result.Skipped++
			metrics.RecordInstanceSkipped(string(out.signal))
			log.Info().
				Str("template_id", t.ID).
				Time("due_date", due).
				Str("signal", string(out.signal)).
				Msg("Skipping duplicate occurrence")
			continue
		}

		result.Created++
		metrics.RecordInstanceCreated()

		evt := log.Info().
			Str("template_id", t.ID).
			Str("instance_id", out.instanceID).
			Time("due_date", due)
		if out.next != nil {
			evt = evt.Time("next_due_date", *out.next)
		}
		evt.Msg("Instance created")

		if out.next == nil {
			result.Exhausted++
			log.Info().
				Str("template_id", t.ID).
				Msg("Template schedule exhausted")
		}
	}

	log.Info().
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("rolled_forward", result.RolledForward).
		Msg("Instance generation finished")

	return result, nil
}

// generate runs the guard, creates the instance with its task copies and
// advances the template, all in one transaction.
func (g *Generator) generate(ctx context.Context, t *inspections.Template, now time.Time) (generateOutcome, error) {
	due := *t.NextDueDate
	occ := NewOccurrence(t, due)

	var out generateOutcome
	err := g.db.Transaction(ctx, func(tx *database.Tx) error {
		store := g.store.WithTx(tx)

		signal, err := CheckDuplicate(ctx, store, occ)
		if err != nil {
			return err
		}
		if signal != SignalNone {
			out.signal = signal
			return nil
		}

		expiry := due.Add(g.expiryFor(t))
		inst := &inspections.Instance{
			Name:             occ.Key,
			Description:      t.Description,
			ParentTemplateID: t.ID,
			UniqueConstraint: occ.Fingerprint,
			Status:           inspections.StatusActive,
			AssignedTo:       t.AssignedTo,
			ExpiryDate:       &expiry,
			CreatedAt:        now,
		}
		if err := store.CreateInstance(ctx, inst); err != nil {
			return err
		}

		if _, err := store.CopyTasks(ctx, t.ID, inst.ID, now); err != nil {
			return fmt.Errorf("copying tasks: %w", err)
		}

		next := Advance(t, &due)
		if err := store.UpdateSchedule(ctx, t.ID, next, &now, now); err != nil {
			return err
		}

		out.instanceID = inst.ID
		out.next = next
		return nil
	})
	if err != nil {
		if database.IsUniqueViolationOn(err, "unique_constraint") {
			return generateOutcome{signal: SignalUniqueIndex}, nil
		}
		return generateOutcome{}, err
	}

	return out, nil
}

func (g *Generator) expiryFor(t *inspections.Template) time.Duration {
	if t.ExpiryHours > 0 {
		return time.Duration(t.ExpiryHours) * time.Hour
	}
	return g.cfg.DefaultExpiry
}
