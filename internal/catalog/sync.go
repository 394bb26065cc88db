package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/inspections"
	"github.com/watzon/maintrack/internal/scheduler"
)

// SyncResult summarises one catalog sync.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Syncer writes catalog definitions to the template store.
type Syncer struct {
	db     *database.DB
	store  *inspections.Store
	clock  clock.Clock
	policy *bluemonday.Policy
}

func NewSyncer(db *database.DB, clk clock.Clock) *Syncer {
	return &Syncer{
		db:     db,
		store:  inspections.NewStore(db),
		clock:  clk,
		policy: bluemonday.StrictPolicy(),
	}
}

// SyncPattern loads every file matched by pattern and syncs it.
func (s *Syncer) SyncPattern(ctx context.Context, pattern string) (*SyncResult, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	defs, err := p.Load()
	if err != nil {
		return nil, err
	}

	return s.Sync(ctx, defs)
}

// Sync upserts each definition in its own transaction. Failures are logged
// and counted without stopping the remaining definitions.
func (s *Syncer) Sync(ctx context.Context, defs []Definition) (*SyncResult, error) {
	result := &SyncResult{}

	for i := range defs {
		def := &defs[i]

		var created bool
		err := s.db.Transaction(ctx, func(tx *database.Tx) error {
			var err error
			created, err = s.syncOne(ctx, s.store.WithTx(tx), def)
			return err
		})
		if err != nil {
			result.Failed++
			log.Error().
				Err(err).
				Str("template_id", def.ID).
				Str("source", def.Source).
				Msg("Failed to sync template")
			continue
		}

		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("Catalog sync finished")

	return result, nil
}

func (s *Syncer) syncOne(ctx context.Context, store *inspections.Store, def *Definition) (bool, error) {
	now := s.clock.Now().UTC()
	next := def.Template(s.policy)

	current, err := store.GetTemplate(ctx, def.ID)
	if errors.Is(err, inspections.ErrNotFound) {
		next.NextDueDate = next.StartDate
		next.CreatedAt = now
		if err := store.CreateTemplate(ctx, next); err != nil {
			return false, err
		}
		log.Info().
			Str("template_id", next.ID).
			Str("frequency", string(next.Frequency)).
			Msg("Template created from catalog")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	next.NextDueDate = current.NextDueDate
	if recurrenceChanged(current, next) {
		due, err := s.firstDueAfterLast(ctx, store, next)
		if err != nil {
			return false, err
		}
		next.NextDueDate = due
	}

	if err := store.UpdateTemplate(ctx, next, now); err != nil {
		return false, err
	}
	if err := store.ReplaceTasks(ctx, next.ID, next.Tasks, now); err != nil {
		return false, fmt.Errorf("replacing tasks: %w", err)
	}

	log.Info().
		Str("template_id", next.ID).
		Time("next_due_date", derefTime(next.NextDueDate)).
		Msg("Template updated from catalog")

	return false, nil
}

func recurrenceChanged(a, b *inspections.Template) bool {
	return a.Frequency != b.Frequency ||
		a.Interval != b.Interval ||
		!sameTime(a.StartDate, b.StartDate) ||
		!sameTime(a.EndDate, b.EndDate)
}

// firstDueAfterLast walks t's recurrence from its start date to the first
// occurrence after the newest existing instance.
func (s *Syncer) firstDueAfterLast(ctx context.Context, store *inspections.Store, t *inspections.Template) (*time.Time, error) {
	latest, err := store.ListInstancesByTemplate(ctx, t.ID, 1)
	if err != nil {
		return nil, err
	}

	due := t.StartDate
	if len(latest) == 0 {
		return due, nil
	}

	for due != nil {
		after, err := scheduler.OccursAfter(t.Frequency, *due, latest[0].Name)
		if err != nil {
			return nil, fmt.Errorf("locating last occurrence: %w", err)
		}
		if after {
			break
		}
		due = scheduler.Advance(t, due)
	}

	return due, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
