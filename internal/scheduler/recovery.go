package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/inspections"
	"github.com/watzon/maintrack/internal/metrics"
)

// rollForward advances templates whose due date has already passed to their
// first occurrence after now. Missed occurrences get no instance.
func (g *Generator) rollForward(ctx context.Context, now time.Time) (rolled, failed int, err error) {
	stale, err := g.store.ListStaleTemplates(ctx, now, g.cfg.BatchLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("selecting stale templates: %w", err)
	}

	for _, t := range stale {
		missed, next := missedOccurrences(t, now)

		err := g.db.Transaction(ctx, func(tx *database.Tx) error {
			return g.store.WithTx(tx).UpdateSchedule(ctx, t.ID, next, nil, now)
		})
		if err != nil {
			failed++
			metrics.RecordEntityFailure("generate")
			log.Error().
				Err(err).
				Str("template_id", t.ID).
				Msg("Failed to roll schedule forward")
			continue
		}

		rolled++
		metrics.RecordRollForward()

		evt := log.Warn().
			Str("template_id", t.ID).
			Time("stale_due_date", *t.NextDueDate).
			Int("missed_count", missed)
		if next != nil {
			evt = evt.Time("next_due_date", *next)
		}
		evt.Msg("Rolled schedule past missed occurrences")

		if next == nil {
			log.Info().
				Str("template_id", t.ID).
				Msg("Template schedule exhausted")
		}
	}

	return rolled, failed, nil
}

// missedOccurrences counts the occurrences of t at or before now and returns
// the first one after now, or nil if the recurrence ends first.
func missedOccurrences(t *inspections.Template, now time.Time) (int, *time.Time) {
	cur := t.NextDueDate
	missed := 0
	for cur != nil && !cur.After(now) {
		missed++
		cur = Advance(t, cur)
	}
	return missed, cur
}
