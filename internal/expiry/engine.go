package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/inspections"
	"github.com/watzon/maintrack/internal/metrics"
)

// Options tune the scans.
type Options struct {
	// CompleteEmpty makes instances without tasks completion-eligible.
	CompleteEmpty bool

	// BatchLimit caps instances per scan (0 = unlimited).
	BatchLimit int
}

// Result summarises one engine run.
type Result struct {
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Engine runs the expire and completion scans.
type Engine struct {
	db    *database.DB
	store *inspections.Store
	clock clock.Clock
	opts  Options
}

func NewEngine(db *database.DB, clk clock.Clock, opts Options) *Engine {
	return &Engine{
		db:    db,
		store: inspections.NewStore(db),
		clock: clk,
		opts:  opts,
	}
}

// RunOnce runs the expire scan and then the completion scan. Each instance is
// updated in its own transaction; per-instance failures are logged and
// counted. An error is returned only when a scan cannot select its instances.
func (e *Engine) RunOnce(ctx context.Context) (*Result, error) {
	now := e.clock.Now().UTC()
	result := &Result{}

	if err := e.expireScan(ctx, now, result); err != nil {
		return nil, err
	}
	if err := e.completionScan(ctx, now, result); err != nil {
		return nil, err
	}

	log.Info().
		Int("expired", result.Expired).
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Msg("Expiry run finished")

	return result, nil
}

func (e *Engine) expireScan(ctx context.Context, now time.Time, result *Result) error {
	instances, err := e.store.ListExpirable(ctx, now, e.opts.BatchLimit)
	if err != nil {
		return fmt.Errorf("selecting expirable instances: %w", err)
	}

	for _, inst := range instances {
		overdue := now.Sub(*inst.ExpiryDate)
		penalty := Penalty(overdue)

		var changed bool
		err := e.db.Transaction(ctx, func(tx *database.Tx) error {
			var err error
			changed, err = e.store.WithTx(tx).MarkExpired(ctx, inst.ID, penalty, now)
			return err
		})
		if err != nil {
			result.Failed++
			metrics.RecordEntityFailure("expire")
			log.Error().
				Err(err).
				Str("instance_id", inst.ID).
				Msg("Failed to expire instance")
			continue
		}
		if !changed {
			log.Debug().
				Str("instance_id", inst.ID).
				Msg("Instance already closed, not expiring")
			continue
		}

		result.Expired++
		metrics.RecordInstanceExpired(penalty)
		log.Info().
			Str("instance_id", inst.ID).
			Str("template_id", inst.ParentTemplateID).
			Float64("hours_overdue", overdue.Hours()).
			Int("penalty", penalty).
			Msg("Instance expired")
	}

	return nil
}

func (e *Engine) completionScan(ctx context.Context, now time.Time, result *Result) error {
	instances, err := e.store.ListCompletable(ctx, e.opts.CompleteEmpty, e.opts.BatchLimit)
	if err != nil {
		return fmt.Errorf("selecting completable instances: %w", err)
	}

	for _, inst := range instances {
		var changed bool
		err := e.db.Transaction(ctx, func(tx *database.Tx) error {
			var err error
			changed, err = e.store.WithTx(tx).MarkCompleted(ctx, inst.ID, inst.AssignedTo, now)
			return err
		})
		if err != nil {
			result.Failed++
			metrics.RecordEntityFailure("expire")
			log.Error().
				Err(err).
				Str("instance_id", inst.ID).
				Msg("Failed to complete instance")
			continue
		}
		if !changed {
			continue
		}

		result.Completed++
		metrics.RecordInstanceCompleted()
		log.Info().
			Str("instance_id", inst.ID).
			Str("completed_by", inst.AssignedTo).
			Msg("Instance completed")
	}

	return nil
}
