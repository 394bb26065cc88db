package performance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/metrics"
)

// Result summarises one aggregation run.
type Result struct {
	Operators int            `json:"operators"`
	Failed    int            `json:"failed"`
	ByStatus  map[Status]int `json:"by_status"`
}

// Aggregator recomputes and persists operator performance snapshots.
type Aggregator struct {
	db         *database.DB
	store      *Store
	classifier *Classifier
	clock      clock.Clock
	windowDays int
}

func NewAggregator(db *database.DB, clk clock.Clock, cfg *config.PerformanceConfig) (*Aggregator, error) {
	classifier, err := NewClassifier(cfg.Rules)
	if err != nil {
		return nil, err
	}

	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = config.DefaultWindowDays
	}

	return &Aggregator{
		db:         db,
		store:      NewStore(db),
		classifier: classifier,
		clock:      clk,
		windowDays: windowDays,
	}, nil
}

// RunOnce classifies every operator seen in the window, persisting each in
// its own transaction.
func (a *Aggregator) RunOnce(ctx context.Context) (*Result, error) {
	now := a.clock.Now().UTC()
	from := now.Add(-time.Duration(a.windowDays) * 24 * time.Hour)

	snaps, err := a.store.Collect(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("collecting operator activity: %w", err)
	}

	ids := make([]string, 0, len(snaps))
	for id := range snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &Result{ByStatus: make(map[Status]int)}
	for _, id := range ids {
		snap := snaps[id]
		snap.WindowDays = a.windowDays
		snap.ComputedAt = now

		status, err := a.classifier.Classify(snap)
		if err == nil {
			snap.Status = status
			err = a.db.Transaction(ctx, func(tx *database.Tx) error {
				return a.store.WithTx(tx).Upsert(ctx, snap)
			})
		}
		if err != nil {
			result.Failed++
			metrics.RecordEntityFailure("performance")
			log.Error().
				Err(err).
				Str("operator_id", id).
				Msg("Failed to update operator performance")
			continue
		}

		result.Operators++
		result.ByStatus[snap.Status]++
		log.Info().
			Str("operator_id", id).
			Str("status", string(snap.Status)).
			Float64("completion_rate", snap.CompletionRate).
			Float64("pass_rate", snap.PassRate).
			Int("penalty_points", snap.PenaltyPoints).
			Msg("Operator performance updated")
	}

	counts := make(map[string]int, len(result.ByStatus))
	for status, n := range result.ByStatus {
		counts[string(status)] = n
	}
	metrics.UpdateOperatorStatuses(counts)

	return result, nil
}
