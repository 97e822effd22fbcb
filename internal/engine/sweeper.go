package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/metrics"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/internal/tracing"
	"github.com/rendis/lendflow/pkg/schema"
)

// Sweeper defaults.
const (
	DefaultBatchSize    = store.DefaultClaimLimit
	DefaultLeaseTimeout = 10 * time.Minute
)

// SweeperConfig holds configuration for the sweeper.
type SweeperConfig struct {
	BatchSize    int
	LeaseTimeout time.Duration // running entries claimed longer ago are reclaimed; < 0 disables
	Hub          streaming.EventHub
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Sweeper claims due scheduled actions and runs them through the dispatcher.
type Sweeper struct {
	store      store.Store
	dispatcher *Dispatcher
	ledger     *Ledger
	batchSize  int
	lease      time.Duration
	clock      clockwork.Clock
	events     publisher
	logger     *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(s store.Store, dispatcher *Dispatcher, ledger *Ledger, cfg SweeperConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LeaseTimeout == 0 {
		cfg.LeaseTimeout = DefaultLeaseTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := logging.WithModule(cfg.Logger, "sweeper")
	return &Sweeper{
		store:      s,
		dispatcher: dispatcher,
		ledger:     ledger,
		batchSize:  cfg.BatchSize,
		lease:      cfg.LeaseTimeout,
		clock:      cfg.Clock,
		events:     publisher{hub: cfg.Hub, logger: logger},
		logger:     logger,
	}
}

// Sweep claims up to one batch of due entries and processes them
// sequentially. Claim errors are returned; a failure on one entry is logged,
// counted as failed, and the batch continues. Entries another sweep took over
// while queued are counted as skipped.
func (s *Sweeper) Sweep(ctx context.Context) (*schema.SweepSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "sweep")
	defer span.End()
	start := time.Now()

	now := s.clock.Now()
	params := store.ClaimParams{Limit: s.batchSize, Now: now}
	if s.lease > 0 {
		params.StaleBefore = now.Add(-s.lease)
	}

	claimed, err := s.store.ClaimDueScheduledActions(ctx, params)
	if err != nil {
		err = storeError(err, "claim due scheduled actions")
		tracing.SetError(span, err)
		return nil, err
	}

	summary := &schema.SweepSummary{Results: []schema.ActionResult{}}
	for _, sa := range claimed {
		if ctx.Err() != nil {
			// Unprocessed claims stay running and are reclaimed once their
			// lease expires.
			s.logger.WarnContext(ctx, "sweep interrupted", "unprocessed", len(claimed)-summary.Processed-summary.Skipped)
			break
		}
		result, outcome := s.process(ctx, sa)
		if outcome == entryLost {
			summary.Skipped++
			continue
		}
		summary.Processed++
		if outcome == entryDone && result.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, result)
	}

	span.SetAttributes(attribute.Int(tracing.ProcessedKey, summary.Processed))
	metrics.RecordSweep(summary.Successful, summary.Failed, time.Since(start))
	if summary.Processed > 0 {
		s.logger.InfoContext(ctx, "sweep completed",
			"processed", summary.Processed, "successful", summary.Successful, "failed", summary.Failed, "skipped", summary.Skipped)
		s.events.publish(ctx, streaming.StreamEvent{
			EventType: schema.EventSweepCompleted,
			Timestamp: s.clock.Now(),
			Payload:   map[string]any{"processed": summary.Processed, "successful": summary.Successful, "failed": summary.Failed},
		})
	}
	return summary, nil
}

type entryOutcome int

const (
	entryDone entryOutcome = iota
	// A store write failed; the entry may still be running.
	entryStoreFailed
	// Another sweep reclaimed the entry.
	entryLost
)

// process runs one claimed entry. The lease is renewed under the claim's
// attempt before dispatching, so an entry another sweep has taken over is
// skipped instead of executed twice.
func (s *Sweeper) process(ctx context.Context, sa *store.ScheduledAction) (schema.ActionResult, entryOutcome) {
	ctx = logging.WithRun(ctx, sa.WorkflowID, sa.RunID)
	log := logging.LogWith(ctx, s.logger).With("scheduled_action_id", sa.ID, "action_id", sa.Action.ID, "attempt", sa.Attempts)

	if err := s.store.RenewScheduledLease(ctx, sa, s.clock.Now()); err != nil {
		if schema.IsCode(err, schema.ErrCodeConflict) {
			log.WarnContext(ctx, "scheduled action taken over by another sweep", "error", err)
			return schema.ActionResult{}, entryLost
		}
		log.ErrorContext(ctx, "lease renewal failed", "error", err)
		return schema.ActionResult{
			ActionID:   sa.Action.ID,
			ActionType: sa.Action.Type,
			Message:    schema.Message(err),
			Scheduled:  true,
			RecordedAt: s.clock.Now(),
		}, entryStoreFailed
	}

	result := s.dispatcher.Dispatch(ctx, sa.Action, sa.TriggerData)
	result.Scheduled = true

	// The action has run; record it even if the caller has gone away.
	writeCtx := context.WithoutCancel(ctx)
	if err := s.ledger.FinishScheduled(writeCtx, sa, result); err != nil {
		if schema.IsCode(err, schema.ErrCodeConflict) {
			log.ErrorContext(ctx, "lease expired during dispatch; result discarded", "error", err)
			return result, entryLost
		}
		log.ErrorContext(ctx, "finishing scheduled action failed", "error", err)
		return result, entryStoreFailed
	}
	if _, err := s.ledger.Reconcile(writeCtx, sa.RunID); err != nil {
		log.ErrorContext(ctx, "reconciling run failed", "error", err)
		return result, entryStoreFailed
	}
	return result, entryDone
}
