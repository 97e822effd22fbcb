package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/pkg/schema"
)

// DefaultInterval is the cadence of the scheduling loop.
const DefaultInterval = 60 * time.Second

// KeyScheduledAt is the trigger-data key carrying the firing instant of a
// scheduled run.
const KeyScheduledAt = "scheduledAt"

// Sweeper runs one sweep of due scheduled actions. Satisfied by *engine.Sweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (*schema.SweepSummary, error)
}

// Runner starts a workflow run. Satisfied by *engine.Executor.
type Runner interface {
	Execute(ctx context.Context, req schema.TriggerRequest) (string, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Scheduler drives the engine on a fixed cadence: every tick runs one sweep
// and fires the scheduled-trigger workflows that are due.
type Scheduler struct {
	store    store.Store
	sweeper  Sweeper
	runner   Runner
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // workflow IDs currently firing (dedup)
}

// New creates a Scheduler. sweeper or runner may be nil to disable that half.
func New(s store.Store, sweeper Sweeper, runner Runner, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		sweeper:  sweeper,
		runner:   runner,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   logging.WithModule(cfg.Logger, "scheduler"),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background loop. An initial tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep, refreshes trigger schedules, and fires due workflows.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.sweeper != nil {
		if _, err := s.sweeper.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", slog.String("error", err.Error()))
		}
	}
	if s.runner == nil {
		return
	}
	if err := s.Sync(ctx); err != nil {
		s.logger.Error("failed to sync trigger schedules", slog.String("error", err.Error()))
	}
	now := s.clock.Now()
	s.fireDue(ctx, now, func(ts *store.TriggerSchedule) bool { return !ts.NextRunAt.After(now) })
}

// Sync makes trigger_schedules mirror the active scheduled-trigger workflows:
// new or changed schedules get a fresh next run, stale ones are removed.
func (s *Scheduler) Sync(ctx context.Context) error {
	active := true
	wfs, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{TriggerType: schema.TriggerScheduled, Active: &active})
	if err != nil {
		return fmt.Errorf("list scheduled workflows: %w", err)
	}
	existing, err := s.store.ListTriggerSchedules(ctx, store.TriggerScheduleFilter{})
	if err != nil {
		return fmt.Errorf("list trigger schedules: %w", err)
	}
	byWorkflow := make(map[string]*store.TriggerSchedule, len(existing))
	for _, ts := range existing {
		byWorkflow[ts.WorkflowID] = ts
	}

	now := s.clock.Now()
	keep := make(map[string]struct{}, len(wfs))
	for _, wf := range wfs {
		expr, err := ScheduleToCron(wf.TriggerConfig)
		if err != nil {
			s.logger.Warn("skipping workflow with invalid schedule",
				slog.String("workflow_id", wf.ID), slog.String("error", err.Error()))
			continue
		}
		keep[wf.ID] = struct{}{}
		if cur, ok := byWorkflow[wf.ID]; ok && cur.CronExpr == expr && cur.Enabled {
			continue
		}
		next, err := NextRun(expr, now)
		if err != nil {
			return err
		}
		if err := s.store.UpsertTriggerSchedule(ctx, &store.TriggerSchedule{
			WorkflowID: wf.ID,
			CronExpr:   expr,
			NextRunAt:  next,
			Enabled:    true,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("upsert schedule for workflow %q: %w", wf.ID, err)
		}
		s.logger.Info("trigger schedule registered",
			slog.String("workflow_id", wf.ID), slog.String("cron", expr), slog.Time("next_run_at", next))
	}

	for id := range byWorkflow {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := s.store.DeleteTriggerSchedule(ctx, id); err != nil {
			return fmt.Errorf("delete schedule for workflow %q: %w", id, err)
		}
	}
	return nil
}

// RecoverMissed fires, once, every schedule whose next run passed while the
// scheduler was stopped.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	if s.runner == nil {
		return nil
	}
	now := s.clock.Now()
	recovered := s.fireDue(ctx, now, func(ts *store.TriggerSchedule) bool { return ts.NextRunAt.Before(now) })
	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time, due func(*store.TriggerSchedule) bool) int {
	schedules, err := s.store.ListTriggerSchedules(ctx, store.TriggerScheduleFilter{DueBefore: &now})
	if err != nil {
		s.logger.Error("failed to list due schedules", slog.String("error", err.Error()))
		return 0
	}

	fired := 0
	for _, ts := range schedules {
		if !due(ts) {
			continue
		}
		if !s.tryAcquire(ts.WorkflowID) {
			continue
		}
		if err := s.fire(ctx, ts, now); err != nil {
			s.logger.Error("failed to fire scheduled workflow",
				slog.String("workflow_id", ts.WorkflowID),
				slog.String("error", err.Error()),
			)
		} else {
			fired++
		}
		s.release(ts.WorkflowID)
	}
	return fired
}

// fire starts one run and advances the schedule whether or not the run
// could start, so a broken workflow does not fire on every tick.
func (s *Scheduler) fire(ctx context.Context, ts *store.TriggerSchedule, now time.Time) error {
	runID, runErr := s.runner.Execute(ctx, schema.TriggerRequest{
		WorkflowID:  ts.WorkflowID,
		TriggerType: schema.TriggerScheduled,
		TriggerData: map[string]any{KeyScheduledAt: now.UTC().Format(time.RFC3339)},
	})

	next, err := NextRun(ts.CronExpr, now)
	if err != nil {
		return err
	}
	if err := s.store.MarkTriggerScheduleRun(ctx, ts.WorkflowID, now, next); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	s.logger.Info("scheduled workflow fired",
		slog.String("workflow_id", ts.WorkflowID), slog.String("run_id", runID), slog.Time("next_run_at", next))
	return nil
}

func (s *Scheduler) tryAcquire(workflowID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[workflowID]; ok {
		return false
	}
	s.inflight[workflowID] = struct{}{}
	return true
}

func (s *Scheduler) release(workflowID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, workflowID)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
