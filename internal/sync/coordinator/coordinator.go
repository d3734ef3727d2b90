// Package coordinator is the top-level dispatch authority for sync
// work: it maps triggers to scheduler jobs, deduplicates across
// trigger sources, and publishes an advisory status.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maquinaplus/fieldsync/internal/scheduler"
	"github.com/maquinaplus/fieldsync/internal/sync/worker"
	"github.com/maquinaplus/fieldsync/internal/telemetry"
)

// Status is the coarse advisory state of the sync subsystem. It is
// published for observers (UI badges, logs) and must never gate
// correctness; the scheduler's state query is authoritative.
type Status string

const (
	// StatusIdle means no sync activity
	StatusIdle Status = "IDLE"

	// StatusCoordinating means a trigger is being dispatched
	StatusCoordinating Status = "COORDINATING"

	// StatusSyncing means a sync pass is running
	StatusSyncing Status = "SYNCING"

	// StatusCleaning means a cleanup pass is running
	StatusCleaning Status = "CLEANING"

	// StatusError means the last pass failed
	StatusError Status = "ERROR"
)

// Coordinator dispatches sync triggers.
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/maquinaplus/fieldsync/internal/sync/coordinator Coordinator
type Coordinator interface {
	// Coordinate enqueues the sync work for a trigger, or silently
	// absorbs it when equivalent work is already in flight.
	Coordinate(ctx context.Context, trigger Trigger) error

	// SchedulePeriodicSync starts the recurring full sync.
	SchedulePeriodicSync() error

	// SchedulePeriodicCleanup starts the recurring cleanup pass.
	SchedulePeriodicCleanup() error

	// ExecuteImmediateCleanup enqueues a one-shot cleanup pass. Unsafe
	// while a sync pass may be running; the periodic schedule is the
	// normal path.
	ExecuteImmediateCleanup(ctx context.Context) error

	// Status returns the current advisory status.
	Status() Status

	// Subscribe returns a channel receiving advisory status changes.
	// Slow receivers miss updates rather than blocking the publisher.
	Subscribe() <-chan Status

	// CancelAll stops all scheduled and in-flight sync work.
	CancelAll()
}

type defaultCoordinator struct {
	sched   scheduler.Scheduler
	data    *worker.DataWorker
	images  *worker.ImageWorker
	cleanup *worker.CleanupWorker

	syncInterval    time.Duration
	cleanupInterval time.Duration
	constraints     scheduler.Constraints
	metrics         *telemetry.SyncMetrics
	logger          *slog.Logger

	mu     sync.Mutex
	status Status
	subs   []chan Status
}

// Option configures the coordinator.
type Option func(*defaultCoordinator)

// WithSyncInterval sets the periodic sync cadence.
func WithSyncInterval(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.syncInterval = d
	}
}

// WithCleanupInterval sets the periodic cleanup cadence.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.cleanupInterval = d
	}
}

// WithSyncMetrics enables pass duration metrics.
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = m
	}
}

// WithConstraints overrides the execution constraints applied to sync
// jobs.
func WithConstraints(cons scheduler.Constraints) Option {
	return func(c *defaultCoordinator) {
		c.constraints = cons
	}
}

// New creates a sync coordinator.
func New(
	sched scheduler.Scheduler,
	data *worker.DataWorker,
	images *worker.ImageWorker,
	cleanup *worker.CleanupWorker,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		sched:           sched,
		data:            data,
		images:          images,
		cleanup:         cleanup,
		syncInterval:    15 * time.Minute,
		cleanupInterval: 24 * time.Hour,
		constraints: scheduler.Constraints{
			RequireConnectivity:  true,
			RequireBatteryNotLow: true,
		},
		status: StatusIdle,
		logger: slog.Default().With("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChainedImageEnqueuer returns the callback a data worker uses to
// chain the image pass. Keep-if-exists: if a chained image job is
// already queued it covers this run's images too.
func ChainedImageEnqueuer(sched scheduler.Scheduler, images *worker.ImageWorker) func() error {
	return func() error {
		return sched.EnqueueUnique(WorkImagesChained, scheduler.PolicyKeep, scheduler.JobSpec{
			Tag: "images-chained",
			Run: images.Run,
		})
	}
}

func (c *defaultCoordinator) Coordinate(_ context.Context, trigger Trigger) error {
	c.setStatus(StatusCoordinating)

	identity := trigger.WorkIdentity()
	if state := c.sched.QueryState(identity); state.Active() {
		// Equivalent work already queued or running; absorb silently.
		c.logger.Debug("Trigger absorbed by in-flight work", "identity", identity, "state", state)
		c.setStatus(StatusIdle)
		return nil
	}

	spec := c.syncSpec(identity, trigger.SyncScope())
	if err := c.sched.EnqueueUnique(identity, scheduler.PolicyReplace, spec); err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("failed to enqueue sync for %s: %w", identity, err)
	}
	return nil
}

// syncSpec builds the job body for one trigger. Image-only identities
// run the image worker directly; everything else runs a data pass.
func (c *defaultCoordinator) syncSpec(identity string, scope worker.Scope) scheduler.JobSpec {
	run := func(ctx context.Context) scheduler.Outcome {
		return c.data.Run(ctx, scope)
	}
	if identity == WorkImagesManual {
		run = c.images.Run
	}

	return scheduler.JobSpec{
		Tag:         string(scope),
		Constraints: c.constraints,
		// Abandoned before running (constraints never held): the wrapped
		// Run never executes its status transitions, so report here.
		OnAbandon: func() {
			c.logger.Warn("Sync abandoned waiting for device constraints", "identity", identity)
			c.setStatus(StatusError)
		},
		Run: func(ctx context.Context) scheduler.Outcome {
			c.setStatus(StatusSyncing)
			start := time.Now()

			outcome := run(ctx)

			c.metrics.RecordSyncPass(ctx, identity, time.Since(start), outcome == scheduler.OutcomeSuccess)
			if outcome == scheduler.OutcomeFailure {
				c.setStatus(StatusError)
			} else {
				c.setStatus(StatusIdle)
			}
			return outcome
		},
	}
}

func (c *defaultCoordinator) SchedulePeriodicSync() error {
	spec := c.syncSpec(WorkPeriodic, worker.ScopeAllData)
	if err := c.sched.SchedulePeriodic(WorkPeriodic, scheduler.PolicyReplace, c.syncInterval, spec); err != nil {
		return fmt.Errorf("failed to schedule periodic sync: %w", err)
	}
	c.logger.Info("Periodic sync scheduled", "interval", c.syncInterval)
	return nil
}

func (c *defaultCoordinator) SchedulePeriodicCleanup() error {
	// Keep-if-exists so a coordinator restart doesn't stack schedules.
	err := c.sched.SchedulePeriodic(WorkCleanupPeriodic, scheduler.PolicyKeep, c.cleanupInterval, c.cleanupSpec())
	if err != nil {
		return fmt.Errorf("failed to schedule periodic cleanup: %w", err)
	}
	c.logger.Info("Periodic cleanup scheduled", "interval", c.cleanupInterval)
	return nil
}

func (c *defaultCoordinator) ExecuteImmediateCleanup(_ context.Context) error {
	if state := c.sched.QueryState(WorkCleanupImmediate); state.Active() {
		return nil
	}
	if err := c.sched.EnqueueUnique(WorkCleanupImmediate, scheduler.PolicyKeep, c.cleanupSpec()); err != nil {
		return fmt.Errorf("failed to enqueue cleanup: %w", err)
	}
	return nil
}

func (c *defaultCoordinator) cleanupSpec() scheduler.JobSpec {
	return scheduler.JobSpec{
		Tag: "cleanup",
		Run: func(ctx context.Context) scheduler.Outcome {
			c.setStatus(StatusCleaning)
			defer c.setStatus(StatusIdle)
			return c.cleanup.Run(ctx)
		},
	}
}

func (c *defaultCoordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *defaultCoordinator) Subscribe() <-chan Status {
	ch := make(chan Status, 8)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

func (c *defaultCoordinator) CancelAll() {
	c.sched.CancelAll()
	c.setStatus(StatusIdle)
}

func (c *defaultCoordinator) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == s {
		return
	}
	c.status = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
