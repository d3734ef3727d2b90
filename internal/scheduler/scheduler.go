// Package scheduler provides unique-by-identity background job
// execution with periodic scheduling and execution constraints.
package scheduler

import (
	"context"
	"time"
)

// Policy decides what happens when a job is enqueued under an identity
// that already has work pending or running.
type Policy string

const (
	// PolicyKeep keeps the existing work and drops the new request
	PolicyKeep Policy = "KEEP"

	// PolicyReplace cancels the existing work and enqueues the new
	// request in its place
	PolicyReplace Policy = "REPLACE"
)

// State is the observable lifecycle of work under an identity.
type State string

const (
	// StateNone means no work is known under the identity
	StateNone State = "NONE"

	// StateEnqueued means work is waiting to run
	StateEnqueued State = "ENQUEUED"

	// StateRunning means work is executing right now
	StateRunning State = "RUNNING"

	// StateSucceeded means the last run finished successfully
	StateSucceeded State = "SUCCEEDED"

	// StateFailed means the last run gave up
	StateFailed State = "FAILED"
)

// Active reports whether the state still has work in flight.
func (s State) Active() bool {
	return s == StateEnqueued || s == StateRunning
}

// Outcome is what a job run reports back to the scheduler.
type Outcome string

const (
	// OutcomeSuccess marks the run complete
	OutcomeSuccess Outcome = "SUCCESS"

	// OutcomeRetry asks the scheduler to run the job again
	OutcomeRetry Outcome = "RETRY"

	// OutcomeFailure marks the run failed with no retry
	OutcomeFailure Outcome = "FAILURE"
)

// JobFunc is the unit of work. It must honor ctx cancellation.
type JobFunc func(ctx context.Context) Outcome

// Constraints gate job execution on device conditions. A job whose
// constraints are not met waits until they are, or until cancelled.
type Constraints struct {
	RequireConnectivity  bool
	RequireBatteryNotLow bool
}

// JobSpec describes a job to enqueue or schedule.
type JobSpec struct {
	Run         JobFunc
	Constraints Constraints

	// OnAbandon, when set, is called if the job is dropped without
	// running because its constraints never became satisfied.
	OnAbandon func()

	// Tag is a human-readable label for logs.
	Tag string
}

// ConstraintChecker answers whether the device currently satisfies a
// constraint set.
//
//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/maquinaplus/fieldsync/internal/scheduler ConstraintChecker,Scheduler
type ConstraintChecker interface {
	Satisfied(ctx context.Context, c Constraints) bool
}

// Scheduler runs background jobs keyed by a unique work identity.
type Scheduler interface {
	// EnqueueUnique submits work under an identity. With PolicyKeep an
	// active identity absorbs the request; with PolicyReplace the
	// active work is cancelled first.
	EnqueueUnique(identity string, policy Policy, spec JobSpec) error

	// SchedulePeriodic runs the spec immediately and then on every
	// interval tick, under the same uniqueness rules.
	SchedulePeriodic(identity string, policy Policy, interval time.Duration, spec JobSpec) error

	// QueryState reports the current state of the identity.
	QueryState(identity string) State

	// Cancel stops in-flight and periodic work under the identity.
	Cancel(identity string)

	// CancelAll stops everything.
	CancelAll()

	// Stop cancels all work and waits for running jobs to return.
	Stop()
}
