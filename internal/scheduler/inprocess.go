package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultMaxRetries      = 3
	defaultRetryDelay      = 2 * time.Second
	defaultConstraintPoll  = time.Second
	defaultConstraintLimit = time.Minute
)

// alwaysSatisfied is the default checker on platforms where battery and
// connectivity signals are unavailable; jobs then run unconditionally.
type alwaysSatisfied struct{}

func (alwaysSatisfied) Satisfied(context.Context, Constraints) bool { return true }

type jobEntry struct {
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	periodic bool
}

// defaultScheduler is an in-process Scheduler backed by goroutines.
type defaultScheduler struct {
	mu      sync.Mutex
	jobs    map[string]*jobEntry
	wg      sync.WaitGroup
	baseCtx context.Context
	stop    context.CancelFunc

	checker         ConstraintChecker
	maxRetries      int
	retryDelay      time.Duration
	constraintPoll  time.Duration
	constraintLimit time.Duration
	logger          *slog.Logger
}

// Option configures the scheduler.
type Option func(*defaultScheduler)

// WithConstraintChecker sets the device condition checker.
func WithConstraintChecker(c ConstraintChecker) Option {
	return func(s *defaultScheduler) {
		s.checker = c
	}
}

// WithMaxRetries bounds how many times a job reporting OutcomeRetry is
// re-run within one enqueue.
func WithMaxRetries(n int) Option {
	return func(s *defaultScheduler) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets the pause between retry runs.
func WithRetryDelay(d time.Duration) Option {
	return func(s *defaultScheduler) {
		s.retryDelay = d
	}
}

// WithConstraintWindow sets how often unmet constraints are re-checked
// and how long a job waits for them before giving up.
func WithConstraintWindow(poll, limit time.Duration) Option {
	return func(s *defaultScheduler) {
		s.constraintPoll = poll
		s.constraintLimit = limit
	}
}

// NewInProcess creates a goroutine-backed scheduler.
func NewInProcess(opts ...Option) Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &defaultScheduler{
		jobs:            make(map[string]*jobEntry),
		baseCtx:         ctx,
		stop:            cancel,
		checker:         alwaysSatisfied{},
		maxRetries:      defaultMaxRetries,
		retryDelay:      defaultRetryDelay,
		constraintPoll:  defaultConstraintPoll,
		constraintLimit: defaultConstraintLimit,
		logger:          slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *defaultScheduler) EnqueueUnique(identity string, policy Policy, spec JobSpec) error {
	return s.submit(identity, policy, 0, spec)
}

func (s *defaultScheduler) SchedulePeriodic(identity string, policy Policy, interval time.Duration, spec JobSpec) error {
	return s.submit(identity, policy, interval, spec)
}

func (s *defaultScheduler) submit(identity string, policy Policy, interval time.Duration, spec JobSpec) error {
	s.mu.Lock()

	if existing, ok := s.jobs[identity]; ok && (existing.state.Active() || existing.periodic) {
		if policy == PolicyKeep {
			s.mu.Unlock()
			s.logger.Debug("Work already active, keeping existing", "identity", identity)
			return nil
		}
		existing.cancel()
		s.mu.Unlock()
		<-existing.done
		s.mu.Lock()
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	entry := &jobEntry{
		state:    StateEnqueued,
		cancel:   cancel,
		done:     make(chan struct{}),
		periodic: interval > 0,
	}
	s.jobs[identity] = entry
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(entry.done)
		if entry.periodic {
			s.runPeriodic(ctx, identity, entry, interval, spec)
		} else {
			s.runOnce(ctx, identity, entry, spec)
		}
	}()
	return nil
}

func (s *defaultScheduler) runPeriodic(ctx context.Context, identity string, entry *jobEntry, interval time.Duration, spec JobSpec) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx, identity, entry, spec)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.setState(identity, entry, StateEnqueued)
		}
	}
}

func (s *defaultScheduler) runOnce(ctx context.Context, identity string, entry *jobEntry, spec JobSpec) {
	if !s.awaitConstraints(ctx, spec.Constraints) {
		s.logger.Info("Constraints not met, giving up", "identity", identity, "tag", spec.Tag)
		if spec.OnAbandon != nil {
			spec.OnAbandon()
		}
		s.setState(identity, entry, StateFailed)
		return
	}

	s.setState(identity, entry, StateRunning)

	outcome := spec.Run(ctx)
	for attempt := 0; outcome == OutcomeRetry && attempt < s.maxRetries; attempt++ {
		s.logger.Info("Job asked for retry", "identity", identity, "tag", spec.Tag, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			s.setState(identity, entry, StateFailed)
			return
		case <-time.After(s.retryDelay):
		}
		outcome = spec.Run(ctx)
	}

	switch outcome {
	case OutcomeSuccess:
		s.setState(identity, entry, StateSucceeded)
	default:
		s.logger.Warn("Job failed", "identity", identity, "tag", spec.Tag, "outcome", outcome)
		s.setState(identity, entry, StateFailed)
	}
}

// awaitConstraints polls until the constraints hold, the wait limit
// passes, or the job is cancelled.
func (s *defaultScheduler) awaitConstraints(ctx context.Context, c Constraints) bool {
	if s.checker.Satisfied(ctx, c) {
		return true
	}
	deadline := time.NewTimer(s.constraintLimit)
	defer deadline.Stop()
	ticker := time.NewTicker(s.constraintPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
			if s.checker.Satisfied(ctx, c) {
				return true
			}
		}
	}
}

// setState updates the entry's state unless the identity has been
// replaced by newer work.
func (s *defaultScheduler) setState(identity string, entry *jobEntry, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[identity] == entry {
		entry.state = state
	}
}

func (s *defaultScheduler) QueryState(identity string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[identity]
	if !ok {
		return StateNone
	}
	return entry.state
}

func (s *defaultScheduler) Cancel(identity string) {
	s.mu.Lock()
	entry, ok := s.jobs[identity]
	if ok {
		delete(s.jobs, identity)
	}
	s.mu.Unlock()
	if ok {
		entry.cancel()
		<-entry.done
	}
}

func (s *defaultScheduler) CancelAll() {
	s.mu.Lock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for identity, entry := range s.jobs {
		entries = append(entries, entry)
		delete(s.jobs, identity)
	}
	s.mu.Unlock()
	for _, entry := range entries {
		entry.cancel()
		<-entry.done
	}
}

func (s *defaultScheduler) Stop() {
	s.stop()
	s.wg.Wait()
	s.mu.Lock()
	s.jobs = make(map[string]*jobEntry)
	s.mu.Unlock()
}
