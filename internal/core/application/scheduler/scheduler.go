package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/pkg/stats"
	"golang.org/x/sync/errgroup"
)

const (
	defaultNumWorkers   = 8
	defaultPollInterval = 500 * time.Millisecond
	defaultRetryDelay   = time.Second
	maxRetryDelay       = time.Minute
	dueJobsBatchSize    = 100
)

var (
	// ErrUnknownQueue ...
	ErrUnknownQueue = errors.New("queue has no registered step function")
	// ErrAlreadyStarted ...
	ErrAlreadyStarted = errors.New("scheduler already started")

	errJobRescheduled = errors.New("job rescheduled while running")
)

// StepFunc advances the unit with the given id. It must derive where the
// unit is purely from its persisted state, so that it can be invoked again
// after a crash. A returned error makes the scheduler retry the step later.
type StepFunc func(ctx context.Context, unitID string) error

// Config ...
type Config struct {
	Repository   domain.JobRepository
	NumWorkers   int
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// Scheduler runs the step functions of the registered queues on a pool of
// workers. Wake-ups are persisted jobs, so they survive restarts. A unit is
// processed by at most one worker at a time, different units run
// concurrently.
type Scheduler struct {
	repo         domain.JobRepository
	numWorkers   int
	pollInterval time.Duration
	retryDelay   time.Duration

	lock     sync.RWMutex
	queues   map[string]StepFunc
	inflight map[string]struct{}

	jobs   chan domain.Job
	wakeup chan struct{}
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New returns a scheduler that must be started with Start.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("missing job repository")
	}
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = defaultNumWorkers
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Scheduler{
		repo:         cfg.Repository,
		numWorkers:   numWorkers,
		pollInterval: pollInterval,
		retryDelay:   retryDelay,
		queues:       make(map[string]StepFunc),
		inflight:     make(map[string]struct{}),
		jobs:         make(chan domain.Job, numWorkers),
		wakeup:       make(chan struct{}, 1),
	}, nil
}

// Register maps the named queue to its step function.
func (s *Scheduler) Register(queue string, fn StepFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.queues[queue] = fn
}

// Schedule persists a wake-up of the unit at runAt, replacing any pending
// one for the same queue and unit.
func (s *Scheduler) Schedule(
	ctx context.Context, queue, unitID string, runAt time.Time,
) error {
	if s.stepFunc(queue) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}

	job := domain.NewJob(queue, unitID, uuid.New().String(), runAt)
	if err := s.repo.UpsertJob(ctx, job); err != nil {
		return err
	}
	if !runAt.After(time.Now()) {
		s.wake()
	}
	return nil
}

// Start spawns the dispatcher and the workers. Jobs left over from a
// previous run are picked up by the first scan.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = group

	for i := 0; i < s.numWorkers; i++ {
		group.Go(func() error {
			s.work(ctx)
			return nil
		})
	}
	group.Go(func() error {
		s.dispatch(ctx)
		return nil
	})

	log.Debugf("scheduler started with %d workers", s.numWorkers)
	return nil
}

// Stop waits for running steps to return. Pending jobs stay persisted.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	cancel, group := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	//nolint
	group.Wait()
	log.Debug("scheduler stopped")
}

// Pending returns the number of persisted jobs.
func (s *Scheduler) Pending(ctx context.Context) (int, error) {
	return s.repo.CountJobs(ctx)
}

// InFlight returns the number of jobs being processed.
func (s *Scheduler) InFlight() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.inflight)
}

func (s *Scheduler) dispatch(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.dispatchDueJobs(ctx)
		s.countPending(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wakeup:
		}
	}
}

func (s *Scheduler) dispatchDueJobs(ctx context.Context) {
	jobs, err := s.repo.GetDueJobs(ctx, time.Now(), dueJobsBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("failed to fetch due jobs")
		}
		return
	}

	for _, job := range jobs {
		if !s.markInFlight(job.ID) {
			continue
		}
		select {
		case s.jobs <- job:
		case <-ctx.Done():
			s.unmarkInFlight(job.ID)
			return
		}
	}
}

func (s *Scheduler) countPending(ctx context.Context) {
	pending, err := s.Pending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Debug("failed to count pending jobs")
		}
		return
	}
	stats.JobsPending.Set(float64(pending))
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.run(ctx, job)
			s.unmarkInFlight(job.ID)
			// The step might have re-scheduled its unit while in flight.
			s.wake()
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job domain.Job) {
	stats.JobsInFlight.Inc()
	defer stats.JobsInFlight.Dec()

	fn := s.stepFunc(job.Queue)
	if fn == nil {
		log.Warnf("dropping job %s: %s", job.ID, ErrUnknownQueue)
		s.deleteJob(ctx, job)
		return
	}

	if err := fn(ctx, job.UnitID); err != nil {
		if ctx.Err() != nil {
			return
		}
		delay := s.backoff(job.Attempts)
		log.WithError(err).Warnf(
			"step of %s failed (attempt %d), retrying in %s",
			job.ID, job.Attempts+1, delay,
		)
		s.retryJob(ctx, job, delay)
		return
	}

	s.deleteJob(ctx, job)
}

func (s *Scheduler) retryJob(ctx context.Context, job domain.Job, delay time.Duration) {
	err := s.repo.UpdateJob(ctx, job.ID, func(j *domain.Job) (*domain.Job, error) {
		if j.Seq != job.Seq {
			return nil, errJobRescheduled
		}
		j.Attempts++
		j.RunAt = time.Now().Add(delay).UnixNano()
		return j, nil
	})
	if err != nil && !errors.Is(err, errJobRescheduled) &&
		!errors.Is(err, domain.ErrJobNotFound) {
		log.WithError(err).Warnf("failed to retry job %s", job.ID)
	}
}

func (s *Scheduler) deleteJob(ctx context.Context, job domain.Job) {
	if _, err := s.repo.DeleteJob(ctx, job.ID, job.Seq); err != nil {
		log.WithError(err).Warnf("failed to delete job %s", job.ID)
	}
}

func (s *Scheduler) backoff(attempts int) time.Duration {
	delay := s.retryDelay
	for i := 0; i < attempts && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (s *Scheduler) stepFunc(queue string) StepFunc {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.queues[queue]
}

func (s *Scheduler) markInFlight(jobID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) unmarkInFlight(jobID string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.inflight, jobID)
}

func (s *Scheduler) wake() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}
