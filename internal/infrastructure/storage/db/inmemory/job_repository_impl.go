package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

type jobRepositoryImpl struct {
	locker *sync.Mutex
	jobs   map[string]domain.Job
}

// NewJobRepositoryImpl returns a new inmemory JobRepository implementation.
func NewJobRepositoryImpl() domain.JobRepository {
	return &jobRepositoryImpl{
		locker: &sync.Mutex{},
		jobs:   make(map[string]domain.Job),
	}
}

func (r *jobRepositoryImpl) UpsertJob(_ context.Context, job domain.Job) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	r.jobs[job.ID] = job
	return nil
}

func (r *jobRepositoryImpl) GetJob(_ context.Context, id string) (*domain.Job, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (r *jobRepositoryImpl) UpdateJob(
	_ context.Context, id string,
	updateFn func(j *domain.Job) (*domain.Job, error),
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	updatedJob, err := updateFn(&job)
	if err != nil {
		return err
	}
	r.jobs[id] = *updatedJob
	return nil
}

func (r *jobRepositoryImpl) GetDueJobs(
	_ context.Context, now time.Time, limit int,
) ([]domain.Job, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	jobs := make([]domain.Job, 0)
	for _, job := range r.jobs {
		if job.IsDue(now) {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].RunAt == jobs[j].RunAt {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].RunAt < jobs[j].RunAt
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *jobRepositoryImpl) DeleteJob(_ context.Context, id, seq string) (bool, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Seq != seq {
		return false, nil
	}
	delete(r.jobs, id)
	return true, nil
}

func (r *jobRepositoryImpl) CountJobs(_ context.Context) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return len(r.jobs), nil
}
