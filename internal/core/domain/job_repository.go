package domain

import (
	"context"
	"time"
)

// JobRepository persists the scheduled wake-ups of the state machines so
// that pending work survives a restart.
type JobRepository interface {
	// UpsertJob stores the job, replacing any existing one with the same id.
	UpsertJob(ctx context.Context, job Job) error
	// GetJob ...
	GetJob(ctx context.Context, id string) (*Job, error)
	// UpdateJob allows to commit multiple changes to the same job in a
	// transactional way.
	UpdateJob(
		ctx context.Context, id string, updateFn func(j *Job) (*Job, error),
	) error
	// GetDueJobs returns up to limit jobs due at the given time, oldest first.
	GetDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// DeleteJob removes the job only if its sequence token still matches,
	// meaning it was not re-scheduled in the meantime. It returns whether
	// the job was deleted.
	DeleteJob(ctx context.Context, id, seq string) (bool, error)
	// CountJobs ...
	CountJobs(ctx context.Context) (int, error)
}
