package dbbadger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type jobRepositoryImpl struct {
	store *badgerhold.Store
}

// NewJobRepositoryImpl returns a new badger JobRepository implementation.
func NewJobRepositoryImpl(store *badgerhold.Store) domain.JobRepository {
	return &jobRepositoryImpl{store}
}

func (r *jobRepositoryImpl) UpsertJob(_ context.Context, job domain.Job) error {
	return r.store.Upsert(job.ID, &job)
}

func (r *jobRepositoryImpl) GetJob(_ context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.store.Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepositoryImpl) UpdateJob(
	_ context.Context, id string,
	updateFn func(j *domain.Job) (*domain.Job, error),
) error {
	return update(r.store, func(tx *badger.Txn) error {
		var job domain.Job
		if err := r.store.TxGet(tx, id, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrJobNotFound
			}
			return err
		}

		updatedJob, err := updateFn(&job)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, id, updatedJob)
	})
}

func (r *jobRepositoryImpl) GetDueJobs(
	_ context.Context, now time.Time, limit int,
) ([]domain.Job, error) {
	query := badgerhold.Where("RunAt").Le(now.UnixNano()).SortBy("RunAt", "ID")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []domain.Job
	if err := r.store.Find(&jobs, query); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRepositoryImpl) DeleteJob(_ context.Context, id, seq string) (bool, error) {
	deleted := false
	err := update(r.store, func(tx *badger.Txn) error {
		deleted = false

		var job domain.Job
		if err := r.store.TxGet(tx, id, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return nil
			}
			return err
		}
		if job.Seq != seq {
			return nil
		}

		if err := r.store.TxDelete(tx, id, domain.Job{}); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (r *jobRepositoryImpl) CountJobs(_ context.Context) (int, error) {
	count, err := r.store.Count(&domain.Job{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
