package inmemory

import (
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

type repoManager struct {
	multiTradeRepository  domain.MultiTradeRepository
	singleTradeRepository domain.SingleTradeRepository
	jobRepository         domain.JobRepository
}

// NewRepoManager returns a RepoManager whose repositories keep everything in
// memory. Nothing survives a restart.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		multiTradeRepository:  NewMultiTradeRepositoryImpl(),
		singleTradeRepository: NewSingleTradeRepositoryImpl(),
		jobRepository:         NewJobRepositoryImpl(),
	}
}

func (r *repoManager) MultiTradeRepository() domain.MultiTradeRepository {
	return r.multiTradeRepository
}

func (r *repoManager) SingleTradeRepository() domain.SingleTradeRepository {
	return r.singleTradeRepository
}

func (r *repoManager) JobRepository() domain.JobRepository {
	return r.jobRepository
}

func (r *repoManager) Close() {}
