package ports

import "github.com/tdex-network/tdex-broker/internal/core/domain"

// RepoManager gives access to all the repositories of the broker.
type RepoManager interface {
	MultiTradeRepository() domain.MultiTradeRepository
	SingleTradeRepository() domain.SingleTradeRepository
	JobRepository() domain.JobRepository
	Close()
}
