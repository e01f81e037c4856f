package domain

import "context"

// MultiTradeRepository is the abstraction for any kind of database intended
// to persist MultiTrades.
type MultiTradeRepository interface {
	// AddMultiTrade stores a new multi trade.
	AddMultiTrade(ctx context.Context, trade *MultiTrade) error
	// GetMultiTrade returns the multi trade with the given id.
	GetMultiTrade(ctx context.Context, id string) (*MultiTrade, error)
	// GetMultiTradesByStatus returns all multi trades with any of the given
	// statuses, or all of them if none is given.
	GetMultiTradesByStatus(
		ctx context.Context, statuses ...MultiTradeStatus,
	) ([]MultiTrade, error)
	// UpdateMultiTrade allows to commit multiple changes to the same multi
	// trade in a transactional way.
	UpdateMultiTrade(
		ctx context.Context, id string,
		updateFn func(m *MultiTrade) (*MultiTrade, error),
	) error
}
