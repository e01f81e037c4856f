package domain

import "context"

// SingleTradeRepository is the abstraction for any kind of database intended
// to persist SingleTrades.
type SingleTradeRepository interface {
	// AddSingleTrade stores a new single trade.
	AddSingleTrade(ctx context.Context, trade *SingleTrade) error
	// GetSingleTrade returns the single trade with the given id.
	GetSingleTrade(ctx context.Context, id string) (*SingleTrade, error)
	// GetSingleTradesByStatus returns all single trades with any of the given
	// statuses, or all of them if none is given.
	GetSingleTradesByStatus(
		ctx context.Context, statuses ...SingleTradeStatus,
	) ([]SingleTrade, error)
	// GetSingleTradesByParent returns the single trades of a multi trade.
	GetSingleTradesByParent(
		ctx context.Context, parentID string,
	) ([]SingleTrade, error)
	// UpdateSingleTrade allows to commit multiple changes to the same single
	// trade in a transactional way.
	UpdateSingleTrade(
		ctx context.Context, id string,
		updateFn func(t *SingleTrade) (*SingleTrade, error),
	) error
}
