package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type singleTradeRepositoryImpl struct {
	store *badgerhold.Store
}

// NewSingleTradeRepositoryImpl returns a new badger SingleTradeRepository
// implementation.
func NewSingleTradeRepositoryImpl(
	store *badgerhold.Store,
) domain.SingleTradeRepository {
	return &singleTradeRepositoryImpl{store}
}

func (r *singleTradeRepositoryImpl) AddSingleTrade(
	_ context.Context, trade *domain.SingleTrade,
) error {
	if err := r.store.Insert(trade.ID, trade); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrSingleTradeAlreadyExists
		}
		return err
	}
	return nil
}

func (r *singleTradeRepositoryImpl) GetSingleTrade(
	_ context.Context, id string,
) (*domain.SingleTrade, error) {
	var trade domain.SingleTrade
	if err := r.store.Get(id, &trade); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrSingleTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (r *singleTradeRepositoryImpl) GetSingleTradesByStatus(
	_ context.Context, statuses ...domain.SingleTradeStatus,
) ([]domain.SingleTrade, error) {
	var query *badgerhold.Query
	if len(statuses) > 0 {
		iface := make([]interface{}, 0, len(statuses))
		for _, s := range statuses {
			iface = append(iface, s)
		}
		query = badgerhold.Where("Status").In(iface...)
	}
	return r.findTrades(query)
}

func (r *singleTradeRepositoryImpl) GetSingleTradesByParent(
	_ context.Context, parentID string,
) ([]domain.SingleTrade, error) {
	query := badgerhold.Where("ParentID").Eq(parentID)
	return r.findTrades(query)
}

func (r *singleTradeRepositoryImpl) UpdateSingleTrade(
	_ context.Context, id string,
	updateFn func(t *domain.SingleTrade) (*domain.SingleTrade, error),
) error {
	return update(r.store, func(tx *badger.Txn) error {
		var trade domain.SingleTrade
		if err := r.store.TxGet(tx, id, &trade); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrSingleTradeNotFound
			}
			return err
		}

		updatedTrade, err := updateFn(&trade)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, id, updatedTrade)
	})
}

func (r *singleTradeRepositoryImpl) findTrades(
	query *badgerhold.Query,
) ([]domain.SingleTrade, error) {
	var trades []domain.SingleTrade
	if err := r.store.Find(&trades, query); err != nil {
		return nil, err
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
	return trades, nil
}
