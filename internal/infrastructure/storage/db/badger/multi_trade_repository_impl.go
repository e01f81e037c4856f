package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type multiTradeRepositoryImpl struct {
	store *badgerhold.Store
}

// NewMultiTradeRepositoryImpl returns a new badger MultiTradeRepository
// implementation.
func NewMultiTradeRepositoryImpl(
	store *badgerhold.Store,
) domain.MultiTradeRepository {
	return &multiTradeRepositoryImpl{store}
}

func (r *multiTradeRepositoryImpl) AddMultiTrade(
	_ context.Context, trade *domain.MultiTrade,
) error {
	if err := r.store.Insert(trade.ID, trade); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrMultiTradeAlreadyExists
		}
		return err
	}
	return nil
}

func (r *multiTradeRepositoryImpl) GetMultiTrade(
	_ context.Context, id string,
) (*domain.MultiTrade, error) {
	var trade domain.MultiTrade
	if err := r.store.Get(id, &trade); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrMultiTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (r *multiTradeRepositoryImpl) GetMultiTradesByStatus(
	_ context.Context, statuses ...domain.MultiTradeStatus,
) ([]domain.MultiTrade, error) {
	var query *badgerhold.Query
	if len(statuses) > 0 {
		iface := make([]interface{}, 0, len(statuses))
		for _, s := range statuses {
			iface = append(iface, s)
		}
		query = badgerhold.Where("Status").In(iface...)
	}

	var trades []domain.MultiTrade
	if err := r.store.Find(&trades, query); err != nil {
		return nil, err
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
	return trades, nil
}

func (r *multiTradeRepositoryImpl) UpdateMultiTrade(
	_ context.Context, id string,
	updateFn func(m *domain.MultiTrade) (*domain.MultiTrade, error),
) error {
	return update(r.store, func(tx *badger.Txn) error {
		var trade domain.MultiTrade
		if err := r.store.TxGet(tx, id, &trade); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrMultiTradeNotFound
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
