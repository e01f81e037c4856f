package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

type singleTradeRepositoryImpl struct {
	locker *sync.Mutex
	trades map[string]domain.SingleTrade
}

// NewSingleTradeRepositoryImpl returns a new inmemory SingleTradeRepository
// implementation.
func NewSingleTradeRepositoryImpl() domain.SingleTradeRepository {
	return &singleTradeRepositoryImpl{
		locker: &sync.Mutex{},
		trades: make(map[string]domain.SingleTrade),
	}
}

func (r *singleTradeRepositoryImpl) AddSingleTrade(
	_ context.Context, trade *domain.SingleTrade,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.trades[trade.ID]; ok {
		return domain.ErrSingleTradeAlreadyExists
	}
	return r.store(trade)
}

func (r *singleTradeRepositoryImpl) GetSingleTrade(
	_ context.Context, id string,
) (*domain.SingleTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return r.get(id)
}

func (r *singleTradeRepositoryImpl) GetSingleTradesByStatus(
	_ context.Context, statuses ...domain.SingleTradeStatus,
) ([]domain.SingleTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return r.filter(func(t domain.SingleTrade) bool {
		if len(statuses) <= 0 {
			return true
		}
		for _, s := range statuses {
			if s == t.Status {
				return true
			}
		}
		return false
	})
}

func (r *singleTradeRepositoryImpl) GetSingleTradesByParent(
	_ context.Context, parentID string,
) ([]domain.SingleTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return r.filter(func(t domain.SingleTrade) bool {
		return t.ParentID == parentID
	})
}

func (r *singleTradeRepositoryImpl) UpdateSingleTrade(
	_ context.Context, id string,
	updateFn func(t *domain.SingleTrade) (*domain.SingleTrade, error),
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	trade, err := r.get(id)
	if err != nil {
		return err
	}

	updatedTrade, err := updateFn(trade)
	if err != nil {
		return err
	}
	return r.store(updatedTrade)
}

func (r *singleTradeRepositoryImpl) filter(
	match func(t domain.SingleTrade) bool,
) ([]domain.SingleTrade, error) {
	trades := make([]domain.SingleTrade, 0)
	for id, t := range r.trades {
		if !match(t) {
			continue
		}
		trade, err := r.get(id)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})
	return trades, nil
}

func (r *singleTradeRepositoryImpl) get(id string) (*domain.SingleTrade, error) {
	t, ok := r.trades[id]
	if !ok {
		return nil, domain.ErrSingleTradeNotFound
	}
	trade := &domain.SingleTrade{}
	if err := deepCopy(t, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

func (r *singleTradeRepositoryImpl) store(trade *domain.SingleTrade) error {
	t := domain.SingleTrade{}
	if err := deepCopy(trade, &t); err != nil {
		return err
	}
	r.trades[t.ID] = t
	return nil
}
