package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

type multiTradeRepositoryImpl struct {
	locker *sync.Mutex
	trades map[string]domain.MultiTrade
}

// NewMultiTradeRepositoryImpl returns a new inmemory MultiTradeRepository
// implementation.
func NewMultiTradeRepositoryImpl() domain.MultiTradeRepository {
	return &multiTradeRepositoryImpl{
		locker: &sync.Mutex{},
		trades: make(map[string]domain.MultiTrade),
	}
}

func (r *multiTradeRepositoryImpl) AddMultiTrade(
	_ context.Context, trade *domain.MultiTrade,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	if _, ok := r.trades[trade.ID]; ok {
		return domain.ErrMultiTradeAlreadyExists
	}
	return r.store(trade)
}

func (r *multiTradeRepositoryImpl) GetMultiTrade(
	_ context.Context, id string,
) (*domain.MultiTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	return r.get(id)
}

func (r *multiTradeRepositoryImpl) GetMultiTradesByStatus(
	_ context.Context, statuses ...domain.MultiTradeStatus,
) ([]domain.MultiTrade, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	trades := make([]domain.MultiTrade, 0)
	for id, t := range r.trades {
		if len(statuses) > 0 && !hasMultiTradeStatus(statuses, t.Status) {
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

func (r *multiTradeRepositoryImpl) UpdateMultiTrade(
	_ context.Context, id string,
	updateFn func(m *domain.MultiTrade) (*domain.MultiTrade, error),
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

func (r *multiTradeRepositoryImpl) get(id string) (*domain.MultiTrade, error) {
	t, ok := r.trades[id]
	if !ok {
		return nil, domain.ErrMultiTradeNotFound
	}
	trade := &domain.MultiTrade{}
	if err := deepCopy(t, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

func (r *multiTradeRepositoryImpl) store(trade *domain.MultiTrade) error {
	t := domain.MultiTrade{}
	if err := deepCopy(trade, &t); err != nil {
		return err
	}
	r.trades[t.ID] = t
	return nil
}

func hasMultiTradeStatus(
	statuses []domain.MultiTradeStatus, status domain.MultiTradeStatus,
) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
