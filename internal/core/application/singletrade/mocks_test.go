package singletrade_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

// **** Trade handler ****

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) SendOffer(
	ctx context.Context, sender *domain.TradeParty, offers [2]domain.Offer,
) (string, error) {
	args := m.Called(sender, offers)
	return args.String(0), args.Error(1)
}

func (m *mockHandler) AcceptOffer(
	ctx context.Context, accepter *domain.TradeParty, tradeID string,
) (string, error) {
	args := m.Called(accepter, tradeID)
	return args.String(0), args.Error(1)
}

func (m *mockHandler) GetTrade(
	ctx context.Context, party *domain.TradeParty, tradeID string,
) (*ports.TradeInfo, error) {
	args := m.Called(party, tradeID)

	var res *ports.TradeInfo
	if a := args.Get(0); a != nil {
		res = a.(*ports.TradeInfo)
	}
	return res, args.Error(1)
}

func (m *mockHandler) DeclineTrade(
	ctx context.Context, party *domain.TradeParty, tradeID string,
) error {
	args := m.Called(party, tradeID)
	return args.Error(0)
}

// **** Child observer ****

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) OnChildUpdated(
	ctx context.Context, parentID, singleTradeID string,
) error {
	args := m.Called(parentID, singleTradeID)
	return args.Error(0)
}

// **** Scheduler ****

type fakeScheduler struct {
	lock  sync.Mutex
	runAt map[string]time.Time
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{runAt: make(map[string]time.Time)}
}

func (s *fakeScheduler) Schedule(
	_ context.Context, queue, unitID string, runAt time.Time,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.runAt[domain.JobID(queue, unitID)] = runAt
	return nil
}

func (s *fakeScheduler) next(queue, unitID string) (time.Time, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	runAt, ok := s.runAt[domain.JobID(queue, unitID)]
	return runAt, ok
}

// **** Event sink ****

type eventSink struct {
	lock     sync.Mutex
	messages map[string][]string
}

func newEventSink() *eventSink {
	return &eventSink{messages: make(map[string][]string)}
}

func (s *eventSink) Publish(topic, message string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.messages[topic] = append(s.messages[topic], message)
	return nil
}

func (s *eventSink) received(topic string) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string{}, s.messages[topic]...)
}
