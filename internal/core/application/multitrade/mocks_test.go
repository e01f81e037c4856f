package multitrade_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

// **** Trading platform ****

type fakeTrade struct {
	offers [2]domain.Offer
	status string
}

// fakePlatform completes every accepted trade right away. Sending an offer
// with a credential listed in failures returns the related error.
type fakePlatform struct {
	lock     sync.Mutex
	trades   map[string]*fakeTrade
	sent     [][2]domain.Offer
	failures map[string]error
	open     int
	maxOpen  int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		trades:   make(map[string]*fakeTrade),
		failures: make(map[string]error),
	}
}

func (p *fakePlatform) SendOffer(
	_ context.Context, credential string, offers [2]domain.Offer,
	_ *ports.ChallengeHeaders,
) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.failures[credential]; err != nil {
		return "", err
	}
	id := fmt.Sprintf("ext-%d", len(p.trades)+1)
	p.trades[id] = &fakeTrade{offers: offers, status: "Pending"}
	p.sent = append(p.sent, offers)
	p.open++
	p.maxOpen = max(p.maxOpen, p.open)
	return id, nil
}

func (p *fakePlatform) AcceptOffer(
	_ context.Context, _, tradeID string, _ *ports.ChallengeHeaders,
) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	trade, ok := p.trades[tradeID]
	if !ok || trade.status != "Pending" {
		return "", &ports.PlatformError{StatusCode: 400, Code: 3}
	}
	trade.status = domain.ExternalStatusCompleted
	p.open--
	return trade.status, nil
}

func (p *fakePlatform) GetTrade(
	_ context.Context, _, tradeID string,
) (*ports.TradeInfo, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	trade, ok := p.trades[tradeID]
	if !ok {
		return nil, &ports.PlatformError{StatusCode: 404}
	}
	return &ports.TradeInfo{
		ID: tradeID, Status: trade.status, IsActive: trade.status == "Pending",
	}, nil
}

func (p *fakePlatform) DeclineTrade(_ context.Context, _, tradeID string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if trade, ok := p.trades[tradeID]; ok {
		trade.status = "Declined"
	}
	return nil
}

func (p *fakePlatform) sentOffers() [][2]domain.Offer {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([][2]domain.Offer{}, p.sent...)
}

func (p *fakePlatform) maxOpenTrades() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.maxOpen
}

func (p *fakePlatform) failSend(credential string, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failures[credential] = err
}

// **** Two-step verification ****

type noVerification struct{}

func (noVerification) VerifyCode(
	context.Context, string, ports.VerificationUser, ports.VerificationRequest,
) (string, error) {
	return "", fmt.Errorf("unexpected code verification")
}

func (noVerification) GenerateChallenge(
	context.Context, string, string,
) (*ports.ChallengeMetadata, error) {
	return nil, fmt.Errorf("unexpected challenge generation")
}

func (noVerification) RedeemChallenge(
	context.Context, string, ports.ChallengeMetadata, string,
) error {
	return fmt.Errorf("unexpected challenge redemption")
}

type noCodes struct{}

func (noCodes) ComputeCode(string) (string, error) {
	return "", fmt.Errorf("unexpected code computation")
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

func (s *fakeScheduler) isScheduled(queue, unitID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.runAt[domain.JobID(queue, unitID)]
	return ok
}

// **** Event sink ****

type eventSink struct {
	lock    sync.Mutex
	results map[string]domain.MultiTradeResult
	count   int
}

func newEventSink() *eventSink {
	return &eventSink{results: make(map[string]domain.MultiTradeResult)}
}

func (s *eventSink) Publish(topic, message string) error {
	if topic != pubsub.TopicMultiTradeProcessed {
		return nil
	}
	result := domain.MultiTradeResult{}
	if err := json.Unmarshal([]byte(message), &result); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.results[result.MultiTradeID] = result
	s.count++
	return nil
}

func (s *eventSink) result(multiTradeID string) (domain.MultiTradeResult, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	result, ok := s.results[multiTradeID]
	return result, ok
}

func (s *eventSink) published() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.count
}
