package multitrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/application/singletrade"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/pkg/stats"
)

// Queue is the name of the scheduler queue of multi trades.
const Queue = "multi-trade"

var (
	// ErrInvalidPlan is returned by SubmitPlan for plans that can't be
	// executed, the wrapped message tells why.
	ErrInvalidPlan = errors.New("invalid plan")
)

// ParticipantCredentials are the plaintext secrets of an account taking part
// in a plan. They are encrypted before the plan is stored.
type ParticipantCredentials struct {
	Credential string `json:"credential"`
	TOTPSecret string `json:"totpSecret,omitempty"`
}

// PlannedTrade is an entry of a plan.
type PlannedTrade struct {
	Strategy      domain.Strategy `json:"strategy"`
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	AssetIDs      []string        `json:"assetIds"`
}

// SubmitPlanRequest is an ordered list of asset movements between the given
// participants, along with who holds what at the time of the request.
type SubmitPlanRequest struct {
	Participants     map[string]ParticipantCredentials `json:"participants"`
	HeldAssets       map[string][]string               `json:"heldAssets"`
	HeldFillerAssets map[string][]string               `json:"heldFillerAssets"`
	Children         []PlannedTrade                    `json:"children"`
}

// Service orchestrates multi trades: it executes their children one at a
// time through the single trade service and keeps the ownership ledgers up
// to date with the outcome of each of them.
type Service struct {
	repo           domain.MultiTradeRepository
	singleTradeSvc *singletrade.Service
	scheduler      ports.Scheduler
	cipher         ports.Cipher
	pubsub         *pubsub.Service
}

// NewService returns a new multi trade service and registers it as the
// observer of the processed single trades.
func NewService(
	repo domain.MultiTradeRepository, singleTradeSvc *singletrade.Service,
	scheduler ports.Scheduler, cipher ports.Cipher, pubsubSvc *pubsub.Service,
) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing multi trade repository")
	}
	if singleTradeSvc == nil {
		return nil, fmt.Errorf("missing single trade service")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if cipher == nil {
		return nil, fmt.Errorf("missing cipher")
	}
	if pubsubSvc == nil {
		return nil, fmt.Errorf("missing pubsub service")
	}

	svc := &Service{
		repo:           repo,
		singleTradeSvc: singleTradeSvc,
		scheduler:      scheduler,
		cipher:         cipher,
		pubsub:         pubsubSvc,
	}
	singleTradeSvc.SetChildObserver(svc)
	return svc, nil
}

// SubmitPlan validates and stores the plan, then schedules its execution.
// The returned id is the one of the new multi trade, whose outcome is
// broadcast once it's processed.
func (s *Service) SubmitPlan(
	ctx context.Context, req SubmitPlanRequest,
) (string, error) {
	participants := make(map[string]domain.Participant, len(req.Participants))
	for accountID, p := range req.Participants {
		participant, err := s.encryptParticipant(p)
		if err != nil {
			return "", fmt.Errorf("participant %s: %w", accountID, err)
		}
		participants[accountID] = participant
	}

	children := make([]domain.MultiTradeChild, 0, len(req.Children))
	for _, c := range req.Children {
		children = append(children, domain.MultiTradeChild{
			Strategy:      c.Strategy,
			FromAccountID: c.FromAccountID,
			ToAccountID:   c.ToAccountID,
			AssetIDs:      c.AssetIDs,
		})
	}

	trade, err := domain.NewMultiTrade(
		participants, req.HeldAssets, req.HeldFillerAssets, children,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPlan, err)
	}

	if err := s.repo.AddMultiTrade(ctx, trade); err != nil {
		return "", err
	}
	if err := s.scheduler.Schedule(ctx, Queue, trade.ID, time.Now()); err != nil {
		return "", err
	}

	log.Infof(
		"multi trade %s submitted with %d children", trade.ID, len(trade.Children),
	)
	return trade.ID, nil
}

func (s *Service) GetByID(
	ctx context.Context, id string,
) (*domain.MultiTrade, error) {
	return s.repo.GetMultiTrade(ctx, id)
}

// List returns the multi trades with any of the given statuses, or all of
// them.
func (s *Service) List(
	ctx context.Context, statuses ...domain.MultiTradeStatus,
) ([]domain.MultiTrade, error) {
	return s.repo.GetMultiTradesByStatus(ctx, statuses...)
}

// Acknowledge marks the outcome of a processed multi trade as received.
// A second acknowledge fails with domain.ErrMultiTradeAlreadyAcknowledged.
func (s *Service) Acknowledge(ctx context.Context, id string) error {
	return s.repo.UpdateMultiTrade(
		ctx, id, func(m *domain.MultiTrade) (*domain.MultiTrade, error) {
			if err := m.Acknowledge(); err != nil {
				return nil, err
			}
			m.UpdatedAt = time.Now()
			return m, nil
		},
	)
}

// OnChildUpdated wakes up the multi trade a processed single trade belongs
// to.
func (s *Service) OnChildUpdated(
	ctx context.Context, parentID, singleTradeID string,
) error {
	log.Debugf(
		"multi trade %s: child single trade %s updated", parentID, singleTradeID,
	)
	return s.scheduler.Schedule(ctx, Queue, parentID, time.Now())
}

// Process is the step function of the multi trade queue. It advances the
// multi trade as far as possible: it starts the child in flight or applies
// its outcome, and so on until a child is left running on the platform or
// the multi trade is processed.
func (s *Service) Process(ctx context.Context, id string) error {
	trade, err := s.repo.GetMultiTrade(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrMultiTradeNotFound) {
			log.Warnf("skipping unknown multi trade %s", id)
			return nil
		}
		return err
	}

	// Woken up again by a late child update, or a previous run stopped
	// before the result was broadcast.
	if trade.IsProcessed() {
		if trade.BroadcastAt != nil {
			log.Debugf("multi trade %s: result already broadcast", trade.ID)
			return nil
		}
		return s.publishResult(ctx, trade)
	}

	if trade.Status == domain.MultiTradeStatusPending {
		if _, err := trade.Start(); err != nil {
			return err
		}
		if err := s.save(ctx, trade); err != nil {
			return err
		}
		log.Debugf("multi trade %s started", trade.ID)
	}

	for !trade.IsProcessed() {
		waiting, err := s.step(ctx, trade)
		if err != nil {
			return err
		}
		if err := s.save(ctx, trade); err != nil {
			return err
		}
		if waiting {
			return nil
		}
	}

	stats.MultiTrades.WithLabelValues(string(trade.Status)).Inc()
	log.Infof("multi trade %s processed with status %s", trade.ID, trade.Status)
	return s.publishResult(ctx, trade)
}

// Recover re-schedules every multi trade left in flight by a previous run.
func (s *Service) Recover(ctx context.Context) error {
	trades, err := s.repo.GetMultiTradesByStatus(
		ctx, domain.MultiTradeStatusPending, domain.MultiTradeStatusProcessing,
	)
	if err != nil {
		return err
	}

	for _, trade := range trades {
		if err := s.scheduler.Schedule(ctx, Queue, trade.ID, time.Now()); err != nil {
			return err
		}
	}

	if len(trades) > 0 {
		log.Infof("recovered %d multi trades in flight", len(trades))
	}
	return nil
}

// step either starts the child in flight or applies the outcome of its
// single trade. It returns whether the multi trade must wait for the child
// to be processed.
func (s *Service) step(
	ctx context.Context, trade *domain.MultiTrade,
) (bool, error) {
	i, child, err := trade.CurrentChild()
	if err != nil {
		return false, err
	}

	switch trade.Step {
	case domain.MultiTradeStepProcessChild:
		singleTrade, tradeErr, err := trade.PrepareChild()
		if err != nil {
			return false, err
		}
		if tradeErr != nil {
			log.WithError(tradeErr).Warnf(
				"multi trade %s: child %d can't be started", trade.ID, i,
			)
			return false, trade.FailChild(tradeErr)
		}

		// The single trade id is derived from the child, if it was created
		// already by a previous run this returns the existing one.
		singleTrade, err = s.singleTradeSvc.Create(ctx, singleTrade)
		if err != nil {
			return false, err
		}
		if err := trade.ChildStarted(singleTrade); err != nil {
			return false, err
		}
		log.Debugf(
			"multi trade %s: child %d started with single trade %s",
			trade.ID, i, singleTrade.ID,
		)
		return false, nil

	case domain.MultiTradeStepWaitChild:
		singleTrade, err := s.singleTradeSvc.Get(ctx, child.SingleTradeID)
		if err != nil {
			if !errors.Is(err, domain.ErrSingleTradeNotFound) {
				return false, err
			}
			return false, trade.FailChild(domain.NewTradeError(
				domain.ErrCodeInvalidState, "single trade %s of child %d not found",
				child.SingleTradeID, i,
			))
		}

		resolved, err := trade.ApplyChildOutcome(singleTrade)
		if err != nil {
			return false, err
		}
		if resolved {
			log.Debugf(
				"multi trade %s: child %d resolved with result %s",
				trade.ID, i, singleTrade.Result,
			)
		}
		return !resolved, nil
	}

	return false, trade.FailChild(domain.NewTradeError(
		domain.ErrCodeInvalidState, "multi trade in unexpected step %s", trade.Step,
	))
}

// save stores the multi trade as changed by the current step. A multi trade
// is only changed by its own step until processed, the scheduler never runs
// two steps of the same unit at once.
func (s *Service) save(ctx context.Context, trade *domain.MultiTrade) error {
	return s.repo.UpdateMultiTrade(
		ctx, trade.ID, func(_ *domain.MultiTrade) (*domain.MultiTrade, error) {
			trade.UpdatedAt = time.Now()
			return trade, nil
		},
	)
}

// publishResult broadcasts the outcome of the processed multi trade and
// records it, so that later wake-ups don't notify it again. A crash between
// the two makes the next run publish it once more: delivery is at least
// once.
func (s *Service) publishResult(
	ctx context.Context, trade *domain.MultiTrade,
) error {
	if err := s.pubsub.PublishMultiTradeProcessedEvent(trade.Result()); err != nil {
		log.WithError(err).Warnf(
			"multi trade %s: failed to publish result", trade.ID,
		)
	}
	return s.repo.UpdateMultiTrade(
		ctx, trade.ID, func(m *domain.MultiTrade) (*domain.MultiTrade, error) {
			if m.ResultBroadcast() {
				m.UpdatedAt = time.Now()
			}
			return m, nil
		},
	)
}

func (s *Service) encryptParticipant(
	p ParticipantCredentials,
) (domain.Participant, error) {
	var participant domain.Participant
	if p.Credential != "" {
		credential, err := s.cipher.Encrypt(p.Credential)
		if err != nil {
			return participant, fmt.Errorf("failed to encrypt credential: %w", err)
		}
		participant.Credential = credential
	}
	if p.TOTPSecret != "" {
		secret, err := s.cipher.Encrypt(p.TOTPSecret)
		if err != nil {
			return participant, fmt.Errorf("failed to encrypt secret: %w", err)
		}
		participant.TOTPSecret = secret
	}
	return participant, nil
}
