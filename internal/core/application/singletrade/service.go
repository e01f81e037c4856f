package singletrade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/application/tradeapi"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/pkg/stats"
)

// Queue is the name of the scheduler queue of single trades.
const Queue = "single-trade"

var (
	// ErrConcurrentUpdate is returned if the trade changed while a step was
	// running on it. The step is retried on the fresh state.
	ErrConcurrentUpdate = errors.New("single trade changed while processing")

	errPauseResolved = errors.New("pause already resolved")
)

// TradeHandler performs the platform calls of a trade on behalf of one of
// its parties.
type TradeHandler interface {
	SendOffer(
		ctx context.Context, sender *domain.TradeParty, offers [2]domain.Offer,
	) (string, error)
	AcceptOffer(
		ctx context.Context, accepter *domain.TradeParty, tradeID string,
	) (string, error)
	GetTrade(
		ctx context.Context, party *domain.TradeParty, tradeID string,
	) (*ports.TradeInfo, error)
	DeclineTrade(
		ctx context.Context, party *domain.TradeParty, tradeID string,
	) error
}

// ChildObserver is told whenever a single trade belonging to a multi trade
// reaches its terminal state.
type ChildObserver interface {
	OnChildUpdated(ctx context.Context, parentID, singleTradeID string) error
}

// AuthorizeChallengeRequest carries the solution of a challenge for the
// account blocking a paused trade: a one-time code, a verification secret
// to store for the account, or both.
type AuthorizeChallengeRequest struct {
	SingleTradeID string `json:"singleTradeId"`
	AccountID     string `json:"accountId"`
	Code          string `json:"code,omitempty"`
	Secret        string `json:"secret,omitempty"`
}

// Service drives single trades through their state machine: each step
// re-derives where the trade is from its persisted state, so that it can
// be re-run safely after a crash.
type Service struct {
	repo      domain.SingleTradeRepository
	scheduler ports.Scheduler
	handler   TradeHandler
	cipher    ports.Cipher
	pubsub    *pubsub.Service
	settings  Settings

	lock     sync.RWMutex
	observer ChildObserver
}

func NewService(
	repo domain.SingleTradeRepository, scheduler ports.Scheduler,
	handler TradeHandler, cipher ports.Cipher, pubsubSvc *pubsub.Service,
	settings Settings,
) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing single trade repository")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if handler == nil {
		return nil, fmt.Errorf("missing trade handler")
	}
	if cipher == nil {
		return nil, fmt.Errorf("missing cipher")
	}
	if pubsubSvc == nil {
		return nil, fmt.Errorf("missing pubsub service")
	}
	settings = settings.withDefaults()
	if err := settings.validate(); err != nil {
		return nil, err
	}

	return &Service{
		repo:      repo,
		scheduler: scheduler,
		handler:   handler,
		cipher:    cipher,
		pubsub:    pubsubSvc,
		settings:  settings,
	}, nil
}

// SetChildObserver registers who is notified of processed child trades.
func (s *Service) SetChildObserver(observer ChildObserver) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.observer = observer
}

// Create stores the given Pending trade and schedules its first step. If a
// trade with the same id exists already, that one is returned instead.
func (s *Service) Create(
	ctx context.Context, trade *domain.SingleTrade,
) (*domain.SingleTrade, error) {
	if err := s.repo.AddSingleTrade(ctx, trade); err != nil {
		if !errors.Is(err, domain.ErrSingleTradeAlreadyExists) {
			return nil, err
		}
		existing, err := s.repo.GetSingleTrade(ctx, trade.ID)
		if err != nil {
			return nil, err
		}
		trade = existing
	}

	if !trade.IsProcessed() {
		if err := s.scheduler.Schedule(ctx, Queue, trade.ID, time.Now()); err != nil {
			return nil, err
		}
	}
	return trade, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.SingleTrade, error) {
	return s.repo.GetSingleTrade(ctx, id)
}

// Process is the step function of the single trade queue.
func (s *Service) Process(ctx context.Context, id string) error {
	trade, err := s.repo.GetSingleTrade(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSingleTradeNotFound) {
			log.Warnf("skipping unknown single trade %s", id)
			return nil
		}
		return err
	}

	if trade.IsProcessed() {
		return s.notifyObserver(ctx, trade)
	}
	if trade.IsPaused() {
		return s.checkPause(ctx, trade)
	}

	if trade.Status == domain.SingleTradeStatusPending {
		if _, err := trade.Start(); err != nil {
			return err
		}
		if err := s.save(ctx, trade); err != nil {
			return err
		}
		log.Debugf("single trade %s started", trade.ID)
	}

	for {
		next, err := s.step(ctx, trade)
		if err != nil {
			return s.handleStepError(ctx, trade, err)
		}
		if err := s.save(ctx, trade); err != nil {
			return err
		}
		if trade.IsProcessed() {
			return s.onProcessed(ctx, trade)
		}
		if !next.IsZero() {
			return s.scheduler.Schedule(ctx, Queue, trade.ID, next)
		}
	}
}

// AuthorizeChallenge resumes a paused trade with the solution provided for
// the account blocking it.
func (s *Service) AuthorizeChallenge(
	ctx context.Context, req AuthorizeChallengeRequest,
) error {
	if req.Code == "" && req.Secret == "" {
		return domain.ErrMissingChallengeSolution
	}

	var encryptedSecret string
	if req.Secret != "" {
		var err error
		if encryptedSecret, err = s.cipher.Encrypt(req.Secret); err != nil {
			return fmt.Errorf("failed to encrypt secret: %w", err)
		}
	}

	if err := s.repo.UpdateSingleTrade(
		ctx, req.SingleTradeID,
		func(t *domain.SingleTrade) (*domain.SingleTrade, error) {
			if err := t.Authorize(req.AccountID, req.Code, encryptedSecret); err != nil {
				return nil, err
			}
			t.UpdatedAt = time.Now()
			return t, nil
		},
	); err != nil {
		return err
	}

	stats.Challenges.WithLabelValues("authorized").Inc()
	log.Infof(
		"single trade %s resumed by account %s", req.SingleTradeID, req.AccountID,
	)
	return s.scheduler.Schedule(ctx, Queue, req.SingleTradeID, time.Now())
}

// Recover re-schedules every trade left in flight by a previous run. Pauses
// whose deadline passed meanwhile are resolved right away.
func (s *Service) Recover(ctx context.Context) error {
	trades, err := s.repo.GetSingleTradesByStatus(
		ctx,
		domain.SingleTradeStatusPending,
		domain.SingleTradeStatusProcessing,
		domain.SingleTradeStatusPaused,
		domain.SingleTradeStatusDelayed,
		domain.SingleTradeStatusBacklogged,
	)
	if err != nil {
		return err
	}

	for i := range trades {
		trade := &trades[i]
		if trade.IsPaused() {
			if err := s.checkPause(ctx, trade); err != nil {
				return err
			}
			continue
		}
		if err := s.scheduler.Schedule(ctx, Queue, trade.ID, time.Now()); err != nil {
			return err
		}
	}

	if len(trades) > 0 {
		log.Infof("recovered %d single trades in flight", len(trades))
	}
	return nil
}

// step advances the trade by one depth. It returns the time the trade must
// be woken up at, or a zero time if the next step can run right away.
func (s *Service) step(
	ctx context.Context, trade *domain.SingleTrade,
) (time.Time, error) {
	switch trade.Step {
	case domain.SingleTradeStepStartTrade:
		switch trade.Depth {
		case domain.TradeDepthPrepareTrade:
			if tradeErr := trade.ValidateOffers(s.settings.MaxOfferItems); tradeErr != nil {
				trade.Fail(tradeErr)
				return time.Time{}, nil
			}
			trade.Prepared()
			return time.Time{}, nil

		case domain.TradeDepthSendTrade:
			// The offer was sent before a crash, don't send it twice.
			if trade.ExternalTrade != nil {
				trade.Sent(trade.ExternalTrade.ID)
				return time.Time{}, nil
			}
			externalTradeID, err := s.handler.SendOffer(
				ctx, &trade.Sender, trade.Offers,
			)
			if err != nil {
				return time.Time{}, err
			}
			trade.Sent(externalTradeID)
			log.Infof(
				"single trade %s: offer sent with external trade %s",
				trade.ID, externalTradeID,
			)
			return time.Time{}, nil

		case domain.TradeDepthAcceptTrade:
			if trade.ExternalTrade == nil {
				break
			}
			status, err := s.handler.AcceptOffer(
				ctx, &trade.Accepter, trade.ExternalTrade.ID,
			)
			if err != nil {
				return time.Time{}, err
			}
			trade.Accepted(status)
			log.Infof(
				"single trade %s: offer accepted with status %s", trade.ID, status,
			)
			if domain.IsExternalTradeCompleted(status) {
				trade.Finish()
				return time.Time{}, nil
			}
			return time.Now().Add(s.settings.PollInterval), nil
		}

	case domain.SingleTradeStepWaitTrade:
		if trade.ExternalTrade == nil {
			break
		}
		return s.poll(ctx, trade)
	}

	trade.Fail(domain.NewTradeError(
		domain.ErrCodeInvalidState, "single trade in unexpected state %s", trade,
	))
	return time.Time{}, nil
}

// poll reads the external trade as the sender and, if that is not enough to
// know its outcome, as the accepter.
func (s *Service) poll(
	ctx context.Context, trade *domain.SingleTrade,
) (time.Time, error) {
	externalTradeID := trade.ExternalTrade.ID

	trade.Depth = domain.TradeDepthCheckAsSender
	info, err := s.handler.GetTrade(ctx, &trade.Sender, externalTradeID)
	if ctx.Err() != nil {
		return time.Time{}, ctx.Err()
	}
	if err != nil || !isResolved(info.Status) {
		trade.Depth = domain.TradeDepthCheckAsAccepter
		accepterInfo, accepterErr := s.handler.GetTrade(
			ctx, &trade.Accepter, externalTradeID,
		)
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		if accepterErr == nil {
			info, err = accepterInfo, nil
		} else {
			log.WithError(accepterErr).Debugf(
				"single trade %s: failed to check trade as accepter", trade.ID,
			)
		}
	}
	trade.Depth = domain.TradeDepthNone
	if err != nil {
		return time.Time{}, err
	}

	if info.Status != "" {
		trade.ExternalTrade.Status = info.Status
	}
	switch {
	case domain.IsExternalTradeCompleted(info.Status):
		trade.Finish()
		return time.Time{}, nil
	case domain.IsExternalTradeFailed(info.Status):
		trade.Fail(domain.NewExternalStatusError(info.Status))
		return time.Time{}, nil
	}
	return s.escalate(ctx, trade), nil
}

// escalate updates the urgency status of a trade still pending on the
// platform and returns when to poll it again. A trade pending for too long
// is declined and failed.
func (s *Service) escalate(ctx context.Context, trade *domain.SingleTrade) time.Time {
	elapsed := trade.Elapsed(time.Now())
	if elapsed >= s.settings.MaxDuration {
		s.decline(ctx, trade)
		trade.Fail(domain.NewTradeError(
			domain.ErrCodeTradeTimeout, "trade still pending after %s",
			elapsed.Round(time.Second),
		))
		return time.Time{}
	}

	status, interval := s.settings.escalation(elapsed)
	if status != trade.Status {
		log.Infof("single trade %s is now %s", trade.ID, status)
	}
	trade.Escalate(status)
	return time.Now().Add(interval)
}

func (s *Service) handleStepError(
	ctx context.Context, trade *domain.SingleTrade, err error,
) error {
	var challengeErr *tradeapi.ChallengeError
	if errors.As(err, &challengeErr) {
		return s.pause(ctx, trade, challengeErr)
	}

	var tradeErr *domain.TradeError
	if errors.As(err, &tradeErr) {
		elapsed := trade.Elapsed(time.Now())
		if !tradeErr.IsTransient() {
			log.WithError(tradeErr).Warnf("single trade %s failed", trade.ID)
			trade.Fail(tradeErr)
			return s.finalize(ctx, trade)
		}
		if elapsed >= s.settings.MaxDuration {
			s.decline(ctx, trade)
			trade.Fail(domain.NewTradeError(
				domain.ErrCodeTradeTimeout, "gave up after %s: %s",
				elapsed.Round(time.Second), tradeErr.Message,
			))
			return s.finalize(ctx, trade)
		}

		_, interval := s.settings.escalation(elapsed)
		log.WithError(tradeErr).Warnf(
			"single trade %s: platform unavailable, retrying in %s",
			trade.ID, interval,
		)
		// Persist whatever the failed call consumed, like a one-time code.
		if err := s.save(ctx, trade); err != nil {
			return err
		}
		return s.scheduler.Schedule(ctx, Queue, trade.ID, time.Now().Add(interval))
	}

	if errors.Is(err, tradeapi.ErrCredentialUnavailable) {
		log.WithError(err).Warnf("single trade %s failed", trade.ID)
		trade.Fail(domain.NewTradeError(domain.ErrCodeInvalidState, "%s", err))
		return s.finalize(ctx, trade)
	}

	return err
}

func (s *Service) pause(
	ctx context.Context, trade *domain.SingleTrade,
	challengeErr *tradeapi.ChallengeError,
) error {
	if err := trade.Pause(
		challengeErr.AccountID, challengeErr.ChallengeType(),
	); err != nil {
		trade.Fail(challengeErr.Reason)
		return s.finalize(ctx, trade)
	}
	if err := s.save(ctx, trade); err != nil {
		return err
	}

	party := trade.BlockingParty()
	deadline := trade.PauseDeadline(s.settings.ChallengeTimeout)
	if err := s.wakeUpAt(ctx, trade.ID, deadline); err != nil {
		return err
	}
	log.Infof(
		"single trade %s paused: account %s must solve a challenge by %s",
		trade.ID, party.AccountID, deadline.Format(time.RFC3339),
	)

	if err := s.pubsub.PublishChallengePromptEvent(domain.ChallengePrompt{
		SingleTradeID: trade.ID,
		MultiTradeID:  trade.ParentID,
		AccountID:     party.AccountID,
		ChallengeType: party.Challenge.Type,
		Depth:         party.Challenge.Depth,
		Deadline:      deadline,
	}); err != nil {
		log.WithError(err).Warnf(
			"single trade %s: failed to publish challenge prompt", trade.ID,
		)
	}
	return nil
}

// checkPause resolves a paused trade as a timeout once its deadline passed,
// otherwise it makes sure it's woken up at the deadline.
func (s *Service) checkPause(ctx context.Context, trade *domain.SingleTrade) error {
	deadline := trade.PauseDeadline(s.settings.ChallengeTimeout)
	if time.Now().Before(deadline) {
		return s.wakeUpAt(ctx, trade.ID, deadline)
	}

	var failed *domain.SingleTrade
	if err := s.repo.UpdateSingleTrade(
		ctx, trade.ID, func(t *domain.SingleTrade) (*domain.SingleTrade, error) {
			// The challenge might have been solved in the meantime.
			if !t.IsPaused() ||
				time.Now().Before(t.PauseDeadline(s.settings.ChallengeTimeout)) {
				return nil, errPauseResolved
			}
			party := t.BlockingParty()
			t.Fail(domain.NewAccountTradeError(
				domain.ErrCodeChallengeTimeout, party.AccountID,
				"challenge of account %s not solved in %s",
				party.AccountID, s.settings.ChallengeTimeout,
			))
			t.UpdatedAt = time.Now()
			failed = t
			return t, nil
		},
	); err != nil {
		if errors.Is(err, errPauseResolved) {
			return nil
		}
		return err
	}

	stats.Challenges.WithLabelValues("expired").Inc()
	log.Warnf("single trade %s failed: %s", failed.ID, failed.Error)
	return s.onProcessed(ctx, failed)
}

// wakeUpAt schedules the paused trade at its deadline. An authorization
// landed meanwhile would have its immediate wake-up replaced, so the trade is
// re-checked afterwards.
func (s *Service) wakeUpAt(
	ctx context.Context, id string, deadline time.Time,
) error {
	if err := s.scheduler.Schedule(ctx, Queue, id, deadline); err != nil {
		return err
	}
	current, err := s.repo.GetSingleTrade(ctx, id)
	if err != nil {
		return err
	}
	if !current.IsPaused() {
		return s.scheduler.Schedule(ctx, Queue, id, time.Now())
	}
	return nil
}

func (s *Service) decline(ctx context.Context, trade *domain.SingleTrade) {
	if trade.ExternalTrade == nil {
		return
	}
	if err := s.handler.DeclineTrade(
		ctx, &trade.Sender, trade.ExternalTrade.ID,
	); err != nil {
		log.WithError(err).Warnf(
			"single trade %s: failed to decline external trade %s",
			trade.ID, trade.ExternalTrade.ID,
		)
	}
}

// save stores the trade as changed by the current step. It fails if the
// trade was updated by someone else since it was loaded.
func (s *Service) save(ctx context.Context, trade *domain.SingleTrade) error {
	loadedAt := trade.UpdatedAt
	return s.repo.UpdateSingleTrade(
		ctx, trade.ID, func(current *domain.SingleTrade) (*domain.SingleTrade, error) {
			if !current.UpdatedAt.Equal(loadedAt) {
				return nil, ErrConcurrentUpdate
			}
			trade.UpdatedAt = time.Now()
			return trade, nil
		},
	)
}

func (s *Service) finalize(ctx context.Context, trade *domain.SingleTrade) error {
	if err := s.save(ctx, trade); err != nil {
		return err
	}
	return s.onProcessed(ctx, trade)
}

func (s *Service) onProcessed(ctx context.Context, trade *domain.SingleTrade) error {
	stats.SingleTrades.WithLabelValues(string(trade.Result)).Inc()
	log.Infof("single trade %s processed with result %s", trade.ID, trade.Result)
	return s.notifyObserver(ctx, trade)
}

func (s *Service) notifyObserver(ctx context.Context, trade *domain.SingleTrade) error {
	s.lock.RLock()
	observer := s.observer
	s.lock.RUnlock()

	if observer == nil || trade.ParentID == "" {
		return nil
	}
	return observer.OnChildUpdated(ctx, trade.ParentID, trade.ID)
}

func isResolved(status string) bool {
	return domain.IsExternalTradeCompleted(status) ||
		domain.IsExternalTradeFailed(status)
}
