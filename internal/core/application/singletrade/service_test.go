package singletrade_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/application/singletrade"
	"github.com/tdex-network/tdex-broker/internal/core/application/tradeapi"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/tdex-broker/pkg/vault"
)

var ctx = context.Background()

type testDeps struct {
	repo      domain.SingleTradeRepository
	handler   *mockHandler
	observer  *mockObserver
	scheduler *fakeScheduler
	sink      *eventSink
	cipher    *vault.Vault
}

func TestProcessFinished(t *testing.T) {
	svc, deps := newTestService(t, singletrade.Settings{})
	trade := makeTrade(t, deps.cipher, "parent")

	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("ext-1", nil)
	deps.handler.On("AcceptOffer", party("bob"), "ext-1").Return("Pending", nil)
	deps.handler.On("GetTrade", party("alice"), "ext-1").
		Return(&ports.TradeInfo{ID: "ext-1", Status: "Completed"}, nil)
	deps.observer.On("OnChildUpdated", "parent", trade.ID).Return(nil)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	runAt, ok := deps.scheduler.next(singletrade.Queue, trade.ID)
	require.True(t, ok)
	require.False(t, runAt.After(time.Now()))

	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored := getTrade(t, deps, trade.ID)
	require.Equal(t, domain.SingleTradeStatusProcessing, stored.Status)
	require.Equal(t, domain.SingleTradeStepWaitTrade, stored.Step)
	require.Equal(t, domain.TradeDepthNone, stored.Depth)
	require.NotNil(t, stored.StartedAt)
	require.Equal(t, &domain.ExternalTrade{ID: "ext-1", Status: "Pending"}, stored.ExternalTrade)
	runAt, _ = deps.scheduler.next(singletrade.Queue, trade.ID)
	require.True(t, runAt.After(time.Now()))
	deps.observer.AssertNotCalled(t, "OnChildUpdated", mock.Anything, mock.Anything)

	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored = getTrade(t, deps, trade.ID)
	require.True(t, stored.IsProcessed())
	require.Equal(t, domain.TradeResultFinished, stored.Result)
	require.Equal(t, domain.ExternalStatusCompleted, stored.ExternalTrade.Status)
	require.NotNil(t, stored.ProcessedAt)
	require.Nil(t, stored.Error)
	requireRedacted(t, stored)
	deps.handler.AssertExpectations(t)
	deps.observer.AssertExpectations(t)
}

func TestProcessAcceptCompletesImmediately(t *testing.T) {
	svc, deps := newTestService(t, singletrade.Settings{})
	trade := makeTrade(t, deps.cipher, "")

	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("ext-1", nil)
	deps.handler.On("AcceptOffer", party("bob"), "ext-1").Return("Completed", nil)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored := getTrade(t, deps, trade.ID)
	require.Equal(t, domain.TradeResultFinished, stored.Result)
	deps.handler.AssertNotCalled(t, "GetTrade", mock.Anything, mock.Anything)
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name              string
		sendErr           error
		expectedErrorCode string
		expectedAccountID string
	}{
		{
			name: "attributed to sender",
			sendErr: domain.NewAccountTradeError(
				domain.ErrCodeAuthenticationInvalid, "alice", "bad session",
			),
			expectedErrorCode: domain.ErrCodeAuthenticationInvalid,
			expectedAccountID: "alice",
		},
		{
			name:              "platform rejection",
			sendErr:           domain.NewTradeError(domain.ErrCodePlatform, "bad request"),
			expectedErrorCode: domain.ErrCodePlatform,
		},
		{
			name: "corrupted credential",
			sendErr: fmt.Errorf(
				"%w: credential of account alice", tradeapi.ErrCredentialUnavailable,
			),
			expectedErrorCode: domain.ErrCodeInvalidState,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestService(t, singletrade.Settings{})
			trade := makeTrade(t, deps.cipher, "parent")

			deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("", tt.sendErr)
			deps.observer.On("OnChildUpdated", "parent", trade.ID).Return(nil)

			_, err := svc.Create(ctx, trade)
			require.NoError(t, err)
			err = svc.Process(ctx, trade.ID)
			require.NoError(t, err)

			stored := getTrade(t, deps, trade.ID)
			require.Equal(t, domain.TradeResultFailed, stored.Result)
			require.NotNil(t, stored.Error)
			require.Equal(t, tt.expectedErrorCode, stored.Error.ErrorCode)
			accountID, ok := stored.Error.AccountID()
			require.Equal(t, tt.expectedAccountID != "", ok)
			require.Equal(t, tt.expectedAccountID, accountID)
			requireRedacted(t, stored)
			deps.observer.AssertExpectations(t)
		})
	}
}

func TestProcessMalformedOffer(t *testing.T) {
	svc, deps := newTestService(t, singletrade.Settings{MaxOfferItems: 2})
	trade := makeTrade(t, deps.cipher, "")
	trade.Offers[0].AssetIDs = []string{"a1", "a2", "a3"}

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored := getTrade(t, deps, trade.ID)
	require.Equal(t, domain.TradeResultFailed, stored.Result)
	require.Equal(t, domain.ErrCodeMalformedOffer, stored.Error.ErrorCode)
	deps.handler.AssertNotCalled(t, "SendOffer", mock.Anything, mock.Anything)
}

func TestProcessTransientError(t *testing.T) {
	svc, deps := newTestService(t, singletrade.Settings{})
	trade := makeTrade(t, deps.cipher, "")

	deps.handler.On("SendOffer", party("alice"), trade.Offers).
		Return("", domain.NewTradeError(domain.ErrCodeServerUnavailable, "503")).Once()
	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("ext-1", nil).Once()
	deps.handler.On("AcceptOffer", party("bob"), "ext-1").Return("Completed", nil)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored := getTrade(t, deps, trade.ID)
	require.False(t, stored.IsProcessed())
	require.Equal(t, domain.TradeDepthSendTrade, stored.Depth)
	require.Nil(t, stored.ExternalTrade)
	runAt, _ := deps.scheduler.next(singletrade.Queue, trade.ID)
	require.True(t, runAt.After(time.Now()))

	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored = getTrade(t, deps, trade.ID)
	require.Equal(t, domain.TradeResultFinished, stored.Result)
	deps.handler.AssertExpectations(t)
}

func TestProcessInfrastructureError(t *testing.T) {
	svc, deps := newTestService(t, singletrade.Settings{})
	trade := makeTrade(t, deps.cipher, "")

	errBoom := errors.New("boom")
	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("", errBoom)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	err = svc.Process(ctx, trade.ID)
	require.ErrorIs(t, err, errBoom)

	stored := getTrade(t, deps, trade.ID)
	require.Equal(t, domain.SingleTradeStatusProcessing, stored.Status)
	require.Equal(t, domain.TradeDepthSendTrade, stored.Depth)
	require.NotEmpty(t, stored.Sender.Credential)
}

func TestProcessChallenge(t *testing.T) {
	settings := singletrade.Settings{ChallengeTimeout: time.Minute}
	svc, deps := newTestService(t, settings)
	trade := makeTrade(t, deps.cipher, "parent")

	challengeErr := &tradeapi.ChallengeError{
		AccountID: "bob",
		Reason: domain.NewAccountTradeError(
			domain.ErrCodeTwoStepVerificationRequired, "bob", "code required",
		),
	}
	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("ext-1", nil)
	deps.handler.On("AcceptOffer", party("bob"), "ext-1").Return("", challengeErr).Once()
	deps.handler.On("AcceptOffer", mock.MatchedBy(func(p *domain.TradeParty) bool {
		return p.AccountID == "bob" && p.HasCode()
	}), "ext-1").Return("Completed", nil).Once()
	deps.observer.On("OnChildUpdated", "parent", trade.ID).Return(nil)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored := getTrade(t, deps, trade.ID)
	require.True(t, stored.IsPaused())
	blocking := stored.BlockingParty()
	require.NotNil(t, blocking)
	require.Equal(t, "bob", blocking.AccountID)
	require.Equal(t, domain.TradeDepthAcceptTrade, blocking.Challenge.Depth)
	runAt, _ := deps.scheduler.next(singletrade.Queue, trade.ID)
	require.WithinDuration(t, stored.PauseDeadline(time.Minute), runAt, 0)

	prompts := deps.sink.received(pubsub.TopicChallengePrompt)
	require.Len(t, prompts, 1)
	require.Contains(t, prompts[0], `"singleTradeId":"`+trade.ID+`"`)
	require.Contains(t, prompts[0], `"accountId":"bob"`)

	// Still within the pause window: nothing happens.
	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)
	require.True(t, getTrade(t, deps, trade.ID).IsPaused())

	err = svc.AuthorizeChallenge(ctx, singletrade.AuthorizeChallengeRequest{
		SingleTradeID: trade.ID, AccountID: "alice", Code: "123456",
	})
	require.ErrorIs(t, err, domain.ErrChallengeAccountMismatch)

	err = svc.AuthorizeChallenge(ctx, singletrade.AuthorizeChallengeRequest{
		SingleTradeID: trade.ID, AccountID: "bob",
	})
	require.ErrorIs(t, err, domain.ErrMissingChallengeSolution)

	err = svc.AuthorizeChallenge(ctx, singletrade.AuthorizeChallengeRequest{
		SingleTradeID: trade.ID, AccountID: "bob", Code: "123456",
	})
	require.NoError(t, err)

	stored = getTrade(t, deps, trade.ID)
	require.Equal(t, domain.SingleTradeStatusProcessing, stored.Status)
	require.Nil(t, stored.BlockingParty())
	require.Equal(t, "123456", stored.Accepter.TOTP.Code)
	runAt, _ = deps.scheduler.next(singletrade.Queue, trade.ID)
	require.False(t, runAt.After(time.Now()))

	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored = getTrade(t, deps, trade.ID)
	require.Equal(t, domain.TradeResultFinished, stored.Result)
	requireRedacted(t, stored)
	deps.handler.AssertExpectations(t)
	deps.observer.AssertExpectations(t)
}

func TestAuthorizeChallengeWithSecret(t *testing.T) {
	svc, deps := newTestService(t, singletrade.Settings{})
	trade := makeTrade(t, deps.cipher, "")

	challengeErr := &tradeapi.ChallengeError{
		AccountID: "alice",
		Reason: domain.NewAccountTradeError(
			domain.ErrCodeTwoStepVerificationExpired, "alice", "expired",
		),
	}
	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("", challengeErr)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)
	require.True(t, getTrade(t, deps, trade.ID).IsPaused())

	err = svc.AuthorizeChallenge(ctx, singletrade.AuthorizeChallengeRequest{
		SingleTradeID: trade.ID, AccountID: "alice", Secret: "JBSWY3DPEHPK3PXP",
	})
	require.NoError(t, err)

	stored := getTrade(t, deps, trade.ID)
	require.True(t, stored.Sender.HasSecret())
	require.NotEqual(t, "JBSWY3DPEHPK3PXP", stored.Sender.TOTP.Secret)
	secret, err := deps.cipher.Decrypt(stored.Sender.TOTP.Secret)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", secret)
}

func TestProcessChallengeTimeout(t *testing.T) {
	timeout := 20 * time.Millisecond
	svc, deps := newTestService(t, singletrade.Settings{ChallengeTimeout: timeout})
	trade := makeTrade(t, deps.cipher, "parent")

	challengeErr := &tradeapi.ChallengeError{
		AccountID: "alice",
		Reason: domain.NewAccountTradeError(
			domain.ErrCodeTwoStepVerificationRequired, "alice", "code required",
		),
	}
	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("", challengeErr)
	deps.observer.On("OnChildUpdated", "parent", trade.ID).Return(nil)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)
	require.True(t, getTrade(t, deps, trade.ID).IsPaused())

	time.Sleep(2 * timeout)

	err = svc.Process(ctx, trade.ID)
	require.NoError(t, err)

	stored := getTrade(t, deps, trade.ID)
	require.Equal(t, domain.TradeResultFailed, stored.Result)
	require.Equal(t, domain.ErrCodeChallengeTimeout, stored.Error.ErrorCode)
	accountID, ok := stored.Error.AccountID()
	require.True(t, ok)
	require.Equal(t, "alice", accountID)
	requireRedacted(t, stored)

	err = svc.AuthorizeChallenge(ctx, singletrade.AuthorizeChallengeRequest{
		SingleTradeID: trade.ID, AccountID: "alice", Code: "123456",
	})
	require.ErrorIs(t, err, domain.ErrSingleTradeNotPaused)
	deps.observer.AssertExpectations(t)
}

func TestProcessWaitTrade(t *testing.T) {
	t.Run("falls back to accepter", func(t *testing.T) {
		svc, deps := newTestService(t, singletrade.Settings{})
		trade := startedTrade(t, svc, deps)

		deps.handler.On("GetTrade", party("alice"), "ext-1").
			Return(nil, domain.NewTradeError(domain.ErrCodeServerUnavailable, "503"))
		deps.handler.On("GetTrade", party("bob"), "ext-1").
			Return(&ports.TradeInfo{ID: "ext-1", Status: "Declined"}, nil)

		err := svc.Process(ctx, trade.ID)
		require.NoError(t, err)

		stored := getTrade(t, deps, trade.ID)
		require.Equal(t, domain.TradeResultFailed, stored.Result)
		require.Equal(t, "trade_Declined", stored.Error.ErrorCode)
		require.False(t, stored.Error.IsAccountAttributable())
		require.Equal(t, "Declined", stored.ExternalTrade.Status)
	})

	t.Run("escalates with elapsed time", func(t *testing.T) {
		svc, deps := newTestService(t, singletrade.Settings{})
		trade := startedTrade(t, svc, deps)

		pending := &ports.TradeInfo{ID: "ext-1", Status: "Pending", IsActive: true}
		deps.handler.On("GetTrade", party("alice"), "ext-1").Return(pending, nil)
		deps.handler.On("GetTrade", party("bob"), "ext-1").Return(pending, nil)
		deps.handler.On("DeclineTrade", party("alice"), "ext-1").Return(nil)

		steps := []struct {
			elapsed        time.Duration
			expectedStatus domain.SingleTradeStatus
			expectedPoll   time.Duration
		}{
			{time.Second, domain.SingleTradeStatusProcessing, 5 * time.Second},
			{3 * time.Minute, domain.SingleTradeStatusDelayed, 30 * time.Second},
			{20 * time.Minute, domain.SingleTradeStatusBacklogged, 2 * time.Minute},
		}
		for _, step := range steps {
			setStartedAt(t, deps, trade.ID, time.Now().Add(-step.elapsed))

			err := svc.Process(ctx, trade.ID)
			require.NoError(t, err)

			stored := getTrade(t, deps, trade.ID)
			require.Equal(t, step.expectedStatus, stored.Status)
			runAt, _ := deps.scheduler.next(singletrade.Queue, trade.ID)
			require.WithinDuration(t, time.Now().Add(step.expectedPoll), runAt, time.Second)
		}

		setStartedAt(t, deps, trade.ID, time.Now().Add(-2*time.Hour))
		err := svc.Process(ctx, trade.ID)
		require.NoError(t, err)

		stored := getTrade(t, deps, trade.ID)
		require.Equal(t, domain.TradeResultFailed, stored.Result)
		require.Equal(t, domain.ErrCodeTradeTimeout, stored.Error.ErrorCode)
		deps.handler.AssertCalled(t, "DeclineTrade", party("alice"), "ext-1")
	})
}

func TestRecover(t *testing.T) {
	svc, deps := newTestService(t, singletrade.Settings{ChallengeTimeout: time.Minute})

	expired := makeTrade(t, deps.cipher, "")
	_, err := expired.Start()
	require.NoError(t, err)
	require.NoError(t, expired.Pause("bob", domain.ErrCodeTwoStepVerificationRequired))
	expired.UpdatedAt = time.Now().Add(-time.Hour)

	paused := makeTrade(t, deps.cipher, "")
	_, err = paused.Start()
	require.NoError(t, err)
	require.NoError(t, paused.Pause("alice", domain.ErrCodeTwoStepVerificationRequired))

	processing := makeTrade(t, deps.cipher, "")
	_, err = processing.Start()
	require.NoError(t, err)

	finished := makeTrade(t, deps.cipher, "")
	finished.Finish()

	for _, trade := range []*domain.SingleTrade{expired, paused, processing, finished} {
		require.NoError(t, deps.repo.AddSingleTrade(ctx, trade))
	}

	err = svc.Recover(ctx)
	require.NoError(t, err)

	stored := getTrade(t, deps, expired.ID)
	require.Equal(t, domain.TradeResultFailed, stored.Result)
	require.Equal(t, domain.ErrCodeChallengeTimeout, stored.Error.ErrorCode)

	require.True(t, getTrade(t, deps, paused.ID).IsPaused())
	runAt, ok := deps.scheduler.next(singletrade.Queue, paused.ID)
	require.True(t, ok)
	require.True(t, runAt.After(time.Now()))

	runAt, ok = deps.scheduler.next(singletrade.Queue, processing.ID)
	require.True(t, ok)
	require.False(t, runAt.After(time.Now()))

	_, ok = deps.scheduler.next(singletrade.Queue, finished.ID)
	require.False(t, ok)
}

func TestProcessUnknownTrade(t *testing.T) {
	svc, _ := newTestService(t, singletrade.Settings{})
	require.NoError(t, svc.Process(ctx, "unknown"))
}

func TestNewServiceInvalidSettings(t *testing.T) {
	deps := newTestDeps(t)
	_, err := singletrade.NewService(
		deps.repo, deps.scheduler, deps.handler, deps.cipher,
		pubsub.NewService(nil, deps.sink),
		singletrade.Settings{DelayedAfter: time.Hour, BackloggedAfter: time.Minute},
	)
	require.Error(t, err)
}

func newTestDeps(t *testing.T) testDeps {
	cipher, err := vault.New(bytes.Repeat([]byte{1}, vault.KeySize))
	require.NoError(t, err)

	return testDeps{
		repo:      inmemory.NewSingleTradeRepositoryImpl(),
		handler:   &mockHandler{},
		observer:  &mockObserver{},
		scheduler: newFakeScheduler(),
		sink:      newEventSink(),
		cipher:    cipher,
	}
}

func newTestService(
	t *testing.T, settings singletrade.Settings,
) (*singletrade.Service, testDeps) {
	deps := newTestDeps(t)
	svc, err := singletrade.NewService(
		deps.repo, deps.scheduler, deps.handler, deps.cipher,
		pubsub.NewService(nil, deps.sink), settings,
	)
	require.NoError(t, err)
	svc.SetChildObserver(deps.observer)
	return svc, deps
}

func makeTrade(t *testing.T, cipher *vault.Vault, parentID string) *domain.SingleTrade {
	aliceCredential, err := cipher.Encrypt("alice-cookie")
	require.NoError(t, err)
	bobCredential, err := cipher.Encrypt("bob-cookie")
	require.NoError(t, err)

	sender := domain.TradeParty{AccountID: "alice", Credential: aliceCredential}
	accepter := domain.TradeParty{AccountID: "bob", Credential: bobCredential}
	offers := [2]domain.Offer{
		{AccountID: "alice", AssetIDs: []string{"a1"}, FillerAssetID: "fa"},
		{AccountID: "bob", FillerAssetID: "fb"},
	}
	return domain.NewSingleTrade(
		uuid.New().String(), parentID, sender, accepter, offers,
	)
}

// startedTrade returns a trade whose offer was sent and accepted, waiting
// for completion on the platform.
func startedTrade(
	t *testing.T, svc *singletrade.Service, deps testDeps,
) *domain.SingleTrade {
	trade := makeTrade(t, deps.cipher, "")
	deps.handler.On("SendOffer", party("alice"), trade.Offers).Return("ext-1", nil)
	deps.handler.On("AcceptOffer", party("bob"), "ext-1").Return("Pending", nil)

	_, err := svc.Create(ctx, trade)
	require.NoError(t, err)
	require.NoError(t, svc.Process(ctx, trade.ID))
	require.Equal(
		t, domain.SingleTradeStepWaitTrade, getTrade(t, deps, trade.ID).Step,
	)
	return trade
}

func setStartedAt(t *testing.T, deps testDeps, id string, startedAt time.Time) {
	err := deps.repo.UpdateSingleTrade(
		ctx, id, func(st *domain.SingleTrade) (*domain.SingleTrade, error) {
			st.StartedAt = &startedAt
			return st, nil
		},
	)
	require.NoError(t, err)
}

func getTrade(t *testing.T, deps testDeps, id string) *domain.SingleTrade {
	trade, err := deps.repo.GetSingleTrade(ctx, id)
	require.NoError(t, err)
	return trade
}

func requireRedacted(t *testing.T, trade *domain.SingleTrade) {
	for _, p := range []domain.TradeParty{trade.Sender, trade.Accepter} {
		require.Empty(t, p.Credential)
		require.Nil(t, p.TOTP)
		require.Nil(t, p.Challenge)
	}
}

func party(accountID string) interface{} {
	return mock.MatchedBy(func(p *domain.TradeParty) bool {
		return p.AccountID == accountID
	})
}
