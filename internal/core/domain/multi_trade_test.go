package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

func TestNewMultiTrade(t *testing.T) {
	mt := newMultiTrade(t, domain.StrategySenderToReceiver)

	require.NotEmpty(t, mt.ID)
	require.Equal(t, domain.MultiTradeStatusPending, mt.Status)
	require.Equal(t, domain.MultiTradeStepNone, mt.Step)
	require.Equal(t, domain.NoChildInFlight, mt.CurrentIndex)
	for _, child := range mt.Children {
		require.Equal(t, domain.TradeResultNone, child.Result)
		require.False(t, child.IsStarted())
	}
}

func TestFailingNewMultiTrade(t *testing.T) {
	participants := map[string]domain.Participant{
		"sender":   {Credential: "c1"},
		"receiver": {Credential: "c2"},
	}
	child := domain.MultiTradeChild{
		Strategy:      domain.StrategySenderToReceiver,
		FromAccountID: "sender",
		ToAccountID:   "receiver",
		AssetIDs:      []string{"a1"},
	}

	tests := []struct {
		name         string
		participants map[string]domain.Participant
		held         map[string][]string
		children     func() []domain.MultiTradeChild
		expectedErr  error
	}{
		{
			name:         "empty_plan",
			participants: participants,
			children:     func() []domain.MultiTradeChild { return nil },
			expectedErr:  domain.ErrPlanEmpty,
		},
		{
			name:         "missing_credential",
			participants: map[string]domain.Participant{"sender": {}, "receiver": {Credential: "c2"}},
			children:     func() []domain.MultiTradeChild { return []domain.MultiTradeChild{child} },
			expectedErr:  domain.ErrPlanMissingCredential,
		},
		{
			name:         "unknown_participant",
			participants: participants,
			children: func() []domain.MultiTradeChild {
				c := child
				c.ToAccountID = "stranger"
				return []domain.MultiTradeChild{c}
			},
			expectedErr: domain.ErrPlanUnknownParticipant,
		},
		{
			name:         "same_account",
			participants: participants,
			children: func() []domain.MultiTradeChild {
				c := child
				c.ToAccountID = "sender"
				return []domain.MultiTradeChild{c}
			},
			expectedErr: domain.ErrPlanSameAccount,
		},
		{
			name:         "no_assets",
			participants: participants,
			children: func() []domain.MultiTradeChild {
				c := child
				c.AssetIDs = nil
				return []domain.MultiTradeChild{c}
			},
			expectedErr: domain.ErrPlanEmptyAssets,
		},
		{
			name:         "invalid_strategy",
			participants: participants,
			children: func() []domain.MultiTradeChild {
				c := child
				c.Strategy = "sideways"
				return []domain.MultiTradeChild{c}
			},
			expectedErr: domain.ErrPlanInvalidStrategy,
		},
		{
			name:         "asset_held_twice",
			participants: participants,
			held:         map[string][]string{"sender": {"a1"}, "receiver": {"a1"}},
			children:     func() []domain.MultiTradeChild { return []domain.MultiTradeChild{child} },
			expectedErr:  domain.ErrLedgerAssetAlreadyHeld,
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			mt, err := domain.NewMultiTrade(tt.participants, tt.held, nil, tt.children())
			require.ErrorIs(t, err, tt.expectedErr)
			require.Nil(t, mt)
		})
	}
}

func TestMultiTradePrepareChild(t *testing.T) {
	t.Run("sender_to_receiver", func(t *testing.T) {
		mt := newMultiTrade(t, domain.StrategySenderToReceiver)
		_, err := mt.Start()
		require.NoError(t, err)

		trade, tradeErr, err := mt.PrepareChild()
		require.NoError(t, err)
		require.Nil(t, tradeErr)
		require.Equal(t, mt.SingleTradeID(0), trade.ID)
		require.Equal(t, mt.ID, trade.ParentID)
		require.Equal(t, "sender", trade.Sender.AccountID)
		require.Equal(t, "receiver", trade.Accepter.AccountID)
		require.Equal(t, "enc-sender", trade.Sender.Credential)
		require.True(t, trade.Sender.HasSecret())
		require.False(t, trade.Accepter.HasSecret())
		require.Equal(t, []string{"a1", "a2", "a3", "fs"}, trade.Offers[0].Items())
		require.Equal(t, []string{"fr"}, trade.Offers[1].Items())
	})

	t.Run("receiver_to_sender", func(t *testing.T) {
		mt := newMultiTrade(t, domain.StrategyReceiverToSender)
		_, err := mt.Start()
		require.NoError(t, err)

		trade, tradeErr, err := mt.PrepareChild()
		require.NoError(t, err)
		require.Nil(t, tradeErr)
		require.Equal(t, "receiver", trade.Sender.AccountID)
		require.Equal(t, "sender", trade.Accepter.AccountID)
		require.Equal(t, "receiver", trade.Offers[0].AccountID)
		require.Equal(t, []string{"fr"}, trade.Offers[0].Items())
		require.Equal(t, []string{"a1", "a2", "a3", "fs"}, trade.Offers[1].Items())
	})

	t.Run("missing_destination_filler", func(t *testing.T) {
		mt := newMultiTrade(t, domain.StrategySenderToReceiver)
		mt.HeldFillerAssets = domain.Ledger{"sender": {"fs"}}
		_, err := mt.Start()
		require.NoError(t, err)

		trade, tradeErr, err := mt.PrepareChild()
		require.NoError(t, err)
		require.Nil(t, trade)
		require.Equal(t, domain.ErrCodeMissingFiller, tradeErr.ErrorCode)
		accountID, ok := tradeErr.AccountID()
		require.True(t, ok)
		require.Equal(t, "receiver", accountID)
	})

	t.Run("no_child_in_flight", func(t *testing.T) {
		mt := newMultiTrade(t, domain.StrategySenderToReceiver)
		_, _, err := mt.PrepareChild()
		require.ErrorIs(t, err, domain.ErrNoChildInFlight)
	})
}

func TestMultiTradeSingleLeg(t *testing.T) {
	mt := newMultiTrade(t, domain.StrategySenderToReceiver)
	_, err := mt.Start()
	require.NoError(t, err)
	require.Equal(t, domain.MultiTradeStatusProcessing, mt.Status)
	require.Equal(t, domain.MultiTradeStepProcessChild, mt.Step)
	require.Equal(t, 0, mt.CurrentIndex)

	trade, _, err := mt.PrepareChild()
	require.NoError(t, err)
	require.NoError(t, mt.ChildStarted(trade))
	require.Equal(t, domain.MultiTradeStepWaitChild, mt.Step)

	// Non terminal updates are only mirrored.
	_, err = trade.Start()
	require.NoError(t, err)
	resolved, err := mt.ApplyChildOutcome(trade)
	require.NoError(t, err)
	require.False(t, resolved)
	require.Equal(t, domain.SingleTradeStatusProcessing, mt.Children[0].Status)

	trade.Sent("ext-1")
	trade.Finish()
	resolved, err = mt.ApplyChildOutcome(trade)
	require.NoError(t, err)
	require.True(t, resolved)

	require.Equal(t, domain.MultiTradeStatusFinished, mt.Status)
	require.Nil(t, mt.Participants)
	require.Equal(t, domain.NoChildInFlight, mt.CurrentIndex)
	require.NotNil(t, mt.ProcessedAt)
	require.Equal(t, "ext-1", mt.Children[0].ExternalTradeID)

	result := mt.Result()
	require.True(t, result.Ok)
	require.Equal(t, []string{"sender"}, result.SenderIDs)
	require.Equal(t, []string{"receiver"}, result.ReceiverIDs)
	require.Equal(t, []string{"a1", "a2", "a3"}, result.HeldAssets["receiver"])
	require.Empty(t, result.HeldAssets["sender"])
	require.Equal(t, []string{"fr"}, result.HeldFillerAssets["sender"])
	require.Equal(t, []string{"fs"}, result.HeldFillerAssets["receiver"])
	require.Equal(t, domain.ParticipantStats{TradesSent: 1, TradesCompleted: 1}, result.Participants["sender"])
	require.Equal(t, domain.ParticipantStats{TradesReceived: 1, TradesCompleted: 1}, result.Participants["receiver"])
	require.Empty(t, result.Errors)

	require.NoError(t, mt.Acknowledge())
	require.ErrorIs(t, mt.Acknowledge(), domain.ErrMultiTradeAlreadyAcknowledged)
}

func TestMultiTradePrune(t *testing.T) {
	mt, err := domain.NewMultiTrade(
		map[string]domain.Participant{
			"s1": {Credential: "c1"},
			"s2": {Credential: "c2"},
			"r":  {Credential: "c3"},
		},
		map[string][]string{"s1": {"a1", "a2"}, "s2": {"b1", "b2"}},
		map[string][]string{"s1": {"f1"}, "s2": {"f2"}, "r": {"fr"}},
		[]domain.MultiTradeChild{
			{Strategy: domain.StrategySenderToReceiver, FromAccountID: "s1", ToAccountID: "r", AssetIDs: []string{"a1"}},
			{Strategy: domain.StrategySenderToReceiver, FromAccountID: "s2", ToAccountID: "r", AssetIDs: []string{"b1"}},
			{Strategy: domain.StrategySenderToReceiver, FromAccountID: "s2", ToAccountID: "r", AssetIDs: []string{"b2"}},
			{Strategy: domain.StrategySenderToReceiver, FromAccountID: "s1", ToAccountID: "r", AssetIDs: []string{"a2"}},
		},
	)
	require.NoError(t, err)
	_, err = mt.Start()
	require.NoError(t, err)

	// Leg 0 succeeds.
	trade, _, err := mt.PrepareChild()
	require.NoError(t, err)
	require.NoError(t, mt.ChildStarted(trade))
	trade.Finish()
	_, err = mt.ApplyChildOutcome(trade)
	require.NoError(t, err)
	require.Equal(t, 1, mt.CurrentIndex)

	// Leg 1 fails because of s2.
	trade, _, err = mt.PrepareChild()
	require.NoError(t, err)
	require.NoError(t, mt.ChildStarted(trade))
	trade.Fail(domain.NewAccountTradeError(
		domain.ErrCodeAuthenticationInvalid, "s2", "bad session",
	))
	_, err = mt.ApplyChildOutcome(trade)
	require.NoError(t, err)

	require.Equal(t, domain.MultiTradeStatusProcessing, mt.Status)
	require.True(t, mt.Children[2].IsPruned())
	require.False(t, mt.Children[2].IsStarted())
	require.Equal(t, domain.ErrCodePruned, mt.Children[2].Error.ErrorCode)
	require.False(t, mt.Children[3].IsResolved())
	require.Equal(t, 3, mt.CurrentIndex)
	require.Equal(t, domain.MultiTradeStepProcessChild, mt.Step)

	// Leg 3 is unaffected.
	trade, _, err = mt.PrepareChild()
	require.NoError(t, err)
	require.NoError(t, mt.ChildStarted(trade))
	trade.Finish()
	_, err = mt.ApplyChildOutcome(trade)
	require.NoError(t, err)

	require.Equal(t, domain.MultiTradeStatusFinished, mt.Status)
	result := mt.Result()
	require.True(t, result.Ok)
	require.Equal(t, []string{"s1", "s2"}, result.SenderIDs)
	require.Equal(t, []string{"r"}, result.ReceiverIDs)
	require.Len(t, result.Errors, 2)
	require.Equal(t, 1, result.Errors[0].Index)
	require.Equal(t, 2, result.Errors[1].Index)
	require.Empty(t, result.Errors[1].SingleTradeID)
	require.Equal(t, []string{"a1", "a2"}, result.HeldAssets["r"])
	require.Equal(t, []string{"b1", "b2"}, result.HeldAssets["s2"])
	require.Equal(t, domain.ParticipantStats{TradesSent: 1, TradesFailed: 1}, result.Participants["s2"])
	require.Equal(t, domain.ParticipantStats{TradesReceived: 3, TradesCompleted: 2, TradesFailed: 1}, result.Participants["r"])
}

func TestMultiTradeAbort(t *testing.T) {
	mt := newMultiTrade(t, domain.StrategySenderToReceiver)
	_, err := mt.Start()
	require.NoError(t, err)
	require.ErrorIs(t, mt.Acknowledge(), domain.ErrMultiTradeNotProcessed)

	trade, _, err := mt.PrepareChild()
	require.NoError(t, err)
	require.NoError(t, mt.ChildStarted(trade))

	trade.Fail(domain.NewTradeError(domain.ErrCodeServerUnavailable, "platform down"))
	resolved, err := mt.ApplyChildOutcome(trade)
	require.NoError(t, err)
	require.True(t, resolved)

	require.Equal(t, domain.MultiTradeStatusFailed, mt.Status)
	require.Equal(t, domain.ErrCodeServerUnavailable, mt.Error.ErrorCode)
	result := mt.Result()
	require.False(t, result.Ok)
	require.Len(t, result.Errors, 1)
	require.Equal(t, domain.ParticipantStats{TradesSent: 1, TradesFailed: 1}, result.Participants["sender"])
	// Nothing moved.
	require.Equal(t, []string{"a1", "a2", "a3"}, result.HeldAssets["sender"])
}

func TestMultiTradeChildMismatch(t *testing.T) {
	mt := newMultiTrade(t, domain.StrategySenderToReceiver)
	_, err := mt.Start()
	require.NoError(t, err)
	trade, _, err := mt.PrepareChild()
	require.NoError(t, err)
	require.NoError(t, mt.ChildStarted(trade))

	other := *trade
	other.ID = "other"
	_, err = mt.ApplyChildOutcome(&other)
	require.ErrorIs(t, err, domain.ErrChildMismatch)
}

func newMultiTrade(t *testing.T, strategy domain.Strategy) *domain.MultiTrade {
	mt, err := domain.NewMultiTrade(
		map[string]domain.Participant{
			"sender":   {Credential: "enc-sender", TOTPSecret: "enc-secret"},
			"receiver": {Credential: "enc-receiver"},
		},
		map[string][]string{"sender": {"a1", "a2", "a3"}},
		map[string][]string{"sender": {"fs"}, "receiver": {"fr"}},
		[]domain.MultiTradeChild{{
			Strategy:      strategy,
			FromAccountID: "sender",
			ToAccountID:   "receiver",
			AssetIDs:      []string{"a1", "a2", "a3"},
		}},
	)
	require.NoError(t, err)
	return mt
}

func TestMultiTradeCurrentIndexJSON(t *testing.T) {
	mt := newMultiTrade(t, domain.StrategySenderToReceiver)

	buf, err := json.Marshal(mt)
	require.NoError(t, err)
	view := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf, &view))
	require.Contains(t, view, "currentIndex")
	require.Nil(t, view["currentIndex"])
	require.NotContains(t, view, "participants")

	decoded := domain.MultiTrade{}
	require.NoError(t, json.Unmarshal(buf, &decoded))
	require.Equal(t, domain.NoChildInFlight, decoded.CurrentIndex)
	require.Equal(t, mt.ID, decoded.ID)

	_, err = mt.Start()
	require.NoError(t, err)
	buf, err = json.Marshal(mt)
	require.NoError(t, err)
	view = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf, &view))
	require.Equal(t, float64(0), view["currentIndex"])

	decoded = domain.MultiTrade{}
	require.NoError(t, json.Unmarshal(buf, &decoded))
	require.Equal(t, 0, decoded.CurrentIndex)
	require.Equal(t, domain.MultiTradeStatusProcessing, decoded.Status)
}
