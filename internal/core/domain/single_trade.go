package domain

import (
	"fmt"
	"time"
)

// SingleTrade is the atomic execution unit of a multi trade: one bilateral
// trade between a sender and an accepter.
type SingleTrade struct {
	ID            string            `json:"id"`
	ParentID      string            `json:"parentId" badgerhold:"index"`
	Result        TradeResult       `json:"result"`
	Status        SingleTradeStatus `json:"status" badgerhold:"index"`
	Step          SingleTradeStep   `json:"step"`
	Depth         TradeDepth        `json:"depth"`
	Sender        TradeParty        `json:"sender"`
	Accepter      TradeParty        `json:"accepter"`
	Offers        [2]Offer          `json:"offers"`
	ExternalTrade *ExternalTrade    `json:"externalTrade"`
	Error         *TradeError       `json:"error"`
	StartedAt     *time.Time        `json:"startedAt"`
	ProcessedAt   *time.Time        `json:"processedAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// NewSingleTrade returns a Pending single trade. The first offer is the
// sender's, the second one the accepter's.
func NewSingleTrade(
	id, parentID string, sender, accepter TradeParty, offers [2]Offer,
) *SingleTrade {
	now := time.Now()
	return &SingleTrade{
		ID:        id,
		ParentID:  parentID,
		Result:    TradeResultNone,
		Status:    SingleTradeStatusPending,
		Step:      SingleTradeStepNone,
		Depth:     TradeDepthNone,
		Sender:    sender,
		Accepter:  accepter,
		Offers:    offers,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsProcessed returns whether the trade reached its terminal status.
func (t *SingleTrade) IsProcessed() bool {
	return t.Status == SingleTradeStatusProcessed
}

// IsPaused ...
func (t *SingleTrade) IsPaused() bool {
	return t.Status == SingleTradeStatusPaused
}

// Start brings a Pending trade to Processing, at the beginning of the
// StartTrade step.
func (t *SingleTrade) Start() (bool, error) {
	if t.IsProcessed() {
		return false, ErrSingleTradeProcessed
	}
	if t.Status != SingleTradeStatusPending {
		return true, nil
	}

	now := time.Now()
	t.Status = SingleTradeStatusProcessing
	t.Step = SingleTradeStepStartTrade
	t.Depth = TradeDepthPrepareTrade
	t.StartedAt = &now
	return true, nil
}

// Party returns the side of the trade of the given account.
func (t *SingleTrade) Party(accountID string) (*TradeParty, error) {
	switch accountID {
	case t.Sender.AccountID:
		return &t.Sender, nil
	case t.Accepter.AccountID:
		return &t.Accepter, nil
	default:
		return nil, ErrUnknownParty
	}
}

// BlockingParty returns the side that is blocking a paused trade.
func (t *SingleTrade) BlockingParty() *TradeParty {
	if t.Sender.Challenge != nil {
		return &t.Sender
	}
	if t.Accepter.Challenge != nil {
		return &t.Accepter
	}
	return nil
}

// Prepared marks the offers as validated and moves to SendTrade.
func (t *SingleTrade) Prepared() {
	t.Depth = TradeDepthSendTrade
}

// Sent records the external trade created by the send offer call.
func (t *SingleTrade) Sent(externalTradeID string) {
	t.ExternalTrade = &ExternalTrade{
		ID:     externalTradeID,
		Status: ExternalStatusUnknown,
	}
	t.Depth = TradeDepthAcceptTrade
}

// Accepted records the status returned by the accept call and moves the
// trade to the WaitTrade step.
func (t *SingleTrade) Accepted(externalStatus string) {
	if t.ExternalTrade != nil && externalStatus != "" {
		t.ExternalTrade.Status = externalStatus
	}
	t.Step = SingleTradeStepWaitTrade
	t.Depth = TradeDepthNone
}

// Pause blocks the trade on the given account until a code or a secret is
// provided for it. The blocked depth is recorded on the account's challenge.
func (t *SingleTrade) Pause(accountID, challengeType string) error {
	if t.IsProcessed() {
		return ErrSingleTradeProcessed
	}
	party, err := t.Party(accountID)
	if err != nil {
		return err
	}

	party.Challenge = &Challenge{
		Type:       challengeType,
		Depth:      t.Depth,
		PromptedAt: time.Now(),
	}
	t.Status = SingleTradeStatusPaused
	return nil
}

// PauseDeadline returns the time after which a pause is resolved as a
// timeout. It is derived from the last update of the paused trade, which is
// the one that paused it.
func (t *SingleTrade) PauseDeadline(timeout time.Duration) time.Time {
	return t.UpdatedAt.Add(timeout)
}

// Authorize resumes a paused trade with the code or the (already encrypted)
// secret provided for the blocking account.
func (t *SingleTrade) Authorize(accountID, code, encryptedSecret string) error {
	if !t.IsPaused() {
		return ErrSingleTradeNotPaused
	}
	party := t.BlockingParty()
	if party == nil || party.AccountID != accountID {
		return ErrChallengeAccountMismatch
	}
	if code == "" && encryptedSecret == "" {
		return ErrMissingChallengeSolution
	}

	if party.TOTP == nil {
		party.TOTP = &TOTP{}
	}
	if code != "" {
		party.TOTP.Code = code
	}
	if encryptedSecret != "" {
		party.TOTP.Secret = encryptedSecret
	}
	party.Challenge = nil
	t.Status = SingleTradeStatusProcessing
	return nil
}

// Escalate updates the urgency status of a trade in the WaitTrade step.
func (t *SingleTrade) Escalate(status SingleTradeStatus) {
	if t.IsProcessed() || t.IsPaused() {
		return
	}
	t.Status = status
}

// Elapsed returns the time passed since the trade started.
func (t *SingleTrade) Elapsed(now time.Time) time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return now.Sub(*t.StartedAt)
}

// Finish brings the trade to its terminal successful state.
func (t *SingleTrade) Finish() {
	if t.IsProcessed() {
		return
	}
	if t.ExternalTrade != nil {
		t.ExternalTrade.Status = ExternalStatusCompleted
	}
	t.Result = TradeResultFinished
	t.process()
}

// Fail brings the trade to its terminal failed state.
func (t *SingleTrade) Fail(err *TradeError) {
	if t.IsProcessed() {
		return
	}
	t.Result = TradeResultFailed
	t.Error = err
	t.process()
}

func (t *SingleTrade) process() {
	now := time.Now()
	t.Status = SingleTradeStatusProcessed
	t.Step = SingleTradeStepNone
	t.Depth = TradeDepthNone
	t.ProcessedAt = &now
	t.Sender.Redact()
	t.Accepter.Redact()
}

// ValidateOffers checks that neither offer is empty nor exceeds the per-trade
// item cap.
func (t *SingleTrade) ValidateOffers(maxItems int) *TradeError {
	for _, offer := range t.Offers {
		items := offer.Items()
		if len(items) <= 0 {
			return NewTradeError(
				ErrCodeMalformedOffer, "offer of account %s is empty", offer.AccountID,
			)
		}
		if maxItems > 0 && len(items) > maxItems {
			return NewTradeError(
				ErrCodeMalformedOffer, "offer of account %s has %d items, max is %d",
				offer.AccountID, len(items), maxItems,
			)
		}
	}
	if t.Offers[0].AccountID != t.Sender.AccountID ||
		t.Offers[1].AccountID != t.Accepter.AccountID {
		return NewTradeError(
			ErrCodeMalformedOffer, "offers do not match sender and accepter",
		)
	}
	return nil
}

func (t *SingleTrade) String() string {
	return fmt.Sprintf(
		"%s [status: %s, step: %s, depth: %s]", t.ID, t.Status, t.Step, t.Depth,
	)
}
