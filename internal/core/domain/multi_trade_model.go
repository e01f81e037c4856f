package domain

import "time"

// MultiTradeStatus represents the different statuses that a multi trade can
// assume.
type MultiTradeStatus string

// MultiTradeStep is the coarse progress marker of a multi trade, used to
// resume after a crash.
type MultiTradeStep string

// Strategy tells which side of a child initiates the offer.
type Strategy string

const (
	MultiTradeStatusPending    MultiTradeStatus = "pending"
	MultiTradeStatusProcessing MultiTradeStatus = "processing"
	MultiTradeStatusFinished   MultiTradeStatus = "finished"
	MultiTradeStatusFailed     MultiTradeStatus = "failed"

	MultiTradeStepNone         MultiTradeStep = "none"
	MultiTradeStepProcessChild MultiTradeStep = "process_child"
	MultiTradeStepWaitChild    MultiTradeStep = "wait_child"

	StrategySenderToReceiver Strategy = "sender_to_receiver"
	StrategyReceiverToSender Strategy = "receiver_to_sender"
)

// IsValid ...
func (s Strategy) IsValid() bool {
	return s == StrategySenderToReceiver || s == StrategyReceiverToSender
}

// Participant holds the encrypted credential and optional verification
// secret of an account taking part in a multi trade.
type Participant struct {
	Credential string `json:"-"`
	TOTPSecret string `json:"-"`
}

// MultiTradeChild is an entry of the plan: the immutable planned transfer
// plus the outcome copied from the single trade executing it.
type MultiTradeChild struct {
	Strategy      Strategy `json:"strategy"`
	FromAccountID string   `json:"fromAccountId"`
	ToAccountID   string   `json:"toAccountId"`
	AssetIDs      []string `json:"assetIds"`

	SingleTradeID       string            `json:"singleTradeId,omitempty"`
	Result              TradeResult       `json:"result"`
	Status              SingleTradeStatus `json:"status,omitempty"`
	ExternalTradeID     string            `json:"externalTradeId,omitempty"`
	ExternalTradeStatus string            `json:"externalTradeStatus,omitempty"`
	Error               *TradeError       `json:"error"`
	StartedAt           *time.Time        `json:"startedAt"`
	ProcessedAt         *time.Time        `json:"processedAt"`
}

// IsStarted returns whether a single trade was created for the child.
func (c *MultiTradeChild) IsStarted() bool {
	return c.SingleTradeID != ""
}

// IsResolved returns whether the child finished, failed or was pruned.
func (c *MultiTradeChild) IsResolved() bool {
	return c.Result == TradeResultFinished || c.Result == TradeResultFailed
}

// IsPruned returns whether the child was skipped because another leg failed
// with an error attributed to one of its accounts.
func (c *MultiTradeChild) IsPruned() bool {
	return !c.IsStarted() && c.Error != nil && c.Error.ErrorCode == ErrCodePruned
}

// Involves returns whether the account is source or destination of the child.
func (c *MultiTradeChild) Involves(accountID string) bool {
	return c.FromAccountID == accountID || c.ToAccountID == accountID
}

// Roles returns the account sending the offer and the one accepting it,
// according to the child's strategy.
func (c *MultiTradeChild) Roles() (senderID, accepterID string) {
	if c.Strategy == StrategyReceiverToSender {
		return c.ToAccountID, c.FromAccountID
	}
	return c.FromAccountID, c.ToAccountID
}

// ParticipantStats are the per-account counters of a multi trade result.
type ParticipantStats struct {
	TradesSent      int `json:"tradesSent"`
	TradesReceived  int `json:"tradesReceived"`
	TradesCompleted int `json:"tradesCompleted"`
	TradesFailed    int `json:"tradesFailed"`
}

// ChildError is a leg level error reported in a multi trade result.
type ChildError struct {
	Index         int        `json:"index"`
	SingleTradeID string     `json:"singleTradeId,omitempty"`
	FromAccountID string     `json:"fromAccountId"`
	ToAccountID   string     `json:"toAccountId"`
	Error         TradeError `json:"error"`
}

// MultiTradeResult is the final reconciled outcome of a multi trade.
// Ok does not imply that every requested asset moved, callers must check
// the ledger snapshots.
type MultiTradeResult struct {
	MultiTradeID     string                      `json:"multiTradeId"`
	Ok               bool                        `json:"ok"`
	Status           MultiTradeStatus            `json:"status"`
	SenderIDs        []string                    `json:"senderIds"`
	ReceiverIDs      []string                    `json:"receiverIds"`
	Participants     map[string]ParticipantStats `json:"participants"`
	HeldAssets       map[string][]string         `json:"heldAssets"`
	HeldFillerAssets map[string][]string         `json:"heldFillerAssets"`
	Errors           []ChildError                `json:"errors"`
}
