package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoChildInFlight is the CurrentIndex of a multi trade that is not
// processing any child.
const NoChildInFlight = -1

// MultiTrade is the aggregate root of an asset movement request: an ordered
// list of children executed one at a time, and the live ownership ledgers
// of the assets in motion.
type MultiTrade struct {
	ID               string                 `json:"id"`
	Status           MultiTradeStatus       `json:"status" badgerhold:"index"`
	Step             MultiTradeStep         `json:"step"`
	Participants     map[string]Participant `json:"-"`
	HeldAssets       Ledger                 `json:"heldAssets"`
	HeldFillerAssets Ledger                 `json:"heldFillerAssets"`
	Children         []MultiTradeChild      `json:"children"`
	CurrentIndex     int                    `json:"currentIndex"`
	Error            *TradeError            `json:"error"`
	StartedAt        *time.Time             `json:"startedAt"`
	ProcessedAt      *time.Time             `json:"processedAt"`
	AcknowledgedAt   *time.Time             `json:"acknowledgedAt"`
	BroadcastAt      *time.Time             `json:"broadcastAt"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// NewMultiTrade validates the plan and returns a Pending multi trade.
func NewMultiTrade(
	participants map[string]Participant,
	heldAssets, heldFillerAssets map[string][]string,
	children []MultiTradeChild,
) (*MultiTrade, error) {
	if len(children) <= 0 {
		return nil, ErrPlanEmpty
	}
	for accountID, p := range participants {
		if p.Credential == "" {
			return nil, fmt.Errorf("%w: %s", ErrPlanMissingCredential, accountID)
		}
	}

	plan := make([]MultiTradeChild, 0, len(children))
	for i, c := range children {
		if !c.Strategy.IsValid() {
			return nil, fmt.Errorf("child %d: %w", i, ErrPlanInvalidStrategy)
		}
		if _, ok := participants[c.FromAccountID]; !ok {
			return nil, fmt.Errorf("child %d: %w: %s", i, ErrPlanUnknownParticipant, c.FromAccountID)
		}
		if _, ok := participants[c.ToAccountID]; !ok {
			return nil, fmt.Errorf("child %d: %w: %s", i, ErrPlanUnknownParticipant, c.ToAccountID)
		}
		if c.FromAccountID == c.ToAccountID {
			return nil, fmt.Errorf("child %d: %w", i, ErrPlanSameAccount)
		}
		if len(c.AssetIDs) <= 0 {
			return nil, fmt.Errorf("child %d: %w", i, ErrPlanEmptyAssets)
		}
		plan = append(plan, MultiTradeChild{
			Strategy:      c.Strategy,
			FromAccountID: c.FromAccountID,
			ToAccountID:   c.ToAccountID,
			AssetIDs:      append([]string{}, c.AssetIDs...),
			Result:        TradeResultNone,
		})
	}

	assets, err := NewLedger(heldAssets)
	if err != nil {
		return nil, fmt.Errorf("held assets: %w", err)
	}
	fillers, err := NewLedger(heldFillerAssets)
	if err != nil {
		return nil, fmt.Errorf("held filler assets: %w", err)
	}

	now := time.Now()
	return &MultiTrade{
		ID:               uuid.New().String(),
		Status:           MultiTradeStatusPending,
		Step:             MultiTradeStepNone,
		Participants:     participants,
		HeldAssets:       assets,
		HeldFillerAssets: fillers,
		Children:         plan,
		CurrentIndex:     NoChildInFlight,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsProcessed returns whether the multi trade reached a terminal status.
func (m *MultiTrade) IsProcessed() bool {
	return m.Status == MultiTradeStatusFinished ||
		m.Status == MultiTradeStatusFailed
}

// Start brings a Pending multi trade to Processing, ready to start its first
// child.
func (m *MultiTrade) Start() (bool, error) {
	if m.Status != MultiTradeStatusPending {
		if m.Status == MultiTradeStatusProcessing {
			return true, nil
		}
		return false, ErrMultiTradeMustBePending
	}

	now := time.Now()
	m.Status = MultiTradeStatusProcessing
	m.Step = MultiTradeStepProcessChild
	m.CurrentIndex = 0
	m.StartedAt = &now
	return true, nil
}

// MarshalJSON renders CurrentIndex as null when no child is in flight.
func (m MultiTrade) MarshalJSON() ([]byte, error) {
	type multiTrade MultiTrade
	var index *int
	if m.CurrentIndex >= 0 {
		i := m.CurrentIndex
		index = &i
	}
	return json.Marshal(struct {
		multiTrade
		CurrentIndex *int `json:"currentIndex"`
	}{multiTrade(m), index})
}

func (m *MultiTrade) UnmarshalJSON(data []byte) error {
	type multiTrade MultiTrade
	aux := struct {
		*multiTrade
		CurrentIndex *int `json:"currentIndex"`
	}{multiTrade: (*multiTrade)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.CurrentIndex = NoChildInFlight
	if aux.CurrentIndex != nil {
		m.CurrentIndex = *aux.CurrentIndex
	}
	return nil
}

// CurrentChild returns the child in flight and its index.
func (m *MultiTrade) CurrentChild() (int, *MultiTradeChild, error) {
	if m.Status != MultiTradeStatusProcessing {
		return -1, nil, ErrNoChildInFlight
	}
	i := m.CurrentIndex
	if i < 0 || i >= len(m.Children) {
		return -1, nil, ErrNoChildInFlight
	}
	return i, &m.Children[i], nil
}

// SingleTradeID returns the deterministic id of the single trade executing
// the child at the given index, so that re-running a crashed step finds the
// same record.
func (m *MultiTrade) SingleTradeID(index int) string {
	namespace, err := uuid.Parse(m.ID)
	if err != nil {
		namespace = uuid.NameSpaceOID
	}
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s/%d", m.ID, index))).String()
}

// PrepareChild builds the single trade for the child in flight: roles come
// from the child's strategy, each side offers the first filler it holds.
// The returned TradeError means the child cannot be started at all.
func (m *MultiTrade) PrepareChild() (*SingleTrade, *TradeError, error) {
	i, child, err := m.CurrentChild()
	if err != nil {
		return nil, nil, err
	}

	for _, assetID := range child.AssetIDs {
		if !m.HeldAssets.Holds(child.FromAccountID, assetID) {
			return nil, NewAccountTradeError(
				ErrCodeInvalidState, child.FromAccountID,
				"asset %s is not held by account %s", assetID, child.FromAccountID,
			), nil
		}
	}

	toFiller, ok := m.HeldFillerAssets.First(child.ToAccountID)
	if !ok {
		return nil, NewAccountTradeError(
			ErrCodeMissingFiller, child.ToAccountID,
			"account %s has no filler asset", child.ToAccountID,
		), nil
	}
	fromFiller, _ := m.HeldFillerAssets.First(child.FromAccountID)

	fromOffer := Offer{
		AccountID:     child.FromAccountID,
		AssetIDs:      append([]string{}, child.AssetIDs...),
		FillerAssetID: fromFiller,
	}
	toOffer := Offer{
		AccountID:     child.ToAccountID,
		FillerAssetID: toFiller,
	}

	senderID, accepterID := child.Roles()
	offers := [2]Offer{fromOffer, toOffer}
	if senderID != child.FromAccountID {
		offers = [2]Offer{toOffer, fromOffer}
	}

	trade := NewSingleTrade(
		m.SingleTradeID(i), m.ID, m.party(senderID), m.party(accepterID), offers,
	)
	return trade, nil, nil
}

// ChildStarted records the single trade executing the child in flight.
func (m *MultiTrade) ChildStarted(trade *SingleTrade) error {
	_, child, err := m.CurrentChild()
	if err != nil {
		return err
	}

	now := time.Now()
	child.SingleTradeID = trade.ID
	child.Status = trade.Status
	child.StartedAt = &now
	m.Step = MultiTradeStepWaitChild
	return nil
}

// ApplyChildOutcome copies the state of the single trade onto the child in
// flight. Once the single trade is processed, the ledgers are reconciled (on
// success) or the remaining children pruned (on failure attributed to an
// account) and the multi trade advances to the next child or finalizes.
// It returns whether the child was resolved.
func (m *MultiTrade) ApplyChildOutcome(trade *SingleTrade) (bool, error) {
	i, child, err := m.CurrentChild()
	if err != nil {
		return false, err
	}
	if child.SingleTradeID != trade.ID {
		return false, ErrChildMismatch
	}

	child.Status = trade.Status
	child.StartedAt = trade.StartedAt
	if trade.ExternalTrade != nil {
		child.ExternalTradeID = trade.ExternalTrade.ID
		child.ExternalTradeStatus = trade.ExternalTrade.Status
	}
	if !trade.IsProcessed() {
		return false, nil
	}

	child.Result = trade.Result
	child.Error = trade.Error
	child.ProcessedAt = trade.ProcessedAt

	if trade.Result == TradeResultFinished {
		if err := m.Reconcile(trade.Offers); err != nil {
			tradeErr := NewTradeError(ErrCodeInvalidState, "reconciliation: %s", err)
			child.Error = tradeErr
			m.fail(tradeErr)
		}
	} else {
		m.onChildFailed(i, trade.Error)
	}

	m.advance()
	return true, nil
}

// FailChild resolves the child in flight as failed without starting it.
func (m *MultiTrade) FailChild(tradeErr *TradeError) error {
	i, child, err := m.CurrentChild()
	if err != nil {
		return err
	}

	now := time.Now()
	child.Result = TradeResultFailed
	child.Error = tradeErr
	child.ProcessedAt = &now

	m.onChildFailed(i, tradeErr)
	m.advance()
	return nil
}

// Reconcile moves the assets and fillers of the executed offers to their
// counterparts. The ledgers are left untouched if any move is not
// consistent with them.
func (m *MultiTrade) Reconcile(offers [2]Offer) error {
	assets := m.HeldAssets.Clone()
	fillers := m.HeldFillerAssets.Clone()

	for i, offer := range offers {
		counterpart := offers[1-i].AccountID
		if err := assets.Transfer(offer.AccountID, counterpart, offer.AssetIDs); err != nil {
			return err
		}
		if offer.FillerAssetID == "" {
			continue
		}
		if err := fillers.Transfer(
			offer.AccountID, counterpart, []string{offer.FillerAssetID},
		); err != nil {
			return err
		}
	}

	m.HeldAssets = assets
	m.HeldFillerAssets = fillers
	return nil
}

// Prune resolves as failed every not yet started child after the given index
// that involves the account. It returns the indexes of the pruned children.
func (m *MultiTrade) Prune(accountID string, after int) []int {
	pruned := make([]int, 0)
	now := time.Now()
	for j := after + 1; j < len(m.Children); j++ {
		child := &m.Children[j]
		if child.IsStarted() || child.IsResolved() || !child.Involves(accountID) {
			continue
		}
		child.Result = TradeResultFailed
		child.Error = NewAccountTradeError(
			ErrCodePruned, accountID,
			"leg skipped: account %s failed in leg %d", accountID, after,
		)
		child.ProcessedAt = &now
		pruned = append(pruned, j)
	}
	return pruned
}

// Acknowledge marks the result of a processed multi trade as received by
// the caller. It can be done only once.
func (m *MultiTrade) Acknowledge() error {
	if !m.IsProcessed() {
		return ErrMultiTradeNotProcessed
	}
	if m.AcknowledgedAt != nil {
		return ErrMultiTradeAlreadyAcknowledged
	}
	now := time.Now()
	m.AcknowledgedAt = &now
	return nil
}

// ResultBroadcast records that the result of the processed multi trade was
// handed to the notification channel. It returns false if that happened
// already.
func (m *MultiTrade) ResultBroadcast() bool {
	if !m.IsProcessed() || m.BroadcastAt != nil {
		return false
	}
	now := time.Now()
	m.BroadcastAt = &now
	return true
}

// Result returns the final reconciled outcome of the multi trade.
func (m *MultiTrade) Result() MultiTradeResult {
	senderIDs := make([]string, 0)
	receiverIDs := make([]string, 0)
	stats := make(map[string]ParticipantStats)
	errs := make([]ChildError, 0)

	for i, child := range m.Children {
		senderIDs = appendUnique(senderIDs, child.FromAccountID)
		receiverIDs = appendUnique(receiverIDs, child.ToAccountID)
		if _, ok := stats[child.FromAccountID]; !ok {
			stats[child.FromAccountID] = ParticipantStats{}
		}
		if _, ok := stats[child.ToAccountID]; !ok {
			stats[child.ToAccountID] = ParticipantStats{}
		}

		if child.Error != nil {
			errs = append(errs, ChildError{
				Index:         i,
				SingleTradeID: child.SingleTradeID,
				FromAccountID: child.FromAccountID,
				ToAccountID:   child.ToAccountID,
				Error:         *child.Error,
			})
		}
		if !child.IsStarted() {
			continue
		}

		senderID, accepterID := child.Roles()
		sender, accepter := stats[senderID], stats[accepterID]
		sender.TradesSent++
		accepter.TradesReceived++
		switch child.Result {
		case TradeResultFinished:
			sender.TradesCompleted++
			accepter.TradesCompleted++
		case TradeResultFailed:
			sender.TradesFailed++
			accepter.TradesFailed++
		}
		stats[senderID], stats[accepterID] = sender, accepter
	}

	return MultiTradeResult{
		MultiTradeID:     m.ID,
		Ok:               m.Status == MultiTradeStatusFinished,
		Status:           m.Status,
		SenderIDs:        senderIDs,
		ReceiverIDs:      receiverIDs,
		Participants:     stats,
		HeldAssets:       m.HeldAssets.Clone(),
		HeldFillerAssets: m.HeldFillerAssets.Clone(),
		Errors:           errs,
	}
}

func (m *MultiTrade) party(accountID string) TradeParty {
	p := m.Participants[accountID]
	party := TradeParty{
		AccountID:  accountID,
		Credential: p.Credential,
	}
	if p.TOTPSecret != "" {
		party.TOTP = &TOTP{Secret: p.TOTPSecret}
	}
	return party
}

func (m *MultiTrade) onChildFailed(index int, tradeErr *TradeError) {
	if accountID, ok := tradeErr.AccountID(); ok {
		m.Prune(accountID, index)
		return
	}
	if tradeErr == nil {
		tradeErr = NewTradeError(ErrCodeInvalidState, "leg %d failed without error", index)
	}
	m.fail(tradeErr)
}

func (m *MultiTrade) fail(tradeErr *TradeError) {
	m.Status = MultiTradeStatusFailed
	m.Error = tradeErr
}

func (m *MultiTrade) advance() {
	if m.Status == MultiTradeStatusProcessing && m.CurrentIndex >= 0 {
		for j := m.CurrentIndex + 1; j < len(m.Children); j++ {
			if !m.Children[j].IsResolved() {
				m.CurrentIndex = j
				m.Step = MultiTradeStepProcessChild
				return
			}
		}
		m.Status = MultiTradeStatusFinished
	}
	m.finalize()
}

func (m *MultiTrade) finalize() {
	now := time.Now()
	m.Participants = nil
	m.CurrentIndex = NoChildInFlight
	m.Step = MultiTradeStepNone
	m.ProcessedAt = &now
}

func appendUnique(list []string, item string) []string {
	for _, i := range list {
		if i == item {
			return list
		}
	}
	return append(list, item)
}
