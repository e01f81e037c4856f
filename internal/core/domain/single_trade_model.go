package domain

import "time"

// TradeResult is the outcome of a single trade or multi trade child.
type TradeResult string

// SingleTradeStatus represents the different statuses that a single trade
// can assume.
type SingleTradeStatus string

// SingleTradeStep is the coarse progress marker of a single trade.
type SingleTradeStep string

// TradeDepth is the fine grained sub-phase of a single trade step.
type TradeDepth string

const (
	TradeResultNone     TradeResult = "none"
	TradeResultFinished TradeResult = "finished"
	TradeResultFailed   TradeResult = "failed"

	SingleTradeStatusPending    SingleTradeStatus = "pending"
	SingleTradeStatusProcessing SingleTradeStatus = "processing"
	SingleTradeStatusProcessed  SingleTradeStatus = "processed"
	SingleTradeStatusPaused     SingleTradeStatus = "paused"
	SingleTradeStatusDelayed    SingleTradeStatus = "delayed"
	SingleTradeStatusBacklogged SingleTradeStatus = "backlogged"

	SingleTradeStepNone       SingleTradeStep = "none"
	SingleTradeStepStartTrade SingleTradeStep = "start_trade"
	SingleTradeStepWaitTrade  SingleTradeStep = "wait_trade"

	TradeDepthNone            TradeDepth = "none"
	TradeDepthPrepareTrade    TradeDepth = "prepare_trade"
	TradeDepthSendTrade       TradeDepth = "send_trade"
	TradeDepthAcceptTrade     TradeDepth = "accept_trade"
	TradeDepthCheckAsSender   TradeDepth = "check_as_sender"
	TradeDepthCheckAsAccepter TradeDepth = "check_as_accepter"
)

// TOTP holds what is needed to answer a two-step verification challenge for
// an account: the (encrypted) shared secret and/or a one-time code supplied
// by a human.
type TOTP struct {
	Secret string `json:"-"`
	Code   string `json:"-"`
}

// Challenge records that the party is blocking the trade at the given depth
// until a code or a secret is provided.
type Challenge struct {
	Type       string     `json:"type"`
	Depth      TradeDepth `json:"depth"`
	PromptedAt time.Time  `json:"promptedAt"`
}

// TradeParty is one side of a single trade. Credential and TOTP secret are
// stored encrypted and are cleared once the trade is processed.
type TradeParty struct {
	AccountID  string     `json:"accountId"`
	Credential string     `json:"-"`
	TOTP       *TOTP      `json:"-"`
	Challenge  *Challenge `json:"challenge,omitempty"`
}

// HasSecret returns whether the party has a stored verification secret.
func (p *TradeParty) HasSecret() bool {
	return p.TOTP != nil && p.TOTP.Secret != ""
}

// HasCode returns whether the party has a one-time code supplied by a human.
func (p *TradeParty) HasCode() bool {
	return p.TOTP != nil && p.TOTP.Code != ""
}

// ConsumeCode returns the one-time code and clears it, a code can be used
// only once.
func (p *TradeParty) ConsumeCode() string {
	if !p.HasCode() {
		return ""
	}
	code := p.TOTP.Code
	p.TOTP.Code = ""
	return code
}

// Redact clears every credential-capable field.
func (p *TradeParty) Redact() {
	p.Credential = ""
	p.TOTP = nil
	p.Challenge = nil
}

// Offer is what one side gives in a single trade.
type Offer struct {
	AccountID     string   `json:"accountId"`
	AssetIDs      []string `json:"assetIds,omitempty"`
	FillerAssetID string   `json:"fillerAssetId,omitempty"`
}

// Items returns the assets of the offer plus its filler, if any.
func (o Offer) Items() []string {
	items := append([]string{}, o.AssetIDs...)
	if o.FillerAssetID != "" {
		items = append(items, o.FillerAssetID)
	}
	return items
}

// ExternalTrade is the platform native trade once the offer is sent.
type ExternalTrade struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
