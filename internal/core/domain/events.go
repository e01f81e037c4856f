package domain

import "time"

// ChallengePrompt is broadcast when a single trade pauses waiting for a
// human to solve a two-step verification challenge for AccountID.
type ChallengePrompt struct {
	SingleTradeID string     `json:"singleTradeId"`
	MultiTradeID  string     `json:"multiTradeId,omitempty"`
	AccountID     string     `json:"accountId"`
	ChallengeType string     `json:"challengeType"`
	Depth         TradeDepth `json:"depth"`
	Deadline      time.Time  `json:"deadline"`
}
