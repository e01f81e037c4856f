package domain

import "errors"

var (
	// ErrMultiTradeNotFound ...
	ErrMultiTradeNotFound = errors.New("multi trade not found")
	// ErrSingleTradeNotFound ...
	ErrSingleTradeNotFound = errors.New("single trade not found")
	// ErrJobNotFound ...
	ErrJobNotFound = errors.New("job not found")
	// ErrMultiTradeAlreadyExists ...
	ErrMultiTradeAlreadyExists = errors.New("multi trade already exists")
	// ErrSingleTradeAlreadyExists ...
	ErrSingleTradeAlreadyExists = errors.New("single trade already exists")

	// ErrPlanEmpty is returned if a plan has no children.
	ErrPlanEmpty = errors.New("plan must contain at least one child")
	// ErrPlanUnknownParticipant is returned if a child references an account
	// that is not among the participants.
	ErrPlanUnknownParticipant = errors.New("child references an unknown participant")
	// ErrPlanSameAccount ...
	ErrPlanSameAccount = errors.New("child source and destination must differ")
	// ErrPlanEmptyAssets ...
	ErrPlanEmptyAssets = errors.New("child must move at least one asset")
	// ErrPlanInvalidStrategy ...
	ErrPlanInvalidStrategy = errors.New("child strategy is not valid")
	// ErrPlanMissingCredential ...
	ErrPlanMissingCredential = errors.New("participant credential must not be null")

	// ErrLedgerAssetNotHeld is returned when removing an asset from an
	// account that does not hold it.
	ErrLedgerAssetNotHeld = errors.New("asset is not held by account")
	// ErrLedgerAssetAlreadyHeld is returned when adding an asset that is
	// already held by some account.
	ErrLedgerAssetAlreadyHeld = errors.New("asset is already held by an account")

	// ErrMultiTradeMustBePending ...
	ErrMultiTradeMustBePending = errors.New("multi trade must be pending")
	// ErrMultiTradeMustBeProcessing ...
	ErrMultiTradeMustBeProcessing = errors.New("multi trade must be processing")
	// ErrMultiTradeNotProcessed is returned when acknowledging a multi trade
	// that has not reached a terminal status yet.
	ErrMultiTradeNotProcessed = errors.New("multi trade is not processed yet")
	// ErrMultiTradeAlreadyAcknowledged is returned by a second acknowledge.
	ErrMultiTradeAlreadyAcknowledged = errors.New("multi trade already acknowledged")
	// ErrNoChildInFlight ...
	ErrNoChildInFlight = errors.New("multi trade has no child in flight")
	// ErrChildMismatch is returned if a single trade outcome is applied to a
	// child that does not reference it.
	ErrChildMismatch = errors.New("single trade does not match the child in flight")

	// ErrSingleTradeNotPaused ...
	ErrSingleTradeNotPaused = errors.New("single trade is not paused")
	// ErrSingleTradeProcessed ...
	ErrSingleTradeProcessed = errors.New("single trade is already processed")
	// ErrChallengeAccountMismatch is returned if a challenge is authorized by
	// an account other than the one blocking the trade.
	ErrChallengeAccountMismatch = errors.New("account is not blocking the single trade")
	// ErrMissingChallengeSolution ...
	ErrMissingChallengeSolution = errors.New("either code or secret must be provided")
	// ErrUnknownParty ...
	ErrUnknownParty = errors.New("account is not a party of the single trade")
)
