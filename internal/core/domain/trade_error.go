package domain

import "fmt"

// Normalized error codes.
const (
	ErrCodeServerUnavailable           = "server_unavailable"
	ErrCodeAuthenticationInvalid       = "authentication_invalid"
	ErrCodeTwoStepVerificationExpired  = "two_step_verification_expired"
	ErrCodeTwoStepVerificationRequired = "two_step_verification_required"
	ErrCodeAuthenticatorSetupRequired  = "authenticator_setup_required"
	ErrCodeAccountModerated            = "account_moderated"
	ErrCodeAssetNotTradeable           = "asset_not_tradeable"
	ErrCodeRateLimited                 = "rate_limited"
	ErrCodeTradeNotActive              = "trade_not_active"
	ErrCodePlatform                    = "platform_error"
	ErrCodeInvalidState                = "invalid_state"
	ErrCodeChallengeTimeout            = "challenge_timeout"
	ErrCodeTradeTimeout                = "trade_timeout"
	ErrCodeMalformedOffer              = "malformed_offer"
	ErrCodeMissingFiller               = "missing_filler"
	ErrCodePruned                      = "pruned"
	errCodeExternalStatusPrefix        = "trade_"
)

// TradeError is the normalized error stored on single trades and copied onto
// multi trade children. When Field is FieldAccountID the error is attributed
// to the account FieldData.
type TradeError struct {
	StatusCode int               `json:"statusCode"`
	ErrorCode  string            `json:"errorCode"`
	Message    string            `json:"message"`
	Field      string            `json:"field,omitempty"`
	FieldData  string            `json:"fieldData,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// NewTradeError returns an error that is not attributed to any account.
func NewTradeError(errorCode, format string, a ...interface{}) *TradeError {
	return &TradeError{
		ErrorCode: errorCode,
		Message:   fmt.Sprintf(format, a...),
	}
}

// NewAccountTradeError returns an error attributed to the given account.
func NewAccountTradeError(
	errorCode, accountID, format string, a ...interface{},
) *TradeError {
	return &TradeError{
		ErrorCode: errorCode,
		Message:   fmt.Sprintf(format, a...),
		Field:     FieldAccountID,
		FieldData: accountID,
	}
}

// NewExternalStatusError returns the error of a trade that the platform
// moved to a terminal non-success status.
func NewExternalStatusError(status string) *TradeError {
	return &TradeError{
		ErrorCode: errCodeExternalStatusPrefix + status,
		Message:   fmt.Sprintf("trade ended with status %s", status),
	}
}

func (e *TradeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.ErrorCode, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// AccountID returns the id of the account the error is attributed to, if any.
func (e *TradeError) AccountID() (string, bool) {
	if e == nil || e.Field != FieldAccountID || e.FieldData == "" {
		return "", false
	}
	return e.FieldData, true
}

// IsAccountAttributable returns whether the error is tagged with the id of
// the offending account.
func (e *TradeError) IsAccountAttributable() bool {
	_, ok := e.AccountID()
	return ok
}

// IsTransient returns whether the error is due to a platform outage.
func (e *TradeError) IsTransient() bool {
	return e != nil && e.ErrorCode == ErrCodeServerUnavailable
}
