package tradeapi

import (
	"errors"
	"fmt"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

var (
	// ErrCredentialUnavailable is returned if a stored credential or secret
	// cannot be decrypted. It means data corruption and is not recoverable.
	ErrCredentialUnavailable = errors.New("credential cannot be decrypted")
	// ErrMalformedChallengeMetadata ...
	ErrMalformedChallengeMetadata = errors.New("challenge metadata is malformed")
)

// ChallengeError is returned when a two-step verification challenge cannot
// be solved automatically because the account has no stored secret: a
// human must provide a code or a secret for AccountID.
type ChallengeError struct {
	AccountID string
	Reason    *domain.TradeError
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf(
		"account %s must solve a challenge: %s", e.AccountID, e.Reason.Message,
	)
}

// ChallengeType returns the type of challenge to prompt for.
func (e *ChallengeError) ChallengeType() string {
	return e.Reason.ErrorCode
}
