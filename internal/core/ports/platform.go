package ports

import (
	"context"
	"fmt"
	"strings"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
)

// Headers of the platform challenge protocol.
const (
	ChallengeIDHeader       = "x-challenge-id"
	ChallengeTypeHeader     = "x-challenge-type"
	ChallengeMetadataHeader = "x-challenge-metadata"

	ChallengeTypeTwoStepVerification = "twostepverification"
	ChallengeTypeForceAuthenticator  = "forceauthenticator"
)

// ChallengeHeaders are sent along with a retried call once a challenge has
// been solved.
type ChallengeHeaders struct {
	ID       string
	Type     string
	Metadata string
}

// Map returns the headers in wire form.
func (h ChallengeHeaders) Map() map[string]string {
	return map[string]string{
		ChallengeIDHeader:       h.ID,
		ChallengeTypeHeader:     h.Type,
		ChallengeMetadataHeader: h.Metadata,
	}
}

// TradeInfo is the state of an external trade as seen by one of its parties.
type TradeInfo struct {
	ID       string
	Status   string
	IsActive bool
}

// PlatformError is the raw error response of the trading platform. Headers
// keys are lower case.
type PlatformError struct {
	StatusCode int
	Code       int
	Message    string
	Headers    map[string]string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Header returns the value of the given response header, if any.
func (e *PlatformError) Header(key string) string {
	if e.Headers == nil {
		return ""
	}
	return e.Headers[strings.ToLower(key)]
}

// TradingPlatform is the external item trading platform. Credentials are
// always in plaintext here, callers must decrypt them only for the duration
// of the call.
type TradingPlatform interface {
	SendOffer(
		ctx context.Context, credential string, offers [2]domain.Offer,
		challenge *ChallengeHeaders,
	) (string, error)
	AcceptOffer(
		ctx context.Context, credential, tradeID string,
		challenge *ChallengeHeaders,
	) (string, error)
	GetTrade(ctx context.Context, credential, tradeID string) (*TradeInfo, error)
	DeclineTrade(ctx context.Context, credential, tradeID string) error
}
