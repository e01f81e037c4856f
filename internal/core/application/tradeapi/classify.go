package tradeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/pkg/circuitbreaker"
)

// Operations, used to pick classification fallbacks and to label metrics.
const (
	OpSendOffer         = "send_offer"
	OpAcceptOffer       = "accept_offer"
	OpGetTrade          = "get_trade"
	OpDeclineTrade      = "decline_trade"
	OpVerifyCode        = "verify_code"
	OpGenerateChallenge = "generate_challenge"
	OpRedeemChallenge   = "redeem_challenge"
)

// Error codes of the platform.
const (
	PlatformCodeBadSession          = 0
	PlatformCodeAccountModerated    = 1
	PlatformCodeTradeNotActive      = 3
	PlatformCodeAssetNotTradeable   = 12
	PlatformCodeRateLimited         = 14
	PlatformCodeVerificationExpired = 17
)

// Classify converts the error returned by a platform call made by accountID
// into a normalized TradeError. Rules are evaluated in order, the first
// match wins. Requests refused by an open circuit breaker and errors other
// than *ports.PlatformError are network failures, reported as transient.
func Classify(op, accountID string, err error) *domain.TradeError {
	if circuitbreaker.IsOpen(err) {
		return &domain.TradeError{
			ErrorCode: domain.ErrCodeServerUnavailable,
			Message:   fmt.Sprintf("%s: trading platform circuit open: %s", op, err),
		}
	}

	var perr *ports.PlatformError
	if !errors.As(err, &perr) {
		return &domain.TradeError{
			ErrorCode: domain.ErrCodeServerUnavailable,
			Message:   fmt.Sprintf("%s: trading platform unreachable: %s", op, err),
		}
	}

	challengeType := strings.ToLower(perr.Header(ports.ChallengeTypeHeader))

	switch {
	case perr.StatusCode >= http.StatusInternalServerError:
		return &domain.TradeError{
			StatusCode: perr.StatusCode,
			ErrorCode:  domain.ErrCodeServerUnavailable,
			Message:    fmt.Sprintf("%s: trading platform unavailable", op),
		}
	case perr.StatusCode == http.StatusUnauthorized &&
		perr.Code == PlatformCodeBadSession:
		return attributed(perr, domain.ErrCodeAuthenticationInvalid, accountID,
			"credential of account %s is no longer valid", accountID,
		)
	case perr.StatusCode == http.StatusBadRequest &&
		perr.Code == PlatformCodeVerificationExpired:
		return attributed(perr, domain.ErrCodeTwoStepVerificationExpired, accountID,
			"account %s must verify again before trading", accountID,
		)
	case perr.StatusCode == http.StatusForbidden &&
		challengeType == ports.ChallengeTypeTwoStepVerification:
		tradeErr := attributed(perr, domain.ErrCodeTwoStepVerificationRequired, accountID,
			"account %s must provide a one-time code", accountID,
		)
		tradeErr.Headers = challengeHeaders(perr)
		return tradeErr
	case perr.StatusCode == http.StatusForbidden &&
		challengeType == ports.ChallengeTypeForceAuthenticator:
		return attributed(perr, domain.ErrCodeAuthenticatorSetupRequired, accountID,
			"account %s must set up an authenticator", accountID,
		)
	case perr.StatusCode == http.StatusForbidden &&
		perr.Code == PlatformCodeAccountModerated:
		return attributed(perr, domain.ErrCodeAccountModerated, accountID,
			"account %s is moderated", accountID,
		)
	}

	switch op {
	case OpSendOffer:
		if perr.Code == PlatformCodeAssetNotTradeable {
			return &domain.TradeError{
				StatusCode: perr.StatusCode,
				ErrorCode:  domain.ErrCodeAssetNotTradeable,
				Message:    "one or more assets are no longer tradeable",
			}
		}
		if perr.Code == PlatformCodeRateLimited {
			return attributed(perr, domain.ErrCodeRateLimited, accountID,
				"account %s is sending too many trades", accountID,
			)
		}
	case OpAcceptOffer:
		if perr.Code == PlatformCodeTradeNotActive {
			return &domain.TradeError{
				StatusCode: perr.StatusCode,
				ErrorCode:  domain.ErrCodeTradeNotActive,
				Message:    "trade no longer active",
			}
		}
	}

	if perr.StatusCode == http.StatusTooManyRequests {
		return attributed(perr, domain.ErrCodeRateLimited, accountID,
			"account %s is rate limited", accountID,
		)
	}

	message := perr.Message
	if message == "" {
		message = http.StatusText(perr.StatusCode)
	}
	return &domain.TradeError{
		StatusCode: perr.StatusCode,
		ErrorCode:  domain.ErrCodePlatform,
		Message:    fmt.Sprintf("%s: %s", op, message),
	}
}

// IsChallenge returns whether the error can be solved with a one-time code.
func IsChallenge(tradeErr *domain.TradeError) bool {
	return tradeErr.ErrorCode == domain.ErrCodeTwoStepVerificationRequired ||
		tradeErr.ErrorCode == domain.ErrCodeTwoStepVerificationExpired
}

func attributed(
	perr *ports.PlatformError, errorCode, accountID, format string,
	a ...interface{},
) *domain.TradeError {
	tradeErr := domain.NewAccountTradeError(errorCode, accountID, format, a...)
	tradeErr.StatusCode = perr.StatusCode
	return tradeErr
}

func challengeHeaders(perr *ports.PlatformError) map[string]string {
	headers := make(map[string]string)
	for _, key := range []string{
		ports.ChallengeIDHeader,
		ports.ChallengeTypeHeader,
		ports.ChallengeMetadataHeader,
	} {
		if v := perr.Header(key); v != "" {
			headers[key] = v
		}
	}
	return headers
}
