package tradeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/pkg/circuitbreaker"
	"github.com/tdex-network/tdex-broker/pkg/stats"
	"go.uber.org/ratelimit"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRateLimit = 10
)

// Config holds the collaborators and the tuning of a Handler.
type Config struct {
	Platform     ports.TradingPlatform
	Verification ports.TwoStepVerification
	Codes        ports.CodeGenerator
	Cipher       ports.Cipher
	// Timeout wraps every single outbound call.
	Timeout time.Duration
	// RateLimit is the max number of outbound calls per second.
	RateLimit int
}

func (c Config) validate() error {
	if c.Platform == nil {
		return fmt.Errorf("missing trading platform")
	}
	if c.Verification == nil {
		return fmt.Errorf("missing two-step verification service")
	}
	if c.Codes == nil {
		return fmt.Errorf("missing code generator")
	}
	if c.Cipher == nil {
		return fmt.Errorf("missing cipher")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// Handler performs the trading platform operations on behalf of a trade
// party. Credentials are decrypted only for the duration of a call, errors
// are returned either as *domain.TradeError, as *ChallengeError or, if the
// given context is done, as the context error.
type Handler struct {
	platform     ports.TradingPlatform
	verification ports.TwoStepVerification
	codes        ports.CodeGenerator
	cipher       ports.Cipher
	timeout      time.Duration
	limiter      ratelimit.Limiter
}

// NewHandler returns a new Handler for the given config.
func NewHandler(cfg Config) (*Handler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	rate := cfg.RateLimit
	if rate == 0 {
		rate = defaultRateLimit
	}

	return &Handler{
		platform:     cfg.Platform,
		verification: cfg.Verification,
		codes:        cfg.Codes,
		cipher:       cfg.Cipher,
		timeout:      timeout,
		limiter:      ratelimit.New(rate),
	}, nil
}

// SendOffer sends the offers as the given party and returns the id of the
// external trade.
func (h *Handler) SendOffer(
	ctx context.Context, sender *domain.TradeParty, offers [2]domain.Offer,
) (string, error) {
	credential, err := h.credential(sender)
	if err != nil {
		return "", err
	}

	var tradeID string
	if err := h.do(ctx, OpSendOffer, sender, credential, func(
		ctx context.Context, challenge *ports.ChallengeHeaders,
	) error {
		id, err := h.platform.SendOffer(ctx, credential, offers, challenge)
		tradeID = id
		return err
	}); err != nil {
		return "", err
	}
	return tradeID, nil
}

// AcceptOffer accepts the external trade as the given party and returns its
// resulting status. A trade that is no longer active because it already
// completed is not an error.
func (h *Handler) AcceptOffer(
	ctx context.Context, accepter *domain.TradeParty, tradeID string,
) (string, error) {
	credential, err := h.credential(accepter)
	if err != nil {
		return "", err
	}

	var status string
	err = h.do(ctx, OpAcceptOffer, accepter, credential, func(
		ctx context.Context, challenge *ports.ChallengeHeaders,
	) error {
		s, err := h.platform.AcceptOffer(ctx, credential, tradeID, challenge)
		status = s
		return err
	})
	if err == nil {
		return status, nil
	}

	var tradeErr *domain.TradeError
	if !errors.As(err, &tradeErr) || tradeErr.ErrorCode != domain.ErrCodeTradeNotActive {
		return "", err
	}

	info, getErr := h.getTrade(ctx, accepter, credential, tradeID)
	if getErr != nil {
		log.WithError(getErr).Warnf(
			"failed to re-check status of inactive trade %s", tradeID,
		)
		return "", tradeErr
	}
	if domain.IsExternalTradeCompleted(info.Status) {
		return info.Status, nil
	}
	tradeErr.Message = fmt.Sprintf("trade no longer active: %s", info.Status)
	return "", tradeErr
}

// GetTrade returns the external trade as seen by the given party.
func (h *Handler) GetTrade(
	ctx context.Context, party *domain.TradeParty, tradeID string,
) (*ports.TradeInfo, error) {
	credential, err := h.credential(party)
	if err != nil {
		return nil, err
	}
	return h.getTrade(ctx, party, credential, tradeID)
}

// DeclineTrade declines the external trade as the given party.
func (h *Handler) DeclineTrade(
	ctx context.Context, party *domain.TradeParty, tradeID string,
) error {
	credential, err := h.credential(party)
	if err != nil {
		return err
	}
	return h.do(ctx, OpDeclineTrade, party, credential, func(
		ctx context.Context, _ *ports.ChallengeHeaders,
	) error {
		return h.platform.DeclineTrade(ctx, credential, tradeID)
	})
}

func (h *Handler) getTrade(
	ctx context.Context, party *domain.TradeParty, credential, tradeID string,
) (*ports.TradeInfo, error) {
	var info *ports.TradeInfo
	if err := h.invoke(ctx, OpGetTrade, func(ctx context.Context) error {
		i, err := h.platform.GetTrade(ctx, credential, tradeID)
		info = i
		return err
	}); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Classify(OpGetTrade, party.AccountID, err)
	}
	return info, nil
}

// do performs the call and, if it fails with a two-step verification case,
// tries to solve the challenge with a code computed from the party's secret
// or supplied by a human, then retries the call once.
func (h *Handler) do(
	ctx context.Context, op string, party *domain.TradeParty, credential string,
	call func(ctx context.Context, challenge *ports.ChallengeHeaders) error,
) error {
	err := h.invoke(ctx, op, func(ctx context.Context) error {
		return call(ctx, nil)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tradeErr := Classify(op, party.AccountID, err)
	if !IsChallenge(tradeErr) {
		return tradeErr
	}

	code, fromSecret, err := h.oneTimeCode(party)
	if err != nil {
		return err
	}
	if code == "" {
		stats.Challenges.WithLabelValues("prompted").Inc()
		return &ChallengeError{AccountID: party.AccountID, Reason: tradeErr}
	}

	var challenge *ports.ChallengeHeaders
	if tradeErr.ErrorCode == domain.ErrCodeTwoStepVerificationRequired {
		challenge, err = h.solveChallenge(ctx, party.AccountID, credential, tradeErr.Headers, code)
	} else {
		err = h.clearFriction(ctx, party.AccountID, credential, code)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.Challenges.WithLabelValues("rejected").Inc()
		verifyErr := classifyVerification(party.AccountID, err)
		if !fromSecret && !verifyErr.IsTransient() {
			return &ChallengeError{AccountID: party.AccountID, Reason: verifyErr}
		}
		return verifyErr
	}
	stats.Challenges.WithLabelValues("solved").Inc()

	err = h.invoke(ctx, op, func(ctx context.Context) error {
		return call(ctx, challenge)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tradeErr = Classify(op, party.AccountID, err)
	if IsChallenge(tradeErr) && !fromSecret {
		return &ChallengeError{AccountID: party.AccountID, Reason: tradeErr}
	}
	return tradeErr
}

// solveChallenge verifies the code against the challenge issued in the
// response headers and returns the headers proving it.
func (h *Handler) solveChallenge(
	ctx context.Context, accountID, credential string,
	headers map[string]string, code string,
) (*ports.ChallengeHeaders, error) {
	var metadata ports.ChallengeMetadata
	if err := DecodeMetadata(headers[ports.ChallengeMetadataHeader], &metadata); err != nil {
		return nil, err
	}

	token, err := h.verifyCode(ctx, accountID, credential, metadata, code)
	if err != nil {
		return nil, err
	}

	verified, err := EncodeMetadata(VerifiedMetadata{
		VerificationToken: token,
		RememberDevice:    false,
		ChallengeID:       metadata.ChallengeID,
		ActionType:        metadata.ActionType,
	})
	if err != nil {
		return nil, err
	}

	challengeID := headers[ports.ChallengeIDHeader]
	if challengeID == "" {
		challengeID = metadata.ChallengeID
	}
	return &ports.ChallengeHeaders{
		ID:       challengeID,
		Type:     ports.ChallengeTypeTwoStepVerification,
		Metadata: verified,
	}, nil
}

// clearFriction generates a new challenge for the account, verifies the
// code against it and redeems the resulting token.
func (h *Handler) clearFriction(
	ctx context.Context, accountID, credential, code string,
) error {
	var metadata *ports.ChallengeMetadata
	if err := h.invoke(ctx, OpGenerateChallenge, func(ctx context.Context) error {
		m, err := h.verification.GenerateChallenge(ctx, credential, accountID)
		metadata = m
		return err
	}); err != nil {
		return err
	}

	token, err := h.verifyCode(ctx, accountID, credential, *metadata, code)
	if err != nil {
		return err
	}

	return h.invoke(ctx, OpRedeemChallenge, func(ctx context.Context) error {
		return h.verification.RedeemChallenge(ctx, credential, *metadata, token)
	})
}

func (h *Handler) verifyCode(
	ctx context.Context, accountID, credential string,
	metadata ports.ChallengeMetadata, code string,
) (string, error) {
	var token string
	err := h.invoke(ctx, OpVerifyCode, func(ctx context.Context) error {
		t, err := h.verification.VerifyCode(
			ctx, credential,
			ports.VerificationUser{
				AccountID: accountID,
				MediaType: ports.MediaTypeAuthenticator,
			},
			ports.VerificationRequest{
				ChallengeID: metadata.ChallengeID,
				ActionType:  metadata.ActionType,
				Code:        code,
			},
		)
		token = t
		return err
	})
	return token, err
}

// oneTimeCode returns a code computed from the party's stored secret or, if
// there is none, the one supplied by a human, which is consumed.
func (h *Handler) oneTimeCode(
	party *domain.TradeParty,
) (code string, fromSecret bool, err error) {
	if party.HasSecret() {
		secret, err := h.cipher.Decrypt(party.TOTP.Secret)
		if err != nil {
			return "", false, fmt.Errorf(
				"%w: secret of account %s", ErrCredentialUnavailable, party.AccountID,
			)
		}
		code, err := h.codes.ComputeCode(secret)
		if err != nil {
			return "", false, fmt.Errorf(
				"failed to compute code for account %s: %w", party.AccountID, err,
			)
		}
		return code, true, nil
	}
	return party.ConsumeCode(), false, nil
}

func (h *Handler) credential(party *domain.TradeParty) (string, error) {
	credential, err := h.cipher.Decrypt(party.Credential)
	if err != nil {
		return "", fmt.Errorf(
			"%w: credential of account %s", ErrCredentialUnavailable, party.AccountID,
		)
	}
	return credential, nil
}

func (h *Handler) invoke(
	ctx context.Context, op string, fn func(ctx context.Context) error,
) error {
	h.limiter.Take()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := fn(ctx)
	stats.PlatformRequests.WithLabelValues(op, outcome(err)).Inc()
	return err
}

func classifyVerification(accountID string, err error) *domain.TradeError {
	if errors.Is(err, ErrMalformedChallengeMetadata) {
		return domain.NewAccountTradeError(
			domain.ErrCodeTwoStepVerificationRequired, accountID,
			"challenge of account %s cannot be solved: %s", accountID, err,
		)
	}

	var perr *ports.PlatformError
	if !errors.As(err, &perr) || perr.StatusCode >= http.StatusInternalServerError {
		return Classify(OpVerifyCode, accountID, err)
	}
	tradeErr := domain.NewAccountTradeError(
		domain.ErrCodeTwoStepVerificationRequired, accountID,
		"verification of account %s rejected: %s", accountID, perr.Message,
	)
	tradeErr.StatusCode = perr.StatusCode
	return tradeErr
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if circuitbreaker.IsOpen(err) {
		return "circuit_open"
	}
	var perr *ports.PlatformError
	if errors.As(err, &perr) {
		return fmt.Sprintf("%d", perr.StatusCode)
	}
	return "error"
}
