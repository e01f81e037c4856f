package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tdex-network/tdex-broker/internal/core/application/tradeapi"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

type verifyCodeRequest struct {
	ChallengeID string `json:"challengeId"`
	ActionType  string `json:"actionType"`
	Code        string `json:"code"`
}

type verifyCodeResponse struct {
	VerificationToken string `json:"verificationToken"`
}

type generateChallengeRequest struct {
	UserID string `json:"userId"`
}

type redeemChallengeRequest struct {
	ChallengeID       string `json:"challengeId"`
	ChallengeType     string `json:"challengeType"`
	ChallengeMetadata string `json:"challengeMetadata"`
}

type twoStepVerification struct {
	verification *client
	challenge    *client
}

// NewTwoStepVerification returns the http client of the two-step
// verification API and of the challenge API used to clear frictions.
func NewTwoStepVerification(
	verificationURL, challengeURL string, requestTimeout time.Duration,
) (ports.TwoStepVerification, error) {
	verification, err := newClient("verification", verificationURL, requestTimeout)
	if err != nil {
		return nil, err
	}
	challenge, err := newClient("challenge", challengeURL, requestTimeout)
	if err != nil {
		return nil, err
	}
	return &twoStepVerification{verification, challenge}, nil
}

func (v *twoStepVerification) VerifyCode(
	ctx context.Context, credential string,
	user ports.VerificationUser, req ports.VerificationRequest,
) (string, error) {
	path := fmt.Sprintf(
		"/v1/users/%s/challenges/%s/verify",
		url.PathEscape(user.AccountID), url.PathEscape(user.MediaType),
	)
	resp := verifyCodeResponse{}
	if err := v.verification.post(ctx, path, credential, nil, verifyCodeRequest{
		ChallengeID: req.ChallengeID,
		ActionType:  req.ActionType,
		Code:        req.Code,
	}, &resp); err != nil {
		return "", err
	}
	if resp.VerificationToken == "" {
		return "", fmt.Errorf("verify code: missing verification token in response")
	}
	return resp.VerificationToken, nil
}

func (v *twoStepVerification) GenerateChallenge(
	ctx context.Context, credential, accountID string,
) (*ports.ChallengeMetadata, error) {
	resp := ports.ChallengeMetadata{}
	if err := v.challenge.post(
		ctx, "/v1/challenges/generate", credential, nil,
		generateChallengeRequest{accountID}, &resp,
	); err != nil {
		return nil, err
	}
	if resp.ChallengeID == "" {
		return nil, fmt.Errorf("generate challenge: missing challenge id in response")
	}
	if resp.UserID == "" {
		resp.UserID = accountID
	}
	return &resp, nil
}

func (v *twoStepVerification) RedeemChallenge(
	ctx context.Context, credential string,
	challenge ports.ChallengeMetadata, verificationToken string,
) error {
	metadata, err := tradeapi.EncodeMetadata(tradeapi.VerifiedMetadata{
		VerificationToken: verificationToken,
		ChallengeID:       challenge.ChallengeID,
		ActionType:        challenge.ActionType,
	})
	if err != nil {
		return err
	}
	return v.challenge.post(
		ctx, "/v1/challenges/continue", credential, nil, redeemChallengeRequest{
			ChallengeID:       challenge.ChallengeID,
			ChallengeType:     ports.ChallengeTypeTwoStepVerification,
			ChallengeMetadata: metadata,
		}, nil,
	)
}
