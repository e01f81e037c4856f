package tradeapi_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

// **** Trading platform ****

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) SendOffer(
	ctx context.Context, credential string, offers [2]domain.Offer,
	challenge *ports.ChallengeHeaders,
) (string, error) {
	args := m.Called(credential, offers, challenge)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) AcceptOffer(
	ctx context.Context, credential, tradeID string,
	challenge *ports.ChallengeHeaders,
) (string, error) {
	args := m.Called(credential, tradeID, challenge)
	return args.String(0), args.Error(1)
}

func (m *mockPlatform) GetTrade(
	ctx context.Context, credential, tradeID string,
) (*ports.TradeInfo, error) {
	args := m.Called(credential, tradeID)

	var res *ports.TradeInfo
	if a := args.Get(0); a != nil {
		res = a.(*ports.TradeInfo)
	}
	return res, args.Error(1)
}

func (m *mockPlatform) DeclineTrade(
	ctx context.Context, credential, tradeID string,
) error {
	args := m.Called(credential, tradeID)
	return args.Error(0)
}

// **** Two-step verification ****

type mockVerification struct {
	mock.Mock
}

func (m *mockVerification) VerifyCode(
	ctx context.Context, credential string,
	user ports.VerificationUser, req ports.VerificationRequest,
) (string, error) {
	args := m.Called(credential, user, req)
	return args.String(0), args.Error(1)
}

func (m *mockVerification) GenerateChallenge(
	ctx context.Context, credential, accountID string,
) (*ports.ChallengeMetadata, error) {
	args := m.Called(credential, accountID)

	var res *ports.ChallengeMetadata
	if a := args.Get(0); a != nil {
		res = a.(*ports.ChallengeMetadata)
	}
	return res, args.Error(1)
}

func (m *mockVerification) RedeemChallenge(
	ctx context.Context, credential string,
	challenge ports.ChallengeMetadata, verificationToken string,
) error {
	args := m.Called(credential, challenge, verificationToken)
	return args.Error(0)
}

// **** Code generator ****

type mockCodes struct {
	mock.Mock
}

func (m *mockCodes) ComputeCode(secret string) (string, error) {
	args := m.Called(secret)
	return args.String(0), args.Error(1)
}
