package ports

import "context"

// MediaTypeAuthenticator is the only verification media type supported.
const MediaTypeAuthenticator = "authenticator"

// VerificationUser ...
type VerificationUser struct {
	AccountID string
	MediaType string
}

// VerificationRequest ...
type VerificationRequest struct {
	ChallengeID string
	ActionType  string
	Code        string
}

// ChallengeMetadata is the content of the challenge metadata header issued
// by the platform, or of a challenge generated to clear friction.
type ChallengeMetadata struct {
	UserID      string `json:"userId"`
	ChallengeID string `json:"challengeId"`
	ActionType  string `json:"actionType"`
}

// TwoStepVerification is the platform's two-step verification API.
type TwoStepVerification interface {
	// VerifyCode verifies a one-time code for the challenge and returns the
	// verification token that proves it.
	VerifyCode(
		ctx context.Context, credential string,
		user VerificationUser, req VerificationRequest,
	) (string, error)
	// GenerateChallenge starts a friction clearing challenge for the account.
	GenerateChallenge(
		ctx context.Context, credential, accountID string,
	) (*ChallengeMetadata, error)
	// RedeemChallenge completes a challenge with the verification token.
	RedeemChallenge(
		ctx context.Context, credential string,
		challenge ChallengeMetadata, verificationToken string,
	) error
}

// CodeGenerator computes the current one-time code for a secret. It is a
// pure function with no I/O.
type CodeGenerator interface {
	ComputeCode(secret string) (string, error)
}

// Cipher is the credential vault as seen by the application.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) (string, error)
}
