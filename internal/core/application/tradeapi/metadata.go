package tradeapi

import (
	"encoding/base64"
	"encoding/json"
)

// VerifiedMetadata is the metadata sent back to the platform once the code of
// a challenge has been verified.
type VerifiedMetadata struct {
	VerificationToken string `json:"verificationToken"`
	RememberDevice    bool   `json:"rememberDevice"`
	ChallengeID       string `json:"challengeId"`
	ActionType        string `json:"actionType"`
}

// EncodeMetadata returns the base64 encoded json of the given metadata.
func EncodeMetadata(metadata interface{}) (string, error) {
	buf, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecodeMetadata parses a base64 encoded json metadata into the given
// pointer.
func DecodeMetadata(encoded string, metadata interface{}) error {
	if encoded == "" {
		return ErrMalformedChallengeMetadata
	}
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ErrMalformedChallengeMetadata
	}
	if err := json.Unmarshal(buf, metadata); err != nil {
		return ErrMalformedChallengeMetadata
	}
	return nil
}
