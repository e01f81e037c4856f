package vault

import "errors"

var (
	// ErrInvalidKey ...
	ErrInvalidKey = errors.New("vault key must be 32 bytes long")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrMalformedCypherText is returned if the stored value is not in the
	// nonce:tag:ciphertext form.
	ErrMalformedCypherText = errors.New("cypher text is malformed")
	// ErrAuthenticationFailed is returned if the authentication tag does not
	// match, ie. the cypher text was tampered or the key is wrong.
	ErrAuthenticationFailed = errors.New("cypher text authentication failed")
	// ErrMalformedPayload ...
	ErrMalformedPayload = errors.New("decrypted payload is not valid json")
)
