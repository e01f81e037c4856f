package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the length in bytes of the AES-256 key used by the vault.
	KeySize = 32

	separator = ":"
	tagSize   = 16
)

// Vault encrypts and decrypts account credentials with AES-256-GCM.
// The stored form is "<nonce>:<tag>:<ciphertext>", every part hex encoded,
// so that a stored value can be decrypted given only the static key.
type Vault struct {
	aead cipher.AEAD
}

// New returns a Vault for the given static key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithTagSize(blockCipher, tagSize)
	if err != nil {
		return nil, err
	}
	return &Vault{gcm}, nil
}

// NewFromHex is like New but takes an hex encoded key.
func NewFromHex(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return New(key)
}

// Encrypt seals the plaintext with a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt opens a value produced by Encrypt. It never returns a partial or
// unauthenticated plaintext.
func (v *Vault) Decrypt(stored string) (string, error) {
	parts := strings.Split(stored, separator)
	if len(parts) != 3 {
		return "", ErrMalformedCypherText
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", ErrMalformedCypherText
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedCypherText
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedCypherText
	}

	plaintext, err := v.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

// Encode serializes v to JSON and encrypts the result.
func (v *Vault) Encode(value interface{}) (string, error) {
	buf, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return v.Encrypt(string(buf))
}

// Decode decrypts a value produced by Encode into the given pointer.
func (v *Vault) Decode(stored string, value interface{}) error {
	plaintext, err := v.Decrypt(stored)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), value); err != nil {
		return ErrMalformedPayload
	}
	return nil
}

// DeriveKey derives a 32 byte key from a custom passphrase. A random salt is
// generated if not provided.
func DeriveKey(passphrase, salt []byte) ([]byte, []byte, error) {
	if len(passphrase) <= 0 {
		return nil, nil, ErrNullPassphrase
	}
	if salt == nil {
		salt = make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	// 2^15 keeps key derivation interactive for the command line tool.
	key, err := scrypt.Key(passphrase, salt, 32768, 8, 1, KeySize)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}
