// Package crypto provides at-rest encryption for account API keys using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// versionPrefix tags the encrypted-secret wire format.
	versionPrefix = "v1"
)

// EncryptSecret encrypts a secret with a password. The result is a compact
// token of the form "v1:<salt>:<nonce>:<ciphertext>" with base64-encoded
// segments, suitable for inline storage in a config file.
func EncryptSecret(secret, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	if secret == "" {
		return "", errors.New("crypto: secret must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(secret), nil)

	enc := base64.StdEncoding
	return strings.Join([]string{
		versionPrefix,
		enc.EncodeToString(salt),
		enc.EncodeToString(nonce),
		enc.EncodeToString(ciphertext),
	}, ":"), nil
}

// DecryptSecret decrypts a token produced by EncryptSecret.
func DecryptSecret(token, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	parts := strings.Split(token, ":")
	if len(parts) != 4 {
		return "", errors.New("crypto: malformed encrypted secret")
	}
	if parts[0] != versionPrefix {
		return "", fmt.Errorf("crypto: unsupported version %q", parts[0])
	}

	enc := base64.StdEncoding
	salt, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := enc.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	return string(plaintext), nil
}

// ResolveSecret returns the plaintext secret from either a raw value or an
// encrypted token. Raw takes precedence when both are set.
func ResolveSecret(raw, encrypted, password string) (string, error) {
	if raw != "" {
		return raw, nil
	}
	if encrypted != "" {
		return DecryptSecret(encrypted, password)
	}
	return "", errors.New("crypto: no secret source configured")
}
