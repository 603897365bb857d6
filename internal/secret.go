package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

// Secrets are prefix + base64url(32 random bytes). Both prefixes have the
// same length, so every issued secret shares one fixed total length and
// length validation needs no type dispatch.
const (
	TokenPrefix   = "cvt_"
	SessionPrefix = "cvs_"

	secretRandomSize = 32

	// SecretLength is the fixed total length of every issued secret.
	SecretLength = len(TokenPrefix) + 43 // 43 = base64url, 32 bytes, no padding
)

// NewTokenSecret generates a fresh API token secret.
func NewTokenSecret() (string, error) {
	return newSecret(TokenPrefix)
}

// NewSessionSecret generates a fresh session secret.
func NewSessionSecret() (string, error) {
	return newSecret(SessionPrefix)
}

func newSecret(prefix string) (string, error) {
	raw := make([]byte, secretRandomSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	secret := prefix + base64.RawURLEncoding.EncodeToString(raw)
	if len(secret) != SecretLength {
		return "", errors.New("generated secret has unexpected length")
	}
	return secret, nil
}

// IsSessionSecret reports whether a presented secret carries the session
// prefix. Used to decide whether activity should slide a session's
// expiry; the authoritative discriminator is the stored record's
// is_session flag.
func IsSessionSecret(secret string) bool {
	return strings.HasPrefix(secret, SessionPrefix)
}
