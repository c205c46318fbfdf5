// Package auth verifies the shared connection secret and validates the
// identifiers clients pick for themselves.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoSecret is returned when neither a plaintext secret nor a hash
	// is configured.
	ErrNoSecret = errors.New("no shared secret configured")
	// ErrNameTooLong is returned for usernames or room names over the limit.
	ErrNameTooLong = errors.New("name too long")
	// ErrEmptyName is returned for empty or all-space names.
	ErrEmptyName = errors.New("empty name")
)

// bcryptCost balances hashing cost against login latency.
const bcryptCost = 10

// Verifier checks client credentials against a single shared secret. The
// secret may be configured as plaintext or as a bcrypt hash; the hash wins
// when both are set.
type Verifier struct {
	secret     []byte
	hash       []byte
	maxNameLen int
}

// New builds a Verifier. Exactly one of secret and secretHash must be
// non-empty.
func New(secret, secretHash string, maxNameLen int) (*Verifier, error) {
	if secret == "" && secretHash == "" {
		return nil, ErrNoSecret
	}
	v := &Verifier{maxNameLen: maxNameLen}
	if secretHash != "" {
		if _, err := bcrypt.Cost([]byte(secretHash)); err != nil {
			return nil, fmt.Errorf("invalid secret hash: %w", err)
		}
		v.hash = []byte(secretHash)
	} else {
		v.secret = []byte(secret)
	}
	return v, nil
}

// VerifySecret reports whether password matches the shared secret.
func (v *Verifier) VerifySecret(password string) bool {
	if len(v.hash) > 0 {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare(v.secret, []byte(password)) == 1
}

// ValidateName checks a username or room name against length constraints.
func (v *Verifier) ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > v.maxNameLen {
		return ErrNameTooLong
	}
	return nil
}

// HashSecret produces a bcrypt hash suitable for the password_hash config
// key.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}
