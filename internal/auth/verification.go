package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const verificationTokenBytes = 32

// VerificationTokens mints single-use verification secrets and derives the
// keyed hash under which they are stored.
type VerificationTokens struct {
	key []byte
}

func NewVerificationTokens(key []byte) (*VerificationTokens, error) {
	if len(key) == 0 {
		return nil, errors.New("verification token key is required")
	}
	return &VerificationTokens{key: key}, nil
}

// Generate returns a new URL-safe token and its storage hash.
func (v *VerificationTokens) Generate() (token, hash string, err error) {
	var buf [verificationTokenBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(buf[:])
	return token, v.Hash(token), nil
}

// Hash returns the hex HMAC-SHA256 of token.
func (v *VerificationTokens) Hash(token string) string {
	m := hmac.New(sha256.New, v.key)
	_, _ = m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}
