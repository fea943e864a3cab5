// Package token issues and checks HMAC-signed, timestamped tokens.
//
// A token is three base64url segments joined by dots: the payload, the
// issue time in Unix seconds and a SHA-256 HMAC over both, keyed by the
// secret and a per-purpose salt.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalid indicates a malformed token or a bad signature.
	ErrInvalid = errors.New("invalid token")

	// ErrExpired indicates a correctly signed token older than the allowed age.
	ErrExpired = errors.New("token expired")
)

var enc = base64.RawURLEncoding

// Signer signs values for one purpose. Tokens from a signer with a different
// salt do not verify.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner derives a signing key from secret and salt.
func NewSigner(secret, salt string) *Signer {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("pluisje.token." + salt))
	return &Signer{key: mac.Sum(nil), now: time.Now}
}

// Sign returns a token carrying value and the current time.
func (s *Signer) Sign(value string) string {
	payload := enc.EncodeToString([]byte(value))
	ts := enc.EncodeToString([]byte(strconv.FormatInt(s.now().Unix(), 10)))
	return payload + "." + ts + "." + s.signature(payload, ts)
}

// Verify checks the signature and, when maxAge > 0, the token age.
// It returns the signed value.
func (s *Signer) Verify(token string, maxAge time.Duration) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrInvalid
	}
	payload, ts, sig := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(sig), []byte(s.signature(payload, ts))) {
		return "", ErrInvalid
	}

	rawTS, err := enc.DecodeString(ts)
	if err != nil {
		return "", ErrInvalid
	}
	issued, err := strconv.ParseInt(string(rawTS), 10, 64)
	if err != nil {
		return "", ErrInvalid
	}
	if maxAge > 0 && s.now().Sub(time.Unix(issued, 0)) > maxAge {
		return "", ErrExpired
	}

	value, err := enc.DecodeString(payload)
	if err != nil {
		return "", ErrInvalid
	}
	return string(value), nil
}

func (s *Signer) signature(payload, ts string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	mac.Write([]byte{'.'})
	mac.Write([]byte(ts))
	return enc.EncodeToString(mac.Sum(nil))
}
