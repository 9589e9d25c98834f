// Package tokens implements the invitation bearer-token primitives: random
// generation, one-way hashing, constant-time verification, and invite URL
// formatting. The plaintext token only ever lives in memory and in generated
// URLs; persistence always stores the hash.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"
)

// DefaultLength is the token entropy in bytes (256 bits).
const DefaultLength = 32

// QueryParam is the query parameter carrying the plaintext token in invite URLs.
const QueryParam = "invite"

// ErrNoToken indicates the URL carries no invite token.
var ErrNoToken = errors.New("tokens: no invite token in url")

// Generate returns a random URL-safe base64 token of the requested byte length.
// A non-positive length falls back to DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the SHA-256 hex digest of the token. This is the persisted form.
func Hash(token string) string {
	checksum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(checksum[:])
}

// Verify recomputes the hash of the candidate token and compares it with the
// stored hash in constant time.
func Verify(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := Hash(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// ExpiresAt returns the expiry timestamp a given number of hours from now.
func ExpiresAt(now time.Time, hours int) time.Time {
	return now.Add(time.Duration(hours) * time.Hour).UTC()
}

// IsExpired reports whether the expiry timestamp is in the past relative to now.
func IsExpired(expiresAt, now time.Time) bool {
	return expiresAt.Before(now)
}

// InviteURL embeds the plaintext token into an acceptance URL under the base.
// Trailing slashes on the base are normalised so the result never contains
// double slashes.
func InviteURL(base, token string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "/invite/accept"
	}
	return base + "?" + QueryParam + "=" + url.QueryEscape(token)
}

// TokenFromURL extracts the plaintext token from an invite URL.
func TokenFromURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	token := parsed.Query().Get(QueryParam)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
