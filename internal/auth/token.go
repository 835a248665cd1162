package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// TokenIssuer issues and verifies bearer tokens for identity records.
// The engine defines the contract; delivery and refresh policy belong
// to the API layer.
type TokenIssuer interface {
	// Issue mints a token bound to a record and its tokenKey.
	Issue(recordID, tokenKey string, ttl time.Duration) (string, error)
	// Verify checks signature and expiry and returns the record id.
	// The lookup callback resolves a record id to its current
	// tokenKey; rotating the key invalidates outstanding tokens.
	Verify(token string, lookup func(recordID string) (string, error)) (string, error)
}

// ErrInvalidToken reports a malformed, forged or expired token.
var ErrInvalidToken = errors.New("invalid token")

// HMACIssuer signs payloads with HMAC-SHA256 keyed by the app secret
// concatenated with the record's tokenKey.
type HMACIssuer struct {
	Secret []byte
}

// NewHMACIssuer creates an issuer with the given app secret.
func NewHMACIssuer(secret []byte) *HMACIssuer {
	return &HMACIssuer{Secret: secret}
}

type tokenClaims struct {
	RecordID string `json:"rid"`
	Expires  int64  `json:"exp"`
}

// Issue encodes claims as base64 JSON and appends the signature:
// <payload-b64>.<sig-b64>.
func (i *HMACIssuer) Issue(recordID, tokenKey string, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		RecordID: recordID,
		Expires:  time.Now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	sig := i.sign(encoded, tokenKey)
	return encoded + "." + sig, nil
}

// Verify checks the signature against the record's current tokenKey
// and rejects expired tokens.
func (i *HMACIssuer) Verify(token string, lookup func(string) (string, error)) (string, error) {
	payloadB64, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return "", ErrInvalidToken
	}
	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", ErrInvalidToken
	}

	tokenKey, err := lookup(claims.RecordID)
	if err != nil {
		return "", fmt.Errorf("resolve token key: %w", err)
	}

	want := i.sign(payloadB64, tokenKey)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Expires {
		return "", ErrInvalidToken
	}
	return claims.RecordID, nil
}

func (i *HMACIssuer) sign(payload, tokenKey string) string {
	mac := hmac.New(sha256.New, append(append([]byte(nil), i.Secret...), tokenKey...))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewTokenKey generates a random per-record token key. Rotating it
// revokes every token issued against the old key.
func NewTokenKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate token key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
