// Package token implements the self-contained signed token shared between
// the issuer service and the relay.
//
// Wire format:
//
//	base64url(JSON payload) + "." + hex(HMAC-SHA256(secret, payload segment))
//
// The relay never calls back to the issuer; it verifies signatures locally
// with the pre-shared secret. All functions are pure and safe to call from
// any number of goroutines.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openfleet/location-relay/internal/model"
)

// Verification errors.
var (
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Payload is the claims block minted by the issuer. The relay only reads it.
type Payload struct {
	Subject   string     `json:"subject"`
	Role      model.Role `json:"role"`
	EntityID  string     `json:"entityId"`
	TenantID  string     `json:"tenantId"`
	ExpiresAt int64      `json:"expiresAt"` // Unix seconds
}

// Sign mints a token for the payload. Used by the issuer side (tokengen)
// and by tests; the relay itself only verifies.
func Sign(secret []byte, p Payload) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty secret")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	segment := base64.RawURLEncoding.EncodeToString(data)
	return segment + "." + signSegment(secret, segment), nil
}

// Verify checks the signature and expiry of a token and returns its payload.
// The signature is recomputed over the payload segment and compared in
// constant time before the payload is parsed.
func Verify(secret []byte, tok string) (Payload, error) {
	segment, sig, ok := strings.Cut(tok, ".")
	if !ok || segment == "" || sig == "" {
		return Payload{}, ErrMalformed
	}

	want, err := hex.DecodeString(sig)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(segment))
	if !hmac.Equal(mac.Sum(nil), want) {
		return Payload{}, ErrInvalidSignature
	}

	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, ErrMalformed
	}

	if p.ExpiresAt <= time.Now().Unix() {
		return Payload{}, ErrExpired
	}

	return p, nil
}

// signSegment computes the hex HMAC-SHA256 signature of a payload segment.
func signSegment(secret []byte, segment string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(segment))
	return hex.EncodeToString(mac.Sum(nil))
}
