// Package auth verifies the HS256 tokens that carry a player identity onto a
// match socket. Token issuance lives with the account service; the broker
// only checks signatures, expiry, and the audience it was configured for.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
)

// PlayerClaims is the verified payload of a match-socket token.
type PlayerClaims struct {
	PlayerID  string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Audience  string
}

// Verifier validates compact JWT-style tokens signed with HS256.
type Verifier struct {
	secret   []byte
	audience string
	now      func() time.Time
	leeway   time.Duration
}

// NewVerifier constructs a verifier for the supplied shared secret, expected
// audience, and clock skew allowance. An empty audience disables the
// audience check.
func NewVerifier(secret, audience string, leeway time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: strings.TrimSpace(audience),
		now:      time.Now,
		leeway:   leeway,
	}, nil
}

// Verify parses the token and validates signature, expiry, and audience,
// returning the player identity it carries.
func (v *Verifier) Verify(token string) (*PlayerClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	headerPayload := strings.Join(parts[:2], ".")
	signaturePart := parts[2]

	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header struct {
		Algorithm string `json:"alg"`
		Type      string `json:"typ"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	expectedSig, err := sign(v.secret, []byte(headerPayload))
	if err != nil {
		return nil, err
	}
	signatureBytes, err := decodeSegment(signaturePart)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(signatureBytes, expectedSig) {
		return nil, ErrInvalidToken
	}

	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload struct {
		Subject  string `json:"sub"`
		Expires  int64  `json:"exp"`
		Issued   int64  `json:"iat"`
		Audience string `json:"aud"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if payload.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	if v.audience != "" && payload.Audience != v.audience {
		return nil, fmt.Errorf("%w: audience %q not accepted", ErrInvalidToken, payload.Audience)
	}
	now := v.now()
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(v.leeway).Before(now) {
		return nil, ErrExpiredToken
	}

	claims := &PlayerClaims{
		PlayerID:  payload.Subject,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Unix(payload.Issued, 0),
		Audience:  payload.Audience,
	}
	return claims, nil
}

// MintToken builds a signed token for the player. The broker never mints
// tokens in production; this exists for tests and local tooling.
func MintToken(secret, playerID, audience string, expiresAt time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("hmac secret must not be empty")
	}
	if strings.TrimSpace(playerID) == "" {
		return "", errors.New("player id must not be empty")
	}
	headerBytes, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadBytes, err := json.Marshal(map[string]any{
		"sub": playerID,
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
		"aud": audience,
	})
	if err != nil {
		return "", err
	}
	headerPayload := encodeSegment(headerBytes) + "." + encodeSegment(payloadBytes)
	sig, err := sign([]byte(secret), []byte(headerPayload))
	if err != nil {
		return "", err
	}
	return headerPayload + "." + encodeSegment(sig), nil
}

func sign(secret, payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, secret)
	if _, err := mac.Write(payload); err != nil {
		return nil, err
	}
	return mac.Sum(nil), nil
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *Verifier) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	v.now = clock
}
