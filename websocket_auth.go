package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"rpsls/broker/internal/auth"
)

// websocketAuthenticator resolves the player identity behind an upgrade
// request. Failures map to the not_logged_in client error; the socket is
// still accepted so the error can be delivered in-band.
type websocketAuthenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// guestAuthenticator trusts a player_id query parameter. It is the fallback
// for local development when no auth secret is configured.
type guestAuthenticator struct{}

func (guestAuthenticator) Authenticate(r *http.Request) (string, error) {
	player := strings.TrimSpace(r.URL.Query().Get("player_id"))
	if player == "" {
		return "", fmt.Errorf("%w: missing player_id", auth.ErrInvalidToken)
	}
	return player, nil
}

type hmacWebsocketAuthenticator struct {
	verifier *auth.Verifier
}

func newHMACWebsocketAuthenticator(secret string) (websocketAuthenticator, error) {
	verifier, err := auth.NewVerifier(secret, "", 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &hmacWebsocketAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the incoming token and returns the player identity.
func (a *hmacWebsocketAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || a.verifier == nil {
		return "", fmt.Errorf("%w: verifier not configured", auth.ErrInvalidToken)
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", fmt.Errorf("%w: missing auth token", auth.ErrInvalidToken)
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.PlayerID, nil
}

// WithWebsocketAuthenticator wires a custom authenticator into the broker.
func WithWebsocketAuthenticator(authenticator websocketAuthenticator) BrokerOption {
	return func(b *Broker) {
		if b == nil || authenticator == nil {
			return
		}
		b.authenticator = authenticator
	}
}
