// Package websockettest holds dial helpers for exercising match sockets in
// end-to-end tests.
package websockettest

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gorilla/websocket"
)

// MatchURL converts an httptest server URL into the ws:// endpoint for the
// given match id.
func MatchURL(server *httptest.Server, matchID string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/match/" + matchID
}

// DialMatch opens a match socket as the given player using the guest
// query-parameter identity.
func DialMatch(server *httptest.Server, matchID, playerID string) (*websocket.Conn, *http.Response, error) {
	url := MatchURL(server, matchID) + "?player_id=" + playerID
	return websocket.DefaultDialer.Dial(url, nil)
}

// DialWithHeader opens a match socket passing extra headers, for exercising
// token-based identity.
func DialWithHeader(server *httptest.Server, matchID string, header http.Header) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(MatchURL(server, matchID), header)
}
