package main

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"rpsls/broker/internal/config"
	httpapi "rpsls/broker/internal/http"
	"rpsls/broker/internal/logging"
	"rpsls/broker/internal/match"
	"rpsls/broker/internal/pubsub"
)

// sessionKey identifies one player identity inside one match. At most one
// connection owns a session at a time; a newer connection for the same
// identity supersedes the older one.
type sessionKey struct {
	matchID  string
	playerID string
}

// Broker owns every live match socket. It upgrades connections, tracks
// per-identity sessions, and exposes the counters the operational endpoints
// serve.
type Broker struct {
	store         *match.Store
	bus           pubsub.Bus
	logger        *logging.Logger
	authenticator websocketAuthenticator
	upgrader      websocket.Upgrader

	maxPayload   int64
	pingInterval time.Duration
	maxClients   int

	mu       sync.Mutex
	clients  map[*client]struct{}
	sessions map[sessionKey]*client

	startedAt  time.Time
	startupErr error
	broadcasts atomic.Int64
}

// BrokerOption customises broker construction.
type BrokerOption func(*Broker)

// NewBroker wires the gateway around a store and a fanout bus.
func NewBroker(store *match.Store, bus pubsub.Bus, cfg *config.Config, logger *logging.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = logging.L()
	}
	b := &Broker{
		store:         store,
		bus:           bus,
		logger:        logger,
		authenticator: guestAuthenticator{},
		maxPayload:    cfg.MaxPayloadBytes,
		pingInterval:  cfg.PingInterval,
		maxClients:    cfg.MaxClients,
		clients:       make(map[*client]struct{}),
		sessions:      make(map[sessionKey]*client),
		startedAt:     time.Now(),
	}
	b.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)}
	if cfg.AuthSecret != "" {
		authenticator, err := newHMACWebsocketAuthenticator(cfg.AuthSecret)
		if err != nil {
			b.startupErr = err
		} else {
			b.authenticator = authenticator
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// originChecker admits same-origin requests and any origin on the allow
// list. An empty list admits everything, matching local development use.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	normalized := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, origin := range allowed {
		origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
		if origin == "*" {
			wildcard = true
			continue
		}
		if origin != "" {
			normalized[strings.ToLower(origin)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if wildcard {
			return true
		}
		origin := strings.TrimSuffix(strings.TrimSpace(r.Header.Get("Origin")), "/")
		if origin == "" {
			return true
		}
		_, ok := normalized[strings.ToLower(origin)]
		return ok
	}
}

// ServeWS upgrades a match socket request. The path carries the match id:
// /ws/match/{id}. Authentication, id validation, and join all happen after
// the upgrade so their failures reach the client in-band.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	if b.maxClients > 0 && b.ClientCount() >= b.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed",
			logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		return
	}
	if b.maxPayload > 0 {
		conn.SetReadLimit(b.maxPayload)
	}

	c := newClient(b, conn)
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go c.writePump()
	go c.run(r)
}

// adopt makes c the owner of its session, closing any previous connection
// for the same identity. The newest connection is authoritative.
func (b *Broker) adopt(c *client) {
	key := sessionKey{matchID: c.matchID.String(), playerID: c.playerID}
	b.mu.Lock()
	prev := b.sessions[key]
	b.sessions[key] = c
	b.mu.Unlock()

	if prev != nil && prev != c {
		b.logger.Info("session superseded",
			logging.String("match_id", key.matchID),
			logging.String("player_id", key.playerID))
		prev.shutdown()
	}
}

// release drops c from the client set and reports whether c still owned its
// session. A superseded connection no longer owns it and must not run the
// leave sequence.
func (b *Broker) release(c *client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
	if c.matchID == "" {
		return false
	}
	key := sessionKey{matchID: c.matchID.String(), playerID: c.playerID}
	if b.sessions[key] != c {
		return false
	}
	delete(b.sessions, key)
	return true
}

// ClientCount reports currently tracked connections.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// StartupError surfaces configuration failures to the readiness probe.
func (b *Broker) StartupError() error { return b.startupErr }

// Uptime reports how long the broker has been serving.
func (b *Broker) Uptime() time.Duration { return time.Since(b.startedAt) }

// Stats snapshots the counters served on /stats.
func (b *Broker) Stats() httpapi.Stats {
	return httpapi.Stats{
		Clients:    b.ClientCount(),
		Matches:    b.store.Len(),
		Broadcasts: b.broadcasts.Load(),
	}
}

// abnormalSocketError separates ordinary client departures from transport
// failures worth logging loudly.
func abnormalSocketError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return false
	}
	return !errors.Is(err, net.ErrClosed)
}
