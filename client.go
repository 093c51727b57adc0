package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rpsls/broker/internal/logging"
	"rpsls/broker/internal/match"
	"rpsls/broker/internal/matchid"
	"rpsls/broker/internal/pubsub"
	"rpsls/broker/internal/wire"
)

const sendBufferSize = 32

// client is the per-connection actor. It moves through three phases:
// connecting (upgraded, not yet joined), active (joined and subscribed),
// closed. Gameplay failures are reported in-band and never close the socket;
// transport failures tear the whole session down.
type client struct {
	broker *Broker
	conn   *websocket.Conn
	logger *logging.Logger
	send   chan []byte
	done   chan struct{}

	matchID  matchid.ID
	playerID string
	sub      pubsub.Subscription

	// joinErr remembers why activation failed so later messages on a
	// never-joined socket get a consistent answer.
	joinErr error

	doneOnce  sync.Once
	closeOnce sync.Once
}

func newClient(b *Broker, conn *websocket.Conn) *client {
	return &client{
		broker: b,
		conn:   conn,
		logger: b.logger,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// run drives the connection lifecycle: activate, then pump inbound frames
// until the transport fails, then tear down.
func (c *client) run(r *http.Request) {
	defer c.teardown()

	if err := c.activate(r); err != nil {
		c.joinErr = err
		c.reportError(err)
	}
	c.readLoop()
}

// activate authenticates the caller, validates the requested match id, joins
// the match, and subscribes to its topic. Any failure leaves the socket open
// and unjoined.
func (c *client) activate(r *http.Request) error {
	player, err := c.broker.authenticator.Authenticate(r)
	if err != nil {
		return err
	}
	rawID := strings.TrimPrefix(r.URL.Path, "/ws/match/")
	id, err := matchid.Parse(rawID)
	if err != nil {
		return err
	}

	if _, err := c.broker.store.Join(id, player); err != nil {
		return err
	}
	c.matchID = id
	c.playerID = player
	c.logger = c.broker.logger.With(
		logging.String("match_id", id.String()),
		logging.String("player_id", player),
	)

	//1.- Claim the session before subscribing so a superseded twin stops first.
	c.broker.adopt(c)

	sub, err := c.broker.bus.Subscribe(r.Context(), id.Topic())
	if err != nil {
		// Joined but unsubscribable: undo the join so the slot is not stranded.
		c.broker.store.Leave(id, player)
		return err
	}
	c.sub = sub
	go c.signalLoop()

	c.logger.Info("player connected")
	c.publish()
	return nil
}

// readLoop dispatches inbound frames until the transport fails.
func (c *client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if abnormalSocketError(err) {
				c.logger.Warn("socket read failed", logging.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage maps one inbound frame onto a state machine operation.
// Success signals every subscriber; failure answers only this connection.
func (c *client) handleMessage(data []byte) {
	msg, err := wire.DecodeClientMessage(data)
	if err != nil {
		c.reportError(err)
		return
	}
	if c.sub == nil {
		//2.- The connection never joined; repeat the activation failure.
		c.reportError(c.joinErr)
		return
	}

	switch msg.Type {
	case wire.TypeHeartbeat:
		err = c.broker.store.Heartbeat(c.matchID, c.playerID)
	case wire.TypeReady:
		_, err = c.broker.store.ReadyUp(c.matchID, c.playerID)
	case wire.TypeMove:
		_, err = c.broker.store.SubmitMove(c.matchID, c.playerID, msg.Move)
	}
	if err != nil {
		c.reportError(err)
		return
	}
	c.publish()
}

// signalLoop re-reads the committed record on every recompute signal and
// pushes this recipient's projection. It exits when the subscription closes.
func (c *client) signalLoop() {
	for range c.sub.Signals() {
		snap, ok := c.broker.store.View(c.matchID)
		if !ok {
			continue
		}
		data, err := wire.EncodeState(wire.Project(snap, c.playerID))
		if err != nil {
			c.logger.Error("snapshot encode failed", logging.Error(err))
			continue
		}
		c.enqueue(data)
	}
}

// publish signals the match topic; every subscriber re-reads and pushes.
func (c *client) publish() {
	if err := c.broker.bus.Publish(context.Background(), c.matchID.Topic()); err != nil {
		c.logger.Warn("broadcast failed", logging.Error(err))
		return
	}
	c.broker.broadcasts.Add(1)
}

func (c *client) reportError(err error) {
	if err == nil {
		return
	}
	data, encodeErr := wire.EncodeError(err)
	if encodeErr != nil {
		c.logger.Error("error encode failed", logging.Error(encodeErr))
		return
	}
	c.enqueue(data)
}

// enqueue hands a frame to the write pump. A client whose buffer stays full
// is too far behind to be useful; drop the connection and let it rejoin.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Warn("send buffer full, dropping connection")
		c.shutdown()
	}
}

// writePump owns all writes to the socket, interleaving queued frames with
// keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.broker.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// shutdown forces the transport closed; the read loop then runs teardown.
func (c *client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
	c.conn.Close()
}

// teardown runs the disconnect sequence exactly once: unsubscribe first so
// no further signal can arrive, then leave under a fresh record lock, then
// signal survivors if the record is still alive.
func (c *client) teardown() {
	c.closeOnce.Do(func() {
		if c.sub != nil {
			_ = c.sub.Close()
		}
		ownsSession := c.broker.release(c)
		if ownsSession && c.sub != nil {
			_, result := c.broker.store.Leave(c.matchID, c.playerID)
			if result == match.LeaveRemoved {
				c.publish()
			}
			c.logger.Info("player disconnected")
		}
		c.shutdown()
	})
}
