// Package wire defines the JSON protocol spoken over match sockets: the
// inbound client envelope, the outbound error envelope, and the per-recipient
// state projection built from a committed match snapshot.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"rpsls/broker/internal/auth"
	"rpsls/broker/internal/match"
	"rpsls/broker/internal/matchid"
	"rpsls/broker/internal/rules"
)

// Inbound message types.
const (
	TypeHeartbeat = "heartbeat"
	TypeReady     = "ready"
	TypeMove      = "move"
)

// Outbound message types.
const (
	TypeError = "error"
	TypeState = "state"
)

// ErrMalformed flags an inbound payload the codec could not accept. Callers
// map it to the malformed_message client error; the connection stays open.
var ErrMalformed = errors.New("malformed message")

// ClientMessage is the decoded inbound envelope. Move is set only for
// TypeMove messages.
type ClientMessage struct {
	Type string     `json:"type"`
	Move rules.Move `json:"move,omitempty"`
}

// DecodeClientMessage parses and validates one inbound frame.
//
//1.- Reject frames that are not a JSON object.
//2.- Require a recognized type.
//3.- Require a move field on move messages; forbid it elsewhere.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch msg.Type {
	case TypeHeartbeat, TypeReady:
		if msg.Move != "" {
			return ClientMessage{}, fmt.Errorf("%w: unexpected move field on %q", ErrMalformed, msg.Type)
		}
	case TypeMove:
		if msg.Move == "" {
			return ClientMessage{}, fmt.Errorf("%w: missing move", ErrMalformed)
		}
	case "":
		return ClientMessage{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown message type %q", ErrMalformed, msg.Type)
	}
	return msg, nil
}

// ErrorCode is the wire representation of a client-visible failure. Every
// code is non-fatal; only transport errors close the socket.
type ErrorCode string

const (
	CodeInvalidMatchID   ErrorCode = "invalid_match_id"
	CodeNotLoggedIn      ErrorCode = "not_logged_in"
	CodeGameFull         ErrorCode = "game_full"
	CodeNotInMatch       ErrorCode = "not_in_match"
	CodeNotReady         ErrorCode = "not_ready"
	CodeRoundClosed      ErrorCode = "round_closed"
	CodeInvalidMove      ErrorCode = "invalid_move"
	CodeMalformedMessage ErrorCode = "malformed_message"
)

// ErrorEnvelope is sent to the originating connection only.
type ErrorEnvelope struct {
	Type   string    `json:"type"`
	Error  ErrorCode `json:"error"`
	Detail string    `json:"detail,omitempty"`
}

// CodeForError maps internal sentinels onto wire codes. Unrecognized errors
// fall back to malformed_message so a client always receives a valid code.
func CodeForError(err error) ErrorCode {
	switch {
	case errors.Is(err, matchid.ErrInvalid):
		return CodeInvalidMatchID
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return CodeNotLoggedIn
	case errors.Is(err, match.ErrGameFull):
		return CodeGameFull
	case errors.Is(err, match.ErrNotInMatch), errors.Is(err, match.ErrInvalidPlayer):
		return CodeNotInMatch
	case errors.Is(err, match.ErrNotReady):
		return CodeNotReady
	case errors.Is(err, match.ErrRoundClosed):
		return CodeRoundClosed
	case errors.Is(err, match.ErrInvalidMove):
		return CodeInvalidMove
	default:
		return CodeMalformedMessage
	}
}

// EncodeError builds the error envelope for err. Detail carries the message
// text so clients can surface something more specific than the code.
func EncodeError(err error) ([]byte, error) {
	env := ErrorEnvelope{Type: TypeError, Error: CodeForError(err), Detail: err.Error()}
	return json.Marshal(env)
}

// RoundView is one resolved round seen from the recipient's side.
type RoundView struct {
	SelfMove     rules.Move `json:"self_move"`
	OpponentMove rules.Move `json:"opponent_move"`
	Outcome      string     `json:"outcome"`
}

// Round and match outcomes, always relative to the recipient.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomeDraw = "draw"
)

// PlayerView is the projected form of one slot. The opponent's copy omits
// live sensitive fields; see Project.
type PlayerView struct {
	PlayerID  string     `json:"player_id"`
	Connected bool       `json:"connected"`
	Ready     bool       `json:"ready"`
	Move      rules.Move `json:"move,omitempty"`
	Wins      int        `json:"wins"`
}

// StateMessage is the per-recipient snapshot pushed on every committed
// change. Self is nil for spectating recipients who hold no slot.
type StateMessage struct {
	Type          string      `json:"type"`
	MatchID       string      `json:"match_id"`
	BestOf        int         `json:"best_of"`
	ExtendedMode  bool        `json:"extended_mode"`
	Self          *PlayerView `json:"self,omitempty"`
	Opponent      *PlayerView `json:"opponent,omitempty"`
	Rounds        []RoundView `json:"rounds,omitempty"`
	RoundResolved bool        `json:"round_resolved"`
	Complete      bool        `json:"complete"`
	MatchOutcome  string      `json:"match_outcome,omitempty"`
}

// Project builds the recipient's view of a committed snapshot.
//
// The recipient's own slot is shown in full, including an unresolved pending
// move. The opponent's slot exposes only public fields: connected and ready
// always, the move not before the round is resolved. Round history and the
// match outcome are re-oriented so "win" always means the recipient won.
func Project(snap match.Snapshot, recipient string) StateMessage {
	msg := StateMessage{
		Type:          TypeState,
		MatchID:       snap.MatchID.String(),
		BestOf:        snap.BestOf,
		ExtendedMode:  snap.ExtendedMode,
		RoundResolved: snap.RoundResolved,
		Complete:      snap.Complete,
	}

	self := snap.SlotOf(recipient)
	//1.- Project both slots relative to the recipient.
	for i := range snap.Slots {
		slot := snap.Slots[i]
		if !slot.Occupied() {
			continue
		}
		view := &PlayerView{
			PlayerID:  slot.PlayerID,
			Connected: slot.Connected,
			Ready:     slot.Ready,
			Wins:      snap.Wins[i],
		}
		switch {
		case i == self:
			view.Move = slot.Move
			msg.Self = view
		default:
			if snap.RoundResolved || snap.Complete {
				view.Move = slot.Move
			}
			msg.Opponent = view
		}
	}

	//2.- Re-orient round history; a spectator sees slot 0's perspective.
	viewpoint := self
	if viewpoint < 0 {
		viewpoint = 0
	}
	for _, round := range snap.Rounds {
		rv := RoundView{
			SelfMove:     round.Moves[viewpoint],
			OpponentMove: round.Moves[1-viewpoint],
		}
		switch round.Winner {
		case match.NoWinner:
			rv.Outcome = OutcomeDraw
		case viewpoint:
			rv.Outcome = OutcomeWin
		default:
			rv.Outcome = OutcomeLoss
		}
		msg.Rounds = append(msg.Rounds, rv)
	}

	//3.- The match outcome is only present once the record is complete.
	if snap.Complete && snap.Winner != match.NoWinner {
		if snap.Winner == viewpoint {
			msg.MatchOutcome = OutcomeWin
		} else {
			msg.MatchOutcome = OutcomeLoss
		}
	}
	return msg
}

// EncodeState marshals a projected snapshot for delivery.
func EncodeState(msg StateMessage) ([]byte, error) {
	return json.Marshal(msg)
}
