package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"rpsls/broker/internal/match"
	"rpsls/broker/internal/matchid"
	"rpsls/broker/internal/rules"
)

func TestDecodeClientMessageAcceptsKnownTypes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want ClientMessage
	}{
		{"heartbeat", `{"type":"heartbeat"}`, ClientMessage{Type: TypeHeartbeat}},
		{"ready", `{"type":"ready"}`, ClientMessage{Type: TypeReady}},
		{"move", `{"type":"move","move":"spock"}`, ClientMessage{Type: TypeMove, Move: rules.Spock}},
	}
	for _, tc := range cases {
		msg, err := DecodeClientMessage([]byte(tc.raw))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if msg != tc.want {
			t.Fatalf("%s: got %+v want %+v", tc.name, msg, tc.want)
		}
	}
}

func TestDecodeClientMessageRejectsBadFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"not an object", `"heartbeat"`},
		{"missing type", `{"move":"rock"}`},
		{"unknown type", `{"type":"surrender"}`},
		{"move without symbol", `{"type":"move"}`},
		{"heartbeat with symbol", `{"type":"heartbeat","move":"rock"}`},
	}
	for _, tc := range cases {
		if _, err := DecodeClientMessage([]byte(tc.raw)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", tc.name, err)
		}
	}
}

func TestCodeForErrorCoversSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{matchid.ErrInvalid, CodeInvalidMatchID},
		{match.ErrGameFull, CodeGameFull},
		{match.ErrNotInMatch, CodeNotInMatch},
		{match.ErrNotReady, CodeNotReady},
		{match.ErrRoundClosed, CodeRoundClosed},
		{match.ErrInvalidMove, CodeInvalidMove},
		{ErrMalformed, CodeMalformedMessage},
		{errors.New("weird internal failure"), CodeMalformedMessage},
	}
	for _, tc := range cases {
		if got := CodeForError(tc.err); got != tc.code {
			t.Fatalf("%v: got %q want %q", tc.err, got, tc.code)
		}
	}
}

func TestEncodeErrorEnvelope(t *testing.T) {
	data, err := EncodeError(match.ErrGameFull)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeError || env.Error != CodeGameFull || env.Detail == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func sampleSnapshot() match.Snapshot {
	return match.Snapshot{
		MatchID: matchid.ID("0123456789abcdef0123456789abcdef"),
		Slots: [match.NumSlots]match.SlotView{
			{PlayerID: "alice", Connected: true, Ready: true, Move: rules.Rock},
			{PlayerID: "bob", Connected: true, Ready: true, Move: rules.Scissors},
		},
		Wins:         [match.NumSlots]int{1, 0},
		BestOf:       5,
		ExtendedMode: true,
		Rounds: []match.RoundResult{
			{Moves: [match.NumSlots]rules.Move{rules.Rock, rules.Scissors}, Winner: 0},
		},
		RoundResolved: true,
		Winner:        match.NoWinner,
	}
}

func TestProjectShowsOwnSlotInFull(t *testing.T) {
	snap := sampleSnapshot()
	snap.RoundResolved = false
	snap.Rounds = nil
	snap.Slots[1].Move = ""

	msg := Project(snap, "alice")
	if msg.Self == nil || msg.Self.PlayerID != "alice" {
		t.Fatalf("missing self view: %+v", msg)
	}
	if msg.Self.Move != rules.Rock {
		t.Fatal("own pending move must be visible to its owner")
	}
	if msg.Opponent == nil || msg.Opponent.PlayerID != "bob" {
		t.Fatalf("missing opponent view: %+v", msg)
	}
	if !msg.Opponent.Ready || !msg.Opponent.Connected {
		t.Fatal("opponent public fields must always be projected")
	}
}

func TestProjectHidesOpponentMoveUntilResolved(t *testing.T) {
	snap := sampleSnapshot()
	snap.RoundResolved = false

	msg := Project(snap, "alice")
	if msg.Opponent.Move != "" {
		t.Fatal("opponent move leaked before resolution")
	}

	snap.RoundResolved = true
	msg = Project(snap, "alice")
	if msg.Opponent.Move != rules.Scissors {
		t.Fatal("opponent move must be visible once the round resolves")
	}
}

func TestProjectOrientsRoundsPerRecipient(t *testing.T) {
	snap := sampleSnapshot()

	alice := Project(snap, "alice")
	if len(alice.Rounds) != 1 || alice.Rounds[0].Outcome != OutcomeWin {
		t.Fatalf("alice should see a win: %+v", alice.Rounds)
	}
	if alice.Rounds[0].SelfMove != rules.Rock || alice.Rounds[0].OpponentMove != rules.Scissors {
		t.Fatalf("alice round misoriented: %+v", alice.Rounds[0])
	}

	bob := Project(snap, "bob")
	if bob.Rounds[0].Outcome != OutcomeLoss {
		t.Fatalf("bob should see a loss: %+v", bob.Rounds)
	}
	if bob.Rounds[0].SelfMove != rules.Scissors || bob.Rounds[0].OpponentMove != rules.Rock {
		t.Fatalf("bob round misoriented: %+v", bob.Rounds[0])
	}
}

func TestProjectDrawAndMatchOutcome(t *testing.T) {
	snap := sampleSnapshot()
	snap.Rounds = append(snap.Rounds, match.RoundResult{
		Moves:  [match.NumSlots]rules.Move{rules.Lizard, rules.Lizard},
		Winner: match.NoWinner,
	})
	snap.Complete = true
	snap.Winner = 0

	alice := Project(snap, "alice")
	if alice.Rounds[1].Outcome != OutcomeDraw {
		t.Fatalf("draw lost in projection: %+v", alice.Rounds[1])
	}
	if !alice.Complete || alice.MatchOutcome != OutcomeWin {
		t.Fatalf("alice match outcome: %+v", alice)
	}
	if bob := Project(snap, "bob"); bob.MatchOutcome != OutcomeLoss {
		t.Fatalf("bob match outcome: %+v", bob)
	}
}

func TestProjectEmptySecondSlot(t *testing.T) {
	snap := sampleSnapshot()
	snap.Slots[1] = match.SlotView{}
	snap.Rounds = nil
	snap.RoundResolved = false
	snap.Wins = [match.NumSlots]int{0, 0}

	msg := Project(snap, "alice")
	if msg.Opponent != nil {
		t.Fatalf("vacant slot must not be projected: %+v", msg.Opponent)
	}
	if msg.Self == nil {
		t.Fatal("self view missing")
	}
}
