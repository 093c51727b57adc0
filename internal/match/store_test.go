package match

import (
	"sync"
	"testing"
	"time"

	"rpsls/broker/internal/matchid"
	"rpsls/broker/internal/rules"
)

const testMatchID = matchid.ID("0123456789abcdef0123456789abcdef")

func newTestStore(opts ...StoreOption) *Store {
	return NewStore(5, true, opts...)
}

func TestJoinCreatesRecordAndOccupiesSlots(t *testing.T) {
	store := newTestStore()

	snap, err := store.Join(testMatchID, "alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if snap.Slots[0].PlayerID != "alice" || !snap.Slots[0].Connected {
		t.Fatalf("alice should hold slot 0 connected: %+v", snap.Slots[0])
	}
	if snap.Slots[1].Occupied() {
		t.Fatalf("slot 1 should be empty: %+v", snap.Slots[1])
	}

	snap, err = store.Join(testMatchID, "bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if snap.Slots[1].PlayerID != "bob" {
		t.Fatalf("bob should hold slot 1: %+v", snap.Slots[1])
	}
	if store.Len() != 1 {
		t.Fatalf("expected one live record, got %d", store.Len())
	}
}

func TestJoinIsIdempotentForReconnects(t *testing.T) {
	store := newTestStore()
	if _, err := store.Join(testMatchID, "alice"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	snap, err := store.Join(testMatchID, "alice")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	occupied := 0
	for _, sl := range snap.Slots {
		if sl.PlayerID == "alice" {
			occupied++
			if !sl.Connected {
				t.Fatal("rejoined slot must be connected")
			}
		}
	}
	if occupied != 1 {
		t.Fatalf("alice occupies %d slots, want 1", occupied)
	}
}

func TestJoinRejectsThirdIdentity(t *testing.T) {
	store := newTestStore()
	for _, player := range []string{"alice", "bob"} {
		if _, err := store.Join(testMatchID, player); err != nil {
			t.Fatalf("join %s: %v", player, err)
		}
	}
	if _, err := store.Join(testMatchID, "carol"); err != ErrGameFull {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
}

func TestJoinRejectsConcurrentThirdIdentity(t *testing.T) {
	store := newTestStore()
	players := []string{"alice", "bob", "carol", "dave"}

	var wg sync.WaitGroup
	errs := make([]error, len(players))
	for i, player := range players {
		wg.Add(1)
		go func(i int, player string) {
			defer wg.Done()
			_, errs[i] = store.Join(testMatchID, player)
		}(i, player)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		switch err {
		case nil:
			joined++
		case ErrGameFull:
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if joined != 2 {
		t.Fatalf("%d joins succeeded, want exactly 2", joined)
	}
	snap, ok := store.View(testMatchID)
	if !ok {
		t.Fatal("record should exist")
	}
	if !snap.Slots[0].Occupied() || !snap.Slots[1].Occupied() {
		t.Fatalf("both slots should be occupied: %+v", snap.Slots)
	}
}

func TestJoinRejectsEmptyIdentity(t *testing.T) {
	store := newTestStore()
	if _, err := store.Join(testMatchID, "  "); err != ErrInvalidPlayer {
		t.Fatalf("expected ErrInvalidPlayer, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("failed join must not create a record")
	}
}

func TestLeaveKeepsRecordWhileAnOccupantRemains(t *testing.T) {
	store := newTestStore()
	mustJoin(t, store, "alice", "bob")

	snap, result := store.Leave(testMatchID, "alice")
	if result != LeaveRemoved {
		t.Fatalf("expected LeaveRemoved, got %v", result)
	}
	if snap.Slots[0].Connected {
		t.Fatal("alice should be disconnected")
	}
	if snap.Slots[0].PlayerID != "alice" {
		t.Fatal("disconnect must not evict the identity from its slot")
	}
	if store.Len() != 1 {
		t.Fatal("record deleted while bob is still connected")
	}
}

func TestLeaveDeletesOrphanedRecord(t *testing.T) {
	store := newTestStore()
	mustJoin(t, store, "alice", "bob")

	store.Leave(testMatchID, "alice")
	if _, result := store.Leave(testMatchID, "bob"); result != LeaveOrphaned {
		t.Fatal("last leave should orphan the record")
	}
	if store.Len() != 0 {
		t.Fatal("orphaned record was not deleted")
	}
	// A leave against the deleted record is a silent no-op.
	if _, result := store.Leave(testMatchID, "bob"); result != LeaveAbsent {
		t.Fatal("leave on a missing record must report absent")
	}
}

func TestHeartbeatRequiresMembership(t *testing.T) {
	store := newTestStore()
	if err := store.Heartbeat(testMatchID, "alice"); err != ErrNotInMatch {
		t.Fatalf("expected ErrNotInMatch, got %v", err)
	}
	mustJoin(t, store, "alice")
	if err := store.Heartbeat(testMatchID, "carol"); err != ErrNotInMatch {
		t.Fatalf("expected ErrNotInMatch for outsider, got %v", err)
	}
	if err := store.Heartbeat(testMatchID, "alice"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
}

func TestSubmitMoveRequiresReady(t *testing.T) {
	store := newTestStore()
	mustJoin(t, store, "alice", "bob")

	if _, err := store.SubmitMove(testMatchID, "alice", rules.Rock); err != ErrNotReady {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := store.ReadyUp(testMatchID, "alice"); err != nil {
		t.Fatalf("ready up: %v", err)
	}
	if _, err := store.SubmitMove(testMatchID, "alice", rules.Rock); err != nil {
		t.Fatalf("submit after ready: %v", err)
	}
}

func TestSubmitMoveValidatesSymbols(t *testing.T) {
	store := NewStore(5, false) // classic mode
	mustJoin(t, store, "alice", "bob")
	readyBoth(t, store)

	if _, err := store.SubmitMove(testMatchID, "alice", "dynamite"); err != ErrInvalidMove {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
	if _, err := store.SubmitMove(testMatchID, "alice", rules.Spock); err != ErrInvalidMove {
		t.Fatalf("spock must be illegal in classic mode, got %v", err)
	}
	if _, err := store.SubmitMove(testMatchID, "alice", rules.Rock); err != nil {
		t.Fatalf("legal move rejected: %v", err)
	}
}

func TestRoundResolvesWhenBothMovesRecorded(t *testing.T) {
	store := newTestStore()
	mustJoin(t, store, "alice", "bob")
	readyBoth(t, store)

	snap, err := store.SubmitMove(testMatchID, "alice", rules.Rock)
	if err != nil {
		t.Fatalf("alice move: %v", err)
	}
	if snap.RoundResolved {
		t.Fatal("round resolved with only one move recorded")
	}

	snap, err = store.SubmitMove(testMatchID, "bob", rules.Scissors)
	if err != nil {
		t.Fatalf("bob move: %v", err)
	}
	if !snap.RoundResolved {
		t.Fatal("round should be resolved")
	}
	if len(snap.Rounds) != 1 {
		t.Fatalf("expected one resolved round, got %d", len(snap.Rounds))
	}
	if snap.Rounds[0].Winner != 0 {
		t.Fatalf("rock beats scissors, slot 0 should win: %+v", snap.Rounds[0])
	}
	if snap.Wins[0] != 1 || snap.Wins[1] != 0 {
		t.Fatalf("unexpected win tally: %+v", snap.Wins)
	}

	// Further moves in the resolved round are rejected.
	if _, err := store.SubmitMove(testMatchID, "alice", rules.Paper); err != ErrRoundClosed {
		t.Fatalf("expected ErrRoundClosed, got %v", err)
	}
}

func TestReadyUpOpensTheNextRound(t *testing.T) {
	store := newTestStore()
	mustJoin(t, store, "alice", "bob")
	readyBoth(t, store)
	mustMove(t, store, "alice", rules.Rock)
	mustMove(t, store, "bob", rules.Scissors)

	snap, err := store.ReadyUp(testMatchID, "alice")
	if err != nil {
		t.Fatalf("ready after resolution: %v", err)
	}
	if snap.RoundResolved {
		t.Fatal("readying should open the next round")
	}
	if snap.Slots[0].Move != "" || snap.Slots[1].Move != "" {
		t.Fatal("moves should be cleared for the next round")
	}
	if !snap.Slots[0].Ready || snap.Slots[1].Ready {
		t.Fatal("only the readying player should be ready")
	}
	// History survives the transition.
	if len(snap.Rounds) != 1 || snap.Wins[0] != 1 {
		t.Fatalf("round history lost: rounds=%d wins=%+v", len(snap.Rounds), snap.Wins)
	}
}

func TestDrawsDoNotScore(t *testing.T) {
	store := newTestStore()
	mustJoin(t, store, "alice", "bob")
	readyBoth(t, store)
	mustMove(t, store, "alice", rules.Spock)
	snap := mustMove(t, store, "bob", rules.Spock)

	if snap.Rounds[0].Winner != NoWinner {
		t.Fatalf("equal symbols must draw: %+v", snap.Rounds[0])
	}
	if snap.Wins[0] != 0 || snap.Wins[1] != 0 {
		t.Fatalf("draws must not score: %+v", snap.Wins)
	}
	if snap.Complete {
		t.Fatal("a draw cannot complete the match")
	}
}

func TestBestOfMajorityCompletesMatch(t *testing.T) {
	store := NewStore(3, true)
	mustJoin(t, store, "alice", "bob")

	var snap Snapshot
	for round := 0; round < 2; round++ {
		readyBoth(t, store)
		mustMove(t, store, "alice", rules.Paper)
		snap = mustMove(t, store, "bob", rules.Rock)
	}
	if !snap.Complete {
		t.Fatalf("two wins of a best-of-3 should complete the match: %+v", snap)
	}
	if snap.Winner != 0 {
		t.Fatalf("alice (slot 0) should be the match winner: %d", snap.Winner)
	}

	// A completed match accepts no further moves.
	if _, err := store.ReadyUp(testMatchID, "bob"); err != nil {
		t.Fatalf("ready on complete match should be a no-op: %v", err)
	}
	if _, err := store.SubmitMove(testMatchID, "bob", rules.Rock); err != ErrRoundClosed {
		t.Fatalf("expected ErrRoundClosed on complete match, got %v", err)
	}
}

func TestConcurrentSubmitsResolveExactlyOnce(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		store := newTestStore()
		mustJoin(t, store, "alice", "bob")
		readyBoth(t, store)

		var wg sync.WaitGroup
		var aliceErr, bobErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, aliceErr = store.SubmitMove(testMatchID, "alice", rules.Lizard)
		}()
		go func() {
			defer wg.Done()
			_, bobErr = store.SubmitMove(testMatchID, "bob", rules.Spock)
		}()
		wg.Wait()

		if aliceErr != nil || bobErr != nil {
			t.Fatalf("trial %d: submit errors: %v / %v", trial, aliceErr, bobErr)
		}
		snap, ok := store.View(testMatchID)
		if !ok {
			t.Fatalf("trial %d: record missing", trial)
		}
		if len(snap.Rounds) != 1 {
			t.Fatalf("trial %d: %d resolutions, want exactly 1", trial, len(snap.Rounds))
		}
		if snap.Rounds[0].Winner != 0 {
			t.Fatalf("trial %d: lizard poisons spock, slot 0 should win: %+v", trial, snap.Rounds[0])
		}
	}
}

func TestFailedOperationsLeaveRecordUntouched(t *testing.T) {
	store := newTestStore()
	mustJoin(t, store, "alice", "bob")
	readyBoth(t, store)
	before, _ := store.View(testMatchID)

	if _, err := store.SubmitMove(testMatchID, "alice", "dynamite"); err != ErrInvalidMove {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
	after, _ := store.View(testMatchID)
	if after.UpdatedAt != before.UpdatedAt {
		t.Fatal("failed operation mutated the record")
	}
	if after.Slots[0].Move != "" {
		t.Fatal("rejected move was recorded")
	}
}

func TestSweepStaleReclaimsSilentSlots(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }
	store := newTestStore(WithClock(clock))
	mustJoin(t, store, "alice", "bob")

	// Bob heartbeats; Alice goes silent.
	current = current.Add(90 * time.Second)
	if err := store.Heartbeat(testMatchID, "bob"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	results := store.SweepStale(time.Minute)
	if len(results) != 1 {
		t.Fatalf("expected one swept match, got %d", len(results))
	}
	if results[0].Orphaned {
		t.Fatal("record should survive while bob is fresh")
	}
	if results[0].Snapshot.Slots[0].Connected {
		t.Fatal("alice should have been disconnected")
	}

	// Bob goes silent too; the record orphans.
	current = current.Add(2 * time.Minute)
	results = store.SweepStale(time.Minute)
	if len(results) != 1 || !results[0].Orphaned {
		t.Fatalf("expected an orphaning sweep, got %+v", results)
	}
	if store.Len() != 0 {
		t.Fatal("orphaned record not deleted by sweep")
	}
}

type captureRecorder struct {
	mu       sync.Mutex
	rounds   []Snapshot
	complete []Snapshot
}

func (c *captureRecorder) RoundResolved(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds = append(c.rounds, snapshot)
}

func (c *captureRecorder) MatchComplete(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = append(c.complete, snapshot)
}

func TestRecorderFiresAfterCommits(t *testing.T) {
	recorder := &captureRecorder{}
	store := NewStore(1, true, WithRecorder(recorder))
	mustJoin(t, store, "alice", "bob")
	readyBoth(t, store)
	mustMove(t, store, "alice", rules.Scissors)
	mustMove(t, store, "bob", rules.Paper)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.rounds) != 1 {
		t.Fatalf("expected one round event, got %d", len(recorder.rounds))
	}
	if len(recorder.complete) != 1 {
		t.Fatalf("best-of-1 should complete immediately, got %d events", len(recorder.complete))
	}
	if recorder.complete[0].Winner != 0 {
		t.Fatalf("scissors cuts paper, slot 0 wins: %+v", recorder.complete[0])
	}
}

func mustJoin(t *testing.T, store *Store, players ...string) {
	t.Helper()
	for _, player := range players {
		if _, err := store.Join(testMatchID, player); err != nil {
			t.Fatalf("join %s: %v", player, err)
		}
	}
}

func readyBoth(t *testing.T, store *Store) {
	t.Helper()
	for _, player := range []string{"alice", "bob"} {
		if _, err := store.ReadyUp(testMatchID, player); err != nil {
			t.Fatalf("ready %s: %v", player, err)
		}
	}
}

func mustMove(t *testing.T, store *Store, player string, move rules.Move) Snapshot {
	t.Helper()
	snap, err := store.SubmitMove(testMatchID, player, move)
	if err != nil {
		t.Fatalf("submit %s for %s: %v", move, player, err)
	}
	return snap
}
