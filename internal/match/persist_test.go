package match

import (
	"path/filepath"
	"testing"
	"time"

	"rpsls/broker/internal/logging"
	"rpsls/broker/internal/rules"
)

func TestPersisterDisabledWithoutPath(t *testing.T) {
	p, err := NewPersister(newTestStore(), "", time.Second, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatal("persistence should be disabled without a path")
	}
	// Nil persisters must be safe to use.
	p.MarkDirty()
	if err := p.Flush(); err != nil {
		t.Fatalf("nil flush: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestPersisterRoundTripsLiveMatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live", "matches.snap")
	logger := logging.NewTestLogger()

	store := newTestStore()
	p, err := NewPersister(store, path, time.Hour, logger)
	if err != nil {
		t.Fatalf("new persister: %v", err)
	}
	mustJoin(t, store, "alice", "bob")
	readyBoth(t, store)
	mustMove(t, store, "alice", rules.Rock)
	mustMove(t, store, "bob", rules.Lizard)

	p.MarkDirty()
	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	restored := newTestStore()
	if _, err := NewPersister(restored, path, time.Hour, logger); err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap, ok := restored.View(testMatchID)
	if !ok {
		t.Fatal("match not restored")
	}
	if snap.Slots[0].PlayerID != "alice" || snap.Slots[1].PlayerID != "bob" {
		t.Fatalf("identities lost: %+v", snap.Slots)
	}
	if snap.Slots[0].Connected || snap.Slots[1].Connected {
		t.Fatal("restored slots must come back disconnected")
	}
	if len(snap.Rounds) != 1 || snap.Rounds[0].Winner != 0 {
		t.Fatalf("round history lost: %+v", snap.Rounds)
	}
	if snap.Wins[0] != 1 {
		t.Fatalf("win tally lost: %+v", snap.Wins)
	}
}
