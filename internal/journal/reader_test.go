package journal

import (
	"path/filepath"
	"testing"
	"time"

	"rpsls/broker/internal/logging"
)

func writeTestBundle(t *testing.T, complete bool) string {
	t.Helper()
	dir := t.TempDir()
	journal, err := New(dir, logging.NewTestLogger(), func() time.Time { return time.Unix(1700000000, 0) })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	journal.RoundResolved(testSnapshot(1))
	if complete {
		snap := testSnapshot(2)
		snap.Complete = true
		snap.Winner = 0
		journal.MatchComplete(snap)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return filepath.Join(dir, journalTestMatchID)
}

func TestReadBundleCompleteMatch(t *testing.T) {
	dir := writeTestBundle(t, true)

	bundle, err := ReadBundle(dir)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if bundle.Manifest.MatchID != journalTestMatchID {
		t.Fatalf("manifest match id: %q", bundle.Manifest.MatchID)
	}
	if len(bundle.Rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(bundle.Rounds))
	}
	if bundle.Summary == nil {
		t.Fatal("completed bundle should carry a summary")
	}
	if bundle.Summary.Winner != 0 {
		t.Fatalf("summary winner: %d", bundle.Summary.Winner)
	}
	if got := bundle.Summary.Players; len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("summary players: %v", got)
	}
}

func TestReadBundleInFlightMatch(t *testing.T) {
	dir := writeTestBundle(t, false)

	bundle, err := ReadBundle(dir)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if bundle.Summary != nil {
		t.Fatal("in-flight bundle should have no summary")
	}
	if len(bundle.Rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(bundle.Rounds))
	}
}

func TestReadManifestRejectsMissingBundle(t *testing.T) {
	if _, err := ReadManifest(t.TempDir()); err == nil {
		t.Fatal("expected an error for a directory without a manifest")
	}
}
