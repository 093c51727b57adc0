package journaldump

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rpsls/broker/internal/journal"
	"rpsls/broker/internal/logging"
	"rpsls/broker/internal/match"
	"rpsls/broker/internal/matchid"
	"rpsls/broker/internal/rules"
)

const dumpTestMatchID = "0123456789abcdef0123456789abcdef"

func writeDumpBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	log, err := journal.New(dir, logging.NewTestLogger(), func() time.Time { return time.Unix(1700000000, 0) })
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}

	snap := match.Snapshot{
		MatchID: matchid.ID(dumpTestMatchID),
		Slots: [match.NumSlots]match.SlotView{
			{PlayerID: "alice", Connected: true},
			{PlayerID: "bob", Connected: true},
		},
		BestOf: 3,
		Rounds: []match.RoundResult{
			{Moves: [match.NumSlots]rules.Move{rules.Rock, rules.Scissors}, Winner: 0},
			{Moves: [match.NumSlots]rules.Move{rules.Spock, rules.Spock}, Winner: match.NoWinner},
			{Moves: [match.NumSlots]rules.Move{rules.Lizard, rules.Paper}, Winner: 0},
		},
		Wins:     [match.NumSlots]int{2, 0},
		Winner:   0,
		Complete: true,
	}
	log.MatchComplete(snap)
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return filepath.Join(dir, dumpTestMatchID)
}

func TestDumpBundleAcceptsDirAndManifestPath(t *testing.T) {
	dir := writeDumpBundle(t)

	fromDir, err := DumpBundle(dir)
	if err != nil {
		t.Fatalf("DumpBundle(dir): %v", err)
	}
	fromManifest, err := DumpBundle(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("DumpBundle(manifest): %v", err)
	}
	if fromDir.Manifest.MatchID != fromManifest.Manifest.MatchID {
		t.Fatal("directory and manifest paths should load the same bundle")
	}
	if len(fromDir.Rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(fromDir.Rounds))
	}
}

func TestTranscriptNamesWinnerAndDraws(t *testing.T) {
	bundle, err := DumpBundle(writeDumpBundle(t))
	if err != nil {
		t.Fatalf("DumpBundle: %v", err)
	}

	text := Transcript(bundle)
	if !strings.Contains(text, "winner: alice") {
		t.Fatalf("transcript should name the winner:\n%s", text)
	}
	if !strings.Contains(text, "round 2: draw") {
		t.Fatalf("transcript should mark the drawn round:\n%s", text)
	}
	if !strings.Contains(text, "slot 0 played lizard") {
		t.Fatalf("transcript should list moves:\n%s", text)
	}
}

func TestDumpBundleRejectsMissingPath(t *testing.T) {
	if _, err := DumpBundle(""); err == nil {
		t.Fatal("expected an error for an empty path")
	}
	if _, err := DumpBundle("/does/not/exist"); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}
