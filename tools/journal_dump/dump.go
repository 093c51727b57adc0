package journaldump

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rpsls/broker/internal/journal"
)

// DumpBundle loads a match bundle given either its directory or a direct
// path to its manifest.json.
func DumpBundle(path string) (journal.Bundle, error) {
	if strings.TrimSpace(path) == "" {
		return journal.Bundle{}, fmt.Errorf("path must be provided")
	}
	info, err := os.Stat(path)
	if err != nil {
		return journal.Bundle{}, err
	}
	//1.- Accept a manifest path by resolving back to the bundle directory.
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	return journal.ReadBundle(dir)
}

// Transcript renders the bundle as a human-readable game log.
func Transcript(bundle journal.Bundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "match %s\n", bundle.Manifest.MatchID)
	for _, round := range bundle.Rounds {
		outcome := "draw"
		if round.Winner >= 0 && round.Winner < len(round.Moves) {
			outcome = fmt.Sprintf("slot %d wins", round.Winner)
		}
		fmt.Fprintf(&b, "  round %d: %s, score %v\n",
			round.Round, outcome, round.Wins)
		for slot, move := range round.Moves {
			fmt.Fprintf(&b, "    slot %d played %s\n", slot, move)
		}
	}
	if bundle.Summary == nil {
		b.WriteString("  match still in flight\n")
		return b.String()
	}
	fmt.Fprintf(&b, "  winner: %s (best of %d)\n",
		playerName(bundle.Summary), bundle.Summary.BestOf)
	return b.String()
}

func playerName(doc *journal.Summary) string {
	if doc.Winner < 0 || doc.Winner >= len(doc.Players) {
		return "nobody"
	}
	return doc.Players[doc.Winner]
}
