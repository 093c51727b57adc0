// Package journal persists match history to disk as compressed artefacts.
// Each live match gets its own folder: resolved rounds stream into a
// snappy-framed JSONL log as they commit, and a zstd-compressed summary is
// written when the match completes. The journal sits behind the store's
// Recorder hook, keeping history out of the live mutation path.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"rpsls/broker/internal/logging"
	"rpsls/broker/internal/match"
)

const (
	roundsFile    = "rounds.jsonl.sz"
	summaryFile   = "summary.json.zst"
	manifestFile  = "manifest.json"
	schemaVersion = 1
)

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int    `json:"version"`
	MatchID    string `json:"match_id"`
	CreatedAt  string `json:"created_at"`
	RoundsPath string `json:"rounds_path"`
	// SummaryPath is filled in once the match completes.
	SummaryPath string `json:"summary_path,omitempty"`
}

// RoundEntry is one line of the rounds log.
type RoundEntry struct {
	Round      int      `json:"round"`
	Moves      []string `json:"moves"`
	Winner     int      `json:"winner"`
	Wins       []int    `json:"wins"`
	RecordedAt string   `json:"recorded_at"`
}

// Summary is the terminal artefact for a completed match.
type Summary struct {
	Version   int                 `json:"version"`
	MatchID   string              `json:"match_id"`
	Players   []string            `json:"players"`
	BestOf    int                 `json:"best_of"`
	Rounds    []match.RoundResult `json:"rounds"`
	Wins      []int               `json:"wins"`
	Winner    int                 `json:"winner"`
	WrittenAt string              `json:"written_at"`
}

// matchLog holds the open sinks for one in-flight match.
type matchLog struct {
	dir        string
	roundsSeen int
	file       *os.File
	stream     *snappy.Writer
	manifest   Manifest
}

// Journal implements match.Recorder. A nil *Journal is a disabled journal;
// every method is a no-op on it, mirroring how the store snapshotter treats
// an empty path.
type Journal struct {
	mu     sync.Mutex
	root   string
	now    func() time.Time
	logger *logging.Logger
	open   map[string]*matchLog
}

// New prepares the journal root. An empty root disables journalling.
func New(root string, logger *logging.Logger, clock func() time.Time) (*Journal, error) {
	if root == "" {
		return nil, nil
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logging.L()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create journal root: %w", err)
	}
	return &Journal{root: root, now: clock, logger: logger, open: make(map[string]*matchLog)}, nil
}

// RoundResolved appends the newest resolved round to the match's rounds log.
// The hook runs outside the record lock, so disk latency never stalls play.
func (j *Journal) RoundResolved(snap match.Snapshot) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	log, err := j.logFor(snap)
	if err != nil {
		j.logger.Error("journal open failed", logging.String("match_id", snap.MatchID.String()), logging.Error(err))
		return
	}
	//1.- Append only rounds this log has not seen; a replayed signal is a no-op.
	for i := log.roundsSeen; i < len(snap.Rounds); i++ {
		round := snap.Rounds[i]
		entry := RoundEntry{
			Round:      i + 1,
			Moves:      []string{string(round.Moves[0]), string(round.Moves[1])},
			Winner:     round.Winner,
			Wins:       []int{snap.Wins[0], snap.Wins[1]},
			RecordedAt: j.now().UTC().Format(time.RFC3339Nano),
		}
		line, err := json.Marshal(entry)
		if err != nil {
			j.logger.Error("journal encode failed", logging.Error(err))
			return
		}
		if _, err := log.stream.Write(append(line, '\n')); err != nil {
			j.logger.Error("journal write failed", logging.Error(err))
			return
		}
		log.roundsSeen = i + 1
	}
	if err := log.stream.Flush(); err != nil {
		j.logger.Error("journal flush failed", logging.Error(err))
	}
}

// MatchComplete writes the zstd summary, updates the manifest, and closes
// the match's sinks.
func (j *Journal) MatchComplete(snap match.Snapshot) {
	if j == nil {
		return
	}
	//1.- Make sure the final round made it into the log first.
	j.RoundResolved(snap)

	j.mu.Lock()
	defer j.mu.Unlock()

	log, ok := j.open[snap.MatchID.String()]
	if !ok {
		return
	}
	delete(j.open, snap.MatchID.String())

	if err := j.writeSummary(log, snap); err != nil {
		j.logger.Error("journal summary failed", logging.String("match_id", snap.MatchID.String()), logging.Error(err))
	}
	if err := closeLog(log); err != nil {
		j.logger.Error("journal close failed", logging.Error(err))
	}
}

// FlushAll forces buffered round data to disk for every open match. The
// admin flush endpoint calls this.
func (j *Journal) FlushAll() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for _, log := range j.open {
		if err := log.stream.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes and releases every open match log.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for id, log := range j.open {
		if err := closeLog(log); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(j.open, id)
	}
	return firstErr
}

// logFor returns the open log for the match, creating the folder and sinks
// on first use. Callers must hold the mutex.
func (j *Journal) logFor(snap match.Snapshot) (*matchLog, error) {
	id := snap.MatchID.String()
	if log, ok := j.open[id]; ok {
		return log, nil
	}

	dir := filepath.Join(j.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(filepath.Join(dir, roundsFile))
	if err != nil {
		return nil, err
	}
	log := &matchLog{
		dir:    dir,
		file:   file,
		stream: snappy.NewBufferedWriter(file),
		manifest: Manifest{
			Version:    schemaVersion,
			MatchID:    id,
			CreatedAt:  j.now().UTC().Format(time.RFC3339Nano),
			RoundsPath: roundsFile,
		},
	}
	if err := writeManifest(log); err != nil {
		log.stream.Close()
		file.Close()
		return nil, err
	}
	j.open[id] = log
	return log, nil
}

func (j *Journal) writeSummary(log *matchLog, snap match.Snapshot) error {
	doc := Summary{
		Version:   schemaVersion,
		MatchID:   snap.MatchID.String(),
		Players:   []string{snap.Slots[0].PlayerID, snap.Slots[1].PlayerID},
		BestOf:    snap.BestOf,
		Rounds:    snap.Rounds,
		Wins:      []int{snap.Wins[0], snap.Wins[1]},
		Winner:    snap.Winner,
		WrittenAt: j.now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(log.dir, summaryFile))
	if err != nil {
		return err
	}
	stream, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return err
	}
	if _, err := stream.Write(data); err != nil {
		stream.Close()
		file.Close()
		return err
	}
	if err := stream.Close(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	log.manifest.SummaryPath = summaryFile
	return writeManifest(log)
}

func writeManifest(log *matchLog) error {
	data, err := json.MarshalIndent(log.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(log.dir, manifestFile), data, 0o644)
}

func closeLog(log *matchLog) error {
	var firstErr error
	if err := log.stream.Flush(); err != nil {
		firstErr = err
	}
	if err := log.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := log.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
