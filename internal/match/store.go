package match

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"rpsls/broker/internal/matchid"
	"rpsls/broker/internal/rules"
)

var (
	// ErrInvalidPlayer is returned when an operation omits the player identity.
	ErrInvalidPlayer = errors.New("player id must not be empty")
	// ErrGameFull indicates both slots are already held by other identities.
	ErrGameFull = errors.New("game full")
	// ErrNotInMatch reports an operation by an identity holding no slot.
	ErrNotInMatch = errors.New("player not in match")
	// ErrNotReady rejects a move submitted before the player readied up.
	ErrNotReady = errors.New("player not ready")
	// ErrRoundClosed rejects a move once the round or match is resolved.
	ErrRoundClosed = errors.New("round closed")
	// ErrInvalidMove rejects symbols outside the match's legal move set.
	ErrInvalidMove = errors.New("invalid move")
)

// LeaveResult describes what a Leave call did to the record.
type LeaveResult int

const (
	// LeaveAbsent means the record or the slot no longer existed; not an error.
	LeaveAbsent LeaveResult = iota
	// LeaveRemoved means the slot was marked disconnected and the record kept.
	LeaveRemoved
	// LeaveOrphaned means the last connected occupant left and the record was deleted.
	LeaveOrphaned
)

// Recorder receives committed results after the record lock is released. It
// is the interface boundary to the out-of-scope history store; implementations
// must tolerate being called concurrently for different matches.
type Recorder interface {
	RoundResolved(snapshot Snapshot)
	MatchComplete(snapshot Snapshot)
}

// StoreOption configures optional Store behaviour at construction time.
type StoreOption func(*Store)

// WithClock overrides the wall-clock time source, primarily for tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithRecorder wires a post-commit results hook into the store.
func WithRecorder(recorder Recorder) StoreOption {
	return func(s *Store) {
		s.recorder = recorder
	}
}

// WithCommitHook registers a callback fired after every committed mutation.
// The state snapshotter uses it to schedule flushes. The hook may run with a
// record lock held, so it must not block.
func WithCommitHook(hook func()) StoreOption {
	return func(s *Store) {
		s.commitHook = hook
	}
}

// Store holds every live match record and enforces the locking discipline:
// the table mutex only guards the id lookup, each record has its own lock,
// and no operation holds either across network I/O.
type Store struct {
	mu      sync.Mutex
	records map[matchid.ID]*entry

	bestOf     int
	extended   bool
	now        func() time.Time
	recorder   Recorder
	commitHook func()
}

func (s *Store) committed() {
	if s.commitHook != nil {
		s.commitHook()
	}
}

// entry pairs one record with its exclusive lock. Once deleted it stays
// marked so late acquirers retry the table lookup instead of mutating a
// record that is no longer reachable.
type entry struct {
	mu      sync.RWMutex
	rec     record
	deleted bool
}

// NewStore constructs an empty store playing matches to the given best-of
// count, with the extended move set enabled or not.
func NewStore(bestOf int, extended bool, opts ...StoreOption) *Store {
	if bestOf <= 0 {
		bestOf = 1
	}
	store := &Store{
		records:  make(map[matchid.ID]*entry),
		bestOf:   bestOf,
		extended: extended,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// acquire locks the record for id and returns it with the write lock held.
// With create set, a missing record is created first (the lazy get-or-create
// on first join). The loop retries when it loses a race against deletion.
func (s *Store) acquire(id matchid.ID, create bool) (*entry, bool) {
	for {
		s.mu.Lock()
		e, ok := s.records[id]
		if !ok {
			if !create {
				s.mu.Unlock()
				return nil, false
			}
			now := s.now()
			e = &entry{rec: record{id: id, winner: NoWinner, createdAt: now, updatedAt: now}}
			s.records[id] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.deleted {
			//1.- The entry vanished between lookup and lock; go around again.
			e.mu.Unlock()
			continue
		}
		return e, ok
	}
}

// removeLocked unlinks the entry from the table. The caller holds e.mu; the
// table mutex is acquired second, which is safe because lookups never wait on
// an entry lock while holding the table mutex.
func (s *Store) removeLocked(id matchid.ID, e *entry) {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	e.deleted = true
}

// Join adds the player to the match, creating the record if this is the
// first join. Rejoining an already-held slot is an idempotent reconnect.
func (s *Store) Join(id matchid.ID, playerID string) (Snapshot, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return Snapshot{}, ErrInvalidPlayer
	}
	e, _ := s.acquire(id, true)
	defer e.mu.Unlock()

	now := s.now()
	if i := e.rec.slotOf(playerID); i >= 0 {
		//1.- Reconnect path: mark the held slot connected and refresh liveness.
		e.rec.slots[i].Connected = true
		e.rec.slots[i].LastSeen = now
		e.rec.updatedAt = now
		s.committed()
		return s.snapshotLocked(&e.rec), nil
	}
	for i := range e.rec.slots {
		if !e.rec.slots[i].occupied() {
			e.rec.slots[i] = slot{PlayerID: playerID, Connected: true, LastSeen: now}
			e.rec.updatedAt = now
			s.committed()
			return s.snapshotLocked(&e.rec), nil
		}
	}
	return Snapshot{}, ErrGameFull
}

// Leave marks the player's slot disconnected. The record is deleted once no
// occupant is connected; a leave for a missing record is a silent no-op.
func (s *Store) Leave(id matchid.ID, playerID string) (Snapshot, LeaveResult) {
	e, ok := s.acquire(id, false)
	if !ok {
		return Snapshot{}, LeaveAbsent
	}
	defer e.mu.Unlock()

	i := e.rec.slotOf(playerID)
	if i < 0 {
		return s.snapshotLocked(&e.rec), LeaveAbsent
	}
	e.rec.slots[i].Connected = false
	e.rec.updatedAt = s.now()
	s.committed()
	if e.rec.orphaned() {
		snapshot := s.snapshotLocked(&e.rec)
		s.removeLocked(id, e)
		return snapshot, LeaveOrphaned
	}
	return s.snapshotLocked(&e.rec), LeaveRemoved
}

// Heartbeat refreshes the liveness timestamp for the player's slot.
func (s *Store) Heartbeat(id matchid.ID, playerID string) error {
	e, ok := s.acquire(id, false)
	if !ok {
		return ErrNotInMatch
	}
	defer e.mu.Unlock()

	i := e.rec.slotOf(playerID)
	if i < 0 {
		return ErrNotInMatch
	}
	e.rec.slots[i].LastSeen = s.now()
	s.committed()
	return nil
}

// ReadyUp marks the player ready. Readying after a resolved round opens the
// next one: both slots' ready flags and moves are cleared first. Calling it
// while already ready has no effect and no error.
func (s *Store) ReadyUp(id matchid.ID, playerID string) (Snapshot, error) {
	e, ok := s.acquire(id, false)
	if !ok {
		return Snapshot{}, ErrNotInMatch
	}
	defer e.mu.Unlock()

	i := e.rec.slotOf(playerID)
	if i < 0 {
		return Snapshot{}, ErrNotInMatch
	}
	if e.rec.complete {
		// The match outcome is settled; readying changes nothing.
		return s.snapshotLocked(&e.rec), nil
	}
	if e.rec.roundResolved {
		//1.- First ready after a resolution opens the next round for both slots.
		for j := range e.rec.slots {
			e.rec.slots[j].Ready = false
			e.rec.slots[j].Move = ""
		}
		e.rec.roundResolved = false
	}
	now := s.now()
	e.rec.slots[i].Ready = true
	e.rec.slots[i].LastSeen = now
	e.rec.updatedAt = now
	s.committed()
	return s.snapshotLocked(&e.rec), nil
}

// SubmitMove records the player's move for the open round. When both
// occupants have moved, the round resolves immediately and, if a player has
// reached the best-of majority, the match completes. Result hooks fire after
// the record lock is released.
func (s *Store) SubmitMove(id matchid.ID, playerID string, move rules.Move) (Snapshot, error) {
	snapshot, resolved, complete, err := s.submitMove(id, playerID, move)
	if err != nil {
		return Snapshot{}, err
	}
	if s.recorder != nil {
		//1.- The lock is released; the recorder may do I/O freely.
		if resolved {
			s.recorder.RoundResolved(snapshot)
		}
		if complete {
			s.recorder.MatchComplete(snapshot)
		}
	}
	return snapshot, nil
}

func (s *Store) submitMove(id matchid.ID, playerID string, move rules.Move) (Snapshot, bool, bool, error) {
	e, ok := s.acquire(id, false)
	if !ok {
		return Snapshot{}, false, false, ErrNotInMatch
	}
	defer e.mu.Unlock()

	i := e.rec.slotOf(playerID)
	if i < 0 {
		return Snapshot{}, false, false, ErrNotInMatch
	}
	if !e.rec.slots[i].Ready {
		return Snapshot{}, false, false, ErrNotReady
	}
	if e.rec.complete || e.rec.roundResolved || e.rec.slots[i].Move != "" {
		return Snapshot{}, false, false, ErrRoundClosed
	}
	if !rules.Valid(move, s.extended) {
		return Snapshot{}, false, false, ErrInvalidMove
	}

	now := s.now()
	e.rec.slots[i].Move = move
	e.rec.slots[i].LastSeen = now
	e.rec.updatedAt = now

	resolved, complete := false, false
	if e.rec.movesComplete() {
		resolved = true
		complete = s.resolveRoundLocked(&e.rec)
	}
	s.committed()
	return s.snapshotLocked(&e.rec), resolved, complete, nil
}

// resolveRoundLocked settles the open round and reports whether the match is
// now complete. The rules engine cannot fail here: both moves were validated
// on entry.
func (s *Store) resolveRoundLocked(rec *record) bool {
	outcome, _ := rules.Resolve(rec.slots[0].Move, rec.slots[1].Move)
	winner := NoWinner
	switch outcome {
	case rules.FirstWins:
		winner = 0
	case rules.SecondWins:
		winner = 1
	}
	rec.rounds = append(rec.rounds, RoundResult{
		Moves:  [NumSlots]rules.Move{rec.slots[0].Move, rec.slots[1].Move},
		Winner: winner,
	})
	rec.roundResolved = true
	if winner != NoWinner {
		rec.wins[winner]++
		if rec.wins[winner] > s.bestOf/2 {
			rec.complete = true
			rec.winner = winner
		}
	}
	return rec.complete
}

// View returns a consistent copy of the record without blocking writers for
// longer than the copy itself. This is the unlocked read path used by
// gateways reacting to a recompute signal.
func (s *Store) View(id matchid.ID) (Snapshot, bool) {
	for {
		s.mu.Lock()
		e, ok := s.records[id]
		s.mu.Unlock()
		if !ok {
			return Snapshot{}, false
		}
		e.mu.RLock()
		if e.deleted {
			e.mu.RUnlock()
			continue
		}
		snapshot := s.snapshotLocked(&e.rec)
		e.mu.RUnlock()
		return snapshot, true
	}
}

// Len reports the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// SweepResult reports one match touched by a liveness sweep.
type SweepResult struct {
	Snapshot Snapshot
	Orphaned bool
}

// SweepStale disconnects occupants whose last heartbeat is older than ttl,
// deleting records that end up orphaned. Each record is handled under its
// own lock; the sweep never holds two locks at once.
func (s *Store) SweepStale(ttl time.Duration) []SweepResult {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	ids := make([]matchid.ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cutoff := s.now().Add(-ttl)
	var results []SweepResult
	for _, id := range ids {
		e, ok := s.acquire(id, false)
		if !ok {
			continue
		}
		changed := false
		for i := range e.rec.slots {
			sl := &e.rec.slots[i]
			if sl.Connected && sl.LastSeen.Before(cutoff) {
				sl.Connected = false
				changed = true
			}
		}
		if !changed {
			e.mu.Unlock()
			continue
		}
		e.rec.updatedAt = s.now()
		snapshot := s.snapshotLocked(&e.rec)
		orphaned := e.rec.orphaned()
		if orphaned {
			s.removeLocked(id, e)
		}
		e.mu.Unlock()
		results = append(results, SweepResult{Snapshot: snapshot, Orphaned: orphaned})
	}
	if len(results) > 0 {
		s.committed()
	}
	return results
}

// Export copies every live record for persistence.
func (s *Store) Export() []Snapshot {
	s.mu.Lock()
	ids := make([]matchid.ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snapshots := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if snapshot, ok := s.View(id); ok {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots
}

// Restore rebuilds records from persisted snapshots. Every restored slot is
// marked disconnected: connections never survive a restart, and the liveness
// sweep reclaims slots whose players do not come back.
func (s *Store) Restore(snapshots []Snapshot) {
	for _, snapshot := range snapshots {
		if snapshot.MatchID == "" {
			continue
		}
		rec := record{
			id:            snapshot.MatchID,
			rounds:        append([]RoundResult(nil), snapshot.Rounds...),
			wins:          snapshot.Wins,
			roundResolved: snapshot.RoundResolved,
			complete:      snapshot.Complete,
			winner:        snapshot.Winner,
			createdAt:     snapshot.UpdatedAt,
			updatedAt:     snapshot.UpdatedAt,
		}
		for i := range snapshot.Slots {
			rec.slots[i] = slot{
				PlayerID: snapshot.Slots[i].PlayerID,
				Ready:    snapshot.Slots[i].Ready,
				Move:     snapshot.Slots[i].Move,
				LastSeen: snapshot.Slots[i].LastSeen,
			}
		}
		s.mu.Lock()
		if _, exists := s.records[snapshot.MatchID]; !exists {
			s.records[snapshot.MatchID] = &entry{rec: rec}
		}
		s.mu.Unlock()
	}
}

func (s *Store) snapshotLocked(rec *record) Snapshot {
	snapshot := Snapshot{
		MatchID:       rec.id,
		Wins:          rec.wins,
		BestOf:        s.bestOf,
		ExtendedMode:  s.extended,
		RoundResolved: rec.roundResolved,
		Complete:      rec.complete,
		Winner:        rec.winner,
		UpdatedAt:     rec.updatedAt,
	}
	for i := range rec.slots {
		snapshot.Slots[i] = SlotView{
			PlayerID:  rec.slots[i].PlayerID,
			Connected: rec.slots[i].Connected,
			Ready:     rec.slots[i].Ready,
			Move:      rec.slots[i].Move,
			LastSeen:  rec.slots[i].LastSeen,
		}
	}
	if len(rec.rounds) > 0 {
		snapshot.Rounds = append([]RoundResult(nil), rec.rounds...)
	}
	return snapshot
}
