// Package match owns the authoritative state of every live match: the
// two-slot record, the transition logic applied to it, and the exclusive
// locking discipline that serialises concurrent writers.
package match

import (
	"time"

	"rpsls/broker/internal/matchid"
	"rpsls/broker/internal/rules"
)

// NumSlots is the fixed number of player positions in a live match.
const NumSlots = 2

// NoWinner marks rounds and matches without a decisive winner.
const NoWinner = -1

// slot is one of the two fixed positions inside a live record. An occupied
// slot keeps its player identity across disconnects so the same player can
// reclaim it on reconnect.
type slot struct {
	PlayerID  string
	Connected bool
	Ready     bool
	Move      rules.Move
	LastSeen  time.Time
}

func (s *slot) occupied() bool { return s.PlayerID != "" }

// RoundResult records one resolved exchange of simultaneous moves.
type RoundResult struct {
	Moves  [NumSlots]rules.Move `json:"moves"`
	Winner int                  `json:"winner"` // slot index, NoWinner for a draw
}

// record is the mutable aggregate guarded by its entry lock. All mutation
// happens inside Store operations; nothing outside this package ever sees a
// record directly.
type record struct {
	id            matchid.ID
	slots         [NumSlots]slot
	rounds        []RoundResult
	wins          [NumSlots]int
	roundResolved bool
	complete      bool
	winner        int
	createdAt     time.Time
	updatedAt     time.Time
}

func (r *record) slotOf(playerID string) int {
	for i := range r.slots {
		if r.slots[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

// orphaned reports whether no occupant is connected any more.
func (r *record) orphaned() bool {
	for i := range r.slots {
		if r.slots[i].Connected {
			return false
		}
	}
	return true
}

// movesComplete reports whether both occupied slots have a recorded move for
// the open round.
func (r *record) movesComplete() bool {
	for i := range r.slots {
		if !r.slots[i].occupied() || r.slots[i].Move == "" {
			return false
		}
	}
	return true
}

// SlotView is a stable copy of one slot, safe to hand to serialisers.
type SlotView struct {
	PlayerID  string     `json:"player_id,omitempty"`
	Connected bool       `json:"connected"`
	Ready     bool       `json:"ready"`
	Move      rules.Move `json:"move,omitempty"`
	LastSeen  time.Time  `json:"last_seen"`
}

// Occupied reports whether a player identity holds the slot.
func (v SlotView) Occupied() bool { return v.PlayerID != "" }

// Snapshot captures a stable copy of one live match record taken after a
// commit. Gateways read snapshots on their unlocked read path and project
// them per recipient.
type Snapshot struct {
	MatchID       matchid.ID         `json:"match_id"`
	Slots         [NumSlots]SlotView `json:"slots"`
	Rounds        []RoundResult      `json:"rounds,omitempty"`
	Wins          [NumSlots]int      `json:"wins"`
	BestOf        int                `json:"best_of"`
	ExtendedMode  bool               `json:"extended_mode"`
	RoundResolved bool               `json:"round_resolved"`
	Complete      bool               `json:"complete"`
	Winner        int                `json:"winner"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// SlotOf returns the slot index the player occupies, or -1.
func (s Snapshot) SlotOf(playerID string) int {
	for i := range s.Slots {
		if s.Slots[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

// ConnectedCount reports how many occupants are currently connected.
func (s Snapshot) ConnectedCount() int {
	count := 0
	for i := range s.Slots {
		if s.Slots[i].Connected {
			count++
		}
	}
	return count
}
