// Package rules implements the rock-paper-scissors-lizard-spock outcome
// table. It is pure lookup code with no state and no locking; callers decide
// when a round may be resolved.
package rules

import "errors"

// Move enumerates the five throwable symbols.
type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
	Lizard   Move = "lizard"
	Spock    Move = "spock"
)

// ErrUnknownMove reports a symbol outside the recognised set.
var ErrUnknownMove = errors.New("unknown move")

// Outcome reports the result of one round from the perspective of the two
// slots that played it.
type Outcome int

const (
	// Draw means both slots threw the same symbol.
	Draw Outcome = iota
	// FirstWins means the slot 0 move beats the slot 1 move.
	FirstWins
	// SecondWins means the slot 1 move beats the slot 0 move.
	SecondWins
)

func (o Outcome) String() string {
	switch o {
	case FirstWins:
		return "first"
	case SecondWins:
		return "second"
	default:
		return "draw"
	}
}

// beats holds the canonical precedence cycle. Each symbol beats exactly the
// two listed symbols and loses to the remaining two.
var beats = map[Move][2]Move{
	Rock:     {Scissors, Lizard},
	Paper:    {Rock, Spock},
	Scissors: {Paper, Lizard},
	Lizard:   {Spock, Paper},
	Spock:    {Scissors, Rock},
}

// baseMoves is the legal move set when extended mode is disabled.
var baseMoves = map[Move]bool{Rock: true, Paper: true, Scissors: true}

// Valid reports whether the symbol is legal for a match. Extended mode admits
// all five symbols; otherwise only the classic three are playable. The
// outcome table itself is unaffected by the flag.
func Valid(m Move, extended bool) bool {
	if _, ok := beats[m]; !ok {
		return false
	}
	if extended {
		return true
	}
	return baseMoves[m]
}

// Beats reports whether a defeats b. Equal symbols never beat each other.
func Beats(a, b Move) bool {
	pair, ok := beats[a]
	if !ok {
		return false
	}
	return pair[0] == b || pair[1] == b
}

// Resolve decides one round. Symbol identity alone is authoritative; the
// function is total over all ordered pairs of recognised moves and returns
// ErrUnknownMove for anything outside the table.
func Resolve(first, second Move) (Outcome, error) {
	if _, ok := beats[first]; !ok {
		return Draw, ErrUnknownMove
	}
	if _, ok := beats[second]; !ok {
		return Draw, ErrUnknownMove
	}
	switch {
	case first == second:
		return Draw, nil
	case Beats(first, second):
		return FirstWins, nil
	default:
		return SecondWins, nil
	}
}

// Moves lists every recognised symbol in a stable order.
func Moves() []Move {
	return []Move{Rock, Paper, Scissors, Lizard, Spock}
}
